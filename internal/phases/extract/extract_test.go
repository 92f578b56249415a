package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/illustra/internal/book"
	"github.com/jackzampolin/illustra/internal/entities"
	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/providers"
	"github.com/jackzampolin/illustra/internal/retryexec"
	"github.com/jackzampolin/illustra/internal/state"
)

func testDescriptor() book.Descriptor {
	return book.Descriptor{
		Chapters: []book.Chapter{
			{Number: 1, Title: "Dawn", Content: "A dragon stirred."},
			{Number: 2, Title: "Dusk", Content: "Dragon again."},
		},
	}
}

func TestPhase_RunBulk_SmallBookChoosesBulk(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = []byte(`{"elements":[{"type":"creature","name":"Dragon","description":"Green scales"}]}`)

	reg := entities.New(t.TempDir() + "/.entity-registry.json")
	st := state.New(t.TempDir()+"/.state.json", "book.txt")
	bus := progress.NewBus()
	exec := retryexec.New(retryexec.Config{MaxAttempts: 1})

	phase := New(Config{LLM: mock, Executor: exec, Registry: reg, State: st, Bus: bus})

	result, err := phase.Run(context.Background(), testDescriptor())
	require.NoError(t, err)
	require.Equal(t, StrategyBulk, result.Strategy)
	require.Equal(t, 1, result.NewEntities)
	require.Equal(t, state.StatusCompleted, st.Get(PhaseName, 1).Status)
	require.Equal(t, state.StatusCompleted, st.Get(PhaseName, 2).Status)
}

func TestPhase_RunIterative_LargeBookChoosesIterative(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = []byte(`{"elements":[{"type":"creature","name":"Dragon","description":"Green scales"}]}`)

	reg := entities.New(t.TempDir() + "/.entity-registry.json")
	st := state.New(t.TempDir()+"/.state.json", "book.txt")
	bus := progress.NewBus()
	exec := retryexec.New(retryexec.Config{MaxAttempts: 1})

	phase := New(Config{LLM: mock, Executor: exec, Registry: reg, State: st, Bus: bus, BulkCap: 1})

	result, err := phase.Run(context.Background(), testDescriptor())
	require.NoError(t, err)
	require.Equal(t, StrategyIterative, result.Strategy)
	// Same dragon mentioned in both chapters merges into one entity.
	require.Len(t, reg.ByType(entities.TypeCreature), 1)
}
