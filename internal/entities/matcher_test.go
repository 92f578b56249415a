package entities

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/illustra/internal/providers"
)

func TestMatcher_UsesModelDecision(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = []byte(`{"isMatch":true,"confidence":0.95,"reasoning":"same character, alias used"}`)

	m := NewMatcher(mock, NewMatchCache(10, 0), nil)
	decision, err := m.Match(context.Background(), TypeCharacter, "Eira", "a warrior", "Eira Lightbringer", "a warrior with a sword")
	require.NoError(t, err)
	require.True(t, decision.IsMatch)
}

func TestMatcher_BelowThresholdIsNotAMatch(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = []byte(`{"isMatch":true,"confidence":0.4,"reasoning":"uncertain"}`)

	m := NewMatcher(mock, nil, nil)
	decision, err := m.Match(context.Background(), TypeCharacter, "A", "", "B", "")
	require.NoError(t, err)
	require.False(t, decision.IsMatch)
}

func TestMatcher_FallsBackOnModelFailure(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ShouldFail = true

	m := NewMatcher(mock, nil, nil)
	decision, err := m.Match(context.Background(), TypeCharacter, "Eira", "", "eira", "")
	require.NoError(t, err)
	require.True(t, decision.IsMatch, "exact lowercase name match should fall back to true")
}

func TestMatcher_CachesDecisions(t *testing.T) {
	mock := providers.NewMockClient()
	mock.ResponseJSON = []byte(`{"isMatch":true,"confidence":0.9,"reasoning":"x"}`)
	cache := NewMatchCache(10, 0)

	m := NewMatcher(mock, cache, nil)
	_, err := m.Match(context.Background(), TypeCharacter, "A", "", "B", "")
	require.NoError(t, err)
	_, err = m.Match(context.Background(), TypeCharacter, "A", "", "B", "")
	require.NoError(t, err)

	require.Equal(t, int64(1), mock.RequestCount())
}
