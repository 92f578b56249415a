package illustrate

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/illustra/internal/book"
	"github.com/jackzampolin/illustra/internal/outdir"
	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/providers"
	"github.com/jackzampolin/illustra/internal/retryexec"
	"github.com/jackzampolin/illustra/internal/scene"
	"github.com/jackzampolin/illustra/internal/state"
)

func testDescriptor() book.Descriptor {
	return book.Descriptor{
		Chapters: []book.Chapter{
			{Number: 1, Title: "Dawn", Content: "A dragon stirred."},
		},
	}
}

func newTestPhase(t *testing.T, chat providers.LLMClient, img providers.ImageClient, cat *scene.Catalog, st *state.Store, cfg Config) (*Phase, *outdir.Dir) {
	t.Helper()
	dir, err := outdir.New(t.TempDir())
	require.NoError(t, err)

	cfg.LLM = chat
	cfg.ImageClient = img
	cfg.Executor = retryexec.New(retryexec.Config{MaxAttempts: 1})
	cfg.State = st
	cfg.Bus = progress.NewBus()
	cfg.Catalog = cat
	cfg.OutDir = dir
	return New(cfg), dir
}

func TestPhase_DisableStyleGuide_IllustratesEveryScene(t *testing.T) {
	cat := scene.NewCatalog(t.TempDir() + "/Chapters.md")
	cat.SetScenes(1, "Dawn", []scene.Scene{
		{ChapterNumber: 1, Index: 1, Description: "A dragon rises."},
		{ChapterNumber: 1, Index: 2, Description: "The dragon takes flight."},
	})

	st := state.New(t.TempDir()+"/.state.json", "book.txt")
	st.SetStatus("analyze", 1, state.StatusCompleted, "")

	imgClient := providers.NewMockClient()
	phase, _ := newTestPhase(t, providers.NewMockClient(), imgClient, cat, st, Config{DisableStyleGuide: true})

	result, err := phase.Run(context.Background(), testDescriptor(), []int{1})
	require.NoError(t, err)
	require.Equal(t, []int{1}, result.Completed)
	require.Empty(t, result.Failed)
	require.Equal(t, 2, result.ImagesGenerated)
	require.False(t, result.StyleGuideBootstrapped)
	require.Equal(t, state.StatusCompleted, st.Get(PhaseName, 1).Status)

	scenes, _ := cat.Scenes(1)
	for _, s := range scenes {
		require.True(t, s.Illustrated())
		data, readErr := os.ReadFile(s.ImagePath)
		require.NoError(t, readErr)
		require.NotEmpty(t, data)
	}
}

func TestPhase_BootstrapsStyleGuideThenAppliesIt(t *testing.T) {
	cat := scene.NewCatalog(t.TempDir() + "/Chapters.md")
	cat.SetScenes(1, "Dawn", []scene.Scene{
		{ChapterNumber: 1, Index: 1, Description: "A dragon rises."},
		{ChapterNumber: 1, Index: 2, Description: "The dragon circles the tower."},
		{ChapterNumber: 1, Index: 3, Description: "The dragon lands."},
	})

	st := state.New(t.TempDir()+"/.state.json", "book.txt")
	st.SetStatus("analyze", 1, state.StatusCompleted, "")

	chatClient := providers.NewMockClient()
	chatClient.ResponseJSON = []byte(`{"artStyle":"watercolor","palette":"muted earth tones","lighting":"soft dawn light","mood":"wistful","composition":"wide establishing shots"}`)
	imgClient := providers.NewMockClient()

	phase, dir := newTestPhase(t, chatClient, imgClient, cat, st, Config{StyleBootstrapCount: 2})

	result, err := phase.Run(context.Background(), testDescriptor(), []int{1})
	require.NoError(t, err)
	require.Equal(t, []int{1}, result.Completed)
	require.Equal(t, 3, result.ImagesGenerated)
	require.True(t, result.StyleGuideBootstrapped)

	guide, err := scene.LoadStyleGuide(dir.StyleGuidePath())
	require.NoError(t, err)
	require.Equal(t, "watercolor", guide.ArtStyle)
	require.Equal(t, "muted earth tones", guide.Palette)
}

func TestPhase_SkipsChapterNotYetAnalyzed(t *testing.T) {
	cat := scene.NewCatalog(t.TempDir() + "/Chapters.md")
	st := state.New(t.TempDir()+"/.state.json", "book.txt")

	phase, _ := newTestPhase(t, providers.NewMockClient(), providers.NewMockClient(), cat, st, Config{DisableStyleGuide: true})

	result, err := phase.Run(context.Background(), testDescriptor(), []int{1})
	require.NoError(t, err)
	require.Equal(t, []int{1}, result.Skipped)
	require.Empty(t, result.Completed)
}

func TestPhase_ResumeSkipsAlreadyIllustratedScenes(t *testing.T) {
	cat := scene.NewCatalog(t.TempDir() + "/Chapters.md")
	imgPath := t.TempDir() + "/existing.png"
	require.NoError(t, os.WriteFile(imgPath, []byte("already rendered"), 0o644))
	cat.SetScenes(1, "Dawn", []scene.Scene{
		{ChapterNumber: 1, Index: 1, Description: "A dragon rises.", ImagePath: imgPath},
		{ChapterNumber: 1, Index: 2, Description: "The dragon takes flight."},
	})

	st := state.New(t.TempDir()+"/.state.json", "book.txt")
	st.SetStatus("analyze", 1, state.StatusCompleted, "")

	imgClient := providers.NewMockClient()
	phase, _ := newTestPhase(t, providers.NewMockClient(), imgClient, cat, st, Config{DisableStyleGuide: true})

	result, err := phase.Run(context.Background(), testDescriptor(), []int{1})
	require.NoError(t, err)
	require.Equal(t, []int{1}, result.Completed)
	require.Equal(t, 1, result.ImagesGenerated)
	require.Equal(t, int64(1), imgClient.RequestCount())

	scenes, _ := cat.Scenes(1)
	require.Equal(t, imgPath, scenes[0].ImagePath)
	require.NotEmpty(t, scenes[1].ImagePath)
}

func TestPhase_FailureMarksChapterFailed(t *testing.T) {
	cat := scene.NewCatalog(t.TempDir() + "/Chapters.md")
	cat.SetScenes(1, "Dawn", []scene.Scene{
		{ChapterNumber: 1, Index: 1, Description: "A dragon rises."},
	})

	st := state.New(t.TempDir()+"/.state.json", "book.txt")
	st.SetStatus("analyze", 1, state.StatusCompleted, "")

	imgClient := providers.NewMockClient()
	imgClient.ShouldFail = true
	phase, _ := newTestPhase(t, providers.NewMockClient(), imgClient, cat, st, Config{DisableStyleGuide: true})

	_, err := phase.Run(context.Background(), testDescriptor(), []int{1})
	require.NoError(t, err)
	require.Equal(t, state.StatusFailed, st.Get(PhaseName, 1).Status)
}
