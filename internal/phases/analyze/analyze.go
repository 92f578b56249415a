// Package analyze implements Phase Analyze: for each selected chapter,
// a single model call produces both the chapter's visual scenes and
// its story elements, scheduled across a bounded worker pool.
package analyze

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/illustra/internal/book"
	"github.com/jackzampolin/illustra/internal/entities"
	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/providers"
	"github.com/jackzampolin/illustra/internal/retryexec"
	"github.com/jackzampolin/illustra/internal/scene"
	"github.com/jackzampolin/illustra/internal/state"
)

// DefaultConcurrency matches the pipeline's default worker pool width.
const DefaultConcurrency = 3

// Config wires Phase to the shared pipeline infrastructure. All fields
// are required except where noted.
type Config struct {
	LLM      providers.LLMClient
	Model    string
	Executor *retryexec.Executor

	Registry *entities.Registry
	Matcher  *entities.Matcher // may be nil to disable matcher-backed dedup
	State    *state.Store
	Bus      *progress.Bus
	Catalog  *scene.Catalog

	Concurrency   int // defaults to DefaultConcurrency
	PagesPerImage int // defaults to DefaultPagesPerImage

	// Force reprocesses chapters already completed in this phase.
	Force bool
	// SkipFailed continues scheduling remaining chapters after a
	// chapter failure instead of halting the run.
	SkipFailed bool

	Logger *slog.Logger
}

// Phase runs Analyze over a selected chapter set.
type Phase struct {
	cfg Config
}

// New creates a Phase from cfg, applying defaults.
func New(cfg Config) *Phase {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PagesPerImage <= 0 {
		cfg.PagesPerImage = DefaultPagesPerImage
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Phase{cfg: cfg}
}

// Result summarizes one Run's outcome.
type Result struct {
	Completed []int
	Failed    []int
	Skipped   []int
}

// Run schedules chapterNumbers (any order; processed in ascending
// order) from descriptor through the worker pool. A chapter already
// completed in this phase is skipped unless Force is set. The first
// unrecoverable chapter failure halts remaining scheduling unless
// SkipFailed is set.
func (p *Phase) Run(ctx context.Context, descriptor book.Descriptor, chapterNumbers []int) (Result, error) {
	ordered := ascending(chapterNumbers)

	p.cfg.Bus.Publish(progress.Event{
		Kind:    progress.KindPhaseStart,
		Phase:   PhaseName,
		Message: fmt.Sprintf("starting analyze for %d chapter(s)", len(ordered)),
	})

	var result Result
	var mu resultMutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)

	halted := haltFlag{}
	for _, num := range ordered {
		num := num
		if halted.isSet() {
			mu.appendSkipped(&result, num)
			continue
		}

		ch, ok := descriptor.ByNumber(num)
		if !ok {
			return result, fmt.Errorf("analyze: book has no chapter numbered %d", num)
		}

		if !p.cfg.Force && p.cfg.State.Get(PhaseName, num).Status == state.StatusCompleted {
			mu.appendSkipped(&result, num)
			continue
		}

		g.Go(func() error {
			if halted.isSet() {
				mu.appendSkipped(&result, num)
				return nil
			}
			err := p.processChapter(gctx, ch)
			if err != nil {
				mu.appendFailed(&result, num)
				if !p.cfg.SkipFailed {
					halted.set()
				}
				return nil
			}
			mu.appendCompleted(&result, num)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}

func (p *Phase) processChapter(ctx context.Context, ch book.Chapter) error {
	p.cfg.State.SetStatus(PhaseName, ch.Number, state.StatusInProgress, "")
	p.cfg.Bus.Publish(progress.Event{
		Kind:    progress.KindChapterStart,
		Phase:   PhaseName,
		Chapter: ch.Number,
		Message: fmt.Sprintf("analyzing chapter %d: %s", ch.Number, ch.Title),
		Data:    map[string]any{"chapterTitle": ch.Title},
	})

	elementContext := p.elementContext(ch.Content)
	sceneCount := sceneTarget(ch.PageCount(), p.cfg.PagesPerImage)
	prompt := buildPrompt(ch.Title, ch.Content, sceneCount, elementContext)

	var content string
	err := p.cfg.Executor.Do(ctx, fmt.Sprintf("analyze-chapter-%d", ch.Number), func(ctx context.Context) error {
		result, callErr := p.cfg.LLM.Chat(ctx, &providers.ChatRequest{
			Model: p.cfg.Model,
			Messages: []providers.Message{
				{Role: "system", Content: "You are a careful literary analyst preparing a book for illustration."},
				{Role: "user", Content: prompt},
			},
			Temperature:    0.2,
			ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: analysisResponseSchema},
		})
		if callErr != nil {
			return callErr
		}
		if !result.Success {
			return fmt.Errorf("analyze: chapter %d call did not succeed: %s", ch.Number, result.ErrorMessage)
		}
		content = result.Content
		return nil
	})
	if err != nil {
		p.fail(ch.Number, err)
		return err
	}

	parsed, err := parseResponse([]byte(content))
	if err != nil {
		p.fail(ch.Number, err)
		return err
	}

	p.cfg.Bus.Publish(progress.Event{
		Kind:    progress.KindProgress,
		Phase:   PhaseName,
		Chapter: ch.Number,
		Message: fmt.Sprintf("chapter %d: parsed %d scene(s) and %d element(s), updating registry", ch.Number, len(parsed.Scenes), len(parsed.Elements)),
		Data:    map[string]any{"chapterTitle": ch.Title},
	})

	for _, el := range parsed.Elements {
		_, _, upsertErr := p.cfg.Registry.Upsert(ctx, p.cfg.Matcher, entities.Candidate{
			Type:        entities.Type(el.Type),
			Name:        el.Name,
			Description: el.Description,
			Chapter:     ch.Number,
			Quote:       el.Quote,
		})
		if upsertErr != nil {
			p.fail(ch.Number, upsertErr)
			return upsertErr
		}
	}

	scenes := make([]scene.Scene, 0, len(parsed.Scenes))
	for i, s := range parsed.Scenes {
		scenes = append(scenes, scene.Scene{
			ChapterNumber: ch.Number,
			Index:         i + 1,
			Quote:         s.Quote,
			Description:   s.Description,
			Reasoning:     s.Reasoning,
		})
	}
	p.cfg.Catalog.SetScenes(ch.Number, ch.Title, scenes)

	p.cfg.State.SetStatus(PhaseName, ch.Number, state.StatusCompleted, "")
	p.cfg.Bus.Publish(progress.Event{
		Kind:    progress.KindChapterComplete,
		Phase:   PhaseName,
		Chapter: ch.Number,
		Message: fmt.Sprintf("chapter %d analyzed: %d scene(s), %d element(s)", ch.Number, len(scenes), len(parsed.Elements)),
		Data:    map[string]any{"conceptsFound": len(scenes), "chapterTitle": ch.Title},
	})
	return nil
}

func (p *Phase) fail(chapter int, cause error) {
	p.cfg.State.SetStatus(PhaseName, chapter, state.StatusFailed, cause.Error())
	p.cfg.Bus.Publish(progress.Event{
		Kind:     progress.KindChapterComplete,
		Severity: progress.SeverityError,
		Phase:    PhaseName,
		Chapter:  chapter,
		Message:  fmt.Sprintf("chapter %d failed: %v", chapter, cause),
	})
}

// elementContext renders a short "known elements" block for any entity
// already mentioned in the chapter's own text, biasing the model
// toward reusing established names instead of inventing variants.
func (p *Phase) elementContext(content string) string {
	mentions := p.cfg.Registry.GetMentions(content)
	if len(mentions) == 0 {
		return ""
	}
	out := ""
	for _, e := range mentions {
		out += fmt.Sprintf("- %s (%s): %s\n", e.Name, e.Type, e.Description)
	}
	return out
}

func ascending(nums []int) []int {
	out := make([]int, len(nums))
	copy(out, nums)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
