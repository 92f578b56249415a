// Package illustrate implements Phase Illustrate: renders each
// outstanding scene to an image file. The first few scenes across the
// whole book (StyleBootstrapCount of them) are generated without a
// style guide and then summarized into one via a vision call; every
// later scene carries that style guide's block in its prompt so the
// book's illustrations read as one consistent set. Once a style guide
// has been persisted to disk, the bootstrap never runs again.
package illustrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/illustra/internal/atomicfile"
	"github.com/jackzampolin/illustra/internal/book"
	"github.com/jackzampolin/illustra/internal/outdir"
	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/providers"
	"github.com/jackzampolin/illustra/internal/retryexec"
	"github.com/jackzampolin/illustra/internal/scene"
	"github.com/jackzampolin/illustra/internal/state"
)

// DefaultConcurrency matches the pipeline's default worker pool width.
const DefaultConcurrency = 3

// Config wires Phase to the shared pipeline infrastructure.
type Config struct {
	// LLM must be vision-capable: it is used only for the style-guide
	// bootstrap synthesis call, which attaches generated images.
	LLM         providers.LLMClient
	Model       string
	ImageClient providers.ImageClient
	ImageModel  string

	Executor *retryexec.Executor
	State    *state.Store
	Bus      *progress.Bus
	Catalog  *scene.Catalog
	OutDir   *outdir.Dir

	Concurrency int // defaults to DefaultConcurrency

	// StyleBootstrapCount is how many images open the one-shot style
	// guide gate. A zero value is treated as unset and defaults to
	// DefaultStyleBootstrapCount, matching every other numeric tunable
	// on these phase configs; set DisableStyleGuide to actually turn
	// the bootstrap off.
	StyleBootstrapCount int
	// DisableStyleGuide skips the bootstrap and style guide entirely:
	// every scene is illustrated from its bare prompt.
	DisableStyleGuide bool

	// Force regenerates scenes that already have an image on disk.
	Force bool
	// SkipFailed continues scheduling remaining scenes after a scene
	// failure instead of halting the run.
	SkipFailed bool

	Logger *slog.Logger
}

// Phase runs Illustrate over a selected chapter set.
type Phase struct {
	cfg Config
}

// New creates a Phase from cfg, applying defaults.
func New(cfg Config) *Phase {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.StyleBootstrapCount == 0 {
		cfg.StyleBootstrapCount = DefaultStyleBootstrapCount
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Phase{cfg: cfg}
}

// Result summarizes one Run's outcome.
type Result struct {
	Completed              []int // chapters whose scenes are all illustrated
	Failed                 []int // chapters with at least one failed scene
	Skipped                []int // chapters not yet completed in analyze
	ImagesGenerated        int
	StyleGuideBootstrapped bool
}

// Run renders every outstanding scene across chapterNumbers. A chapter
// not yet completed in Phase Analyze is skipped, not failed, since
// Illustrate has nothing to read for it yet.
func (p *Phase) Run(ctx context.Context, descriptor book.Descriptor, chapterNumbers []int) (Result, error) {
	ordered := ascending(chapterNumbers)

	var result Result
	var included []int
	for _, num := range ordered {
		if p.cfg.State.Get("analyze", num).Status != state.StatusCompleted {
			result.Skipped = append(result.Skipped, num)
			continue
		}
		if _, ok := descriptor.ByNumber(num); !ok {
			return result, fmt.Errorf("illustrate: book has no chapter numbered %d", num)
		}
		included = append(included, num)
	}

	p.cfg.Bus.Publish(progress.Event{
		Kind:    progress.KindPhaseStart,
		Phase:   PhaseName,
		Message: fmt.Sprintf("starting illustrate for %d chapter(s)", len(included)),
	})

	targets := buildTargets(p.cfg.Catalog, included, p.cfg.Force)
	tracker := newChapterTracker(included, targets)
	var resMu sync.Mutex

	// Chapters whose scenes were all already illustrated need no work
	// but still complete the phase for that chapter.
	for _, num := range included {
		if tracker.done(num) {
			p.completeChapter(num, &result, &resMu)
		}
	}

	guide, haveGuide, err := p.loadStyleGuide()
	if err != nil {
		return result, err
	}

	remaining := targets
	if !haveGuide && !p.cfg.DisableStyleGuide {
		remaining, err = p.runBootstrap(ctx, targets, tracker, &result, &resMu)
		if err != nil {
			return result, err
		}
		guide, haveGuide, err = p.loadStyleGuide()
		if err != nil {
			return result, err
		}
	}

	if err := p.runPool(ctx, remaining, guide, tracker, &result, &resMu); err != nil {
		return result, err
	}

	result.StyleGuideBootstrapped = haveGuide
	return result, nil
}

func (p *Phase) loadStyleGuide() (scene.StyleGuide, bool, error) {
	guide, err := scene.LoadStyleGuide(p.cfg.OutDir.StyleGuidePath())
	if err == nil {
		return guide, true, nil
	}
	if os.IsNotExist(err) {
		return scene.StyleGuide{}, false, nil
	}
	return scene.StyleGuide{}, false, fmt.Errorf("illustrate: load style guide: %w", err)
}

// runBootstrap generates, serially and without a style guide, however
// many scenes are still needed to reach StyleBootstrapCount images
// across the whole book, then synthesizes and persists the guide. It
// returns the targets not consumed by the bootstrap. If generating the
// full count of images isn't possible (the book has fewer scenes than
// the bootstrap count), the guide is synthesized from however many
// images exist once every target has been processed.
func (p *Phase) runBootstrap(ctx context.Context, targets []target, tracker *chapterTracker, result *Result, resMu *sync.Mutex) ([]target, error) {
	done := countIllustrated(p.cfg.Catalog)
	need := p.cfg.StyleBootstrapCount - done
	if need < 0 {
		need = 0
	}
	if need > len(targets) {
		need = len(targets)
	}

	batch, rest := targets[:need], targets[need:]
	for _, t := range batch {
		if err := p.generateScene(ctx, t, scene.StyleGuide{}, tracker, result, resMu); err != nil {
			// Leaves the style guide file absent; the next Run recomputes
			// need from however many bootstrap images actually landed.
			return rest, err
		}
	}

	guide, err := p.synthesizeStyleGuide(ctx)
	if err != nil {
		return rest, err
	}
	if err := scene.SaveStyleGuide(p.cfg.OutDir.StyleGuidePath(), guide); err != nil {
		return rest, fmt.Errorf("illustrate: save style guide: %w", err)
	}
	return rest, nil
}

func (p *Phase) synthesizeStyleGuide(ctx context.Context) (scene.StyleGuide, error) {
	images, err := collectBootstrapImages(p.cfg.Catalog, p.cfg.StyleBootstrapCount)
	if err != nil {
		return scene.StyleGuide{}, err
	}

	var content string
	err = p.cfg.Executor.Do(ctx, "illustrate-style-guide-synthesis", func(ctx context.Context) error {
		res, callErr := p.cfg.LLM.Chat(ctx, &providers.ChatRequest{
			Model: p.cfg.Model,
			Messages: []providers.Message{
				{Role: "user", Content: styleGuidePrompt, Images: images},
			},
			Temperature:    0.2,
			ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: styleGuideResponseSchema},
		})
		if callErr != nil {
			return callErr
		}
		if !res.Success {
			return fmt.Errorf("illustrate: style guide synthesis did not succeed: %s", res.ErrorMessage)
		}
		content = res.Content
		return nil
	})
	if err != nil {
		return scene.StyleGuide{}, err
	}

	var parsed styleGuideJSON
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return scene.StyleGuide{}, fmt.Errorf("illustrate: parse style guide response: %w", err)
	}
	return parsed.toStyleGuide(), nil
}

func collectBootstrapImages(catalog *scene.Catalog, count int) ([][]byte, error) {
	var out [][]byte
	for _, num := range catalog.ChapterNumbers() {
		scenes, _ := catalog.Scenes(num)
		for _, s := range scenes {
			if !s.Illustrated() {
				continue
			}
			data, err := os.ReadFile(s.ImagePath)
			if err != nil {
				return nil, fmt.Errorf("illustrate: read bootstrap image %s: %w", s.ImagePath, err)
			}
			out = append(out, data)
			if len(out) >= count {
				return out, nil
			}
		}
	}
	return out, nil
}

func (p *Phase) runPool(ctx context.Context, targets []target, guide scene.StyleGuide, tracker *chapterTracker, result *Result, resMu *sync.Mutex) error {
	if len(targets) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	halted := haltFlag{}

	for _, t := range targets {
		t := t
		if halted.isSet() {
			continue
		}
		g.Go(func() error {
			if halted.isSet() {
				return nil
			}
			if err := p.generateScene(gctx, t, guide, tracker, result, resMu); err != nil && !p.cfg.SkipFailed {
				halted.set()
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Phase) generateScene(ctx context.Context, t target, guide scene.StyleGuide, tracker *chapterTracker, result *Result, resMu *sync.Mutex) error {
	prompt := composePrompt(sceneBase(t.Scene), guide)

	var imgData []byte
	err := p.cfg.Executor.Do(ctx, fmt.Sprintf("illustrate-chapter-%d-scene-%d", t.ChapterNum, t.Scene.Index), func(ctx context.Context) error {
		res, callErr := p.cfg.ImageClient.GenerateImage(ctx, &providers.ImageRequest{
			Prompt: prompt,
			Model:  p.cfg.ImageModel,
		})
		if callErr != nil {
			return callErr
		}
		if !res.Success {
			return fmt.Errorf("illustrate: chapter %d scene %d image call did not succeed: %s", t.ChapterNum, t.Scene.Index, res.ErrorMessage)
		}
		imgData = res.ImageData
		return nil
	})
	if err != nil {
		p.failScene(t.ChapterNum, err, tracker, result, resMu)
		return err
	}

	path := p.cfg.OutDir.ImagePath(t.ChapterNum, scene.Slugify(t.Title), t.Scene.Index)
	if err := atomicfile.Write(path, imgData, 0o644); err != nil {
		p.failScene(t.ChapterNum, err, tracker, result, resMu)
		return err
	}

	updated := t.Scene
	updated.ImagePath = path
	if err := p.cfg.Catalog.SetScene(t.ChapterNum, t.Scene.Index, updated); err != nil {
		p.failScene(t.ChapterNum, err, tracker, result, resMu)
		return err
	}

	p.cfg.Bus.Publish(progress.Event{
		Kind:    progress.KindImageComplete,
		Phase:   PhaseName,
		Chapter: t.ChapterNum,
		Message: fmt.Sprintf("chapter %d scene %d illustrated", t.ChapterNum, t.Scene.Index),
	})
	resMu.Lock()
	result.ImagesGenerated++
	resMu.Unlock()

	if tracker.recordSuccess(t.ChapterNum) {
		p.completeChapter(t.ChapterNum, result, resMu)
	}
	return nil
}

func (p *Phase) failScene(chapterNum int, cause error, tracker *chapterTracker, result *Result, resMu *sync.Mutex) {
	tracker.recordFailure(chapterNum)
	p.cfg.State.SetStatus(PhaseName, chapterNum, state.StatusFailed, cause.Error())
	p.cfg.Bus.Publish(progress.Event{
		Kind:     progress.KindChapterComplete,
		Severity: progress.SeverityError,
		Phase:    PhaseName,
		Chapter:  chapterNum,
		Message:  fmt.Sprintf("chapter %d illustration failed: %v", chapterNum, cause),
	})
	resMu.Lock()
	if !containsInt(result.Failed, chapterNum) {
		result.Failed = append(result.Failed, chapterNum)
	}
	resMu.Unlock()
}

func (p *Phase) completeChapter(chapterNum int, result *Result, resMu *sync.Mutex) {
	p.cfg.State.SetStatus(PhaseName, chapterNum, state.StatusCompleted, "")
	p.cfg.Bus.Publish(progress.Event{
		Kind:    progress.KindChapterComplete,
		Phase:   PhaseName,
		Chapter: chapterNum,
		Message: fmt.Sprintf("chapter %d illustrated", chapterNum),
	})
	resMu.Lock()
	result.Completed = append(result.Completed, chapterNum)
	resMu.Unlock()
}
