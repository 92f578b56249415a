// Package enrich implements Phase Enrich: for every scene produced by
// Phase Analyze, append a structured block of facts about any entity
// mentioned in the scene's description. This phase makes no AI calls
// and is idempotent — re-running it over unchanged scenes and an
// unchanged registry reproduces the same enriched prompts.
package enrich

import (
	"fmt"

	"github.com/jackzampolin/illustra/internal/book"
	"github.com/jackzampolin/illustra/internal/entities"
	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/scene"
	"github.com/jackzampolin/illustra/internal/state"
)

// PhaseName is the state-store phase key for Enrich.
const PhaseName = "enrich"

// Config wires Phase to the shared pipeline infrastructure.
type Config struct {
	Registry *entities.Registry
	State    *state.Store
	Bus      *progress.Bus
	Catalog  *scene.Catalog

	// Filter, when non-nil, restricts the character-details block to
	// entities matching the CLI's --elements-filter.
	Filter *book.ElementsFilter
}

// Phase runs Enrich over a selected chapter set.
type Phase struct {
	cfg Config
}

// New creates a Phase from cfg.
func New(cfg Config) *Phase {
	return &Phase{cfg: cfg}
}

// matcher adapts cfg.Filter into the closure EnrichPromptFiltered expects.
func (p *Phase) matcher() func(entityType, entityName string) bool {
	if p.cfg.Filter == nil {
		return nil
	}
	filter := *p.cfg.Filter
	return func(entityType, entityName string) bool {
		return filter.Matches(entityType, entityName)
	}
}

// Result summarizes one Run's outcome.
type Result struct {
	Enriched []int // chapter numbers whose scenes were enriched
	Skipped  []int // chapter numbers without a completed analyze pass
}

// Run enriches every scene of each chapter in chapterNumbers that has
// completed Phase Analyze; chapters not yet analyzed are skipped, not
// failed, since Enrich has nothing to read for them yet.
func (p *Phase) Run(descriptor book.Descriptor, chapterNumbers []int) (Result, error) {
	p.cfg.Bus.Publish(progress.Event{
		Kind:    progress.KindPhaseStart,
		Phase:   PhaseName,
		Message: fmt.Sprintf("starting enrich for %d chapter(s)", len(chapterNumbers)),
	})

	var result Result
	for _, num := range chapterNumbers {
		if p.cfg.State.Get("analyze", num).Status != state.StatusCompleted {
			result.Skipped = append(result.Skipped, num)
			continue
		}

		if _, ok := descriptor.ByNumber(num); !ok {
			return result, fmt.Errorf("enrich: book has no chapter numbered %d", num)
		}

		scenes, ok := p.cfg.Catalog.Scenes(num)
		if !ok {
			result.Skipped = append(result.Skipped, num)
			continue
		}

		p.cfg.Bus.Publish(progress.Event{
			Kind:    progress.KindChapterStart,
			Phase:   PhaseName,
			Chapter: num,
			Message: fmt.Sprintf("enriching %d scene(s) in chapter %d", len(scenes), num),
		})

		match := p.matcher()
		for _, s := range scenes {
			s.EnrichedPrompt = p.cfg.Registry.EnrichPromptFiltered(s.Description, match)
			if err := p.cfg.Catalog.SetScene(num, s.Index, s); err != nil {
				return result, err
			}
		}

		p.cfg.State.SetStatus(PhaseName, num, state.StatusCompleted, "")
		p.cfg.Bus.Publish(progress.Event{
			Kind:    progress.KindChapterComplete,
			Phase:   PhaseName,
			Chapter: num,
			Message: fmt.Sprintf("chapter %d enriched", num),
		})
		result.Enriched = append(result.Enriched, num)
	}

	return result, nil
}
