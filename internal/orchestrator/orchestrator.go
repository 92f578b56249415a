// Package orchestrator sequences the four illustration phases over one
// book: analyze, extract, enrich, illustrate. It owns chapter-selection
// mapping and the clear-errors/retry-failed control actions; each
// phase's own Config carries the tunables (Force, SkipFailed, and
// enrich's entity filter) that only make sense fixed for the lifetime
// of one run.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jackzampolin/illustra/internal/book"
	"github.com/jackzampolin/illustra/internal/phases/analyze"
	"github.com/jackzampolin/illustra/internal/phases/enrich"
	"github.com/jackzampolin/illustra/internal/phases/extract"
	"github.com/jackzampolin/illustra/internal/phases/illustrate"
	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/state"
)

// Config wires an Orchestrator to one book and its phases. A nil phase
// field is only an error if Options later asks to run it.
type Config struct {
	Descriptor book.Descriptor
	State      *state.Store
	Bus        *progress.Bus

	Analyze    *analyze.Phase
	Extract    *extract.Phase
	Enrich     *enrich.Phase
	Illustrate *illustrate.Phase

	// Out receives the orchestrator's own user-facing output (the
	// clear-errors confirmation line). Defaults to os.Stdout.
	Out io.Writer
}

// Orchestrator runs one book through its selected phases.
type Orchestrator struct {
	cfg Config
}

// New creates an Orchestrator from cfg, applying defaults.
func New(cfg Config) *Orchestrator {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	return &Orchestrator{cfg: cfg}
}

// Options is one invocation's CLI-derived request.
type Options struct {
	RunText      bool // --text: analyze
	RunElements  bool // --elements: extract
	RunEnrich    bool // --enrich
	RunImages    bool // --images: illustrate

	// ChapterSelection is the raw --chapters syntax (reading-order
	// positions and ranges). Empty selects every chapter in the book.
	ChapterSelection string
	// Limit caps the number of chapters scheduled, applied after
	// chapter selection. Zero or negative means no cap.
	Limit int

	// Continue resumes from state: it changes nothing by itself, since
	// every phase already skips chapters completed in a prior run
	// unless that phase's Config.Force is set. The flag exists so a
	// caller can require it be passed explicitly alongside --force,
	// matching the CLI's documented control surface.
	Continue bool

	// RetryFailed clears failed status (not pending/completed) for the
	// phases about to run, scoped to each phase individually, before
	// scheduling.
	RetryFailed bool

	// ClearErrors clears failed status across every phase and prints
	// the confirmation line, independent of which phases this
	// invocation goes on to run.
	ClearErrors bool
}

// Summary reports what one Run did.
type Summary struct {
	ChapterNumbers []int
	ClearedErrors  int

	Analyze    *analyze.Result
	Extract    *extract.Result
	Enrich     *enrich.Result
	Illustrate *illustrate.Result
}

// Run resolves chapter selection and executes every phase Options asks
// for, in the fixed order analyze, extract, enrich, illustrate. A
// phase's own failure (an error return, not a per-chapter failed
// status) halts the run; per-chapter failures are recorded in state and
// reported in the returned Summary without halting unless that phase
// was configured with SkipFailed false.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (Summary, error) {
	var summary Summary

	if opts.ClearErrors {
		summary.ClearedErrors = o.cfg.State.ClearErrors("")
		fmt.Fprintf(o.cfg.Out, "Cleared %d failed chapter(s) for retry\n", summary.ClearedErrors)
	}

	runText, runElements, runEnrich, runImages := opts.RunText, opts.RunElements, opts.RunEnrich, opts.RunImages
	if !runText && !runElements && !runEnrich && !runImages {
		runText = true
	}

	chapterNumbers, err := o.resolveChapters(opts)
	if err != nil {
		return summary, err
	}
	summary.ChapterNumbers = chapterNumbers

	if opts.RetryFailed {
		for _, name := range selectedPhaseNames(runText, runElements, runEnrich, runImages) {
			o.cfg.State.ClearErrors(name)
		}
	}

	if runText {
		if o.cfg.Analyze == nil {
			return summary, fmt.Errorf("orchestrator: --text requested but no analyze phase is configured")
		}
		res, err := o.cfg.Analyze.Run(ctx, o.cfg.Descriptor, chapterNumbers)
		summary.Analyze = &res
		if err != nil {
			return summary, fmt.Errorf("orchestrator: analyze: %w", err)
		}
	}

	if runElements {
		if o.cfg.Extract == nil {
			return summary, fmt.Errorf("orchestrator: --elements requested but no extract phase is configured")
		}
		res, err := o.cfg.Extract.Run(ctx, o.cfg.Descriptor)
		summary.Extract = &res
		if err != nil {
			return summary, fmt.Errorf("orchestrator: extract: %w", err)
		}
	}

	if runEnrich {
		if o.cfg.Enrich == nil {
			return summary, fmt.Errorf("orchestrator: --enrich requested but no enrich phase is configured")
		}
		res, err := o.cfg.Enrich.Run(o.cfg.Descriptor, chapterNumbers)
		summary.Enrich = &res
		if err != nil {
			return summary, fmt.Errorf("orchestrator: enrich: %w", err)
		}
	}

	if runImages {
		if o.cfg.Illustrate == nil {
			return summary, fmt.Errorf("orchestrator: --images requested but no illustrate phase is configured")
		}
		res, err := o.cfg.Illustrate.Run(ctx, o.cfg.Descriptor, chapterNumbers)
		summary.Illustrate = &res
		if err != nil {
			return summary, fmt.Errorf("orchestrator: illustrate: %w", err)
		}
	}

	return summary, nil
}

// resolveChapters maps opts' --chapters/--limit selection to dense
// chapter numbers. An empty selection means the whole book.
func (o *Orchestrator) resolveChapters(opts Options) ([]int, error) {
	var numbers []int
	if opts.ChapterSelection == "" {
		numbers = o.cfg.Descriptor.AllNumbers()
	} else {
		positions, err := book.ParseChapterSelection(opts.ChapterSelection)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: %w", err)
		}
		numbers = o.cfg.Descriptor.ResolveSelection(positions)
	}

	if opts.Limit > 0 && len(numbers) > opts.Limit {
		numbers = numbers[:opts.Limit]
	}
	return numbers, nil
}

// selectedPhaseNames returns the state-store phase keys for whichever
// of the four phases this run is about to execute, for scoping
// --retry-failed's ClearErrors calls.
func selectedPhaseNames(runText, runElements, runEnrich, runImages bool) []string {
	var names []string
	if runText {
		names = append(names, analyze.PhaseName)
	}
	if runElements {
		names = append(names, extract.PhaseName)
	}
	if runEnrich {
		names = append(names, enrich.PhaseName)
	}
	if runImages {
		names = append(names, illustrate.PhaseName)
	}
	return names
}
