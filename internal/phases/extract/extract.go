// Package extract implements Phase Extract: a whole-book entity pass
// that runs instead of, or to supplement, Phase Analyze's per-chapter
// view. Two strategies are offered: a single bulk call over the whole
// book text up to a byte cap, and an iterative per-chapter loop that
// feeds each chapter's extracted entities through the registry's
// matcher for a richer cross-chapter merge.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/illustra/internal/book"
	"github.com/jackzampolin/illustra/internal/entities"
	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/providers"
	"github.com/jackzampolin/illustra/internal/retryexec"
	"github.com/jackzampolin/illustra/internal/state"
)

// PhaseName is the state-store phase key for Extract.
const PhaseName = "extract"

// DefaultBulkCap is the default byte ceiling for the bulk strategy
// before iterative extraction takes over.
const DefaultBulkCap = 50_000

// Strategy selects which extraction approach to run.
type Strategy string

const (
	// StrategyAuto picks Bulk when the book's total content fits under
	// BulkCap and Iterative otherwise.
	StrategyAuto      Strategy = "auto"
	StrategyBulk      Strategy = "bulk"
	StrategyIterative Strategy = "iterative"
)

var extractResponseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "elements": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type": {"type": "string"},
          "name": {"type": "string"},
          "description": {"type": "string"},
          "quote": {"type": "string"}
        },
        "required": ["type", "name", "description"]
      }
    }
  },
  "required": ["elements"]
}`)

type elementJSON struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Quote       string `json:"quote"`
}

type extractResult struct {
	Elements []elementJSON `json:"elements"`
}

// Config wires Phase to the shared pipeline infrastructure.
type Config struct {
	LLM      providers.LLMClient
	Model    string
	Executor *retryexec.Executor

	Registry *entities.Registry
	Matcher  *entities.Matcher
	State    *state.Store
	Bus      *progress.Bus

	Strategy Strategy // defaults to StrategyAuto
	BulkCap  int      // defaults to DefaultBulkCap

	Logger *slog.Logger
}

// Phase runs Extract over a whole book.
type Phase struct {
	cfg Config
}

// New creates a Phase from cfg, applying defaults.
func New(cfg Config) *Phase {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyAuto
	}
	if cfg.BulkCap <= 0 {
		cfg.BulkCap = DefaultBulkCap
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Phase{cfg: cfg}
}

// Result summarizes one Run's outcome.
type Result struct {
	Strategy    Strategy
	NewEntities int
}

// Run extracts entities from every chapter in descriptor, choosing the
// bulk or iterative strategy per Config.
func (p *Phase) Run(ctx context.Context, descriptor book.Descriptor) (Result, error) {
	strategy := p.cfg.Strategy
	if strategy == StrategyAuto {
		strategy = p.chooseStrategy(descriptor)
	}

	p.cfg.Bus.Publish(progress.Event{
		Kind:    progress.KindPhaseStart,
		Phase:   PhaseName,
		Message: fmt.Sprintf("starting extract (%s strategy) over %d chapter(s)", strategy, len(descriptor.Chapters)),
	})

	var result Result
	result.Strategy = strategy

	var err error
	switch strategy {
	case StrategyBulk:
		result.NewEntities, err = p.runBulk(ctx, descriptor)
	default:
		result.NewEntities, err = p.runIterative(ctx, descriptor)
	}
	if err != nil {
		return result, err
	}

	for _, ch := range descriptor.Chapters {
		p.cfg.State.SetStatus(PhaseName, ch.Number, state.StatusCompleted, "")
	}
	return result, nil
}

func (p *Phase) chooseStrategy(descriptor book.Descriptor) Strategy {
	total := 0
	for _, ch := range descriptor.Chapters {
		total += len(ch.Content)
	}
	if total <= p.cfg.BulkCap {
		return StrategyBulk
	}
	return StrategyIterative
}

// runBulk concatenates chapter contents up to BulkCap and asks for a
// single consolidated entity list.
func (p *Phase) runBulk(ctx context.Context, descriptor book.Descriptor) (int, error) {
	blob := concatUpTo(descriptor.Chapters, p.cfg.BulkCap)
	elements, err := p.callExtract(ctx, blob, "the whole book")
	if err != nil {
		return 0, err
	}

	created := 0
	for _, el := range elements {
		_, isNew, err := p.cfg.Registry.Upsert(ctx, p.cfg.Matcher, entities.Candidate{
			Type:        entities.Type(el.Type),
			Name:        el.Name,
			Description: el.Description,
			Quote:       el.Quote,
		})
		if err != nil {
			return created, err
		}
		if isNew {
			created++
		}
	}
	return created, nil
}

// runIterative loops chapters once, extracting per-chapter and
// immediately feeding each candidate through the registry's matcher
// for a richer cross-chapter merge than a single bulk pass affords.
func (p *Phase) runIterative(ctx context.Context, descriptor book.Descriptor) (int, error) {
	created := 0
	for _, ch := range descriptor.Chapters {
		elements, err := p.callExtract(ctx, ch.Content, fmt.Sprintf("chapter %d (%s)", ch.Number, ch.Title))
		if err != nil {
			return created, err
		}
		for _, el := range elements {
			_, isNew, err := p.cfg.Registry.Upsert(ctx, p.cfg.Matcher, entities.Candidate{
				Type:        entities.Type(el.Type),
				Name:        el.Name,
				Description: el.Description,
				Chapter:     ch.Number,
				Quote:       el.Quote,
			})
			if err != nil {
				return created, err
			}
			if isNew {
				created++
			}
		}
	}
	return created, nil
}

func (p *Phase) callExtract(ctx context.Context, text, label string) ([]elementJSON, error) {
	prompt := fmt.Sprintf(
		"Read %s and produce an exhaustive list of named story elements "+
			"(characters, places, creatures, items, objects). For each, give "+
			"a \"type\", \"name\", a \"description\", and an optional supporting \"quote\".\n\n%s",
		label, text)

	var content string
	err := p.cfg.Executor.Do(ctx, "extract-"+label, func(ctx context.Context) error {
		result, callErr := p.cfg.LLM.Chat(ctx, &providers.ChatRequest{
			Model: p.cfg.Model,
			Messages: []providers.Message{
				{Role: "system", Content: "You catalog the named story elements of a book being illustrated."},
				{Role: "user", Content: prompt},
			},
			Temperature:    0.2,
			ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: extractResponseSchema},
		})
		if callErr != nil {
			return callErr
		}
		if !result.Success {
			return fmt.Errorf("extract: call for %s did not succeed: %s", label, result.ErrorMessage)
		}
		content = result.Content
		return nil
	})
	if err != nil {
		return nil, err
	}

	var parsed extractResult
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("extract: parse response for %s: %w", label, err)
	}
	return parsed.Elements, nil
}

// concatUpTo joins chapter contents in reading order until the byte
// cap is reached, stopping before exceeding it.
func concatUpTo(chapters []book.Chapter, capBytes int) string {
	var out []byte
	for _, ch := range chapters {
		if len(out)+len(ch.Content) > capBytes {
			remaining := capBytes - len(out)
			if remaining > 0 {
				out = append(out, ch.Content[:remaining]...)
			}
			break
		}
		out = append(out, ch.Content...)
		if len(out) < capBytes {
			out = append(out, '\n')
		}
	}
	return string(out)
}
