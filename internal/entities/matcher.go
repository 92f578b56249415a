package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/illustra/internal/providers"
)

// MatchThreshold is the default confidence at or above which a matcher
// verdict is trusted; below it the mention is treated as a new entity.
const MatchThreshold = 0.7

var matchResponseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "isMatch": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "reasoning": {"type": "string"}
  },
  "required": ["isMatch", "confidence", "reasoning"]
}`)

type matchResponse struct {
	IsMatch    bool    `json:"isMatch"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Matcher decides whether a newly mentioned entity is the same as one
// already in the registry, backed by an LLM call with a cached
// decision layer in front of it.
type Matcher struct {
	llm       providers.LLMClient
	cache     *MatchCache
	threshold float64
	logger    *slog.Logger
}

// NewMatcher creates a Matcher. A nil cache disables caching.
func NewMatcher(llm providers.LLMClient, cache *MatchCache, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{llm: llm, cache: cache, threshold: MatchThreshold, logger: logger}
}

// Match decides whether (typ, candidateName, candidateDescription) is
// the same entity as (existingName, existingDescription). On any
// matcher failure (call error, invalid JSON, schema violation) it falls
// back to exact lowercase name equality rather than blocking the
// pipeline, logging the degradation.
func (m *Matcher) Match(ctx context.Context, typ Type, candidateName, candidateDescription, existingName, existingDescription string) (MatchDecision, error) {
	key := Key(typ, candidateName, existingName)
	if m.cache != nil {
		if decision, ok := m.cache.Get(key); ok {
			return decision, nil
		}
	}

	decision, err := m.askModel(ctx, typ, candidateName, candidateDescription, existingName, existingDescription)
	if err != nil {
		m.logger.Warn("entity matcher call failed, falling back to exact-name match",
			"type", typ, "candidate", candidateName, "existing", existingName, "error", err)
		decision = MatchDecision{IsMatch: canonicalKey(candidateName) == canonicalKey(existingName), Confidence: 1}
	}

	if m.cache != nil {
		m.cache.Put(key, decision)
	}
	return decision, nil
}

func (m *Matcher) askModel(ctx context.Context, typ Type, candidateName, candidateDescription, existingName, existingDescription string) (MatchDecision, error) {
	prompt := fmt.Sprintf(
		"You are deduplicating story elements across chapters of a book being illustrated.\n"+
			"Element type: %s\n\n"+
			"Newly mentioned: %q\nDescription: %s\n\n"+
			"Already tracked: %q\nDescription: %s\n\n"+
			"Decide whether these refer to the same %s, accounting for aliases, nicknames,\n"+
			"titles, and partial names. Respond with the required JSON fields only.",
		typ, candidateName, candidateDescription, existingName, existingDescription, typ)

	result, err := m.llm.Chat(ctx, &providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: "You resolve entity coreference for a book illustration pipeline."},
			{Role: "user", Content: prompt},
		},
		Temperature:    0,
		ResponseFormat: &providers.ResponseFormat{Type: "json_schema", JSONSchema: matchResponseSchema},
	})
	if err != nil {
		return MatchDecision{}, err
	}
	if !result.Success || len(result.ParsedJSON) == 0 {
		return MatchDecision{}, fmt.Errorf("entities: matcher call did not produce structured output: %s", result.ErrorMessage)
	}

	var parsed matchResponse
	if err := json.Unmarshal(result.ParsedJSON, &parsed); err != nil {
		return MatchDecision{}, fmt.Errorf("entities: unmarshal matcher response: %w", err)
	}

	isMatch := parsed.IsMatch && parsed.Confidence >= m.threshold
	return MatchDecision{IsMatch: isMatch, Confidence: parsed.Confidence}, nil
}
