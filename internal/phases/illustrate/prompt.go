package illustrate

import (
	"encoding/json"
	"strings"

	"github.com/jackzampolin/illustra/internal/scene"
)

// PhaseName is the state-store phase key for Illustrate.
const PhaseName = "illustrate"

// DefaultStyleBootstrapCount is used when a caller leaves
// StyleBootstrapCount unset.
const DefaultStyleBootstrapCount = 3

const consistencyReminder = "Maintain visual consistency with previously generated illustrations of this book."

var styleGuideResponseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "artStyle": {"type": "string"},
    "palette": {"type": "string"},
    "lighting": {"type": "string"},
    "mood": {"type": "string"},
    "composition": {"type": "string"}
  },
  "required": ["artStyle", "palette", "lighting", "mood", "composition"]
}`)

const styleGuidePrompt = "These are the first illustrations generated for a book. " +
	"Summarize their shared visual style as a concise style guide so future " +
	"illustrations stay consistent with them. Respond with the required JSON fields only."

// composePrompt builds the final image prompt: the scene's base
// description (already carrying any character-details block Phase
// Enrich appended), the style guide block when one has been
// bootstrapped, and a trailing consistency reminder.
func composePrompt(base string, guide scene.StyleGuide) string {
	var b strings.Builder
	b.WriteString(base)
	if block := guide.PromptBlock(); block != "" {
		b.WriteString("\n\n")
		b.WriteString(block)
	}
	b.WriteString("\n\n")
	b.WriteString(consistencyReminder)
	return b.String()
}

// sceneBase returns the text to illustrate: the enriched prompt if
// Phase Enrich has run over this scene, otherwise the raw description.
func sceneBase(s scene.Scene) string {
	if s.EnrichedPrompt != "" {
		return s.EnrichedPrompt
	}
	return s.Description
}

type styleGuideJSON struct {
	ArtStyle    string `json:"artStyle"`
	Palette     string `json:"palette"`
	Lighting    string `json:"lighting"`
	Mood        string `json:"mood"`
	Composition string `json:"composition"`
}

func (g styleGuideJSON) toStyleGuide() scene.StyleGuide {
	return scene.StyleGuide{
		ArtStyle:    g.ArtStyle,
		Palette:     g.Palette,
		Lighting:    g.Lighting,
		Mood:        g.Mood,
		Composition: g.Composition,
	}
}
