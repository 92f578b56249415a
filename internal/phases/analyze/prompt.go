package analyze

import (
	"encoding/json"
	"fmt"
	"math"
)

// PhaseName is the state-store phase key for Analyze.
const PhaseName = "analyze"

// DefaultPagesPerImage is used when a caller leaves PagesPerImage unset.
const DefaultPagesPerImage = 5

var analysisResponseSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "scenes": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "quote": {"type": "string"},
          "description": {"type": "string"},
          "reasoning": {"type": "string"}
        },
        "required": ["quote", "description"]
      }
    },
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
  "required": ["scenes", "elements"]
}`)

// sceneTarget returns the number of visual scenes to request for a
// chapter spanning pageCount pages, given pagesPerImage pages per
// scene. Always at least one.
func sceneTarget(pageCount, pagesPerImage int) int {
	if pagesPerImage <= 0 {
		pagesPerImage = DefaultPagesPerImage
	}
	if pageCount <= 0 {
		return 1
	}
	k := int(math.Ceil(float64(pageCount) / float64(pagesPerImage)))
	if k < 1 {
		k = 1
	}
	return k
}

// buildPrompt composes the unified analysis prompt asking for both
// scenes and elements in a single call, injecting known entity facts
// when elementContext is non-empty to bias the model toward
// consistency with earlier chapters.
func buildPrompt(chapterTitle, content string, sceneCount int, elementContext string) string {
	prompt := fmt.Sprintf(
		"You are analyzing one chapter of a book to prepare it for illustration.\n\n"+
			"Chapter: %q\n\n"+
			"Content:\n%s\n\n"+
			"Produce exactly two things in one JSON response:\n"+
			"1. \"scenes\": a dense list of %d distinct visual moments worth illustrating, "+
			"each with the exact source \"quote\" it is drawn from, a factual \"description\" "+
			"suitable for an image-generation prompt, and a short \"reasoning\" for why it was chosen.\n"+
			"2. \"elements\": an exhaustive list of named story elements appearing in this chapter "+
			"(characters, places, creatures, items, objects), each with a \"type\", \"name\", "+
			"a \"description\", and an optional supporting \"quote\".",
		chapterTitle, content, sceneCount)

	if elementContext != "" {
		prompt += "\n\nKnown elements from earlier chapters, for consistency:\n" + elementContext
	}
	return prompt
}
