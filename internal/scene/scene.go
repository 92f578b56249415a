// Package scene holds the Image Concept (Scene) and Visual Style Guide
// types.
package scene

// Scene is a model-identified visual moment within a chapter.
type Scene struct {
	// ChapterNumber attaches this scene to its chapter.
	ChapterNumber int `json:"chapterNumber"`

	// Index is the scene's dense 1..K position within its chapter.
	Index int `json:"index"`

	// Quote is the exact source quote the scene was drawn from.
	Quote string `json:"quote"`

	// Description is a factual visual description suitable for an image
	// prompt.
	Description string `json:"description"`

	// Reasoning records why the model chose this moment as a scene.
	Reasoning string `json:"reasoning"`

	// EnrichedPrompt is Description plus a trailing character-details
	// block for every entity mentioned in it, set by Phase Enrich.
	// Empty until Enrich has processed this scene.
	EnrichedPrompt string `json:"enrichedPrompt,omitempty"`

	// ImagePath is set once the scene has been illustrated.
	ImagePath string `json:"imagePath,omitempty"`
}

// Illustrated reports whether the scene has a rendered image on disk.
func (s Scene) Illustrated() bool {
	return s.ImagePath != ""
}

// StyleGuide is the structured art-direction summary derived from the
// bootstrap images.
type StyleGuide struct {
	ArtStyle    string `json:"artStyle"`
	Palette     string `json:"palette"`
	Lighting    string `json:"lighting"`
	Mood        string `json:"mood"`
	Composition string `json:"composition"`
}

// PromptBlock renders the style guide as the block appended to later
// image prompts.
func (g StyleGuide) PromptBlock() string {
	if g == (StyleGuide{}) {
		return ""
	}
	return "Visual style: " + g.ArtStyle +
		". Palette: " + g.Palette +
		". Lighting: " + g.Lighting +
		". Mood: " + g.Mood +
		". Composition: " + g.Composition + "."
}
