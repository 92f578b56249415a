package illustrate

import "github.com/jackzampolin/illustra/internal/scene"

// target is one scene queued for illustration, with enough chapter
// context to compose its prompt and output path without a second
// catalog lookup.
type target struct {
	ChapterNum int
	Title      string
	Scene      scene.Scene
}

// buildTargets collects every scene across chapterNumbers (in the
// order given) that still needs an image, skipping already-illustrated
// scenes unless force is set.
func buildTargets(catalog *scene.Catalog, chapterNumbers []int, force bool) []target {
	var out []target
	for _, num := range chapterNumbers {
		scenes, ok := catalog.Scenes(num)
		if !ok {
			continue
		}
		title, _ := catalog.Title(num)
		for _, s := range scenes {
			if !force && s.Illustrated() {
				continue
			}
			out = append(out, target{ChapterNum: num, Title: title, Scene: s})
		}
	}
	return out
}

// countIllustrated returns how many scenes across the whole catalog
// already have a rendered image, used to resume an interrupted style
// bootstrap without a dedicated counter in the state document.
func countIllustrated(catalog *scene.Catalog) int {
	count := 0
	for _, num := range catalog.ChapterNumbers() {
		scenes, _ := catalog.Scenes(num)
		for _, s := range scenes {
			if s.Illustrated() {
				count++
			}
		}
	}
	return count
}
