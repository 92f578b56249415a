package scene

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jackzampolin/illustra/internal/atomicfile"
	"github.com/jackzampolin/illustra/internal/filelock"
)

// ChapterScenes is the scene catalog for one chapter.
type ChapterScenes struct {
	Number int     `json:"number"`
	Title  string  `json:"title"`
	Scenes []Scene `json:"scenes"`
}

// Catalog is the in-memory, disk-backed scene catalog for a whole
// book. It is the stable parseable format Chapters.md documents: the
// regenerate-specific-scene code path round-trips through this exact
// shape, so Save and Load must stay in lockstep.
type Catalog struct {
	mu       sync.RWMutex
	path     string
	chapters map[int]*ChapterScenes
}

// NewCatalog creates an empty, unpersisted Catalog.
func NewCatalog(path string) *Catalog {
	return &Catalog{path: path, chapters: make(map[int]*ChapterScenes)}
}

// SetScenes replaces the scene list for a chapter.
func (c *Catalog) SetScenes(chapterNum int, title string, scenes []Scene) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.chapters[chapterNum] = &ChapterScenes{Number: chapterNum, Title: title, Scenes: scenes}
}

// Scenes returns the scene list for a chapter, if any.
func (c *Catalog) Scenes(chapterNum int) ([]Scene, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cs, ok := c.chapters[chapterNum]
	if !ok {
		return nil, false
	}
	out := make([]Scene, len(cs.Scenes))
	copy(out, cs.Scenes)
	return out, true
}

// SetScene replaces a single scene in place, e.g. after illustrating
// it or regenerating its image.
func (c *Catalog) SetScene(chapterNum, sceneIndex int, s Scene) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cs, ok := c.chapters[chapterNum]
	if !ok {
		return fmt.Errorf("scene: no catalog entry for chapter %d", chapterNum)
	}
	for i := range cs.Scenes {
		if cs.Scenes[i].Index == sceneIndex {
			cs.Scenes[i] = s
			return nil
		}
	}
	return fmt.Errorf("scene: chapter %d has no scene %d", chapterNum, sceneIndex)
}

// Title returns the stored title for a chapter, if any.
func (c *Catalog) Title(chapterNum int) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cs, ok := c.chapters[chapterNum]
	if !ok {
		return "", false
	}
	return cs.Title, true
}

// ChapterNumbers returns every chapter number with a catalog entry, ascending.
func (c *Catalog) ChapterNumbers() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	nums := make([]int, 0, len(c.chapters))
	for n := range c.chapters {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

// Save writes the full catalog to Chapters.md.
func (c *Catalog) Save() error {
	c.mu.RLock()
	data := c.render()
	c.mu.RUnlock()
	return filelock.WithLock(c.path, func() error {
		return atomicfile.Write(c.path, []byte(data), 0o644)
	})
}

func (c *Catalog) render() string {
	var b strings.Builder
	for _, n := range c.sortedNumbersLocked() {
		cs := c.chapters[n]
		fmt.Fprintf(&b, "### Chapter %d: %s\n\n", cs.Number, cs.Title)
		for _, s := range cs.Scenes {
			fmt.Fprintf(&b, "#### Scene %d\n\n", s.Index)
			b.WriteString("```json\n")
			encoded, _ := json.MarshalIndent(s, "", "  ")
			b.Write(encoded)
			b.WriteString("\n```\n\n---\n\n")
		}
	}
	return b.String()
}

func (c *Catalog) sortedNumbersLocked() []int {
	nums := make([]int, 0, len(c.chapters))
	for n := range c.chapters {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	return nums
}

var (
	chapterHeaderPattern = regexp.MustCompile(`(?m)^### Chapter (\d+): (.*)$`)
	sceneBlockPattern    = regexp.MustCompile("(?s)```json\\n(.*?)\\n```")
)

// LoadCatalog parses a Chapters.md file written by Save back into a Catalog.
func LoadCatalog(path string) (*Catalog, error) {
	c := NewCatalog(path)
	err := filelock.WithLock(path, func() error {
		data, readErr := readFile(path)
		if readErr != nil {
			return readErr
		}
		return c.parse(string(data))
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) parse(content string) error {
	headerMatches := chapterHeaderPattern.FindAllStringSubmatchIndex(content, -1)
	for i, m := range headerMatches {
		start := m[1]
		end := len(content)
		if i+1 < len(headerMatches) {
			end = headerMatches[i+1][0]
		}
		numStr := content[m[2]:m[3]]
		title := content[m[4]:m[5]]
		num, err := strconv.Atoi(numStr)
		if err != nil {
			return fmt.Errorf("scene: malformed chapter header %q: %w", numStr, err)
		}

		body := content[start:end]
		var scenes []Scene
		for _, sm := range sceneBlockPattern.FindAllStringSubmatch(body, -1) {
			var s Scene
			if err := json.Unmarshal([]byte(sm[1]), &s); err != nil {
				return fmt.Errorf("scene: malformed scene block in chapter %d: %w", num, err)
			}
			scenes = append(scenes, s)
		}
		c.chapters[num] = &ChapterScenes{Number: num, Title: title, Scenes: scenes}
	}
	return nil
}

