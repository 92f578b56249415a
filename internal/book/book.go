// Package book holds the immutable descriptors the pipeline operates
// over: a Book and its ordered Chapters.
package book

import "fmt"

// Chapter is one unit of scheduling: a contiguous, dense-numbered unit
// of source text with a stable reading-order index.
type Chapter struct {
	// Number is the chapter's number within the book, dense 1..N in
	// reading order. This is the identifier used everywhere else in the
	// pipeline (state, progress events, image filenames).
	Number int `json:"number"`

	// Title is the chapter's display title.
	Title string `json:"title"`

	// Content is the chapter's full textual content.
	Content string `json:"content"`

	// StartPage and EndPage form an inclusive page range within the book.
	StartPage int `json:"startPage"`
	EndPage   int `json:"endPage"`

	// EstimatedTokens is a token-count estimate for Content, computed
	// once at ingest time by the token accountant.
	EstimatedTokens int `json:"estimatedTokens"`
}

// PageCount returns the number of pages this chapter spans.
func (c Chapter) PageCount() int {
	if c.EndPage < c.StartPage {
		return 0
	}
	return c.EndPage - c.StartPage + 1
}

// Descriptor is the immutable per-run book identity: title, author,
// source, and the ordered list of chapters.
type Descriptor struct {
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	SourcePath string    `json:"sourcePath"`
	TotalPages int       `json:"totalPages"`
	Chapters   []Chapter `json:"chapters"`
}

// Validate checks the invariant that chapter numbers form a dense
// permutation of 1..N in reading order.
func (d Descriptor) Validate() error {
	for i, c := range d.Chapters {
		want := i + 1
		if c.Number != want {
			return fmt.Errorf("book: chapter at reading-order position %d has number %d, want dense number %d", i, c.Number, want)
		}
	}
	return nil
}

// ByNumber returns the chapter with the given number, or false if none
// matches.
func (d Descriptor) ByNumber(n int) (Chapter, bool) {
	for _, c := range d.Chapters {
		if c.Number == n {
			return c, true
		}
	}
	return Chapter{}, false
}

// Numbers returns the chapter numbers in reading order.
func (d Descriptor) Numbers() []int {
	nums := make([]int, len(d.Chapters))
	for i, c := range d.Chapters {
		nums[i] = c.Number
	}
	return nums
}
