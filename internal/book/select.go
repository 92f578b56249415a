package book

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseChapterSelection parses the syntax of --chapters: a comma-separated
// list of integers or inclusive a-b ranges, interpreted as 1-based
// reading-order positions (not chapter numbers). It returns the set of
// positions in ascending order with duplicates removed.
func ParseChapterSelection(spec string) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("book: empty chapter selection")
	}

	seen := make(map[int]bool)
	var positions []int
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		lo, hi, err := parseRangePart(part)
		if err != nil {
			return nil, fmt.Errorf("book: invalid chapter selection %q: %w", part, err)
		}
		for n := lo; n <= hi; n++ {
			if n < 1 {
				return nil, fmt.Errorf("book: invalid chapter selection %q: position must be >= 1", part)
			}
			if !seen[n] {
				seen[n] = true
				positions = append(positions, n)
			}
		}
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("book: chapter selection %q resolved to no positions", spec)
	}

	sortInts(positions)
	return positions, nil
}

func parseRangePart(part string) (lo, hi int, err error) {
	if idx := strings.Index(part, "-"); idx > 0 {
		loStr, hiStr := part[:idx], part[idx+1:]
		lo, err = strconv.Atoi(strings.TrimSpace(loStr))
		if err != nil {
			return 0, 0, fmt.Errorf("bad range start: %w", err)
		}
		hi, err = strconv.Atoi(strings.TrimSpace(hiStr))
		if err != nil {
			return 0, 0, fmt.Errorf("bad range end: %w", err)
		}
		if hi < lo {
			return 0, 0, fmt.Errorf("range end %d precedes start %d", hi, lo)
		}
		return lo, hi, nil
	}

	n, err := strconv.Atoi(part)
	if err != nil {
		return 0, 0, fmt.Errorf("not an integer or range: %w", err)
	}
	return n, n, nil
}

func sortInts(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// ResolveSelection maps 1-based reading-order positions to the book's
// dense chapter numbers: position i maps
// to the i-th chapter in reading order. Positions beyond the book's
// length are dropped silently, matching the CLI's "--limit"-style
// clamping elsewhere.
func (d Descriptor) ResolveSelection(positions []int) []int {
	numbers := make([]int, 0, len(positions))
	for _, pos := range positions {
		idx := pos - 1
		if idx < 0 || idx >= len(d.Chapters) {
			continue
		}
		numbers = append(numbers, d.Chapters[idx].Number)
	}
	return numbers
}

// AllNumbers returns every chapter number in reading order, used when no
// --chapters filter is given.
func (d Descriptor) AllNumbers() []int {
	return d.Numbers()
}
