package entities

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jackzampolin/illustra/internal/atomicfile"
	"github.com/jackzampolin/illustra/internal/filelock"
)

// RenderMarkdown produces Elements.md's content: every entity grouped
// by type, with its description, aliases, and the chapters its
// recorded quotes come from. Unlike Chapters.md this format has no regenerate code
// path that parses it back, so it favors readability over a stable
// grammar.
func (r *Registry) RenderMarkdown() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byType := make(map[Type][]Entity)
	for _, e := range r.entities {
		byType[e.Type] = append(byType[e.Type], e)
	}

	var b strings.Builder
	b.WriteString("# Elements\n\n")
	for _, typ := range []Type{TypeCharacter, TypeCreature, TypePlace, TypeItem, TypeObject} {
		list := byType[typ]
		if len(list) == 0 {
			continue
		}
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

		fmt.Fprintf(&b, "## %s\n\n", strings.ToUpper(string(typ[:1]))+string(typ[1:])+"s")
		for _, e := range list {
			fmt.Fprintf(&b, "### %s\n\n", e.Name)
			if len(e.Aliases) > 0 {
				fmt.Fprintf(&b, "*Also known as: %s*\n\n", strings.Join(e.Aliases, ", "))
			}
			if e.Description != "" {
				fmt.Fprintf(&b, "%s\n\n", e.Description)
			}
			chapters := make([]string, 0, len(e.Quotes))
			seen := make(map[int]bool)
			for _, q := range e.Quotes {
				if !seen[q.Chapter] {
					seen[q.Chapter] = true
					chapters = append(chapters, fmt.Sprintf("%d", q.Chapter))
				}
			}
			if len(chapters) > 0 {
				fmt.Fprintf(&b, "Appears in chapters: %s\n\n", strings.Join(chapters, ", "))
			}
		}
	}
	return b.String()
}

// SaveMarkdown writes RenderMarkdown's output to path via the same
// atomic-write-under-lock pairing every other on-disk document in this
// pipeline uses.
func (r *Registry) SaveMarkdown(path string) error {
	data := r.RenderMarkdown()
	return filelock.WithLock(path, func() error {
		return atomicfile.Write(path, []byte(data), 0o644)
	})
}
