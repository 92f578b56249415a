package entities

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jackzampolin/illustra/internal/atomicfile"
	"github.com/jackzampolin/illustra/internal/filelock"
)

// RegistrySchemaVersion guards the on-disk document shape.
const RegistrySchemaVersion = 1

// Registry is an arena-and-index store: entities live in a stable
// slice (so an Entity's identity is its index and never moves once
// assigned), with two maps translating lookups into indices — one by
// canonical (type, lower(name)) key, one by canonical (type,
// lower(alias)) key. This mirrors the append-only, index-stable layout
// callers want so in-flight matcher results referencing an index by
// number stay valid across concurrent chapter processing.
type Registry struct {
	mu       sync.RWMutex
	path     string
	entities []Entity
	byName   map[string]int // "type|lower(name)" -> index
	byAlias  map[string]int // "type|lower(alias)" -> index
}

// New creates an empty, unpersisted registry.
func New(path string) *Registry {
	return &Registry{
		path:    path,
		byName:  make(map[string]int),
		byAlias: make(map[string]int),
	}
}

// Load reads a registry document from path.
func Load(path string) (*Registry, error) {
	r := New(path)
	err := filelock.WithLock(path, func() error {
		data, readErr := readFile(path)
		if readErr != nil {
			return readErr
		}
		var doc registryDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return err
		}
		if doc.SchemaVersion > RegistrySchemaVersion {
			return fmt.Errorf("entities: registry schema version %d newer than supported %d", doc.SchemaVersion, RegistrySchemaVersion)
		}
		r.entities = doc.Entities
		r.rebuildIndex()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

type registryDocument struct {
	SchemaVersion int      `json:"schemaVersion"`
	Entities      []Entity `json:"entities"`
}

func (r *Registry) rebuildIndex() {
	r.byName = make(map[string]int, len(r.entities))
	r.byAlias = make(map[string]int, len(r.entities))
	for i, e := range r.entities {
		r.byName[indexKey(e.Type, e.Name)] = i
		for _, alias := range e.Aliases {
			r.byAlias[indexKey(e.Type, alias)] = i
		}
	}
}

func indexKey(t Type, name string) string {
	return string(t) + "|" + canonicalKey(name)
}

// Save persists the registry atomically under the file lock.
func (r *Registry) Save() error {
	r.mu.RLock()
	doc := registryDocument{SchemaVersion: RegistrySchemaVersion, Entities: r.entities}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("entities: marshal registry: %w", err)
	}
	return filelock.WithLock(r.path, func() error {
		return atomicfile.Write(r.path, data, 0o644)
	})
}

// LookupExact returns the index of an entity whose name or a known
// alias exactly (case-insensitively) matches name, scoped to typ.
func (r *Registry) LookupExact(typ Type, name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key := indexKey(typ, name)
	if idx, ok := r.byName[key]; ok {
		return idx, true
	}
	if idx, ok := r.byAlias[key]; ok {
		return idx, true
	}
	return -1, false
}

// All returns a snapshot slice of every entity, indices matching their
// registry index.
func (r *Registry) All() []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entity, len(r.entities))
	copy(out, r.entities)
	return out
}

// ByType returns a snapshot of entities of typ.
func (r *Registry) ByType(typ Type) []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entity
	for _, e := range r.entities {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// Get returns the entity at idx.
func (r *Registry) Get(idx int) (Entity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.entities) {
		return Entity{}, false
	}
	return r.entities[idx], true
}

// Add appends a brand-new entity and returns its index.
func (r *Registry) Add(e Entity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := len(r.entities)
	r.entities = append(r.entities, e)
	r.byName[indexKey(e.Type, e.Name)] = idx
	for _, alias := range e.Aliases {
		r.byAlias[indexKey(e.Type, alias)] = idx
	}
	return idx
}

// MergeMention records a re-appearance of the entity at idx in
// chapter, bumping its mention count, extending its chapter range, and
// appending enrichment when supplied.
func (r *Registry) MergeMention(idx int, chapter int, enrichment *Enrichment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.entities) {
		return fmt.Errorf("entities: index %d out of range", idx)
	}
	e := &r.entities[idx]
	e.MentionCount++
	if chapter < e.FirstChapter || e.FirstChapter == 0 {
		e.FirstChapter = chapter
	}
	if chapter > e.LastChapter {
		e.LastChapter = chapter
	}
	e.Appearances = appendUniqueSorted(e.Appearances, chapter)
	if enrichment != nil {
		e.Enrichments = append(e.Enrichments, *enrichment)
	}
	return nil
}

// AddAlias records alias as another name for the entity at idx.
func (r *Registry) AddAlias(idx int, alias string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx < 0 || idx >= len(r.entities) {
		return fmt.Errorf("entities: index %d out of range", idx)
	}
	e := &r.entities[idx]
	for _, existing := range e.Aliases {
		if canonicalKey(existing) == canonicalKey(alias) {
			return nil
		}
	}
	e.Aliases = append(e.Aliases, alias)
	r.byAlias[indexKey(e.Type, alias)] = idx
	return nil
}

// Candidate is a freshly observed mention of an entity, as extracted
// from one chapter by the Analyze or Extract phase.
type Candidate struct {
	Type        Type
	Name        string
	Description string
	Chapter     int
	Quote       string
	PageHint    int
}

// Upsert resolves candidate against the existing entities of the same
// type via matcher, then either merges it into the matched entity or
// adds it as new. It returns the resulting entity's index and whether
// a new entity was created.
//
// Zero existing entities of the candidate's type is accepted as new
// without consulting the matcher. A matcher confidence below threshold
// is treated as a distinct entity. An alias already present, or a
// self-match against the same canonical key, is a no-op merge.
func (r *Registry) Upsert(ctx context.Context, matcher *Matcher, c Candidate) (int, bool, error) {
	if idx, ok := r.LookupExact(c.Type, c.Name); ok {
		r.mergeInto(idx, c)
		return idx, false, nil
	}

	existing := r.ByType(c.Type)
	if len(existing) == 0 || matcher == nil {
		idx := r.addCandidate(c)
		return idx, true, nil
	}

	for _, candidateExisting := range existing {
		decision, err := matcher.Match(ctx, c.Type, c.Name, c.Description, candidateExisting.Name, candidateExisting.Description)
		if err != nil {
			return -1, false, err
		}
		if decision.IsMatch {
			idx, ok := r.LookupExact(c.Type, candidateExisting.Name)
			if !ok {
				continue
			}
			_ = r.AddAlias(idx, c.Name)
			r.mergeInto(idx, c)
			return idx, false, nil
		}
	}

	idx := r.addCandidate(c)
	return idx, true, nil
}

func (r *Registry) addCandidate(c Candidate) int {
	e := Entity{
		Type:         c.Type,
		Name:         c.Name,
		Description:  c.Description,
		FirstChapter: c.Chapter,
		LastChapter:  c.Chapter,
		Appearances:  []int{c.Chapter},
		MentionCount: 1,
	}
	if c.Quote != "" {
		e.Quotes = []Quote{{Text: c.Quote, Chapter: c.Chapter, PageHint: c.PageHint}}
	}
	return r.Add(e)
}

func (r *Registry) mergeInto(idx int, c Candidate) {
	r.mu.Lock()
	e := &r.entities[idx]
	e.MentionCount++
	if c.Chapter < e.FirstChapter || e.FirstChapter == 0 {
		e.FirstChapter = c.Chapter
	}
	if c.Chapter > e.LastChapter {
		e.LastChapter = c.Chapter
	}
	e.Appearances = appendUniqueSorted(e.Appearances, c.Chapter)
	if c.Quote != "" {
		e.Quotes = appendUniqueQuote(e.Quotes, Quote{Text: c.Quote, Chapter: c.Chapter, PageHint: c.PageHint})
	}
	if c.Description != "" && c.Description != e.Description {
		e.Description = mergeDescription(e.Description, c.Description)
	}
	r.mu.Unlock()
}

// mergeDescription concatenates a new description onto the existing
// one when it adds information not already present. This is the
// simple-concatenation merge rule; an AI-consolidation path is left to
// a caller that wants a single coherent rewrite instead.
func mergeDescription(existing, incoming string) string {
	if existing == "" {
		return incoming
	}
	if strings.Contains(strings.ToLower(existing), strings.ToLower(incoming)) {
		return existing
	}
	return existing + " " + incoming
}

func appendUniqueSorted(chapters []int, n int) []int {
	for _, c := range chapters {
		if c == n {
			return chapters
		}
	}
	chapters = append(chapters, n)
	sort.Ints(chapters)
	return chapters
}

func appendUniqueQuote(quotes []Quote, q Quote) []Quote {
	for _, existing := range quotes {
		if existing.Text == q.Text {
			return quotes
		}
	}
	return append(quotes, q)
}

// GetMentions returns every entity whose canonical name or any alias
// appears as a case-insensitive substring of text.
func (r *Registry) GetMentions(text string) []Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lower := strings.ToLower(text)
	var out []Entity
	for _, e := range r.entities {
		if strings.Contains(lower, canonicalKey(e.Name)) {
			out = append(out, e)
			continue
		}
		for _, alias := range e.Aliases {
			if strings.Contains(lower, canonicalKey(alias)) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// EnrichPrompt appends a structured block of facts about every entity
// mentioned in prompt to its end, for consumption by the Enrich phase.
func (r *Registry) EnrichPrompt(prompt string) string {
	return r.EnrichPromptFiltered(prompt, nil)
}

// EnrichPromptFiltered behaves like EnrichPrompt but, when match is
// non-nil, only includes mentions for which match(entityType, entityName)
// reports true — the Enrich phase's hook for the CLI's --elements-filter.
func (r *Registry) EnrichPromptFiltered(prompt string, match func(entityType, entityName string) bool) string {
	mentions := r.GetMentions(prompt)
	if match != nil {
		filtered := mentions[:0:0]
		for _, e := range mentions {
			if match(string(e.Type), e.Name) {
				filtered = append(filtered, e)
			}
		}
		mentions = filtered
	}
	if len(mentions) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nKnown character details:\n")
	for _, e := range mentions {
		b.WriteString("- ")
		b.WriteString(e.Name)
		b.WriteString(" (")
		b.WriteString(string(e.Type))
		b.WriteString("): ")
		b.WriteString(e.Description)
		b.WriteString("\n")
	}
	return b.String()
}
