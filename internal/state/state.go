// Package state is the durable run state document: one
// JSON file per book recording, for every (phase, chapter) pair,
// whether work is pending, in progress, completed, or failed, so a
// crashed or interrupted run can resume without redoing finished work.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackzampolin/illustra/internal/atomicfile"
	"github.com/jackzampolin/illustra/internal/filelock"
)

// SchemaVersion is bumped whenever the on-disk Document shape changes
// incompatibly. Load refuses to open a file from a newer version.
const SchemaVersion = 1

// ErrVersionMismatch is returned when a state file was written by a
// newer, incompatible version of this schema.
var ErrVersionMismatch = errors.New("state: schema version mismatch")

// Status is a (phase, chapter) work item's position in the lattice
// pending -> in_progress -> {completed, failed}; failed only returns to
// pending via an explicit clear-errors operation, never automatically.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ItemState is the persisted state of a single (phase, chapter) pair.
type ItemState struct {
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Document is the full on-disk state file for one book.
type Document struct {
	SchemaVersion int                          `json:"schemaVersion"`
	BookPath      string                       `json:"bookPath"`
	CreatedAt     time.Time                    `json:"createdAt"`
	UpdatedAt     time.Time                    `json:"updatedAt"`
	Phases        map[string]map[int]ItemState `json:"phases"` // phase -> chapter number -> state
	Stats         map[string]ProviderStats     `json:"stats,omitempty"` // provider -> running spend
}

// ProviderStats is the persisted counterpart of a cost ledger's running
// per-provider total, so Run Statistics survive a process restart.
type ProviderStats struct {
	Calls            int     `json:"calls"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	CostUSD          float64 `json:"costUsd"`
}

// Store wraps a Document with thread- and process-safe load/save.
type Store struct {
	mu   sync.RWMutex
	path string
	doc  Document
}

// New creates a Store for a fresh book at path, not yet persisted.
func New(path, bookPath string) *Store {
	return &Store{
		path: path,
		doc: Document{
			SchemaVersion: SchemaVersion,
			BookPath:      bookPath,
			CreatedAt:     time.Now(),
			UpdatedAt:     time.Now(),
			Phases:        make(map[string]map[int]ItemState),
			Stats:         make(map[string]ProviderStats),
		},
	}
}

// Load reads an existing state file from path.
func Load(path string) (*Store, error) {
	var doc Document
	err := filelock.WithLock(path, func() error {
		data, readErr := readFile(path)
		if readErr != nil {
			return readErr
		}
		return json.Unmarshal(data, &doc)
	})
	if err != nil {
		return nil, err
	}
	if doc.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: file version %d, supported %d", ErrVersionMismatch, doc.SchemaVersion, SchemaVersion)
	}
	if doc.Phases == nil {
		doc.Phases = make(map[string]map[int]ItemState)
	}
	if doc.Stats == nil {
		doc.Stats = make(map[string]ProviderStats)
	}
	return &Store{path: path, doc: doc}, nil
}

// Exists reports whether a state file is present at path.
func Exists(path string) bool {
	_, err := readFile(path)
	return err == nil
}

// Save persists the current document atomically under the file lock.
func (s *Store) Save() error {
	s.mu.Lock()
	s.doc.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(s.doc, "", "  ")
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("state: marshal document: %w", err)
	}
	return filelock.WithLock(s.path, func() error {
		return atomicfile.Write(s.path, data, 0o644)
	})
}

// Snapshot returns a deep copy of the current document, safe for a
// caller to serialize (e.g. the dashboard's /api/state endpoint)
// without holding the Store's lock.
func (s *Store) Snapshot() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := Document{
		SchemaVersion: s.doc.SchemaVersion,
		BookPath:      s.doc.BookPath,
		CreatedAt:     s.doc.CreatedAt,
		UpdatedAt:     s.doc.UpdatedAt,
		Phases:        make(map[string]map[int]ItemState, len(s.doc.Phases)),
		Stats:         make(map[string]ProviderStats, len(s.doc.Stats)),
	}
	for phase, chapters := range s.doc.Phases {
		cp := make(map[int]ItemState, len(chapters))
		for ch, st := range chapters {
			cp[ch] = st
		}
		out.Phases[phase] = cp
	}
	for provider, stats := range s.doc.Stats {
		out.Stats[provider] = stats
	}
	return out
}

// SetStats replaces the persisted per-provider spend totals, called
// once at the end of a run with the cost ledger's final snapshot.
func (s *Store) SetStats(totals map[string]ProviderStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Stats = totals
}

// Get returns the state of (phase, chapter), defaulting to pending if
// never recorded.
func (s *Store) Get(phase string, chapter int) ItemState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if chapters, ok := s.doc.Phases[phase]; ok {
		if item, ok := chapters[chapter]; ok {
			return item
		}
	}
	return ItemState{Status: StatusPending}
}

// SetStatus transitions (phase, chapter) to status, recording errMsg
// when status is StatusFailed.
func (s *Store) SetStatus(phase string, chapter int, status Status, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.Phases[phase] == nil {
		s.doc.Phases[phase] = make(map[int]ItemState)
	}
	item := s.doc.Phases[phase][chapter]
	item.Status = status
	item.UpdatedAt = time.Now()
	if status == StatusFailed {
		item.Error = errMsg
		item.Attempts++
	} else if status == StatusCompleted {
		item.Error = ""
	}
	s.doc.Phases[phase][chapter] = item
}

// ClearErrors resets every failed item in phase back to pending,
// returning how many were cleared. With phase == "" it clears across
// all phases.
func (s *Store) ClearErrors(phase string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := 0
	for p, chapters := range s.doc.Phases {
		if phase != "" && p != phase {
			continue
		}
		for ch, item := range chapters {
			if item.Status == StatusFailed {
				item.Status = StatusPending
				item.Error = ""
				chapters[ch] = item
				cleared++
			}
		}
	}
	return cleared
}

// FailedChapters returns the chapter numbers in phase currently marked failed.
func (s *Store) FailedChapters(phase string) []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int
	for ch, item := range s.doc.Phases[phase] {
		if item.Status == StatusFailed {
			out = append(out, ch)
		}
	}
	return out
}

// PhaseComplete reports whether every chapter in chapters is completed
// for phase.
func (s *Store) PhaseComplete(phase string, chapters []int) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range chapters {
		item, ok := s.doc.Phases[phase][ch]
		if !ok || item.Status != StatusCompleted {
			return false
		}
	}
	return true
}

// ValidateConsistency is the State Store's validateConsistency
// operation: it walks the document for discrepancies, taking whether
// Chapters.md and Elements.md currently exist on disk so it can flag a
// phase recorded as completed whose corresponding catalog file never
// got written. Besides those two discrepancy checks it enforces the
// four documented invariants: (1) a completed item carries a
// timestamp; (2) a chapter completed in phase illustrate must also be
// completed in phase analyze; (3) each phase's recorded chapter
// numbers form a permutation of 1..N, with no gaps; (4) persisted
// per-provider token/cost counters are never negative, a necessary
// condition for the monotonically-non-decreasing counters a single
// snapshot can check. It also resets any in_progress item to pending,
// since a crash mid-write leaves it there and it must be treated as
// not-yet-done on resume.
func (s *Store) ValidateConsistency(chaptersMdExists, elementsMdExists bool) []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var problems []error
	for phase, chapters := range s.doc.Phases {
		seen := make(map[int]bool, len(chapters))
		maxChapter := 0
		for ch, item := range chapters {
			seen[ch] = true
			if ch > maxChapter {
				maxChapter = ch
			}
			switch item.Status {
			case StatusInProgress:
				item.Status = StatusPending
				chapters[ch] = item
				problems = append(problems, fmt.Errorf("phase %q chapter %d was in_progress on load, reset to pending", phase, ch))
			case StatusFailed:
				if item.Error == "" {
					problems = append(problems, fmt.Errorf("phase %q chapter %d is failed with no error recorded", phase, ch))
				}
			case StatusCompleted:
				if item.Error != "" {
					problems = append(problems, fmt.Errorf("phase %q chapter %d is completed but has an error recorded", phase, ch))
				}
				if item.UpdatedAt.IsZero() {
					problems = append(problems, fmt.Errorf("phase %q chapter %d is completed but has no timestamp", phase, ch))
				}
				if phase == "illustrate" {
					analyzed := s.doc.Phases["analyze"][ch]
					if analyzed.Status != StatusCompleted {
						problems = append(problems, fmt.Errorf("chapter %d is completed in phase illustrate but not completed in phase analyze", ch))
					}
				}
			}
			if item.Attempts < 0 {
				problems = append(problems, fmt.Errorf("phase %q chapter %d has negative attempts", phase, ch))
			}
		}
		for n := 1; n <= maxChapter; n++ {
			if !seen[n] {
				problems = append(problems, fmt.Errorf("phase %q chapter catalog is missing chapter %d (not a permutation of 1..%d)", phase, n, maxChapter))
			}
		}
	}

	for provider, stats := range s.doc.Stats {
		if stats.Calls < 0 || stats.PromptTokens < 0 || stats.CompletionTokens < 0 || stats.CostUSD < 0 {
			problems = append(problems, fmt.Errorf("provider %q has a negative usage counter, token/cost totals must be monotonically non-decreasing", provider))
		}
	}

	if !chaptersMdExists && s.anyCompleted("analyze") {
		problems = append(problems, fmt.Errorf("phase %q has completed chapters but Chapters.md does not exist", "analyze"))
	}
	if !elementsMdExists && s.anyCompleted("analyze") {
		problems = append(problems, fmt.Errorf("phase %q has completed chapters but Elements.md does not exist", "analyze"))
	}

	return problems
}

// anyCompleted reports whether phase has at least one chapter marked
// completed. Callers must already hold s.mu.
func (s *Store) anyCompleted(phase string) bool {
	for _, item := range s.doc.Phases[phase] {
		if item.Status == StatusCompleted {
			return true
		}
	}
	return false
}
