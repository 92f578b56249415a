// Package progress is the typed event bus that fans pipeline progress
// out to a markdown log file and to the dashboard's live feed
package progress

import (
	"sync"
	"time"
)

// Severity classifies an Event for log formatting and dashboard badges.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Kind is the event's type tag, identifying what occurred.
type Kind string

const (
	KindInitialState    Kind = "initial-state"
	KindPhaseStart      Kind = "phase-start"
	KindChapterStart    Kind = "chapter-start"
	KindChapterComplete Kind = "chapter-complete"
	KindImageComplete   Kind = "image-complete"
	KindStats           Kind = "stats"
	KindProgress        Kind = "progress"
)

// Event is one occurrence on the bus.
type Event struct {
	Time     time.Time      `json:"time"`
	Kind     Kind           `json:"kind"`
	Severity Severity       `json:"severity"`
	Phase    string         `json:"phase,omitempty"`
	Chapter  int            `json:"chapter,omitempty"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

// WirePayload is an Event translated to the dashboard's durable wire
// field names (chapterNum, chapterTitle, conceptsFound, phase, level,
// message, timestamp). External clients align to these names across
// reconnects, so they're kept distinct from Event's own Go-side field
// names.
type WirePayload struct {
	ChapterNum    int       `json:"chapterNum,omitempty"`
	ChapterTitle  string    `json:"chapterTitle,omitempty"`
	ConceptsFound int       `json:"conceptsFound,omitempty"`
	Phase         string    `json:"phase,omitempty"`
	Level         Severity  `json:"level,omitempty"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// WireMessage is the socket/SSE envelope every dashboard message is
// sent as: {type, data}.
type WireMessage struct {
	Type Kind        `json:"type"`
	Data WirePayload `json:"data"`
}

// ToWire translates e into the dashboard wire envelope, pulling
// chapterTitle/conceptsFound out of Data when a publisher set them.
func (e Event) ToWire() WireMessage {
	payload := WirePayload{
		ChapterNum: e.Chapter,
		Phase:      e.Phase,
		Level:      e.Severity,
		Message:    e.Message,
		Timestamp:  e.Time,
	}
	if title, ok := e.Data["chapterTitle"].(string); ok {
		payload.ChapterTitle = title
	}
	if n, ok := e.Data["conceptsFound"].(int); ok {
		payload.ConceptsFound = n
	}
	return WireMessage{Type: e.Kind, Data: payload}
}

// Sink receives every published Event. Sinks must not block the
// publisher for long; Bus.Publish fans out synchronously to a fixed set
// of sinks, each responsible for its own buffering.
type Sink interface {
	Publish(Event)
}

// Bus fans events out to every registered Sink.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers sink to receive future events.
func (b *Bus) Subscribe(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, sink)
}

// Publish sends evt to every subscribed sink, stamping the time if unset.
func (b *Bus) Publish(evt Event) {
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}
	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, s := range sinks {
		s.Publish(evt)
	}
}
