package progress

import (
	"log/slog"
	"sync"
)

// dashboardBufferSize bounds how many undelivered events a slow
// dashboard subscriber accumulates before it is dropped. Per the
// §5e the dashboard is best-effort: a wedged client must never cause
// backpressure on the pipeline itself.
const dashboardBufferSize = 256

// DashboardSink fans events out to zero or more live subscribers (one
// per open SSE connection), each with its own bounded channel. A
// subscriber that falls behind is disconnected rather than blocking
// publication for everyone else.
type DashboardSink struct {
	mu          sync.Mutex
	subscribers map[chan Event]struct{}
	logger      *slog.Logger
}

// NewDashboardSink creates an empty DashboardSink.
func NewDashboardSink(logger *slog.Logger) *DashboardSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardSink{subscribers: make(map[chan Event]struct{}), logger: logger}
}

// Subscribe registers a new live subscriber and returns a channel of
// events plus an unsubscribe function the caller must call when done.
func (d *DashboardSink) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, dashboardBufferSize)
	d.mu.Lock()
	d.subscribers[ch] = struct{}{}
	d.mu.Unlock()

	unsubscribe := func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if _, ok := d.subscribers[ch]; ok {
			delete(d.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers evt to every subscriber, dropping (and
// disconnecting) any whose buffer is full.
func (d *DashboardSink) Publish(evt Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for ch := range d.subscribers {
		select {
		case ch <- evt:
		default:
			d.logger.Warn("dashboard subscriber buffer full, disconnecting")
			delete(d.subscribers, ch)
			close(ch)
		}
	}
}

// SubscriberCount reports the number of currently connected subscribers.
func (d *DashboardSink) SubscriberCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subscribers)
}

var _ Sink = (*DashboardSink)(nil)
