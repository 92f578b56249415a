package progress

import (
	"fmt"
	"strings"

	"github.com/jackzampolin/illustra/internal/atomicfile"
	"github.com/jackzampolin/illustra/internal/filelock"
)

// LogSink appends every event to a markdown progress log, guarded by a
// file lock so concurrent phase workers never interleave partial lines.
type LogSink struct {
	path string
}

// NewLogSink creates a LogSink writing to path (typically
// outdir.Dir.ProgressPath()).
func NewLogSink(path string) *LogSink {
	return &LogSink{path: path}
}

// Publish appends evt as one markdown bullet line.
func (s *LogSink) Publish(evt Event) {
	line := formatLine(evt)
	_ = filelock.WithLock(s.path, func() error {
		return atomicfile.Append(s.path, []byte(line), 0o644)
	})
}

func formatLine(evt Event) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("- `%s` **%s**", evt.Time.Format("15:04:05"), evt.Kind))
	if evt.Phase != "" {
		b.WriteString(fmt.Sprintf(" [%s]", evt.Phase))
	}
	if evt.Chapter != 0 {
		b.WriteString(fmt.Sprintf(" ch.%d", evt.Chapter))
	}
	b.WriteString(": ")
	b.WriteString(evt.Message)
	b.WriteString("\n")
	return b.String()
}

var _ Sink = (*LogSink)(nil)
