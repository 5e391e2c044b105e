package profilez

import "time"

// CompletedSpan is one timed execution of a marked block, emitted when its
// Guard is released. Spans are immutable after emission and are consumed
// exactly once by a drain.
//
//nolint:govet // Field alignment optimized for JSON serialization order
type CompletedSpan struct {
	CallPath []string      `json:"call_path,omitempty"`
	Start    time.Time     `json:"start"`
	Duration time.Duration `json:"duration"`
	Name     string        `json:"name"`
	ThreadID uint64        `json:"thread_id"`
}
