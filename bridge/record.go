package bridge

import (
	"time"
)

// scoreScale converts microseconds to the fractional part of a sort score.
// Score = priority + micros/scoreScale, so for equal priority the earlier
// enqueue sorts first.
const scoreScale = 1e12

// Record is the durable queue wire format. Producers in other processes
// write the same JSON shape. The ID is assigned at enqueue time so that
// remove-by-exact-value stays unambiguous even for otherwise identical
// payloads.
type Record struct {
	ID         string         `json:"id,omitempty"`
	Device     string         `json:"device"`
	ActionType string         `json:"action_type"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Priority   int            `json:"priority"`
	Timestamp  string         `json:"timestamp,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// Score computes the sort key for a record enqueued at now.
func Score(priority int, now time.Time) float64 {
	return float64(priority) + float64(now.UnixMicro())/scoreScale
}
