package domain

import "time"

// FrameWritten announces a persisted frame to downstream consumers.
type FrameWritten struct {
	RunID     string        `json:"run_id"`
	Name      CanonicalName `json:"name"`
	Kind      string        `json:"kind"` // "raw" or "delta"
	ValidTime time.Time     `json:"valid_time"`
	Source    string        `json:"source"`
	Path      string        `json:"path"`
	Header    Header        `json:"header"`
	// Previous is the frame a delta was computed against; empty for raw frames.
	Previous  CanonicalName `json:"previous,omitempty"`
}
