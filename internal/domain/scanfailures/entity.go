package scanfailures

import "time"

// Failure represents a persisted per-file scan failure entry
type Failure struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	File      string    `json:"file"`
	Phase     string    `json:"phase,omitempty"` // read | analyze | classify | cache
	Message   string    `json:"message"`
	Attempts  int       `json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
}
