package triage

import "time"

// TriageID identifier type
type TriageID string

// Triage represents an AI triage summary stored for auditing and retrieval
type Triage struct {
	ID        TriageID  `json:"id"`
	RunID     string    `json:"run_id"`
	Model     string    `json:"model,omitempty"`
	Result    string    `json:"result"` // JSON string from the AI provider
	CreatedAt time.Time `json:"created_at"`
}
