package model

import "time"

type SubmissionStatus string

const (
	SubmissionSubmitted SubmissionStatus = "submitted"
	// SubmissionTimeout is synthesized in status summaries for participants
	// whose deadline passed without a record; it is never persisted.
	SubmissionTimeout SubmissionStatus = "timeout"
	SubmissionInvalid SubmissionStatus = "invalid"
)

// Submission is append-only: one per (combat, participant), never updated.
// SubmittedAt is the tie-breaker when both answers are correct.
type Submission struct {
	ID          string           `json:"id"`
	CombatID    string           `json:"combat_id"`
	UserID      string           `json:"user_id"`
	Answer      string           `json:"answer"`
	Status      SubmissionStatus `json:"status"`
	SubmittedAt time.Time        `json:"submitted_at"`
}
