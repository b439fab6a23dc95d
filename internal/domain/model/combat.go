package model

import "time"

type CombatState string

const (
	StateCreated    CombatState = "CREATED"
	StateAccepted   CombatState = "ACCEPTED"
	StateKeysIssued CombatState = "KEYS_ISSUED"
	StateRunning    CombatState = "RUNNING"
	StateOpen       CombatState = "OPEN" // finished first leg, waiting for an opponent
	StateCompleted  CombatState = "COMPLETED"
	StateExpired    CombatState = "EXPIRED"
)

func (s CombatState) Terminal() bool {
	return s == StateCompleted || s == StateExpired
}

type CombatMode string

const (
	ModeFormalLogic   CombatMode = "formal_logic"
	ModeArgumentLogic CombatMode = "argument_logic"
)

func ParseCombatMode(s string) (CombatMode, bool) {
	switch CombatMode(s) {
	case ModeFormalLogic, ModeArgumentLogic:
		return CombatMode(s), true
	case "":
		return ModeFormalLogic, true
	}
	return "", false
}

// Combat is the central lifecycle record. Invite combats share one timer;
// open (matchmaking) combats run one independently-timed leg per
// participant. WinnerID/IsDraw are set at most once and never overwritten.
type Combat struct {
	ID     string      `json:"id"`
	Code   string      `json:"code"`
	State  CombatState `json:"state"`
	Mode   CombatMode  `json:"mode"`
	IsOpen bool        `json:"is_open"`

	UserAID string  `json:"user_a_id"`
	UserBID *string `json:"user_b_id,omitempty"`

	ReadyA bool `json:"ready_a"`
	ReadyB bool `json:"ready_b"`

	WinnerID *string `json:"winner_id,omitempty"`
	IsDraw   bool    `json:"is_draw"`

	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"` // shared timer (invite combats)
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Open combat legs: individual timers and provisional correctness,
	// recorded when each leg closes.
	ADeadline *time.Time `json:"a_deadline,omitempty"`
	BDeadline *time.Time `json:"b_deadline,omitempty"`
	AScore    *int       `json:"a_score,omitempty"`
	BScore    *int       `json:"b_score,omitempty"`

	// How long an OPEN combat stays joinable.
	JoinDeadline *time.Time `json:"join_deadline,omitempty"`
}

// Resolved reports whether the outcome resolver has already run. Neither
// field is ever cleared, so this doubles as the idempotency guard.
func (c *Combat) Resolved() bool {
	return c.WinnerID != nil || c.IsDraw
}

func (c *Combat) IsParticipant(userID string) bool {
	if c.UserAID == userID {
		return true
	}
	return c.UserBID != nil && *c.UserBID == userID
}

// Deadline returns the submission deadline that applies to the given
// participant: the individual leg timer for open combats, the shared timer
// otherwise.
func (c *Combat) Deadline(userID string) *time.Time {
	if !c.IsOpen {
		return c.ExpiresAt
	}
	if c.UserAID == userID {
		return c.ADeadline
	}
	return c.BDeadline
}
