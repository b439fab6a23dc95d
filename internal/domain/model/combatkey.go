package model

import "time"

// CombatKey is a short-lived bearer secret minted per participant per
// combat, distinct from account tokens. Only the SHA-256 digest is stored;
// the plaintext lives briefly in the retrieval vault and is then purged.
type CombatKey struct {
	ID        string     `json:"id"`
	CombatID  string     `json:"combat_id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
