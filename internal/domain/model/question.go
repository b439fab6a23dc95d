package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Question is an entry in the local fallback pool (and the legacy seeded
// question set). The golden label may be a bare string or a JSON object
// with a "correct_answer"/"answer" field.
type Question struct {
	ID          string    `json:"id"`
	Prompt      string    `json:"prompt"`
	Choices     []string  `json:"choices"`
	GoldenLabel string    `json:"golden_label,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CombatQuestion binds one question to one combat. Created at key-issuance
// time and immutable afterwards. Exactly one of AnswerHash (current) or
// GoldenLabel (legacy) is set.
type CombatQuestion struct {
	ID        string   `json:"id"`
	CombatID  string   `json:"combat_id"`
	Dataset   string   `json:"dataset"`
	Config    string   `json:"config,omitempty"`
	Split     string   `json:"split,omitempty"`
	RowOffset int      `json:"row_offset"`
	Prompt    string   `json:"prompt"`
	Choices   []string `json:"choices"`

	AnswerHash  *string `json:"-"`
	GoldenLabel *string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

// Key returns the verification capability for this question. Callers never
// branch on which storage mode is active.
func (q *CombatQuestion) Key() AnswerKey {
	k := AnswerKey{combatID: q.CombatID, choices: q.Choices}
	if q.AnswerHash != nil {
		k.hash = *q.AnswerHash
	} else if q.GoldenLabel != nil {
		k.golden = *q.GoldenLabel
	}
	return k
}

// AnswerKey verifies submitted answers against either a salted hash of the
// correct choice (current questions) or a plaintext golden label (legacy
// ones). Both modes yield identical boolean semantics for the same logical
// answer.
type AnswerKey struct {
	hash     string
	golden   string
	combatID string
	choices  []string
}

// HashAnswer produces the stored digest for a correct answer:
// SHA256(salt ":" combatID ":" normalized answer). The combat id in the
// preimage keeps identical answers from hashing alike across combats.
func HashAnswer(salt, combatID, answer string) string {
	sum := sha256.Sum256([]byte(salt + ":" + combatID + ":" + NormalizeAnswer(answer)))
	return hex.EncodeToString(sum[:])
}

// NormalizeAnswer trims and uppercases so TRUE/true/" True " all verify the
// same way.
func NormalizeAnswer(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Verify reports whether the submitted text matches the correct answer.
func (k AnswerKey) Verify(salt, submitted string) bool {
	if k.hash != "" {
		return HashAnswer(salt, k.combatID, submitted) == k.hash
	}
	if k.golden != "" {
		return legacyMatch(k.golden, submitted)
	}
	return false
}

// RevealCorrect returns the correct choice for post-combat display. For
// hashed keys the plaintext answer is never stored, so the enumerable
// choice set is walked until one hashes to the stored digest.
func (k AnswerKey) RevealCorrect(salt string) *string {
	if k.hash != "" {
		for _, choice := range k.choices {
			if HashAnswer(salt, k.combatID, choice) == k.hash {
				c := choice
				return &c
			}
		}
		return nil
	}
	if k.golden != "" {
		if answer, ok := legacyAnswer(k.golden); ok {
			return &answer
		}
	}
	return nil
}

func legacyMatch(golden, submitted string) bool {
	answer, ok := legacyAnswer(golden)
	if !ok {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(submitted), strings.TrimSpace(answer))
}

// legacyAnswer extracts the correct answer from a legacy golden label:
// a JSON object carrying "correct_answer" (or older "answer"), or a raw
// string.
func legacyAnswer(golden string) (string, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(golden), &obj); err == nil {
		for _, field := range []string{"correct_answer", "answer"} {
			raw, exists := obj[field]
			if !exists {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				return s, true
			}
		}
		return "", false
	}
	if strings.TrimSpace(golden) == "" {
		return "", false
	}
	return golden, true
}
