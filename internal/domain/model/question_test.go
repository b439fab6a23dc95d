package model

import "testing"

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TRUE", "TRUE"},
		{"true", "TRUE"},
		{"  True \n", "TRUE"},
		{"b", "B"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeAnswer(tt.in); got != tt.want {
			t.Errorf("NormalizeAnswer(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHashAnswerBindsCombatID(t *testing.T) {
	h1 := HashAnswer("salt", "combat-1", "TRUE")
	h2 := HashAnswer("salt", "combat-2", "TRUE")
	if h1 == h2 {
		t.Error("identical answers in different combats must not hash alike")
	}
	if h1 != HashAnswer("salt", "combat-1", "  true ") {
		t.Error("hash must be computed over the normalized answer")
	}
}

func TestAnswerKeyVerifyHashed(t *testing.T) {
	const salt = "s3cret"
	hash := HashAnswer(salt, "c1", "FALSE")
	q := &CombatQuestion{
		CombatID:   "c1",
		Choices:    []string{"TRUE", "FALSE", "UNKNOWN"},
		AnswerHash: &hash,
	}
	key := q.Key()

	if !key.Verify(salt, "false") {
		t.Error("case-insensitive match should verify")
	}
	if key.Verify(salt, "TRUE") {
		t.Error("wrong answer should not verify")
	}
	if key.Verify("othersalt", "FALSE") {
		t.Error("wrong salt should not verify")
	}
}

func TestAnswerKeyVerifyLegacy(t *testing.T) {
	tests := []struct {
		name      string
		golden    string
		submitted string
		want      bool
	}{
		{"json correct_answer", `{"correct_answer": "TRUE"}`, "true", true},
		{"json answer field", `{"answer": "B"}`, "b", true},
		{"json mismatch", `{"correct_answer": "TRUE"}`, "FALSE", false},
		{"raw string", "UNKNOWN", " unknown ", true},
		{"raw mismatch", "UNKNOWN", "TRUE", false},
		{"empty golden", "", "TRUE", false},
		{"json without known field", `{"label": "TRUE"}`, "TRUE", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			golden := tt.golden
			q := &CombatQuestion{CombatID: "c1", GoldenLabel: &golden}
			if got := q.Key().Verify("salt", tt.submitted); got != tt.want {
				t.Errorf("Verify(%q vs %q) = %v, want %v", tt.submitted, tt.golden, got, tt.want)
			}
		})
	}
}

func TestAnswerKeyRevealCorrect(t *testing.T) {
	const salt = "s3cret"
	hash := HashAnswer(salt, "c1", "UNKNOWN")
	q := &CombatQuestion{
		CombatID:   "c1",
		Choices:    []string{"TRUE", "FALSE", "UNKNOWN"},
		AnswerHash: &hash,
	}
	got := q.Key().RevealCorrect(salt)
	if got == nil || *got != "UNKNOWN" {
		t.Fatalf("RevealCorrect = %v, want UNKNOWN", got)
	}

	// Wrong salt means no choice hashes to the digest.
	if q.Key().RevealCorrect("other") != nil {
		t.Error("RevealCorrect with wrong salt should yield nil")
	}

	golden := `{"correct_answer": "FALSE"}`
	legacy := &CombatQuestion{CombatID: "c1", GoldenLabel: &golden}
	if got := legacy.Key().RevealCorrect(salt); got == nil || *got != "FALSE" {
		t.Fatalf("legacy RevealCorrect = %v, want FALSE", got)
	}
}

func TestAnswerKeyEmpty(t *testing.T) {
	q := &CombatQuestion{CombatID: "c1"}
	if q.Key().Verify("salt", "anything") {
		t.Error("question without an answer key must verify nothing")
	}
}
