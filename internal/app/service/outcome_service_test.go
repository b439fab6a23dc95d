package service

import (
	"context"
	"testing"
	"time"

	"moltbattle/internal/domain/model"
)

type outcomeFixture struct {
	svc       *OutcomeService
	subs      *fakeSubmissionRepo
	questions *fakeQuestionRepo
	users     *fakeUserRepo
}

func newOutcomeFixture(t *testing.T) *outcomeFixture {
	t.Helper()
	f := &outcomeFixture{
		subs:      &fakeSubmissionRepo{},
		questions: newFakeQuestionRepo(),
	}
	f.users = newFakeUserRepo(
		model.User{ID: "alice", Handle: "alice"},
		model.User{ID: "bob", Handle: "bob"},
	)
	f.svc = NewOutcomeService(f.subs, f.questions, f.users, testSalt)
	return f
}

func (f *outcomeFixture) completedCombat(t *testing.T) *model.Combat {
	t.Helper()
	bob := "bob"
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	combat := &model.Combat{
		ID:          "c1",
		Code:        "ABC123",
		State:       model.StateCompleted,
		UserAID:     "alice",
		UserBID:     &bob,
		CompletedAt: &now,
	}
	hash := model.HashAnswer(testSalt, combat.ID, "TRUE")
	f.questions.byCombat[combat.ID] = model.CombatQuestion{
		ID:         "q1",
		CombatID:   combat.ID,
		Choices:    []string{"TRUE", "FALSE", "UNKNOWN"},
		AnswerHash: &hash,
	}
	return combat
}

func (f *outcomeFixture) submit(userID, answer string, at time.Time) {
	f.subs.subs = append(f.subs.subs, model.Submission{
		ID: userID + "-sub", CombatID: "c1", UserID: userID,
		Answer: answer, Status: model.SubmissionSubmitted, SubmittedAt: at,
	})
}

func TestResolveSingleCorrectWins(t *testing.T) {
	f := newOutcomeFixture(t)
	combat := f.completedCombat(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.submit("alice", "FALSE", base)
	f.submit("bob", "TRUE", base.Add(5*time.Second))

	if err := f.svc.Resolve(context.Background(), nil, combat); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if combat.WinnerID == nil || *combat.WinnerID != "bob" {
		t.Fatalf("winner = %v, want bob", combat.WinnerID)
	}

	bob, _ := f.users.FindByID(context.Background(), "bob")
	alice, _ := f.users.FindByID(context.Background(), "alice")
	if bob.Wins != 1 || alice.Losses != 1 {
		t.Errorf("stats: bob %+v, alice %+v", bob, alice)
	}
}

func TestResolveBothCorrectEarlierWins(t *testing.T) {
	f := newOutcomeFixture(t)
	combat := f.completedCombat(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.submit("alice", "TRUE", base.Add(10*time.Second))
	f.submit("bob", "TRUE", base.Add(3*time.Second))

	if err := f.svc.Resolve(context.Background(), nil, combat); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if combat.WinnerID == nil || *combat.WinnerID != "bob" {
		t.Fatalf("winner = %v, want bob (earlier submission)", combat.WinnerID)
	}
}

func TestResolveBothCorrectSameInstant(t *testing.T) {
	f := newOutcomeFixture(t)
	combat := f.completedCombat(t)
	at := time.Date(2026, 3, 1, 12, 0, 30, 0, time.UTC)
	f.submit("alice", "TRUE", at)
	f.submit("bob", "TRUE", at)

	if err := f.svc.Resolve(context.Background(), nil, combat); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if combat.WinnerID == nil || *combat.WinnerID != "alice" {
		t.Fatalf("winner = %v, want alice on identical timestamps", combat.WinnerID)
	}
}

func TestResolveNeitherCorrectDraws(t *testing.T) {
	f := newOutcomeFixture(t)
	combat := f.completedCombat(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.submit("alice", "FALSE", base)
	f.submit("bob", "UNKNOWN", base.Add(time.Second))

	if err := f.svc.Resolve(context.Background(), nil, combat); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !combat.IsDraw || combat.WinnerID != nil {
		t.Fatalf("expected draw, got winner=%v draw=%v", combat.WinnerID, combat.IsDraw)
	}

	alice, _ := f.users.FindByID(context.Background(), "alice")
	bob, _ := f.users.FindByID(context.Background(), "bob")
	if alice.Draws != 1 || bob.Draws != 1 {
		t.Errorf("both participants should record a draw: alice %+v, bob %+v", alice, bob)
	}
}

func TestResolveMissingSubmissionCountsIncorrect(t *testing.T) {
	f := newOutcomeFixture(t)
	combat := f.completedCombat(t)
	f.submit("alice", "TRUE", time.Date(2026, 3, 1, 12, 0, 10, 0, time.UTC))

	if err := f.svc.Resolve(context.Background(), nil, combat); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if combat.WinnerID == nil || *combat.WinnerID != "alice" {
		t.Fatalf("winner = %v, want alice over a no-show", combat.WinnerID)
	}
}

func TestResolveIdempotent(t *testing.T) {
	f := newOutcomeFixture(t)
	combat := f.completedCombat(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.submit("alice", "TRUE", base)
	f.submit("bob", "FALSE", base.Add(time.Second))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := f.svc.Resolve(ctx, nil, combat); err != nil {
			t.Fatalf("Resolve #%d: %v", i+1, err)
		}
	}

	alice, _ := f.users.FindByID(ctx, "alice")
	bob, _ := f.users.FindByID(ctx, "bob")
	if alice.Wins != 1 || alice.TotalCombats != 1 {
		t.Errorf("alice stats applied more than once: %+v", alice)
	}
	if bob.Losses != 1 || bob.TotalCombats != 1 {
		t.Errorf("bob stats applied more than once: %+v", bob)
	}
}

func TestResolveUsesProvisionalScores(t *testing.T) {
	f := newOutcomeFixture(t)
	combat := f.completedCombat(t)
	combat.IsOpen = true
	one, zero := 1, 0
	combat.AScore = &zero
	combat.BScore = &one
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// Submissions disagree with the provisional scores on purpose; the
	// scores recorded when each leg closed are authoritative.
	f.submit("alice", "TRUE", base)
	f.submit("bob", "FALSE", base.Add(time.Second))

	if err := f.svc.Resolve(context.Background(), nil, combat); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if combat.WinnerID == nil || *combat.WinnerID != "bob" {
		t.Fatalf("winner = %v, want bob from provisional scores", combat.WinnerID)
	}
}

func TestResolveSoleParticipantDraws(t *testing.T) {
	f := newOutcomeFixture(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	combat := &model.Combat{
		ID: "c1", State: model.StateExpired, UserAID: "alice", IsOpen: true, CompletedAt: &now,
	}

	if err := f.svc.Resolve(context.Background(), nil, combat); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !combat.IsDraw {
		t.Fatal("sole participant should settle as a draw")
	}
	alice, _ := f.users.FindByID(context.Background(), "alice")
	if alice.Draws != 1 || alice.TotalCombats != 1 || alice.Wins != 0 {
		t.Errorf("alice stats = %+v", alice)
	}
}

func TestResolveRejectsNonTerminal(t *testing.T) {
	f := newOutcomeFixture(t)
	combat := f.completedCombat(t)
	combat.State = model.StateRunning

	if err := f.svc.Resolve(context.Background(), nil, combat); err == nil {
		t.Fatal("resolving a running combat should fail")
	}
}
