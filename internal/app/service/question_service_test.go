package service

import (
	"context"
	"errors"
	"testing"

	"moltbattle/internal/common"
	"moltbattle/internal/domain/model"
	"moltbattle/internal/platform/hfdata"
)

func TestAssignStoresHashedProviderQuestion(t *testing.T) {
	repo := newFakeQuestionRepo()
	provider := &fakeProvider{question: &hfdata.Question{
		Prompt:        "Is the hypothesis entailed?",
		Choices:       []string{"TRUE", "FALSE", "UNKNOWN"},
		CorrectAnswer: "FALSE",
		Dataset:       "tasksource/ruletaker",
		Config:        "default",
		Split:         "dev",
		RowOffset:     42,
	}}
	svc := NewQuestionService(provider, repo, testSalt)

	cq, err := svc.Assign(context.Background(), nil, "combat-1", model.ModeFormalLogic)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if cq.AnswerHash == nil {
		t.Fatal("provider question must store a hashed answer key")
	}
	if cq.GoldenLabel != nil {
		t.Error("provider question must not carry a plaintext label")
	}
	if cq.Dataset != "tasksource/ruletaker" || cq.RowOffset != 42 {
		t.Errorf("provenance not preserved: %+v", cq)
	}
	if !cq.Key().Verify(testSalt, "false") {
		t.Error("stored key should verify the correct answer")
	}
	if cq.Key().Verify(testSalt, "TRUE") {
		t.Error("stored key should reject a wrong answer")
	}
}

func TestAssignFallsBackWhenProviderFails(t *testing.T) {
	repo := newFakeQuestionRepo()
	repo.fallback = []model.Question{{
		ID:          "fb1",
		Prompt:      "Static deduction question",
		Choices:     []string{"TRUE", "FALSE", "UNKNOWN"},
		GoldenLabel: `{"correct_answer": "UNKNOWN"}`,
	}}
	provider := &fakeProvider{err: errProviderDown}
	svc := NewQuestionService(provider, repo, testSalt)

	cq, err := svc.Assign(context.Background(), nil, "combat-1", model.ModeFormalLogic)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider called %d times, want 1", provider.calls)
	}
	if cq.Dataset != "static" {
		t.Errorf("dataset = %q, want static", cq.Dataset)
	}
	if cq.GoldenLabel == nil || cq.AnswerHash != nil {
		t.Error("fallback question must keep the legacy golden label")
	}
	if !cq.Key().Verify(testSalt, " unknown ") {
		t.Error("legacy key should verify case-insensitively")
	}
}

func TestAssignFailsWhenPoolEmptyToo(t *testing.T) {
	repo := newFakeQuestionRepo()
	provider := &fakeProvider{err: errProviderDown}
	svc := NewQuestionService(provider, repo, testSalt)

	_, err := svc.Assign(context.Background(), nil, "combat-1", model.ModeFormalLogic)
	if !errors.Is(err, common.ErrNoQuestions) {
		t.Fatalf("err = %v, want ErrNoQuestions", err)
	}
}

func TestAssignWithoutProviderUsesPool(t *testing.T) {
	repo := newFakeQuestionRepo()
	repo.fallback = FallbackQuestions()
	svc := NewQuestionService(nil, repo, testSalt)

	cq, err := svc.Assign(context.Background(), nil, "combat-1", model.ModeFormalLogic)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if cq.Prompt == "" || len(cq.Choices) != 3 {
		t.Errorf("pool question malformed: %+v", cq)
	}
}

func TestSeedFallbackPoolIsIdempotent(t *testing.T) {
	repo := newFakeQuestionRepo()
	svc := NewQuestionService(nil, repo, testSalt)
	ctx := context.Background()

	inserted, err := svc.SeedFallbackPool(ctx)
	if err != nil {
		t.Fatalf("SeedFallbackPool: %v", err)
	}
	if inserted != len(FallbackQuestions()) {
		t.Errorf("inserted %d, want %d", inserted, len(FallbackQuestions()))
	}

	again, err := svc.SeedFallbackPool(ctx)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if again != 0 {
		t.Errorf("second seed inserted %d, want 0", again)
	}
}

func TestFallbackQuestionsHaveResolvableAnswers(t *testing.T) {
	for i, q := range FallbackQuestions() {
		golden := q.GoldenLabel
		cq := &model.CombatQuestion{CombatID: "c1", Choices: q.Choices, GoldenLabel: &golden}
		answer := cq.Key().RevealCorrect(testSalt)
		if answer == nil {
			t.Errorf("question %d has no resolvable answer", i)
			continue
		}
		found := false
		for _, choice := range q.Choices {
			if choice == *answer {
				found = true
			}
		}
		if !found {
			t.Errorf("question %d answer %q not among its choices", i, *answer)
		}
	}
}
