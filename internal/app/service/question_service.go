package service

import (
	"context"
	"database/sql"
	"log"

	"moltbattle/internal/common"
	"moltbattle/internal/domain/model"
	"moltbattle/internal/domain/repository"
	"moltbattle/internal/platform/hfdata"

	"github.com/google/uuid"
)

// QuestionProvider is the external question source. Implemented by
// hfdata.Client; faked in tests.
type QuestionProvider interface {
	FetchQuestion(ctx context.Context, mode model.CombatMode) (*hfdata.Question, error)
}

// QuestionService assigns one question per combat with a two-tier strategy:
// the external provider first, then the local fallback pool. Provider
// failures are recovered locally and never surfaced to the caller unless
// the pool is empty too.
type QuestionService struct {
	provider     QuestionProvider
	questionRepo repository.QuestionRepository
	answerSalt   string
}

func NewQuestionService(provider QuestionProvider, questionRepo repository.QuestionRepository, answerSalt string) *QuestionService {
	return &QuestionService{
		provider:     provider,
		questionRepo: questionRepo,
		answerSalt:   answerSalt,
	}
}

// Assign fetches a question for the combat and stores it with its answer
// key. Provider questions store only a salted hash of the correct answer;
// fallback questions keep the pool's legacy golden label.
func (s *QuestionService) Assign(ctx context.Context, tx *sql.Tx, combatID string, mode model.CombatMode) (*model.CombatQuestion, error) {
	if s.provider != nil {
		fetched, err := s.provider.FetchQuestion(ctx, mode)
		if err == nil {
			hash := model.HashAnswer(s.answerSalt, combatID, fetched.CorrectAnswer)
			cq := &model.CombatQuestion{
				ID:         uuid.NewString(),
				CombatID:   combatID,
				Dataset:    fetched.Dataset,
				Config:     fetched.Config,
				Split:      fetched.Split,
				RowOffset:  fetched.RowOffset,
				Prompt:     fetched.Prompt,
				Choices:    fetched.Choices,
				AnswerHash: &hash,
			}
			if err := s.questionRepo.CreateCombatQuestion(ctx, tx, cq); err != nil {
				return nil, err
			}
			return cq, nil
		}
		log.Printf("WARN: question provider failed for combat %s, falling back to local pool: %v", combatID, err)
	}

	fallback, err := s.questionRepo.RandomFallback(ctx)
	if err != nil {
		return nil, common.Errorf("no question available for combat %s: %w", combatID, common.ErrNoQuestions)
	}

	golden := fallback.GoldenLabel
	cq := &model.CombatQuestion{
		ID:          uuid.NewString(),
		CombatID:    combatID,
		Dataset:     "static",
		RowOffset:   0,
		Prompt:      fallback.Prompt,
		Choices:     fallback.Choices,
		GoldenLabel: &golden,
	}
	if err := s.questionRepo.CreateCombatQuestion(ctx, tx, cq); err != nil {
		return nil, err
	}
	return cq, nil
}

// SeedFallbackPool inserts the static questions if the pool is empty.
func (s *QuestionService) SeedFallbackPool(ctx context.Context) (int, error) {
	return s.questionRepo.SeedFallback(ctx, FallbackQuestions())
}

// FallbackQuestions is the built-in pool used when the external provider is
// unreachable. Labels use the legacy JSON golden format so both
// verification paths stay exercised in production.
func FallbackQuestions() []model.Question {
	make3 := func(prompt, correct string) model.Question {
		return model.Question{
			ID:          uuid.NewString(),
			Prompt:      prompt,
			Choices:     []string{"TRUE", "FALSE", "UNKNOWN"},
			GoldenLabel: `{"correct_answer": "` + correct + `"}`,
		}
	}

	return []model.Question{
		make3("**Context (Facts and Rules):**\nAll squares are rectangles. All rectangles have four sides.\n\n**Hypothesis:**\nAll squares have four sides.\n\nBased on the facts and rules provided, is the hypothesis TRUE, FALSE, or UNKNOWN?", "TRUE"),
		make3("**Context (Facts and Rules):**\nEvery mammal is warm-blooded. No reptile is warm-blooded.\n\n**Hypothesis:**\nSome reptiles are mammals.\n\nBased on the facts and rules provided, is the hypothesis TRUE, FALSE, or UNKNOWN?", "FALSE"),
		make3("**Context (Facts and Rules):**\nIf it rains, the street gets wet. The street is wet.\n\n**Hypothesis:**\nIt rained.\n\nBased on the facts and rules provided, is the hypothesis TRUE, FALSE, or UNKNOWN?", "UNKNOWN"),
		make3("**Context (Facts and Rules):**\nAnne is taller than Bob. Bob is taller than Carol.\n\n**Hypothesis:**\nAnne is taller than Carol.\n\nBased on the facts and rules provided, is the hypothesis TRUE, FALSE, or UNKNOWN?", "TRUE"),
		make3("**Context (Facts and Rules):**\nAll birds in the aviary can fly. Pip is a bird.\n\n**Hypothesis:**\nPip can fly.\n\nBased on the facts and rules provided, is the hypothesis TRUE, FALSE, or UNKNOWN?", "UNKNOWN"),
		make3("**Context (Facts and Rules):**\nNo even number greater than two is prime. Eight is an even number greater than two.\n\n**Hypothesis:**\nEight is prime.\n\nBased on the facts and rules provided, is the hypothesis TRUE, FALSE, or UNKNOWN?", "FALSE"),
		make3("**Context (Facts and Rules):**\nIf the alarm is armed, the door triggers it. The door did not trigger the alarm.\n\n**Hypothesis:**\nThe alarm is not armed or the door was not opened.\n\nBased on the facts and rules provided, is the hypothesis TRUE, FALSE, or UNKNOWN?", "TRUE"),
		make3("**Context (Facts and Rules):**\nSome cats are black. Whiskers is a cat.\n\n**Hypothesis:**\nWhiskers is black.\n\nBased on the facts and rules provided, is the hypothesis TRUE, FALSE, or UNKNOWN?", "UNKNOWN"),
	}
}
