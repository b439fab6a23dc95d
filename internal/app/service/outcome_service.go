package service

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"moltbattle/internal/common"
	"moltbattle/internal/domain/model"
	"moltbattle/internal/domain/repository"
)

// OutcomeService decides winner/draw for a finished combat and applies
// aggregate stat counters, exactly once per combat. It is invoked from both
// the final-submission path and the lazy-expiry path; the Resolved guard on
// the combat record makes repeat invocations no-ops.
type OutcomeService struct {
	submissionRepo repository.SubmissionRepository
	questionRepo   repository.QuestionRepository
	userRepo       repository.UserRepository
	answerSalt     string
}

func NewOutcomeService(
	submissionRepo repository.SubmissionRepository,
	questionRepo repository.QuestionRepository,
	userRepo repository.UserRepository,
	answerSalt string,
) *OutcomeService {
	return &OutcomeService{
		submissionRepo: submissionRepo,
		questionRepo:   questionRepo,
		userRepo:       userRepo,
		answerSalt:     answerSalt,
	}
}

// Resolve mutates the combat's WinnerID/IsDraw fields and increments both
// participants' counters inside the caller's transaction. The caller
// persists the combat record. Missing collaborating records degrade to a
// logged no-op: resolution is attempted opportunistically from several call
// sites and must never fail a read.
func (s *OutcomeService) Resolve(ctx context.Context, tx *sql.Tx, combat *model.Combat) error {
	if combat.Resolved() {
		return nil
	}
	if !combat.State.Terminal() {
		return common.Errorf("combat %s is not finished: %w", combat.ID, common.ErrInvalidState)
	}

	subs, err := s.submissionRepo.ListByCombat(ctx, combat.ID)
	if err != nil {
		log.Printf("ERROR: outcome resolution for combat %s could not load submissions, skipping: %v", combat.ID, err)
		return nil
	}

	var subA, subB *model.Submission
	for i := range subs {
		sub := &subs[i]
		switch {
		case sub.UserID == combat.UserAID:
			subA = sub
		case combat.UserBID != nil && sub.UserID == *combat.UserBID:
			subB = sub
		}
	}

	// Sole-participant combats (open challenges nobody joined, or a first
	// leg that timed out) settle as a draw for the lone participant.
	if combat.UserBID == nil {
		combat.IsDraw = true
		if err := s.userRepo.ApplyStatDelta(ctx, tx, combat.UserAID, model.StatDelta{Draws: 1, TotalCombats: 1}); err != nil {
			return err
		}
		log.Printf("INFO: combat %s resolved as draw (no opponent joined)", combat.ID)
		return nil
	}

	correctA := s.correct(ctx, combat, combat.AScore, subA)
	correctB := s.correct(ctx, combat, combat.BScore, subB)

	deltaA := model.StatDelta{TotalCombats: 1}
	deltaB := model.StatDelta{TotalCombats: 1}

	switch {
	case correctA && correctB:
		// Earlier submission wins; on identical timestamps A wins. An
		// arbitrary but fixed policy.
		if !subA.SubmittedAt.After(subB.SubmittedAt) {
			combat.WinnerID = &combat.UserAID
			deltaA.Wins, deltaB.Losses = 1, 1
		} else {
			combat.WinnerID = combat.UserBID
			deltaB.Wins, deltaA.Losses = 1, 1
		}
	case correctA:
		combat.WinnerID = &combat.UserAID
		deltaA.Wins, deltaB.Losses = 1, 1
	case correctB:
		combat.WinnerID = combat.UserBID
		deltaB.Wins, deltaA.Losses = 1, 1
	default:
		combat.IsDraw = true
		deltaA.Draws, deltaB.Draws = 1, 1
	}

	if err := s.userRepo.ApplyStatDelta(ctx, tx, combat.UserAID, deltaA); err != nil {
		return err
	}
	if err := s.userRepo.ApplyStatDelta(ctx, tx, *combat.UserBID, deltaB); err != nil {
		return err
	}

	if combat.WinnerID != nil {
		log.Printf("INFO: combat %s resolved, winner %s", combat.ID, *combat.WinnerID)
	} else {
		log.Printf("INFO: combat %s resolved as draw", combat.ID)
	}
	return nil
}

// correct determines a participant's correctness: the provisional score
// recorded when an open-combat leg closed, otherwise the submission checked
// against the question's answer key. No submission means not correct.
func (s *OutcomeService) correct(ctx context.Context, combat *model.Combat, provisional *int, sub *model.Submission) bool {
	if provisional != nil {
		return *provisional == 1
	}
	if sub == nil || sub.Status != model.SubmissionSubmitted {
		return false
	}

	question, err := s.questionRepo.FindByCombatID(ctx, combat.ID)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			log.Printf("ERROR: outcome resolution for combat %s could not load question: %v", combat.ID, err)
		}
		return false
	}
	return question.Key().Verify(s.answerSalt, sub.Answer)
}
