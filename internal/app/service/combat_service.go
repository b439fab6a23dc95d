package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"moltbattle/internal/app/keyvault"
	"moltbattle/internal/common"
	"moltbattle/internal/common/security"
	"moltbattle/internal/domain/model"
	"moltbattle/internal/domain/repository"

	"github.com/google/uuid"
)

// CombatService owns the combat lifecycle state machine. It is stateless
// between calls: all state lives in the combat and submission records, and
// every transition runs inside a single validate-then-write transaction.
// Expiry is detected lazily on reads; there is no background sweep.
type CombatService struct {
	tx             repository.TxRunner
	combatRepo     repository.CombatRepository
	submissionRepo repository.SubmissionRepository
	keyRepo        repository.CombatKeyRepository
	userRepo       repository.UserRepository
	questions      *QuestionService
	outcome        *OutcomeService
	vault          keyvault.Vault

	timeLimit  time.Duration
	joinWindow time.Duration
	baseURL    string
	answerSalt string

	now func() time.Time
}

func NewCombatService(
	tx repository.TxRunner,
	combatRepo repository.CombatRepository,
	submissionRepo repository.SubmissionRepository,
	keyRepo repository.CombatKeyRepository,
	userRepo repository.UserRepository,
	questions *QuestionService,
	outcome *OutcomeService,
	vault keyvault.Vault,
	timeLimit, joinWindow time.Duration,
	baseURL, answerSalt string,
) *CombatService {
	return &CombatService{
		tx:             tx,
		combatRepo:     combatRepo,
		submissionRepo: submissionRepo,
		keyRepo:        keyRepo,
		userRepo:       userRepo,
		questions:      questions,
		outcome:        outcome,
		vault:          vault,
		timeLimit:      timeLimit,
		joinWindow:     joinWindow,
		baseURL:        baseURL,
		answerSalt:     answerSalt,
		now:            time.Now,
	}
}

type CreateCombatRequest struct {
	Mode string `json:"mode"`
	Open bool   `json:"open"`
}

type CreateCombatResponse struct {
	CombatID  string            `json:"combat_id"`
	Code      string            `json:"code"`
	State     model.CombatState `json:"state"`
	InviteURL string            `json:"invite_url,omitempty"`
	KeyURL    string            `json:"key_url,omitempty"`
	Deadline  *time.Time        `json:"deadline,omitempty"`
}

// Create starts a combat. Invite combats begin at CREATED and wait for an
// acceptance; open combats begin RUNNING immediately with a question, a key
// for the challenger and an individual timer already ticking.
func (s *CombatService) Create(ctx context.Context, userID string, req CreateCombatRequest) (*CreateCombatResponse, error) {
	mode, ok := model.ParseCombatMode(req.Mode)
	if !ok {
		return nil, common.Errorf("mode must be formal_logic or argument_logic: %w", common.ErrValidation)
	}

	code, err := s.uniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	combat := &model.Combat{
		ID:      uuid.NewString(),
		Code:    code,
		State:   model.StateCreated,
		Mode:    mode,
		IsOpen:  req.Open,
		UserAID: userID,
	}

	if !req.Open {
		err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
			return s.combatRepo.Create(ctx, tx, combat)
		})
		if err != nil {
			return nil, err
		}
		return &CreateCombatResponse{
			CombatID:  combat.ID,
			Code:      combat.Code,
			State:     combat.State,
			InviteURL: s.baseURL + "/accept/" + combat.Code,
		}, nil
	}

	now := s.now()
	deadline := now.Add(s.timeLimit)
	combat.State = model.StateRunning
	combat.StartedAt = &now
	combat.ADeadline = &deadline

	err = s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		if err := s.combatRepo.Create(ctx, tx, combat); err != nil {
			return err
		}
		if _, err := s.questions.Assign(ctx, tx, combat.ID, combat.Mode); err != nil {
			return err
		}
		return s.mintKey(ctx, tx, combat.ID, userID)
	})
	if err != nil {
		return nil, err
	}

	return &CreateCombatResponse{
		CombatID: combat.ID,
		Code:     combat.Code,
		State:    combat.State,
		KeyURL:   s.baseURL + "/api/v1/combats/" + combat.Code + "/key",
		Deadline: combat.ADeadline,
	}, nil
}

type AcceptCombatResponse struct {
	CombatID string            `json:"combat_id"`
	State    model.CombatState `json:"state"`
}

// Accept binds the second participant to an invite combat.
func (s *CombatService) Accept(ctx context.Context, userID, code string) (*AcceptCombatResponse, error) {
	var combat *model.Combat
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		c, err := s.combatRepo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		if c.UserAID == userID {
			return common.Errorf("cannot accept your own combat: %w", common.ErrForbidden)
		}
		if c.IsOpen {
			return common.Errorf("open combats are joined through matchmaking, not accepted: %w", common.ErrInvalidState)
		}
		if c.State != model.StateCreated {
			return common.Errorf("combat already accepted or started: %w", common.ErrInvalidState)
		}

		now := s.now()
		c.UserBID = &userID
		c.AcceptedAt = &now
		c.State = model.StateAccepted
		combat = c
		return s.combatRepo.Update(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return &AcceptCombatResponse{CombatID: combat.ID, State: combat.State}, nil
}

type IssueKeysResponse struct {
	CombatID string            `json:"combat_id"`
	State    model.CombatState `json:"state"`
	KeyURL   string            `json:"key_url"`
}

// IssueKeys mints one combat-scoped key per participant, assigns the
// question, and stamps a provisional shared expiry. The clock restarts once
// both participants mark ready. Keys are checked by existence and never
// reissued.
func (s *CombatService) IssueKeys(ctx context.Context, code string) (*IssueKeysResponse, error) {
	var combat *model.Combat
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		c, err := s.combatRepo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		if c.IsOpen {
			return common.Errorf("open combats issue keys automatically: %w", common.ErrInvalidState)
		}
		if c.State != model.StateAccepted {
			return common.Errorf("combat must be accepted before requesting keys: %w", common.ErrInvalidState)
		}
		existing, err := s.keyRepo.CountByCombat(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if existing > 0 {
			return common.Errorf("keys already issued for this combat: %w", common.ErrInvalidState)
		}

		if err := s.mintKey(ctx, tx, c.ID, c.UserAID); err != nil {
			return err
		}
		if err := s.mintKey(ctx, tx, c.ID, *c.UserBID); err != nil {
			return err
		}
		if _, err := s.questions.Assign(ctx, tx, c.ID, c.Mode); err != nil {
			return err
		}

		now := s.now()
		expires := now.Add(s.timeLimit)
		c.StartedAt = &now
		c.ExpiresAt = &expires
		c.State = model.StateKeysIssued
		combat = c
		return s.combatRepo.Update(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return &IssueKeysResponse{
		CombatID: combat.ID,
		State:    combat.State,
		KeyURL:   s.baseURL + "/api/v1/combats/" + combat.Code + "/key",
	}, nil
}

type MarkReadyResponse struct {
	CombatID  string            `json:"combat_id"`
	State     model.CombatState `json:"state"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
}

// MarkReady records a participant's readiness. The shared timer does not
// start until both participants are ready, so one slow key retrieval cannot
// burn the other's clock.
func (s *CombatService) MarkReady(ctx context.Context, userID, code string) (*MarkReadyResponse, error) {
	var combat *model.Combat
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		c, err := s.combatRepo.FindByCodeForUpdate(ctx, tx, code)
		if err != nil {
			return err
		}
		if !c.IsParticipant(userID) {
			return common.Errorf("only combat participants can mark ready: %w", common.ErrForbidden)
		}
		if c.IsOpen {
			return common.Errorf("open combats start automatically: %w", common.ErrInvalidState)
		}
		if c.State != model.StateKeysIssued && c.State != model.StateRunning {
			return common.Errorf("keys must be issued before marking ready: %w", common.ErrInvalidState)
		}

		if c.UserAID == userID {
			c.ReadyA = true
		} else {
			c.ReadyB = true
		}

		if c.State == model.StateKeysIssued && c.ReadyA && c.ReadyB {
			now := s.now()
			expires := now.Add(s.timeLimit)
			c.StartedAt = &now
			c.ExpiresAt = &expires
			c.State = model.StateRunning
		}
		combat = c
		return s.combatRepo.Update(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return &MarkReadyResponse{CombatID: combat.ID, State: combat.State, ExpiresAt: combat.ExpiresAt}, nil
}

type JoinOpenResponse struct {
	CombatID string            `json:"combat_id"`
	Code     string            `json:"code"`
	State    model.CombatState `json:"state"`
	KeyURL   string            `json:"key_url"`
	Deadline *time.Time        `json:"deadline"`
}

// JoinOpen attaches the caller to the oldest OPEN combat still inside its
// join window and starts their individual leg.
func (s *CombatService) JoinOpen(ctx context.Context, userID string) (*JoinOpenResponse, error) {
	var combat *model.Combat
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		c, err := s.combatRepo.FindJoinableOpen(ctx, tx, userID, s.now())
		if err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.Errorf("no open combat is waiting for an opponent: %w", common.ErrNotFound)
			}
			return err
		}

		now := s.now()
		deadline := now.Add(s.timeLimit)
		c.UserBID = &userID
		c.BDeadline = &deadline
		c.State = model.StateRunning
		if err := s.mintKey(ctx, tx, c.ID, userID); err != nil {
			return err
		}
		combat = c
		return s.combatRepo.Update(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return &JoinOpenResponse{
		CombatID: combat.ID,
		Code:     combat.Code,
		State:    combat.State,
		KeyURL:   s.baseURL + "/api/v1/combats/" + combat.Code + "/key",
		Deadline: combat.BDeadline,
	}, nil
}

// RetrieveKey surfaces a participant's plaintext combat key exactly once.
func (s *CombatService) RetrieveKey(ctx context.Context, userID, code string) (string, error) {
	combat, err := s.combatRepo.FindByCode(ctx, code)
	if err != nil {
		return "", err
	}
	if !combat.IsParticipant(userID) {
		return "", common.Errorf("only combat participants can retrieve a key: %w", common.ErrForbidden)
	}
	plaintext, err := s.vault.Take(ctx, combat.ID, userID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.Errorf("key already retrieved or retrieval window expired: %w", common.ErrNotFound)
		}
		return "", err
	}
	return plaintext, nil
}

type SubmitAnswerResponse struct {
	CombatID string            `json:"combat_id"`
	State    model.CombatState `json:"state"`
	Status   string            `json:"status"`
}

// SubmitAnswer records one answer per participant. A submission at or after
// the caller's deadline is rejected; strictly before is accepted. For an
// open combat with no opponent yet, submitting closes the first leg and
// parks the combat in OPEN. Otherwise the second submission completes the
// combat and resolves it synchronously.
func (s *CombatService) SubmitAnswer(ctx context.Context, userID, combatID, answer string) (*SubmitAnswerResponse, error) {
	var combat *model.Combat
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		c, err := s.combatRepo.FindByIDForUpdate(ctx, tx, combatID)
		if err != nil {
			return err
		}
		if !c.IsParticipant(userID) {
			return common.Errorf("caller is not a participant of this combat: %w", common.ErrForbidden)
		}
		if c.State != model.StateRunning {
			return common.Errorf("combat is not running: %w", common.ErrInvalidState)
		}

		now := s.now()
		deadline := c.Deadline(userID)
		if deadline == nil {
			return common.Errorf("combat has no active timer for this participant: %w", common.ErrInvalidState)
		}
		if !now.Before(*deadline) {
			return common.Errorf("combat time limit expired: %w", common.ErrExpired)
		}

		if _, err := s.submissionRepo.FindByCombatAndUser(ctx, c.ID, userID); err == nil {
			return common.Errorf("answer already submitted: %w", common.ErrInvalidState)
		} else if !errors.Is(err, common.ErrNotFound) {
			return err
		}

		sub := &model.Submission{
			ID:          uuid.NewString(),
			CombatID:    c.ID,
			UserID:      userID,
			Answer:      answer,
			Status:      model.SubmissionSubmitted,
			SubmittedAt: now,
		}
		if err := s.submissionRepo.Create(ctx, tx, sub); err != nil {
			return err
		}

		if c.IsOpen {
			score := 0
			question, qerr := s.questionRepo(ctx, c.ID)
			if qerr != nil {
				if !errors.Is(qerr, common.ErrNotFound) {
					return qerr
				}
			} else if question.Key().Verify(s.answerSalt, answer) {
				score = 1
			}
			if c.UserAID == userID {
				c.AScore = &score
			} else {
				c.BScore = &score
			}
		}

		if c.IsOpen && c.UserBID == nil {
			// First leg closed; wait for an opponent.
			joinDeadline := now.Add(s.joinWindow)
			c.JoinDeadline = &joinDeadline
			c.State = model.StateOpen
			combat = c
			return s.combatRepo.Update(ctx, tx, c)
		}

		count, err := s.submissionRepo.CountByCombat(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		if count >= 2 {
			c.State = model.StateCompleted
			c.CompletedAt = &now
			if err := s.outcome.Resolve(ctx, tx, c); err != nil {
				return err
			}
			if err := s.keyRepo.RevokeByCombat(ctx, tx, c.ID); err != nil {
				return err
			}
		}
		combat = c
		return s.combatRepo.Update(ctx, tx, c)
	})
	if err != nil {
		return nil, err
	}
	return &SubmitAnswerResponse{CombatID: combat.ID, State: combat.State, Status: string(model.SubmissionSubmitted)}, nil
}

// questionRepo looks up the combat's question through the question service's
// repository; kept as a method to avoid duplicating the dependency.
func (s *CombatService) questionRepo(ctx context.Context, combatID string) (*model.CombatQuestion, error) {
	return s.questions.questionRepo.FindByCombatID(ctx, combatID)
}

// uniqueCode retries random generation until no collision exists. Over a
// 35-symbol 6-character space collisions are effectively impossible, but
// the loop keeps the guarantee explicit.
func (s *CombatService) uniqueCode(ctx context.Context) (string, error) {
	for {
		code, err := security.GenerateCombatCode()
		if err != nil {
			return "", err
		}
		exists, err := s.combatRepo.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
		log.Printf("WARN: combat code collision on %s, regenerating", code)
	}
}

// mintKey creates a hashed key record and parks the plaintext in the vault
// for one-time retrieval.
func (s *CombatService) mintKey(ctx context.Context, tx *sql.Tx, combatID, userID string) error {
	plaintext, err := security.GenerateCombatKey()
	if err != nil {
		return err
	}
	key := &model.CombatKey{
		ID:        uuid.NewString(),
		CombatID:  combatID,
		UserID:    userID,
		TokenHash: security.HashToken(plaintext),
	}
	if err := s.keyRepo.Create(ctx, tx, key); err != nil {
		return err
	}
	return s.vault.Put(ctx, combatID, userID, plaintext)
}
