package service

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"moltbattle/internal/common"
	"moltbattle/internal/domain/model"
)

type ParticipantStatus struct {
	Handle    string                 `json:"handle"`
	Ready     bool                   `json:"ready"`
	Status    model.SubmissionStatus `json:"status,omitempty"`
	Submitted *time.Time             `json:"submitted_at,omitempty"`
}

type CombatStatusResponse struct {
	CombatID         string             `json:"combat_id"`
	Code             string             `json:"code"`
	State            model.CombatState  `json:"state"`
	Mode             model.CombatMode   `json:"mode"`
	IsOpen           bool               `json:"is_open"`
	CreatedAt        time.Time          `json:"created_at"`
	StartedAt        *time.Time         `json:"started_at,omitempty"`
	ExpiresAt        *time.Time         `json:"expires_at,omitempty"`
	JoinDeadline     *time.Time         `json:"join_deadline,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty"`
	SecondsRemaining *int               `json:"seconds_remaining,omitempty"`
	ParticipantA     *ParticipantStatus `json:"participant_a,omitempty"`
	ParticipantB     *ParticipantStatus `json:"participant_b,omitempty"`
	WinnerHandle     *string            `json:"winner_handle,omitempty"`
	IsDraw           bool               `json:"is_draw"`
}

// Status reads the public view of a combat. Reads are where expiry happens:
// a combat past its deadline is transitioned and resolved before the
// response is built, so no background sweeper is needed.
func (s *CombatService) Status(ctx context.Context, code string) (*CombatStatusResponse, error) {
	combat, err := s.combatRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	combat, err = s.expireIfDue(ctx, combat)
	if err != nil {
		return nil, err
	}

	resp := &CombatStatusResponse{
		CombatID:     combat.ID,
		Code:         combat.Code,
		State:        combat.State,
		Mode:         combat.Mode,
		IsOpen:       combat.IsOpen,
		CreatedAt:    combat.CreatedAt,
		StartedAt:    combat.StartedAt,
		ExpiresAt:    combat.ExpiresAt,
		JoinDeadline: combat.JoinDeadline,
		CompletedAt:  combat.CompletedAt,
		IsDraw:       combat.IsDraw,
	}

	if deadline := s.activeDeadline(combat); deadline != nil {
		remaining := int(deadline.Sub(s.now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		resp.SecondsRemaining = &remaining
	}

	subs, err := s.submissionRepo.ListByCombat(ctx, combat.ID)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]*model.Submission, len(subs))
	for i := range subs {
		byUser[subs[i].UserID] = &subs[i]
	}

	resp.ParticipantA = s.participantStatus(ctx, combat, combat.UserAID, combat.ReadyA, byUser)
	if combat.UserBID != nil {
		resp.ParticipantB = s.participantStatus(ctx, combat, *combat.UserBID, combat.ReadyB, byUser)
	}

	if combat.WinnerID != nil {
		if winner, err := s.userRepo.FindByID(ctx, *combat.WinnerID); err == nil {
			resp.WinnerHandle = &winner.Handle
		}
	}
	return resp, nil
}

// participantStatus builds one participant's summary, synthesizing a
// "timeout" status when their deadline passed without a submission. Timeout
// is presentation only and never written back.
func (s *CombatService) participantStatus(ctx context.Context, combat *model.Combat, userID string, ready bool, byUser map[string]*model.Submission) *ParticipantStatus {
	ps := &ParticipantStatus{Ready: ready}
	if user, err := s.userRepo.FindByID(ctx, userID); err == nil {
		ps.Handle = user.Handle
	}
	if sub, ok := byUser[userID]; ok {
		ps.Status = sub.Status
		ps.Submitted = &sub.SubmittedAt
		return ps
	}
	if deadline := combat.Deadline(userID); deadline != nil && !s.now().Before(*deadline) {
		ps.Status = model.SubmissionTimeout
	}
	return ps
}

// activeDeadline is the next deadline relevant to the combat as a whole:
// the shared timer while running, the join window while parked OPEN, the
// still-open leg of an open combat.
func (s *CombatService) activeDeadline(c *model.Combat) *time.Time {
	switch c.State {
	case model.StateOpen:
		return c.JoinDeadline
	case model.StateRunning, model.StateKeysIssued:
		if !c.IsOpen {
			return c.ExpiresAt
		}
		if c.UserBID == nil {
			return c.ADeadline
		}
		return c.BDeadline
	}
	return nil
}

// expireIfDue transitions a combat whose deadline has passed to EXPIRED and
// resolves it, all inside one transaction. The state is re-checked under the
// row lock so concurrent readers expire it exactly once.
func (s *CombatService) expireIfDue(ctx context.Context, combat *model.Combat) (*model.Combat, error) {
	if !s.due(combat) {
		return combat, nil
	}

	var expired *model.Combat
	err := s.tx.RunInTx(ctx, func(tx *sql.Tx) error {
		c, err := s.combatRepo.FindByIDForUpdate(ctx, tx, combat.ID)
		if err != nil {
			return err
		}
		if !s.due(c) {
			expired = c
			return nil
		}
		now := s.now()
		c.State = model.StateExpired
		c.CompletedAt = &now
		if err := s.outcome.Resolve(ctx, tx, c); err != nil {
			return err
		}
		if err := s.keyRepo.RevokeByCombat(ctx, tx, c.ID); err != nil {
			return err
		}
		if err := s.combatRepo.Update(ctx, tx, c); err != nil {
			return err
		}
		log.Printf("INFO: combat %s expired lazily on read", c.ID)
		expired = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// due reports whether the combat's governing deadline has been reached.
// At-or-after the deadline counts as due, matching the submission check.
func (s *CombatService) due(c *model.Combat) bool {
	now := s.now()
	past := func(t *time.Time) bool { return t != nil && !now.Before(*t) }

	switch c.State {
	case model.StateOpen:
		return past(c.JoinDeadline)
	case model.StateKeysIssued:
		// Provisional timer from key issuance; combats abandoned before
		// both ready marks still get cleaned up on read.
		return past(c.ExpiresAt)
	case model.StateRunning:
		if !c.IsOpen {
			return past(c.ExpiresAt)
		}
		if c.UserBID == nil {
			return past(c.ADeadline)
		}
		return past(c.BDeadline)
	}
	return false
}

type AgentCombatView struct {
	CombatID         string            `json:"combat_id"`
	Code             string            `json:"code"`
	State            model.CombatState `json:"state"`
	Mode             model.CombatMode  `json:"mode"`
	Prompt           string            `json:"prompt,omitempty"`
	Choices          []string          `json:"choices,omitempty"`
	Deadline         *time.Time        `json:"deadline,omitempty"`
	SecondsRemaining *int              `json:"seconds_remaining,omitempty"`
	Submitted        bool              `json:"submitted"`
}

// AgentView is what a combat-key holder sees mid-combat: the question and
// their own deadline, never the opponent's progress or the answer key.
func (s *CombatService) AgentView(ctx context.Context, userID, combatID string) (*AgentCombatView, error) {
	combat, err := s.combatRepo.FindByID(ctx, combatID)
	if err != nil {
		return nil, err
	}
	if !combat.IsParticipant(userID) {
		return nil, common.Errorf("caller is not a participant of this combat: %w", common.ErrForbidden)
	}
	combat, err = s.expireIfDue(ctx, combat)
	if err != nil {
		return nil, err
	}

	view := &AgentCombatView{
		CombatID: combat.ID,
		Code:     combat.Code,
		State:    combat.State,
		Mode:     combat.Mode,
	}

	if _, err := s.submissionRepo.FindByCombatAndUser(ctx, combat.ID, userID); err == nil {
		view.Submitted = true
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	if combat.State != model.StateRunning {
		return view, nil
	}

	question, err := s.questionRepo(ctx, combat.ID)
	if err != nil {
		return nil, err
	}
	view.Prompt = question.Prompt
	view.Choices = question.Choices
	if deadline := combat.Deadline(userID); deadline != nil {
		view.Deadline = deadline
		remaining := int(deadline.Sub(s.now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		view.SecondsRemaining = &remaining
	}
	return view, nil
}

type CombatResultEntry struct {
	Handle      string     `json:"handle"`
	Answer      string     `json:"answer,omitempty"`
	Correct     *bool      `json:"correct,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type CombatResultResponse struct {
	CombatID      string              `json:"combat_id"`
	Code          string              `json:"code"`
	State         model.CombatState   `json:"state"`
	WinnerHandle  *string             `json:"winner_handle,omitempty"`
	IsDraw        bool                `json:"is_draw"`
	CorrectAnswer *string             `json:"correct_answer,omitempty"`
	Prompt        string              `json:"prompt,omitempty"`
	Participants  []CombatResultEntry `json:"participants"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
}

// Result reveals the full outcome of a terminal combat: all answers, their
// correctness, and the correct choice. Non-terminal combats are rejected so
// the answer key never leaks mid-combat.
func (s *CombatService) Result(ctx context.Context, code string) (*CombatResultResponse, error) {
	combat, err := s.combatRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	combat, err = s.expireIfDue(ctx, combat)
	if err != nil {
		return nil, err
	}
	if !combat.State.Terminal() {
		return nil, common.Errorf("combat is not finished yet: %w", common.ErrInvalidState)
	}

	resp := &CombatResultResponse{
		CombatID:    combat.ID,
		Code:        combat.Code,
		State:       combat.State,
		IsDraw:      combat.IsDraw,
		CompletedAt: combat.CompletedAt,
	}
	if combat.WinnerID != nil {
		if winner, err := s.userRepo.FindByID(ctx, *combat.WinnerID); err == nil {
			resp.WinnerHandle = &winner.Handle
		}
	}

	question, err := s.questionRepo(ctx, combat.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	var key *model.AnswerKey
	if question != nil {
		resp.Prompt = question.Prompt
		k := question.Key()
		key = &k
		resp.CorrectAnswer = k.RevealCorrect(s.answerSalt)
	}

	subs, err := s.submissionRepo.ListByCombat(ctx, combat.ID)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		sub := &subs[i]
		entry := CombatResultEntry{Answer: sub.Answer}
		submitted := sub.SubmittedAt
		entry.SubmittedAt = &submitted
		if user, err := s.userRepo.FindByID(ctx, sub.UserID); err == nil {
			entry.Handle = user.Handle
		}
		if key != nil {
			correct := key.Verify(s.answerSalt, sub.Answer)
			entry.Correct = &correct
		}
		resp.Participants = append(resp.Participants, entry)
	}
	return resp, nil
}

type CombatDetail struct {
	Combat      model.Combat          `json:"combat"`
	Question    *model.CombatQuestion `json:"question,omitempty"`
	Submissions []model.Submission    `json:"submissions"`
}

// Detail is the admin view: the raw combat record with its question and
// submissions. Answer keys are not serialized, so the detail is safe to
// show mid-combat.
func (s *CombatService) Detail(ctx context.Context, combatID string) (*CombatDetail, error) {
	combat, err := s.combatRepo.FindByID(ctx, combatID)
	if err != nil {
		return nil, err
	}
	detail := &CombatDetail{Combat: *combat}

	question, err := s.questionRepo(ctx, combat.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	detail.Question = question

	subs, err := s.submissionRepo.ListByCombat(ctx, combat.ID)
	if err != nil {
		return nil, err
	}
	detail.Submissions = subs
	return detail, nil
}

// ListCombats is the admin listing, newest first.
func (s *CombatService) ListCombats(ctx context.Context, limit, offset int) ([]model.Combat, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.combatRepo.List(ctx, limit, offset)
}
