package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"moltbattle/internal/common"
	"moltbattle/internal/domain/model"
	"moltbattle/internal/platform/hfdata"
)

// stubTxRunner runs the function directly; the fakes below ignore the tx
// handle, so transactional code paths exercise without a database.
type stubTxRunner struct{}

func (stubTxRunner) RunInTx(_ context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

type fakeCombatRepo struct {
	combats map[string]model.Combat
}

func newFakeCombatRepo() *fakeCombatRepo {
	return &fakeCombatRepo{combats: make(map[string]model.Combat)}
}

func (r *fakeCombatRepo) Create(_ context.Context, _ *sql.Tx, c *model.Combat) error {
	for _, existing := range r.combats {
		if existing.Code == c.Code {
			return common.ErrConflict
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	r.combats[c.ID] = *c
	return nil
}

func (r *fakeCombatRepo) FindByID(_ context.Context, id string) (*model.Combat, error) {
	c, ok := r.combats[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := c
	return &copied, nil
}

func (r *fakeCombatRepo) FindByCode(_ context.Context, code string) (*model.Combat, error) {
	for _, c := range r.combats {
		if c.Code == code {
			copied := c
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeCombatRepo) FindByCodeForUpdate(ctx context.Context, _ *sql.Tx, code string) (*model.Combat, error) {
	return r.FindByCode(ctx, code)
}

func (r *fakeCombatRepo) FindByIDForUpdate(ctx context.Context, _ *sql.Tx, id string) (*model.Combat, error) {
	return r.FindByID(ctx, id)
}

func (r *fakeCombatRepo) FindJoinableOpen(_ context.Context, _ *sql.Tx, userID string, now time.Time) (*model.Combat, error) {
	var candidates []model.Combat
	for _, c := range r.combats {
		if c.State == model.StateOpen && c.IsOpen && c.UserBID == nil &&
			c.UserAID != userID && c.JoinDeadline != nil && c.JoinDeadline.After(now) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil, common.ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].CreatedAt.Before(candidates[j].CreatedAt)
	})
	copied := candidates[0]
	return &copied, nil
}

func (r *fakeCombatRepo) CodeExists(_ context.Context, code string) (bool, error) {
	for _, c := range r.combats {
		if c.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCombatRepo) Update(_ context.Context, _ *sql.Tx, c *model.Combat) error {
	if _, ok := r.combats[c.ID]; !ok {
		return common.ErrNotFound
	}
	r.combats[c.ID] = *c
	return nil
}

func (r *fakeCombatRepo) List(_ context.Context, limit, offset int) ([]model.Combat, error) {
	var all []model.Combat
	for _, c := range r.combats {
		all = append(all, c)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if offset >= len(all) {
		return []model.Combat{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

type fakeSubmissionRepo struct {
	subs []model.Submission
}

func (r *fakeSubmissionRepo) Create(_ context.Context, _ *sql.Tx, sub *model.Submission) error {
	for _, existing := range r.subs {
		if existing.CombatID == sub.CombatID && existing.UserID == sub.UserID {
			return common.Errorf("answer already submitted: %w", common.ErrInvalidState)
		}
	}
	r.subs = append(r.subs, *sub)
	return nil
}

func (r *fakeSubmissionRepo) FindByCombatAndUser(_ context.Context, combatID, userID string) (*model.Submission, error) {
	for i := range r.subs {
		if r.subs[i].CombatID == combatID && r.subs[i].UserID == userID {
			copied := r.subs[i]
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeSubmissionRepo) ListByCombat(_ context.Context, combatID string) ([]model.Submission, error) {
	var out []model.Submission
	for _, sub := range r.subs {
		if sub.CombatID == combatID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out, nil
}

func (r *fakeSubmissionRepo) CountByCombat(_ context.Context, _ *sql.Tx, combatID string) (int, error) {
	count := 0
	for _, sub := range r.subs {
		if sub.CombatID == combatID {
			count++
		}
	}
	return count, nil
}

type fakeKeyRepo struct {
	keys []model.CombatKey
}

func (r *fakeKeyRepo) Create(_ context.Context, _ *sql.Tx, key *model.CombatKey) error {
	r.keys = append(r.keys, *key)
	return nil
}

func (r *fakeKeyRepo) CountByCombat(_ context.Context, _ *sql.Tx, combatID string) (int, error) {
	count := 0
	for _, key := range r.keys {
		if key.CombatID == combatID {
			count++
		}
	}
	return count, nil
}

func (r *fakeKeyRepo) FindByTokenHash(_ context.Context, tokenHash string) (*model.CombatKey, error) {
	for i := range r.keys {
		if r.keys[i].TokenHash == tokenHash && r.keys[i].RevokedAt == nil {
			copied := r.keys[i]
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeKeyRepo) RevokeByCombat(_ context.Context, _ *sql.Tx, combatID string) error {
	now := time.Now()
	for i := range r.keys {
		if r.keys[i].CombatID == combatID && r.keys[i].RevokedAt == nil {
			r.keys[i].RevokedAt = &now
		}
	}
	return nil
}

type fakeUserRepo struct {
	users  map[string]model.User
	tokens map[string]string // token hash -> user id
}

func newFakeUserRepo(users ...model.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[string]model.User), tokens: make(map[string]string)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	for _, existing := range r.users {
		if existing.Handle == user.Handle {
			return common.Errorf("handle already taken: %w", common.ErrConflict)
		}
	}
	r.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) FindByHandle(_ context.Context, handle string) (*model.User, error) {
	for _, u := range r.users {
		if u.Handle == handle {
			copied := u
			return &copied, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeUserRepo) FindByID(_ context.Context, id string) (*model.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := u
	return &copied, nil
}

func (r *fakeUserRepo) ApplyStatDelta(_ context.Context, _ *sql.Tx, userID string, delta model.StatDelta) error {
	u, ok := r.users[userID]
	if !ok {
		return common.ErrNotFound
	}
	u.Wins += delta.Wins
	u.Losses += delta.Losses
	u.Draws += delta.Draws
	u.TotalCombats += delta.TotalCombats
	r.users[userID] = u
	return nil
}

func (r *fakeUserRepo) Leaderboard(_ context.Context, limit int) ([]model.User, error) {
	var all []model.User
	for _, u := range r.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool {
		si, sj := all[i].Score(), all[j].Score()
		if si != sj {
			return si > sj
		}
		if all[i].Wins != all[j].Wins {
			return all[i].Wins > all[j].Wins
		}
		return all[i].Handle < all[j].Handle
	})
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeUserRepo) CreatePersonalToken(_ context.Context, userID, tokenHash string) error {
	r.tokens[tokenHash] = userID
	return nil
}

func (r *fakeUserRepo) FindByPersonalTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	userID, ok := r.tokens[tokenHash]
	if !ok {
		return nil, common.ErrNotFound
	}
	return r.FindByID(ctx, userID)
}

type fakeQuestionRepo struct {
	byCombat map[string]model.CombatQuestion
	fallback []model.Question
	findErr  error // forced failure for FindByCombatID
}

func newFakeQuestionRepo() *fakeQuestionRepo {
	return &fakeQuestionRepo{byCombat: make(map[string]model.CombatQuestion)}
}

func (r *fakeQuestionRepo) CreateCombatQuestion(_ context.Context, _ *sql.Tx, q *model.CombatQuestion) error {
	r.byCombat[q.CombatID] = *q
	return nil
}

func (r *fakeQuestionRepo) FindByCombatID(_ context.Context, combatID string) (*model.CombatQuestion, error) {
	if r.findErr != nil {
		return nil, r.findErr
	}
	q, ok := r.byCombat[combatID]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := q
	return &copied, nil
}

func (r *fakeQuestionRepo) RandomFallback(_ context.Context) (*model.Question, error) {
	if len(r.fallback) == 0 {
		return nil, common.ErrNoQuestions
	}
	copied := r.fallback[0]
	return &copied, nil
}

func (r *fakeQuestionRepo) CountFallback(_ context.Context) (int, error) {
	return len(r.fallback), nil
}

func (r *fakeQuestionRepo) SeedFallback(_ context.Context, questions []model.Question) (int, error) {
	if len(r.fallback) > 0 {
		return 0, nil
	}
	r.fallback = append(r.fallback, questions...)
	return len(questions), nil
}

func (r *fakeQuestionRepo) ListFallback(_ context.Context) ([]model.Question, error) {
	return append([]model.Question(nil), r.fallback...), nil
}

type fakeVault struct {
	secrets map[string]string
}

func newFakeVault() *fakeVault {
	return &fakeVault{secrets: make(map[string]string)}
}

func (v *fakeVault) Put(_ context.Context, combatID, userID, plaintext string) error {
	v.secrets[combatID+":"+userID] = plaintext
	return nil
}

func (v *fakeVault) Take(_ context.Context, combatID, userID string) (string, error) {
	key := combatID + ":" + userID
	plaintext, ok := v.secrets[key]
	if !ok {
		return "", common.ErrNotFound
	}
	delete(v.secrets, key)
	return plaintext, nil
}

// fakeProvider returns a canned question or a canned error.
type fakeProvider struct {
	question *hfdata.Question
	err      error
	calls    int
}

func (p *fakeProvider) FetchQuestion(_ context.Context, _ model.CombatMode) (*hfdata.Question, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.question, nil
}

var errProviderDown = errors.New("dataset viewer unreachable")
