package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moltbattle/internal/common"
	"moltbattle/internal/domain/model"
)

type CombatKeyRepository interface {
	Create(ctx context.Context, tx *sql.Tx, key *model.CombatKey) error
	// CountByCombat backs the issue-keys idempotency guard: keys are checked
	// by existence, never reissued.
	CountByCombat(ctx context.Context, tx *sql.Tx, combatID string) (int, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.CombatKey, error)
	// RevokeByCombat invalidates every live key for a combat, called when
	// the combat reaches a terminal state.
	RevokeByCombat(ctx context.Context, tx *sql.Tx, combatID string) error
}

type pgCombatKeyRepository struct {
	db *sql.DB
}

func NewPgCombatKeyRepository(db *sql.DB) CombatKeyRepository {
	return &pgCombatKeyRepository{db: db}
}

func (r *pgCombatKeyRepository) Create(ctx context.Context, tx *sql.Tx, key *model.CombatKey) error {
	query := `INSERT INTO combat_keys (id, combat_id, user_id, token_hash) VALUES ($1, $2, $3, $4)`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, key.ID, key.CombatID, key.UserID, key.TokenHash)
	} else {
		_, err = r.db.ExecContext(ctx, query, key.ID, key.CombatID, key.UserID, key.TokenHash)
	}
	if err != nil {
		return fmt.Errorf("pgCombatKeyRepository.Create: %w", err)
	}
	return nil
}

func (r *pgCombatKeyRepository) CountByCombat(ctx context.Context, tx *sql.Tx, combatID string) (int, error) {
	query := `SELECT COUNT(*) FROM combat_keys WHERE combat_id = $1`
	var count int
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, combatID).Scan(&count)
	} else {
		err = r.db.QueryRowContext(ctx, query, combatID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("pgCombatKeyRepository.CountByCombat: %w", err)
	}
	return count, nil
}

func (r *pgCombatKeyRepository) FindByTokenHash(ctx context.Context, tokenHash string) (*model.CombatKey, error) {
	query := `SELECT id, combat_id, user_id, token_hash, created_at, revoked_at
	          FROM combat_keys WHERE token_hash = $1 AND revoked_at IS NULL`
	key := &model.CombatKey{}
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(
		&key.ID, &key.CombatID, &key.UserID, &key.TokenHash, &key.CreatedAt, &key.RevokedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgCombatKeyRepository.FindByTokenHash: %w", err)
	}
	return key, nil
}

func (r *pgCombatKeyRepository) RevokeByCombat(ctx context.Context, tx *sql.Tx, combatID string) error {
	query := `UPDATE combat_keys SET revoked_at = CURRENT_TIMESTAMP WHERE combat_id = $1 AND revoked_at IS NULL`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, combatID)
	} else {
		_, err = r.db.ExecContext(ctx, query, combatID)
	}
	if err != nil {
		return fmt.Errorf("pgCombatKeyRepository.RevokeByCombat: %w", err)
	}
	return nil
}
