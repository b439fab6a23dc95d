package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"moltbattle/internal/common"
	"moltbattle/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type CombatRepository interface {
	Create(ctx context.Context, tx *sql.Tx, combat *model.Combat) error
	FindByID(ctx context.Context, id string) (*model.Combat, error)
	FindByCode(ctx context.Context, code string) (*model.Combat, error)
	// FindByCodeForUpdate row-locks the combat so concurrent submissions or
	// expiry checks serialize on the same record.
	FindByCodeForUpdate(ctx context.Context, tx *sql.Tx, code string) (*model.Combat, error)
	FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*model.Combat, error)
	// FindJoinableOpen locks the oldest OPEN combat that still waits for an
	// opponent, was not created by userID, and is inside its join window.
	FindJoinableOpen(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (*model.Combat, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Update(ctx context.Context, tx *sql.Tx, combat *model.Combat) error
	List(ctx context.Context, limit, offset int) ([]model.Combat, error)
}

type pgCombatRepository struct {
	db *sql.DB
}

func NewPgCombatRepository(db *sql.DB) CombatRepository {
	return &pgCombatRepository{db: db}
}

const combatColumns = `id, code, state, mode, is_open, user_a_id, user_b_id, ready_a, ready_b,
	winner_id, is_draw, created_at, accepted_at, started_at, expires_at, completed_at,
	a_deadline, b_deadline, a_score, b_score, join_deadline`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCombat(row rowScanner) (*model.Combat, error) {
	c := &model.Combat{}
	err := row.Scan(
		&c.ID, &c.Code, &c.State, &c.Mode, &c.IsOpen, &c.UserAID, &c.UserBID, &c.ReadyA, &c.ReadyB,
		&c.WinnerID, &c.IsDraw, &c.CreatedAt, &c.AcceptedAt, &c.StartedAt, &c.ExpiresAt, &c.CompletedAt,
		&c.ADeadline, &c.BDeadline, &c.AScore, &c.BScore, &c.JoinDeadline,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r *pgCombatRepository) Create(ctx context.Context, tx *sql.Tx, c *model.Combat) error {
	query := `INSERT INTO combats
	            (id, code, state, mode, is_open, user_a_id, user_b_id, ready_a, ready_b,
	             winner_id, is_draw, accepted_at, started_at, expires_at, completed_at,
	             a_deadline, b_deadline, a_score, b_score, join_deadline)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	args := []any{
		c.ID, c.Code, c.State, c.Mode, c.IsOpen, c.UserAID, c.UserBID, c.ReadyA, c.ReadyB,
		c.WinnerID, c.IsDraw, c.AcceptedAt, c.StartedAt, c.ExpiresAt, c.CompletedAt,
		c.ADeadline, c.BDeadline, c.AScore, c.BScore, c.JoinDeadline,
	}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique constraint for code
			return fmt.Errorf("combat with this code already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgCombatRepository.Create: %w", err)
	}
	return nil
}

func (r *pgCombatRepository) FindByID(ctx context.Context, id string) (*model.Combat, error) {
	query := `SELECT ` + combatColumns + ` FROM combats WHERE id = $1`
	c, err := scanCombat(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgCombatRepository.FindByID: %w", err)
	}
	return c, nil
}

func (r *pgCombatRepository) FindByCode(ctx context.Context, code string) (*model.Combat, error) {
	query := `SELECT ` + combatColumns + ` FROM combats WHERE code = $1`
	c, err := scanCombat(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgCombatRepository.FindByCode: %w", err)
	}
	return c, nil
}

func (r *pgCombatRepository) FindByCodeForUpdate(ctx context.Context, tx *sql.Tx, code string) (*model.Combat, error) {
	query := `SELECT ` + combatColumns + ` FROM combats WHERE code = $1 FOR UPDATE`
	c, err := scanCombat(tx.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgCombatRepository.FindByCodeForUpdate: %w", err)
	}
	return c, nil
}

func (r *pgCombatRepository) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*model.Combat, error) {
	query := `SELECT ` + combatColumns + ` FROM combats WHERE id = $1 FOR UPDATE`
	c, err := scanCombat(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgCombatRepository.FindByIDForUpdate: %w", err)
	}
	return c, nil
}

func (r *pgCombatRepository) FindJoinableOpen(ctx context.Context, tx *sql.Tx, userID string, now time.Time) (*model.Combat, error) {
	query := `SELECT ` + combatColumns + ` FROM combats
	          WHERE state = $1 AND is_open = TRUE AND user_b_id IS NULL
	            AND user_a_id <> $2 AND join_deadline > $3
	          ORDER BY created_at ASC
	          LIMIT 1
	          FOR UPDATE SKIP LOCKED`
	c, err := scanCombat(tx.QueryRowContext(ctx, query, model.StateOpen, userID, now))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgCombatRepository.FindJoinableOpen: %w", err)
	}
	return c, nil
}

func (r *pgCombatRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM combats WHERE code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgCombatRepository.CodeExists: %w", err)
	}
	return exists, nil
}

func (r *pgCombatRepository) Update(ctx context.Context, tx *sql.Tx, c *model.Combat) error {
	query := `UPDATE combats SET
	            state = $1, user_b_id = $2, ready_a = $3, ready_b = $4,
	            winner_id = $5, is_draw = $6, accepted_at = $7, started_at = $8,
	            expires_at = $9, completed_at = $10, a_deadline = $11, b_deadline = $12,
	            a_score = $13, b_score = $14, join_deadline = $15
	          WHERE id = $16`

	args := []any{
		c.State, c.UserBID, c.ReadyA, c.ReadyB,
		c.WinnerID, c.IsDraw, c.AcceptedAt, c.StartedAt,
		c.ExpiresAt, c.CompletedAt, c.ADeadline, c.BDeadline,
		c.AScore, c.BScore, c.JoinDeadline, c.ID,
	}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("pgCombatRepository.Update: %w", err)
	}
	return nil
}

func (r *pgCombatRepository) List(ctx context.Context, limit, offset int) ([]model.Combat, error) {
	query := `SELECT ` + combatColumns + ` FROM combats ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("pgCombatRepository.List query: %w", err)
	}
	defer rows.Close()

	combats := []model.Combat{}
	for rows.Next() {
		c, err := scanCombat(rows)
		if err != nil {
			return nil, fmt.Errorf("pgCombatRepository.List scan: %w", err)
		}
		combats = append(combats, *c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgCombatRepository.List rows.Err: %w", err)
	}
	return combats, nil
}
