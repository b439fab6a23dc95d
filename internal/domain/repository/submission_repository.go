package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moltbattle/internal/common"
	"moltbattle/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type SubmissionRepository interface {
	// Create inserts an append-only submission. The (combat_id, user_id)
	// unique constraint is the last line of defense against a participant
	// double-submitting under concurrency.
	Create(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	FindByCombatAndUser(ctx context.Context, combatID, userID string) (*model.Submission, error)
	ListByCombat(ctx context.Context, combatID string) ([]model.Submission, error)
	CountByCombat(ctx context.Context, tx *sql.Tx, combatID string) (int, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) Create(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	query := `INSERT INTO submissions (id, combat_id, user_id, answer, status, submitted_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	args := []any{sub.ID, sub.CombatID, sub.UserID, sub.Answer, sub.Status, sub.SubmittedAt}

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // (combat_id, user_id) unique
			return fmt.Errorf("answer already submitted for this combat: %w", common.ErrInvalidState)
		}
		return fmt.Errorf("pgSubmissionRepository.Create: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) FindByCombatAndUser(ctx context.Context, combatID, userID string) (*model.Submission, error) {
	query := `SELECT id, combat_id, user_id, answer, status, submitted_at
	          FROM submissions WHERE combat_id = $1 AND user_id = $2`
	sub := &model.Submission{}
	err := r.db.QueryRowContext(ctx, query, combatID, userID).Scan(
		&sub.ID, &sub.CombatID, &sub.UserID, &sub.Answer, &sub.Status, &sub.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.FindByCombatAndUser: %w", err)
	}
	return sub, nil
}

func (r *pgSubmissionRepository) ListByCombat(ctx context.Context, combatID string) ([]model.Submission, error) {
	query := `SELECT id, combat_id, user_id, answer, status, submitted_at
	          FROM submissions WHERE combat_id = $1 ORDER BY submitted_at ASC`
	rows, err := r.db.QueryContext(ctx, query, combatID)
	if err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListByCombat query: %w", err)
	}
	defer rows.Close()

	subs := []model.Submission{}
	for rows.Next() {
		var s model.Submission
		if err := rows.Scan(&s.ID, &s.CombatID, &s.UserID, &s.Answer, &s.Status, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.ListByCombat scan: %w", err)
		}
		subs = append(subs, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgSubmissionRepository.ListByCombat rows.Err: %w", err)
	}
	return subs, nil
}

func (r *pgSubmissionRepository) CountByCombat(ctx context.Context, tx *sql.Tx, combatID string) (int, error) {
	query := `SELECT COUNT(*) FROM submissions WHERE combat_id = $1`
	var count int
	var err error
	if tx != nil {
		err = tx.QueryRowContext(ctx, query, combatID).Scan(&count)
	} else {
		err = r.db.QueryRowContext(ctx, query, combatID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("pgSubmissionRepository.CountByCombat: %w", err)
	}
	return count, nil
}
