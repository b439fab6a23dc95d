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

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByHandle(ctx context.Context, handle string) (*model.User, error)
	FindByID(ctx context.Context, id string) (*model.User, error)
	// ApplyStatDelta increments aggregate counters. Called exactly once per
	// combat per participant, by the outcome resolver.
	ApplyStatDelta(ctx context.Context, tx *sql.Tx, userID string, delta model.StatDelta) error
	Leaderboard(ctx context.Context, limit int) ([]model.User, error)

	CreatePersonalToken(ctx context.Context, userID, tokenHash string) error
	FindByPersonalTokenHash(ctx context.Context, tokenHash string) (*model.User, error)
}

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) UserRepository {
	return &pgUserRepository{db: db}
}

const userColumns = `id, handle, hashed_password, role, wins, losses, draws, total_combats, created_at, updated_at`

func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(
		&user.ID, &user.Handle, &user.HashedPassword, &user.Role,
		&user.Wins, &user.Losses, &user.Draws, &user.TotalCombats,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (r *pgUserRepository) Create(ctx context.Context, user *model.User) error {
	query := `INSERT INTO users (id, handle, hashed_password, role)
	          VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, user.ID, user.Handle, user.HashedPassword, user.Role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // Unique constraint violation
			return fmt.Errorf("user with given handle already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgUserRepository.Create: %w", err)
	}
	return nil
}

func (r *pgUserRepository) FindByHandle(ctx context.Context, handle string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE handle = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, handle))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgUserRepository.FindByHandle: %w", err)
	}
	return user, nil
}

func (r *pgUserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgUserRepository.FindByID: %w", err)
	}
	return user, nil
}

func (r *pgUserRepository) ApplyStatDelta(ctx context.Context, tx *sql.Tx, userID string, delta model.StatDelta) error {
	query := `UPDATE users SET
	            wins = wins + $1,
	            losses = losses + $2,
	            draws = draws + $3,
	            total_combats = total_combats + $4,
	            updated_at = CURRENT_TIMESTAMP
	          WHERE id = $5`

	var err error
	if tx != nil {
		_, err = tx.ExecContext(ctx, query, delta.Wins, delta.Losses, delta.Draws, delta.TotalCombats, userID)
	} else {
		_, err = r.db.ExecContext(ctx, query, delta.Wins, delta.Losses, delta.Draws, delta.TotalCombats, userID)
	}
	if err != nil {
		return fmt.Errorf("pgUserRepository.ApplyStatDelta: %w", err)
	}
	return nil
}

func (r *pgUserRepository) Leaderboard(ctx context.Context, limit int) ([]model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
	          ORDER BY (3 * wins + draws) DESC, wins DESC, handle ASC
	          LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("pgUserRepository.Leaderboard query: %w", err)
	}
	defer rows.Close()

	users := []model.User{}
	for rows.Next() {
		var u model.User
		if err := rows.Scan(
			&u.ID, &u.Handle, &u.HashedPassword, &u.Role,
			&u.Wins, &u.Losses, &u.Draws, &u.TotalCombats,
			&u.CreatedAt, &u.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("pgUserRepository.Leaderboard scan: %w", err)
		}
		users = append(users, u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgUserRepository.Leaderboard rows.Err: %w", err)
	}
	return users, nil
}

func (r *pgUserRepository) CreatePersonalToken(ctx context.Context, userID, tokenHash string) error {
	query := `INSERT INTO user_tokens (user_id, token_hash) VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, query, userID, tokenHash)
	if err != nil {
		return fmt.Errorf("pgUserRepository.CreatePersonalToken: %w", err)
	}
	return nil
}

func (r *pgUserRepository) FindByPersonalTokenHash(ctx context.Context, tokenHash string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users u
	          WHERE u.id = (SELECT user_id FROM user_tokens WHERE token_hash = $1 AND revoked_at IS NULL)`
	user, err := scanUser(r.db.QueryRowContext(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("pgUserRepository.FindByPersonalTokenHash: %w", err)
	}
	return user, nil
}
