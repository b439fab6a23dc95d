package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"moltbattle/internal/common"
	"moltbattle/internal/domain/model"
)

type QuestionRepository interface {
	// CreateCombatQuestion stores the question bound to a combat, including
	// its hashed (or legacy plaintext) answer key. Immutable once written.
	CreateCombatQuestion(ctx context.Context, tx *sql.Tx, q *model.CombatQuestion) error
	FindByCombatID(ctx context.Context, combatID string) (*model.CombatQuestion, error)

	// Fallback pool operations.
	RandomFallback(ctx context.Context) (*model.Question, error)
	CountFallback(ctx context.Context) (int, error)
	SeedFallback(ctx context.Context, questions []model.Question) (int, error)
	ListFallback(ctx context.Context) ([]model.Question, error)
}

type pgQuestionRepository struct {
	db *sql.DB
}

func NewPgQuestionRepository(db *sql.DB) QuestionRepository {
	return &pgQuestionRepository{db: db}
}

func (r *pgQuestionRepository) CreateCombatQuestion(ctx context.Context, tx *sql.Tx, q *model.CombatQuestion) error {
	choicesJSON, err := json.Marshal(q.Choices)
	if err != nil {
		return fmt.Errorf("pgQuestionRepository.CreateCombatQuestion marshal choices: %w", err)
	}

	query := `INSERT INTO combat_questions
	            (id, combat_id, dataset, config, split, row_offset, prompt, choices, answer_hash, golden_label)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	args := []any{q.ID, q.CombatID, q.Dataset, q.Config, q.Split, q.RowOffset, q.Prompt, choicesJSON, q.AnswerHash, q.GoldenLabel}

	if tx != nil {
		_, err = tx.ExecContext(ctx, query, args...)
	} else {
		_, err = r.db.ExecContext(ctx, query, args...)
	}
	if err != nil {
		return fmt.Errorf("pgQuestionRepository.CreateCombatQuestion: %w", err)
	}
	return nil
}

func (r *pgQuestionRepository) FindByCombatID(ctx context.Context, combatID string) (*model.CombatQuestion, error) {
	query := `SELECT id, combat_id, dataset, config, split, row_offset, prompt, choices, answer_hash, golden_label, created_at
	          FROM combat_questions WHERE combat_id = $1`
	q := &model.CombatQuestion{}
	var choicesJSON []byte
	err := r.db.QueryRowContext(ctx, query, combatID).Scan(
		&q.ID, &q.CombatID, &q.Dataset, &q.Config, &q.Split, &q.RowOffset,
		&q.Prompt, &choicesJSON, &q.AnswerHash, &q.GoldenLabel, &q.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgQuestionRepository.FindByCombatID: %w", err)
	}
	if err := json.Unmarshal(choicesJSON, &q.Choices); err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.FindByCombatID unmarshal choices: %w", err)
	}
	return q, nil
}

func (r *pgQuestionRepository) RandomFallback(ctx context.Context) (*model.Question, error) {
	query := `SELECT id, prompt, choices, golden_label, created_at
	          FROM questions ORDER BY RANDOM() LIMIT 1`
	q := &model.Question{}
	var choicesJSON []byte
	err := r.db.QueryRowContext(ctx, query).Scan(&q.ID, &q.Prompt, &choicesJSON, &q.GoldenLabel, &q.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNoQuestions
		}
		return nil, fmt.Errorf("pgQuestionRepository.RandomFallback: %w", err)
	}
	if err := json.Unmarshal(choicesJSON, &q.Choices); err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.RandomFallback unmarshal choices: %w", err)
	}
	return q, nil
}

func (r *pgQuestionRepository) CountFallback(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgQuestionRepository.CountFallback: %w", err)
	}
	return count, nil
}

func (r *pgQuestionRepository) SeedFallback(ctx context.Context, questions []model.Question) (int, error) {
	existing, err := r.CountFallback(ctx)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return 0, nil // already seeded
	}

	stmt, err := r.db.PrepareContext(ctx, `INSERT INTO questions (id, prompt, choices, golden_label) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return 0, fmt.Errorf("pgQuestionRepository.SeedFallback prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, q := range questions {
		choicesJSON, err := json.Marshal(q.Choices)
		if err != nil {
			return inserted, fmt.Errorf("pgQuestionRepository.SeedFallback marshal choices: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, q.ID, q.Prompt, choicesJSON, q.GoldenLabel); err != nil {
			return inserted, fmt.Errorf("pgQuestionRepository.SeedFallback exec for question %s: %w", q.ID, err)
		}
		inserted++
	}
	return inserted, nil
}

func (r *pgQuestionRepository) ListFallback(ctx context.Context) ([]model.Question, error) {
	query := `SELECT id, prompt, choices, golden_label, created_at FROM questions ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.ListFallback query: %w", err)
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		var q model.Question
		var choicesJSON []byte
		if err := rows.Scan(&q.ID, &q.Prompt, &choicesJSON, &q.GoldenLabel, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgQuestionRepository.ListFallback scan: %w", err)
		}
		if err := json.Unmarshal(choicesJSON, &q.Choices); err != nil {
			return nil, fmt.Errorf("pgQuestionRepository.ListFallback unmarshal choices: %w", err)
		}
		questions = append(questions, q)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("pgQuestionRepository.ListFallback rows.Err: %w", err)
	}
	return questions, nil
}
