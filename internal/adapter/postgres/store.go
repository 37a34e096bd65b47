package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/askadmit/askadmit/internal/domain"
	"github.com/askadmit/askadmit/internal/domain/answer"
	"github.com/askadmit/askadmit/internal/domain/question"
)

// Store implements the history store port on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveAnswer persists the full tracking bundle for a processed question.
func (s *Store) SaveAnswer(ctx context.Context, a *answer.Answer) error {
	classification, err := json.Marshal(a.Classification)
	if err != nil {
		return fmt.Errorf("marshal classification: %w", err)
	}
	steps, err := json.Marshal(a.Steps)
	if err != nil {
		return fmt.Errorf("marshal steps: %w", err)
	}
	scores, err := json.Marshal(a.ScoreHistory)
	if err != nil {
		return fmt.Errorf("marshal score history: %w", err)
	}
	validation, err := json.Marshal(a.Validation)
	if err != nil {
		return fmt.Errorf("marshal validation: %w", err)
	}
	verification, err := json.Marshal(a.Verification)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO answers
		   (id, question, answer, category, classification, analysis, steps,
		    score_history, validation, verification, diversity, degraded,
		    processing_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.Question, a.Text, string(a.Classification.Category),
		classification, a.Analysis, steps, scores, validation, verification,
		a.Diversity, a.Degraded, a.ProcessingTime.Milliseconds(), a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer %s: %w", a.ID, err)
	}
	return nil
}

// GetAnswer loads one tracking bundle by id.
func (s *Store) GetAnswer(ctx context.Context, id string) (*answer.Answer, error) {
	var (
		a              answer.Answer
		category       string
		classification []byte
		steps          []byte
		scores         []byte
		validation     []byte
		verification   []byte
		processingMS   int64
		createdAt      time.Time
	)

	err := s.pool.QueryRow(ctx,
		`SELECT id, question, answer, category, classification, analysis, steps,
		        score_history, validation, verification, diversity, degraded,
		        processing_ms, created_at
		 FROM answers WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.Question, &a.Text, &category, &classification, &a.Analysis,
		&steps, &scores, &validation, &verification, &a.Diversity, &a.Degraded,
		&processingMS, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get answer %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get answer %s: %w", id, err)
	}

	if err := json.Unmarshal(classification, &a.Classification); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}
	if a.Classification.Category == "" {
		a.Classification.Category = question.Category(category)
	}
	if err := json.Unmarshal(steps, &a.Steps); err != nil {
		return nil, fmt.Errorf("unmarshal steps: %w", err)
	}
	if err := json.Unmarshal(scores, &a.ScoreHistory); err != nil {
		return nil, fmt.Errorf("unmarshal score history: %w", err)
	}
	if err := json.Unmarshal(validation, &a.Validation); err != nil {
		return nil, fmt.Errorf("unmarshal validation: %w", err)
	}
	if err := json.Unmarshal(verification, &a.Verification); err != nil {
		return nil, fmt.Errorf("unmarshal verification: %w", err)
	}

	a.ProcessingTime = time.Duration(processingMS) * time.Millisecond
	a.CreatedAt = createdAt
	return &a, nil
}
