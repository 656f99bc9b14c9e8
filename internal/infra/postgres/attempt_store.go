package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"
	"timed-quiz-service/internal/domain"
)

// AttemptStore writes submitted attempts to the quiz_attempts table.
type AttemptStore struct {
	pool *pgxpool.Pool
}

func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// RecordAttempt inserts one attempt. A replayed (session, attempt) pair is ignored.
func (s *AttemptStore) RecordAttempt(ctx context.Context, a domain.Attempt) error {
	topics := a.Topics
	if topics == nil {
		topics = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quiz_attempts (session_id, attempt, topics, score, total, elapsed_sec, total_sec, forced, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, attempt) DO NOTHING`,
		a.SessionID, a.Number, topics, a.Score, a.Total, a.ElapsedSec, a.TotalSec, a.Forced, a.SubmittedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// ListBySession returns a session's attempts ordered by attempt number.
func (s *AttemptStore) ListBySession(ctx context.Context, sessionID string) ([]domain.Attempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, attempt, topics, score, total, elapsed_sec, total_sec, forced, submitted_at
		FROM quiz_attempts WHERE session_id=$1 ORDER BY attempt`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []domain.Attempt
	for rows.Next() {
		var a domain.Attempt
		if err := rows.Scan(&a.SessionID, &a.Number, &a.Topics, &a.Score, &a.Total, &a.ElapsedSec, &a.TotalSec, &a.Forced, &a.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}
