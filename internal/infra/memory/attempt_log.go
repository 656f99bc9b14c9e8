package memory

import (
	"context"
	"sync"

	"timed-quiz-service/internal/domain"
)

// AttemptLog keeps submitted attempts in process. Used when no database is configured and in tests.
type AttemptLog struct {
	mu       sync.RWMutex
	attempts []domain.Attempt
}

func NewAttemptLog() *AttemptLog {
	return &AttemptLog{}
}

func (l *AttemptLog) RecordAttempt(_ context.Context, attempt domain.Attempt) error {
	attempt.Topics = append([]string(nil), attempt.Topics...)
	l.mu.Lock()
	l.attempts = append(l.attempts, attempt)
	l.mu.Unlock()
	return nil
}

// ListBySession returns the attempts for a session in submission order.
func (l *AttemptLog) ListBySession(_ context.Context, sessionID string) ([]domain.Attempt, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Attempt
	for _, a := range l.attempts {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}
