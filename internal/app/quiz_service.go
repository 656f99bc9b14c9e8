package app

import (
	"context"
	"errors"
	"log"
	"time"

	"timed-quiz-service/internal/domain"
)

// SessionRepository abstracts how live sessions are kept (in-memory, Redis-marked, etc).
type SessionRepository interface {
	GetOrCreate(sessionID string, create func(id string) *Session) *Session
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// AttemptRecorder receives one summary per submission (database, queue, log).
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, attempt domain.Attempt) error
}

// ServiceOption customises a QuizService.
type ServiceOption func(*QuizService)

// WithSessionOptions applies opts to every session the service opens.
func WithSessionOptions(opts ...SessionOption) ServiceOption {
	return func(s *QuizService) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// WithRecorders registers attempt recorders.
func WithRecorders(recorders ...AttemptRecorder) ServiceOption {
	return func(s *QuizService) { s.recorders = append(s.recorders, recorders...) }
}

// WithRecordTimeout bounds how long a single recorder may take.
func WithRecordTimeout(d time.Duration) ServiceOption {
	return func(s *QuizService) { s.recordTimeout = d }
}

// QuizService contains the quiz use cases, keyed by session id.
type QuizService struct {
	sessions      SessionRepository
	source        QuestionSource
	sessionOpts   []SessionOption
	recorders     []AttemptRecorder
	recordTimeout time.Duration
}

func NewQuizService(sessions SessionRepository, source QuestionSource, opts ...ServiceOption) *QuizService {
	s := &QuizService{
		sessions:      sessions,
		source:        source,
		recordTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns the session with the given id, creating it if needed.
func (s *QuizService) Open(sessionID string) *Session {
	return s.sessions.GetOrCreate(sessionID, s.newSession)
}

func (s *QuizService) newSession(id string) *Session {
	opts := append([]SessionOption{}, s.sessionOpts...)
	opts = append(opts, WithSubmitHook(s.recordAttempt))
	return NewSession(id, opts...)
}

// Load generates a question set for topics and starts the quiz. It blocks until generation finishes.
func (s *QuizService) Load(ctx context.Context, sessionID string, topics []string) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	if err := session.Load(ctx, s.source, topics); err != nil {
		if !errors.Is(err, domain.ErrStaleLoad) {
			log.Printf("session %s: load failed: %v", sessionID, err)
		}
		return err
	}
	return nil
}

// SelectAnswer records a choice for a question.
func (s *QuizService) SelectAnswer(_ context.Context, sessionID, questionID string, choice int) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	return session.SelectAnswer(questionID, choice)
}

// Next moves to the next question.
func (s *QuizService) Next(_ context.Context, sessionID string) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	return session.Next()
}

// Previous moves to the previous question.
func (s *QuizService) Previous(_ context.Context, sessionID string) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	return session.Previous()
}

// GoTo jumps to a question index.
func (s *QuizService) GoTo(_ context.Context, sessionID string, index int) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	return session.GoTo(index)
}

// Submit scores the session.
func (s *QuizService) Submit(_ context.Context, sessionID string) (domain.Result, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return domain.Result{}, err
	}
	return session.Submit()
}

// Retake restarts a submitted session.
func (s *QuizService) Retake(_ context.Context, sessionID string) error {
	session, err := s.get(sessionID)
	if err != nil {
		return err
	}
	return session.Retake()
}

// Snapshot returns the current state of a session.
func (s *QuizService) Snapshot(_ context.Context, sessionID string) (domain.Snapshot, error) {
	session, err := s.get(sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return session.Snapshot(), nil
}

// Subscribe returns a channel that receives snapshots for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, sessionID string) (<-chan domain.Snapshot, func(), error) {
	session, err := s.get(sessionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Close stops a session's clock and forgets it.
func (s *QuizService) Close(_ context.Context, sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	session.Close()
	s.sessions.Delete(sessionID)
}

func (s *QuizService) get(sessionID string) (*Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *QuizService) recordAttempt(attempt domain.Attempt) {
	for _, r := range s.recorders {
		ctx, cancel := context.WithTimeout(context.Background(), s.recordTimeout)
		if err := r.RecordAttempt(ctx, attempt); err != nil {
			log.Printf("session %s: record attempt %d: %v", attempt.SessionID, attempt.Number, err)
		}
		cancel()
	}
}
