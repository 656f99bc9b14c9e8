package app_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
)

// manualTicker only fires when the test says so.
type manualTicker struct {
	ch      chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() { m.once.Do(func() { close(m.stopped) }) }

// fire delivers one tick; it reports false once the ticker has been stopped.
func (m *manualTicker) fire() bool {
	select {
	case <-m.stopped:
		return false
	default:
	}
	select {
	case m.ch <- time.Time{}:
		return true
	case <-m.stopped:
		return false
	}
}

type manualClock struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (c *manualClock) NewTicker(time.Duration) app.Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *manualClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

func (c *manualClock) latest(t *testing.T) *manualTicker {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tickers) == 0 {
		t.Fatalf("no ticker started")
	}
	return c.tickers[len(c.tickers)-1]
}

type stubSource struct {
	mu        sync.Mutex
	questions []domain.Question
	err       error
	calls     int
	topics    [][]string
}

func (s *stubSource) GenerateQuestions(_ context.Context, topics []string) ([]domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.topics = append(s.topics, append([]string(nil), topics...))
	if s.err != nil {
		return nil, s.err
	}
	return s.questions, nil
}

// gatedSource blocks until release is closed.
type gatedSource struct {
	started   chan struct{}
	release   chan struct{}
	questions []domain.Question
}

func newGatedSource(questions []domain.Question) *gatedSource {
	return &gatedSource{started: make(chan struct{}, 1), release: make(chan struct{}), questions: questions}
}

func (g *gatedSource) GenerateQuestions(ctx context.Context, _ []string) ([]domain.Question, error) {
	g.started <- struct{}{}
	select {
	case <-g.release:
		return g.questions, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func makeQuestions(n int) []domain.Question {
	out := make([]domain.Question, n)
	for i := range out {
		level := domain.LevelBeginner
		if i >= n/2 {
			level = domain.LevelIntermediate
		}
		out[i] = domain.Question{
			ID:          fmt.Sprintf("q%d", i+1),
			Topic:       "go",
			Level:       level,
			Prompt:      fmt.Sprintf("Question %d?", i+1),
			Choices:     []string{"a", "b", "c", "d"},
			AnswerIndex: i % domain.ChoiceCount,
			Explanation: "because",
		}
	}
	return out
}

func wrongChoice(q domain.Question) int {
	return (q.AnswerIndex + 1) % domain.ChoiceCount
}

func waitFor(t *testing.T, ch <-chan domain.Snapshot, what string, pred func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", what)
			}
			if pred(snap) {
				return snap
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

// tickOnce fires the latest ticker and waits until the session has processed it.
func tickOnce(t *testing.T, clock *manualClock, updates <-chan domain.Snapshot, expectRemaining int) domain.Snapshot {
	t.Helper()
	if !clock.latest(t).fire() {
		t.Fatalf("ticker stopped before remaining reached %d", expectRemaining)
	}
	return waitFor(t, updates, fmt.Sprintf("remaining=%d", expectRemaining), func(s domain.Snapshot) bool {
		return s.RemainingSec == expectRemaining
	})
}

func newTestSession(clock *manualClock, opts ...app.SessionOption) *app.Session {
	base := []app.SessionOption{
		app.WithTicker(clock.NewTicker),
		app.WithClock(func() time.Time { return time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC) }),
	}
	return app.NewSession("s1", append(base, opts...)...)
}
