package app

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"timed-quiz-service/internal/domain"
)

// QuestionSource produces a question set for a list of topics.
type QuestionSource interface {
	GenerateQuestions(ctx context.Context, topics []string) ([]domain.Question, error)
}

// SubmitHook is called once per submission, outside the session lock.
type SubmitHook func(attempt domain.Attempt)

// SessionOption customises a Session.
type SessionOption func(*Session)

// WithDurationPolicy sets how the quiz length is derived from the question count.
func WithDurationPolicy(p domain.DurationPolicy) SessionOption {
	return func(s *Session) { s.policy = p }
}

// WithGating selects strict or free navigation.
func WithGating(mode domain.GatingMode) SessionOption {
	return func(s *Session) { s.gating = mode }
}

// WithTicker replaces the ticker factory; tests use it to drive the clock by hand.
func WithTicker(f TickerFactory) SessionOption {
	return func(s *Session) { s.newTicker = f }
}

// WithClock sets the wall clock used for timestamps.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithSubmitHook registers a callback fired after each submission.
func WithSubmitHook(h SubmitHook) SessionOption {
	return func(s *Session) { s.onSubmit = h }
}

// Session is one user's quiz attempt: question set, answers, countdown and score.
type Session struct {
	id        string
	now       func() time.Time
	newTicker TickerFactory
	tickEvery time.Duration
	policy    domain.DurationPolicy
	gating    domain.GatingMode
	onSubmit  SubmitHook

	mu           sync.Mutex
	phase        domain.Phase
	errMsg       string
	topics       []string
	questions    []domain.Question
	positions    map[string]int
	answers      map[string]int
	current      int
	totalSec     int
	remainingSec int
	elapsedSec   int
	result       *domain.Result
	hint         *domain.Hint
	attempt      int
	loadGen      uint64
	closed       bool
	countdown    *countdown
	epoch        uint64
	subscribers  map[chan domain.Snapshot]struct{}
}

// NewSession creates a session waiting for its first load.
func NewSession(id string, opts ...SessionOption) *Session {
	s := &Session{
		id:          id,
		now:         time.Now,
		newTicker:   NewSystemTicker,
		tickEvery:   time.Second,
		policy:      domain.DefaultDurationPolicy,
		gating:      domain.GatingStrict,
		phase:       domain.PhaseLoading,
		positions:   make(map[string]int),
		answers:     make(map[string]int),
		subscribers: make(map[chan domain.Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Load replaces the question set with a freshly generated one and starts the clock.
// A newer Load or Close while the source is running makes this call return ErrStaleLoad
// without touching state.
func (s *Session) Load(ctx context.Context, source QuestionSource, topics []string) error {
	cleaned := domain.CleanTopics(topics)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.stopCountdownLocked()
	s.loadGen++
	gen := s.loadGen
	s.resetLocked()
	s.topics = cleaned
	if len(cleaned) == 0 {
		s.phase = domain.PhaseError
		s.errMsg = domain.ErrNoTopics.Error()
		s.broadcastLocked()
		s.mu.Unlock()
		return domain.ErrNoTopics
	}
	s.phase = domain.PhaseLoading
	s.broadcastLocked()
	s.mu.Unlock()

	questions, err := source.GenerateQuestions(ctx, cleaned)
	if err == nil {
		err = domain.ValidateQuestionSet(questions)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.loadGen {
		return domain.ErrStaleLoad
	}
	if err != nil {
		s.phase = domain.PhaseError
		s.errMsg = err.Error()
		s.broadcastLocked()
		return err
	}

	s.questions = domain.CloneQuestions(questions)
	for i, q := range s.questions {
		s.positions[q.ID] = i
	}
	s.totalSec = s.policy.Total(len(s.questions))
	s.remainingSec = s.totalSec
	s.attempt = 1
	s.phase = domain.PhaseInProgress
	s.startCountdownLocked()
	s.broadcastLocked()
	return nil
}

// SelectAnswer records (or overwrites) the choice for a question.
func (s *Session) SelectAnswer(questionID string, choice int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.phase != domain.PhaseInProgress {
		return domain.ErrNotInProgress
	}
	if _, ok := s.positions[questionID]; !ok {
		return domain.ErrQuestionNotFound
	}
	if choice < 0 || choice >= domain.ChoiceCount {
		return domain.ErrChoiceOutOfRange
	}
	s.answers[questionID] = choice
	if s.hint != nil && s.hint.QuestionID == questionID {
		s.hint = nil
	}
	s.broadcastLocked()
	return nil
}

// Next moves to the following question.
func (s *Session) Next() error {
	return s.move(func(cur int) int { return cur + 1 })
}

// Previous moves back one question. It is never gated.
func (s *Session) Previous() error {
	return s.move(func(cur int) int { return cur - 1 })
}

// GoTo jumps to index, clamped to the question range.
func (s *Session) GoTo(index int) error {
	return s.move(func(int) int { return index })
}

func (s *Session) move(target func(cur int) int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.phase != domain.PhaseInProgress {
		return domain.ErrNotInProgress
	}
	to := clamp(target(s.current), 0, len(s.questions)-1)
	if to > s.current && s.gating == domain.GatingStrict {
		if idx, missing := s.firstUnansweredLocked(s.current, to); missing {
			return s.gateLocked(idx, domain.ErrAnswerRequired)
		}
	}
	s.current = to
	s.broadcastLocked()
	return nil
}

// Submit scores the quiz. It fails with a *domain.GatingError while any question is unanswered.
func (s *Session) Submit() (domain.Result, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Result{}, domain.ErrSessionClosed
	}
	if s.phase != domain.PhaseInProgress {
		s.mu.Unlock()
		return domain.Result{}, domain.ErrNotInProgress
	}
	if idx, missing := s.firstUnansweredLocked(0, len(s.questions)); missing {
		err := s.gateLocked(idx, domain.ErrIncompleteAnswers)
		s.mu.Unlock()
		return domain.Result{}, err
	}
	attempt := s.finalizeLocked(false)
	result := *s.result
	s.broadcastLocked()
	s.mu.Unlock()

	s.notifySubmitted(attempt)
	return result, nil
}

// Retake restarts a submitted quiz with the same questions, no answers and a full clock.
func (s *Session) Retake() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSessionClosed
	}
	if s.phase != domain.PhaseSubmitted {
		return domain.ErrNotSubmitted
	}
	s.answers = make(map[string]int)
	s.current = 0
	s.remainingSec = s.totalSec
	s.elapsedSec = 0
	s.result = nil
	s.hint = nil
	s.attempt++
	s.phase = domain.PhaseInProgress
	s.startCountdownLocked()
	s.broadcastLocked()
	return nil
}

// Close stops the countdown, ends all subscriptions and discards any pending load.
// Every later mutating call returns ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopCountdownLocked()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Snapshot returns the current read model.
func (s *Session) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Answers returns a copy of the recorded answers.
func (s *Session) Answers() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// Questions returns a copy of the loaded question set.
func (s *Session) Questions() []domain.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneQuestions(s.questions)
}

// Subscribe returns a channel receiving a snapshot after every change and tick.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 8)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) resetLocked() {
	s.errMsg = ""
	s.questions = nil
	s.positions = make(map[string]int)
	s.answers = make(map[string]int)
	s.current = 0
	s.totalSec = 0
	s.remainingSec = 0
	s.elapsedSec = 0
	s.result = nil
	s.hint = nil
	s.attempt = 0
}

// finalizeLocked is the single InProgress -> Submitted transition, shared by manual and forced submit.
func (s *Session) finalizeLocked(forced bool) domain.Attempt {
	s.stopCountdownLocked()
	s.elapsedSec = s.totalSec - s.remainingSec
	result := domain.BuildResult(s.questions, s.answers, s.elapsedSec, forced)
	s.result = &result
	s.hint = nil
	s.phase = domain.PhaseSubmitted

	return domain.Attempt{
		SessionID:   s.id,
		Number:      s.attempt,
		Topics:      append([]string(nil), s.topics...),
		Score:       result.Score,
		Total:       result.Total,
		ElapsedSec:  s.elapsedSec,
		TotalSec:    s.totalSec,
		Forced:      forced,
		SubmittedAt: s.now(),
	}
}

func (s *Session) notifySubmitted(attempt domain.Attempt) {
	if s.onSubmit != nil {
		s.onSubmit(attempt)
	}
}

func (s *Session) firstUnansweredLocked(from, to int) (int, bool) {
	for i := from; i < to && i < len(s.questions); i++ {
		if _, ok := s.answers[s.questions[i].ID]; !ok {
			return i, true
		}
	}
	return 0, false
}

func (s *Session) gateLocked(idx int, cause error) error {
	q := s.questions[idx]
	s.hint = &domain.Hint{QuestionIndex: idx, QuestionID: q.ID, Message: domain.AnswerRequiredHint}
	s.broadcastLocked()
	return &domain.GatingError{Index: idx, QuestionID: q.ID, Err: cause}
}

// startCountdownLocked replaces any running countdown; ticks from the old one are ignored by epoch.
func (s *Session) startCountdownLocked() {
	s.stopCountdownLocked()
	s.epoch++
	cd := &countdown{ticker: s.newTicker(s.tickEvery), stop: make(chan struct{})}
	s.countdown = cd
	go s.runCountdown(cd, s.epoch)
}

func (s *Session) stopCountdownLocked() {
	if s.countdown == nil {
		return
	}
	s.countdown.ticker.Stop()
	close(s.countdown.stop)
	s.countdown = nil
	s.epoch++
}

func (s *Session) runCountdown(cd *countdown, epoch uint64) {
	for {
		select {
		case <-cd.stop:
			return
		case <-cd.ticker.C():
			if !s.tick(epoch) {
				return
			}
		}
	}
}

// tick advances the clock by one second. It reports whether the countdown should keep running.
func (s *Session) tick(epoch uint64) bool {
	s.mu.Lock()
	if epoch != s.epoch || s.phase != domain.PhaseInProgress {
		s.mu.Unlock()
		return false
	}
	if s.remainingSec > 0 {
		s.remainingSec--
	}
	if s.remainingSec > 0 {
		s.broadcastLocked()
		s.mu.Unlock()
		return true
	}

	attempt := s.finalizeLocked(true)
	s.broadcastLocked()
	s.mu.Unlock()

	s.notifySubmitted(attempt)
	return false
}

func (s *Session) broadcastLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest snapshot so a slow reader never blocks the clock.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Session) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		SessionID:     s.id,
		Phase:         s.phase,
		Error:         s.errMsg,
		Gating:        s.gating,
		CurrentIndex:  s.current,
		Count:         len(s.questions),
		AnsweredCount: len(s.answers),
		RemainingSec:  s.remainingSec,
		TotalSec:      s.totalSec,
		Attention:     domain.AttentionOK,
		Clock:         domain.FormatClock(s.remainingSec),
		UpdatedAt:     s.now(),
	}
	if s.totalSec > 0 {
		ratio := float64(s.remainingSec) / float64(s.totalSec)
		if ratio < 0 {
			ratio = 0
		}
		if ratio > 1 {
			ratio = 1
		}
		snap.TimeRatio = ratio
		if s.phase == domain.PhaseInProgress {
			snap.Attention = domain.AttentionFor(ratio)
		}
	}
	if len(s.questions) > 0 && s.current < len(s.questions) {
		q := s.questions[s.current]
		snap.Current = &domain.QuestionView{
			ID:      q.ID,
			Topic:   q.Topic,
			Level:   q.Level,
			Prompt:  q.Prompt,
			Choices: append([]string(nil), q.Choices...),
		}
		if selected, ok := s.answers[q.ID]; ok {
			snap.Selected = &selected
		}
	}
	if s.hint != nil {
		hint := *s.hint
		snap.Hint = &hint
	}
	if s.result != nil {
		result := *s.result
		snap.Result = &result
	}
	return snap
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TopicsKey is the cache key for a topic list: trimmed, lowercased, sorted and de-duplicated.
func TopicsKey(topics []string) string {
	seen := make(map[string]struct{}, len(topics))
	keys := make([]string, 0, len(topics))
	for _, t := range domain.CleanTopics(topics) {
		k := strings.ToLower(t)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "|")
}
