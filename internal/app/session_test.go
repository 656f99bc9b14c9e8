package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"timed-quiz-service/internal/app"
	"timed-quiz-service/internal/domain"
)

func TestAnswerAllCorrectlyAndSubmit(t *testing.T) {
	clock := &manualClock{}
	source := &stubSource{questions: makeQuestions(10)}
	session := newTestSession(clock)
	defer session.Close()

	if err := session.Load(context.Background(), source, []string{"goroutines", "channels"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := session.Snapshot()
	if snap.Phase != domain.PhaseInProgress {
		t.Fatalf("expected in_progress, got %s", snap.Phase)
	}
	if want := domain.DefaultDurationPolicy.Total(10); snap.TotalSec != want || snap.RemainingSec != want {
		t.Fatalf("expected total/remaining %d, got %d/%d", want, snap.TotalSec, snap.RemainingSec)
	}
	if len(source.topics) != 1 || len(source.topics[0]) != 2 {
		t.Fatalf("expected both topics forwarded, got %v", source.topics)
	}

	for i, q := range session.Questions() {
		if err := session.SelectAnswer(q.ID, q.AnswerIndex); err != nil {
			t.Fatalf("select %s: %v", q.ID, err)
		}
		if i < 9 {
			if err := session.Next(); err != nil {
				t.Fatalf("next from %d: %v", i, err)
			}
		}
	}

	result, err := session.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 10 || result.Total != 10 || result.AccuracyPct != 100 {
		t.Fatalf("expected 10/10, got %+v", result)
	}
	if result.Forced {
		t.Fatalf("manual submit must not be marked forced")
	}
	if got := session.Snapshot().Phase; got != domain.PhaseSubmitted {
		t.Fatalf("expected submitted, got %s", got)
	}
}

func TestClockExpiryForcesSubmission(t *testing.T) {
	clock := &manualClock{}
	submitted := make(chan domain.Attempt, 4)
	session := newTestSession(clock,
		app.WithDurationPolicy(domain.DurationPolicy{FloorSec: 0, PerQuestionSec: 1}),
		app.WithGating(domain.GatingFree),
		app.WithSubmitHook(func(a domain.Attempt) { submitted <- a }),
	)
	defer session.Close()

	questions := makeQuestions(8)
	if err := session.Load(context.Background(), &stubSource{questions: questions}, []string{"go"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	for _, q := range questions[:5] {
		if err := session.SelectAnswer(q.ID, q.AnswerIndex); err != nil {
			t.Fatalf("select: %v", err)
		}
	}

	updates, cancel := session.Subscribe()
	defer cancel()

	var last domain.Snapshot
	for remaining := 7; remaining >= 0; remaining-- {
		last = tickOnce(t, clock, updates, remaining)
	}

	if last.Phase != domain.PhaseSubmitted {
		t.Fatalf("expected forced submission, got %s", last.Phase)
	}
	if last.RemainingSec != 0 {
		t.Fatalf("expected remaining 0, got %d", last.RemainingSec)
	}
	if last.Result == nil || last.Result.Score != 5 || !last.Result.Forced {
		t.Fatalf("expected forced result with score 5, got %+v", last.Result)
	}
	if last.Result.ElapsedSec != 8 {
		t.Fatalf("expected elapsed 8, got %d", last.Result.ElapsedSec)
	}
	for _, o := range last.Result.Outcomes[5:] {
		if o.Answered || o.Selected != -1 || o.Correct {
			t.Fatalf("expected unanswered outcome, got %+v", o)
		}
	}

	if clock.latest(t).fire() {
		t.Fatalf("ticker should be stopped after forced submission")
	}

	select {
	case a := <-submitted:
		if !a.Forced || a.Score != 5 || a.Number != 1 {
			t.Fatalf("unexpected attempt %+v", a)
		}
	case <-time.After(time.Second):
		t.Fatalf("submit hook not called")
	}
	select {
	case a := <-submitted:
		t.Fatalf("submit hook called twice: %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEmptyQuestionSetFailsLoad(t *testing.T) {
	clock := &manualClock{}
	session := newTestSession(clock)
	defer session.Close()

	err := session.Load(context.Background(), &stubSource{questions: nil}, []string{"go"})
	if !errors.Is(err, domain.ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
	snap := session.Snapshot()
	if snap.Phase != domain.PhaseError || snap.Error == "" {
		t.Fatalf("expected error phase with message, got %+v", snap)
	}
	if snap.Count != 0 || snap.Current != nil || snap.TotalSec != 0 {
		t.Fatalf("expected no question state, got %+v", snap)
	}
	if clock.count() != 0 {
		t.Fatalf("clock must not start on failed load")
	}
}

func TestRetakeResetsAnswersAndClock(t *testing.T) {
	clock := &manualClock{}
	session := newTestSession(clock, app.WithGating(domain.GatingFree))
	defer session.Close()

	if err := session.Load(context.Background(), &stubSource{questions: makeQuestions(3)}, []string{"go"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	before := session.Questions()
	total := session.Snapshot().TotalSec

	updates, cancel := session.Subscribe()
	defer cancel()
	tickOnce(t, clock, updates, total-1)
	tickOnce(t, clock, updates, total-2)

	for _, q := range before {
		_ = session.SelectAnswer(q.ID, wrongChoice(q))
	}
	_ = session.GoTo(2)
	result, err := session.Submit()
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 0 || result.ElapsedSec != 2 {
		t.Fatalf("unexpected result %+v", result)
	}

	oldTicker := clock.latest(t)
	if err := session.Retake(); err != nil {
		t.Fatalf("retake: %v", err)
	}
	snap := session.Snapshot()
	if snap.Phase != domain.PhaseInProgress || snap.CurrentIndex != 0 || snap.RemainingSec != total || snap.TotalSec != total {
		t.Fatalf("unexpected state after retake: %+v", snap)
	}
	if len(session.Answers()) != 0 || snap.Selected != nil || snap.Result != nil {
		t.Fatalf("expected answers cleared, got %v", session.Answers())
	}
	after := session.Questions()
	if len(after) != len(before) {
		t.Fatalf("question count changed")
	}
	for i := range before {
		if before[i].ID != after[i].ID {
			t.Fatalf("question order changed at %d", i)
		}
	}
	if oldTicker.fire() {
		t.Fatalf("previous ticker must be stopped on retake")
	}
	if clock.count() != 2 {
		t.Fatalf("expected a fresh ticker, got %d", clock.count())
	}
}

func TestRetakeRequiresSubmitted(t *testing.T) {
	session := newTestSession(&manualClock{})
	defer session.Close()
	if err := session.Load(context.Background(), &stubSource{questions: makeQuestions(2)}, []string{"go"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := session.Retake(); !errors.Is(err, domain.ErrNotSubmitted) {
		t.Fatalf("expected ErrNotSubmitted, got %v", err)
	}
}

func TestStrictGatingBlocksForwardNavigation(t *testing.T) {
	session := newTestSession(&manualClock{})
	defer session.Close()
	questions := makeQuestions(4)
	if err := session.Load(context.Background(), &stubSource{questions: questions}, []string{"go"}); err != nil {
		t.Fatalf("load: %v", err)
	}

	err := session.Next()
	var gate *domain.GatingError
	if !errors.As(err, &gate) || !errors.Is(err, domain.ErrAnswerRequired) || gate.Index != 0 {
		t.Fatalf("expected answer-required gate on question 0, got %v", err)
	}
	snap := session.Snapshot()
	if snap.CurrentIndex != 0 || snap.Hint == nil || snap.Hint.Message != domain.AnswerRequiredHint {
		t.Fatalf("expected hint and unchanged index, got %+v", snap)
	}

	if err := session.SelectAnswer("q1", 2); err != nil {
		t.Fatalf("select: %v", err)
	}
	if session.Snapshot().Hint != nil {
		t.Fatalf("selecting should clear the hint")
	}
	if err := session.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}

	// Jumping ahead stops at the first unanswered question in between.
	err = session.GoTo(3)
	if !errors.As(err, &gate) || gate.Index != 1 {
		t.Fatalf("expected gate at index 1, got %v", err)
	}
	if session.Snapshot().CurrentIndex != 1 {
		t.Fatalf("index must not move on gate")
	}

	if err := session.Previous(); err != nil {
		t.Fatalf("previous should never be gated: %v", err)
	}
	if err := session.Previous(); err != nil {
		t.Fatalf("previous at start: %v", err)
	}
	if got := session.Snapshot().CurrentIndex; got != 0 {
		t.Fatalf("expected clamp at 0, got %d", got)
	}
}

func TestFreeGatingBlocksSubmitOnly(t *testing.T) {
	session := newTestSession(&manualClock{}, app.WithGating(domain.GatingFree))
	defer session.Close()
	questions := makeQuestions(5)
	if err := session.Load(context.Background(), &stubSource{questions: questions}, []string{"go"}); err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := session.GoTo(99); err != nil {
		t.Fatalf("free navigation: %v", err)
	}
	if got := session.Snapshot().CurrentIndex; got != 4 {
		t.Fatalf("expected clamp to 4, got %d", got)
	}

	for _, i := range []int{0, 1, 3, 4} {
		_ = session.SelectAnswer(questions[i].ID, questions[i].AnswerIndex)
	}
	_, err := session.Submit()
	var gate *domain.GatingError
	if !errors.As(err, &gate) || !errors.Is(err, domain.ErrIncompleteAnswers) {
		t.Fatalf("expected incomplete gate, got %v", err)
	}
	if gate.Index != 2 || gate.QuestionID != "q3" {
		t.Fatalf("expected first unanswered at 2, got %+v", gate)
	}
	snap := session.Snapshot()
	if snap.Phase != domain.PhaseInProgress || snap.Hint == nil || snap.Hint.QuestionIndex != 2 {
		t.Fatalf("phase must stay in progress with a hint, got %+v", snap)
	}

	_ = session.SelectAnswer("q3", questions[2].AnswerIndex)
	result, err := session.Submit()
	if err != nil || result.Score != 5 {
		t.Fatalf("expected full score, got %+v err=%v", result, err)
	}
}

func TestAnswersAreFrozenAfterSubmit(t *testing.T) {
	session := newTestSession(&manualClock{}, app.WithGating(domain.GatingFree))
	defer session.Close()
	questions := makeQuestions(1)
	_ = session.Load(context.Background(), &stubSource{questions: questions}, []string{"go"})
	_ = session.SelectAnswer("q1", 1)
	_ = session.SelectAnswer("q1", questions[0].AnswerIndex)
	if _, err := session.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := session.SelectAnswer("q1", wrongChoice(questions[0])); !errors.Is(err, domain.ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress, got %v", err)
	}
	if err := session.Next(); !errors.Is(err, domain.ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress on navigation, got %v", err)
	}
	if _, err := session.Submit(); !errors.Is(err, domain.ErrNotInProgress) {
		t.Fatalf("second submit must be a no-op, got %v", err)
	}
	if got := session.Snapshot().Result.Score; got != 1 {
		t.Fatalf("score changed after submit: %d", got)
	}
}

func TestSelectAnswerValidation(t *testing.T) {
	session := newTestSession(&manualClock{})
	defer session.Close()

	if err := session.SelectAnswer("q1", 0); !errors.Is(err, domain.ErrNotInProgress) {
		t.Fatalf("expected ErrNotInProgress before load, got %v", err)
	}
	_ = session.Load(context.Background(), &stubSource{questions: makeQuestions(2)}, []string{"go"})
	if err := session.SelectAnswer("nope", 0); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	if err := session.SelectAnswer("q1", 4); !errors.Is(err, domain.ErrChoiceOutOfRange) {
		t.Fatalf("expected ErrChoiceOutOfRange, got %v", err)
	}
	if len(session.Answers()) != 0 {
		t.Fatalf("rejected selections must not be recorded")
	}
}

func TestLoadRejectsMalformedSet(t *testing.T) {
	clock := &manualClock{}
	session := newTestSession(clock)
	defer session.Close()

	questions := makeQuestions(3)
	questions[1].Choices = questions[1].Choices[:3]
	err := session.Load(context.Background(), &stubSource{questions: questions}, []string{"go"})
	if !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected ErrInvalidQuestion, got %v", err)
	}
	if snap := session.Snapshot(); snap.Phase != domain.PhaseError || snap.Count != 0 {
		t.Fatalf("expected error without questions, got %+v", snap)
	}
}

func TestLoadWithoutTopics(t *testing.T) {
	source := &stubSource{questions: makeQuestions(2)}
	session := newTestSession(&manualClock{})
	defer session.Close()

	err := session.Load(context.Background(), source, []string{" ", ""})
	if !errors.Is(err, domain.ErrNoTopics) {
		t.Fatalf("expected ErrNoTopics, got %v", err)
	}
	if source.calls != 0 {
		t.Fatalf("source must not be called without topics")
	}
	if session.Snapshot().Phase != domain.PhaseError {
		t.Fatalf("expected error phase")
	}
}

func TestLoadForwardsAtMostTwelveTopics(t *testing.T) {
	source := &stubSource{questions: makeQuestions(1)}
	session := newTestSession(&manualClock{})
	defer session.Close()

	topics := make([]string, 15)
	for i := range topics {
		topics[i] = string(rune('a' + i))
	}
	if err := session.Load(context.Background(), source, topics); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := len(source.topics[0]); got != domain.MaxTopics {
		t.Fatalf("expected %d topics, got %d", domain.MaxTopics, got)
	}
}

func TestClockDoesNotRunWhileLoading(t *testing.T) {
	clock := &manualClock{}
	session := newTestSession(clock)
	defer session.Close()

	gated := newGatedSource(makeQuestions(2))
	done := make(chan error, 1)
	go func() { done <- session.Load(context.Background(), gated, []string{"go"}) }()

	<-gated.started
	if snap := session.Snapshot(); snap.Phase != domain.PhaseLoading {
		t.Fatalf("expected loading, got %s", snap.Phase)
	}
	if clock.count() != 0 {
		t.Fatalf("ticker started during loading")
	}
	close(gated.release)
	if err := <-done; err != nil {
		t.Fatalf("load: %v", err)
	}
	if clock.count() != 1 {
		t.Fatalf("expected ticker after load, got %d", clock.count())
	}
}

func TestNewerLoadSupersedesPending(t *testing.T) {
	session := newTestSession(&manualClock{})
	defer session.Close()

	slow := newGatedSource(makeQuestions(5))
	done := make(chan error, 1)
	go func() { done <- session.Load(context.Background(), slow, []string{"old"}) }()
	<-slow.started

	if err := session.Load(context.Background(), &stubSource{questions: makeQuestions(2)}, []string{"new"}); err != nil {
		t.Fatalf("second load: %v", err)
	}
	close(slow.release)
	if err := <-done; !errors.Is(err, domain.ErrStaleLoad) {
		t.Fatalf("expected stale load, got %v", err)
	}
	if got := session.Snapshot().Count; got != 2 {
		t.Fatalf("expected the newer set to win, got %d questions", got)
	}
}

func TestLateLoadAfterCloseIsDiscarded(t *testing.T) {
	clock := &manualClock{}
	session := newTestSession(clock)

	slow := newGatedSource(makeQuestions(2))
	done := make(chan error, 1)
	go func() { done <- session.Load(context.Background(), slow, []string{"go"}) }()
	<-slow.started

	session.Close()
	close(slow.release)
	if err := <-done; !errors.Is(err, domain.ErrStaleLoad) {
		t.Fatalf("expected stale load, got %v", err)
	}
	if clock.count() != 0 {
		t.Fatalf("closed session must not start a clock")
	}
	if err := session.Load(context.Background(), &stubSource{questions: makeQuestions(1)}, []string{"go"}); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
}

func TestExpiryRacingManualSubmitScoresOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		clock := &manualClock{}
		var mu sync.Mutex
		var attempts []domain.Attempt
		hookDone := make(chan struct{}, 2)
		session := newTestSession(clock,
			app.WithDurationPolicy(domain.DurationPolicy{FloorSec: 1}),
			app.WithSubmitHook(func(a domain.Attempt) {
				mu.Lock()
				attempts = append(attempts, a)
				mu.Unlock()
				hookDone <- struct{}{}
			}),
		)
		questions := makeQuestions(1)
		if err := session.Load(context.Background(), &stubSource{questions: questions}, []string{"go"}); err != nil {
			t.Fatalf("load: %v", err)
		}
		_ = session.SelectAnswer("q1", questions[0].AnswerIndex)

		var wg sync.WaitGroup
		var submitErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			clock.latest(t).fire()
		}()
		go func() {
			defer wg.Done()
			_, submitErr = session.Submit()
		}()
		wg.Wait()

		select {
		case <-hookDone:
		case <-time.After(time.Second):
			t.Fatalf("no submission recorded")
		}
		select {
		case <-hookDone:
			t.Fatalf("iteration %d: scored twice", i)
		case <-time.After(10 * time.Millisecond):
		}

		snap := session.Snapshot()
		if snap.Phase != domain.PhaseSubmitted || snap.Result.Score != 1 {
			t.Fatalf("unexpected final state %+v", snap)
		}
		mu.Lock()
		forced := attempts[0].Forced
		mu.Unlock()
		if forced == (submitErr == nil) {
			t.Fatalf("forced=%v but manual submit err=%v", forced, submitErr)
		}
		if snap.RemainingSec < 0 {
			t.Fatalf("remaining went negative")
		}
		session.Close()
	}
}

func TestSnapshotHidesAnswerKeyUntilSubmitted(t *testing.T) {
	session := newTestSession(&manualClock{})
	defer session.Close()
	_ = session.Load(context.Background(), &stubSource{questions: makeQuestions(1)}, []string{"go"})

	snap := session.Snapshot()
	if snap.Current == nil || snap.Result != nil {
		t.Fatalf("expected current question without result, got %+v", snap)
	}
	if snap.Attention != domain.AttentionOK || snap.TimeRatio != 1 || snap.Clock != "05:00" {
		t.Fatalf("unexpected timer view %+v", snap)
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	session := newTestSession(&manualClock{})
	updates, cancel := session.Subscribe()
	defer cancel()

	<-updates // initial snapshot
	session.Close()
	if _, ok := <-updates; ok {
		t.Fatalf("expected closed channel")
	}
}

func TestClosedSessionRejectsMutations(t *testing.T) {
	clock := &manualClock{}
	submitted := make(chan domain.Attempt, 4)
	session := newTestSession(clock, app.WithSubmitHook(func(a domain.Attempt) { submitted <- a }))

	questions := makeQuestions(1)
	if err := session.Load(context.Background(), &stubSource{questions: questions}, []string{"go"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := session.SelectAnswer("q1", questions[0].AnswerIndex); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := session.Submit(); err != nil {
		t.Fatalf("submit: %v", err)
	}
	<-submitted
	session.Close()
	tickers := clock.count()

	if err := session.Retake(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("retake: expected ErrSessionClosed, got %v", err)
	}
	if got := clock.count(); got != tickers {
		t.Fatalf("retake after close started a countdown (%d tickers, want %d)", got, tickers)
	}
	if got := session.Snapshot().Phase; got != domain.PhaseSubmitted {
		t.Fatalf("expected phase to stay submitted, got %s", got)
	}
	select {
	case a := <-submitted:
		t.Fatalf("closed session recorded attempt %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCloseDuringQuizBlocksAnswersAndSubmit(t *testing.T) {
	clock := &manualClock{}
	submitted := make(chan domain.Attempt, 4)
	session := newTestSession(clock,
		app.WithGating(domain.GatingFree),
		app.WithSubmitHook(func(a domain.Attempt) { submitted <- a }),
	)

	questions := makeQuestions(2)
	if err := session.Load(context.Background(), &stubSource{questions: questions}, []string{"go"}); err != nil {
		t.Fatalf("load: %v", err)
	}
	session.Close()

	if err := session.SelectAnswer("q1", 0); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("select: expected ErrSessionClosed, got %v", err)
	}
	if err := session.Next(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("next: expected ErrSessionClosed, got %v", err)
	}
	if err := session.GoTo(1); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("goto: expected ErrSessionClosed, got %v", err)
	}
	if _, err := session.Submit(); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("submit: expected ErrSessionClosed, got %v", err)
	}
	if clock.latest(t).fire() {
		t.Fatalf("countdown should be stopped after close")
	}
	select {
	case a := <-submitted:
		t.Fatalf("closed session recorded attempt %+v", a)
	case <-time.After(50 * time.Millisecond):
	}
}
