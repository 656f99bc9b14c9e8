package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session has not been opened.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuestionNotFound indicates a question id that is not part of the loaded set.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrChoiceOutOfRange indicates a choice index outside [0,3].
	ErrChoiceOutOfRange = errors.New("choice index out of range")
	// ErrInvalidQuestion marks a question that breaks the four-choice invariant.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrNoQuestions is returned when a question set is empty.
	ErrNoQuestions = errors.New("quiz generation returned no questions")
	// ErrNoTopics is returned when load is called without any topic.
	ErrNoTopics = errors.New("no topics provided for quiz generation")
	// ErrNotInProgress rejects answer, navigation and submit calls outside a running quiz.
	ErrNotInProgress = errors.New("quiz is not in progress")
	// ErrNotSubmitted rejects retake before the quiz was submitted.
	ErrNotSubmitted = errors.New("quiz has not been submitted")
	// ErrAnswerRequired is the strict-mode gating rejection.
	ErrAnswerRequired = errors.New("answer required before moving on")
	// ErrIncompleteAnswers is the submit-time gating rejection.
	ErrIncompleteAnswers = errors.New("all questions must be answered before submitting")
	// ErrStaleLoad means a load result arrived after it was superseded or the session closed.
	ErrStaleLoad = errors.New("load superseded")
	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("quiz session closed")
	// ErrInvalidDuration rejects a duration policy that yields no time.
	ErrInvalidDuration = errors.New("invalid duration policy")
)

// AnswerRequiredHint is the message shown next to a gated question.
const AnswerRequiredHint = "Please select an answer to continue."

// GatingError reports the question that blocked navigation or submission.
type GatingError struct {
	Index      int
	QuestionID string
	Err        error
}

func (e *GatingError) Error() string {
	return fmt.Sprintf("%v (question %d)", e.Err, e.Index+1)
}

func (e *GatingError) Unwrap() error { return e.Err }
