package generation

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"

	"timed-quiz-service/internal/domain"
)

var (
	// ErrEmptyContent means the model answered with no text.
	ErrEmptyContent = errors.New("model returned empty content")
	// ErrUnparsable means no JSON object could be recovered from the model text.
	ErrUnparsable = errors.New("model returned unparsable JSON for quiz")
	// ErrNoQuestions means nothing survived normalisation and validation.
	ErrNoQuestions = domain.ErrNoQuestions
)

// ErrModelNotFound indicates the configured model does not exist or cannot serve this call.
// It is the only error that makes the fallback chain try the next model.
type ErrModelNotFound struct {
	Model string
	Err   error
}

func (e *ErrModelNotFound) Error() string {
	return fmt.Sprintf("model %s not available: %v", e.Model, e.Err)
}

func (e *ErrModelNotFound) Unwrap() error { return e.Err }

// ErrRateLimit indicates the provider returned a rate limit error (429).
type ErrRateLimit struct {
	Err error
}

func (e *ErrRateLimit) Error() string {
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *ErrRateLimit) Unwrap() error { return e.Err }

// ErrProviderUnavailable indicates the provider is down or unreachable.
type ErrProviderUnavailable struct {
	Err error
}

func (e *ErrProviderUnavailable) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("model provider unavailable: %v", e.Err)
	}
	return "model provider unavailable"
}

func (e *ErrProviderUnavailable) Unwrap() error { return e.Err }

var modelNotFoundPattern = regexp.MustCompile(`(?i)not found|not supported`)

// classifyError maps an SDK error and its HTTP status (0 when unknown) to one of the error classes.
func classifyError(model string, status int, err error) error {
	switch {
	case status == http.StatusNotFound || modelNotFoundPattern.MatchString(err.Error()):
		return &ErrModelNotFound{Model: model, Err: err}
	case status == http.StatusTooManyRequests:
		return &ErrRateLimit{Err: err}
	default:
		return &ErrProviderUnavailable{Err: err}
	}
}
