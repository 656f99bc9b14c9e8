package generation

import (
	"context"
	"sync"
)

// MockResponse is a canned response for the MockProvider.
type MockResponse struct {
	Text string
	Err  error
}

// MockProvider is a deterministic Provider for tests and offline runs.
// It returns canned responses in FIFO order and records all requests.
// Once the queue is empty it serves the default response, if one is set.
type MockProvider struct {
	mu        sync.Mutex
	model     string
	responses []MockResponse
	fallback  *MockResponse
	Calls     []Request
}

// NewMockProvider creates a MockProvider with the given canned responses.
func NewMockProvider(responses ...MockResponse) *MockProvider {
	return &MockProvider{model: "mock", responses: responses}
}

// WithModel sets the id reported by ModelID.
func (m *MockProvider) WithModel(model string) *MockProvider {
	m.model = model
	return m
}

// WithDefault sets the response served when no canned response is queued.
func (m *MockProvider) WithDefault(resp MockResponse) *MockProvider {
	m.fallback = &resp
	return m
}

// Generate returns the next canned response or ErrProviderUnavailable if
// the queue is empty and no default is set.
func (m *MockProvider) Generate(_ context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, req)

	var resp MockResponse
	switch {
	case len(m.responses) > 0:
		resp = m.responses[0]
		m.responses = m.responses[1:]
	case m.fallback != nil:
		resp = *m.fallback
	default:
		return nil, &ErrProviderUnavailable{}
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return &Response{Text: resp.Text, Model: m.model}, nil
}

func (m *MockProvider) ModelID() string {
	return m.model
}

// CallCount returns the number of Generate calls made.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// DemoQuiz is served by the "mock" provider. Topics and levels are left out so
// normalisation assigns them from the requested topics.
const DemoQuiz = `{
  "questions": [
    {"question": "Which keyword starts a goroutine?", "choices": ["go", "async", "spawn", "thread"], "answerIndex": 0, "explanation": "The go statement runs a function call concurrently."},
    {"question": "What does a nil map panic on?", "choices": ["Reading a key", "Writing a key", "len()", "range"], "answerIndex": 1, "explanation": "Reads from a nil map return the zero value; writes panic."},
    {"question": "Which statement waits on several channel operations?", "choices": ["switch", "select", "wait", "for"], "answerIndex": 1, "explanation": "select blocks until one of its cases can proceed."},
    {"question": "What is the zero value of a pointer?", "choices": ["0", "undefined", "nil", "an empty struct"], "answerIndex": 2, "explanation": "Pointers, slices, maps and channels default to nil."},
    {"question": "Which function defers cleanup until return?", "choices": ["finally", "defer", "cleanup", "atexit"], "answerIndex": 1, "explanation": "defer schedules a call for when the surrounding function returns."},
    {"question": "How is an interface satisfied?", "choices": ["implements keyword", "Registration at init", "Implicitly by method set", "Embedding the interface"], "answerIndex": 2, "explanation": "Go interfaces are satisfied implicitly."},
    {"question": "What does errors.Is compare against?", "choices": ["Error strings", "The error chain", "Stack traces", "Error codes only"], "answerIndex": 1, "explanation": "errors.Is walks the Unwrap chain."},
    {"question": "Which type guards shared state across goroutines?", "choices": ["sync.Mutex", "context.Context", "time.Timer", "bytes.Buffer"], "answerIndex": 0, "explanation": "A mutex serialises access to shared state."}
  ]
}`
