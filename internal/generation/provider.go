package generation

import "context"

// Provider is one model endpoint that turns a prompt into text.
type Provider interface {
	// Generate sends a single-turn prompt and returns the model's raw text.
	// When Schema is set the provider asks for JSON using its native mechanism;
	// the text is still parsed leniently by ExtractJSON.
	Generate(ctx context.Context, req Request) (*Response, error)

	// ModelID returns the model identifier this provider is configured to use.
	ModelID() string
}

// Request describes what to send to the model.
type Request struct {
	System      string
	Prompt      string
	Schema      *Schema
	MaxTokens   int
	Temperature float64
}

// Schema is a JSON Schema the response should follow.
type Schema struct {
	// Name identifies this schema, e.g. "quiz-questions".
	Name        string
	Description string
	Definition  map[string]any
}

// Response holds the model output.
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Usage tracks token consumption for a single request.
type Usage struct {
	InputTokens  int
	OutputTokens int
}
