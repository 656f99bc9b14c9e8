package generation

import (
	"context"
	"errors"
	"log"
)

type fallbackProvider struct {
	providers []Provider
}

// WithModelFallback tries providers in order. It moves to the next one only when the
// current model is not found or not supported; any other error is returned as is.
func WithModelFallback(providers ...Provider) Provider {
	if len(providers) == 1 {
		return providers[0]
	}
	return &fallbackProvider{providers: providers}
}

func (f *fallbackProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	var lastErr error
	for _, p := range f.providers {
		resp, err := p.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		var notFound *ErrModelNotFound
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Printf("generation: model %s unavailable, trying next: %v", p.ModelID(), err)
		lastErr = err
	}
	return nil, lastErr
}

// ModelID reports the first model in the chain.
func (f *fallbackProvider) ModelID() string {
	return f.providers[0].ModelID()
}
