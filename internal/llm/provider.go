package llm

import "context"

// Provider is the completion interface the question pipeline talks to.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the provider's identifier.
	Name() string
}
