package domain

import "context"

// LLMClient defines the capability to send prompts to an LLM and receive
// textual responses, either whole or as an ordered stream of fragments.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (*LLMResponse, error)

	// GenerateStream starts a streaming generation. Fragments arrive on the
	// first channel in order; a terminal failure arrives on the second.
	// Both channels are closed when the stream ends. Cancelling the context
	// stops the stream.
	GenerateStream(ctx context.Context, prompt string, maxTokens int) (<-chan LLMStreamChunk, <-chan error, error)

	Version() string
}

// LLMResponse carries the LLM output and whether the generation finished.
type LLMResponse struct {
	Text string
	Done bool
}

// LLMStreamChunk is one fragment of a streaming generation.
type LLMStreamChunk struct {
	Response string
	Done     bool
}
