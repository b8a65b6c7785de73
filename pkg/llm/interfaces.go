// Package llm binds the engine to language-model providers and layers the
// SQL-generation capability on top of them.
package llm

import "context"

// Client is the vendor-independent model interface. Use it for dependency
// injection so tests can substitute MockClient.
type Client interface {
	// GenerateResponse runs one chat completion and returns the raw text.
	GenerateResponse(ctx context.Context, prompt, systemMessage string, temperature float64) (string, error)

	// CreateEmbedding generates an embedding vector for one input.
	CreateEmbedding(ctx context.Context, input, model string) ([]float32, error)

	// CreateEmbeddings generates embeddings for multiple inputs.
	CreateEmbeddings(ctx context.Context, inputs []string, model string) ([][]float32, error)

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Config holds what a provider client needs to connect.
type Config struct {
	Endpoint string // base URL; empty picks the provider default
	Model    string
	APIKey   string // optional for local openai-compatible endpoints
}
