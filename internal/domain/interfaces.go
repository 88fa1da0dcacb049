package domain

import "context"

// ModelMode distinguishes the two invocation protocols a model can speak.
type ModelMode string

const (
	ModeChat       ModelMode = "chat"
	ModeCompletion ModelMode = "completion"
)

// Provider represents any LLM provider adapter.
type Provider interface {
	// Invoke sends a blocking invocation and returns the full result.
	Invoke(ctx context.Context, req *InvokeRequest) (*Result, error)

	// InvokeStream sends a streaming invocation and returns a lazy chunk
	// sequence. The caller owns the stream and must Close it.
	InvokeStream(ctx context.Context, req *InvokeRequest) (ChunkStream, error)

	// CountTokens estimates the prompt token count for the given messages
	// and tool declarations.
	CountTokens(ctx context.Context, model string, messages []PromptMessage, tools []Tool) (int, error)

	// Name returns the provider identifier.
	Name() string

	// IsModelSupported checks if the provider supports the given model.
	IsModelSupported(ctx context.Context, model string) bool

	// SupportedModels returns all models this provider serves.
	SupportedModels(ctx context.Context) []string
}

// ProviderRegistry manages available providers.
type ProviderRegistry interface {
	// Register adds a provider to the registry.
	Register(ctx context.Context, provider Provider) error

	// Get retrieves a provider by name.
	Get(ctx context.Context, providerName string) (Provider, error)

	// GetByModel retrieves a provider that serves the given model.
	GetByModel(ctx context.Context, model string) (Provider, error)

	// List returns all available provider names.
	List(ctx context.Context) ([]string, error)
}

// EventPublisher publishes events for observability.
type EventPublisher interface {
	// Publish publishes an event with the given type and data.
	Publish(ctx context.Context, eventType string, data map[string]interface{})
}
