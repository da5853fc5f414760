package chat

import "context"

// ProviderAdapter abstracts one model back-end (e.g., Ollama)
type ProviderAdapter interface {
	// Chat sends the full ordered history and returns exactly one assistant message
	Chat(ctx context.Context, history []ChatMessage) (ChatMessage, error)

	// Embed returns one vector per input text, in input order
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Descriptor identifies the provider/model pair an adapter serves
type Descriptor struct {
	Provider       string `json:"provider"`
	Model          string `json:"model_name"`
	EmbeddingModel string `json:"embedding_model"`
}

// Describer is implemented by adapters that can report what they serve
type Describer interface {
	Describe() Descriptor
}

// AdapterFactory builds a ready adapter for a provider/model pair
type AdapterFactory interface {
	Create(provider, model string) (ProviderAdapter, error)
}
