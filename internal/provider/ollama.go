package provider

import "context"

// OllamaConfig configures the local Ollama adapter. Ollama serves an
// OpenAI-compatible chat-completions endpoint at /v1, so this wraps
// OpenAICompatibleAdapter rather than reimplementing the wire format.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
}

// OllamaAdapter talks to a local or self-hosted Ollama instance.
type OllamaAdapter struct {
	inner *OpenAICompatibleAdapter
}

// NewOllamaAdapter builds an adapter bound to cfg.DefaultModel. BaseURL
// defaults to Ollama's standard local port.
func NewOllamaAdapter(cfg OllamaConfig) *OllamaAdapter {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return &OllamaAdapter{
		inner: NewOpenAICompatibleAdapter(OpenAICompatibleConfig{
			Name:         "ollama",
			APIKey:       "ollama",
			BaseURL:      baseURL,
			DefaultModel: cfg.DefaultModel,
		}),
	}
}

// Name implements Adapter.
func (a *OllamaAdapter) Name() string { return "ollama" }

// Model implements Adapter.
func (a *OllamaAdapter) Model() string { return a.inner.Model() }

// Clone implements Adapter.
func (a *OllamaAdapter) Clone(model string) Adapter {
	return &OllamaAdapter{inner: a.inner.Clone(model).(*OpenAICompatibleAdapter)}
}

// SendConversation implements Adapter.
func (a *OllamaAdapter) SendConversation(ctx context.Context, req ConversationRequest) (*ProviderResponse, error) {
	return a.inner.SendConversation(ctx, req)
}
