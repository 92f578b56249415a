package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrProviderNotFound is returned when a provider name has no registered client.
var ErrProviderNotFound = errors.New("provider not found")

// Registry holds the configured LLM and image clients, keyed by
// provider name ("openai", "gemini", ...), and provides thread-safe
// lookup for the phases and the entity matcher.
type Registry struct {
	mu     sync.RWMutex
	llm    map[string]LLMClient
	image  map[string]ImageClient
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		llm:    make(map[string]LLMClient),
		image:  make(map[string]ImageClient),
		logger: logger,
	}
}

// RegisterLLM registers a chat client under name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = client
	r.logger.Info("registered LLM client", "name", name)
}

// RegisterImage registers an image client under name.
func (r *Registry) RegisterImage(name string, client ImageClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[name] = client
	r.logger.Info("registered image client", "name", name)
}

// LLM returns the chat client registered under name.
func (r *Registry) LLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llm[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return client, nil
}

// Image returns the image client registered under name.
func (r *Registry) Image(name string) (ImageClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.image[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return client, nil
}

// HealthCheck sends a minimal chat request to the named provider to
// confirm it is reachable and its credentials are accepted, before the
// pipeline commits a full run to it. It makes one real call; a cheap
// but genuine reachability probe, not just a registration-table lookup.
func (r *Registry) HealthCheck(ctx context.Context, name string) error {
	client, err := r.LLM(name)
	if err != nil {
		return err
	}
	_, err = client.Chat(ctx, &ChatRequest{
		Messages:  []Message{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
		RequestID: "healthcheck-" + name,
	})
	if err != nil {
		return fmt.Errorf("providers: health check for %q: %w", name, err)
	}
	return nil
}

// ClientConfig describes one provider entry from configuration: its
// backend type and connection details. Type alone selects the client:
// "gemini" builds the native Gemini translation layer, "openai" or an
// empty Type the OpenAI-compatible SDK client. BaseURL only overrides
// the chosen client's endpoint; it is not inspected to pick the client.
type ClientConfig struct {
	Type         string // "openai", "gemini"
	APIKey       string
	BaseURL      string
	DefaultModel string
	ImageModel   string
}

// NewRegistryFromConfig builds a Registry from a set of named provider
// configs, registering each as both an LLMClient and, where supported,
// an ImageClient.
func NewRegistryFromConfig(logger *slog.Logger, configs map[string]ClientConfig) (*Registry, error) {
	r := NewRegistry(logger)
	for name, cfg := range configs {
		switch cfg.Type {
		case "gemini":
			client := NewGeminiClient(GeminiConfig{
				APIKey:       cfg.APIKey,
				BaseURL:      cfg.BaseURL,
				DefaultModel: cfg.DefaultModel,
				ImageModel:   cfg.ImageModel,
			})
			r.RegisterLLM(name, client)
			r.RegisterImage(name, client)
		case "openai", "":
			client := NewOpenAICompatibleClient(OpenAICompatibleConfig{
				APIKey:       cfg.APIKey,
				BaseURL:      cfg.BaseURL,
				DefaultModel: cfg.DefaultModel,
				ImageModel:   cfg.ImageModel,
			})
			r.RegisterLLM(name, client)
			r.RegisterImage(name, client)
		default:
			return nil, fmt.Errorf("providers: unknown provider type %q for %q", cfg.Type, name)
		}
	}
	return r, nil
}
