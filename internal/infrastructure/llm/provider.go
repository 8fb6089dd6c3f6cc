package llm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/entity"
)

// Result is the outcome of one send_prompt call.
type Result struct {
	Text   string
	Tokens int     // 0 if the provider does not report its own usage
	Cost   float64 // 0 if the provider does not report its own usage
}

// StreamFunc receives intermediate reasoning/content chunks as the provider
// generates a response. onChunk may be nil; providers must tolerate that.
type StreamFunc func(chunk string, kind entity.StreamChunkKind)

// Provider is the pluggable LLM backend contract. A provider must never
// retry internally — the caller (the LLM manager) owns retry policy.
type Provider interface {
	// Name identifies the provider ("anthropic", "openai", "gemini", "local").
	Name() string

	// ModelName returns the concrete model identifier in use.
	ModelName() string

	// ContextSize returns the model's context window, in tokens.
	ContextSize() int

	// HandlesOwnMetrics reports whether the provider returns accurate
	// Tokens/Cost in Result itself, sparing the manager's estimate.
	HandlesOwnMetrics() bool

	// SendPrompt issues one request and returns the final assistant text.
	SendPrompt(ctx context.Context, prompt string, onChunk StreamFunc) (Result, error)
}

// Config holds the settings needed to construct any provider.
type Config struct {
	Type        string            `toml:"type"` // "openai" | "anthropic" | "gemini" | "local"
	Model       string            `toml:"model"`
	APIKey      string            `toml:"api_key"`
	BaseURL     string            `toml:"base_url"`
	ContextSize int               `toml:"context_size"`
	CostPerM    CostRates         `toml:"cost_per_million_tokens"`
	Extra       map[string]string `toml:"extra"`
}

// CostRates expresses per-million-token pricing, used by the manager when a
// provider does not report its own cost.
type CostRates struct {
	Input  float64 `toml:"input"`
	Output float64 `toml:"output"`
}

// Factory builds a Provider from Config.
type Factory func(cfg Config, logger *zap.Logger) (Provider, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterFactory registers a provider factory under a type name. Called
// from init() in each provider sub-package.
func RegisterFactory(typeName string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typeName] = factory
}

// CreateProvider builds the Provider registered for cfg.Type. Defaults to
// "local" when Type is empty.
func CreateProvider(cfg Config, logger *zap.Logger) (Provider, error) {
	t := cfg.Type
	if t == "" {
		t = "local"
	}

	factoryMu.RLock()
	factory, ok := factories[t]
	factoryMu.RUnlock()

	if !ok {
		available := make([]string, 0, len(factories))
		factoryMu.RLock()
		for k := range factories {
			available = append(available, k)
		}
		factoryMu.RUnlock()
		return nil, fmt.Errorf("llm: unknown provider type %q (available: %v)", t, available)
	}

	return factory(cfg, logger)
}
