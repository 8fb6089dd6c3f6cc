// Package llmmanager wraps a single enabled provider with cost/token
// accounting, event emission, and the rate-limit retry policy.
package llmmanager

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/conversation"
	"github.com/cli-engineer/agent/internal/domain/entity"
	"github.com/cli-engineer/agent/internal/domain/service"
	"github.com/cli-engineer/agent/internal/infrastructure/llm"
	apperrors "github.com/cli-engineer/agent/pkg/errors"
)

// EventSink is the subset of the event bus the manager needs.
type EventSink interface {
	Emit(entity.Event)
}

const (
	maxRetryAttempts  = 2 // additional attempts beyond the first, on rate limit only
	retryBaseDelay    = time.Second
	retryBackoffFactor = 2.0
	retryJitterFrac   = 0.25
)

// Manager holds the enabled provider plus optional event bus, and exposes
// the single send_prompt entry point every stage calls through.
type Manager struct {
	provider llm.Provider
	bus      EventSink
	logger   *zap.Logger

	costInput  float64
	costOutput float64

	tokenizer conversation.Tokenizer
	sleep     func(time.Duration) // swappable for tests
}

// New builds a manager around provider. costPerM gives the per-million-token
// input/output rates used to estimate cost when the provider does not
// report its own.
func New(provider llm.Provider, bus EventSink, logger *zap.Logger, costPerM llm.CostRates) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		provider:   provider,
		bus:        bus,
		logger:     logger,
		costInput:  costPerM.Input,
		costOutput: costPerM.Output,
		tokenizer:  conversation.NewTokenizer(),
		sleep:      time.Sleep,
	}
}

// ContextSize exposes the underlying provider's context window.
func (m *Manager) ContextSize() int {
	return m.provider.ContextSize()
}

// SendPrompt issues the request, retrying on rate-limit errors per §4.3:
// up to two additional attempts with exponential backoff (base 1s, factor
// 2, ±25% jitter). Every attempt emits its own APICallStarted; only the
// final success emits APICallCompleted. Intermediate provider chunks are
// side-channeled onto the event bus as APICallProgress — callers never see
// a streaming callback, only the final concatenated text, with any
// reasoning/thinking tags the model left in its output stripped out first.
func (m *Manager) SendPrompt(ctx context.Context, prompt string) (string, error) {
	provider := m.provider.Name()
	model := m.provider.ModelName()

	onChunk := func(chunk string, kind entity.StreamChunkKind) {
		m.emit(entity.NewAPICallProgress(provider, model, chunk, kind))
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetryAttempts; attempt++ {
		m.emit(entity.NewAPICallStarted(provider, model))

		result, err := m.provider.SendPrompt(ctx, prompt, onChunk)
		if err == nil {
			tokens, cost := result.Tokens, result.Cost
			if !m.provider.HandlesOwnMetrics() {
				tokens = m.tokenizer.Count(prompt) + m.tokenizer.Count(result.Text)
				cost = m.estimateCost(tokens)
			}
			m.emit(entity.NewAPICallCompleted(provider, model, tokens, cost))
			return service.StripReasoningTags(result.Text), nil
		}

		var appErr *apperrors.AppError
		if service.IsContextOverflowError(err) {
			appErr = apperrors.NewContextOverflow(err.Error())
		} else {
			appErr = apperrors.ClassifyProviderError(err, provider)
		}
		lastErr = appErr
		m.emit(entity.NewAPIError(provider, model, appErr.Error()))

		if appErr.Code != apperrors.CodeProviderRateLimit || attempt == maxRetryAttempts {
			return "", appErr
		}

		delay := backoffDelay(attempt)
		m.logger.Warn("rate limited, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return "", apperrors.NewCancelled("cancelled during retry backoff")
		default:
			m.sleep(delay)
		}
	}
	return "", lastErr
}

func (m *Manager) emit(e entity.Event) {
	if m.bus != nil {
		m.bus.Emit(e)
	}
}

// estimateCost derives cost from configured per-million-token rates,
// splitting tokens evenly between input/output attribution since the
// manager does not track the two separately for non-metric providers.
func (m *Manager) estimateCost(tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	rate := (m.costInput + m.costOutput) / 2
	return float64(tokens) / 1_000_000 * rate
}

func backoffDelay(attempt int) time.Duration {
	base := float64(retryBaseDelay) * pow(retryBackoffFactor, attempt)
	jitter := base * retryJitterFrac * (2*rand.Float64() - 1)
	return time.Duration(base + jitter)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}
