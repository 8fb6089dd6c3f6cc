// Package anthropic wires the official Anthropic SDK into the llm.Provider
// contract: a single system-less prompt in, streamed text out.
package anthropic

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/entity"
	"github.com/cli-engineer/agent/internal/infrastructure/llm"
)

func init() {
	llm.RegisterFactory("anthropic", New)
}

const defaultModel = "claude-3-7-sonnet-latest"
const defaultMaxTokens = 4096
const defaultContextSize = 200000

// Provider sends prompts through Anthropic's Messages API.
type Provider struct {
	sdk         anthropicsdk.Client
	model       string
	maxTokens   int64
	contextSize int
	logger      *zap.Logger
}

// New builds an Anthropic provider from cfg. cfg.APIKey is resolved by the
// caller from ANTHROPIC_API_KEY; it is never read from the TOML file.
func New(cfg llm.Config, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	contextSize := cfg.ContextSize
	if contextSize <= 0 {
		contextSize = defaultContextSize
	}

	return &Provider{
		sdk:         anthropicsdk.NewClient(opts...),
		model:       model,
		maxTokens:   defaultMaxTokens,
		contextSize: contextSize,
		logger:      logger,
	}, nil
}

func (p *Provider) Name() string            { return "anthropic" }
func (p *Provider) ModelName() string       { return p.model }
func (p *Provider) ContextSize() int        { return p.contextSize }
func (p *Provider) HandlesOwnMetrics() bool { return true }

// SendPrompt issues prompt as a single user message and streams the
// assistant's text deltas through onChunk, accumulating the full reply.
func (p *Provider) SendPrompt(ctx context.Context, prompt string, onChunk llm.StreamFunc) (llm.Result, error) {
	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(p.model),
		MaxTokens: p.maxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
		},
	}

	stream := p.sdk.Messages.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var acc anthropicsdk.Message
	var text string

	for stream.Next() {
		event := stream.Current()
		if err := acc.Accumulate(event); err != nil {
			return llm.Result{}, fmt.Errorf("anthropic: accumulate stream event: %w", err)
		}

		switch delta := event.AsAny().(type) {
		case anthropicsdk.ContentBlockDeltaEvent:
			if delta.Delta.Text != "" {
				text += delta.Delta.Text
				if onChunk != nil {
					onChunk(delta.Delta.Text, entity.ChunkContent)
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return llm.Result{}, fmt.Errorf("anthropic: stream: %w", err)
	}

	tokens := int(acc.Usage.InputTokens + acc.Usage.OutputTokens)
	cost := estimateCost(p.model, int(acc.Usage.InputTokens), int(acc.Usage.OutputTokens))

	return llm.Result{Text: text, Tokens: tokens, Cost: cost}, nil
}

// estimateCost applies the Claude 3.7 Sonnet published rate ($3 input, $15
// output per million tokens) to every model; the model argument is not
// consulted and configured cost rates are not used.
func estimateCost(model string, inputTokens, outputTokens int) float64 {
	rate := llm.CostRates{Input: 3.0, Output: 15.0}
	return float64(inputTokens)/1_000_000*rate.Input + float64(outputTokens)/1_000_000*rate.Output
}
