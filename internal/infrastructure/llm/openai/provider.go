// Package openai wires the official OpenAI SDK into the llm.Provider
// contract: a single-message chat completion in, streamed text out.
package openai

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/param"
	"github.com/openai/openai-go/v2/shared"
	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/entity"
	"github.com/cli-engineer/agent/internal/infrastructure/llm"
)

func init() {
	llm.RegisterFactory("openai", New)
}

const (
	defaultModel       = "gpt-4o"
	defaultContextSize = 128000
)

// Provider sends prompts through OpenAI's Chat Completions API.
type Provider struct {
	sdk         sdk.Client
	model       string
	contextSize int
	costPerM    llm.CostRates
	logger      *zap.Logger
}

// New builds an OpenAI provider from cfg. cfg.APIKey is resolved by the
// caller from OPENAI_API_KEY; it is never read from the TOML file.
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
		sdk:         sdk.NewClient(opts...),
		model:       model,
		contextSize: contextSize,
		costPerM:    cfg.CostPerM,
		logger:      logger,
	}, nil
}

func (p *Provider) Name() string            { return "openai" }
func (p *Provider) ModelName() string       { return p.model }
func (p *Provider) ContextSize() int        { return p.contextSize }
func (p *Provider) HandlesOwnMetrics() bool { return true }

// SendPrompt issues prompt as a single user message and streams the
// assistant's content deltas through onChunk, accumulating the full reply.
func (p *Provider) SendPrompt(ctx context.Context, prompt string, onChunk llm.StreamFunc) (llm.Result, error) {
	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{sdk.UserMessage(prompt)},
	}
	params.StreamOptions.IncludeUsage = param.NewOpt(true)

	stream := p.sdk.Chat.Completions.NewStreaming(ctx, params)
	defer func() { _ = stream.Close() }()

	var text string
	var promptTokens, completionTokens int

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			if chunk.Usage.TotalTokens > 0 {
				promptTokens = int(chunk.Usage.PromptTokens)
				completionTokens = int(chunk.Usage.CompletionTokens)
			}
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta != "" {
			text += delta
			if onChunk != nil {
				onChunk(delta, entity.ChunkContent)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return llm.Result{}, fmt.Errorf("openai: stream: %w", err)
	}

	tokens := promptTokens + completionTokens
	cost := float64(promptTokens)/1_000_000*p.costPerM.Input + float64(completionTokens)/1_000_000*p.costPerM.Output

	return llm.Result{Text: text, Tokens: tokens, Cost: cost}, nil
}
