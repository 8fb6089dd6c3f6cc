// Package gemini wires Google's official GenAI SDK into the llm.Provider
// contract: a single-turn generate-content call in, streamed text out.
package gemini

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	genai "google.golang.org/genai"

	"github.com/cli-engineer/agent/internal/domain/entity"
	"github.com/cli-engineer/agent/internal/infrastructure/llm"
)

func init() {
	llm.RegisterFactory("gemini", New)
}

const (
	defaultModel       = "gemini-1.5-flash"
	defaultContextSize = 1000000
)

// Provider sends prompts through Gemini's GenerateContent API.
type Provider struct {
	client      *genai.Client
	model       string
	contextSize int
	costPerM    llm.CostRates
	logger      *zap.Logger
}

// New builds a Gemini provider from cfg. cfg.APIKey is resolved by the
// caller from GEMINI_API_KEY; it is never read from the TOML file.
func New(cfg llm.Config, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	httpOpts := genai.HTTPOptions{}
	if cfg.BaseURL != "" {
		httpOpts.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: init client: %w", err)
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
		client:      client,
		model:       model,
		contextSize: contextSize,
		costPerM:    cfg.CostPerM,
		logger:      logger,
	}, nil
}

func (p *Provider) Name() string            { return "gemini" }
func (p *Provider) ModelName() string       { return p.model }
func (p *Provider) ContextSize() int        { return p.contextSize }
func (p *Provider) HandlesOwnMetrics() bool { return true }

// SendPrompt issues prompt as a single user turn and streams text parts
// through onChunk, accumulating the full reply. Thought parts (reasoning)
// are reported as entity.ChunkReasoning and excluded from the final text.
func (p *Provider) SendPrompt(ctx context.Context, prompt string, onChunk llm.StreamFunc) (llm.Result, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	stream := p.client.Models.GenerateContentStream(ctx, p.model, contents, nil)

	var text string
	var promptTokens, completionTokens int

	for resp, err := range stream {
		if err != nil {
			return llm.Result{}, fmt.Errorf("gemini: stream: %w", err)
		}
		if resp == nil || len(resp.Candidates) == 0 {
			continue
		}
		if resp.UsageMetadata != nil {
			promptTokens = int(resp.UsageMetadata.PromptTokenCount)
			completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		}
		candidate := resp.Candidates[0]
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			if part.Thought {
				if onChunk != nil {
					onChunk(part.Text, entity.ChunkReasoning)
				}
				continue
			}
			text += part.Text
			if onChunk != nil {
				onChunk(part.Text, entity.ChunkContent)
			}
		}
	}

	tokens := promptTokens + completionTokens
	cost := float64(promptTokens)/1_000_000*p.costPerM.Input + float64(completionTokens)/1_000_000*p.costPerM.Output

	return llm.Result{Text: text, Tokens: tokens, Cost: cost}, nil
}
