// Package local implements the deterministic, config-free "local" provider:
// the zero-enabled-provider fallback and the provider exercised by every
// core property test.
package local

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/entity"
	"github.com/cli-engineer/agent/internal/infrastructure/llm"
)

func init() {
	llm.RegisterFactory("local", New)
}

const defaultContextSize = 32000

// Provider is a rule-based stand-in for a real LLM backend. It never
// touches the network and always returns the same reply for the same kind
// of prompt, which makes it safe to drive planner/executor/reviewer logic
// in tests without a vendor API key.
type Provider struct {
	model       string
	contextSize int

	mu      sync.Mutex
	counter int
}

// New builds the local provider. Config is honored for model/context_size
// overrides but nothing is required.
func New(cfg llm.Config, _ *zap.Logger) (llm.Provider, error) {
	model := cfg.Model
	if model == "" {
		model = "local-deterministic"
	}
	contextSize := cfg.ContextSize
	if contextSize <= 0 {
		contextSize = defaultContextSize
	}
	return &Provider{model: model, contextSize: contextSize}, nil
}

func (p *Provider) Name() string            { return "local" }
func (p *Provider) ModelName() string       { return p.model }
func (p *Provider) ContextSize() int        { return p.contextSize }
func (p *Provider) HandlesOwnMetrics() bool { return false }

// SendPrompt inspects the prompt for the instructional markers each calling
// stage embeds in its template and returns a matching canned reply.
func (p *Provider) SendPrompt(_ context.Context, prompt string, onChunk llm.StreamFunc) (llm.Result, error) {
	if onChunk != nil {
		onChunk("thinking about the request", entity.ChunkReasoning)
	}

	reply := p.reply(prompt)

	if onChunk != nil {
		onChunk(reply, entity.ChunkContent)
	}
	return llm.Result{Text: reply}, nil
}

func (p *Provider) reply(prompt string) string {
	switch {
	case strings.Contains(prompt, "Respond with one step per line"):
		return p.planReply()
	case strings.Contains(prompt, "QUALITY: <Excellent"):
		return reviewReply
	case strings.Contains(prompt, "analyze and report, produce no files"),
		strings.Contains(prompt, "report findings, no files"),
		strings.Contains(prompt, "report, no files"):
		return "Analysis complete. No changes needed."
	case strings.Contains(prompt, "emit test files only"):
		return p.artifactReply("Test", "_test.txt", "placeholder test case")
	case strings.Contains(prompt, "emit markdown files under `docs/`"):
		return p.artifactReply("Documentation", "docs/notes.md", "# Notes\n\nGenerated by the local provider.")
	case strings.Contains(prompt, "emit files only via `<artifact>` blocks"),
		strings.Contains(prompt, "emit the full new content for modified files via `<artifact>` blocks"):
		return p.artifactReply("SourceCode", "", "// generated by the local provider\n")
	case strings.Contains(prompt, "Compress the following conversation history"):
		return "- discussed the request\n- no file changes recorded yet"
	default:
		return fmt.Sprintf("Acknowledged (%d characters of input).", len(prompt))
	}
}

func (p *Provider) nextName(explicit string) string {
	if explicit != "" {
		return explicit
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter++
	return fmt.Sprintf("generated_%d.txt", p.counter)
}

func (p *Provider) artifactReply(artifactType, name, body string) string {
	name = p.nextName(name)
	return fmt.Sprintf("<artifact name=%q type=%q>\n%s\n</artifact>", name, artifactType, body)
}

func (p *Provider) planReply() string {
	return "Create the primary deliverable for the goal | outputs: generated_1.txt\n" +
		"Write a short summary of the result | outputs: README.md"
}

const reviewReply = `QUALITY: Good
READY: true
SUMMARY: completed deterministically by the local provider
`
