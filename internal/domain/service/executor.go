package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/conversation"
	"github.com/cli-engineer/agent/internal/domain/entity"
)

// ExecutorLLM is the subset of the LLM manager the executor depends on.
type ExecutorLLM interface {
	SendPrompt(ctx context.Context, prompt string) (string, error)
}

// ArtifactCreator is the subset of the artifact manager the executor
// depends on.
type ArtifactCreator interface {
	CreateArtifact(name string, t entity.ArtifactType, content string, metadata map[string]string) (entity.Artifact, error)
}

// EventSink is the subset of the event bus the executor needs.
type EventSink interface {
	Emit(entity.Event)
}

// ExtractedArtifact is one candidate artifact parsed out of a model reply,
// before it has been written to disk.
type ExtractedArtifact struct {
	Name    string
	Type    entity.ArtifactType
	Content string
}

// ArtifactExtractor scans a model reply for artifact blocks. Kept as a
// narrow interface so the executor never imports the infrastructure-level
// parser directly; the composition root wires the concrete implementation.
type ArtifactExtractor interface {
	Extract(reply string) []ExtractedArtifact
}

// responseHeadroom is reserved out of the provider's context window for the
// model's own reply, per §4.8.
const responseHeadroom = 1024

// Executor runs a Plan's steps sequentially against the LLM, extracting and
// persisting any artifacts the model emits.
type Executor struct {
	llm        ExecutorLLM
	artifacts  ArtifactCreator
	extractor  ArtifactExtractor
	convo      *conversation.Manager
	bus        EventSink
	contextCap int
	logger     *zap.Logger
}

// NewExecutor builds an executor. contextCap is the provider's context_size,
// used to budget the conversation window fetched for each step.
func NewExecutor(llm ExecutorLLM, artifacts ArtifactCreator, extractor ArtifactExtractor, convo *conversation.Manager, bus EventSink, contextCap int, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{llm: llm, artifacts: artifacts, extractor: extractor, convo: convo, bus: bus, contextCap: contextCap, logger: logger}
}

// categoryInstruction returns the category-specific prompt fragment, per
// §4.8. It is the exact literal phrase the local provider pattern-matches
// on, so any other provider must see the identical wording.
func categoryInstruction(c entity.StepCategory) string {
	switch c {
	case entity.CategoryAnalysis:
		return "Analyze the step and report your findings; analyze and report, produce no files."
	case entity.CategoryCodeGeneration, entity.CategoryFileOperation:
		return "Implement the step; emit files only via `<artifact>` blocks."
	case entity.CategoryCodeModification:
		return "Modify the step's target file; emit the full new content for modified files via `<artifact>` blocks."
	case entity.CategoryTesting:
		return "Write the step's tests; emit test files only via `<artifact>` blocks."
	case entity.CategoryDocumentation:
		return "Document the step; emit markdown files under `docs/` via `<artifact>` blocks."
	case entity.CategoryResearch:
		return "Research the step and report findings, no files."
	case entity.CategoryReview:
		return "Review the step and report, no files."
	default:
		return "Perform the step and report, no files."
	}
}

// Run executes every step of plan in order against contextID's conversation,
// emitting TaskProgress between steps. It never halts early on a failed
// step — the reviewer decides whether failures are fatal.
func (e *Executor) Run(ctx context.Context, contextID string, plan entity.Plan) ([]entity.StepResult, error) {
	results := make([]entity.StepResult, 0, len(plan.Steps))

	for i, step := range plan.Steps {
		result := e.runStep(ctx, contextID, step)
		results = append(results, result)

		e.emit(entity.NewTaskProgress(float64(i+1) / float64(len(plan.Steps))))
	}

	return results, nil
}

func (e *Executor) runStep(ctx context.Context, contextID string, step entity.Step) entity.StepResult {
	prompt := fmt.Sprintf("Step: %s\n\n%s", step.Description, categoryInstruction(step.Category))

	if err := e.convo.AddMessage(ctx, contextID, conversation.RoleUser, prompt); err != nil {
		return entity.StepResult{StepID: step.ID, Success: false, Error: fmt.Sprintf("executor: add step prompt: %v", err)}
	}

	budget := e.contextCap - responseHeadroom
	if budget <= 0 {
		budget = e.contextCap
	}
	messages := e.convo.GetMessages(contextID, &budget)
	flattened := flattenMessages(messages)

	reply, err := e.llm.SendPrompt(ctx, flattened)
	if err != nil {
		return entity.StepResult{StepID: step.ID, Success: false, Error: fmt.Sprintf("executor: %v", err)}
	}

	if err := e.convo.AddMessage(ctx, contextID, conversation.RoleAssistant, reply); err != nil {
		e.logger.Warn("executor: failed to append assistant reply to context", zap.String("step", step.ID), zap.Error(err))
	}

	prospects := e.extractor.Extract(reply)
	var createdPaths []string
	for _, p := range prospects {
		artifact, err := e.artifacts.CreateArtifact(p.Name, p.Type, p.Content, nil)
		if err != nil {
			e.logger.Warn("executor: failed to persist artifact", zap.String("name", p.Name), zap.Error(err))
			continue
		}
		createdPaths = append(createdPaths, artifact.Path)
	}

	success := isStepSuccessful(step.Category, reply, createdPaths)
	result := entity.StepResult{
		StepID:           step.ID,
		Success:          success,
		Output:           reply,
		ArtifactsCreated: createdPaths,
		TokensUsed:       len(prompt)/4 + len(reply)/4,
	}
	if !success {
		result.Error = "no artifacts produced and no explicit no-changes-needed acknowledgement"
	}
	return result
}

// isStepSuccessful implements §4.8 rule 5: non-file-producing categories
// succeed on any non-empty reply; file-producing categories succeed when at
// least one artifact was created, or the reply explicitly says no changes
// were needed.
func isStepSuccessful(category entity.StepCategory, reply string, created []string) bool {
	if strings.TrimSpace(reply) == "" {
		return false
	}
	if !category.ProducesFiles() {
		return true
	}
	if len(created) > 0 {
		return true
	}
	return strings.Contains(strings.ToLower(reply), "no changes needed")
}

func (e *Executor) emit(ev entity.Event) {
	if e.bus != nil {
		e.bus.Emit(ev)
	}
}

func flattenMessages(messages []conversation.Message) string {
	var b strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&b, "[%s] %s\n\n", m.Role, m.Content)
	}
	return b.String()
}
