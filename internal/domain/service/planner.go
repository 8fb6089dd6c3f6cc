package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/entity"
)

// PlannerLLM is the subset of the LLM manager the planner depends on.
type PlannerLLM interface {
	SendPrompt(ctx context.Context, prompt string) (string, error)
}

// Planner turns a Task plus prior iteration context into a validated Plan.
type Planner struct {
	llm    PlannerLLM
	logger *zap.Logger
}

// NewPlanner builds a planner around an LLM caller.
func NewPlanner(llm PlannerLLM, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{llm: llm, logger: logger}
}

const planPromptTemplate = `Goal: %s

%s
%s
Respond with one step per line. Each line must use this format:
<description> | inputs: <comma-separated, optional> | outputs: <comma-separated, optional> | success: <criteria, optional>

Do not number the lines and do not add commentary before or after the list.`

const planStrictSuffix = `

Your previous reply produced no usable steps. Reply again with ONLY the step lines, one per line, in the exact format above. No headers, no prose.`

// Plan produces a validated Plan for goal, given the prior iteration's
// context (existing files and pending issues), if any.
func (p *Planner) Plan(ctx context.Context, goal string, iter *entity.IterationContext) (entity.Plan, error) {
	prompt := p.buildPrompt(goal, iter, false)

	reply, err := p.llm.SendPrompt(ctx, prompt)
	if err != nil {
		return entity.Plan{}, fmt.Errorf("planner: %w", err)
	}

	steps := parseSteps(reply, iter)
	if len(steps) == 0 {
		p.logger.Warn("planner: zero steps parsed, reprompting with stricter instructions")
		reply, err = p.llm.SendPrompt(ctx, prompt+planStrictSuffix)
		if err != nil {
			return entity.Plan{}, fmt.Errorf("planner: reprompt: %w", err)
		}
		steps = parseSteps(reply, iter)
	}
	if len(steps) == 0 {
		return entity.Plan{}, fmt.Errorf("planner: unable to produce a plan with any steps for goal %q", goal)
	}

	return entity.Plan{
		Goal:         goal,
		Steps:        steps,
		Dependencies: map[string][]string{},
		Complexity:   entity.ComplexityFromStepCount(len(steps)),
	}, nil
}

func (p *Planner) buildPrompt(goal string, iter *entity.IterationContext, strict bool) string {
	var existing strings.Builder
	var issues strings.Builder

	if iter != nil {
		if len(iter.ExistingFiles) > 0 {
			existing.WriteString("Files already on disk:\n")
			for name, f := range iter.ExistingFiles {
				fmt.Fprintf(&existing, "- %s (%d bytes, %s)\n", name, f.Size, f.Type.String())
			}
		}
		if len(iter.PendingIssues) > 0 {
			issues.WriteString("Unresolved issues from the last review:\n")
			for _, iss := range iter.PendingIssues {
				fmt.Fprintf(&issues, "- [%s/%s] %s\n", iss.Severity, iss.Category, iss.Description)
			}
		}
	}

	prompt := fmt.Sprintf(planPromptTemplate, goal, existing.String(), issues.String())
	if strict {
		prompt += planStrictSuffix
	}
	return prompt
}

// parseSteps parses the planner's reply into Steps, one per non-empty line.
func parseSteps(reply string, iter *entity.IterationContext) []entity.Step {
	lines := strings.Split(reply, "\n")
	var steps []entity.Step
	idx := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx++
		steps = append(steps, parseStepLine(idx, line, iter))
	}
	return steps
}

func parseStepLine(idx int, line string, iter *entity.IterationContext) entity.Step {
	parts := strings.Split(line, "|")
	description := strings.TrimSpace(parts[0])

	var inputs, outputs []string
	var successCriteria string
	for _, field := range parts[1:] {
		field = strings.TrimSpace(field)
		switch {
		case strings.HasPrefix(strings.ToLower(field), "inputs:"):
			inputs = splitCSV(field[len("inputs:"):])
		case strings.HasPrefix(strings.ToLower(field), "outputs:"):
			outputs = splitCSV(field[len("outputs:"):])
		case strings.HasPrefix(strings.ToLower(field), "success:"):
			successCriteria = strings.TrimSpace(field[len("success:"):])
		}
	}

	category := categorize(description)
	if iter != nil && targetsExistingFile(description, outputs, iter.ExistingFiles) {
		category = entity.CategoryCodeModification
	}

	return entity.Step{
		ID:              fmt.Sprintf("step-%d", idx),
		Description:     description,
		Category:        category,
		Inputs:          inputs,
		ExpectedOutputs: outputs,
		SuccessCriteria: successCriteria,
		EstimatedTokens: len(description) / 4,
	}
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// categorize heuristically assigns a StepCategory by keyword, per §4.7.
func categorize(description string) entity.StepCategory {
	d := strings.ToLower(description)
	switch {
	case strings.Contains(d, "test"):
		return entity.CategoryTesting
	case strings.Contains(d, "document"):
		return entity.CategoryDocumentation
	case strings.Contains(d, "analyz"):
		return entity.CategoryAnalysis
	case strings.Contains(d, "research"):
		return entity.CategoryResearch
	case strings.Contains(d, "review"):
		return entity.CategoryReview
	case strings.Contains(d, "modify"), strings.Contains(d, "update"), strings.Contains(d, "change"):
		return entity.CategoryCodeModification
	case strings.Contains(d, "write"), strings.Contains(d, "create"), strings.Contains(d, "generate"), strings.Contains(d, "implement"):
		return entity.CategoryCodeGeneration
	default:
		return entity.CategoryFileOperation
	}
}

// targetsExistingFile reports whether the step's description or declared
// outputs reference a file already present in existing.
func targetsExistingFile(description string, outputs []string, existing map[string]entity.ExistingFile) bool {
	for name := range existing {
		if strings.Contains(description, name) {
			return true
		}
		for _, out := range outputs {
			if out == name {
				return true
			}
		}
	}
	return false
}
