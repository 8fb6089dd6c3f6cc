package service

import (
	"fmt"
	"strings"

	"github.com/cli-engineer/agent/internal/domain/entity"
)

// category names used only for the goal template; intentionally distinct
// from entity.StepCategory, which classifies plan steps rather than tasks.
const (
	taskCreation    = "creation"
	taskDebugging   = "debugging"
	taskTesting     = "testing"
	taskReview      = "review"
	taskRefactor    = "refactor"
	taskCompletion  = "completion"
)

// Interpret produces a Task from raw input using simple keyword heuristics.
// This stage is intentionally trivial and deterministic — the planner is
// where intelligence lives.
func Interpret(rawInput string) entity.Task {
	category := classify(rawInput)
	goal := fmt.Sprintf("%s: %s", capitalize(category), strings.TrimSpace(rawInput))
	return entity.Task{Description: rawInput, Goal: goal}
}

func classify(rawInput string) string {
	input := strings.ToLower(rawInput)
	switch {
	case containsAny(input, "create", "build", "generate"):
		return taskCreation
	case containsAny(input, "fix", "debug"):
		return taskDebugging
	case containsAny(input, "test"):
		return taskTesting
	case containsAny(input, "review"):
		return taskReview
	case containsAny(input, "refactor"):
		return taskRefactor
	default:
		return taskCompletion
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
