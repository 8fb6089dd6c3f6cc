package anthropic

import (
	"testing"

	"github.com/cli-engineer/agent/internal/infrastructure/llm"
)

func TestNew_Defaults(t *testing.T) {
	p, err := New(llm.Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("Name: got %q", p.Name())
	}
	if p.ModelName() != defaultModel {
		t.Errorf("ModelName: got %q, want %q", p.ModelName(), defaultModel)
	}
	if p.ContextSize() != defaultContextSize {
		t.Errorf("ContextSize: got %d, want %d", p.ContextSize(), defaultContextSize)
	}
	if !p.HandlesOwnMetrics() {
		t.Error("expected the anthropic provider to report its own usage")
	}
}

func TestNew_OverridesModelAndContextSize(t *testing.T) {
	p, err := New(llm.Config{Model: "claude-3-5-haiku-latest", ContextSize: 100000}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.ModelName() != "claude-3-5-haiku-latest" {
		t.Errorf("ModelName: got %q", p.ModelName())
	}
	if p.ContextSize() != 100000 {
		t.Errorf("ContextSize: got %d", p.ContextSize())
	}
}

func TestFactoryRegistered(t *testing.T) {
	p, err := llm.CreateProvider(llm.Config{Type: "anthropic"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "anthropic" {
		t.Errorf("expected the anthropic factory to be registered, got provider %q", p.Name())
	}
}
