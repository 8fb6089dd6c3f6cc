package cli

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/cli-engineer/agent/internal/domain/entity"
	"github.com/cli-engineer/agent/internal/domain/service"
)

func sampleSummary() Summary {
	return Summary{
		Command: "code",
		Goal:    "add a retry policy",
		State:   service.StateDone,
		Message: "## Done\n\nAdded a retry policy to the provider wrapper.",
		Issues: []entity.Issue{
			{Severity: entity.SeverityMinor, Category: entity.IssueCodeStyle, Description: "unused import"},
		},
		Metrics: entity.Metrics{TotalAPICalls: 3, TotalTokens: 1200, TotalCost: 0.0123, ArtifactsCreated: 1},
	}
}

func TestRenderJSON_RoundTrips(t *testing.T) {
	s := sampleSummary()
	out, err := RenderJSON(s)
	if err != nil {
		t.Fatal(err)
	}
	var doc summaryDoc
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if doc.Command != s.Command || doc.Goal != s.Goal || doc.State != string(s.State) {
		t.Errorf("unexpected roundtrip: %+v", doc)
	}
	if len(doc.Issues) != 1 {
		t.Errorf("expected 1 issue, got %d", len(doc.Issues))
	}
}

func TestRenderPlain_ContainsStateGoalAndMetrics(t *testing.T) {
	out := RenderPlain(sampleSummary())
	if !strings.Contains(out, "DONE:") {
		t.Errorf("expected state line, got %q", out)
	}
	if !strings.Contains(out, "add a retry policy") {
		t.Errorf("expected goal in output, got %q", out)
	}
	if !strings.Contains(out, "[Minor/CodeStyle]") {
		t.Errorf("expected issue line, got %q", out)
	}
	if !strings.Contains(out, "tokens: 1200") {
		t.Errorf("expected metrics line, got %q", out)
	}
}

func TestRenderPanel_NeverEmpty(t *testing.T) {
	out := RenderPanel(sampleSummary(), 80)
	if out == "" {
		t.Fatal("expected non-empty panel output")
	}
	if !strings.Contains(out, "DONE") {
		t.Errorf("expected state in panel, got %q", out)
	}
}

func TestRenderPanel_FailedStateUsesFailIcon(t *testing.T) {
	s := sampleSummary()
	s.State = service.StateFailed
	out := RenderPanel(s, 80)
	if !strings.Contains(out, "FAILED") {
		t.Errorf("expected failed state in panel, got %q", out)
	}
}

func TestRenderPanel_ZeroWidthFallsBackToDefault(t *testing.T) {
	out := RenderPanel(sampleSummary(), 0)
	if out == "" {
		t.Fatal("expected non-empty panel output even with zero width")
	}
}
