// Package cli renders the agentic loop's terminal state into the three
// output shapes the CLI shell supports: a plain-text line, a lipgloss
// panel for interactive terminals, and a JSON document.
package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/cli-engineer/agent/internal/domain/entity"
	"github.com/cli-engineer/agent/internal/domain/service"
)

var (
	colorGreen  = lipgloss.Color("#00FF87")
	colorRed    = lipgloss.Color("#FF5F5F")
	colorYellow = lipgloss.Color("#FFD75F")
	colorGray   = lipgloss.Color("#6C6C6C")
	colorWhite  = lipgloss.Color("#FFFFFF")
	colorCyan   = lipgloss.Color("#00D7FF")
)

// Summary is the terminal state of a run, ready to render.
type Summary struct {
	Command string
	Goal    string
	State   service.LoopState
	Message string
	Issues  []entity.Issue
	Metrics entity.Metrics
}

// summaryDoc is the JSON wire shape for Summary.
type summaryDoc struct {
	Command string         `json:"command"`
	Goal    string         `json:"goal"`
	State   string         `json:"state"`
	Message string         `json:"message"`
	Issues  []entity.Issue `json:"issues,omitempty"`
	Metrics entity.Metrics `json:"metrics"`
}

// RenderJSON marshals s as the machine-readable summary document.
func RenderJSON(s Summary) (string, error) {
	doc := summaryDoc{
		Command: s.Command,
		Goal:    s.Goal,
		State:   string(s.State),
		Message: s.Message,
		Issues:  s.Issues,
		Metrics: s.Metrics,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cli: marshal summary: %w", err)
	}
	return string(data), nil
}

// RenderPlain produces a one-line-per-field stderr/stdout-safe summary, used
// when no dashboard is attached (--no-dashboard, or a non-TTY output).
func RenderPlain(s Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s\n", strings.ToUpper(string(s.State)), s.Message)
	fmt.Fprintf(&b, "goal: %s\n", s.Goal)
	for _, iss := range s.Issues {
		fmt.Fprintf(&b, "  [%s/%s] %s\n", iss.Severity, iss.Category, iss.Description)
	}
	fmt.Fprintf(&b, "api calls: %d  tokens: %d  cost: $%.4f  artifacts: %d\n",
		s.Metrics.TotalAPICalls, s.Metrics.TotalTokens, s.Metrics.TotalCost, s.Metrics.ArtifactsCreated)
	return b.String()
}

// renderMarkdown renders md through glamour at the given wrap width, falling
// back to the raw text if glamour can't build a renderer for it (e.g. in a
// terminal with no detectable color profile).
func renderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}

// RenderPanel produces the lipgloss-bordered summary panel shown on an
// attached TTY when --no-dashboard is absent. The result message is run
// through glamour so reviewer/executor markdown renders with style.
func RenderPanel(s Summary, width int) string {
	if width <= 0 {
		width = 72
	}

	stateColor := colorGreen
	icon := "✓"
	if s.State == service.StateFailed {
		stateColor = colorRed
		icon = "✗"
	}

	titleStyle := lipgloss.NewStyle().Foreground(stateColor).Bold(true)
	labelStyle := lipgloss.NewStyle().Foreground(colorGray)
	valueStyle := lipgloss.NewStyle().Foreground(colorWhite)
	issueStyle := lipgloss.NewStyle().Foreground(colorYellow)
	metricStyle := lipgloss.NewStyle().Foreground(colorCyan)

	var body strings.Builder
	fmt.Fprintf(&body, "%s %s\n\n", titleStyle.Render(icon), titleStyle.Render(strings.ToUpper(string(s.State))))
	fmt.Fprintf(&body, "%s %s\n", labelStyle.Render("goal   "), valueStyle.Render(s.Goal))
	fmt.Fprintf(&body, "%s\n", labelStyle.Render("result"))
	fmt.Fprintf(&body, "%s\n", renderMarkdown(s.Message, width-8))

	if len(s.Issues) > 0 {
		body.WriteString("\n")
		for _, iss := range s.Issues {
			fmt.Fprintf(&body, "%s\n", issueStyle.Render(fmt.Sprintf("  [%s] %s: %s", iss.Severity, iss.Category, iss.Description)))
		}
	}

	body.WriteString("\n")
	body.WriteString(metricStyle.Render(fmt.Sprintf(
		"api calls %d · tokens %d · cost $%.4f · artifacts %d",
		s.Metrics.TotalAPICalls, s.Metrics.TotalTokens, s.Metrics.TotalCost, s.Metrics.ArtifactsCreated,
	)))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(stateColor).
		Padding(0, 1).
		Width(width - 4)

	return boxStyle.Render(body.String())
}
