package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/entity"
)

// ReviewerLLM is the subset of the LLM manager the reviewer depends on.
type ReviewerLLM interface {
	SendPrompt(ctx context.Context, prompt string) (string, error)
}

// Reviewer judges a completed iteration's step results against the plan.
type Reviewer struct {
	llm    ReviewerLLM
	logger *zap.Logger
}

// NewReviewer builds a reviewer around an LLM caller.
func NewReviewer(llm ReviewerLLM, logger *zap.Logger) *Reviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reviewer{llm: llm, logger: logger}
}

const reviewPromptTemplate = `Goal: %s

Step results:
%s

Respond using exactly this line format, one field assignment per line:
QUALITY: <Excellent|Good|Fair|Poor>
READY: <true|false>
SUMMARY: <one-paragraph summary>
ISSUE: <Critical|Major|Minor|Info> | <Logic|Performance|Security|CodeStyle|BestPractices|Documentation|Testing|Dependencies> | <description> | <location> | <suggestion>
SUGGESTION: <description>

Include one ISSUE line per problem found (zero or more) and one SUGGESTION line per recommendation (zero or more).`

// Review produces a ReviewResult for the given plan and step results.
// A parse failure never crashes the loop: it downgrades quality to Fair
// with an Info issue describing the problem.
func (r *Reviewer) Review(ctx context.Context, plan entity.Plan, results []entity.StepResult) (entity.ReviewResult, error) {
	prompt := r.buildPrompt(plan, results)

	reply, err := r.llm.SendPrompt(ctx, prompt)
	if err != nil {
		return entity.ReviewResult{}, fmt.Errorf("reviewer: %w", err)
	}

	review, parseErr := parseReview(reply)
	if parseErr != nil {
		r.logger.Warn("reviewer: failed to parse review reply", zap.Error(parseErr))
		review = entity.ReviewResult{
			OverallQuality: entity.QualityFair,
			Issues: []entity.Issue{{
				Severity:    entity.SeverityInfo,
				Category:    entity.IssueBestPractices,
				Description: fmt.Sprintf("could not parse reviewer reply: %v", parseErr),
			}},
			ReadyToDeploy: false,
			Summary:       "review reply could not be parsed",
		}
	}

	review.ReadyToDeploy = isReadyToDeploy(review, plan, results)
	return review, nil
}

func (r *Reviewer) buildPrompt(plan entity.Plan, results []entity.StepResult) string {
	byID := make(map[string]entity.StepResult, len(results))
	for _, res := range results {
		byID[res.StepID] = res
	}

	var sb strings.Builder
	for _, step := range plan.Steps {
		res, ok := byID[step.ID]
		excerpt := ""
		success := false
		artifacts := ""
		if ok {
			success = res.Success
			excerpt = excerptOf(res.Output, 200)
			artifacts = strings.Join(res.ArtifactsCreated, ", ")
		}
		fmt.Fprintf(&sb, "- [%s] %s | success=%v | artifacts=[%s] | excerpt=%q\n",
			step.ID, step.Description, success, artifacts, excerpt)
	}
	return fmt.Sprintf(reviewPromptTemplate, plan.Goal, sb.String())
}

func excerptOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// parseReview parses the reviewer's line-based reply format.
func parseReview(reply string) (entity.ReviewResult, error) {
	var review entity.ReviewResult
	var sawQuality, sawReady bool

	for _, line := range strings.Split(reply, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := splitKeyValue(line)
		if !ok {
			continue
		}
		switch strings.ToUpper(key) {
		case "QUALITY":
			review.OverallQuality = entity.Quality(strings.TrimSpace(value))
			sawQuality = true
		case "READY":
			review.ReadyToDeploy = strings.EqualFold(strings.TrimSpace(value), "true")
			sawReady = true
		case "SUMMARY":
			review.Summary = strings.TrimSpace(value)
		case "ISSUE":
			if issue, ok := parseIssueLine(value); ok {
				review.Issues = append(review.Issues, issue)
			}
		case "SUGGESTION":
			review.Suggestions = append(review.Suggestions, entity.Suggestion{Description: strings.TrimSpace(value)})
		}
	}

	if !sawQuality || !sawReady {
		return review, fmt.Errorf("reply missing required QUALITY/READY fields")
	}
	switch review.OverallQuality {
	case entity.QualityExcellent, entity.QualityGood, entity.QualityFair, entity.QualityPoor:
	default:
		return review, fmt.Errorf("unrecognized quality value %q", review.OverallQuality)
	}
	return review, nil
}

func splitKeyValue(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return line[:idx], line[idx+1:], true
}

func parseIssueLine(raw string) (entity.Issue, bool) {
	fields := strings.Split(raw, "|")
	if len(fields) < 3 {
		return entity.Issue{}, false
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	issue := entity.Issue{
		Severity: entity.Severity(fields[0]),
		Category: entity.IssueCategory(fields[1]),
		Description: fields[2],
	}
	if len(fields) > 3 {
		issue.Location = fields[3]
	}
	if len(fields) > 4 {
		issue.Suggestion = fields[4]
	}
	return issue, true
}

// isReadyToDeploy applies §4.9's deploy-readiness rule regardless of what
// the model claimed for READY, so a confused reply can't mark broken work
// deployable.
func isReadyToDeploy(review entity.ReviewResult, plan entity.Plan, results []entity.StepResult) bool {
	if review.HasCritical() {
		return false
	}
	if review.MajorCount() > 1 {
		return false
	}
	switch review.OverallQuality {
	case entity.QualityExcellent, entity.QualityGood:
	default:
		return false
	}

	succeeded := make(map[string]bool, len(results))
	for _, res := range results {
		succeeded[res.StepID] = res.Success
	}
	acknowledged := make(map[string]bool)
	for _, iss := range review.Issues {
		if iss.Location != "" {
			acknowledged[iss.Location] = true
		}
	}
	for _, step := range plan.Steps {
		if !succeeded[step.ID] && !acknowledged[step.ID] {
			return false
		}
	}
	return true
}
