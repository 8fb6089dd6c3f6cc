package service

import (
	"context"
	"testing"

	"github.com/cli-engineer/agent/internal/domain/entity"
)

type fakeReviewerLLM struct {
	reply string
	err   error
}

func (f *fakeReviewerLLM) SendPrompt(_ context.Context, _ string) (string, error) {
	return f.reply, f.err
}

func samplePlan() entity.Plan {
	return entity.Plan{
		Goal: "build a CLI tool",
		Steps: []entity.Step{
			{ID: "step-1", Description: "Write main.go", Category: entity.CategoryCodeGeneration},
			{ID: "step-2", Description: "Write tests", Category: entity.CategoryTesting},
		},
	}
}

func TestReviewer_Review_ReadyToDeploy(t *testing.T) {
	llm := &fakeReviewerLLM{reply: `QUALITY: Good
READY: true
SUMMARY: all good
`}
	r := NewReviewer(llm, nil)
	results := []entity.StepResult{
		{StepID: "step-1", Success: true, ArtifactsCreated: []string{"main.go"}},
		{StepID: "step-2", Success: true, ArtifactsCreated: []string{"main_test.go"}},
	}

	review, err := r.Review(context.Background(), samplePlan(), results)
	if err != nil {
		t.Fatal(err)
	}
	if !review.ReadyToDeploy {
		t.Error("expected ready_to_deploy")
	}
	if review.OverallQuality != entity.QualityGood {
		t.Errorf("got %s", review.OverallQuality)
	}
}

func TestReviewer_Review_CriticalIssueBlocksDeploy(t *testing.T) {
	llm := &fakeReviewerLLM{reply: `QUALITY: Good
READY: true
SUMMARY: has a critical bug
ISSUE: Critical | Logic | off-by-one error | step-1 | fix the loop bound
`}
	r := NewReviewer(llm, nil)
	results := []entity.StepResult{
		{StepID: "step-1", Success: true},
		{StepID: "step-2", Success: true},
	}

	review, err := r.Review(context.Background(), samplePlan(), results)
	if err != nil {
		t.Fatal(err)
	}
	if review.ReadyToDeploy {
		t.Error("a Critical issue must block deploy readiness regardless of claimed READY")
	}
	if !review.HasCritical() {
		t.Error("expected HasCritical true")
	}
}

func TestReviewer_Review_TwoMajorIssuesBlockDeploy(t *testing.T) {
	llm := &fakeReviewerLLM{reply: `QUALITY: Good
READY: true
SUMMARY: two majors
ISSUE: Major | Logic | bug one | step-1 | fix
ISSUE: Major | Testing | missing coverage | step-2 | add tests
`}
	r := NewReviewer(llm, nil)
	results := []entity.StepResult{
		{StepID: "step-1", Success: true},
		{StepID: "step-2", Success: true},
	}

	review, err := r.Review(context.Background(), samplePlan(), results)
	if err != nil {
		t.Fatal(err)
	}
	if review.ReadyToDeploy {
		t.Error("more than one Major issue must block deploy readiness")
	}
	if review.MajorCount() != 2 {
		t.Errorf("expected MajorCount 2, got %d", review.MajorCount())
	}
}

func TestReviewer_Review_UnacknowledgedFailureBlocksDeploy(t *testing.T) {
	llm := &fakeReviewerLLM{reply: `QUALITY: Excellent
READY: true
SUMMARY: looks fine
`}
	r := NewReviewer(llm, nil)
	results := []entity.StepResult{
		{StepID: "step-1", Success: true},
		{StepID: "step-2", Success: false, Error: "timed out"},
	}

	review, err := r.Review(context.Background(), samplePlan(), results)
	if err != nil {
		t.Fatal(err)
	}
	if review.ReadyToDeploy {
		t.Error("an unacknowledged failed step must block deploy readiness")
	}
}

func TestReviewer_Review_AcknowledgedFailureAllowsDeploy(t *testing.T) {
	llm := &fakeReviewerLLM{reply: `QUALITY: Good
READY: true
SUMMARY: step 2 intentionally skipped
ISSUE: Info | BestPractices | tests intentionally omitted for this iteration | step-2 | add tests next iteration
`}
	r := NewReviewer(llm, nil)
	results := []entity.StepResult{
		{StepID: "step-1", Success: true},
		{StepID: "step-2", Success: false, Error: "skipped"},
	}

	review, err := r.Review(context.Background(), samplePlan(), results)
	if err != nil {
		t.Fatal(err)
	}
	if !review.ReadyToDeploy {
		t.Error("an acknowledged failure should not block deploy readiness")
	}
}

func TestReviewer_Review_ParseFailureDowngradesToFair(t *testing.T) {
	llm := &fakeReviewerLLM{reply: "this is not in the expected format at all"}
	r := NewReviewer(llm, nil)

	review, err := r.Review(context.Background(), samplePlan(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if review.OverallQuality != entity.QualityFair {
		t.Errorf("expected Fair on parse failure, got %s", review.OverallQuality)
	}
	if review.ReadyToDeploy {
		t.Error("a parse failure must never be ready to deploy")
	}
	if len(review.Issues) != 1 || review.Issues[0].Severity != entity.SeverityInfo {
		t.Error("expected a single Info issue describing the parse failure")
	}
}
