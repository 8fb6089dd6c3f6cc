package entity

// StepResult records the outcome of running one Step.
type StepResult struct {
	StepID           string
	Success          bool
	Output           string
	ArtifactsCreated []string
	TokensUsed       int
	Error            string
}
