package entity

import "time"

// ExistingFile describes a file already on disk, discovered by scanning the
// artifact directory between iterations.
type ExistingFile struct {
	Size  int64
	MTime time.Time
	Type  ArtifactType
}

// IterationContext is the memory carried between loop iterations: existing
// files, pending issues from the last review, and a running progress
// summary. The loop exclusively owns it; stages never mutate it in place —
// the loop rebuilds it at each boundary from the prior review plus a fresh
// filesystem scan.
type IterationContext struct {
	Iteration       int
	ExistingFiles   map[string]ExistingFile
	LastReview      *ReviewResult
	PendingIssues   []Issue
	ProgressSummary string
}
