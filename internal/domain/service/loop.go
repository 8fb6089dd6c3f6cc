package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/conversation"
	"github.com/cli-engineer/agent/internal/domain/entity"
	apperrors "github.com/cli-engineer/agent/pkg/errors"
)

// ArtifactLister is the subset of the artifact manager the loop needs to
// rebuild IterationContext.ExistingFiles between iterations, and to clean
// up on a successful run.
type ArtifactLister interface {
	ListArtifacts() []entity.Artifact
	Cleanup() error
}

// LoopEventSink is the subset of the event bus the loop needs.
type LoopEventSink interface {
	Emit(entity.Event)
}

// LoopResult is what Run returns once the state machine reaches a terminal
// state.
type LoopResult struct {
	State       LoopState
	Summary     string
	FailureCode apperrors.ErrorCode // "" on success, or the originating AppError's code
	Issues      []entity.Issue
	Snapshot    StateSnapshot
}

// Loop implements the agentic loop of §4.10: interpret once, then cycle
// planning/executing/reviewing until the reviewer says ready_to_deploy or
// the iteration budget is exhausted.
type Loop struct {
	planner   *Planner
	executor  *Executor
	reviewer  *Reviewer
	convo     *conversation.Manager
	artifacts ArtifactLister
	bus       LoopEventSink
	logger    *zap.Logger

	cleanupOnExit bool
}

// NewLoop wires every stage into a runnable loop. cleanupOnExit controls
// whether artifact manager Cleanup runs after a successful Done.
func NewLoop(planner *Planner, executor *Executor, reviewer *Reviewer, convo *conversation.Manager, artifacts ArtifactLister, bus LoopEventSink, cleanupOnExit bool, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		planner:       planner,
		executor:      executor,
		reviewer:      reviewer,
		convo:         convo,
		artifacts:     artifacts,
		bus:           bus,
		cleanupOnExit: cleanupOnExit,
		logger:        logger,
	}
}

// Run drives task through the full Start→Planning→Executing→Reviewing
// cycle until Done or Failed, honoring cancellation at every stage
// boundary. maxIterations bounds the number of Planning/Executing/Reviewing
// cycles attempted.
func (l *Loop) Run(ctx context.Context, task entity.Task, maxIterations int) LoopResult {
	ctx = WithTraceID(ctx, "")
	traceID := TraceIDFromContext(ctx)
	logger := l.logger.With(zap.String("trace_id", traceID))

	sm := NewStateMachine(maxIterations, logger)
	contextID := l.convo.CreateContext(map[string]string{"goal": task.Goal})
	_ = l.convo.AddMessage(ctx, contextID, conversation.RoleSystem, task.Goal)

	logger.Info("agentic loop started", zap.String("goal", task.Goal), zap.String("context_id", contextID))
	l.emit(entity.NewTaskStarted(task.Goal))

	if err := sm.Transition(StatePlanning); err != nil {
		return l.fail(sm, fmt.Errorf("internal error: %w", err), nil)
	}

	var iterCtx *entity.IterationContext

	for {
		if err := checkCancelled(ctx); err != nil {
			return l.fail(sm, err, nil)
		}

		plan, err := l.planner.Plan(ctx, task.Goal, iterCtx)
		if err != nil || len(plan.Steps) == 0 {
			if err == nil {
				err = apperrors.NewParseError("planner produced an empty plan", nil)
			}
			_ = sm.Transition(StateFailed)
			return l.fail(sm, err, nil)
		}

		if err := sm.Transition(StateExecuting); err != nil {
			return l.fail(sm, fmt.Errorf("internal error: %w", err), nil)
		}
		if err := checkCancelled(ctx); err != nil {
			return l.fail(sm, err, nil)
		}

		results, err := l.executor.Run(ctx, contextID, plan)
		if err != nil {
			_ = sm.Transition(StateFailed)
			return l.fail(sm, err, nil)
		}

		if err := sm.Transition(StateReviewing); err != nil {
			return l.fail(sm, fmt.Errorf("internal error: %w", err), nil)
		}
		if err := checkCancelled(ctx); err != nil {
			return l.fail(sm, err, nil)
		}

		review, err := l.reviewer.Review(ctx, plan, results)
		if err != nil {
			_ = sm.Transition(StateFailed)
			return l.fail(sm, err, nil)
		}

		if review.ReadyToDeploy {
			if err := sm.Transition(StateDone); err != nil {
				return l.fail(sm, fmt.Errorf("internal error: %w", err), nil)
			}
			l.emit(entity.NewTaskCompleted(review.Summary))
			if l.cleanupOnExit && l.artifacts != nil {
				if err := l.artifacts.Cleanup(); err != nil {
					l.logger.Warn("loop: artifact cleanup failed", zap.Error(err))
				}
			}
			return LoopResult{State: StateDone, Summary: review.Summary, Snapshot: sm.Snapshot()}
		}

		if sm.Iteration()+1 >= maxIterations {
			_ = sm.Transition(StateFailed)
			err := fmt.Errorf("iteration budget exhausted before the review judged the work ready to deploy: %s", review.Summary)
			return l.fail(sm, err, review.Issues)
		}

		iterCtx = l.nextIterationContext(sm.Iteration(), review)
		if err := sm.Transition(StatePlanning); err != nil {
			return l.fail(sm, fmt.Errorf("internal error: %w", err), nil)
		}
	}
}

func (l *Loop) nextIterationContext(iteration int, review entity.ReviewResult) *entity.IterationContext {
	existing := make(map[string]entity.ExistingFile)
	if l.artifacts != nil {
		for _, a := range l.artifacts.ListArtifacts() {
			existing[a.Name] = entity.ExistingFile{
				Size:  int64(len(a.Content)),
				MTime: a.UpdatedAt,
				Type:  a.Type,
			}
		}
	}

	var pending []entity.Issue
	for _, iss := range review.Issues {
		if iss.Severity == entity.SeverityCritical || iss.Severity == entity.SeverityMajor {
			pending = append(pending, iss)
		}
	}

	return &entity.IterationContext{
		Iteration:       iteration,
		ExistingFiles:   existing,
		LastReview:      &review,
		PendingIssues:   pending,
		ProgressSummary: review.Summary,
	}
}

func (l *Loop) fail(sm *StateMachine, err error, issues []entity.Issue) LoopResult {
	summary := err.Error()
	l.emit(entity.NewTaskFailed(summary, issues))
	return LoopResult{State: StateFailed, Summary: summary, FailureCode: apperrors.CodeOf(err), Issues: issues, Snapshot: sm.Snapshot()}
}

func (l *Loop) emit(e entity.Event) {
	if l.bus != nil {
		l.bus.Emit(e)
	}
}

func checkCancelled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return apperrors.NewCancelled("loop cancelled at stage boundary")
	default:
		return nil
	}
}
