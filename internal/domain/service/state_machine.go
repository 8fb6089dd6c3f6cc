package service

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// LoopState represents the discrete states of the agentic loop.
type LoopState string

const (
	StateStart     LoopState = "start"
	StatePlanning  LoopState = "planning"
	StateExecuting LoopState = "executing"
	StateReviewing LoopState = "reviewing"
	StateDone      LoopState = "done"
	StateFailed    LoopState = "failed"
)

// validTransitions defines the allowed state transitions. Key = from state,
// value = set of allowed target states.
var validTransitions = map[LoopState]map[LoopState]bool{
	StateStart: {
		StatePlanning: true,
		StateFailed:   true,
	},
	StatePlanning: {
		StateExecuting: true,
		StateFailed:    true,
	},
	StateExecuting: {
		StateReviewing: true,
		StateFailed:    true,
	},
	StateReviewing: {
		StateDone:     true,
		StateFailed:   true,
		StatePlanning: true, // next iteration
	},
	// Terminal states — no transitions out
	StateDone:   {},
	StateFailed: {},
}

// StateSnapshot captures the loop's runtime state at a point in time.
type StateSnapshot struct {
	State         LoopState     `json:"state"`
	Iteration     int           `json:"iteration"`
	MaxIterations int           `json:"max_iterations"`
	Elapsed       time.Duration `json:"elapsed"`
}

// StateMachine manages state transitions for one agentic loop run.
// Thread-safe — multiple goroutines can read state concurrently.
type StateMachine struct {
	mu            sync.RWMutex
	state         LoopState
	iteration     int
	maxIterations int
	startTime     time.Time
	logger        *zap.Logger

	listeners []func(from, to LoopState, snap StateSnapshot)
}

// NewStateMachine creates a state machine starting in Start.
func NewStateMachine(maxIterations int, logger *zap.Logger) *StateMachine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StateMachine{
		state:         StateStart,
		maxIterations: maxIterations,
		startTime:     time.Now(),
		logger:        logger,
	}
}

// State returns the current state.
func (sm *StateMachine) State() LoopState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.state
}

// Iteration returns the current iteration counter.
func (sm *StateMachine) Iteration() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.iteration
}

// Snapshot returns a copy of the current runtime state.
func (sm *StateMachine) Snapshot() StateSnapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.snapshotLocked()
}

func (sm *StateMachine) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:         sm.state,
		Iteration:     sm.iteration,
		MaxIterations: sm.maxIterations,
		Elapsed:       time.Since(sm.startTime),
	}
}

// Transition attempts to move to a new state. Returns an error if the
// transition is not allowed by validTransitions.
func (sm *StateMachine) Transition(to LoopState) error {
	sm.mu.Lock()
	from := sm.state

	allowed, ok := validTransitions[from]
	if !ok || !allowed[to] {
		sm.mu.Unlock()
		err := fmt.Errorf("invalid state transition: %s -> %s", from, to)
		sm.logger.Error("state machine violation", zap.Error(err))
		return err
	}

	sm.state = to
	if to == StatePlanning && from == StateReviewing {
		sm.iteration++
	}
	snap := sm.snapshotLocked()
	listeners := make([]func(from, to LoopState, snap StateSnapshot), len(sm.listeners))
	copy(listeners, sm.listeners)
	sm.mu.Unlock()

	sm.logger.Debug("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("iteration", snap.Iteration),
	)

	for _, fn := range listeners {
		fn(from, to, snap)
	}
	return nil
}

// OnTransition registers a listener invoked, outside the lock, on every
// successful state change.
func (sm *StateMachine) OnTransition(fn func(from, to LoopState, snap StateSnapshot)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// IsTerminal reports whether the state machine has reached Done or Failed.
func (sm *StateMachine) IsTerminal() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	switch sm.state {
	case StateDone, StateFailed:
		return true
	}
	return false
}
