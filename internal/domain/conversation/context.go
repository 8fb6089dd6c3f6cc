package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cli-engineer/agent/internal/domain/entity"
	apperrors "github.com/cli-engineer/agent/pkg/errors"
)

// ConversationContext is an ordered, append-mostly message history.
// Invariants: system messages are never removed by compression;
// TotalTokens always equals the sum of per-message TokenEstimate.
type ConversationContext struct {
	ID         string
	Messages   []Message
	TotalTokens int
	Metadata   map[string]string
}

// EventSink is the subset of the event bus the context manager needs.
type EventSink interface {
	Emit(entity.Event)
}

// Summarizer produces a digest of a block of messages, via an LLM call.
type Summarizer interface {
	Summarize(ctx context.Context, messages []Message) (string, error)
}

// Config controls compression behavior.
type Config struct {
	MaxTokens             int
	CompressionThreshold  float64 // (0,1]
	RecentWindowRatio     float64 // fraction of MaxTokens the recent window may occupy; default 0.25
}

// Manager holds every live ConversationContext and serializes access per id.
type Manager struct {
	cfg        Config
	tokenizer  Tokenizer
	summarizer Summarizer
	bus        EventSink

	mu       sync.Mutex // guards the two maps below
	contexts map[string]*ConversationContext
	locks    map[string]*sync.Mutex
}

// NewManager builds a context manager. summarizer and bus may be nil (no
// compression / no events, respectively) for use in isolated tests.
func NewManager(cfg Config, summarizer Summarizer, bus EventSink) *Manager {
	if cfg.RecentWindowRatio <= 0 {
		cfg.RecentWindowRatio = 0.25
	}
	return &Manager{
		cfg:        cfg,
		tokenizer:  NewTokenizer(),
		summarizer: summarizer,
		bus:        bus,
		contexts:   make(map[string]*ConversationContext),
		locks:      make(map[string]*sync.Mutex),
	}
}

// CreateContext allocates a fresh context and returns its id. Emits no event.
func (m *Manager) CreateContext(metadata map[string]string) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.contexts[id] = &ConversationContext{ID: id, Metadata: metadata}
	m.locks[id] = &sync.Mutex{}
	m.mu.Unlock()
	return id
}

func (m *Manager) lockFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *Manager) get(id string) (*ConversationContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[id]
	return c, ok
}

// AddMessage appends a message, recomputes TotalTokens, and triggers
// compression before returning if usage crosses the configured threshold.
// Reentrant-safe per context: a second call for the same id blocks until
// any in-flight compression for that id finishes.
func (m *Manager) AddMessage(ctx context.Context, id string, role Role, content string) error {
	lock := m.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	cc, ok := m.get(id)
	if !ok {
		return fmt.Errorf("conversation: unknown context %q", id)
	}

	msg := Message{Role: role, Content: content, TokenEstimate: m.tokenizer.Count(content)}
	if m.cfg.MaxTokens > 0 && msg.TokenEstimate > m.cfg.MaxTokens {
		return apperrors.NewContextOverflow(fmt.Sprintf("message of ~%d tokens exceeds max_tokens=%d", msg.TokenEstimate, m.cfg.MaxTokens))
	}

	cc.Messages = append(cc.Messages, msg)
	cc.TotalTokens += msg.TokenEstimate

	if m.cfg.MaxTokens > 0 && role != RoleSystem {
		ratio := float64(cc.TotalTokens) / float64(m.cfg.MaxTokens)
		if ratio >= m.cfg.CompressionThreshold {
			if err := m.compress(ctx, cc); err != nil {
				// Compression failure is not fatal to the append; the
				// caller already has the message recorded. The context
				// stays over the threshold until a later compression
				// succeeds; only a single message larger than MaxTokens
				// is rejected as an overflow.
			}
		}
	}

	if m.bus != nil {
		m.bus.Emit(entity.NewContextUsage(id, cc.TotalTokens, m.cfg.MaxTokens))
	}
	return nil
}

// GetMessages returns messages in order. If budget is non-nil, returns the
// longest suffix of non-system messages whose token sum fits within
// budget-Σ(system tokens), prepended by all system messages.
func (m *Manager) GetMessages(id string, budget *int) []Message {
	cc, ok := m.get(id)
	if !ok {
		return nil
	}
	if budget == nil {
		out := make([]Message, len(cc.Messages))
		copy(out, cc.Messages)
		return out
	}

	var system []Message
	var rest []Message
	systemTokens := 0
	for _, msg := range cc.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
			systemTokens += msg.TokenEstimate
		} else {
			rest = append(rest, msg)
		}
	}

	remaining := *budget - systemTokens
	var suffix []Message
	used := 0
	for i := len(rest) - 1; i >= 0; i-- {
		if used+rest[i].TokenEstimate > remaining {
			break
		}
		used += rest[i].TokenEstimate
		suffix = append([]Message{rest[i]}, suffix...)
	}

	return append(system, suffix...)
}

// Snapshot returns a copy of the ConversationContext for inspection (tests,
// the CLI summary panel). Never exposes the live struct.
func (m *Manager) Snapshot(id string) (ConversationContext, bool) {
	cc, ok := m.get(id)
	if !ok {
		return ConversationContext{}, false
	}
	out := *cc
	out.Messages = append([]Message(nil), cc.Messages...)
	return out, true
}
