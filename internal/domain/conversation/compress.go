package conversation

import (
	"context"
	"fmt"

	"github.com/cli-engineer/agent/internal/domain/entity"
)

// compress partitions cc's messages into system (kept verbatim), a recent
// window (trailing messages whose token sum stays within
// RecentWindowRatio*MaxTokens), and a compressible middle. If the middle is
// empty this is a no-op. Otherwise the middle is replaced by a single
// synthetic assistant message holding an LLM-generated digest.
//
// Callers must hold the per-context lock for cc.ID.
func (m *Manager) compress(ctx context.Context, cc *ConversationContext) error {
	if m.summarizer == nil {
		return nil
	}

	var system []Message
	var rest []Message
	for _, msg := range cc.Messages {
		if msg.Role == RoleSystem {
			system = append(system, msg)
		} else {
			rest = append(rest, msg)
		}
	}

	recentBudget := int(float64(m.cfg.MaxTokens) * m.cfg.RecentWindowRatio)
	recentStart := len(rest)
	used := 0
	for recentStart > 0 {
		candidate := rest[recentStart-1]
		if used+candidate.TokenEstimate > recentBudget {
			break
		}
		used += candidate.TokenEstimate
		recentStart--
	}
	middle := rest[:recentStart]
	recent := rest[recentStart:]

	if len(middle) == 0 {
		return nil
	}

	originalSize := cc.TotalTokens
	digest, err := m.summarizer.Summarize(ctx, middle)
	if err != nil {
		return fmt.Errorf("conversation: summarize: %w", err)
	}

	summaryMsg := Message{
		Role:          RoleAssistant,
		Content:       digest,
		TokenEstimate: m.tokenizer.Count(digest),
	}

	newMessages := make([]Message, 0, len(system)+1+len(recent))
	newMessages = append(newMessages, system...)
	newMessages = append(newMessages, summaryMsg)
	newMessages = append(newMessages, recent...)

	total := 0
	for _, msg := range newMessages {
		total += msg.TokenEstimate
	}

	cc.Messages = newMessages
	cc.TotalTokens = total

	if m.bus != nil {
		m.bus.Emit(entity.NewContextCompression(cc.ID, originalSize, total))
	}
	return nil
}
