package conversation

import (
	"context"
	"fmt"
	"strings"
)

// LLMCaller is the subset of the LLM manager the summarizer depends on.
type LLMCaller interface {
	SendPrompt(ctx context.Context, prompt string) (string, error)
}

// LLMSummarizer compresses a block of messages into a concise bulleted
// digest via an LLM call, preserving decisions, file names, and unresolved
// questions, per the compression algorithm's requirements.
type LLMSummarizer struct {
	caller         LLMCaller
	maxInputTokens int
	tokenizer      Tokenizer
}

// NewLLMSummarizer builds a summarizer. maxInputTokens bounds how much of
// the middle block is fed to the prompt; older messages are dropped with a
// trailing marker when the block would otherwise overflow.
func NewLLMSummarizer(caller LLMCaller, maxInputTokens int) *LLMSummarizer {
	if maxInputTokens <= 0 {
		maxInputTokens = 8000
	}
	return &LLMSummarizer{caller: caller, maxInputTokens: maxInputTokens, tokenizer: NewTokenizer()}
}

const summaryPromptTemplate = `Compress the following conversation history into a concise bulleted digest. Preserve:
1. The user's core request and goal
2. Decisions made and why
3. File names created or modified
4. Any unresolved questions or open issues

Keep it under 300 words, bullet-list format.

Conversation history:
%s

Digest:`

// Summarize produces the digest text for the given messages.
func (s *LLMSummarizer) Summarize(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	// Walk newest-first so the oldest messages are the ones left out.
	var lines []string
	total := 0
	omitted := false
	for i := len(messages) - 1; i >= 0; i-- {
		line := fmt.Sprintf("[%s]: %s\n", messages[i].Role, messages[i].Content)
		lineTokens := s.tokenizer.Count(line)
		if total+lineTokens > s.maxInputTokens {
			omitted = true
			break
		}
		lines = append([]string{line}, lines...)
		total += lineTokens
	}

	var sb strings.Builder
	if omitted {
		sb.WriteString("... (earlier messages omitted)\n")
	}
	for _, line := range lines {
		sb.WriteString(line)
	}

	prompt := fmt.Sprintf(summaryPromptTemplate, sb.String())
	digest, err := s.caller.SendPrompt(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate summary: %w", err)
	}
	return digest, nil
}
