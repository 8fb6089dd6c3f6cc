package service

import (
	"strings"
)

// IsContextOverflowError checks if an error indicates the context window was
// exceeded, by pattern-matching the vendor's own error text — every vendor
// reports this condition differently and none of them expose a typed error
// for it.
func IsContextOverflowError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())

	return strings.Contains(msg, "context length exceeded") ||
		strings.Contains(msg, "maximum context length") ||
		strings.Contains(msg, "request_too_large") ||
		strings.Contains(msg, "request exceeds the maximum size") ||
		strings.Contains(msg, "prompt is too long") ||
		strings.Contains(msg, "exceeds model context window") ||
		strings.Contains(msg, "context overflow") ||
		(strings.Contains(msg, "request size exceeds") && strings.Contains(msg, "context window")) ||
		(strings.Contains(msg, "413") && strings.Contains(msg, "too large"))
}
