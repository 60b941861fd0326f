// Package adapter defines the capability contract every platform adapter
// implements, the URL routing registry, and the finalization pass shared
// by all detail/stream parses.
package adapter

import (
	"strings"

	"github.com/you/chatvault/internal/core"
)

// EndpointType classifies a captured URL.
type EndpointType string

const (
	EndpointList    EndpointType = "list"
	EndpointDetail  EndpointType = "detail"
	EndpointStream  EndpointType = "stream"
	EndpointUnknown EndpointType = "unknown"
)

// Result is the output of a detail or stream parse: one conversation and
// its recovered messages, every message stamped with the conversation's
// canonical id.
type Result struct {
	Conversation core.Conversation
	Messages     []core.Message
}

// Adapter is the per-platform capability set. Implementations are pure
// and stateless: no I/O, no persistence, no shared mutable state, and no
// panics regardless of input shape. Failed parses surface as empty slices
// or nil results, never errors.
type Adapter interface {
	Platform() core.Platform

	// ShouldCapture is a cheap host test used by the capture layer to
	// decide whether to hand this adapter a payload at all.
	ShouldCapture(url string) bool

	// EndpointType pattern-matches the URL path.
	EndpointType(url string) EndpointType

	// ParseConversationList extracts conversation metadata from a list
	// payload. Unparseable input yields an empty slice.
	ParseConversationList(raw any) []core.Conversation

	// ParseConversationDetail extracts a full conversation. A parse that
	// recovers zero messages is a failure and yields nil.
	ParseConversationDetail(raw any) *Result

	// ParseStreamResponse synthesizes a single-exchange conversation from
	// an in-flight streaming response body. It wants the raw text body;
	// pre-structured event objects cannot restore SSE framing and yield
	// nil.
	ParseStreamResponse(raw any, url string) *Result

	ExtractConversationID(url string) string
	ConversationURL(originalID string) string
}

// ClassifyRole maps a platform-native author field to a canonical role.
// Unrecognized values (including "system") report false and the enclosing
// message is dropped by the caller.
func ClassifyRole(raw string) (core.Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "human", "user":
		return core.RoleUser, true
	case "assistant", "model":
		return core.RoleAssistant, true
	}
	return "", false
}
