package claude

import (
	"reflect"
	"testing"
	"time"

	"github.com/you/chatvault/internal/adapter"
	"github.com/you/chatvault/internal/core"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.UnixMilli(1700000000000).UTC() }
}

func TestEndpointType(t *testing.T) {
	a := New()
	cases := []struct {
		url  string
		want adapter.EndpointType
	}{
		{"https://claude.ai/api/organizations/org1/chat_conversations", adapter.EndpointList},
		{"https://claude.ai/api/organizations/org1/chat_conversations/0a1b2c3d-0000-4000-8000-123456789abc?tree=True", adapter.EndpointDetail},
		{"https://claude.ai/api/organizations/org1/chat_conversations/0a1b2c3d-0000-4000-8000-123456789abc/completion", adapter.EndpointStream},
		{"https://claude.ai/api/organizations/org1/retry_completion", adapter.EndpointStream},
		{"https://claude.ai/api/account", adapter.EndpointUnknown},
	}
	for _, tt := range cases {
		if got := a.EndpointType(tt.url); got != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.url, tt.want, got)
		}
	}
}

func TestParseConversationList(t *testing.T) {
	a := NewWithClock(fixedClock())
	raw := []any{
		map[string]any{"uuid": "a1", "name": "Trip planning", "created_at": "2024-01-15T10:00:00Z"},
		map[string]any{"name": "no id, dropped"},
	}
	convs := a.ParseConversationList(raw)
	if len(convs) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(convs))
	}
	c := convs[0]
	if c.ID != "claude_a1" {
		t.Fatalf("expected id claude_a1, got %q", c.ID)
	}
	if c.Title != "Trip planning" {
		t.Fatalf("expected title, got %q", c.Title)
	}
	if c.CreatedAt != 1705312800000 {
		t.Fatalf("expected created 1705312800000, got %d", c.CreatedAt)
	}
	if c.UpdatedAt != c.CreatedAt {
		t.Fatalf("expected updated to fall back to created")
	}
	if c.DetailStatus != core.DetailNone {
		t.Fatalf("expected detail status none, got %s", c.DetailStatus)
	}
	if c.URL != "https://claude.ai/chat/a1" {
		t.Fatalf("unexpected url %q", c.URL)
	}
}

func TestParseConversationListEnvelopes(t *testing.T) {
	a := NewWithClock(fixedClock())
	item := map[string]any{"uuid": "b2", "name": "x"}
	for _, raw := range []any{
		[]any{item},
		map[string]any{"items": []any{item}},
		map[string]any{"data": map[string]any{"conversations": []any{item}}},
		`[{"uuid":"b2","name":"x"}]`,
	} {
		if got := a.ParseConversationList(raw); len(got) != 1 {
			t.Fatalf("expected 1 conversation for %#v, got %d", raw, len(got))
		}
	}
}

func TestParseConversationListMalformed(t *testing.T) {
	a := New()
	for _, raw := range []any{nil, "", "{broken", float64(7), map[string]any{"meta": "x"}} {
		if got := a.ParseConversationList(raw); len(got) != 0 {
			t.Fatalf("expected empty result for %#v, got %d", raw, len(got))
		}
	}
}

func TestParseConversationDetail(t *testing.T) {
	a := NewWithClock(fixedClock())
	raw := map[string]any{
		"uuid": "a1",
		"name": "Trip planning",
		"chat_messages": []any{
			map[string]any{
				"uuid":       "m2",
				"sender":     "assistant",
				"created_at": "2024-01-15T10:01:00Z",
				"content":    []any{map[string]any{"type": "text", "text": "Sure, where to?"}},
			},
			map[string]any{
				"uuid":       "m1",
				"sender":     "human",
				"created_at": "2024-01-15T10:00:00Z",
				"text":       "Help me plan a trip",
			},
			map[string]any{
				"uuid":       "m3",
				"sender":     "system",
				"created_at": "2024-01-15T10:02:00Z",
				"text":       "system turn, dropped",
			},
		},
	}
	res := a.ParseConversationDetail(raw)
	if res == nil {
		t.Fatalf("expected result")
	}
	if len(res.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(res.Messages))
	}
	if res.Messages[0].Role != core.RoleUser || res.Messages[0].Content != "Help me plan a trip" {
		t.Fatalf("expected user message first, got %+v", res.Messages[0])
	}
	for _, m := range res.Messages {
		if m.ConversationID != res.Conversation.ID {
			t.Fatalf("orphan message %+v", m)
		}
	}
	if res.Conversation.UpdatedAt != res.Messages[1].CreatedAt {
		t.Fatalf("expected updatedAt to equal last message timestamp")
	}
	if res.Conversation.Preview != "Help me plan a trip" {
		t.Fatalf("unexpected preview %q", res.Conversation.Preview)
	}
	if res.Conversation.DetailStatus != core.DetailFull {
		t.Fatalf("expected full detail status")
	}
}

func TestParseConversationDetailWrapper(t *testing.T) {
	a := NewWithClock(fixedClock())
	raw := map[string]any{
		"conversation": map[string]any{"uuid": "c9"},
		"messages": []any{
			map[string]any{"uuid": "m1", "role": "user", "text": "hi", "created_at": "2024-02-01T00:00:00Z"},
		},
	}
	res := a.ParseConversationDetail(raw)
	if res == nil {
		t.Fatalf("expected result")
	}
	if res.Conversation.ID != "claude_c9" {
		t.Fatalf("unexpected id %q", res.Conversation.ID)
	}
	if res.Conversation.Title != "hi" {
		t.Fatalf("expected title fallback from first user message, got %q", res.Conversation.Title)
	}
}

func TestParseConversationDetailZeroMessagesIsFailure(t *testing.T) {
	a := New()
	raw := map[string]any{"uuid": "a1", "chat_messages": []any{}}
	if res := a.ParseConversationDetail(raw); res != nil {
		t.Fatalf("expected nil for zero recovered messages")
	}
	if res := a.ParseConversationDetail(nil); res != nil {
		t.Fatalf("expected nil for nil input")
	}
	if res := a.ParseConversationDetail("{broken"); res != nil {
		t.Fatalf("expected nil for malformed input")
	}
}

func TestParseConversationDetailDuplicateIDs(t *testing.T) {
	a := NewWithClock(fixedClock())
	raw := map[string]any{
		"uuid": "a1",
		"messages": []any{
			map[string]any{"uuid": "m1", "sender": "human", "text": "first", "created_at": "2024-01-15T10:00:00Z"},
			map[string]any{"uuid": "m1", "sender": "human", "text": "different content", "created_at": "2024-01-15T10:00:30Z"},
			map[string]any{"uuid": "m1", "sender": "human", "text": "first", "created_at": "2024-01-15T10:01:00Z"},
		},
	}
	res := a.ParseConversationDetail(raw)
	if res == nil {
		t.Fatalf("expected result")
	}
	if len(res.Messages) != 2 {
		t.Fatalf("expected duplicate-content message dropped and differing one kept, got %d", len(res.Messages))
	}
	if res.Messages[0].ID == res.Messages[1].ID {
		t.Fatalf("expected disambiguated ids, both %q", res.Messages[0].ID)
	}
}

func TestParseStreamResponseDeltas(t *testing.T) {
	a := NewWithClock(fixedClock())
	url := "https://claude.ai/api/organizations/org1/chat_conversations/0a1b2c3d-0000-4000-8000-123456789abc/completion"
	body := "data: {\"delta\":{\"text\":\"Hel\"}}\n\ndata: {\"delta\":{\"text\":\"lo\"}}\n\ndata: [DONE]\n\n"
	res := a.ParseStreamResponse(body, url)
	if res == nil {
		t.Fatalf("expected result")
	}
	if res.Messages[0].Content != "Hello" {
		t.Fatalf("expected concatenated deltas, got %q", res.Messages[0].Content)
	}
	if res.Conversation.DetailStatus != core.DetailPartial {
		t.Fatalf("expected partial detail status")
	}
	if res.Conversation.ID != "claude_0a1b2c3d-0000-4000-8000-123456789abc" {
		t.Fatalf("unexpected id %q", res.Conversation.ID)
	}
}

func TestParseStreamResponseReplacementNeverTruncates(t *testing.T) {
	a := NewWithClock(fixedClock())
	url := "https://claude.ai/api/organizations/o/chat_conversations/0a1b2c3d-0000-4000-8000-123456789abc/completion"
	body := "data: {\"content\":\"a long accumulated answer\"}\n\ndata: {\"content\":\"short\"}\n\n"
	res := a.ParseStreamResponse(body, url)
	if res == nil {
		t.Fatalf("expected result")
	}
	if res.Messages[0].Content != "a long accumulated answer" {
		t.Fatalf("expected longest replacement kept, got %q", res.Messages[0].Content)
	}
}

func TestParseStreamResponseStructuredEventsUnsupported(t *testing.T) {
	a := New()
	events := map[string]any{"events": []any{map[string]any{"completion": "x"}}}
	if res := a.ParseStreamResponse(events, "https://claude.ai/api/organizations/o/chat_conversations/0a1b2c3d-0000-4000-8000-123456789abc/completion"); res != nil {
		t.Fatalf("expected nil for pre-structured events input")
	}
}

func TestDeterminism(t *testing.T) {
	a := NewWithClock(fixedClock())
	raw := map[string]any{
		"uuid": "a1",
		"messages": []any{
			map[string]any{"uuid": "m1", "sender": "human", "text": "hi"},
			map[string]any{"uuid": "m2", "sender": "assistant", "text": "hello"},
		},
	}
	first := a.ParseConversationDetail(raw)
	second := a.ParseConversationDetail(raw)
	if first == nil || second == nil {
		t.Fatalf("expected results")
	}
	if !reflect.DeepEqual(first.Conversation, second.Conversation) {
		t.Fatalf("conversation output not deterministic: %+v vs %+v", first.Conversation, second.Conversation)
	}
	for i := range first.Messages {
		if first.Messages[i] != second.Messages[i] {
			t.Fatalf("message %d not deterministic", i)
		}
	}
}

func TestNormalizeSummary(t *testing.T) {
	cases := []struct{ in, want string }{
		{"## Summary\nThe user planned a trip.", "The user planned a trip."},
		{"Summary: The user planned a trip.", "The user planned a trip."},
		{"Plain abstract.", "Plain abstract."},
		{"", ""},
	}
	for _, tt := range cases {
		if got := normalizeSummary(tt.in); got != tt.want {
			t.Fatalf("%q: expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
