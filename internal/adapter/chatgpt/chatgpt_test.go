package chatgpt

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/you/chatvault/internal/adapter"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.UnixMilli(1700000000000).UTC() }
}

const convUUID = "11111111-2222-4333-8444-555555555555"

func TestEndpointType(t *testing.T) {
	a := New()
	cases := []struct {
		url  string
		want adapter.EndpointType
	}{
		{"https://chatgpt.com/backend-api/conversations?offset=0&limit=28", adapter.EndpointList},
		{"https://chatgpt.com/backend-api/conversation/" + convUUID, adapter.EndpointDetail},
		{"https://chatgpt.com/backend-api/conversation", adapter.EndpointStream},
		{"https://chatgpt.com/backend-api/f/conversation", adapter.EndpointStream},
		{"https://chat.openai.com/backend-api/conversations", adapter.EndpointList},
		{"https://chatgpt.com/backend-api/me", adapter.EndpointUnknown},
	}
	for _, tt := range cases {
		if got := a.EndpointType(tt.url); got != tt.want {
			t.Fatalf("%s: expected %s, got %s", tt.url, tt.want, got)
		}
	}
}

func TestParseConversationListSecondsAndISO(t *testing.T) {
	a := NewWithClock(fixedClock())
	raw := map[string]any{
		"items": []any{
			map[string]any{"id": "c1", "title": "Go questions", "create_time": float64(1714376442), "update_time": float64(1714376500.5)},
			map[string]any{"id": "c2", "title": "Later", "create_time": "2024-05-02T10:00:00Z"},
		},
	}
	convs := a.ParseConversationList(raw)
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].ID != "chatgpt_c1" {
		t.Fatalf("unexpected id %q", convs[0].ID)
	}
	if convs[0].CreatedAt != 1714376442000 {
		t.Fatalf("expected seconds scaled to millis, got %d", convs[0].CreatedAt)
	}
	if convs[0].UpdatedAt != 1714376500500 {
		t.Fatalf("expected fractional seconds preserved, got %d", convs[0].UpdatedAt)
	}
	if convs[1].CreatedAt != 1714644000000 {
		t.Fatalf("expected ISO timestamp parsed, got %d", convs[1].CreatedAt)
	}
}

func TestParseConversationListMalformed(t *testing.T) {
	a := New()
	for _, raw := range []any{nil, "", "not json", float64(1), []any{"scalar"}} {
		if got := a.ParseConversationList(raw); len(got) != 0 {
			t.Fatalf("expected empty for %#v, got %d", raw, len(got))
		}
	}
}

func mappingNode(id, role, text string, createTime float64) map[string]any {
	return map[string]any{
		"id": id,
		"message": map[string]any{
			"id":          id,
			"author":      map[string]any{"role": role},
			"create_time": createTime,
			"content": map[string]any{
				"content_type": "text",
				"parts":        []any{text},
			},
		},
	}
}

func TestParseConversationDetailSkipsSystem(t *testing.T) {
	a := NewWithClock(fixedClock())
	raw := map[string]any{
		"conversation_id": convUUID,
		"title":           "Go questions",
		"create_time":     float64(1714376000),
		"mapping": map[string]any{
			"n1": mappingNode("m-user", "user", "What is a goroutine?", 1714376442),
			"n2": mappingNode("m-system", "system", "You are a helpful assistant", 1714376400),
		},
	}
	res := a.ParseConversationDetail(raw)
	if res == nil {
		t.Fatalf("expected result")
	}
	if len(res.Messages) != 1 {
		t.Fatalf("expected system node excluded, got %d messages", len(res.Messages))
	}
	if res.Messages[0].ID != "m-user" {
		t.Fatalf("unexpected message id %q", res.Messages[0].ID)
	}
	if res.Conversation.ID != "chatgpt_"+convUUID {
		t.Fatalf("unexpected conversation id %q", res.Conversation.ID)
	}
}

func TestParseConversationDetailOrdersByTimestampNotTree(t *testing.T) {
	a := NewWithClock(fixedClock())
	raw := map[string]any{
		"id": convUUID,
		"mapping": map[string]any{
			// Node keys deliberately sort against chronological order.
			"a-late":  mappingNode("m2", "assistant", "Answer", 1714376500),
			"z-early": mappingNode("m1", "user", "Question", 1714376442),
		},
	}
	res := a.ParseConversationDetail(raw)
	if res == nil {
		t.Fatalf("expected result")
	}
	if res.Messages[0].ID != "m1" || res.Messages[1].ID != "m2" {
		t.Fatalf("expected timestamp ordering, got %q then %q", res.Messages[0].ID, res.Messages[1].ID)
	}
	if res.Conversation.UpdatedAt != res.Messages[1].CreatedAt {
		t.Fatalf("expected updatedAt from last message")
	}
	if res.Conversation.Title != "Question" {
		t.Fatalf("expected title fallback, got %q", res.Conversation.Title)
	}
}

func TestParseConversationDetailDeterministic(t *testing.T) {
	a := NewWithClock(fixedClock())
	// Nodes without create_time take synthesized timestamps, so ordering
	// depends on mapping traversal; repeated parses must agree byte for
	// byte.
	raw := map[string]any{
		"conversation_id": convUUID,
		"mapping": map[string]any{
			"n1": mappingNode("m-q1", "user", "First question", 0),
			"n2": mappingNode("m-a1", "assistant", "First answer", 0),
			"n3": mappingNode("m-q2", "user", "Second question", 0),
		},
	}
	first := a.ParseConversationDetail(raw)
	if first == nil {
		t.Fatalf("expected result")
	}
	want, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 100; i++ {
		got, err := json.Marshal(a.ParseConversationDetail(raw))
		if err != nil {
			t.Fatalf("marshal run %d: %v", i, err)
		}
		if !bytes.Equal(want, got) {
			t.Fatalf("run %d diverged:\n%s\nvs\n%s", i, want, got)
		}
	}
}

func TestParseConversationDetailFailures(t *testing.T) {
	a := New()
	cases := []any{
		nil,
		"",
		"{broken",
		map[string]any{"title": "no id"},
		map[string]any{"id": convUUID}, // no mapping
		map[string]any{"id": convUUID, "mapping": map[string]any{
			"n1": mappingNode("m1", "system", "only system", 1714376442),
		}},
	}
	for i, raw := range cases {
		if res := a.ParseConversationDetail(raw); res != nil {
			t.Fatalf("case %d: expected nil", i)
		}
	}
}

func TestParseStreamResponseDedupAndDeferredID(t *testing.T) {
	a := NewWithClock(fixedClock())
	body := `data: {"message":{"id":"m9","author":{"role":"assistant"},"create_time":1714376442,"content":{"parts":["Hel"]}}}` + "\n\n" +
		`data: {"message":{"id":"m9","author":{"role":"assistant"},"create_time":1714376443,"content":{"parts":["Hello there"]}},"conversation_id":"` + convUUID + `"}` + "\n\n" +
		"data: [DONE]\n\n"
	res := a.ParseStreamResponse(body, "https://chatgpt.com/backend-api/conversation")
	if res == nil {
		t.Fatalf("expected result")
	}
	if res.Conversation.OriginalID != convUUID {
		t.Fatalf("expected conversation id from trailing frame, got %q", res.Conversation.OriginalID)
	}
	if len(res.Messages) != 1 {
		t.Fatalf("expected frames deduplicated by message id, got %d", len(res.Messages))
	}
	if res.Messages[0].Content != "Hello there" {
		t.Fatalf("expected longest content kept, got %q", res.Messages[0].Content)
	}
	if res.Messages[0].CreatedAt != 1714376442000 {
		t.Fatalf("expected earliest timestamp kept, got %d", res.Messages[0].CreatedAt)
	}
}

func TestParseStreamResponseNoConversationID(t *testing.T) {
	a := New()
	body := `data: {"message":{"id":"m1","author":{"role":"assistant"},"content":{"parts":["x"]}}}` + "\n\n"
	if res := a.ParseStreamResponse(body, "https://chatgpt.com/backend-api/conversation"); res != nil {
		t.Fatalf("expected nil when no conversation id ever appears")
	}
}

func TestParseStreamResponseNonString(t *testing.T) {
	a := New()
	if res := a.ParseStreamResponse(map[string]any{"events": []any{}}, "https://chatgpt.com/backend-api/conversation"); res != nil {
		t.Fatalf("expected nil for structured input")
	}
}
