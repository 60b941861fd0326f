// Package claude parses captured claude.ai API payloads into canonical
// conversation records.
package claude

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/you/chatvault/internal/adapter"
	"github.com/you/chatvault/internal/core"
	"github.com/you/chatvault/internal/wire"
)

const host = "claude.ai"

var (
	uuidRe     = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	detailRe   = regexp.MustCompile(`/chat_conversations/(` + uuidRe.String() + `)`)
	listSuffix = "/chat_conversations"
)

// Adapter implements the capability contract for claude.ai.
type Adapter struct {
	nowFn func() time.Time
}

func New() *Adapter {
	return &Adapter{nowFn: time.Now}
}

// NewWithClock injects a deterministic clock; parsing the same payload
// with the same clock yields identical output.
func NewWithClock(now func() time.Time) *Adapter {
	return &Adapter{nowFn: now}
}

func (a *Adapter) Platform() core.Platform { return core.PlatformClaude }

func (a *Adapter) ShouldCapture(url string) bool {
	return strings.Contains(strings.ToLower(url), host)
}

func (a *Adapter) EndpointType(url string) adapter.EndpointType {
	path := pathOf(url)
	switch {
	case strings.Contains(path, "/completion"):
		return adapter.EndpointStream
	case detailRe.MatchString(path):
		return adapter.EndpointDetail
	case strings.HasSuffix(path, listSuffix):
		return adapter.EndpointList
	}
	return adapter.EndpointUnknown
}

func (a *Adapter) ExtractConversationID(url string) string {
	if m := detailRe.FindStringSubmatch(url); m != nil {
		return m[1]
	}
	return ""
}

func (a *Adapter) ConversationURL(originalID string) string {
	return "https://claude.ai/chat/" + originalID
}

func (a *Adapter) ParseConversationList(raw any) []core.Conversation {
	root, ok := wire.Decode(raw)
	if !ok {
		return nil
	}
	items, ok := wire.UnwrapList(root)
	if !ok {
		return nil
	}

	now := a.nowFn().UnixMilli()
	var out []core.Conversation
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := wire.Str(m, "uuid", "id", "conversation_id")
		if id == "" {
			continue
		}
		created := wire.ToEpochMillisOr(fieldOrNil(m, "created_at", "createdAt"), now)
		updated := wire.ToEpochMillisOr(fieldOrNil(m, "updated_at", "updatedAt"), created)
		out = append(out, adapter.ListConversation(core.Conversation{
			Platform:   core.PlatformClaude,
			OriginalID: id,
			Title:      wire.Str(m, "name", "title"),
			Summary:    normalizeSummary(wire.Str(m, "summary")),
			CreatedAt:  created,
			UpdatedAt:  updated,
			URL:        a.ConversationURL(id),
		}, now))
	}
	return out
}

func (a *Adapter) ParseConversationDetail(raw any) *adapter.Result {
	root, ok := wire.Decode(raw)
	if !ok {
		return nil
	}
	top, ok := root.(map[string]any)
	if !ok {
		return nil
	}

	// Either a {conversation, messages} wrapper or a flat object with the
	// messages inline.
	convMap := top
	if nested, ok := top["conversation"].(map[string]any); ok {
		convMap = nested
	}
	id := wire.Str(convMap, "uuid", "id", "conversation_id")
	if id == "" {
		return nil
	}

	items, _ := firstArray([]map[string]any{top, convMap}, "messages", "chat_messages")
	now := a.nowFn().UnixMilli()

	var msgs []core.Message
	seen := make(map[string]struct{})
	content := make(map[string]string)
	for i, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		role, ok := adapter.ClassifyRole(wire.Str(m, "sender", "author", "role"))
		if !ok {
			continue
		}
		text := messageContent(m)
		if text == "" {
			continue
		}
		msgID := wire.Str(m, "uuid", "id")
		if msgID == "" {
			msgID = "msg_" + strconv.Itoa(i)
		}
		if prev, dup := content[msgID]; dup {
			if prev == text {
				continue
			}
			msgID = adapter.DisambiguateID(msgID, seen)
		}
		seen[msgID] = struct{}{}
		content[msgID] = text
		msgs = append(msgs, core.Message{
			ID:        msgID,
			Role:      role,
			Content:   text,
			CreatedAt: wire.ToEpochMillisOr(fieldOrNil(m, "created_at", "createdAt"), now),
		})
	}

	conv := core.Conversation{
		Platform:   core.PlatformClaude,
		OriginalID: id,
		Title:      wire.Str(convMap, "name", "title"),
		Summary:    normalizeSummary(wire.Str(convMap, "summary")),
		CreatedAt:  wire.ToEpochMillisOr(fieldOrNil(convMap, "created_at", "createdAt"), 0),
		URL:        a.ConversationURL(id),
	}
	return adapter.Finalize(conv, msgs, core.DetailFull, now)
}

// ParseStreamResponse accumulates SSE completion frames. Full-replacement
// "completion" strings and incremental "delta.text" fragments are both
// concatenated; any other content-bearing frame replaces the accumulator
// only when longer, so short follow-up frames cannot truncate it.
func (a *Adapter) ParseStreamResponse(raw any, url string) *adapter.Result {
	body, ok := raw.(string)
	if !ok {
		// Pre-structured {events:[...]} input loses the data: framing and
		// cannot be re-split; treated as unparseable.
		return nil
	}
	id := a.ExtractConversationID(url)
	if id == "" {
		return nil
	}

	var acc strings.Builder
	replacement := ""
	for _, ev := range wire.SSEEvents(body) {
		m, ok := ev.(map[string]any)
		if !ok {
			continue
		}
		if s, ok := m["completion"].(string); ok {
			acc.WriteString(s)
			continue
		}
		if delta, ok := m["delta"].(map[string]any); ok {
			if s, ok := delta["text"].(string); ok {
				acc.WriteString(s)
			}
			continue
		}
		if c := wire.FlattenContent(m); len(c) > len(replacement) {
			replacement = c
		}
	}
	text := strings.TrimSpace(acc.String())
	if len(replacement) > len(text) {
		text = strings.TrimSpace(replacement)
	}
	if text == "" {
		return nil
	}

	now := a.nowFn().UnixMilli()
	conv := core.Conversation{
		Platform:   core.PlatformClaude,
		OriginalID: id,
		URL:        a.ConversationURL(id),
	}
	msg := core.Message{
		ID:        "stream_assistant",
		Role:      core.RoleAssistant,
		Content:   text,
		CreatedAt: now,
	}
	return adapter.Finalize(conv, []core.Message{msg}, core.DetailPartial, now)
}

// messageContent tries the known Claude content shapes in priority order:
// a direct text field, a nested content object, a content block array,
// then a blocks array. First non-empty match wins.
func messageContent(m map[string]any) string {
	if s, ok := m["text"].(string); ok {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	if c, ok := m["content"]; ok {
		if s := wire.FlattenContent(c); s != "" {
			return s
		}
	}
	if b, ok := m["blocks"]; ok {
		if s := wire.FlattenContent(b); s != "" {
			return s
		}
	}
	return ""
}

// normalizeSummary strips boilerplate headers platforms prepend to
// machine-written abstracts.
func normalizeSummary(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	for len(lines) > 0 {
		head := strings.ToLower(strings.TrimSpace(strings.TrimLeft(lines[0], "#*- ")))
		head = strings.TrimSuffix(head, ":")
		if head == "summary" || head == "conversation summary" {
			lines = lines[1:]
			continue
		}
		break
	}
	out := strings.TrimSpace(strings.Join(lines, "\n"))
	out = strings.TrimSpace(strings.TrimPrefix(out, "Summary:"))
	return out
}

func pathOf(url string) string {
	s := url
	if i := strings.Index(s, "://"); i != -1 {
		s = s[i+3:]
	}
	if i := strings.IndexByte(s, '/'); i != -1 {
		s = s[i:]
	} else {
		s = "/"
	}
	if i := strings.IndexByte(s, '?'); i != -1 {
		s = s[:i]
	}
	return s
}

func fieldOrNil(m map[string]any, keys ...string) any {
	v, _ := wire.Field(m, keys...)
	return v
}

func firstArray(sources []map[string]any, keys ...string) ([]any, bool) {
	for _, src := range sources {
		for _, key := range keys {
			if arr, ok := src[key].([]any); ok {
				return arr, true
			}
		}
	}
	return nil, false
}
