// Package chatgpt parses captured chatgpt.com backend-api payloads into
// canonical conversation records.
package chatgpt

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/you/chatvault/internal/adapter"
	"github.com/you/chatvault/internal/core"
	"github.com/you/chatvault/internal/wire"
)

var hosts = []string{"chatgpt.com", "chat.openai.com"}

var detailRe = regexp.MustCompile(`/conversation/([0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12})`)

// Adapter implements the capability contract for chatgpt.com.
type Adapter struct {
	nowFn func() time.Time
}

func New() *Adapter {
	return &Adapter{nowFn: time.Now}
}

// NewWithClock injects a deterministic clock for tests.
func NewWithClock(now func() time.Time) *Adapter {
	return &Adapter{nowFn: now}
}

func (a *Adapter) Platform() core.Platform { return core.PlatformChatGPT }

func (a *Adapter) ShouldCapture(url string) bool {
	lower := strings.ToLower(url)
	for _, h := range hosts {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

func (a *Adapter) EndpointType(url string) adapter.EndpointType {
	path := pathOf(url)
	switch {
	case strings.Contains(path, "/backend-api/conversations"):
		return adapter.EndpointList
	case detailRe.MatchString(path):
		return adapter.EndpointDetail
	case strings.HasSuffix(path, "/backend-api/conversation"),
		strings.HasSuffix(path, "/backend-api/f/conversation"):
		return adapter.EndpointStream
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
	return "https://chatgpt.com/c/" + originalID
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
		id := wire.Str(m, "id", "conversation_id", "uuid")
		if id == "" {
			continue
		}
		created := wire.ToEpochMillisOr(m["create_time"], now)
		updated := wire.ToEpochMillisOr(m["update_time"], created)
		out = append(out, adapter.ListConversation(core.Conversation{
			Platform:   core.PlatformChatGPT,
			OriginalID: id,
			Title:      wire.Str(m, "title"),
			CreatedAt:  created,
			UpdatedAt:  updated,
			URL:        a.ConversationURL(id),
		}, now))
	}
	return out
}

// ParseConversationDetail reads the mapping-node representation. The
// parent/child edges are ignored entirely; ordering is reconstructed from
// timestamps, which survive out-of-order node iteration and regenerated
// branches alike.
func (a *Adapter) ParseConversationDetail(raw any) *adapter.Result {
	root, ok := wire.Decode(raw)
	if !ok {
		return nil
	}
	top, ok := root.(map[string]any)
	if !ok {
		return nil
	}
	id := wire.Str(top, "conversation_id", "id")
	if id == "" {
		return nil
	}
	mapping, ok := top["mapping"].(map[string]any)
	if !ok {
		return nil
	}

	now := a.nowFn().UnixMilli()
	convCreated := wire.ToEpochMillisOr(top["create_time"], 0)
	fallbackTS := convCreated
	if fallbackTS == 0 {
		fallbackTS = now
	}

	// Iterate node keys in sorted order so synthesized fallbacks are
	// deterministic regardless of map iteration.
	var msgs []core.Message
	seen := make(map[string]struct{})
	content := make(map[string]string)
	for _, key := range sortedKeys(mapping) {
		node, ok := mapping[key].(map[string]any)
		if !ok {
			continue
		}
		m, ok := node["message"].(map[string]any)
		if !ok {
			continue
		}
		role, ok := adapter.ClassifyRole(authorRole(m))
		if !ok {
			continue
		}
		text := wire.FlattenContent(m["content"])
		if text == "" {
			continue
		}
		msgID := wire.Str(m, "id")
		if msgID == "" {
			msgID = key
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
			CreatedAt: wire.ToEpochMillisOr(m["create_time"], fallbackTS),
		})
	}

	conv := core.Conversation{
		Platform:   core.PlatformChatGPT,
		OriginalID: id,
		Title:      wire.Str(top, "title"),
		CreatedAt:  convCreated,
		URL:        a.ConversationURL(id),
	}
	return adapter.Finalize(conv, msgs, core.DetailFull, now)
}

// ParseStreamResponse folds SSE frames into per-message accumulators.
// Frames repeat a message id as content grows, so the longest content and
// earliest timestamp per id win; the conversation id frequently trails the
// first content frame, so assignment waits until every frame is read.
func (a *Adapter) ParseStreamResponse(raw any, url string) *adapter.Result {
	body, ok := raw.(string)
	if !ok {
		return nil
	}

	type acc struct {
		role    core.Role
		content string
		ts      int64
		order   int
	}
	byID := make(map[string]*acc)
	convID := ""
	title := ""
	for _, ev := range wire.SSEEvents(body) {
		frame, ok := ev.(map[string]any)
		if !ok {
			continue
		}
		if s := wire.Str(frame, "conversation_id"); s != "" {
			convID = s
		}
		if s := wire.Str(frame, "title"); s != "" {
			title = s
		}
		m, ok := frame["message"].(map[string]any)
		if !ok {
			continue
		}
		role, ok := adapter.ClassifyRole(authorRole(m))
		if !ok {
			continue
		}
		msgID := wire.Str(m, "id")
		if msgID == "" {
			continue
		}
		text := wire.FlattenContent(m["content"])
		ts, hasTS := wire.ToEpochMillis(m["create_time"])

		entry, exists := byID[msgID]
		if !exists {
			entry = &acc{role: role, order: len(byID)}
			byID[msgID] = entry
		}
		if len(text) > len(entry.content) {
			entry.content = text
		}
		if hasTS && (entry.ts == 0 || ts < entry.ts) {
			entry.ts = ts
		}
	}
	if convID == "" {
		// The stream never named its conversation; id assignment is
		// deferred to the URL as a last resort.
		convID = a.ExtractConversationID(url)
	}
	if convID == "" {
		return nil
	}

	ids := make([]string, 0, len(byID))
	for msgID := range byID {
		ids = append(ids, msgID)
	}
	sort.Strings(ids)

	now := a.nowFn().UnixMilli()
	var msgs []core.Message
	for _, msgID := range ids {
		entry := byID[msgID]
		if entry.content == "" {
			continue
		}
		ts := entry.ts
		if ts == 0 {
			ts = now + int64(entry.order)
		}
		msgs = append(msgs, core.Message{
			ID:        msgID,
			Role:      entry.role,
			Content:   entry.content,
			CreatedAt: ts,
		})
	}

	conv := core.Conversation{
		Platform:   core.PlatformChatGPT,
		OriginalID: convID,
		Title:      title,
		URL:        a.ConversationURL(convID),
	}
	return adapter.Finalize(conv, msgs, core.DetailPartial, now)
}

func authorRole(m map[string]any) string {
	if author, ok := m["author"].(map[string]any); ok {
		return wire.Str(author, "role")
	}
	return wire.Str(m, "role")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
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
