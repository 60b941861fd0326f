package gemini

import (
	"strconv"
	"strings"

	"github.com/you/chatvault/internal/adapter"
	"github.com/you/chatvault/internal/core"
	"github.com/you/chatvault/internal/wire"
)

const maxVisitDepth = 64

// detailState is the traversal accumulator for one detail parse. It is
// local to a single call and discarded on return; adapters hold no state
// across calls.
type detailState struct {
	convID    string
	title     string
	defaultTS int64
	lastTS    int64
	now       int64

	seenTS   map[int64]int64
	ids      map[string]struct{}
	contents map[string]string
	msgs     []core.Message

	// Earliest user turn tracked by context timestamp, not discovery
	// order: batches frequently arrive newest-first.
	earliestUserTS int64
}

func newDetailState(now int64) *detailState {
	return &detailState{
		now:      now,
		seenTS:   make(map[int64]int64),
		ids:      make(map[string]struct{}),
		contents: make(map[string]string),
	}
}

// ParseConversationDetail parses every fragment of the capture
// independently, then merges the partial results: a single capture often
// decodes into several payload fragments, one per RPC call in the batch.
func (a *Adapter) ParseConversationDetail(raw any) *adapter.Result {
	now := a.nowFn().UnixMilli()

	var merged *partial
	for _, frag := range fragments(raw) {
		p := a.parseFragment(frag, now)
		if p == nil {
			continue
		}
		merged = mergePartials(merged, p)
	}
	if merged == nil || merged.convID == "" || len(merged.msgs) == 0 {
		return nil
	}

	orig := originalID(merged.convID)
	conv := core.Conversation{
		Platform:   core.PlatformGemini,
		OriginalID: orig,
		Title:      merged.title,
		URL:        a.ConversationURL(orig),
	}
	return adapter.Finalize(conv, merged.msgs, core.DetailFull, now)
}

// parseFragment runs the stateful visit over one payload fragment.
func (a *Adapter) parseFragment(frag any, now int64) *partial {
	st := newDetailState(now)
	st.visit(frag, 0, 0)
	if st.convID == "" && len(st.msgs) == 0 {
		return nil
	}
	return &partial{convID: st.convID, title: st.title, msgs: st.msgs}
}

// visit threads a contextual timestamp downward: timestamps often appear
// once per batch and apply to every turn nested under that batch.
func (st *detailState) visit(v any, ctxTS int64, depth int) {
	if depth > maxVisitDepth {
		return
	}
	switch t := v.(type) {
	case []any:
		st.visitArray(t, ctxTS, depth)
	case map[string]any:
		st.visitObject(t, ctxTS, depth)
	case string:
		if embedded, ok := wire.EmbeddedJSON(t); ok {
			st.visit(embedded, ctxTS, depth+1)
		}
	}
}

func (st *detailState) visitArray(arr []any, ctxTS int64, depth int) {
	// Direct children first: a timestamp slot rebinds the context for
	// everything nested beside it, and id slots identify the thread.
	for _, child := range arr {
		if s, ok := child.(string); ok && convIDRe.MatchString(s) && st.convID == "" {
			st.convID = s
		}
	}
	if ts, ok := directTimestamp(arr); ok {
		ctxTS = ts
		if st.defaultTS == 0 {
			st.defaultTS = ts
		}
	}

	if content, ok := userTurn(arr); ok {
		st.addTurn(core.RoleUser, "", content, ctxTS)
		return
	}
	if id, content, ok := assistantTurn(arr); ok {
		st.addTurn(core.RoleAssistant, id, content, ctxTS)
		return
	}

	for _, child := range arr {
		st.visit(child, ctxTS, depth+1)
	}
}

func (st *detailState) visitObject(obj map[string]any, ctxTS int64, depth int) {
	if ts, ok := wire.ToEpochMillis(firstField(obj, "createTime", "create_time", "timestamp")); ok {
		ctxTS = ts
		if st.defaultTS == 0 {
			st.defaultTS = ts
		}
	}
	if id := wire.Str(obj, "conversationId", "conversation_id", "cid"); convIDRe.MatchString(id) && st.convID == "" {
		st.convID = id
	}

	// Object-shaped nodes carrying an explicit author field are turns.
	if role, ok := adapter.ClassifyRole(wire.Str(obj, "role", "author", "sender")); ok {
		content := wire.FlattenContent(firstField(obj, "content", "text", "parts", "message"))
		id := wire.Str(obj, "id", "messageId", "message_id")
		st.addTurn(role, id, content, ctxTS)
		return
	}

	// Sorted keys: synthesized timestamps follow visit order, so map
	// iteration must be reproducible.
	for _, k := range wire.SortedKeys(obj) {
		st.visit(obj[k], ctxTS, depth+1)
	}
}

// addTurn canonicalizes a recognized turn into the running message map,
// disambiguating reused ids and duplicate timestamps deterministically.
func (st *detailState) addTurn(role core.Role, nativeID, content string, ctxTS int64) {
	content = strings.TrimSpace(content)
	if content == "" {
		return
	}
	ts := st.stamp(ctxTS)

	id := nativeID
	if id == "" {
		// User turns carry no native id; key them by their context
		// timestamp so the same turn seen in two fragments merges.
		id = "user_" + strconv.FormatInt(ts, 10)
	}
	if prev, dup := st.contents[id]; dup {
		if prev == content {
			return
		}
		id = adapter.DisambiguateID(id, st.ids)
	}
	st.ids[id] = struct{}{}
	st.contents[id] = content
	st.msgs = append(st.msgs, core.Message{
		ID:        id,
		Role:      role,
		Content:   content,
		CreatedAt: ts,
	})

	if role == core.RoleUser && (st.earliestUserTS == 0 || ts < st.earliestUserTS) {
		st.earliestUserTS = ts
		st.title = wire.Truncate(content, 80)
	}
}

// stamp resolves a turn's timestamp. Missing timestamps are synthesized by
// incrementing the last produced one so ordering stays strict; a timestamp
// recurring verbatim gets a per-value tie-breaker so same-millisecond
// turns still sort deterministically and uniquely.
func (st *detailState) stamp(ctxTS int64) int64 {
	ts := ctxTS
	if ts == 0 {
		ts = st.defaultTS
	}
	if ts == 0 {
		if st.lastTS == 0 {
			ts = st.now
		} else {
			ts = st.lastTS + 1
		}
	} else {
		n := st.seenTS[ts]
		st.seenTS[ts] = n + 1
		if n > 0 {
			ts += n
		}
	}
	st.lastTS = ts
	return ts
}

// directTimestamp looks for a timestamp in an array's immediate slots: a
// [seconds, nanos] pair child or the array itself being such a pair.
func directTimestamp(arr []any) (int64, bool) {
	if ms, ok := wire.ToEpochMillis(arr); ok {
		return ms, true
	}
	for _, child := range arr {
		if pair, ok := child.([]any); ok {
			if ms, ok := wire.ToEpochMillis(pair); ok {
				return ms, true
			}
		}
		if _, isNum := child.(float64); isNum {
			if ms, ok := wire.ToEpochMillis(child); ok {
				return ms, true
			}
		}
	}
	return 0, false
}

// userTurn recognizes the positional user-turn shape: a string array
// followed by a small integer.
func userTurn(arr []any) (string, bool) {
	if len(arr) < 2 {
		return "", false
	}
	parts, ok := arr[0].([]any)
	if !ok || len(parts) == 0 {
		return "", false
	}
	var texts []string
	for _, p := range parts {
		s, ok := p.(string)
		if !ok {
			return "", false
		}
		if s = strings.TrimSpace(s); s != "" {
			texts = append(texts, s)
		}
	}
	if len(texts) == 0 {
		return "", false
	}
	n, ok := arr[1].(float64)
	if !ok || n != float64(int(n)) || n < 0 || n >= 1000 {
		return "", false
	}
	return strings.Join(texts, "\n"), true
}

// assistantTurn recognizes the positional assistant-turn shape: a
// response id followed by a string array.
func assistantTurn(arr []any) (string, string, bool) {
	if len(arr) < 2 {
		return "", "", false
	}
	id, ok := arr[0].(string)
	if !ok || !respIDRe.MatchString(id) {
		return "", "", false
	}
	parts, ok := arr[1].([]any)
	if !ok {
		return "", "", false
	}
	var texts []string
	for _, p := range parts {
		if s, ok := p.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				texts = append(texts, s)
			}
		}
	}
	if len(texts) == 0 {
		return "", "", false
	}
	return id, strings.Join(texts, "\n"), true
}
