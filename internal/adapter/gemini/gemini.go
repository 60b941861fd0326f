// Package gemini parses captured gemini.google.com batchexecute payloads.
//
// The wire format is an undocumented, positionally-encoded array structure
// with no field names, wrapped in an RPC envelope whose real payload is a
// JSON-encoded string nested inside an outer array tagged "wrb.fr". Records
// are recognized by structural shape and by the regex shape of two id
// families: conversation ids ("c_" prefix) and response ids ("r_"/"rc_"
// prefixes). Nothing else tells the parser what it is looking at.
package gemini

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/you/chatvault/internal/adapter"
	"github.com/you/chatvault/internal/core"
	"github.com/you/chatvault/internal/wire"
)

const host = "gemini.google.com"

// batchexecute rpc ids observed for the conversation endpoints.
const (
	listRPCID   = "MaZiqc"
	detailRPCID = "hNvQHb"
)

const envelopeTag = "wrb.fr"

var (
	convIDRe = regexp.MustCompile(`^c_[0-9a-f]+$`)
	respIDRe = regexp.MustCompile(`^(?:r_|rc_)[0-9a-f]+$`)
	appIDRe  = regexp.MustCompile(`/app/([0-9a-f]+)`)
)

// Adapter implements the capability contract for gemini.google.com.
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

func (a *Adapter) Platform() core.Platform { return core.PlatformGemini }

func (a *Adapter) ShouldCapture(url string) bool {
	return strings.Contains(strings.ToLower(url), host)
}

func (a *Adapter) EndpointType(rawURL string) adapter.EndpointType {
	lower := strings.ToLower(rawURL)
	if strings.Contains(lower, "streamgenerate") || strings.Contains(lower, "assistant.lamda") {
		return adapter.EndpointStream
	}
	if !strings.Contains(lower, "batchexecute") {
		return adapter.EndpointUnknown
	}
	rpcids := queryParam(rawURL, "rpcids")
	switch {
	case strings.Contains(rpcids, detailRPCID):
		return adapter.EndpointDetail
	case strings.Contains(rpcids, listRPCID):
		return adapter.EndpointList
	}
	return adapter.EndpointUnknown
}

func (a *Adapter) ExtractConversationID(rawURL string) string {
	if m := appIDRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return ""
}

func (a *Adapter) ConversationURL(originalID string) string {
	return "https://gemini.google.com/app/" + originalID
}

// originalID strips the conversation-tag prefix from a native id, giving
// the id used in canonical identity and deep links.
func originalID(nativeID string) string {
	return strings.TrimPrefix(nativeID, "c_")
}

// fragments decodes a capture into its independent payload fragments, one
// per RPC call in the batch, unwrapping wrb.fr envelopes recursively until
// the real positional payload is visible.
func fragments(raw any) []any {
	var candidates []any
	switch t := raw.(type) {
	case nil:
		return nil
	case string:
		candidates = wire.DecodeCandidates(t)
	case []byte:
		candidates = wire.DecodeCandidates(string(t))
	default:
		candidates = []any{raw}
	}
	var out []any
	for _, c := range candidates {
		out = append(out, unwrapEnvelopes(c, 0)...)
	}
	return out
}

func unwrapEnvelopes(v any, depth int) []any {
	if depth > 8 {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return []any{v}
	}
	if payload, ok := envelopePayload(arr); ok {
		return unwrapEnvelopes(payload, depth+1)
	}
	var nested []any
	matched := false
	for _, item := range arr {
		env, ok := item.([]any)
		if !ok {
			continue
		}
		if payload, ok := envelopePayload(env); ok {
			matched = true
			nested = append(nested, unwrapEnvelopes(payload, depth+1)...)
		}
	}
	if matched {
		return nested
	}
	return []any{v}
}

// envelopePayload recognizes a single ["wrb.fr", rpcid, "<json>"] envelope
// and decodes the string payload at the fixed position.
func envelopePayload(arr []any) (any, bool) {
	if len(arr) < 3 {
		return nil, false
	}
	if tag, _ := arr[0].(string); tag != envelopeTag {
		return nil, false
	}
	payload, ok := arr[2].(string)
	if !ok || payload == "" {
		return nil, false
	}
	var inner any
	if err := json.Unmarshal([]byte(payload), &inner); err != nil {
		return nil, false
	}
	return inner, true
}

func (a *Adapter) ParseConversationList(raw any) []core.Conversation {
	now := a.nowFn().UnixMilli()
	byID := make(map[string]core.Conversation)
	var order []string
	for _, frag := range fragments(raw) {
		a.collectListRecords(frag, now, byID, &order)
	}
	out := make([]core.Conversation, 0, len(order))
	for _, id := range order {
		out = append(out, byID[id])
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// collectListRecords walks a fragment accepting arrays whose first element
// is a conversation id, whose second element is a plausible title, and
// which carry a recoverable timestamp among the remaining slots. Titles
// that themselves look like ids or URLs are false positives from adjacent
// metadata and reject the record.
func (a *Adapter) collectListRecords(frag any, now int64, byID map[string]core.Conversation, order *[]string) {
	record := func(nativeID, title string, created, updated int64) {
		orig := originalID(nativeID)
		conv := adapter.ListConversation(core.Conversation{
			Platform:   core.PlatformGemini,
			OriginalID: orig,
			Title:      strings.TrimSpace(title),
			CreatedAt:  created,
			UpdatedAt:  updated,
			URL:        a.ConversationURL(orig),
		}, now)
		existing, seen := byID[conv.ID]
		if !seen {
			byID[conv.ID] = conv
			*order = append(*order, conv.ID)
			return
		}
		// Duplicate records in one batch: keep the fresher instance.
		if conv.UpdatedAt > existing.UpdatedAt {
			byID[conv.ID] = conv
		}
	}

	wire.Walk(frag, wire.Visitor{
		Array: func(arr []any, _ int) wire.Action {
			if len(arr) < 2 {
				return wire.Descend
			}
			id, ok := arr[0].(string)
			if !ok || !convIDRe.MatchString(id) {
				return wire.Descend
			}
			title, ok := arr[1].(string)
			if !ok || !plausibleTitle(title) {
				return wire.Descend
			}
			ts, ok := findTimestamp(arr[2:], 0)
			if !ok {
				return wire.Descend
			}
			record(id, title, ts, ts)
			return wire.Skip
		},
		Object: func(obj map[string]any, _ int) wire.Action {
			id := wire.Str(obj, "conversationId", "conversation_id", "cid", "id")
			if !convIDRe.MatchString(id) {
				return wire.Descend
			}
			title := wire.Str(obj, "title", "name")
			if !plausibleTitle(title) {
				return wire.Descend
			}
			tsRaw, _ := wire.Field(obj, "updateTime", "update_time", "timestamp", "createTime", "create_time")
			ts, ok := wire.ToEpochMillis(tsRaw)
			if !ok {
				return wire.Descend
			}
			created := wire.ToEpochMillisOr(firstField(obj, "createTime", "create_time"), ts)
			record(id, title, created, ts)
			return wire.Skip
		},
	})
}

// plausibleTitle rejects strings from adjacent metadata slots that merely
// sit where a title would: id-shaped strings and URLs.
func plausibleTitle(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if convIDRe.MatchString(s) || respIDRe.MatchString(s) {
		return false
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return false
	}
	return true
}

// findTimestamp scans sibling slots for the first value the canonicalizer
// accepts, descending one level into nested arrays where the [seconds,
// nanos] pairs usually sit.
func findTimestamp(elems []any, depth int) (int64, bool) {
	if depth > 2 {
		return 0, false
	}
	for _, e := range elems {
		if ms, ok := wire.ToEpochMillis(e); ok {
			return ms, true
		}
		if nested, ok := e.([]any); ok {
			if ms, ok := findTimestamp(nested, depth+1); ok {
				return ms, true
			}
		}
	}
	return 0, false
}

func firstField(m map[string]any, keys ...string) any {
	v, _ := wire.Field(m, keys...)
	return v
}

func queryParam(rawURL, name string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Query().Get(name)
}
