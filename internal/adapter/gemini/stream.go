package gemini

import (
	"strconv"
	"strings"

	"github.com/you/chatvault/internal/adapter"
	"github.com/you/chatvault/internal/core"
	"github.com/you/chatvault/internal/wire"
)

// ParseStreamResponse synthesizes a single-exchange conversation from an
// in-flight StreamGenerate body. Chunks repeat the growing response under
// the same response id, so the longest sighting per id wins. It wants the
// raw text body; pre-structured event objects cannot be re-framed and
// yield nil.
func (a *Adapter) ParseStreamResponse(raw any, url string) *adapter.Result {
	body, ok := raw.(string)
	if !ok {
		return nil
	}

	convID := ""
	prompt := ""
	responses := make(map[string]string)
	var order []string
	for _, frag := range fragments(body) {
		wire.Walk(frag, wire.Visitor{
			Array: func(arr []any, _ int) wire.Action {
				for _, child := range arr {
					if s, ok := child.(string); ok && convIDRe.MatchString(s) && convID == "" {
						convID = s
					}
				}
				if content, ok := userTurn(arr); ok {
					if len(content) > len(prompt) {
						prompt = content
					}
					return wire.Skip
				}
				if id, content, ok := assistantTurn(arr); ok {
					if _, seen := responses[id]; !seen {
						order = append(order, id)
					}
					if len(content) > len(responses[id]) {
						responses[id] = content
					}
					return wire.Skip
				}
				return wire.Descend
			},
		})
	}
	if convID == "" {
		if fromURL := a.ExtractConversationID(url); fromURL != "" {
			convID = "c_" + fromURL
		}
	}
	if convID == "" {
		return nil
	}

	now := a.nowFn().UnixMilli()
	var msgs []core.Message
	ts := now
	if prompt = strings.TrimSpace(prompt); prompt != "" {
		msgs = append(msgs, core.Message{
			ID:        "user_" + strconv.FormatInt(ts, 10),
			Role:      core.RoleUser,
			Content:   prompt,
			CreatedAt: ts,
		})
		ts++
	}
	for _, id := range order {
		content := strings.TrimSpace(responses[id])
		if content == "" {
			continue
		}
		msgs = append(msgs, core.Message{
			ID:        id,
			Role:      core.RoleAssistant,
			Content:   content,
			CreatedAt: ts,
		})
		ts++
	}

	orig := originalID(convID)
	conv := core.Conversation{
		Platform:   core.PlatformGemini,
		OriginalID: orig,
		URL:        a.ConversationURL(orig),
	}
	return adapter.Finalize(conv, msgs, core.DetailPartial, now)
}
