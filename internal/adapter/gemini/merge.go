package gemini

import (
	"github.com/you/chatvault/internal/core"
)

// partial is the outcome of parsing one payload fragment.
type partial struct {
	convID string
	title  string
	msgs   []core.Message
}

// mergePartials folds two fragment results. The merge is associative and
// commutative over the fields it combines, so multi-fragment captures
// reduce cleanly regardless of fragment order.
func mergePartials(a, b *partial) *partial {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	out := &partial{
		convID: a.convID,
		title:  longerString(a.title, b.title),
	}
	if out.convID == "" {
		out.convID = b.convID
	}
	out.msgs = mergeMessages(a.msgs, b.msgs)
	return out
}

// MergeConversations combines two sightings of the same thread: the longer
// title, the earliest creation, the freshest update, the larger count.
func MergeConversations(a, b core.Conversation) core.Conversation {
	out := a
	out.Title = longerString(a.Title, b.Title)
	out.Summary = longerString(a.Summary, b.Summary)
	out.Preview = longerString(a.Preview, b.Preview)
	if b.CreatedAt != 0 && (out.CreatedAt == 0 || b.CreatedAt < out.CreatedAt) {
		out.CreatedAt = b.CreatedAt
	}
	if b.UpdatedAt > out.UpdatedAt {
		out.UpdatedAt = b.UpdatedAt
	}
	if b.MessageCount > out.MessageCount {
		out.MessageCount = b.MessageCount
	}
	if out.URL == "" {
		out.URL = b.URL
	}
	return out
}

// MergeMessage combines two sightings of the same message id: the longer
// content and the earlier timestamp win, so a later truncated sighting
// cannot erase text.
func MergeMessage(a, b core.Message) core.Message {
	out := a
	if len(b.Content) > len(out.Content) {
		out.Content = b.Content
	}
	if b.CreatedAt != 0 && (out.CreatedAt == 0 || b.CreatedAt < out.CreatedAt) {
		out.CreatedAt = b.CreatedAt
	}
	return out
}

func mergeMessages(a, b []core.Message) []core.Message {
	index := make(map[string]int, len(a))
	out := make([]core.Message, 0, len(a)+len(b))
	for _, m := range a {
		index[m.ID] = len(out)
		out = append(out, m)
	}
	for _, m := range b {
		if i, ok := index[m.ID]; ok {
			out[i] = MergeMessage(out[i], m)
			continue
		}
		index[m.ID] = len(out)
		out = append(out, m)
	}
	return out
}

func longerString(a, b string) string {
	if len(b) > len(a) {
		return b
	}
	return a
}
