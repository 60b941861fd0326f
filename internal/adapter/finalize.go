package adapter

import (
	"sort"
	"strconv"

	"github.com/you/chatvault/internal/core"
	"github.com/you/chatvault/internal/wire"
)

const (
	titleMaxRunes   = 80
	previewMaxRunes = 200
)

// Finalize turns a partially-built conversation plus its raw messages into
// a Result that satisfies the output invariants: canonical conversation
// id stamped on every message, strictly ascending unique timestamps,
// updatedAt equal to the last message, and title/preview derived from the
// earliest user message when the platform supplied none. A parse that
// recovered zero messages is a failure and yields nil.
func Finalize(conv core.Conversation, msgs []core.Message, status core.DetailStatus, now int64) *Result {
	if len(msgs) == 0 || conv.OriginalID == "" {
		return nil
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})

	conv.ID = core.ConversationID(conv.Platform, conv.OriginalID)
	var prev int64
	for i := range msgs {
		if i > 0 && msgs[i].CreatedAt <= prev {
			msgs[i].CreatedAt = prev + 1
		}
		prev = msgs[i].CreatedAt
		msgs[i].ConversationID = conv.ID
	}

	first := msgs[0].CreatedAt
	last := msgs[len(msgs)-1].CreatedAt
	if conv.CreatedAt == 0 || conv.CreatedAt > first {
		conv.CreatedAt = first
	}
	conv.UpdatedAt = last
	conv.MessageCount = len(msgs)

	if earliest, ok := earliestUser(msgs); ok {
		if conv.Title == "" {
			conv.Title = wire.Truncate(earliest.Content, titleMaxRunes)
		}
		if conv.Preview == "" {
			conv.Preview = wire.Truncate(earliest.Content, previewMaxRunes)
		}
	}

	conv.SyncedAt = now
	conv.DetailStatus = status
	return &Result{Conversation: conv, Messages: msgs}
}

func earliestUser(msgs []core.Message) (core.Message, bool) {
	for _, m := range msgs {
		if m.Role == core.RoleUser {
			return m, true
		}
	}
	return core.Message{}, false
}

// ListConversation fills the derived fields common to list-parse records.
func ListConversation(conv core.Conversation, now int64) core.Conversation {
	conv.ID = core.ConversationID(conv.Platform, conv.OriginalID)
	if conv.UpdatedAt == 0 {
		conv.UpdatedAt = conv.CreatedAt
	}
	if conv.CreatedAt == 0 {
		conv.CreatedAt = conv.UpdatedAt
	}
	conv.SyncedAt = now
	conv.DetailStatus = core.DetailNone
	return conv
}

// DisambiguateID returns an id that does not collide with the keys already
// in seen, suffixing a counter when the native id is reused for different
// content.
func DisambiguateID(id string, seen map[string]struct{}) string {
	if _, taken := seen[id]; !taken {
		return id
	}
	for n := 2; ; n++ {
		candidate := id + "_" + strconv.Itoa(n)
		if _, taken := seen[candidate]; !taken {
			return candidate
		}
	}
}
