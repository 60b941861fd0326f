package core

// Platform identifies the chat application a record was captured from.
type Platform string

const (
	PlatformClaude  Platform = "claude"
	PlatformChatGPT Platform = "chatgpt"
	PlatformGemini  Platform = "gemini"
)

// Role is the message author classification. Turns that cannot be classified
// as one of these (including explicit "system" turns) are dropped during
// parsing, never defaulted.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DetailStatus records how much of a conversation a parse has seen.
type DetailStatus string

const (
	// DetailNone: metadata only, from a conversation-list payload.
	DetailNone DetailStatus = "none"
	// DetailPartial: a single streamed exchange.
	DetailPartial DetailStatus = "partial"
	// DetailFull: a complete conversation-detail fetch.
	DetailFull DetailStatus = "full"
)

// Conversation is the canonical record for one remote chat thread.
// ID is "{platform}_{originalId}" and is the stable upsert key downstream.
// All timestamps are epoch milliseconds.
type Conversation struct {
	ID           string       `json:"id"`
	Platform     Platform     `json:"platform"`
	OriginalID   string       `json:"original_id"`
	Title        string       `json:"title"`
	CreatedAt    int64        `json:"created_at"`
	UpdatedAt    int64        `json:"updated_at"`
	MessageCount int          `json:"message_count"`
	Preview      string       `json:"preview,omitempty"`
	Summary      string       `json:"summary,omitempty"`
	Tags         []string     `json:"tags,omitempty"`
	SyncedAt     int64        `json:"synced_at"`
	DetailStatus DetailStatus `json:"detail_status"`
	IsFavorite   bool         `json:"is_favorite"`
	FavoriteAt   *int64       `json:"favorite_at,omitempty"`
	URL          string       `json:"url,omitempty"`
}

// Message is one turn inside a conversation. ConversationID always refers to
// the owning conversation's canonical ID, never a platform-native id.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
	Role           Role   `json:"role"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"created_at"`
}

// ConversationID builds the canonical cross-capture identity for a thread.
func ConversationID(p Platform, originalID string) string {
	return string(p) + "_" + originalID
}
