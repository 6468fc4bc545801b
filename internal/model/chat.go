package model

type MessageType string

const (
	MessageTypeUser      MessageType = "user"
	MessageTypeAssistant MessageType = "assistant"
)

type ChatSession struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Ctime         int64          `json:"created_at"`
	Mtime         int64          `json:"updated_at"`
	MessagesCount int            `json:"messages_count"`
	LastMessage   *MessageTeaser `json:"last_message"`
}

type MessageTeaser struct {
	Content string `json:"content"`
	Ctime   int64  `json:"created_at"`
}

type ChatMessage struct {
	ID          string      `json:"-"`
	SessionID   string      `json:"-"`
	MessageType MessageType `json:"message_type"`
	Content     string      `json:"content"`
	SourcesUsed []string    `json:"sources_used"`
	Ctime       int64       `json:"created_at"`
}
