package state

import "time"

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message represents a single message in a conversation. Content is mutable
// while the message is the open assistant placeholder of an active stream;
// ID and Timestamp never change.
type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is a stored exchange history bound to a project. RemoteID is
// the server-side conversation identifier, empty until the first generation
// names one.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	ProjectID  string    `json:"project_id"`
	Created    time.Time `json:"created"`
	RemoteID   string    `json:"remote_id,omitempty"`
	PreviewURL string    `json:"preview_url,omitempty"`
	Messages   []Message `json:"messages"`
}

// ConversationSummary is a lightweight representation for listing.
type ConversationSummary struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Created time.Time `json:"created"`
}
