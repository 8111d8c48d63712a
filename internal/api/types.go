package api

import "time"

// Request types for the appdraft generation service

// GenerationRequest is the body of a generate call. Prompt and ProjectID are
// required; ConversationID is empty on the first turn, in which case the
// server creates a conversation and names it in an early metadata frame.
type GenerationRequest struct {
	Prompt         string `json:"prompt"`
	ProjectID      string `json:"projectId"`
	ConversationID string `json:"conversationId,omitempty"`
}

// frame is the decoded JSON payload of a single data: frame. Every field is
// optional; the server freely mixes delta and metadata frames. Content and
// PreviewURL are pointers so an explicitly-sent empty string is
// distinguishable from an absent field.
type frame struct {
	Content        *string           `json:"content"`
	ConversationID string            `json:"conversationId"`
	Files          map[string]string `json:"files"`
	PreviewURL     *string           `json:"previewUrl"`
}

// Event kinds emitted by the frame parser.
const (
	EventTextDelta = "text_delta"
	EventMetadata  = "metadata"
)

// Event is one logical protocol event decoded from the stream.
type Event struct {
	Type string // EventTextDelta or EventMetadata

	// For EventTextDelta
	Text string

	// For EventMetadata; fields are independently optional
	ConversationID string
	Files          map[string]string
	PreviewURL     *string
}

// GenerationResult is the accumulated outcome of one generation stream.
type GenerationResult struct {
	Explanation    string            // all text deltas, in arrival order
	ConversationID string            // first non-empty value observed
	Files          map[string]string // last files mapping observed
	PreviewURL     string            // last preview URL observed
}

// RemoteMessage is one message of a stored conversation as returned by the
// conversation fetch endpoint.
type RemoteMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// RemoteConversation is the conversation fetch endpoint's response body.
type RemoteConversation struct {
	ID       string          `json:"id"`
	Messages []RemoteMessage `json:"messages"`
}
