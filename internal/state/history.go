package state

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// History is the ordered message list for one session. It is append-only:
// in-place content mutation is permitted only for the currently-open
// assistant message (the placeholder being filled by an active stream).
type History struct {
	mu       sync.Mutex
	messages []Message
	openIdx  int // index of the open assistant message, -1 when none
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{openIdx: -1}
}

// newMessage stamps identity and creation time.
func newMessage(sender Sender, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Append adds a closed message and returns it.
func (h *History) Append(sender Sender, content string) Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := newMessage(sender, content)
	h.messages = append(h.messages, msg)
	return msg
}

// OpenAssistant appends an empty assistant placeholder and marks it open.
// Any previously open message is closed first.
func (h *History) OpenAssistant() Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := newMessage(SenderAssistant, "")
	h.messages = append(h.messages, msg)
	h.openIdx = len(h.messages) - 1
	return msg
}

// AppendToOpen appends text to the open assistant message. No-op when no
// message is open.
func (h *History) AppendToOpen(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.openIdx < 0 {
		return
	}
	h.messages[h.openIdx].Content += text
}

// ReplaceOpen replaces the open assistant message's content wholesale and
// closes it. Used for the terminal error rewrite.
func (h *History) ReplaceOpen(content string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.openIdx < 0 {
		return
	}
	h.messages[h.openIdx].Content = content
	h.openIdx = -1
}

// CloseOpen closes the open assistant message, keeping its content as-is.
// Used after a cancellation annotation.
func (h *History) CloseOpen() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openIdx = -1
}

// Open reports whether an assistant message is currently receiving deltas.
func (h *History) Open() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openIdx >= 0
}

// Messages returns a snapshot copy of the history.
func (h *History) Messages() []Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Hydrate replaces the entire history, closing any open message. Used when
// loading a previously persisted conversation.
func (h *History) Hydrate(messages []Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = make([]Message, len(messages))
	copy(h.messages, messages)
	h.openIdx = -1
}

// MapRole converts an external role name onto the two-valued Sender enum.
// Anything that is not a user role is attributed to the assistant.
func MapRole(role string) Sender {
	if strings.EqualFold(strings.TrimSpace(role), string(SenderUser)) {
		return SenderUser
	}
	return SenderAssistant
}

// HydratedMessage builds a Message from externally stored fields, assigning
// a fresh local ID. A zero timestamp is replaced with the current time so
// ordering stays stable for rendering.
func HydratedMessage(role, content string, timestamp time.Time) Message {
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	return Message{
		ID:        uuid.NewString(),
		Sender:    MapRole(role),
		Content:   content,
		Timestamp: timestamp,
	}
}
