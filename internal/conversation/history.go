// Package conversation holds per-session chat histories in memory.
package conversation

import "slices"

// Role tags a message with its author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat history.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// History is an ordered message log. The zero value is an empty history.
type History struct {
	messages []Message
}

// NewHistory returns a history seeded with a single system message.
func NewHistory(system string) *History {
	return &History{messages: []Message{System(system)}}
}

// Len returns the number of entries, system message included.
func (h *History) Len() int { return len(h.messages) }

// Empty reports whether the history has no entries.
func (h *History) Empty() bool { return len(h.messages) == 0 }

// Messages returns a copy of the entries in order.
func (h *History) Messages() []Message { return slices.Clone(h.messages) }

// Append adds entries at the end.
func (h *History) Append(msgs ...Message) {
	h.messages = append(h.messages, msgs...)
}

// Clone returns an independent copy.
func (h *History) Clone() *History {
	return &History{messages: slices.Clone(h.messages)}
}

// Truncate bounds the history to a leading system message plus the last
// window entries. Without a leading system message only the last window
// entries are kept. The oldest non-system entries go first.
func (h *History) Truncate(window int) {
	if window < 0 {
		window = 0
	}
	head := 0
	if len(h.messages) > 0 && h.messages[0].Role == RoleSystem {
		head = 1
	}
	if len(h.messages)-head <= window {
		return
	}
	kept := make([]Message, 0, head+window)
	kept = append(kept, h.messages[:head]...)
	kept = append(kept, h.messages[len(h.messages)-window:]...)
	h.messages = kept
}
