package domain

import "fmt"

// Message is one entry of a session's transcript (user or model).
type Message struct {
	ID        MessageID `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`

	// IsStreaming is true only while the model reply is still being received.
	IsStreaming bool `json:"isStreaming,omitempty"`
}

// ChatSession is one titled conversation thread bound to a domain persona.
type ChatSession struct {
	ID        SessionID         `json:"id"`
	Title     string            `json:"title"`
	Domain    EngineeringDomain `json:"domain"`
	Messages  []Message         `json:"messages"`
	CreatedAt Timestamp         `json:"createdAt"`
}

// DefaultTitle is the title a session carries until its first user message.
func DefaultTitle(d EngineeringDomain) string {
	return fmt.Sprintf("New %s Chat", d)
}

// Clone returns a deep copy of the session.
func (s ChatSession) Clone() ChatSession {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

// MessagePatch is a partial update of a message. Nil fields are left untouched.
type MessagePatch struct {
	Content     *string
	IsStreaming *bool
}
