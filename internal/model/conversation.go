package model

import (
	"strings"
	"time"
)

// Role identifies who produced a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label returns the transcript label used in generation prompts
func (r Role) Label() string {
	if r == RoleUser {
		return "PAZIENTE"
	}
	return "INFERMIERE"
}

// Turn is one message in a conversation. Turns are never modified after creation.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the ordered, append-only log of one session.
// It is a value: Append returns a new Conversation and never touches the receiver's turns.
type Conversation struct {
	ID            string    `json:"id"`
	Turns         []Turn    `json:"turns"`
	LastKnownCity string    `json:"last_known_city,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation
func NewConversation(id string) Conversation {
	return Conversation{ID: id, UpdatedAt: time.Now().UTC()}
}

// Append returns a copy of c with a new turn at the end
func (c Conversation) Append(role Role, text string) Conversation {
	turns := make([]Turn, len(c.Turns), len(c.Turns)+1)
	copy(turns, c.Turns)
	now := time.Now().UTC()
	c.Turns = append(turns, Turn{Role: role, Text: text, Timestamp: now})
	c.UpdatedAt = now
	return c
}

// Reset returns an empty conversation with the same ID
func (c Conversation) Reset() Conversation {
	return NewConversation(c.ID)
}

// UserTurns returns the user's turns in chronological order
func (c Conversation) UserTurns() []Turn {
	var out []Turn
	for _, t := range c.Turns {
		if t.Role == RoleUser {
			out = append(out, t)
		}
	}
	return out
}

// LastUserText returns the most recent user utterance, or ""
func (c Conversation) LastUserText() string {
	for i := len(c.Turns) - 1; i >= 0; i-- {
		if c.Turns[i].Role == RoleUser {
			return c.Turns[i].Text
		}
	}
	return ""
}

// Transcript renders the role-labelled conversation, one turn per line
func (c Conversation) Transcript() string {
	var b strings.Builder
	for _, t := range c.Turns {
		b.WriteString(t.Role.Label())
		b.WriteString(": ")
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// Len returns the number of turns
func (c Conversation) Len() int {
	return len(c.Turns)
}
