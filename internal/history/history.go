// Package history holds the conversation log shared by the relay request
// builder and the client session.
package history

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultMaxTurns is the number of turns kept when no cap is configured.
const DefaultMaxTurns = 20

var ErrInvalidRole = errors.New("invalid role")

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Turn is one message of the conversation. Turns are values and are never
// mutated once appended.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

func NewTurn(role Role, content string) (Turn, error) {
	if !role.Valid() {
		return Turn{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	return Turn{Role: role, Content: content}, nil
}

func UserTurn(content string) Turn      { return Turn{Role: RoleUser, Content: content} }
func AssistantTurn(content string) Turn { return Turn{Role: RoleAssistant, Content: content} }

// History is a bounded, ordered log of turns. When the cap is exceeded the
// oldest turns are dropped first. A History is owned by one session and is
// not safe for concurrent use.
type History struct {
	turns []Turn
	max   int
}

// New returns an empty history holding at most max turns. A non-positive
// max selects DefaultMaxTurns.
func New(max int) *History {
	if max <= 0 {
		max = DefaultMaxTurns
	}
	return &History{max: max}
}

// FromTurns builds a history from an existing slice, keeping only the most
// recent max turns.
func FromTurns(turns []Turn, max int) *History {
	h := New(max)
	h.Append(turns...)
	return h
}

// Append adds turns in order and trims the oldest ones beyond the cap.
func (h *History) Append(turns ...Turn) {
	h.turns = append(h.turns, turns...)
	h.trim()
}

func (h *History) trim() {
	if over := len(h.turns) - h.max; over > 0 {
		kept := make([]Turn, h.max)
		copy(kept, h.turns[over:])
		h.turns = kept
	}
}

func (h *History) Len() int { return len(h.turns) }

func (h *History) Cap() int { return h.max }

// Turns returns a copy of the retained turns in conversation order.
func (h *History) Turns() []Turn {
	out := make([]Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// Last returns the most recent turn.
func (h *History) Last() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

// LastUserContent returns the content of the most recent user turn, or ""
// when there is none.
func (h *History) LastUserContent() string {
	return LastUserContent(h.turns)
}

// Recent returns a copy of at most n of the latest turns.
func (h *History) Recent(n int) []Turn {
	if n <= 0 {
		return nil
	}
	if n > len(h.turns) {
		n = len(h.turns)
	}
	out := make([]Turn, n)
	copy(out, h.turns[len(h.turns)-n:])
	return out
}

// Conversational returns the turns with system-role entries removed, the
// shape sent to the provider alongside a separate system prompt.
func (h *History) Conversational() []Turn {
	out := make([]Turn, 0, len(h.turns))
	for _, t := range h.turns {
		if t.Role == RoleSystem {
			continue
		}
		out = append(out, t)
	}
	return out
}

// LastUserContent scans turns from the end for the latest user utterance.
func LastUserContent(turns []Turn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return turns[i].Content
		}
	}
	return ""
}

// Transcript renders turns as "role: content" lines, mostly for logging.
func Transcript(turns []Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}
