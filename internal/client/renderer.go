package client

import (
	"strings"

	"vibegame-backend/internal/history"
)

// StreamingIndicator is shown after the text of a message still in flight.
const StreamingIndicator = "▋"

// StreamingMessage is the assistant reply while frames are still arriving.
// It becomes an immutable history.Turn once finalized.
type StreamingMessage struct {
	ID        string
	Role      history.Role
	Streaming bool

	text strings.Builder
}

func (m *StreamingMessage) append(text string) {
	m.text.WriteString(text)
}

func (m *StreamingMessage) Text() string {
	return m.text.String()
}

// Display is the text as it should be rendered, indicator included.
func (m *StreamingMessage) Display() string {
	if m.Streaming {
		return m.text.String() + StreamingIndicator
	}
	return m.text.String()
}

// Renderer is the UI side of a Session. Calls are made from the goroutine
// running Session.Send, in conversation order.
type Renderer interface {
	ShowUserMessage(turn history.Turn)
	// ShowMessage renders a complete, non-streamed assistant message.
	ShowMessage(turn history.Turn)
	BeginStreaming(msg *StreamingMessage)
	UpdateStreaming(msg *StreamingMessage)
	FinishStreaming(msg *StreamingMessage, turn history.Turn)
	SetInputEnabled(enabled bool)
}

type nopRenderer struct{}

func (nopRenderer) ShowUserMessage(history.Turn)                    {}
func (nopRenderer) ShowMessage(history.Turn)                        {}
func (nopRenderer) BeginStreaming(*StreamingMessage)                {}
func (nopRenderer) UpdateStreaming(*StreamingMessage)               {}
func (nopRenderer) FinishStreaming(*StreamingMessage, history.Turn) {}
func (nopRenderer) SetInputEnabled(bool)                            {}
