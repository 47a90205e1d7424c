package model

import "encoding/json"

// ChatRequest is the body accepted by the chat endpoints. Messages stays raw
// so the handler can tell "not an array" apart from "array with bad turns".
type ChatRequest struct {
	Messages json.RawMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

// IncomingTurn is one element of ChatRequest.Messages.
type IncomingTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
