// Package stream implements the frame protocol spoken between the relay and
// its clients: server-sent-event lines carrying {"content": ...} payloads and
// a final [DONE] sentinel.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// Marker prefixes every frame line.
	Marker = "data: "
	// Sentinel is the payload of the terminal frame.
	Sentinel = "[DONE]"
	// Delimiter terminates every frame.
	Delimiter = "\n\n"

	ContentType = "text/event-stream"
)

var (
	ErrStreamClosed = errors.New("stream already terminated")
	ErrNotEncodable = errors.New("frame kind is not encodable")
)

type Kind int

const (
	KindContent Kind = iota
	KindDone
	// KindError never reaches the wire. The relay uses it internally to
	// carry an upstream failure to the point where the stream is finished.
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

type Frame struct {
	Kind Kind
	Text string
	Err  error
}

func Content(text string) Frame { return Frame{Kind: KindContent, Text: text} }

func Done() Frame { return Frame{Kind: KindDone} }

func Error(err error) Frame { return Frame{Kind: KindError, Err: err} }

type payload struct {
	Content string `json:"content"`
}

// Encode serialises a Content or Done frame.
func Encode(f Frame) ([]byte, error) {
	switch f.Kind {
	case KindContent:
		data, err := json.Marshal(payload{Content: f.Text})
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(Marker)+len(data)+len(Delimiter))
		out = append(out, Marker...)
		out = append(out, data...)
		return append(out, Delimiter...), nil
	case KindDone:
		return []byte(Marker + Sentinel + Delimiter), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotEncodable, f.Kind)
}

// EncodeAll concatenates the encoding of frames in order.
func EncodeAll(frames ...Frame) ([]byte, error) {
	var out []byte
	for _, f := range frames {
		b, err := Encode(f)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	return out, nil
}
