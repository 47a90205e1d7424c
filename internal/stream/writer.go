package stream

import (
	"io"
	"net/http"
	"sync"
)

// Writer encodes frames onto w, flushing after each one so every token
// reaches the client as soon as it is produced. At most one Done frame is
// ever written; content after it is rejected.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	done    bool
	frames  int
}

func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(http.Flusher); ok {
		sw.flusher = f
	}
	return sw
}

// NewSSEWriter prepares an HTTP response for streaming and wraps it.
func NewSSEWriter(w http.ResponseWriter) *Writer {
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return NewWriter(w)
}

func (s *Writer) WriteContent(text string) error {
	return s.write(Content(text))
}

// Close writes the Done frame. Calling it again is a no-op.
func (s *Writer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	return s.emit(Done())
}

func (s *Writer) write(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrStreamClosed
	}
	return s.emit(f)
}

func (s *Writer) emit(f Frame) error {
	data, err := Encode(f)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	s.frames++
	return nil
}

// Closed reports whether Done has been written.
func (s *Writer) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Frames counts the frames successfully written, Done included.
func (s *Writer) Frames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}
