// Package client sends a conversation to the relay and turns the returned
// event stream into a live assistant message.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vibegame-backend/internal/fallback"
	"vibegame-backend/internal/history"
	"vibegame-backend/internal/model"
	"vibegame-backend/internal/stream"
	"vibegame-backend/internal/utils"
	"vibegame-backend/pkg/logger"
)

var (
	ErrSendInProgress = errors.New("a message is already being sent")
	ErrEmptyMessage   = errors.New("message is empty")
)

const readBufferSize = 4096

type Options struct {
	RelayURL   string
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxHistory int
	Renderer   Renderer
	Responder  *fallback.Responder

	// SimulateStreaming reveals local fallback text word by word, waiting
	// between SimulateDelay and 3*SimulateDelay before each word.
	SimulateStreaming bool
	SimulateDelay     time.Duration
}

// Session owns one conversation. Only one Send may be in flight at a time.
type Session struct {
	opts     Options
	client   *http.Client
	renderer Renderer

	busy atomic.Bool

	mu      sync.Mutex
	history *history.History
}

func NewSession(opts Options) *Session {
	s := &Session{
		opts:     opts,
		client:   opts.HTTPClient,
		renderer: opts.Renderer,
		history:  history.New(opts.MaxHistory),
	}
	if s.client == nil {
		s.client = utils.NewHTTPClient(opts.Timeout, false)
	}
	if s.renderer == nil {
		s.renderer = nopRenderer{}
	}
	if s.opts.Responder == nil {
		s.opts.Responder = fallback.New()
	}
	return s
}

// History returns a copy of the conversation so far.
func (s *Session) History() []history.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Turns()
}

// Busy reports whether a Send is in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

func (s *Session) appendTurn(t history.Turn) []history.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.Append(t)
	return s.history.Turns()
}

// Send appends utterance to the conversation, asks the relay for a reply
// and returns the assistant turn that was added. Every failure is absorbed
// into a locally generated reply; only misuse is reported as an error.
func (s *Session) Send(ctx context.Context, utterance string) (history.Turn, error) {
	if strings.TrimSpace(utterance) == "" {
		return history.Turn{}, ErrEmptyMessage
	}
	if !s.busy.CompareAndSwap(false, true) {
		return history.Turn{}, ErrSendInProgress
	}
	defer s.busy.Store(false)

	s.renderer.SetInputEnabled(false)
	defer s.renderer.SetInputEnabled(true)

	user := history.UserTurn(utterance)
	turns := s.appendTurn(user)
	s.renderer.ShowUserMessage(user)

	resp, err := s.post(ctx, turns)
	if err != nil {
		return s.localFallback(ctx, utterance, fallback.ReasonNetworkError, err), nil
	}
	defer resp.Body.Close()

	if isJSON(resp.Header.Get("Content-Type")) {
		return s.readJSON(ctx, utterance, resp.Body), nil
	}
	return s.readStream(ctx, utterance, resp.Body), nil
}

func (s *Session) post(ctx context.Context, turns []history.Turn) (*http.Response, error) {
	payload, err := json.Marshal(map[string]any{
		"messages": turns,
		"stream":   true,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.RelayURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", stream.ContentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("relay responded %s", resp.Status)
	}
	return resp, nil
}

// readStream decodes frames as bytes arrive. The streaming message is
// created on the first byte and finalized on Done or at end of body.
func (s *Session) readStream(ctx context.Context, utterance string, body io.Reader) history.Turn {
	dec := stream.NewDecoder()
	buf := make([]byte, readBufferSize)
	var msg *StreamingMessage

	// The message is opened on the first content frame, so a stream that
	// breaks before carrying any narration falls back instead of leaving an
	// empty turn behind.
	apply := func(frames []stream.Frame) {
		for _, f := range frames {
			if f.Kind != stream.KindContent || f.Text == "" {
				continue
			}
			if msg == nil {
				msg = s.beginStreaming()
			}
			msg.append(f.Text)
			s.renderer.UpdateStreaming(msg)
		}
	}

	for !dec.Done() {
		n, err := body.Read(buf)
		if n > 0 {
			apply(dec.Feed(buf[:n]))
		}
		if err == nil {
			continue
		}

		apply(dec.Flush())
		if msg == nil {
			if errors.Is(err, io.EOF) {
				return s.localFallback(ctx, utterance, fallback.ReasonMalformedResponse, errors.New("stream carried no content"))
			}
			return s.localFallback(ctx, utterance, fallback.ReasonNetworkError, err)
		}

		if !dec.Done() {
			entry := logger.WithFields(map[string]any{
				"message_id": msg.ID,
				"received":   len(msg.Text()),
				"dropped":    dec.Dropped(),
			})
			if !errors.Is(err, io.EOF) {
				entry = entry.WithError(err)
			}
			entry.Warn("Stream ended without a terminal frame, finalizing")
		}
		break
	}

	if msg == nil {
		return s.localFallback(ctx, utterance, fallback.ReasonMalformedResponse, errors.New("stream carried no content"))
	}
	return s.finish(msg)
}

func (s *Session) readJSON(ctx context.Context, utterance string, body io.Reader) history.Turn {
	var resp model.ChatResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return s.localFallback(ctx, utterance, fallback.ReasonMalformedResponse, err)
	}
	if resp.Content() == "" {
		return s.localFallback(ctx, utterance, fallback.ReasonMalformedResponse, errors.New("response carries no content"))
	}

	turn := history.AssistantTurn(resp.Content())
	s.appendTurn(turn)
	s.renderer.ShowMessage(turn)
	return turn
}

// localFallback answers without the relay, either all at once or by
// revealing the text word by word.
func (s *Session) localFallback(ctx context.Context, utterance string, reason fallback.Reason, cause error) history.Turn {
	logger.WithFields(map[string]any{
		"reason": reason,
		"error":  cause,
	}).Warn("Relay unavailable, using local narration")

	text := s.opts.Responder.Compose(utterance, reason, true)

	if !s.opts.SimulateStreaming {
		turn := history.AssistantTurn(text)
		s.appendTurn(turn)
		s.renderer.ShowMessage(turn)
		return turn
	}

	msg := s.beginStreaming()
	for i, word := range fallback.Words(text) {
		if i > 0 && s.opts.SimulateDelay > 0 {
			jitter := time.Duration(rand.Int64N(int64(2*s.opts.SimulateDelay) + 1))
			select {
			case <-ctx.Done():
			case <-time.After(s.opts.SimulateDelay + jitter):
			}
		}
		msg.append(word)
		s.renderer.UpdateStreaming(msg)
	}
	return s.finish(msg)
}

func (s *Session) beginStreaming() *StreamingMessage {
	msg := &StreamingMessage{
		ID:        uuid.NewString(),
		Role:      history.RoleAssistant,
		Streaming: true,
	}
	s.renderer.BeginStreaming(msg)
	return msg
}

func (s *Session) finish(msg *StreamingMessage) history.Turn {
	msg.Streaming = false
	turn := history.AssistantTurn(msg.Text())
	s.appendTurn(turn)
	s.renderer.FinishStreaming(msg, turn)
	return turn
}

func isJSON(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "application/json"
}
