// Package service holds the streaming relay: it turns a conversation into
// either a live provider stream or a simulated fallback stream, and always
// terminates the stream with exactly one Done frame.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"vibegame-backend/internal/config"
	"vibegame-backend/internal/fallback"
	"vibegame-backend/internal/history"
	"vibegame-backend/internal/model"
	"vibegame-backend/internal/prompt"
	"vibegame-backend/internal/stream"
	"vibegame-backend/pkg/logger"
)

const (
	ModeLive     = "live"
	ModeMock     = "mock"
	ModeFallback = "fallback"
)

var (
	ErrStreamTimeout   = errors.New("upstream stream exceeded its time budget")
	ErrDownstreamWrite = errors.New("downstream write failed")
)

// FrameSink receives the relay's output. stream.Writer satisfies it; Close
// must write the terminal Done frame and be idempotent.
type FrameSink interface {
	WriteContent(text string) error
	Close() error
}

// Outcome describes how a streamed request ended.
type Outcome struct {
	Mode    string
	Reason  fallback.Reason // empty when the live stream completed cleanly
	Emitted int             // content frames flushed before the terminal frame
	Err     error
}

// Reply is the result of a non-streaming request.
type Reply struct {
	Content  string
	Mode     string
	Fallback bool
	Reason   fallback.Reason
	Model    string
	Usage    *schema.TokenUsage
	Err      error
}

type Relay struct {
	chatModel einoModel.BaseChatModel
	prompt    prompt.Builder
	responder *fallback.Responder
	cfg       config.RelayConfig
	provider  config.ProviderConfig
}

// NewRelay wires a relay. A nil chatModel means no credential is configured
// and every request is answered from the fallback responder.
func NewRelay(chatModel einoModel.BaseChatModel, builder prompt.Builder, responder *fallback.Responder, cfg config.RelayConfig, provider config.ProviderConfig) *Relay {
	if builder == nil {
		builder = prompt.Static(prompt.DungeonMaster)
	}
	if responder == nil {
		responder = fallback.New()
	}
	return &Relay{
		chatModel: chatModel,
		prompt:    builder,
		responder: responder,
		cfg:       cfg,
		provider:  provider,
	}
}

// Mode is "live" when a provider is configured and "mock" otherwise.
func (r *Relay) Mode() string {
	if r.chatModel == nil {
		return ModeMock
	}
	return ModeLive
}

func (r *Relay) messages(ctx context.Context, turns []history.Turn) []*schema.Message {
	conversation := make([]history.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role != history.RoleSystem {
			conversation = append(conversation, t)
		}
	}
	return model.ToSchemaMessages(r.prompt.Build(ctx, conversation), conversation)
}

// Stream answers turns on sink. It never returns without having closed the
// sink, so the client always sees a single Done frame.
func (r *Relay) Stream(ctx context.Context, turns []history.Turn, sink FrameSink) Outcome {
	defer func() {
		if err := sink.Close(); err != nil {
			r.entry(ctx).WithError(err).Debug("Failed to write terminal frame")
		}
	}()

	utterance := history.LastUserContent(turns)

	if r.chatModel == nil {
		// Mock mode reads as live narration, so no annotation is attached.
		emitted, err := r.simulate(ctx, sink, r.responder.Respond(utterance))
		r.logFallback(ctx, fallback.ReasonNoCredential, 0, nil)
		return Outcome{Mode: ModeMock, Reason: fallback.ReasonNoCredential, Emitted: emitted, Err: err}
	}

	streamCtx, cancel := r.streamContext(ctx)
	defer cancel()

	chunks := make(chan stream.Frame)
	var wg conc.WaitGroup
	wg.Go(func() {
		defer close(chunks)
		r.pump(streamCtx, r.messages(ctx, turns), chunks)
	})

	emitted := 0
	var upstreamErr error

loop:
	for {
		select {
		case c, ok := <-chunks:
			if !ok {
				break loop
			}
			if c.Kind == stream.KindError {
				upstreamErr = c.Err
				break loop
			}
			if err := sink.WriteContent(c.Text); err != nil {
				upstreamErr = fmt.Errorf("%w: %v", ErrDownstreamWrite, err)
				break loop
			}
			emitted++
		case <-streamCtx.Done():
			if errors.Is(streamCtx.Err(), context.DeadlineExceeded) {
				upstreamErr = ErrStreamTimeout
			} else {
				upstreamErr = streamCtx.Err()
			}
			break loop
		}
	}

	// Stops the pump, and with it the upstream connection, on every path.
	cancel()
	if recovered := wg.WaitAndRecover(); recovered != nil {
		r.entry(ctx).WithField("panic", recovered.Value).Error("Recovered panic in upstream stream")
		if upstreamErr == nil {
			upstreamErr = recovered.AsError()
		}
	}

	switch {
	case upstreamErr == nil:
		return Outcome{Mode: ModeLive, Emitted: emitted}

	case errors.Is(upstreamErr, ErrDownstreamWrite):
		r.entry(ctx).WithField("emitted", emitted).WithError(upstreamErr).Warn("Client went away, upstream closed")
		return Outcome{Mode: ModeLive, Emitted: emitted, Err: upstreamErr}

	case emitted > 0:
		// Partial output has already been rendered; end it as-is.
		r.logFallback(ctx, fallback.ReasonProviderError, emitted, upstreamErr)
		return Outcome{Mode: ModeLive, Reason: fallback.ReasonProviderError, Emitted: emitted, Err: upstreamErr}
	}

	r.logFallback(ctx, fallback.ReasonProviderError, 0, upstreamErr)
	text := r.responder.Compose(utterance, fallback.ReasonProviderError, true)
	n, err := r.simulate(ctx, sink, text)
	return Outcome{Mode: ModeFallback, Reason: fallback.ReasonProviderError, Emitted: n, Err: errors.Join(upstreamErr, err)}
}

// pump forwards provider chunks until the stream ends or ctx is cancelled.
// It owns the upstream reader and always closes it.
func (r *Relay) pump(ctx context.Context, messages []*schema.Message, out chan<- stream.Frame) {
	send := func(f stream.Frame) bool {
		select {
		case out <- f:
			return true
		case <-ctx.Done():
			return false
		}
	}

	reader, err := r.chatModel.Stream(ctx, messages, model.CallOptions(r.provider)...)
	if err != nil {
		send(stream.Error(err))
		return
	}
	defer reader.Close()

	for {
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			send(stream.Error(err))
			return
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		if !send(stream.Content(msg.Content)) {
			return
		}
	}
}

// simulate streams text word by word, as if it came from the provider.
func (r *Relay) simulate(ctx context.Context, sink FrameSink, text string) (int, error) {
	emitted := 0
	for i, word := range fallback.Words(text) {
		if i > 0 && r.cfg.SimulateDelay > 0 {
			select {
			case <-ctx.Done():
				return emitted, ctx.Err()
			case <-time.After(r.cfg.SimulateDelay):
			}
		}
		if err := sink.WriteContent(word); err != nil {
			return emitted, fmt.Errorf("%w: %v", ErrDownstreamWrite, err)
		}
		emitted++
	}
	return emitted, nil
}

// Complete answers turns with a single response.
func (r *Relay) Complete(ctx context.Context, turns []history.Turn) Reply {
	utterance := history.LastUserContent(turns)

	if r.chatModel == nil {
		r.logFallback(ctx, fallback.ReasonNoCredential, 0, nil)
		return Reply{
			Content: r.responder.Compose(utterance, fallback.ReasonNoCredential, true),
			Mode:    ModeMock,
			Reason:  fallback.ReasonNoCredential,
		}
	}

	callCtx, cancel := r.streamContext(ctx)
	defer cancel()

	var (
		msg *schema.Message
		err error
		pc  panics.Catcher
	)
	pc.Try(func() {
		msg, err = r.chatModel.Generate(callCtx, r.messages(ctx, turns), model.CallOptions(r.provider)...)
	})
	if recovered := pc.Recovered(); recovered != nil {
		r.entry(ctx).WithField("panic", recovered.Value).Error("Recovered panic in provider call")
		err = recovered.AsError()
	}
	if err == nil && (msg == nil || msg.Content == "") {
		err = model.ErrEmptyResponse
	}

	if err != nil {
		r.logFallback(ctx, fallback.ReasonProviderError, 0, err)
		return Reply{
			Content:  r.responder.Compose(utterance, fallback.ReasonProviderError, true),
			Mode:     ModeFallback,
			Fallback: true,
			Reason:   fallback.ReasonProviderError,
			Err:      err,
		}
	}

	reply := Reply{Content: msg.Content, Mode: ModeLive, Model: r.provider.Model}
	if msg.ResponseMeta != nil {
		reply.Usage = msg.ResponseMeta.Usage
	}
	return reply
}

func (r *Relay) streamContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.StreamTimeout > 0 {
		return context.WithTimeout(ctx, r.cfg.StreamTimeout)
	}
	return context.WithCancel(ctx)
}

func (r *Relay) logFallback(ctx context.Context, reason fallback.Reason, emitted int, err error) {
	entry := r.entry(ctx).WithFields(logrus.Fields{
		"reason":  reason,
		"emitted": emitted,
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if emitted > 0 {
		entry.Warn("Upstream failed mid-stream, keeping partial output")
		return
	}
	entry.Warn("Falling back to canned narration")
}

func (r *Relay) entry(ctx context.Context) *logrus.Entry {
	return logger.WithFields(map[string]any{"request_id": RequestID(ctx)})
}

type requestIDKey struct{}

// WithRequestID tags ctx so relay log lines can be correlated.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
