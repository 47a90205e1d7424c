package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibegame-backend/internal/config"
	"vibegame-backend/internal/fallback"
	"vibegame-backend/internal/history"
	"vibegame-backend/internal/prompt"
)

type fakeModel struct {
	tokens   []string
	endErr   error // sent after tokens
	openErr  error
	panicMsg string
	hang     bool
	endless  bool

	reply  *schema.Message
	genErr error

	mu       sync.Mutex
	received []*schema.Message
	stopped  atomic.Bool
}

func (f *fakeModel) record(msgs []*schema.Message) {
	f.mu.Lock()
	f.received = msgs
	f.mu.Unlock()
}

func (f *fakeModel) Generate(_ context.Context, msgs []*schema.Message, _ ...einoModel.Option) (*schema.Message, error) {
	f.record(msgs)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.reply, f.genErr
}

func (f *fakeModel) Stream(ctx context.Context, msgs []*schema.Message, _ ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	f.record(msgs)
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	if f.openErr != nil {
		return nil, f.openErr
	}

	reader, writer := schema.Pipe[*schema.Message](1)
	go func() {
		defer writer.Close()
		for _, tok := range f.tokens {
			if writer.Send(schema.AssistantMessage(tok, nil), nil) {
				f.stopped.Store(true)
				return
			}
		}
		for f.endless {
			if writer.Send(schema.AssistantMessage("more ", nil), nil) {
				f.stopped.Store(true)
				return
			}
		}
		if f.hang {
			<-ctx.Done()
			writer.Send(nil, ctx.Err())
			return
		}
		if f.endErr != nil {
			writer.Send(nil, f.endErr)
		}
	}()
	return reader, nil
}

type recordingSink struct {
	mu       sync.Mutex
	contents []string
	dones    int
	failAt   int // 1-based write that fails; 0 never fails
	writes   int
}

func (s *recordingSink) WriteContent(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dones > 0 {
		return errors.New("write after done")
	}
	s.writes++
	if s.failAt > 0 && s.writes >= s.failAt {
		return errors.New("broken pipe")
	}
	s.contents = append(s.contents, text)
	return nil
}

func (s *recordingSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dones++
	return nil
}

func (s *recordingSink) text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.contents, "")
}

func newRelay(m einoModel.BaseChatModel, timeout time.Duration) *Relay {
	return NewRelay(m, prompt.Static("narrate"), fallback.New(),
		config.RelayConfig{StreamTimeout: timeout},
		config.ProviderConfig{Model: "fake-model", MaxTokens: 200, Temperature: 0.8})
}

func attack() []history.Turn {
	return []history.Turn{history.UserTurn("I attack the goblin")}
}

func combatLine() string {
	line, _ := fallback.Match("attack")
	return line
}

func TestStreamWithoutCredentialSimulatesMockNarration(t *testing.T) {
	relay := newRelay(nil, 0)
	sink := &recordingSink{}

	out := relay.Stream(context.Background(), attack(), sink)

	assert.Equal(t, ModeMock, out.Mode)
	assert.Equal(t, fallback.ReasonNoCredential, out.Reason)
	assert.Equal(t, combatLine(), sink.text())
	assert.Equal(t, len(fallback.Words(combatLine())), len(sink.contents))
	assert.Equal(t, 1, sink.dones)
	assert.Equal(t, ModeMock, relay.Mode())
}

func TestStreamForwardsProviderTokens(t *testing.T) {
	m := &fakeModel{tokens: []string{"The ", "goblin ", "falls."}}
	relay := newRelay(m, time.Second)
	sink := &recordingSink{}

	out := relay.Stream(context.Background(), attack(), sink)

	assert.Equal(t, ModeLive, out.Mode)
	assert.Empty(t, out.Reason)
	assert.NoError(t, out.Err)
	assert.Equal(t, 3, out.Emitted)
	assert.Equal(t, []string{"The ", "goblin ", "falls."}, sink.contents)
	assert.Equal(t, 1, sink.dones)
}

func TestStreamKeepsPartialOutputOnMidStreamError(t *testing.T) {
	m := &fakeModel{tokens: []string{"Hello ", "there"}, endErr: errors.New("upstream reset")}
	relay := newRelay(m, time.Second)
	sink := &recordingSink{}

	out := relay.Stream(context.Background(), attack(), sink)

	assert.Equal(t, "Hello there", sink.text())
	assert.Equal(t, 1, sink.dones)
	assert.Equal(t, fallback.ReasonProviderError, out.Reason)
	assert.Equal(t, 2, out.Emitted)
	assert.Error(t, out.Err)
}

func TestStreamFallsBackWhenProviderRejects(t *testing.T) {
	m := &fakeModel{openErr: errors.New("401 unauthorized")}
	relay := newRelay(m, time.Second)
	sink := &recordingSink{}

	out := relay.Stream(context.Background(), attack(), sink)

	assert.Equal(t, ModeFallback, out.Mode)
	assert.Equal(t, fallback.ReasonProviderError, out.Reason)
	assert.Equal(t, fallback.Annotate(combatLine(), fallback.ReasonProviderError.Annotation()), sink.text())
	assert.Equal(t, 1, sink.dones)
}

func TestStreamRecoversFromPanic(t *testing.T) {
	m := &fakeModel{panicMsg: "nil map write"}
	relay := newRelay(m, time.Second)
	sink := &recordingSink{}

	out := relay.Stream(context.Background(), attack(), sink)

	assert.Equal(t, ModeFallback, out.Mode)
	assert.Contains(t, sink.text(), combatLine())
	assert.Equal(t, 1, sink.dones)
}

func TestStreamTimeoutIsProviderError(t *testing.T) {
	m := &fakeModel{hang: true}
	relay := newRelay(m, 20*time.Millisecond)
	sink := &recordingSink{}

	out := relay.Stream(context.Background(), attack(), sink)

	assert.Equal(t, ModeFallback, out.Mode)
	assert.ErrorIs(t, out.Err, ErrStreamTimeout)
	assert.Equal(t, 1, sink.dones)
}

func TestStreamClosesUpstreamWhenClientGoesAway(t *testing.T) {
	m := &fakeModel{endless: true}
	relay := newRelay(m, 5*time.Second)
	sink := &recordingSink{failAt: 3}

	out := relay.Stream(context.Background(), attack(), sink)

	assert.ErrorIs(t, out.Err, ErrDownstreamWrite)
	assert.Equal(t, 2, out.Emitted)
	assert.Eventually(t, m.stopped.Load, time.Second, 5*time.Millisecond)
}

func TestStreamSendsSystemPromptAndDropsSystemTurns(t *testing.T) {
	m := &fakeModel{tokens: []string{"ok"}}
	relay := newRelay(m, time.Second)
	turns := []history.Turn{
		{Role: history.RoleSystem, Content: "ignore me"},
		history.UserTurn("hi"),
		history.AssistantTurn("hello"),
		history.UserTurn("look around"),
	}

	relay.Stream(context.Background(), turns, &recordingSink{})

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.received, 4)
	assert.Equal(t, schema.System, m.received[0].Role)
	assert.Equal(t, "narrate", m.received[0].Content)
	for _, msg := range m.received[1:] {
		assert.NotEqual(t, schema.System, msg.Role)
	}
}

func TestSimulateHonoursDelay(t *testing.T) {
	relay := NewRelay(nil, nil, nil, config.RelayConfig{SimulateDelay: 2 * time.Millisecond}, config.ProviderConfig{})
	sink := &recordingSink{}

	start := time.Now()
	relay.Stream(context.Background(), attack(), sink)

	words := len(fallback.Words(combatLine()))
	assert.GreaterOrEqual(t, time.Since(start), time.Duration(words-1)*2*time.Millisecond)
	assert.Equal(t, combatLine(), sink.text())
}

func TestCompleteModes(t *testing.T) {
	t.Run("mock", func(t *testing.T) {
		reply := newRelay(nil, 0).Complete(context.Background(), attack())
		assert.Equal(t, ModeMock, reply.Mode)
		assert.False(t, reply.Fallback)
		assert.Equal(t, fallback.Annotate(combatLine(), fallback.ReasonNoCredential.Annotation()), reply.Content)
	})

	t.Run("live", func(t *testing.T) {
		m := &fakeModel{reply: &schema.Message{
			Role:    schema.Assistant,
			Content: "The goblin flees.",
			ResponseMeta: &schema.ResponseMeta{
				Usage: &schema.TokenUsage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
			},
		}}
		reply := newRelay(m, time.Second).Complete(context.Background(), attack())
		assert.Equal(t, ModeLive, reply.Mode)
		assert.Equal(t, "The goblin flees.", reply.Content)
		assert.Equal(t, "fake-model", reply.Model)
		require.NotNil(t, reply.Usage)
		assert.Equal(t, 14, reply.Usage.TotalTokens)
	})

	t.Run("provider error", func(t *testing.T) {
		m := &fakeModel{genErr: errors.New("503")}
		reply := newRelay(m, time.Second).Complete(context.Background(), attack())
		assert.Equal(t, ModeFallback, reply.Mode)
		assert.True(t, reply.Fallback)
		assert.Equal(t, fallback.ReasonProviderError, reply.Reason)
		assert.Contains(t, reply.Content, fallback.ReasonProviderError.Annotation())
	})

	t.Run("panic", func(t *testing.T) {
		m := &fakeModel{panicMsg: "boom"}
		reply := newRelay(m, time.Second).Complete(context.Background(), attack())
		assert.True(t, reply.Fallback)
		assert.Error(t, reply.Err)
	})
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Empty(t, RequestID(context.Background()))
}
