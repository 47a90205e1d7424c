package model

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vibegame-backend/internal/config"
	"vibegame-backend/internal/history"
)

func providerConfig(name, baseURL string) config.ProviderConfig {
	return config.ProviderConfig{
		Name:        name,
		APIKey:      "sk-test-0123456789",
		BaseURL:     baseURL,
		Model:       "test-model",
		MaxTokens:   200,
		Temperature: 0.8,
		TopP:        1,
		Timeout:     5 * time.Second,
	}
}

func TestNewChatModelErrors(t *testing.T) {
	cfg := providerConfig("openai", "")
	cfg.APIKey = ""
	_, err := NewChatModel(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrNoCredential)

	_, err = NewChatModel(context.Background(), providerConfig("telepathy", ""))
	assert.ErrorIs(t, err, ErrUnsupportedProvider)
}

func TestNewChatModelProviders(t *testing.T) {
	for _, name := range []string{"openai", "ark", "qwen", "gemini", "anthropic"} {
		t.Run(name, func(t *testing.T) {
			m, err := NewChatModel(context.Background(), providerConfig(name, "http://127.0.0.1:1/v1"))
			require.NoError(t, err)
			assert.NotNil(t, m)
		})
	}
}

func TestToSchemaMessages(t *testing.T) {
	msgs := ToSchemaMessages("be a narrator", []history.Turn{
		{Role: history.RoleSystem, Content: "dropped"},
		history.UserTurn("hello"),
		history.AssistantTurn(""),
		history.AssistantTurn("greetings"),
	})

	require.Len(t, msgs, 3)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "be a narrator", msgs[0].Content)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, "greetings", msgs[2].Content)
}

func openAIServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIStream(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), `"stream":true`)
		assert.Contains(t, string(body), `"max_tokens":200`)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"The ", "", "door ", "opens."} {
			io.WriteString(w, `data: {"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"`+tok+`"}}]}`+"\n\n")
		}
		io.WriteString(w, "data: [DONE]\n\n")
	})

	m := newOpenAIChatModel(providerConfig("openai", srv.URL+"/v1"))
	reader, err := m.Stream(context.Background(), ToSchemaMessages("sys", []history.Turn{history.UserTurn("open")}), CallOptions(providerConfig("openai", ""))...)
	require.NoError(t, err)
	defer reader.Close()

	var got []string
	for {
		msg, err := reader.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, msg.Content)
	}
	assert.Equal(t, []string{"The ", "door ", "opens."}, got)
}

func TestOpenAIStreamRejected(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	})

	m := newOpenAIChatModel(providerConfig("openai", srv.URL+"/v1"))
	_, err := m.Stream(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	assert.Error(t, err)
}

func TestOpenAIGenerate(t *testing.T) {
	srv := openAIServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id":"1","object":"chat.completion","model":"test-model",
			"choices":[{"index":0,"message":{"role":"assistant","content":"A torch flickers."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}
		}`)
	})

	m := newOpenAIChatModel(providerConfig("openai", srv.URL+"/v1"))
	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("look")})
	require.NoError(t, err)

	assert.Equal(t, "A torch flickers.", msg.Content)
	require.NotNil(t, msg.ResponseMeta)
	assert.Equal(t, 12, msg.ResponseMeta.Usage.TotalTokens)
	assert.Equal(t, "stop", msg.ResponseMeta.FinishReason)
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "sk-t...89", maskKey("sk-test-0123456789"))
	assert.Equal(t, "***", maskKey("short"))
}
