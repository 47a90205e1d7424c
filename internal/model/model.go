// Package model builds the upstream chat model. Every provider is exposed
// as an eino BaseChatModel so the relay can stream from any of them the
// same way.
package model

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"vibegame-backend/internal/config"
	"vibegame-backend/internal/history"
	"vibegame-backend/internal/utils"
	"vibegame-backend/pkg/logger"
)

var (
	ErrNoCredential        = errors.New("no provider credential configured")
	ErrUnsupportedProvider = errors.New("unsupported model provider")
	ErrEmptyResponse       = errors.New("provider returned no content")
)

// NewChatModel creates the chat model named by cfg.Name. It returns
// ErrNoCredential when cfg carries no API key; callers treat that as mock
// mode rather than a failure.
func NewChatModel(ctx context.Context, cfg config.ProviderConfig) (einoModel.BaseChatModel, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}

	logger.Infof("Using %s model %s (key %s)", cfg.Name, cfg.Model, maskKey(cfg.APIKey))

	switch cfg.Name {
	case "openai":
		return newOpenAIChatModel(cfg), nil
	case "ark", "doubao":
		return createArkModel(ctx, cfg)
	case "qwen":
		return createQwenModel(ctx, cfg)
	case "gemini":
		return newGeminiChatModel(ctx, cfg)
	case "anthropic":
		return newAnthropicChatModel(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Name)
	}
}

func createArkModel(ctx context.Context, cfg config.ProviderConfig) (einoModel.BaseChatModel, error) {
	arkCfg := &ark.ChatModelConfig{
		APIKey: cfg.APIKey,
		Model:  cfg.Model,
		CustomHeader: map[string]string{
			"X-Ark-Thinking-Mode": "disable",
		},
	}
	if cfg.BaseURL != "" {
		arkCfg.BaseURL = cfg.BaseURL
	}

	chatModel, err := ark.NewChatModel(ctx, arkCfg)
	if err != nil {
		return nil, fmt.Errorf("create ark model: %w", err)
	}
	return chatModel, nil
}

func createQwenModel(ctx context.Context, cfg config.ProviderConfig) (einoModel.BaseChatModel, error) {
	maxTokens := cfg.MaxTokens
	temperature := cfg.Temperature
	topP := cfg.TopP

	chatModel, err := qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
		TopP:        &topP,
		Timeout:     cfg.Timeout,
		HTTPClient:  utils.NewHTTPClient(cfg.Timeout, cfg.DebugRequest),
	})
	if err != nil {
		return nil, fmt.Errorf("create qwen model: %w", err)
	}
	return chatModel, nil
}

// CallOptions are the sampling options sent with every provider call.
func CallOptions(cfg config.ProviderConfig) []einoModel.Option {
	return []einoModel.Option{
		einoModel.WithMaxTokens(cfg.MaxTokens),
		einoModel.WithTemperature(cfg.Temperature),
	}
}

// ToSchemaMessages prepends the system prompt and converts turns, dropping
// system-role turns and empty assistant turns that providers reject.
func ToSchemaMessages(systemPrompt string, turns []history.Turn) []*schema.Message {
	messages := make([]*schema.Message, 0, len(turns)+1)
	if systemPrompt != "" {
		messages = append(messages, schema.SystemMessage(systemPrompt))
	}
	for _, t := range turns {
		switch t.Role {
		case history.RoleUser:
			messages = append(messages, schema.UserMessage(t.Content))
		case history.RoleAssistant:
			if t.Content == "" {
				continue
			}
			messages = append(messages, schema.AssistantMessage(t.Content, nil))
		}
	}
	return messages
}

func maskKey(key string) string {
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-2:]
	}
	return "***"
}
