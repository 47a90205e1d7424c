package model

import (
	"context"
	"fmt"

	einoModel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"vibegame-backend/internal/config"
	"vibegame-backend/internal/utils"
)

type geminiChatModel struct {
	client      *genai.Client
	model       string
	maxTokens   int
	temperature float32
}

var _ einoModel.BaseChatModel = (*geminiChatModel)(nil)

func newGeminiChatModel(ctx context.Context, cfg config.ProviderConfig) (*geminiChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: utils.NewHTTPClient(cfg.Timeout, cfg.DebugRequest),
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &geminiChatModel{
		client:      client,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}, nil
}

// contents splits the system prompt out of messages, since Gemini takes it
// as a separate instruction, and maps assistant turns to the "model" role.
func (m *geminiChatModel) contents(messages []*schema.Message, opts []einoModel.Option) (string, []*genai.Content, *genai.GenerateContentConfig) {
	options := einoModel.GetCommonOptions(&einoModel.Options{
		Model:       &m.model,
		MaxTokens:   &m.maxTokens,
		Temperature: &m.temperature,
	}, opts...)

	cfg := &genai.GenerateContentConfig{}
	if options.Temperature != nil {
		temperature := *options.Temperature
		cfg.Temperature = &temperature
	}
	if options.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*options.MaxTokens)
	}

	var contents []*genai.Content
	for _, msg := range messages {
		switch msg.Role {
		case schema.System:
			cfg.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: msg.Content}},
			}
		case schema.Assistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}

	modelName := m.model
	if options.Model != nil {
		modelName = *options.Model
	}
	return modelName, contents, cfg
}

func (m *geminiChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.Message, error) {
	modelName, contents, cfg := m.contents(messages, opts)

	resp, err := m.client.Models.GenerateContent(ctx, modelName, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, ErrEmptyResponse
	}

	msg := &schema.Message{Role: schema.Assistant, Content: text}
	if u := resp.UsageMetadata; u != nil {
		msg.ResponseMeta = &schema.ResponseMeta{
			Usage: &schema.TokenUsage{
				PromptTokens:     int(u.PromptTokenCount),
				CompletionTokens: int(u.CandidatesTokenCount),
				TotalTokens:      int(u.TotalTokenCount),
			},
		}
	}
	return msg, nil
}

func (m *geminiChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...einoModel.Option) (*schema.StreamReader[*schema.Message], error) {
	modelName, contents, cfg := m.contents(messages, opts)

	streamCtx, cancel := context.WithCancel(ctx)
	reader, writer := schema.Pipe[*schema.Message](16)

	go func() {
		defer cancel()
		defer writer.Close()

		for resp, err := range m.client.Models.GenerateContentStream(streamCtx, modelName, contents, cfg) {
			if err != nil {
				writer.Send(nil, fmt.Errorf("gemini stream: %w", err))
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			if closed := writer.Send(&schema.Message{Role: schema.Assistant, Content: text}, nil); closed {
				return
			}
		}
	}()

	return reader, nil
}
