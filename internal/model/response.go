package model

import "time"

type ChatResponse struct {
	Choices  []Choice `json:"choices"`
	Fallback bool     `json:"fallback,omitempty"`
	Mode     string   `json:"mode,omitempty"` // live | mock | fallback
	Error    string   `json:"error,omitempty"`
	Model    string   `json:"model,omitempty"`
	Usage    *Usage   `json:"usage,omitempty"`
	Image    *Image   `json:"image,omitempty"`
}

type Choice struct {
	Message ChoiceMessage `json:"message"`
}

type ChoiceMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Image illustrates a reply. RevisedPrompt equals Prompt for placeholders.
type Image struct {
	URL           string `json:"url"`
	Prompt        string `json:"prompt"`
	RevisedPrompt string `json:"revised_prompt"`
}

type ErrorResponse struct {
	Error            string `json:"error"`
	FallbackResponse string `json:"fallback_response,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatResponse wraps a single assistant message.
func NewChatResponse(content string) *ChatResponse {
	return &ChatResponse{
		Choices: []Choice{{Message: ChoiceMessage{Content: content, Role: "assistant"}}},
	}
}

// Content returns the first choice's text, or "" if there is none.
func (r *ChatResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
