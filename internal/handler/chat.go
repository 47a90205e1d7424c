package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"vibegame-backend/internal/fallback"
	"vibegame-backend/internal/history"
	"vibegame-backend/internal/model"
	"vibegame-backend/internal/service"
	"vibegame-backend/internal/stream"
	"vibegame-backend/pkg/logger"
)

var ErrInvalidMessages = errors.New("invalid messages format")

const (
	invalidMessagesBody = "Invalid messages format"
	providerUnavailable = "API temporarily unavailable"
)

// ImageGenerator illustrates a JSON reply. It may return nil.
type ImageGenerator interface {
	Generate(ctx context.Context, narration, action string) *model.Image
}

type ChatHandler struct {
	relay      *service.Relay
	maxHistory int
	images     ImageGenerator
}

func NewChatHandler(relay *service.Relay, maxHistory int) *ChatHandler {
	return &ChatHandler{
		relay:      relay,
		maxHistory: maxHistory,
	}
}

// WithImages attaches a scene image to every JSON reply.
func (h *ChatHandler) WithImages(g ImageGenerator) *ChatHandler {
	h.images = g
	return h
}

// Chat answers with JSON, or with an event stream when the body sets
// "stream": true.
func (h *ChatHandler) Chat(c *gin.Context) {
	req, turns, ok := h.bind(c)
	if !ok {
		return
	}
	if req.Stream {
		h.stream(c, turns)
		return
	}

	ctx, requestID := h.requestContext(c)
	reply := h.relay.Complete(ctx, turns)

	resp := model.NewChatResponse(reply.Content)
	resp.Mode = reply.Mode
	resp.Fallback = reply.Fallback
	if reply.Fallback {
		resp.Error = providerUnavailable
	}
	if reply.Mode == service.ModeLive {
		resp.Model = reply.Model
		if u := reply.Usage; u != nil {
			resp.Usage = &model.Usage{
				InputTokens:  u.PromptTokens,
				OutputTokens: u.CompletionTokens,
				TotalTokens:  u.TotalTokens,
			}
		}
	}

	if h.images != nil {
		resp.Image = h.images.Generate(ctx, reply.Content, history.LastUserContent(turns))
	}

	logger.WithFields(map[string]any{
		"request_id": requestID,
		"mode":       reply.Mode,
		"turns":      len(turns),
		"image":      resp.Image != nil,
	}).Info("Chat completed")

	c.JSON(http.StatusOK, resp)
}

// StreamChat always answers with an event stream.
func (h *ChatHandler) StreamChat(c *gin.Context) {
	_, turns, ok := h.bind(c)
	if !ok {
		return
	}
	h.stream(c, turns)
}

func (h *ChatHandler) stream(c *gin.Context, turns []history.Turn) {
	ctx, requestID := h.requestContext(c)

	sseWriter := stream.NewSSEWriter(c.Writer)
	c.Status(http.StatusOK)

	start := time.Now()
	out := h.relay.Stream(ctx, turns, sseWriter)

	logger.WithFields(map[string]any{
		"request_id": requestID,
		"mode":       out.Mode,
		"reason":     out.Reason,
		"emitted":    out.Emitted,
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Info("Stream finished")
}

// Health reports liveness and whether a provider credential is configured.
func (h *ChatHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, model.HealthResponse{
		Status:    "ok",
		Mode:      h.relay.Mode(),
		Timestamp: time.Now().UTC(),
	})
}

func (h *ChatHandler) Options(c *gin.Context) {
	c.Status(http.StatusOK)
}

func MethodNotAllowed(c *gin.Context) {
	c.JSON(http.StatusMethodNotAllowed, model.ErrorResponse{Error: "Method not allowed"})
}

// Recovery turns a panic into the 500 body, unless the response has already
// started, in which case the connection is simply abandoned.
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.WithFields(map[string]any{
			"panic": recovered,
			"path":  c.Request.URL.Path,
		}).Error("Recovered panic in handler")

		if c.Writer.Written() {
			c.Abort()
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, model.ErrorResponse{
			Error:            "Internal server error",
			FallbackResponse: fallback.ServerErrorText(),
		})
	})
}

func (h *ChatHandler) bind(c *gin.Context) (*model.ChatRequest, []history.Turn, bool) {
	var req model.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Debugf("Failed to parse chat request: %v", err)
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: invalidMessagesBody})
		return nil, nil, false
	}

	turns, err := parseTurns(req.Messages, h.maxHistory)
	if err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: invalidMessagesBody})
		return nil, nil, false
	}
	return &req, turns, true
}

// parseTurns accepts only a JSON array. Turns with an unknown role are
// dropped, and only the most recent maxHistory turns are kept.
func parseTurns(raw json.RawMessage, maxHistory int) ([]history.Turn, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrInvalidMessages
	}

	var incoming []model.IncomingTurn
	if err := json.Unmarshal(raw, &incoming); err != nil {
		return nil, ErrInvalidMessages
	}

	h := history.New(maxHistory)
	for _, m := range incoming {
		turn, err := history.NewTurn(history.Role(m.Role), m.Content)
		if err != nil {
			logger.Warnf("Dropping turn with role %q", m.Role)
			continue
		}
		h.Append(turn)
	}
	return h.Turns(), nil
}

func (h *ChatHandler) requestContext(c *gin.Context) (ctx context.Context, requestID string) {
	requestID = c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return service.WithRequestID(c.Request.Context(), requestID), requestID
}
