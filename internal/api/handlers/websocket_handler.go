package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/kcb-text2sql/backend/internal/ingestion"
	"github.com/kcb-text2sql/backend/internal/middleware/validation"
	"github.com/kcb-text2sql/backend/internal/text2sql"
	"github.com/kcb-text2sql/backend/pkg/logger"
)

const wsConvertTimeout = 60 * time.Second

type wsMessage struct {
	Type      string `json:"type"`
	Question  string `json:"question"`
	RAGDomain string `json:"rag_domain"`
}

// WebSocketHandler converts questions over a websocket. Messages on the
// socket bypass the HTTP middleware, so questions are screened here.
type WebSocketHandler struct {
	engine    Converter
	maxLength int
}

func NewWebSocketHandler(engine Converter, maxQuestionLength int) *WebSocketHandler {
	return &WebSocketHandler{
		engine:    engine,
		maxLength: maxQuestionLength,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg wsMessage
		if err := c.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read WebSocket message", zap.Error(err))
			}
			return
		}

		var err error
		switch msg.Type {
		case "ping":
			err = c.WriteJSON(map[string]string{"type": "pong"})
		case "convert":
			err = h.convert(c, msg)
		default:
			err = h.sendError(c, "unknown message type: "+msg.Type)
		}
		if err != nil {
			logger.Warn("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

func (h *WebSocketHandler) convert(c *websocket.Conn, msg wsMessage) error {
	q := validation.Sanitize(msg.Question)
	if h.maxLength > 0 && len([]rune(q)) > h.maxLength {
		return h.sendError(c, "질문이 너무 깁니다.")
	}
	if _, bad := validation.Suspicious(q); bad {
		return h.sendError(c, "Invalid question content")
	}
	domain := strings.TrimSpace(msg.RAGDomain)
	if domain != "" && !ingestion.ValidDomain(domain) {
		return h.sendError(c, "알 수 없는 RAG 도메인입니다: "+domain)
	}

	ctx, cancel := context.WithTimeout(context.Background(), wsConvertTimeout)
	defer cancel()

	var writeErr error
	req := text2sql.ConvertRequest{
		Question:  q,
		RAGDomain: domain,
		OnStage: func(stage text2sql.Stage) {
			if writeErr == nil {
				writeErr = h.sendStatus(c, stage)
			}
		},
	}

	resp, err := h.engine.Convert(ctx, req)
	if writeErr != nil {
		return writeErr
	}
	if errors.Is(err, text2sql.ErrEmptyQuestion) {
		return h.sendError(c, err.Error())
	}
	if err != nil {
		logger.Error("Failed to convert WebSocket question", zap.Error(err))
		return h.sendError(c, "Failed to convert question")
	}

	return c.WriteJSON(map[string]any{
		"type":     "complete",
		"response": resp,
	})
}

var stageMessages = map[text2sql.Stage]string{
	text2sql.StagePreprocessing: "질문을 분석하고 있습니다...",
	text2sql.StageRetrieving:    "참고 문서를 검색하고 있습니다...",
	text2sql.StageGenerating:    "SQL을 생성하고 있습니다...",
}

func (h *WebSocketHandler) sendStatus(c *websocket.Conn, stage text2sql.Stage) error {
	return c.WriteJSON(map[string]string{
		"type":    "status",
		"stage":   string(stage),
		"content": stageMessages[stage],
	})
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) error {
	return c.WriteJSON(map[string]string{
		"type":  "error",
		"error": errorMsg,
	})
}
