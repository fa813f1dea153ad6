package handlers

import (
	"context"
	"net/http"

	"yusrai/internal/blueprint"
	"yusrai/internal/metrics"
	"yusrai/internal/middleware"
	"yusrai/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AutomationGenerator produces a raw LLM reply for a user message.
// The concrete implementation is services.LLMService; tests stub it.
type AutomationGenerator interface {
	GenerateAutomation(ctx context.Context, userMessage string) (string, error)
}

// ChatHandler drives one conversational turn: generate, parse, persist,
// and keep the automation's platform list in sync with the reply.
type ChatHandler struct {
	llm         AutomationGenerator
	responses   *services.ResponseService
	automations *services.AutomationService
	logger      *logrus.Logger
}

func NewChatHandler(llm AutomationGenerator, responses *services.ResponseService, automations *services.AutomationService, logger *logrus.Logger) *ChatHandler {
	return &ChatHandler{
		llm:         llm,
		responses:   responses,
		automations: automations,
		logger:      logger,
	}
}

type ChatRequest struct {
	Message       string `json:"message" binding:"required"`
	ChatMessageID string `json:"chat_message_id"`
}

// Chat handles POST /api/automations/:id/chat.
func (h *ChatHandler) Chat(c *gin.Context) {
	automationID := c.Param("id")
	if _, err := h.automations.Get(c.Request.Context(), automationID); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Automation not found",
			Message: err.Error(),
		})
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}
	if req.ChatMessageID == "" {
		req.ChatMessageID = uuid.New().String()
	}

	raw, err := h.llm.GenerateAutomation(c.Request.Context(), req.Message)
	if err != nil {
		h.logger.Errorf("Failed to generate automation reply: %v", err)
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "Generation failed",
			Message: err.Error(),
		})
		return
	}

	result := blueprint.ParseResponse(raw)
	metrics.IncParse(result.IsPlainText)
	for _, diag := range result.Diagnostics {
		h.logger.Debugf("parse %s: %s", automationID, diag)
	}

	row, err := h.responses.SaveParsedResponse(c.Request.Context(),
		middleware.UserID(c), automationID, req.ChatMessageID, raw, result)
	if err != nil {
		h.logger.Errorf("Failed to save response: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to save response",
			Message: err.Error(),
		})
		return
	}

	if result.Structured != nil {
		if err := h.automations.SyncPlatforms(c.Request.Context(), automationID, result.Structured.Platforms); err != nil {
			h.logger.Warnf("Failed to sync platforms for %s: %v", automationID, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"response_id":     row.ID,
		"chat_message_id": req.ChatMessageID,
		"response":        raw,
		"is_plain_text":   result.IsPlainText,
		"structured":      result.Normalized,
		"metadata":        result.Metadata,
	})
}

// RegisterChatRoutes mounts the chat endpoint on the API group.
func RegisterChatRoutes(rg *gin.RouterGroup, h *ChatHandler) {
	rg.POST("/automations/:id/chat", h.Chat)
}
