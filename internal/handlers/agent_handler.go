package handlers

import (
	"net/http"
	"strings"

	"yusrai/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AgentHandler records user decisions on recommended AI agents.
type AgentHandler struct {
	decisions *services.AgentDecisionService
	logger    *logrus.Logger
}

func NewAgentHandler(decisions *services.AgentDecisionService, logger *logrus.Logger) *AgentHandler {
	return &AgentHandler{decisions: decisions, logger: logger}
}

type AgentDecisionRequest struct {
	Status string `json:"status" binding:"required"`
}

// SetDecision handles POST /api/automations/:id/agents/:name/decision.
func (h *AgentHandler) SetDecision(c *gin.Context) {
	var req AgentDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	decision, err := h.decisions.SetDecision(c.Request.Context(),
		c.Param("id"), c.Param("name"), req.Status)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "unsupported decision") {
			status = http.StatusBadRequest
		}
		c.JSON(status, ErrorResponse{
			Error:   "Failed to record decision",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, decision)
}

// ListDecisions handles GET /api/automations/:id/agents.
func (h *AgentHandler) ListDecisions(c *gin.Context) {
	decisions, err := h.decisions.ListDecisions(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Errorf("Failed to list agent decisions: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list decisions",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"decisions": decisions})
}

// RegisterAgentRoutes mounts the agent decision endpoints on the API
// group.
func RegisterAgentRoutes(rg *gin.RouterGroup, h *AgentHandler) {
	rg.POST("/automations/:id/agents/:name/decision", h.SetDecision)
	rg.GET("/automations/:id/agents", h.ListDecisions)
}
