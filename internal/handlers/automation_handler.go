package handlers

import (
	"net/http"
	"strconv"

	"yusrai/internal/blueprint"
	"yusrai/internal/metrics"
	"yusrai/internal/middleware"
	"yusrai/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler covers the automation lifecycle plus the derived
// surfaces: readiness verdicts, diagram projection, execution and run
// history.
type AutomationHandler struct {
	automations *services.AutomationService
	responses   *services.ResponseService
	readiness   *services.ReadinessService
	executor    *services.ExecutionService
	logger      *logrus.Logger
}

func NewAutomationHandler(automations *services.AutomationService, responses *services.ResponseService, readiness *services.ReadinessService, executor *services.ExecutionService, logger *logrus.Logger) *AutomationHandler {
	return &AutomationHandler{
		automations: automations,
		responses:   responses,
		readiness:   readiness,
		executor:    executor,
		logger:      logger,
	}
}

// CreateAutomation handles POST /api/automations.
func (h *AutomationHandler) CreateAutomation(c *gin.Context) {
	var req services.AutomationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	automation, err := h.automations.Create(c.Request.Context(), middleware.UserID(c), &req)
	if err != nil {
		h.logger.Errorf("Failed to create automation: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to create automation",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, automation)
}

// GetAutomation handles GET /api/automations/:id.
func (h *AutomationHandler) GetAutomation(c *gin.Context) {
	automation, err := h.automations.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Automation not found",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, automation)
}

// ListAutomations handles GET /api/automations.
func (h *AutomationHandler) ListAutomations(c *gin.Context) {
	automations, err := h.automations.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		h.logger.Errorf("Failed to list automations: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list automations",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"automations": automations})
}

type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus handles PUT /api/automations/:id/status.
func (h *AutomationHandler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	if err := h.automations.SetStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		status := http.StatusBadRequest
		if err.Error() == "automation not found" {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error:   "Failed to update status",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Status updated"})
}

// DeleteAutomation handles DELETE /api/automations/:id.
func (h *AutomationHandler) DeleteAutomation(c *gin.Context) {
	if err := h.automations.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Automation not found",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "Automation deleted"})
}

// GetReadiness handles GET /api/automations/:id/readiness. The verdict
// is always computed fresh.
func (h *AutomationHandler) GetReadiness(c *gin.Context) {
	if _, err := h.automations.Get(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Automation not found",
			Message: err.Error(),
		})
		return
	}
	ready := h.readiness.GetExecutionReadiness(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	c.JSON(http.StatusOK, ready)
}

// GetDiagram handles GET /api/automations/:id/diagram.
func (h *AutomationHandler) GetDiagram(c *gin.Context) {
	bp, sa, err := h.responses.GetLatestBlueprint(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.logger.Errorf("Failed to load blueprint: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to load blueprint",
			Message: err.Error(),
		})
		return
	}
	diagram := blueprint.ProjectDiagram(sa, bp)
	if diagram == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error:   "Diagram not available",
			Message: "automation has no diagrammable blueprint yet",
		})
		return
	}
	c.JSON(http.StatusOK, diagram)
}

// Execute handles POST /api/automations/:id/execute. Refusals are 409s
// with the structured verdict, not server errors.
func (h *AutomationHandler) Execute(c *gin.Context) {
	result, err := h.executor.ExecuteLatest(c.Request.Context(),
		c.Param("id"), middleware.UserID(c), blueprint.TriggerManual)
	if err != nil {
		h.logger.Errorf("Failed to execute automation: %v", err)
		metrics.IncDispatch("error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Execution failed",
			Message: err.Error(),
		})
		return
	}

	switch {
	case result.Success:
		metrics.IncDispatch("success")
		c.JSON(http.StatusOK, result)
	case result.RunID == "":
		// refused before a run started
		metrics.IncDispatch("refused")
		c.JSON(http.StatusConflict, result)
	default:
		metrics.IncDispatch("failed")
		c.JSON(http.StatusOK, result)
	}
}

// ListRuns handles GET /api/automations/:id/runs.
func (h *AutomationHandler) ListRuns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	runs, err := h.executor.ListRuns(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		h.logger.Errorf("Failed to list runs: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to list runs",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// RegisterAutomationRoutes mounts the automation endpoints on the API
// group.
func RegisterAutomationRoutes(rg *gin.RouterGroup, h *AutomationHandler) {
	rg.POST("/automations", h.CreateAutomation)
	rg.GET("/automations", h.ListAutomations)
	rg.GET("/automations/:id", h.GetAutomation)
	rg.PUT("/automations/:id/status", h.UpdateStatus)
	rg.DELETE("/automations/:id", h.DeleteAutomation)
	rg.GET("/automations/:id/readiness", h.GetReadiness)
	rg.GET("/automations/:id/diagram", h.GetDiagram)
	rg.POST("/automations/:id/execute", h.Execute)
	rg.GET("/automations/:id/runs", h.ListRuns)
}
