package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"yusrai/internal/blueprint"
	"yusrai/internal/middleware"
	"yusrai/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// CredentialHandler saves and tests platform credentials. Credential
// values never appear in responses; only presence and test outcomes do.
type CredentialHandler struct {
	credentials *services.CredentialService
	responses   *services.ResponseService
	logger      *logrus.Logger
}

func NewCredentialHandler(credentials *services.CredentialService, responses *services.ResponseService, logger *logrus.Logger) *CredentialHandler {
	return &CredentialHandler{
		credentials: credentials,
		responses:   responses,
		logger:      logger,
	}
}

type SaveCredentialRequest struct {
	PlatformName string            `json:"platform_name" binding:"required"`
	Fields       map[string]string `json:"fields" binding:"required"`
}

// SaveCredential handles POST /api/automations/:id/credentials.
func (h *CredentialHandler) SaveCredential(c *gin.Context) {
	var req SaveCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	row, err := h.credentials.SaveCredential(c.Request.Context(),
		c.Param("id"), req.PlatformName, middleware.UserID(c), req.Fields)
	if err != nil {
		h.logger.Errorf("Failed to save credential: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to save credential",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Credential saved",
		Data: gin.H{
			"platform_name": row.PlatformName,
			"is_tested":     row.IsTested,
		},
	})
}

type TestCredentialRequest struct {
	TestPayload *blueprint.TestPayload `json:"test_payload"`
}

// TestCredential handles POST /api/automations/:id/credentials/:platform/test.
// Without an explicit payload in the body, the payload stored with the
// latest structured automation is used.
func (h *CredentialHandler) TestCredential(c *gin.Context) {
	automationID := c.Param("id")
	platform := c.Param("platform")

	var req TestCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Message: err.Error(),
		})
		return
	}

	payload := req.TestPayload
	if payload == nil {
		stored, err := h.storedTestPayload(c, automationID, platform)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "No test payload",
				Message: err.Error(),
			})
			return
		}
		payload = stored
	}

	row, err := h.credentials.TestCredential(c.Request.Context(),
		automationID, platform, middleware.UserID(c), *payload)
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "no credential saved") {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{
			Error:   "Credential test failed",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"platform_name":    row.PlatformName,
		"is_tested":        row.IsTested,
		"last_test_status": row.LastTestStatus,
		"tested_at":        row.TestedAt,
	})
}

// GetStatus handles GET /api/automations/:id/credentials/:platform.
func (h *CredentialHandler) GetStatus(c *gin.Context) {
	exists, isTested, lastStatus, err := h.credentials.GetTestStatus(c.Request.Context(),
		c.Param("id"), c.Param("platform"), middleware.UserID(c))
	if err != nil {
		h.logger.Errorf("Failed to read credential status: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "Failed to read credential status",
			Message: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"platform_name":    c.Param("platform"),
		"exists":           exists,
		"is_tested":        isTested,
		"last_test_status": lastStatus,
	})
}

func (h *CredentialHandler) storedTestPayload(c *gin.Context, automationID, platform string) (*blueprint.TestPayload, error) {
	sa, _, err := h.responses.GetLatestStructured(c.Request.Context(), automationID)
	if err != nil {
		return nil, err
	}
	if sa != nil {
		for name, payload := range sa.TestPayloads {
			if strings.EqualFold(name, platform) {
				p := payload
				return &p, nil
			}
		}
	}
	return nil, fmt.Errorf("no test payload stored for platform %s", platform)
}

// RegisterCredentialRoutes mounts the credential endpoints on the API
// group.
func RegisterCredentialRoutes(rg *gin.RouterGroup, h *CredentialHandler) {
	rg.POST("/automations/:id/credentials", h.SaveCredential)
	rg.GET("/automations/:id/credentials/:platform", h.GetStatus)
	rg.POST("/automations/:id/credentials/:platform/test", h.TestCredential)
}
