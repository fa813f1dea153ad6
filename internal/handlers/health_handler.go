package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"yusrai/internal/metrics"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthHandler reports service liveness plus a database probe and the
// pipeline counters.
type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Services  map[string]ServiceInfo `json:"services"`
	System    SystemInfo             `json:"system"`
}

type ServiceInfo struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

type SystemInfo struct {
	Uptime    string `json:"uptime"`
	GoVersion string `json:"go_version"`
}

var startTime = time.Now()

// Health handles GET /health.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   "1.0.0",
		Timestamp: time.Now().UTC(),
		Services:  make(map[string]ServiceInfo),
		System: SystemInfo{
			Uptime:    time.Since(startTime).String(),
			GoVersion: runtime.Version(),
		},
	}

	code := http.StatusOK
	if h.db != nil {
		start := time.Now()
		sqlDB, err := h.db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		info := ServiceInfo{Status: "healthy", Latency: time.Since(start).String()}
		if err != nil {
			info.Status = "unhealthy"
			info.Error = err.Error()
			response.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		response.Services["database"] = info
	}

	c.JSON(code, response)
}

// Metrics handles GET /metrics with the pipeline counters.
func (h *HealthHandler) Metrics(c *gin.Context) {
	parseTotal, plainText := metrics.ParseSnapshot()
	dispatchTotal, byVerdict := metrics.DispatchSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"parse": gin.H{
			"total":      parseTotal,
			"plain_text": plainText,
		},
		"dispatch": gin.H{
			"total":      dispatchTotal,
			"by_verdict": byVerdict,
		},
	})
}
