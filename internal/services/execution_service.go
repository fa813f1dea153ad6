package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yusrai/internal/blueprint"
	"yusrai/internal/config"
	"yusrai/internal/models"

	"github.com/google/uuid"
	"github.com/oliveagle/jsonpath"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// ExecutionResult is the structured outcome the dispatcher reports.
// Step-level failures never surface as Go errors; the caller reads
// Success, Error and the per-step results.
type ExecutionResult struct {
	RunID   string              `json:"run_id"`
	Success bool                `json:"success"`
	Error   string              `json:"error,omitempty"`
	Steps   []models.StepResult `json:"steps"`
}

// ExecutionService runs a validated blueprint step by step against real
// platform APIs, with per-step retry and on_failure policy.
type ExecutionService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	client    *http.Client
	readiness *ReadinessService
	responses *ResponseService
	hub       *ProgressHub
	cfg       config.DispatchConfig
}

func NewExecutionService(db *gorm.DB, logger *logrus.Logger, readiness *ReadinessService, responses *ResponseService, hub *ProgressHub, cfg config.DispatchConfig) *ExecutionService {
	if logger == nil {
		logger = logrus.New()
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &ExecutionService{
		db:        db,
		logger:    logger,
		readiness: readiness,
		responses: responses,
		hub:       hub,
		cfg:       cfg,
		client: &http.Client{
			Timeout:   cfg.StepTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// ExecuteLatest extracts the newest stored blueprint for the automation
// and executes it.
func (s *ExecutionService) ExecuteLatest(ctx context.Context, automationID, userID, triggerType string) (*ExecutionResult, error) {
	bp, _, err := s.responses.GetLatestBlueprint(ctx, automationID)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, automationID, userID, bp, triggerType)
}

// Execute runs a blueprint. It refuses blueprints that fail the diagram
// validity check and automations whose readiness verdict is not-ready;
// both refusals are structured results, not errors.
func (s *ExecutionService) Execute(ctx context.Context, automationID, userID string, bp *blueprint.ExecutionBlueprint, triggerType string) (*ExecutionResult, error) {
	if !blueprint.ValidateForDiagram(bp) {
		return &ExecutionResult{Success: false, Error: "automation configuration is not ready"}, nil
	}
	if ready := s.readiness.GetExecutionReadiness(ctx, automationID, userID); !ready.IsReady {
		return &ExecutionResult{
			Success: false,
			Error: fmt.Sprintf("automation is not ready: credentials %s, agents %s",
				ready.CredentialStatus, ready.AgentStatus),
		}, nil
	}

	if triggerType == "" {
		triggerType = bp.Trigger.Type
	}

	tracer := otel.Tracer("yusrai/execution")
	ctx, span := tracer.Start(ctx, "ExecutionService.Execute")
	span.SetAttributes(
		attribute.String("automation.id", automationID),
		attribute.Int("blueprint.steps", len(bp.Steps)),
	)
	defer span.End()

	run := &models.AutomationRun{
		ID:           uuid.New().String(),
		AutomationID: automationID,
		UserID:       userID,
		TriggerType:  triggerType,
		Status:       "running",
		StartedAt:    time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	s.broadcast(EventRunStarted, automationID, run.ID, map[string]interface{}{
		"trigger_type": triggerType,
		"total_steps":  len(bp.Steps),
	})

	result := &ExecutionResult{RunID: run.ID, Success: true}
	for i := range bp.Steps {
		step := &bp.Steps[i]
		stepResult := s.executeStep(ctx, step)
		stepResult.RunID = run.ID
		if err := s.db.WithContext(ctx).Create(&stepResult).Error; err != nil {
			s.logger.Warnf("execution: record step result failed: %v", err)
		}
		result.Steps = append(result.Steps, stepResult)
		s.broadcast(EventStepCompleted, automationID, run.ID, stepResult)

		if stepResult.Status == "failed" {
			if onFailure(step) == "stop" {
				result.Success = false
				result.Error = fmt.Sprintf("step %q failed: %s", step.Name, stepResult.Error)
				break
			}
			s.logger.Warnf("execution: step %s failed, continuing per error policy: %s",
				step.ID, stepResult.Error)
		}
	}

	status := "success"
	if !result.Success {
		status = "failed"
	}
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&models.AutomationRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]interface{}{
			"status": status, "error": result.Error, "finished_at": now,
		}).Error; err != nil {
		s.logger.Warnf("execution: finalize run failed: %v", err)
	}
	s.broadcast(EventRunFinished, automationID, run.ID, map[string]interface{}{
		"status": status,
		"error":  result.Error,
	})
	return result, nil
}

// ListRuns returns the automation's run history, newest first, with step
// results attached.
func (s *ExecutionService) ListRuns(ctx context.Context, automationID string, limit int) ([]models.AutomationRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []models.AutomationRun
	if err := s.db.WithContext(ctx).
		Preload("Steps").
		Where("automation_id = ?", automationID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (s *ExecutionService) executeStep(ctx context.Context, step *blueprint.Step) models.StepResult {
	result := models.StepResult{
		StepID:   step.ID,
		StepName: step.Name,
		Status:   "failed",
	}

	url := stepURL(step)
	if url == "" {
		// generic system steps have nothing to call; they document
		// workflow intent
		if step.Action.Integration == "system" {
			result.Status = "success"
			result.Attempts = 1
			return result
		}
		result.Error = "step has no url or endpoint parameter"
		result.Attempts = 1
		return result
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		result.Attempts = attempt
		httpStatus, body, err := s.callStep(ctx, step, url)
		result.HTTPStatus = httpStatus
		if err == nil {
			result.Status = "success"
			result.Response = truncate(body, 4096)
			result.Error = ""
			return result
		}
		lastErr = err
		result.Response = truncate(body, 4096)
		if attempt < s.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				result.Error = ctx.Err().Error()
				return result
			case <-time.After(s.cfg.RetryBackoff * time.Duration(attempt)):
			}
		}
	}
	result.Error = lastErr.Error()
	return result
}

func (s *ExecutionService) callStep(ctx context.Context, step *blueprint.Step, url string) (int, string, error) {
	method, body := stepRequest(step)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.StepTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	if headers, ok := step.Action.Parameters["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if sv, ok := v.(string); ok {
				req.Header.Set(k, sv)
			}
		}
	}
	if len(body) > 0 && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode >= 400 {
		return resp.StatusCode, string(raw), fmt.Errorf("%s returned %d", step.Action.Integration, resp.StatusCode)
	}
	if step.SuccessCondition != "" {
		if err := evalSuccessCondition(step.SuccessCondition, raw); err != nil {
			return resp.StatusCode, string(raw), err
		}
	}
	return resp.StatusCode, string(raw), nil
}

// stepURL resolves the target URL from the step parameters.
func stepURL(step *blueprint.Step) string {
	for _, key := range []string{"url", "endpoint"} {
		if v, ok := step.Action.Parameters[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// stepRequest maps the action onto an HTTP method and body. A method
// that is not an HTTP verb is a platform operation name: it travels in
// a POST body alongside the parameters.
func stepRequest(step *blueprint.Step) (string, []byte) {
	method := strings.ToUpper(step.Action.Method)
	switch method {
	case http.MethodGet, http.MethodDelete, http.MethodHead:
		return method, nil
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return method, stepBody(step)
	default:
		payload := map[string]interface{}{
			"method":     step.Action.Method,
			"parameters": requestParameters(step),
		}
		b, _ := json.Marshal(payload)
		return http.MethodPost, b
	}
}

func stepBody(step *blueprint.Step) []byte {
	if body, present := step.Action.Parameters["body"]; present {
		b, err := json.Marshal(body)
		if err == nil {
			return b
		}
	}
	b, _ := json.Marshal(requestParameters(step))
	return b
}

// requestParameters strips transport-only keys before a step body is
// built from the parameter map.
func requestParameters(step *blueprint.Step) map[string]interface{} {
	out := make(map[string]interface{}, len(step.Action.Parameters))
	for k, v := range step.Action.Parameters {
		switch k {
		case "url", "endpoint", "headers", "workflow_item", "original":
		default:
			out[k] = v
		}
	}
	return out
}

// evalSuccessCondition checks a "$.path" or "$.path==value" condition
// against the decoded response body.
func evalSuccessCondition(condition string, body []byte) error {
	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Errorf("success condition needs a JSON response: %w", err)
	}

	path, expected := condition, ""
	hasExpected := false
	if idx := strings.Index(condition, "=="); idx >= 0 {
		path = strings.TrimSpace(condition[:idx])
		expected = strings.TrimSpace(condition[idx+2:])
		hasExpected = true
	}

	value, err := jsonpath.JsonPathLookup(decoded, path)
	if err != nil {
		return fmt.Errorf("success condition %q not satisfied: %w", condition, err)
	}
	if !hasExpected {
		if value == nil || value == false {
			return fmt.Errorf("success condition %q evaluated to %v", condition, value)
		}
		return nil
	}
	actual := fmt.Sprintf("%v", value)
	if actual != strings.Trim(expected, `"`) {
		return fmt.Errorf("success condition %q: got %q", condition, actual)
	}
	return nil
}

// onFailure reads the step's error policy. Only the literal "stop"
// aborts the run; any other value (or none) logs and continues.
func onFailure(step *blueprint.Step) string {
	if step.ErrorHandling == nil {
		return ""
	}
	if v, ok := step.ErrorHandling["on_failure"].(string); ok {
		return v
	}
	return ""
}

func (s *ExecutionService) broadcast(eventType, automationID, runID string, data interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(ProgressEvent{
		Type:         eventType,
		AutomationID: automationID,
		RunID:        runID,
		Data:         data,
	})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
