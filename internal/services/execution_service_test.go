package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"yusrai/internal/blueprint"
	"yusrai/internal/config"
	"yusrai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newExecutionService(t *testing.T, db *gorm.DB) *ExecutionService {
	t.Helper()
	logger := quietLogger()
	responses := NewResponseService(db, logger)
	return NewExecutionService(db, logger, newReadinessService(t, db), responses, nil, config.DispatchConfig{
		StepTimeout:  2 * time.Second,
		MaxRetries:   2,
		RetryBackoff: 10 * time.Millisecond,
	})
}

func httpStep(id, name, url, method string) blueprint.Step {
	return blueprint.Step{
		ID:   id,
		Name: name,
		Type: "action",
		Action: blueprint.StepAction{
			Integration: "webhook",
			Method:      method,
			Parameters:  map[string]interface{}{"url": url},
		},
	}
}

func runBlueprint(steps ...blueprint.Step) *blueprint.ExecutionBlueprint {
	return &blueprint.ExecutionBlueprint{
		Version:     "1.0",
		Description: "test run",
		Trigger:     blueprint.Trigger{Type: blueprint.TriggerManual},
		Steps:       steps,
	}
}

func TestExecute_RefusesInvalidBlueprint(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	result, err := svc.Execute(context.Background(), "auto-1", "user-1", nil, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)

	var count int64
	require.NoError(t, db.Model(&models.AutomationRun{}).Count(&count).Error)
	assert.Zero(t, count, "refused executions must not leave run records")
}

func TestExecute_RefusesWhenNotReady(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", []string{"Stripe"})
	svc := newExecutionService(t, db)

	result, err := svc.Execute(context.Background(), "auto-1", "user-1",
		runBlueprint(httpStep("step-1", "noop", "http://127.0.0.1:0", "GET")), "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "not ready")
}

func TestExecute_RunsStepsAndRecordsRun(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	bp := runBlueprint(
		httpStep("step-1", "First", server.URL+"/a", "GET"),
		httpStep("step-2", "Second", server.URL+"/b", "POST"),
	)
	result, err := svc.Execute(context.Background(), "auto-1", "user-1", bp, "manual")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "success", result.Steps[0].Status)
	assert.Equal(t, 1, result.Steps[0].Attempts)
	assert.Equal(t, http.StatusOK, result.Steps[0].HTTPStatus)

	var run models.AutomationRun
	require.NoError(t, db.Preload("Steps").First(&run, "id = ?", result.RunID).Error)
	assert.Equal(t, "success", run.Status)
	assert.Equal(t, "manual", run.TriggerType)
	assert.NotNil(t, run.FinishedAt)
	assert.Len(t, run.Steps, 2)
}

func TestExecute_StopPolicyAbortsRun(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	var secondCalled int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/second" {
			atomic.AddInt32(&secondCalled, 1)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	failing := httpStep("step-1", "Broken", server.URL+"/first", "GET")
	failing.ErrorHandling = map[string]interface{}{"on_failure": "stop"}
	bp := runBlueprint(failing, httpStep("step-2", "Never", server.URL+"/second", "GET"))

	result, err := svc.Execute(context.Background(), "auto-1", "user-1", bp, "")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "Broken")
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "failed", result.Steps[0].Status)
	assert.Zero(t, atomic.LoadInt32(&secondCalled))

	var run models.AutomationRun
	require.NoError(t, db.First(&run, "id = ?", result.RunID).Error)
	assert.Equal(t, "failed", run.Status)
}

func TestExecute_DefaultPolicyContinuesPastFailure(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	bp := runBlueprint(
		httpStep("step-1", "Flaky", server.URL+"/bad", "GET"),
		httpStep("step-2", "Solid", server.URL+"/good", "GET"),
	)
	result, err := svc.Execute(context.Background(), "auto-1", "user-1", bp, "")
	require.NoError(t, err)
	assert.True(t, result.Success, "non-stop policies keep the run going")
	require.Len(t, result.Steps, 2)
	assert.Equal(t, "failed", result.Steps[0].Status)
	assert.Equal(t, "success", result.Steps[1].Status)
}

func TestExecute_RetriesBeforeFailing(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	result, err := svc.Execute(context.Background(), "auto-1", "user-1",
		runBlueprint(httpStep("step-1", "Retry me", server.URL, "GET")), "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.Len(t, result.Steps, 1)
	assert.Equal(t, "success", result.Steps[0].Status)
	assert.Equal(t, 2, result.Steps[0].Attempts)
}

func TestExecute_SuccessCondition(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "done", "ok": true}`))
	}))
	defer server.Close()

	cases := []struct {
		name      string
		condition string
		wantOK    bool
	}{
		{"truthy path", "$.ok", true},
		{"equality match", "$.status==done", true},
		{"equality mismatch", "$.status==queued", false},
		{"missing path", "$.nope", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			step := httpStep("step-1", "Check", server.URL, "GET")
			step.SuccessCondition = tc.condition
			result, err := svc.Execute(context.Background(), "auto-1", "user-1", runBlueprint(step), "")
			require.NoError(t, err)
			require.Len(t, result.Steps, 1)
			if tc.wantOK {
				assert.Equal(t, "success", result.Steps[0].Status)
			} else {
				assert.Equal(t, "failed", result.Steps[0].Status)
			}
		})
	}
}

func TestExecute_SystemStepWithoutURLSucceeds(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	step := blueprint.Step{
		ID:   "step-1",
		Name: "Log intent",
		Type: "action",
		Action: blueprint.StepAction{
			Integration: "system",
			Method:      "execute",
			Parameters:  map[string]interface{}{"description": "documented step"},
		},
	}
	result, err := svc.Execute(context.Background(), "auto-1", "user-1", runBlueprint(step), "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "success", result.Steps[0].Status)
	assert.Zero(t, result.Steps[0].HTTPStatus)
}

func TestExecute_NonSystemStepWithoutURLFails(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	step := blueprint.Step{
		ID:     "step-1",
		Name:   "Orphan",
		Type:   "action",
		Action: blueprint.StepAction{Integration: "gmail", Method: "send"},
	}
	result, err := svc.Execute(context.Background(), "auto-1", "user-1", runBlueprint(step), "")
	require.NoError(t, err)
	assert.True(t, result.Success, "default policy continues")
	assert.Equal(t, "failed", result.Steps[0].Status)
	assert.Contains(t, result.Steps[0].Error, "url")
}

func TestExecute_PlatformOperationTravelsAsPOST(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	var gotMethod, gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b := make([]byte, r.ContentLength)
		r.Body.Read(b)
		gotBody = string(b)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	step := blueprint.Step{
		ID:   "step-1",
		Name: "Send message",
		Type: "action",
		Action: blueprint.StepAction{
			Integration: "slack",
			Method:      "send_message",
			Parameters: map[string]interface{}{
				"url":     server.URL,
				"channel": "#ops",
			},
		},
	}
	result, err := svc.Execute(context.Background(), "auto-1", "user-1", runBlueprint(step), "")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Contains(t, gotBody, "send_message")
	assert.Contains(t, gotBody, "#ops")
	assert.NotContains(t, gotBody, server.URL, "transport keys are stripped from the body")
}

func TestExecuteLatest_UsesStoredBlueprint(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	raw := `{"summary": "ping", "execution_blueprint": {
		"version": "1.0",
		"description": "ping hook",
		"trigger": {"type": "manual"},
		"steps": [{"id": "step-1", "name": "Ping", "type": "action",
			"action": {"integration": "webhook", "method": "GET", "parameters": {"url": "` + server.URL + `"}}}]
	}}`
	seedStructuredResponse(t, db, "auto-1", raw)

	result, err := svc.ExecuteLatest(context.Background(), "auto-1", "user-1", blueprint.TriggerSchedule)
	require.NoError(t, err)
	assert.True(t, result.Success)

	var run models.AutomationRun
	require.NoError(t, db.First(&run, "id = ?", result.RunID).Error)
	assert.Equal(t, blueprint.TriggerSchedule, run.TriggerType)
}

func TestListRuns(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newExecutionService(t, db)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	for i := 0; i < 3; i++ {
		_, err := svc.Execute(context.Background(), "auto-1", "user-1",
			runBlueprint(httpStep("step-1", "Ping", server.URL, "GET")), "")
		require.NoError(t, err)
	}

	runs, err := svc.ListRuns(context.Background(), "auto-1", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Len(t, runs[0].Steps, 1)

	all, err := svc.ListRuns(context.Background(), "auto-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}
