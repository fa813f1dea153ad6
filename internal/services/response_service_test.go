package services

import (
	"context"
	"testing"

	"yusrai/internal/blueprint"
	"yusrai/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveParsedResponse_RequiresAutomationID(t *testing.T) {
	svc := NewResponseService(newTestDB(t), quietLogger())
	_, err := svc.SaveParsedResponse(context.Background(), "user-1", "", "msg-1", "hi", blueprint.ParseResult{})
	assert.Error(t, err)
}

func TestSaveParsedResponse_UpsertsOnChatMessage(t *testing.T) {
	db := newTestDB(t)
	svc := NewResponseService(db, quietLogger())
	ctx := context.Background()

	first := blueprint.ParseResponse(`{"summary": "v1", "step_by_step": ["one"]}`)
	_, err := svc.SaveParsedResponse(ctx, "user-1", "auto-1", "msg-1", "raw v1", first)
	require.NoError(t, err)

	second := blueprint.ParseResponse(`{"summary": "v2", "step_by_step": ["one", "two"]}`)
	_, err = svc.SaveParsedResponse(ctx, "user-1", "auto-1", "msg-1", "raw v2", second)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.AutomationResponse{}).Where("automation_id = ?", "auto-1").Count(&count).Error)
	assert.Equal(t, int64(1), count)

	sa, _, err := svc.GetLatestStructured(ctx, "auto-1")
	require.NoError(t, err)
	require.NotNil(t, sa)
	assert.Equal(t, "v2", sa.Summary)
	assert.Len(t, sa.Steps, 2)
}

func TestSaveParsedResponse_ProvenanceSurvivesConflictUpdate(t *testing.T) {
	db := newTestDB(t)
	svc := NewResponseService(db, quietLogger())
	ctx := context.Background()

	// The conflict-update assignment list names the provenance columns
	// explicitly, so they must match what the model migrates to.
	first := blueprint.ParseResponse(`{"summary": "v1", "step_by_step": ["a"], "yusrai_powered": false}`)
	_, err := svc.SaveParsedResponse(ctx, "user-1", "auto-1", "msg-1", "raw v1", first)
	require.NoError(t, err)

	second := blueprint.ParseResponse(`{"summary": "v2", "step_by_step": ["a"], "yusrai_powered": true}`)
	row, err := svc.SaveParsedResponse(ctx, "user-1", "auto-1", "msg-1", "raw v2", second)
	require.NoError(t, err)
	assert.True(t, row.YusrAIPowered)

	var powered bool
	require.NoError(t, db.Model(&models.AutomationResponse{}).
		Where("automation_id = ?", "auto-1").
		Pluck("yusr_ai_powered", &powered).Error)
	assert.True(t, powered)
}

func TestSaveParsedResponse_DistinctChatMessagesKept(t *testing.T) {
	db := newTestDB(t)
	svc := NewResponseService(db, quietLogger())
	ctx := context.Background()

	for i, msg := range []string{"msg-1", "msg-2"} {
		result := blueprint.ParseResponse(`{"summary": "turn", "step_by_step": ["a"]}`)
		_, err := svc.SaveParsedResponse(ctx, "user-1", "auto-1", msg, "raw", result)
		require.NoError(t, err, "turn %d", i)
	}

	var count int64
	require.NoError(t, db.Model(&models.AutomationResponse{}).Where("automation_id = ?", "auto-1").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestSaveParsedResponse_NeverMarksReady(t *testing.T) {
	db := newTestDB(t)
	svc := NewResponseService(db, quietLogger())

	result := blueprint.ParseResponse(`{"summary": "s", "step_by_step": ["a"]}`)
	row, err := svc.SaveParsedResponse(context.Background(), "user-1", "auto-1", "msg-1", "raw", result)
	require.NoError(t, err)
	assert.False(t, row.IsReadyForExecution)

	var stored models.AutomationResponse
	require.NoError(t, db.First(&stored, "automation_id = ?", "auto-1").Error)
	assert.False(t, stored.IsReadyForExecution)
}

func TestGetLatestStructured_SkipsPlainText(t *testing.T) {
	db := newTestDB(t)
	svc := NewResponseService(db, quietLogger())
	ctx := context.Background()

	plain := blueprint.ParseResponse("Sure, let me think about that.")
	require.True(t, plain.IsPlainText)
	_, err := svc.SaveParsedResponse(ctx, "user-1", "auto-1", "msg-1", "Sure, let me think about that.", plain)
	require.NoError(t, err)

	sa, normalized, err := svc.GetLatestStructured(ctx, "auto-1")
	require.NoError(t, err)
	assert.Nil(t, sa)
	assert.Nil(t, normalized)
}

func TestGetLatestStructured_MissingAutomation(t *testing.T) {
	svc := NewResponseService(newTestDB(t), quietLogger())
	sa, normalized, err := svc.GetLatestStructured(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, sa)
	assert.Nil(t, normalized)
}

func TestGetLatestBlueprint_FromStoredWorkflow(t *testing.T) {
	db := newTestDB(t)
	svc := NewResponseService(db, quietLogger())
	ctx := context.Background()

	raw := `{"summary": "email on signup", "workflow": [{"action": "Send email", "platform": "gmail"}]}`
	result := blueprint.ParseResponse(raw)
	require.False(t, result.IsPlainText)
	_, err := svc.SaveParsedResponse(ctx, "user-1", "auto-1", "msg-1", raw, result)
	require.NoError(t, err)

	bp, sa, err := svc.GetLatestBlueprint(ctx, "auto-1")
	require.NoError(t, err)
	require.NotNil(t, bp)
	require.NotNil(t, sa)
	require.Len(t, bp.Steps, 1)
	assert.Equal(t, "workflow-step-1", bp.Steps[0].ID)
	assert.Equal(t, "Send email", bp.Steps[0].Name)
}

func TestGetLatestBlueprint_NoResponses(t *testing.T) {
	svc := NewResponseService(newTestDB(t), quietLogger())
	bp, sa, err := svc.GetLatestBlueprint(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, bp)
	assert.Nil(t, sa)
}
