package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const agentResponseFixture = `{
  "summary": "Sync new leads into the CRM",
  "step_by_step": ["Fetch leads", "Push to CRM"],
  "agents": [
    {"name": "Lead Qualifier", "role": "Decision Maker", "rule": "score every lead", "goal": "qualify inbound leads"},
    {"name": "Escalation Bot", "role": "Notifier", "rule": "ping sales on hot leads"}
  ]
}`

func TestEvaluateCredentials_NoPlatformsConfigured(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newReadinessService(t, db)

	got := svc.EvaluateCredentials(context.Background(), "auto-1", "user-1")
	assert.True(t, got.IsReady)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Empty(t, got.Platforms)
}

func TestEvaluateCredentials_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", []string{"Stripe"})
	svc := newReadinessService(t, db)
	creds := newCredentialService(t, db)
	ctx := context.Background()

	// nothing saved yet
	got := svc.EvaluateCredentials(ctx, "auto-1", "user-1")
	require.Len(t, got.Platforms, 1)
	assert.Equal(t, CredentialMissing, got.Platforms[0].Status)
	assert.Equal(t, StatusMissing, got.Status)
	assert.False(t, got.IsReady)

	// saved but untested
	_, err := creds.SaveCredential(ctx, "auto-1", "Stripe", "user-1", map[string]string{"api_key": "sk_test_123"})
	require.NoError(t, err)
	got = svc.EvaluateCredentials(ctx, "auto-1", "user-1")
	assert.Equal(t, CredentialSaved, got.Platforms[0].Status)
	assert.Equal(t, StatusPartial, got.Status)
	assert.False(t, got.IsReady)

	// tested with success
	markTested(t, db, "auto-1", "Stripe", "user-1", "success")
	got = svc.EvaluateCredentials(ctx, "auto-1", "user-1")
	assert.Equal(t, CredentialTested, got.Platforms[0].Status)
	assert.Equal(t, StatusComplete, got.Status)
	assert.True(t, got.IsReady)
}

func TestEvaluateCredentials_FailedTestIsNotTested(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", []string{"Slack"})
	svc := newReadinessService(t, db)
	creds := newCredentialService(t, db)
	ctx := context.Background()

	_, err := creds.SaveCredential(ctx, "auto-1", "Slack", "user-1", map[string]string{"token": "xoxb-1"})
	require.NoError(t, err)
	markTested(t, db, "auto-1", "Slack", "user-1", "failed")

	got := svc.EvaluateCredentials(ctx, "auto-1", "user-1")
	assert.Equal(t, CredentialSaved, got.Platforms[0].Status)
	assert.False(t, got.IsReady)
}

func TestEvaluateCredentials_MixedPlatforms(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", []string{"Stripe", "Slack"})
	svc := newReadinessService(t, db)
	creds := newCredentialService(t, db)
	ctx := context.Background()

	_, err := creds.SaveCredential(ctx, "auto-1", "Stripe", "user-1", map[string]string{"api_key": "sk_test_123"})
	require.NoError(t, err)
	markTested(t, db, "auto-1", "Stripe", "user-1", "success")

	got := svc.EvaluateCredentials(ctx, "auto-1", "user-1")
	require.Len(t, got.Platforms, 2)
	assert.Equal(t, CredentialTested, got.Platforms[0].Status)
	assert.Equal(t, CredentialMissing, got.Platforms[1].Status)
	assert.Equal(t, StatusPartial, got.Status)
	assert.False(t, got.IsReady)
}

func TestEvaluateCredentials_MissingAutomationDegrades(t *testing.T) {
	db := newTestDB(t)
	svc := newReadinessService(t, db)

	got := svc.EvaluateCredentials(context.Background(), "nope", "user-1")
	assert.False(t, got.IsReady)
	assert.Equal(t, StatusMissing, got.Status)
	assert.Empty(t, got.Platforms)
}

func TestEvaluateCredentials_LookupFailureDegrades(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", []string{"Stripe"})
	svc := newReadinessService(t, db)

	// simulate a storage fault mid-evaluation
	require.NoError(t, db.Exec("DROP TABLE platform_credentials").Error)

	got := svc.EvaluateCredentials(context.Background(), "auto-1", "user-1")
	assert.False(t, got.IsReady)
	assert.Equal(t, StatusMissing, got.Status)
}

func TestGetExecutionReadiness_DowngradeRevokesVerdict(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", []string{"Slack"})
	svc := newReadinessService(t, db)
	creds := newCredentialService(t, db)
	ctx := context.Background()

	_, err := creds.SaveCredential(ctx, "auto-1", "Slack", "user-1", map[string]string{"token": "xoxb-1"})
	require.NoError(t, err)
	markTested(t, db, "auto-1", "Slack", "user-1", "success")

	got := svc.GetExecutionReadiness(ctx, "auto-1", "user-1")
	require.True(t, got.IsReady)
	assert.Empty(t, got.MissingCredentials)

	// re-saving resets the tested flag, the verdict must follow
	_, err = creds.SaveCredential(ctx, "auto-1", "Slack", "user-1", map[string]string{"token": "xoxb-2"})
	require.NoError(t, err)

	got = svc.GetExecutionReadiness(ctx, "auto-1", "user-1")
	assert.False(t, got.IsReady)
	assert.Equal(t, StatusPartial, got.CredentialStatus)
	assert.Equal(t, []string{"Slack"}, got.MissingCredentials)
}

func TestGetExecutionReadiness_DimensionsDegradeIndependently(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", []string{"Slack"})
	svc := newReadinessService(t, db)

	// a credential-store fault must not poison the agent dimension
	require.NoError(t, db.Exec("DROP TABLE platform_credentials").Error)

	got := svc.GetExecutionReadiness(context.Background(), "auto-1", "user-1")
	assert.False(t, got.IsReady)
	assert.Equal(t, StatusMissing, got.CredentialStatus)
	assert.Equal(t, StatusComplete, got.AgentStatus)
	assert.Empty(t, got.PendingAgents)
}

func TestEvaluateAgents_NoAgentsIsComplete(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newReadinessService(t, db)

	got := svc.EvaluateAgents(context.Background(), "auto-1")
	assert.True(t, got.IsReady)
	assert.Equal(t, StatusComplete, got.Status)
	assert.Empty(t, got.Agents)
}

func TestEvaluateAgents_DecisionLifecycle(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	seedStructuredResponse(t, db, "auto-1", agentResponseFixture)
	svc := newReadinessService(t, db)
	decisions := NewAgentDecisionService(db, quietLogger())
	ctx := context.Background()

	got := svc.EvaluateAgents(ctx, "auto-1")
	require.Len(t, got.Agents, 2)
	assert.Equal(t, StatusPending, got.Status)
	assert.False(t, got.IsReady)

	_, err := decisions.SetDecision(ctx, "auto-1", "Lead Qualifier", DecisionAdded)
	require.NoError(t, err)
	got = svc.EvaluateAgents(ctx, "auto-1")
	assert.Equal(t, StatusPartial, got.Status)
	assert.False(t, got.IsReady)

	// dismissing counts as a decision
	_, err = decisions.SetDecision(ctx, "auto-1", "Escalation Bot", DecisionDismissed)
	require.NoError(t, err)
	got = svc.EvaluateAgents(ctx, "auto-1")
	assert.Equal(t, StatusComplete, got.Status)
	assert.True(t, got.IsReady)
	assert.Equal(t, DecisionAdded, got.Agents[0].Status)
	assert.Equal(t, DecisionDismissed, got.Agents[1].Status)
}

func TestEvaluateAgents_ResponseLookupFailureDegrades(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", nil)
	svc := newReadinessService(t, db)

	require.NoError(t, db.Exec("DROP TABLE automation_responses").Error)

	got := svc.EvaluateAgents(context.Background(), "auto-1")
	assert.False(t, got.IsReady)
	assert.Equal(t, StatusPending, got.Status)
}

func TestGetExecutionReadiness_Combined(t *testing.T) {
	db := newTestDB(t)
	seedAutomation(t, db, "auto-1", "user-1", []string{"Stripe", "Slack"})
	seedStructuredResponse(t, db, "auto-1", agentResponseFixture)
	svc := newReadinessService(t, db)
	creds := newCredentialService(t, db)
	decisions := NewAgentDecisionService(db, quietLogger())
	ctx := context.Background()

	_, err := creds.SaveCredential(ctx, "auto-1", "Stripe", "user-1", map[string]string{"api_key": "sk_test_123"})
	require.NoError(t, err)
	markTested(t, db, "auto-1", "Stripe", "user-1", "success")
	_, err = decisions.SetDecision(ctx, "auto-1", "Lead Qualifier", DecisionAdded)
	require.NoError(t, err)

	got := svc.GetExecutionReadiness(ctx, "auto-1", "user-1")
	assert.False(t, got.IsReady)
	assert.Equal(t, StatusPartial, got.CredentialStatus)
	assert.Equal(t, StatusPartial, got.AgentStatus)
	assert.Equal(t, []string{"Slack"}, got.MissingCredentials)
	assert.Equal(t, []string{"Escalation Bot"}, got.PendingAgents)

	_, err = creds.SaveCredential(ctx, "auto-1", "Slack", "user-1", map[string]string{"token": "xoxb-1"})
	require.NoError(t, err)
	markTested(t, db, "auto-1", "Slack", "user-1", "success")
	_, err = decisions.SetDecision(ctx, "auto-1", "Escalation Bot", DecisionDismissed)
	require.NoError(t, err)

	got = svc.GetExecutionReadiness(ctx, "auto-1", "user-1")
	assert.True(t, got.IsReady)
	assert.Empty(t, got.MissingCredentials)
	assert.Empty(t, got.PendingAgents)
}

func TestGetExecutionReadiness_NeverErrors(t *testing.T) {
	db := newTestDB(t)
	svc := newReadinessService(t, db)

	got := svc.GetExecutionReadiness(context.Background(), "ghost", "user-1")
	assert.False(t, got.IsReady)
	assert.Equal(t, StatusMissing, got.CredentialStatus)
}
