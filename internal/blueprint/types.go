// Package blueprint contains the pure core of the automation pipeline:
// parsing raw LLM output into a normalized structured automation,
// deriving a canonical execution blueprint from it, and projecting
// diagram metadata. Everything in this package is CPU-only and side
// effect free; callers that want logging read the Diagnostics slices.
package blueprint

import "time"

// Agent roles surfaced by the LLM.
const (
	RoleDecisionMaker = "Decision Maker"
	RoleDataProcessor = "Data Processor"
	RoleMonitor       = "Monitor"
	RoleValidator     = "Validator"
	RoleResponder     = "Responder"
	RoleCustom        = "Custom"
)

// Trigger types understood by the dispatcher.
const (
	TriggerWebhook  = "webhook"
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerEvent    = "event"
)

// CredentialField describes one credential the user must supply for a
// platform, including the help text the LLM produced.
type CredentialField struct {
	Field      string   `json:"field"`
	WhyNeeded  string   `json:"why_needed"`
	WhereToGet string   `json:"where_to_get,omitempty"`
	Link       string   `json:"link,omitempty"`
	Options    []string `json:"options,omitempty"`
	Example    string   `json:"example,omitempty"`
}

// Platform is one third-party integration the automation talks to.
// Names are unique within an automation and used as map keys downstream.
type Platform struct {
	Name        string            `json:"name"`
	Credentials []CredentialField `json:"credentials"`
}

// Agent is one AI agent recommendation.
type Agent struct {
	Name          string                 `json:"name"`
	Role          string                 `json:"role"`
	Rule          string                 `json:"rule"`
	Goal          string                 `json:"goal"`
	Memory        string                 `json:"memory,omitempty"`
	WhyNeeded     string                 `json:"why_needed,omitempty"`
	TestScenarios []string               `json:"test_scenarios,omitempty"`
	CustomConfig  map[string]interface{} `json:"custom_config,omitempty"`
}

// TestPayload is a canned request used to verify a platform credential.
type TestPayload struct {
	Method           string                 `json:"method"`
	Endpoint         string                 `json:"endpoint"`
	Headers          map[string]string      `json:"headers,omitempty"`
	Body             interface{}            `json:"body,omitempty"`
	ExpectedResponse map[string]interface{} `json:"expected_response,omitempty"`
	ErrorPatterns    map[string]interface{} `json:"error_patterns,omitempty"`
}

// Trigger describes how an automation starts.
type Trigger struct {
	Type          string                 `json:"type"`
	Platform      string                 `json:"platform,omitempty"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
}

// StepAction is the resolved call a step makes against an integration.
type StepAction struct {
	Integration string                 `json:"integration"`
	Method      string                 `json:"method"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// Step is one ordered unit of an execution blueprint.
type Step struct {
	ID                   string                 `json:"id"`
	Name                 string                 `json:"name"`
	Type                 string                 `json:"type"`
	Action               StepAction             `json:"action"`
	Platform             string                 `json:"platform,omitempty"`
	SuccessCondition     string                 `json:"success_condition,omitempty"`
	ErrorHandling        map[string]interface{} `json:"error_handling,omitempty"`
	OriginalWorkflowData map[string]interface{} `json:"originalWorkflowData,omitempty"`
}

// ExecutionBlueprint is the canonical execution-ready description of an
// automation. It is always derived, never authoritative storage.
type ExecutionBlueprint struct {
	Version      string                 `json:"version"`
	Description  string                 `json:"description"`
	Trigger      Trigger                `json:"trigger"`
	Steps        []Step                 `json:"steps"`
	Variables    map[string]interface{} `json:"variables,omitempty"`
	TestPayloads map[string]TestPayload `json:"test_payloads,omitempty"`
	Platforms    []Platform             `json:"platforms,omitempty"`
}

// StructuredAutomation is the normalized shape of one LLM turn that
// describes an automation. Workflow keeps the pre-normalization step
// items when the LLM produced one, so a blueprint stays derivable from
// the stored record.
type StructuredAutomation struct {
	Summary                string                   `json:"summary"`
	Steps                  []string                 `json:"steps"`
	Platforms              []Platform               `json:"platforms"`
	ClarificationQuestions []string                 `json:"clarification_questions"`
	Agents                 []Agent                  `json:"agents"`
	TestPayloads           map[string]TestPayload   `json:"test_payloads"`
	ExecutionBlueprint     *ExecutionBlueprint      `json:"execution_blueprint,omitempty"`
	Workflow               []map[string]interface{} `json:"workflow,omitempty"`
}

// ResponseMetadata carries provenance/validation confidence flags, not
// business data.
type ResponseMetadata struct {
	YusrAIPowered          bool `json:"yusrai_powered"`
	SevenSectionsValidated bool `json:"seven_sections_validated"`
	ErrorHelpAvailable     bool `json:"error_help_available"`
}

// ParseResult is what ParseResponse returns. A plain-text result is not
// an error: Structured is nil and IsPlainText is true when the LLM
// replied conversationally.
type ParseResult struct {
	Structured  *StructuredAutomation
	Normalized  map[string]interface{}
	Metadata    ResponseMetadata
	IsPlainText bool
	Diagnostics []string
}

// DiagramData is the metadata-only projection used by visualization.
type DiagramData struct {
	TotalSteps  int       `json:"total_steps"`
	Platforms   []string  `json:"platforms"`
	AgentCount  int       `json:"agent_count"`
	GeneratedAt time.Time `json:"generated_at"`
}
