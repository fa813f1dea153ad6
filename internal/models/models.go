package models

import (
	"time"

	"gorm.io/gorm"
)

// Automation is one user-described automation. PlatformsConfig holds the
// ordered platform names the automation needs, as a JSON array.
type Automation struct {
	ID              string         `gorm:"primaryKey;size:64" json:"id"`
	UserID          string         `gorm:"index;size:64" json:"user_id"`
	Title           string         `gorm:"not null" json:"title"`
	Description     string         `gorm:"type:text" json:"description"`
	Status          string         `gorm:"default:'draft'" json:"status"` // draft, active, archived
	PlatformsConfig string         `gorm:"type:text" json:"platforms_config"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

// AutomationResponse stores one parsed LLM turn for an automation.
// StructuredData is the normalized structured automation as JSON text;
// RawResponse keeps the original model output for audit. Upserts are keyed
// by (automation_id, chat_message_id) with latest-write-wins semantics.
type AutomationResponse struct {
	ID                   uint      `gorm:"primaryKey" json:"id"`
	UserID               string    `gorm:"index;size:64" json:"user_id"`
	AutomationID         string    `gorm:"index:idx_resp_automation_message,unique;size:64" json:"automation_id"`
	ChatMessageID        string    `gorm:"index:idx_resp_automation_message,unique;size:64" json:"chat_message_id"`
	RawResponse          string    `gorm:"type:text" json:"raw_response"`
	StructuredData       string    `gorm:"type:text" json:"structured_data"`
	YusrAIPowered        bool      `gorm:"column:yusr_ai_powered;default:false" json:"yusrai_powered"`
	SevenSectionsChecked bool      `gorm:"default:false" json:"seven_sections_validated"`
	ErrorHelpAvailable   bool      `gorm:"default:false" json:"error_help_available"`
	IsReadyForExecution  bool      `gorm:"default:false" json:"is_ready_for_execution"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// PlatformCredential holds sealed credential fields for one platform of an
// automation. SealedFields is a secretbox-encrypted JSON object, base64.
type PlatformCredential struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	AutomationID   string     `gorm:"index:idx_cred_unique,unique;size:64" json:"automation_id"`
	PlatformName   string     `gorm:"index:idx_cred_unique,unique;size:128" json:"platform_name"`
	UserID         string     `gorm:"index:idx_cred_unique,unique;size:64" json:"user_id"`
	SealedFields   string     `gorm:"type:text" json:"-"`
	IsTested       bool       `gorm:"default:false" json:"is_tested"`
	LastTestStatus string     `gorm:"size:32" json:"last_test_status"` // success, failed
	TestedAt       *time.Time `json:"tested_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// AgentDecision records the user's choice for one recommended AI agent.
// Absence of a row means the decision is still pending.
type AgentDecision struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AutomationID string    `gorm:"index:idx_decision_unique,unique;size:64" json:"automation_id"`
	AgentName    string    `gorm:"index:idx_decision_unique,unique;size:128" json:"agent_name"`
	Status       string    `gorm:"size:16;not null" json:"status"` // added, dismissed
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// AutomationRun is one execution of a blueprint, for audit.
type AutomationRun struct {
	ID           string     `gorm:"primaryKey;size:64" json:"id"`
	AutomationID string     `gorm:"index" json:"automation_id"`
	UserID       string     `gorm:"size:64" json:"user_id"`
	TriggerType  string     `gorm:"size:32" json:"trigger_type"`
	Status       string     `gorm:"index;size:16" json:"status"` // running, success, failed
	Error        string     `gorm:"type:text" json:"error"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at"`

	Steps []StepResult `gorm:"foreignKey:RunID" json:"steps,omitempty"`
}

// StepResult is the per-step outcome of a run.
type StepResult struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"index;size:64" json:"run_id"`
	StepID     string    `gorm:"size:128" json:"step_id"`
	StepName   string    `json:"step_name"`
	Status     string    `gorm:"size:16" json:"status"` // success, failed, skipped
	HTTPStatus int       `json:"http_status"`
	Response   string    `gorm:"type:text" json:"response"`
	Error      string    `gorm:"type:text" json:"error"`
	Attempts   int       `json:"attempts"`
	CreatedAt  time.Time `json:"created_at"`
}

// All lists every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&Automation{},
		&AutomationResponse{},
		&PlatformCredential{},
		&AgentDecision{},
		&AutomationRun{},
		&StepResult{},
	}
}
