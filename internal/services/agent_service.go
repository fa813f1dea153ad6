package services

import (
	"context"
	"errors"
	"fmt"

	"yusrai/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Agent decision states. Pending is the implicit default: no row stored.
const (
	DecisionPending   = "pending"
	DecisionAdded     = "added"
	DecisionDismissed = "dismissed"
)

// AgentDecisionService records the user's add/dismiss choices for the AI
// agents an LLM turn recommended.
type AgentDecisionService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewAgentDecisionService(db *gorm.DB, logger *logrus.Logger) *AgentDecisionService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AgentDecisionService{db: db, logger: logger}
}

// SetDecision upserts the decision for one agent.
func (s *AgentDecisionService) SetDecision(ctx context.Context, automationID, agentName, status string) (*models.AgentDecision, error) {
	if automationID == "" || agentName == "" {
		return nil, fmt.Errorf("automation id and agent name required")
	}
	if status != DecisionAdded && status != DecisionDismissed {
		return nil, fmt.Errorf("unsupported decision: %s", status)
	}

	row := &models.AgentDecision{
		AutomationID: automationID,
		AgentName:    agentName,
		Status:       status,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "automation_id"}, {Name: "agent_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at"}),
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert agent decision: %w", err)
	}
	return row, nil
}

// GetDecision returns the stored decision, defaulting to pending when the
// user has not decided yet.
func (s *AgentDecisionService) GetDecision(ctx context.Context, automationID, agentName string) (string, error) {
	var row models.AgentDecision
	err := s.db.WithContext(ctx).
		Where("automation_id = ? AND agent_name = ?", automationID, agentName).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DecisionPending, nil
	}
	if err != nil {
		return "", fmt.Errorf("decision lookup: %w", err)
	}
	return row.Status, nil
}

// ListDecisions returns all recorded decisions for an automation.
func (s *AgentDecisionService) ListDecisions(ctx context.Context, automationID string) ([]models.AgentDecision, error) {
	var rows []models.AgentDecision
	if err := s.db.WithContext(ctx).
		Where("automation_id = ?", automationID).
		Order("agent_name").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
