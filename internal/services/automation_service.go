package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"yusrai/internal/blueprint"
	"yusrai/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AutomationService manages automation records and keeps their platform
// configuration in sync with the latest parsed LLM turn.
type AutomationService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewAutomationService(db *gorm.DB, logger *logrus.Logger) *AutomationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AutomationService{db: db, logger: logger}
}

type AutomationRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
}

func (s *AutomationService) Create(ctx context.Context, userID string, req *AutomationRequest) (*models.Automation, error) {
	if req == nil || req.Title == "" {
		return nil, fmt.Errorf("title required")
	}
	automation := &models.Automation{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       req.Title,
		Description: req.Description,
		Status:      "draft",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(automation).Error; err != nil {
		return nil, err
	}
	return automation, nil
}

func (s *AutomationService) Get(ctx context.Context, automationID string) (*models.Automation, error) {
	var automation models.Automation
	err := s.db.WithContext(ctx).First(&automation, "id = ?", automationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("automation not found")
	}
	if err != nil {
		return nil, err
	}
	return &automation, nil
}

func (s *AutomationService) List(ctx context.Context, userID string) ([]models.Automation, error) {
	var automations []models.Automation
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&automations).Error; err != nil {
		return nil, err
	}
	return automations, nil
}

func (s *AutomationService) SetStatus(ctx context.Context, automationID, status string) error {
	switch status {
	case "draft", "active", "archived":
	default:
		return fmt.Errorf("unsupported status: %s", status)
	}
	result := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", automationID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("automation not found")
	}
	return nil
}

func (s *AutomationService) Delete(ctx context.Context, automationID string) error {
	result := s.db.WithContext(ctx).Delete(&models.Automation{}, "id = ?", automationID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("automation not found")
	}
	return nil
}

// SyncPlatforms records the platform names the latest structured
// automation requires; the credential readiness evaluator reads this
// list.
func (s *AutomationService) SyncPlatforms(ctx context.Context, automationID string, platforms []blueprint.Platform) error {
	names := make([]string, 0, len(platforms))
	for _, p := range platforms {
		names = append(names, p.Name)
	}
	encoded, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("encode platforms config: %w", err)
	}
	return s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", automationID).
		Update("platforms_config", string(encoded)).Error
}
