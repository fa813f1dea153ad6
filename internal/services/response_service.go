package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"yusrai/internal/blueprint"
	"yusrai/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ResponseService persists parsed LLM turns and serves the latest
// structured automation back to readiness and execution.
type ResponseService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewResponseService(db *gorm.DB, logger *logrus.Logger) *ResponseService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ResponseService{db: db, logger: logger}
}

// SaveParsedResponse upserts the stored response for (automation, chat
// message). Latest write wins; is_ready_for_execution is always written
// false because readiness is computed fresh, never trusted from storage.
func (s *ResponseService) SaveParsedResponse(ctx context.Context, userID, automationID, chatMessageID, rawText string, result blueprint.ParseResult) (*models.AutomationResponse, error) {
	if automationID == "" {
		return nil, fmt.Errorf("automation id required")
	}

	structured := ""
	if result.Normalized != nil {
		b, err := json.Marshal(result.Normalized)
		if err != nil {
			return nil, fmt.Errorf("marshal structured data: %w", err)
		}
		structured = string(b)
	}

	row := &models.AutomationResponse{
		UserID:               userID,
		AutomationID:         automationID,
		ChatMessageID:        chatMessageID,
		RawResponse:          rawText,
		StructuredData:       structured,
		YusrAIPowered:        result.Metadata.YusrAIPowered,
		SevenSectionsChecked: result.Metadata.SevenSectionsValidated,
		ErrorHelpAvailable:   result.Metadata.ErrorHelpAvailable,
		IsReadyForExecution:  false,
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "automation_id"}, {Name: "chat_message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id", "raw_response", "structured_data",
			"yusr_ai_powered", "seven_sections_checked", "error_help_available",
			"is_ready_for_execution", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert automation response: %w", err)
	}
	return row, nil
}

// GetLatestStructured returns the newest stored structured automation for
// an automation, both as the typed record and as the normalized object
// the extractor consumes. A missing record is (nil, nil, nil), not an
// error.
func (s *ResponseService) GetLatestStructured(ctx context.Context, automationID string) (*blueprint.StructuredAutomation, map[string]interface{}, error) {
	var row models.AutomationResponse
	err := s.db.WithContext(ctx).
		Where("automation_id = ? AND structured_data <> ''", automationID).
		Order("created_at DESC, id DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load latest response: %w", err)
	}

	var normalized map[string]interface{}
	if err := json.Unmarshal([]byte(row.StructuredData), &normalized); err != nil {
		return nil, nil, fmt.Errorf("decode stored structured data: %w", err)
	}
	var sa blueprint.StructuredAutomation
	if err := json.Unmarshal([]byte(row.StructuredData), &sa); err != nil {
		return nil, nil, fmt.Errorf("decode stored automation: %w", err)
	}
	return &sa, normalized, nil
}

// GetLatestBlueprint extracts the canonical blueprint from the newest
// stored response. nil means "not yet ready", never an error.
func (s *ResponseService) GetLatestBlueprint(ctx context.Context, automationID string) (*blueprint.ExecutionBlueprint, *blueprint.StructuredAutomation, error) {
	sa, normalized, err := s.GetLatestStructured(ctx, automationID)
	if err != nil || sa == nil {
		return nil, nil, err
	}
	return blueprint.ExtractBlueprint(normalized), sa, nil
}
