package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"yusrai/internal/blueprint"
	"yusrai/internal/config"
	"yusrai/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := "file:" + name + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func seedAutomation(t *testing.T, db *gorm.DB, id, userID string, platforms []string) {
	t.Helper()
	cfg := ""
	if platforms != nil {
		b, err := json.Marshal(platforms)
		if err != nil {
			t.Fatalf("marshal platforms: %v", err)
		}
		cfg = string(b)
	}
	automation := &models.Automation{
		ID:              id,
		UserID:          userID,
		Title:           "test automation",
		Status:          "active",
		PlatformsConfig: cfg,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}
	if err := db.Create(automation).Error; err != nil {
		t.Fatalf("seed automation: %v", err)
	}
}

func seedStructuredResponse(t *testing.T, db *gorm.DB, automationID string, raw string) {
	t.Helper()
	responses := NewResponseService(db, quietLogger())
	result := blueprint.ParseResponse(raw)
	if result.IsPlainText {
		t.Fatalf("fixture is not structured: %q", raw)
	}
	if _, err := responses.SaveParsedResponse(context.Background(), "user-1", automationID, "", raw, result); err != nil {
		t.Fatalf("seed response: %v", err)
	}
}

func newCredentialService(t *testing.T, db *gorm.DB) *CredentialService {
	t.Helper()
	svc, err := NewCredentialService(db, quietLogger(), config.CredentialsConfig{TestTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("credential service: %v", err)
	}
	return svc
}

func newReadinessService(t *testing.T, db *gorm.DB) *ReadinessService {
	t.Helper()
	logger := quietLogger()
	responses := NewResponseService(db, logger)
	credentials := newCredentialService(t, db)
	decisions := NewAgentDecisionService(db, logger)
	return NewReadinessService(db, logger, responses, credentials, decisions)
}

func markTested(t *testing.T, db *gorm.DB, automationID, platform, userID, status string) {
	t.Helper()
	now := time.Now()
	if err := db.Model(&models.PlatformCredential{}).
		Where("automation_id = ? AND platform_name = ? AND user_id = ?", automationID, platform, userID).
		Updates(map[string]interface{}{
			"is_tested":        true,
			"last_test_status": status,
			"tested_at":        now,
		}).Error; err != nil {
		t.Fatalf("mark tested: %v", err)
	}
}
