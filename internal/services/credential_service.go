package services

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"yusrai/internal/blueprint"
	"yusrai/internal/config"
	"yusrai/internal/models"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/crypto/nacl/secretbox"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CredentialService stores platform credentials sealed at rest and runs
// live credential tests using the platform's test payload. A credential
// counts as "tested" only when the last live test succeeded.
type CredentialService struct {
	db          *gorm.DB
	logger      *logrus.Logger
	client      *http.Client
	sealKey     [32]byte
	testTimeout time.Duration
}

func NewCredentialService(db *gorm.DB, logger *logrus.Logger, cfg config.CredentialsConfig) (*CredentialService, error) {
	if logger == nil {
		logger = logrus.New()
	}
	s := &CredentialService{
		db:          db,
		logger:      logger,
		testTimeout: cfg.TestTimeout,
	}
	if s.testTimeout <= 0 {
		s.testTimeout = 15 * time.Second
	}
	s.client = &http.Client{
		Timeout:   s.testTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	if cfg.SealKey == "" {
		// ephemeral key: fine for development, stored secrets do not
		// survive a restart
		if _, err := rand.Read(s.sealKey[:]); err != nil {
			return nil, fmt.Errorf("generate seal key: %w", err)
		}
		logger.Warn("credentials: no seal_key configured, using an ephemeral key")
		return s, nil
	}
	key, err := base64.StdEncoding.DecodeString(cfg.SealKey)
	if err != nil {
		return nil, fmt.Errorf("decode seal key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("seal key must be 32 bytes, got %d", len(key))
	}
	copy(s.sealKey[:], key)
	return s, nil
}

// SaveCredential upserts the credential fields for one platform of an
// automation. Saving resets the tested state; the user must re-test.
func (s *CredentialService) SaveCredential(ctx context.Context, automationID, platformName, userID string, fields map[string]string) (*models.PlatformCredential, error) {
	if automationID == "" || platformName == "" {
		return nil, fmt.Errorf("automation id and platform name required")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("at least one credential field required")
	}

	sealed, err := s.seal(fields)
	if err != nil {
		return nil, fmt.Errorf("seal credential: %w", err)
	}

	row := &models.PlatformCredential{
		AutomationID:   automationID,
		PlatformName:   platformName,
		UserID:         userID,
		SealedFields:   sealed,
		IsTested:       false,
		LastTestStatus: "",
		TestedAt:       nil,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "automation_id"}, {Name: "platform_name"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"sealed_fields", "is_tested", "last_test_status", "tested_at", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return nil, fmt.Errorf("upsert credential: %w", err)
	}
	return row, nil
}

// TestCredential replays the platform's test payload with the stored
// credential values substituted in, then records the outcome.
func (s *CredentialService) TestCredential(ctx context.Context, automationID, platformName, userID string, payload blueprint.TestPayload) (*models.PlatformCredential, error) {
	var row models.PlatformCredential
	err := s.db.WithContext(ctx).
		Where("automation_id = ? AND platform_name = ? AND user_id = ?", automationID, platformName, userID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("no credential saved for %s", platformName)
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	fields, err := s.open(row.SealedFields)
	if err != nil {
		return nil, fmt.Errorf("unseal credential: %w", err)
	}

	status := "failed"
	if err := s.runTestRequest(ctx, payload, fields); err != nil {
		s.logger.Warnf("credential test failed for %s/%s: %v", automationID, platformName, err)
	} else {
		status = "success"
	}

	now := time.Now()
	row.IsTested = true
	row.LastTestStatus = status
	row.TestedAt = &now
	if err := s.db.WithContext(ctx).Model(&models.PlatformCredential{}).
		Where("id = ?", row.ID).
		Updates(map[string]interface{}{
			"is_tested":        true,
			"last_test_status": status,
			"tested_at":        now,
		}).Error; err != nil {
		return nil, fmt.Errorf("record test outcome: %w", err)
	}
	return &row, nil
}

// GetTestStatus reports credential presence and test outcome for one
// platform; this is what the readiness evaluator consumes.
func (s *CredentialService) GetTestStatus(ctx context.Context, automationID, platformName, userID string) (exists, isTested bool, lastStatus string, err error) {
	var row models.PlatformCredential
	e := s.db.WithContext(ctx).
		Where("automation_id = ? AND platform_name = ? AND user_id = ?", automationID, platformName, userID).
		First(&row).Error
	if errors.Is(e, gorm.ErrRecordNotFound) {
		return false, false, "", nil
	}
	if e != nil {
		return false, false, "", fmt.Errorf("credential lookup: %w", e)
	}
	return true, row.IsTested, row.LastTestStatus, nil
}

func (s *CredentialService) runTestRequest(ctx context.Context, payload blueprint.TestPayload, fields map[string]string) error {
	if payload.Endpoint == "" {
		return fmt.Errorf("test payload has no endpoint")
	}
	method := strings.ToUpper(payload.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if payload.Body != nil {
		b, err := json.Marshal(payload.Body)
		if err != nil {
			return fmt.Errorf("marshal test body: %w", err)
		}
		body = bytes.NewReader([]byte(substituteFields(string(b), fields)))
	}

	ctx, cancel := context.WithTimeout(ctx, s.testTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, substituteFields(payload.Endpoint, fields), body)
	if err != nil {
		return fmt.Errorf("build test request: %w", err)
	}
	for k, v := range payload.Headers {
		req.Header.Set(k, substituteFields(v, fields))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("test request returned %d", resp.StatusCode)
	}
	return nil
}

// substituteFields replaces {{field}} placeholders in test payload text
// with the stored credential values.
func substituteFields(text string, fields map[string]string) string {
	for k, v := range fields {
		text = strings.ReplaceAll(text, "{{"+k+"}}", v)
	}
	return text
}

func (s *CredentialService) seal(fields map[string]string) (string, error) {
	plain, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", err
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, &s.sealKey)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *CredentialService) open(sealed string) (map[string]string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return nil, err
	}
	if len(raw) < 24 {
		return nil, fmt.Errorf("sealed value too short")
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	plain, ok := secretbox.Open(nil, raw[24:], &nonce, &s.sealKey)
	if !ok {
		return nil, fmt.Errorf("sealed value did not authenticate")
	}
	var fields map[string]string
	if err := json.Unmarshal(plain, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
