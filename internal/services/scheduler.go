package services

import (
	"context"
	"sync"
	"time"

	"yusrai/internal/blueprint"
	"yusrai/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SchedulerService fires schedule-triggered automations. It periodically
// rescans active automations; one whose latest blueprint carries a
// schedule trigger with a cron expression in the trigger configuration
// gets a cron entry that dispatches an execution.
type SchedulerService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	responses *ResponseService
	executor  *ExecutionService
	interval  time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]scheduledEntry
	stop    chan struct{}
}

type scheduledEntry struct {
	id   cron.EntryID
	spec string
}

func NewSchedulerService(db *gorm.DB, logger *logrus.Logger, responses *ResponseService, executor *ExecutionService, interval time.Duration) *SchedulerService {
	if logger == nil {
		logger = logrus.New()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &SchedulerService{
		db:        db,
		logger:    logger,
		responses: responses,
		executor:  executor,
		interval:  interval,
		cron:      cron.New(),
		entries:   make(map[string]scheduledEntry),
		stop:      make(chan struct{}),
	}
}

// Start launches the cron runner and the rescan loop.
func (s *SchedulerService) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		if err := s.Refresh(ctx); err != nil {
			s.logger.Warnf("scheduler: initial scan failed: %v", err)
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if err := s.Refresh(ctx); err != nil {
					s.logger.Warnf("scheduler: scan failed: %v", err)
				}
			}
		}
	}()
}

// Stop halts the rescan loop and the cron runner.
func (s *SchedulerService) Stop() {
	close(s.stop)
	s.cron.Stop()
}

// Refresh reconciles cron entries with the schedule triggers currently
// stored. Automations that lost their schedule trigger are descheduled.
func (s *SchedulerService) Refresh(ctx context.Context) error {
	var automations []models.Automation
	if err := s.db.WithContext(ctx).
		Where("status = ?", "active").
		Find(&automations).Error; err != nil {
		return err
	}

	wanted := map[string]string{}
	for _, automation := range automations {
		bp, _, err := s.responses.GetLatestBlueprint(ctx, automation.ID)
		if err != nil || bp == nil {
			continue
		}
		spec := scheduleSpec(bp)
		if spec == "" {
			continue
		}
		wanted[automation.ID] = spec
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		if spec, ok := wanted[id]; !ok || spec != entry.spec {
			s.cron.Remove(entry.id)
			delete(s.entries, id)
			s.logger.Infof("scheduler: descheduled automation %s", id)
		}
	}

	for _, automation := range automations {
		spec, ok := wanted[automation.ID]
		if !ok {
			continue
		}
		if _, exists := s.entries[automation.ID]; exists {
			continue
		}
		automationID, userID := automation.ID, automation.UserID
		entryID, err := s.cron.AddFunc(spec, func() {
			runCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			result, err := s.executor.ExecuteLatest(runCtx, automationID, userID, blueprint.TriggerSchedule)
			if err != nil {
				s.logger.Warnf("scheduler: dispatch failed for %s: %v", automationID, err)
				return
			}
			if result != nil && !result.Success {
				s.logger.Warnf("scheduler: run for %s finished with error: %s", automationID, result.Error)
			}
		})
		if err != nil {
			s.logger.Warnf("scheduler: bad cron spec %q for %s: %v", spec, automation.ID, err)
			continue
		}
		s.entries[automation.ID] = scheduledEntry{id: entryID, spec: spec}
		s.logger.Infof("scheduler: scheduled automation %s with %q", automation.ID, spec)
	}
	return nil
}

// ScheduledCount reports how many automations currently hold cron
// entries.
func (s *SchedulerService) ScheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func scheduleSpec(bp *blueprint.ExecutionBlueprint) string {
	if bp.Trigger.Type != blueprint.TriggerSchedule || bp.Trigger.Configuration == nil {
		return ""
	}
	for _, key := range []string{"cron", "schedule", "expression"} {
		if v, ok := bp.Trigger.Configuration[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
