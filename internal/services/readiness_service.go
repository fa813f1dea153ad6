package services

import (
	"context"
	"encoding/json"
	"fmt"

	"yusrai/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Per-platform credential states.
const (
	CredentialMissing = "missing"
	CredentialSaved   = "saved"
	CredentialTested  = "tested"
)

// Aggregate states shared by both readiness dimensions.
const (
	StatusMissing  = "missing"
	StatusPartial  = "partial"
	StatusComplete = "complete"
	StatusPending  = "pending"
)

type PlatformStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"` // missing, saved, tested
}

type AgentStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"` // pending, added, dismissed
}

type CredentialReadiness struct {
	IsReady   bool             `json:"is_ready"`
	Status    string           `json:"status"` // missing, partial, complete
	Platforms []PlatformStatus `json:"platforms"`
}

type AgentReadiness struct {
	IsReady bool          `json:"is_ready"`
	Status  string        `json:"status"` // pending, partial, complete
	Agents  []AgentStatus `json:"agents"`
}

// ExecutionReadiness is the single go/no-go verdict the execution-gating
// UI depends on, with actionable remediation lists.
type ExecutionReadiness struct {
	IsReady            bool     `json:"is_ready"`
	CredentialStatus   string   `json:"credential_status"`
	AgentStatus        string   `json:"agent_status"`
	MissingCredentials []string `json:"missing_credentials"`
	PendingAgents      []string `json:"pending_agents"`
}

// ReadinessService recomputes execution readiness on demand. Results are
// never cached: credentials and decisions can change between checks.
// Every evaluator is total: collaborator failures degrade to the most
// conservative verdict instead of propagating.
type ReadinessService struct {
	db          *gorm.DB
	logger      *logrus.Logger
	responses   *ResponseService
	credentials *CredentialService
	decisions   *AgentDecisionService
}

func NewReadinessService(db *gorm.DB, logger *logrus.Logger, responses *ResponseService, credentials *CredentialService, decisions *AgentDecisionService) *ReadinessService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ReadinessService{
		db:          db,
		logger:      logger,
		responses:   responses,
		credentials: credentials,
		decisions:   decisions,
	}
}

// EvaluateCredentials determines per-platform credential status for the
// automation's configured platforms. An automation with no configured
// platforms is trivially ready.
func (s *ReadinessService) EvaluateCredentials(ctx context.Context, automationID, userID string) CredentialReadiness {
	notReady := CredentialReadiness{IsReady: false, Status: StatusMissing, Platforms: []PlatformStatus{}}

	names, err := s.platformsConfig(ctx, automationID)
	if err != nil {
		s.logger.Warnf("readiness: platform config lookup failed for %s: %v", automationID, err)
		return notReady
	}
	if len(names) == 0 {
		return CredentialReadiness{IsReady: true, Status: StatusComplete, Platforms: []PlatformStatus{}}
	}

	platforms := make([]PlatformStatus, 0, len(names))
	tested, nonMissing := 0, 0
	for _, name := range names {
		exists, isTested, lastStatus, err := s.credentials.GetTestStatus(ctx, automationID, name, userID)
		if err != nil {
			s.logger.Warnf("readiness: credential lookup failed for %s/%s: %v", automationID, name, err)
			return notReady
		}
		status := CredentialMissing
		switch {
		case exists && isTested && lastStatus == "success":
			status = CredentialTested
			tested++
			nonMissing++
		case exists:
			status = CredentialSaved
			nonMissing++
		}
		platforms = append(platforms, PlatformStatus{Name: name, Status: status})
	}

	agg := StatusMissing
	switch {
	case tested == len(names):
		agg = StatusComplete
	case nonMissing > 0:
		agg = StatusPartial
	}
	return CredentialReadiness{
		IsReady:   agg == StatusComplete,
		Status:    agg,
		Platforms: platforms,
	}
}

// EvaluateAgents determines per-agent decision status from the latest
// stored structured automation. No recommended agents means trivially
// complete.
func (s *ReadinessService) EvaluateAgents(ctx context.Context, automationID string) AgentReadiness {
	notReady := AgentReadiness{IsReady: false, Status: StatusPending, Agents: []AgentStatus{}}

	sa, _, err := s.responses.GetLatestStructured(ctx, automationID)
	if err != nil {
		s.logger.Warnf("readiness: latest response lookup failed for %s: %v", automationID, err)
		return notReady
	}
	if sa == nil || len(sa.Agents) == 0 {
		return AgentReadiness{IsReady: true, Status: StatusComplete, Agents: []AgentStatus{}}
	}

	agents := make([]AgentStatus, 0, len(sa.Agents))
	decided := 0
	for _, agent := range sa.Agents {
		decision, err := s.decisions.GetDecision(ctx, automationID, agent.Name)
		if err != nil {
			s.logger.Warnf("readiness: decision lookup failed for %s/%s: %v", automationID, agent.Name, err)
			return notReady
		}
		if decision != DecisionPending {
			decided++
		}
		agents = append(agents, AgentStatus{Name: agent.Name, Status: decision})
	}

	agg := StatusPending
	switch {
	case decided == len(agents):
		agg = StatusComplete
	case decided > 0:
		agg = StatusPartial
	}
	return AgentReadiness{
		IsReady: agg == StatusComplete,
		Status:  agg,
		Agents:  agents,
	}
}

// GetExecutionReadiness runs both evaluators concurrently and combines
// them. It never returns an error; internal failures surface as a
// not-ready verdict with best-effort lists.
func (s *ReadinessService) GetExecutionReadiness(ctx context.Context, automationID, userID string) ExecutionReadiness {
	var (
		creds  CredentialReadiness
		agents AgentReadiness
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		creds = s.EvaluateCredentials(gctx, automationID, userID)
		return nil
	})
	g.Go(func() error {
		agents = s.EvaluateAgents(gctx, automationID)
		return nil
	})
	// evaluators are total, the group exists for the join
	_ = g.Wait()

	missing := []string{}
	for _, p := range creds.Platforms {
		if p.Status != CredentialTested {
			missing = append(missing, p.Name)
		}
	}
	pending := []string{}
	for _, a := range agents.Agents {
		if a.Status == DecisionPending {
			pending = append(pending, a.Name)
		}
	}

	return ExecutionReadiness{
		IsReady:            creds.IsReady && agents.IsReady,
		CredentialStatus:   creds.Status,
		AgentStatus:        agents.Status,
		MissingCredentials: missing,
		PendingAgents:      pending,
	}
}

// platformsConfig reads the ordered platform names the automation is
// configured with.
func (s *ReadinessService) platformsConfig(ctx context.Context, automationID string) ([]string, error) {
	var automation models.Automation
	if err := s.db.WithContext(ctx).First(&automation, "id = ?", automationID).Error; err != nil {
		return nil, err
	}
	if automation.PlatformsConfig == "" {
		return nil, nil
	}
	var names []string
	if err := json.Unmarshal([]byte(automation.PlatformsConfig), &names); err != nil {
		return nil, fmt.Errorf("decode platforms config: %w", err)
	}
	// keep the list unique while preserving order; readiness lists must
	// never repeat a platform
	seen := map[string]bool{}
	out := names[:0]
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out, nil
}
