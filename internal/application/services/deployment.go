package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/longregen/promptforge/internal/domain"
	"github.com/longregen/promptforge/internal/domain/models"
	"github.com/longregen/promptforge/internal/logging"
)

// GateAction is what the deployment gate did with a candidate
type GateAction string

// Gate actions
const (
	GateDeployed GateAction = "deployed"
	GateHeld     GateAction = "held"
	GateArchived GateAction = "archived"
)

// GateDecision records the gate outcome for one candidate
type GateDecision struct {
	Action  GateAction            `json:"action"`
	Version *models.PromptVersion `json:"version"`
	Reason  string                `json:"reason"`
}

// DeploymentGate applies deployment policy to an evaluation recommendation
type DeploymentGate struct {
	versions   *VersionService
	autoDeploy bool
	logger     *zap.Logger
}

// NewDeploymentGate creates a new deployment gate
func NewDeploymentGate(versions *VersionService, autoDeploy bool, logger *zap.Logger) *DeploymentGate {
	return &DeploymentGate{
		versions:   versions,
		autoDeploy: autoDeploy,
		logger:     logging.OrNop(logger),
	}
}

// Apply acts on the recommendation for candidate. The caller must hold the
// prompt lock: deploys go through the held-lock path.
//
//   - deploy with auto-deploy on: the candidate is deployed
//   - deploy with auto-deploy off, or manual_review: the candidate stays evaluated
//   - reject: the candidate is archived with the rejection reason
func (g *DeploymentGate) Apply(ctx context.Context, result *models.EvaluationResult, candidate *models.PromptVersion) (*GateDecision, error) {
	if result == nil || candidate == nil {
		return nil, domain.Validation("evaluation result and candidate are required")
	}
	if result.VersionID != candidate.ID {
		return nil, domain.Validation(fmt.Sprintf("evaluation %s is for version %s, not %s", result.ID, result.VersionID, candidate.ID))
	}

	log := g.logger.With(
		zap.String("prompt_id", candidate.PromptID),
		zap.Int("version", candidate.VersionNumber),
		zap.String("recommendation", string(result.Recommendation)))

	switch result.Recommendation {
	case models.RecommendDeploy:
		if !g.autoDeploy {
			log.Info("auto-deploy disabled, holding candidate for operator")
			return &GateDecision{Action: GateHeld, Version: candidate, Reason: "auto-deploy disabled"}, nil
		}
		deployed, err := g.versions.DeployHeld(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		*candidate = *deployed
		log.Info("candidate deployed")
		return &GateDecision{Action: GateDeployed, Version: deployed, Reason: result.Reason}, nil

	case models.RecommendReject:
		if err := g.versions.ArchiveHeld(ctx, candidate, "rejected: "+result.Reason); err != nil {
			return nil, err
		}
		log.Info("candidate rejected", zap.String("reason", result.Reason))
		return &GateDecision{Action: GateArchived, Version: candidate, Reason: result.Reason}, nil

	case models.RecommendManualReview:
		log.Info("candidate awaiting manual review", zap.String("reason", result.Reason))
		return &GateDecision{Action: GateHeld, Version: candidate, Reason: result.Reason}, nil
	}

	return nil, domain.Validation(fmt.Sprintf("unknown recommendation %q", result.Recommendation))
}
