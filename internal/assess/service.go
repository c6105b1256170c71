package assess

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/credora-labs/kestrel/internal/advisor"
	"github.com/credora-labs/kestrel/internal/domain"
	"github.com/credora-labs/kestrel/internal/rules"
	"github.com/credora-labs/kestrel/internal/signals"
)

// Service runs the evaluation pipeline: build context, evaluate rules,
// consult the advisor, merge, persist and announce. Only the context
// build can fail the caller; everything after the merge is best-effort.
type Service struct {
	builder *signals.Builder
	engine  *rules.Engine
	advisor *advisor.Advisor
	ledger  domain.LedgerRepository
	bus     domain.EventBus
	logger  *slog.Logger
}

func NewService(
	builder *signals.Builder,
	engine *rules.Engine,
	adv *advisor.Advisor,
	ledger domain.LedgerRepository,
	bus domain.EventBus,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		builder: builder,
		engine:  engine,
		advisor: adv,
		ledger:  ledger,
		bus:     bus,
		logger:  logger,
	}
}

// EvaluateLoan assesses a prospective loan for the given borrower. The
// returned assessment is final once this method returns; the score
// publication it triggers happens asynchronously and cannot change it.
func (s *Service) EvaluateLoan(ctx context.Context, userID, walletAddress string, req *domain.LoanRequest) (*domain.FraudAssessment, error) {
	fc, err := s.builder.Build(ctx, userID, walletAddress, req)
	if err != nil {
		return nil, err
	}

	rr := s.engine.Evaluate(fc)
	ar := s.advisor.Assess(ctx, fc, rr)
	assessment := Merge(walletAddress, rr, ar)

	s.logger.Info("loan evaluated",
		"assessment_id", assessment.ID,
		"wallet", walletAddress,
		"level", assessment.FraudRiskLevel,
		"score", assessment.FraudRiskScore,
		"triggered_rules", len(assessment.TriggeredRules),
	)

	if err := s.ledger.SaveAssessment(ctx, assessment); err != nil {
		s.logger.Error("failed to persist assessment",
			"assessment_id", assessment.ID, "error", err)
	}

	s.announce(ctx, assessment)

	return assessment, nil
}

// announce dispatches the completed assessment and its score publication
// onto the bus. Both are fire-and-forget.
func (s *Service) announce(ctx context.Context, a *domain.FraudAssessment) {
	if s.bus == nil {
		return
	}

	pub := domain.ScorePublication{
		WalletAddress:  a.WalletAddress,
		FraudRiskScore: a.FraudRiskScore,
		FraudRiskLevel: a.FraudRiskLevel,
	}
	if payload, err := json.Marshal(pub); err == nil {
		if err := s.bus.Publish(ctx, domain.TopicScorePublish, payload); err != nil {
			s.logger.Error("failed to publish score event",
				"wallet", a.WalletAddress, "error", err)
		}
	}

	if payload, err := json.Marshal(a); err == nil {
		if err := s.bus.Publish(ctx, domain.TopicAssessmentCompleted, payload); err != nil {
			s.logger.Error("failed to publish assessment event",
				"assessment_id", a.ID, "error", err)
		}
	}
}
