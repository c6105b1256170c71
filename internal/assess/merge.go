// Package assess orchestrates the fraud evaluation pipeline and merges
// its stages into the final verdict.
package assess

import (
	"time"

	"github.com/google/uuid"

	"github.com/credora-labs/kestrel/internal/domain"
)

// Merge combines the rule and advisor outputs into one assessment.
// The advisor's synthesis is authoritative for the level, score, flags
// and explanation; the rule layer is authoritative for triggered rules.
// The advisor already saw the rule result as input, so no weighting or
// averaging happens here, and the advisor is never allowed to suppress
// deterministic findings.
func Merge(wallet string, rr domain.RuleResult, ar *domain.AdvisorResult) *domain.FraudAssessment {
	triggered := make([]string, len(rr.TriggeredRules))
	copy(triggered, rr.TriggeredRules)

	flags := make([]string, len(ar.FlagsFromModel))
	copy(flags, ar.FlagsFromModel)

	return &domain.FraudAssessment{
		ID:             uuid.New().String(),
		WalletAddress:  wallet,
		FraudRiskLevel: ar.FraudRiskLevel,
		FraudRiskScore: ar.FraudRiskScore,
		TriggeredRules: triggered,
		ModelFlags:     flags,
		Explanation:    ar.Explanation,
		Timestamp:      time.Now().UnixMilli(),
	}
}
