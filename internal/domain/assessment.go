package domain

import "context"

// RiskLevel is the categorical fraud verdict.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Valid reports whether the level is one of LOW, MEDIUM, HIGH.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLow, RiskMedium, RiskHigh:
		return true
	}
	return false
}

// Ordinal maps the level to the on-chain encoding: LOW=0, MEDIUM=1, HIGH=2.
func (l RiskLevel) Ordinal() uint8 {
	switch l {
	case RiskMedium:
		return 1
	case RiskHigh:
		return 2
	default:
		return 0
	}
}

// RuleResult is the output of the deterministic rule layer.
// TriggeredRules preserves evaluation order and contains no duplicates.
type RuleResult struct {
	RuleScore      float64  `json:"ruleScore"` // clamped to [0,1]
	TriggeredRules []string `json:"triggeredRules"`
}

// AdvisorResult is the normalized opinion of the probabilistic model,
// or one of the advisor's deterministic fallbacks. All fields are
// populated on every path.
type AdvisorResult struct {
	FraudRiskLevel RiskLevel `json:"fraudRiskLevel"`
	FraudRiskScore float64   `json:"fraudRiskScore"` // [0,1]
	Explanation    string    `json:"explanation"`
	FlagsFromModel []string  `json:"flagsFromModel"`
}

// FraudAssessment is the externally visible verdict for one evaluation.
// Level, score, flags and explanation come from the advisor verbatim;
// triggered rules come from the rule layer verbatim. The two halves are
// never re-weighted against each other.
type FraudAssessment struct {
	ID            string `json:"id"`
	WalletAddress string `json:"walletAddress"`

	FraudRiskLevel RiskLevel `json:"fraudRiskLevel"`
	FraudRiskScore float64   `json:"fraudRiskScore"`
	TriggeredRules []string  `json:"triggeredRules"`
	ModelFlags     []string  `json:"modelFlags"`
	Explanation    string    `json:"explanation"`
	Timestamp      int64     `json:"timestamp"` // epoch millis at merge
}

// ScorePublication is the payload dispatched to the score-publish topic
// after an assessment completes. The publish path is advisory and
// best-effort; it never feeds back into the assessment.
type ScorePublication struct {
	WalletAddress  string    `json:"walletAddress"`
	FraudRiskScore float64   `json:"fraudRiskScore"`
	FraudRiskLevel RiskLevel `json:"fraudRiskLevel"`
}

// ScorePublisher pushes an advisory score to the external registry.
// Failures are the caller's to log; the assessment that produced the
// score has already been returned and must not be affected.
type ScorePublisher interface {
	Publish(ctx context.Context, wallet string, score float64, level RiskLevel) error
}
