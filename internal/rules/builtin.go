package rules

// RuleSpec declares one deterministic fraud rule: a boolean CEL
// expression over the context activation and the score it contributes
// when true. Contributions are additive before the final cap.
type RuleSpec struct {
	Name         string
	Expression   string
	Contribution float64
}

// BuiltinRules returns the fixed rule set in evaluation order. The
// order is part of the contract: triggeredRules in every assessment
// lists hits in exactly this sequence.
func BuiltinRules() []RuleSpec {
	return []RuleSpec{
		{
			// One actor controlling many apparent wallets.
			Name:         "SYBIL_SUSPECT",
			Expression:   "linked_wallets > 3",
			Contribution: 0.4,
		},
		{
			Name:         "LOAN_SPAM",
			Expression:   "recent_requests_24h > 5",
			Contribution: 0.3,
		},
		{
			Name:         "MULTIPLE_DEFAULTS",
			Expression:   "total_defaults >= 2",
			Contribution: 0.5,
		},
		{
			Name:         "RISKY_RECIPIENT",
			Expression:   "blacklisted_destination",
			Contribution: 0.8,
		},
		{
			// Average repayment delay beyond seven days.
			Name:         "CHRONIC_LATE_PAYER",
			Expression:   "avg_repayment_delay > 604800.0",
			Contribution: 0.2,
		},
		{
			// Strategic default risk: large first loans with thin history.
			Name:         "HIGH_VALUE_NO_HISTORY",
			Expression:   "has_loan_request && loan_amount > 5000.0 && total_loans < 3",
			Contribution: 0.3,
		},
	}
}
