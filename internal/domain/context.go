// Package domain defines the core types and interfaces for Kestrel.
package domain

// LoanRequest describes the pending loan an assessment is gating.
// Amounts are decimal strings; they are parsed exactly once, at the
// boundary, and never converted through floats outside rule evaluation.
type LoanRequest struct {
	Amount           string `json:"amount"`
	AssetSymbol      string `json:"assetSymbol"` // e.g. "C2FLR", "fBTC"
	CollateralAmount string `json:"collateralAmount"`
	Timestamp        int64  `json:"timestamp"` // epoch millis
}

// FraudContext is the immutable snapshot of borrower signals built once
// per evaluation. Every downstream stage receives it read-only; nothing
// mutates it after Build returns. Optional fields are nil when the
// signal is genuinely unknown, never zero-valued stand-ins.
type FraudContext struct {
	UserID        string `json:"userId"`
	WalletAddress string `json:"walletAddress"`
	IdentityHash  string `json:"identityHash"` // keccak256(userId), hex

	CurrentLoanRequest *LoanRequest `json:"currentLoanRequest,omitempty"`

	ActiveLoansCount          int     `json:"activeLoansCount"`
	RecentLoanRequestsLast24h int     `json:"recentLoanRequestsLast24h"`
	TotalLoansTaken           int     `json:"totalLoansTaken"`
	TotalDefaults             int     `json:"totalDefaults"`
	AvgRepaymentDelaySeconds  float64 `json:"avgRepaymentDelaySeconds"`

	DeviceFingerprint *string `json:"deviceFingerprint,omitempty"`
	IPCountryCode     *string `json:"ipCountryCode,omitempty"`

	LinkedWalletsCount              int  `json:"linkedWalletsCount"`
	IsBlacklistedAddressDestination bool `json:"isBlacklistedAddressDestination"`

	// Existing on-chain reputation, when one has been published before.
	OnChainScore *float64 `json:"onChainScore,omitempty"`
}
