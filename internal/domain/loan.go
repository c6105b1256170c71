package domain

import "time"

// Loan statuses.
const (
	LoanStatusPending   = "Pending"
	LoanStatusActive    = "Active"
	LoanStatusRepaid    = "Repaid"
	LoanStatusDefaulted = "Defaulted"
)

// Loan is a ledger record. The fraud pipeline only ever reads aggregate
// counters derived from these rows; it never mutates them.
type Loan struct {
	ID               string    `json:"id"`
	Borrower         string    `json:"borrower"` // wallet address
	Lender           string    `json:"lender,omitempty"`
	Amount           string    `json:"amount"` // decimal string
	AssetSymbol      string    `json:"assetSymbol"`
	CollateralAmount string    `json:"collateralAmount"`
	TermDays         int       `json:"termDays"`
	Status           string    `json:"status"`
	HasRedFlag       bool      `json:"hasRedFlag"`
	RepaymentDelayS  float64   `json:"repaymentDelaySeconds,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// LoanStats are the per-borrower aggregates the context builder reads
// from the ledger.
type LoanStats struct {
	ActiveLoansCount         int
	TotalLoansTaken          int
	TotalDefaults            int
	AvgRepaymentDelaySeconds float64
	OnChainScore             *float64
}
