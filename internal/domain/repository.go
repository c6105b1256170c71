package domain

import (
	"context"
	"time"
)

// LedgerRepository defines persistence for loans, identities, and
// assessments. The fraud pipeline itself only reads aggregates and
// appends assessments; loan mutation happens at the API edge.
type LedgerRepository interface {
	// Loan operations
	SaveLoan(ctx context.Context, loan *Loan) error
	GetLoan(ctx context.Context, loanID string) (*Loan, error)
	ListLoans(ctx context.Context, borrower string) ([]*Loan, error)
	UpdateLoanStatus(ctx context.Context, loanID, status, lender string) (*Loan, error)

	// Aggregate reads consumed by the context builder
	GetLoanStats(ctx context.Context, borrower string) (*LoanStats, error)
	CountRecentLoanRequests(ctx context.Context, borrower string, since time.Time) (int64, error)

	// Assessment results
	SaveAssessment(ctx context.Context, a *FraudAssessment) error
	GetAssessment(ctx context.Context, id string) (*FraudAssessment, error)

	// DID registry
	SaveDID(ctx context.Context, did *DIDRecord) error
	GetDIDByWallet(ctx context.Context, walletAddress string) (*DIDRecord, error)
	GetDIDByFaceHash(ctx context.Context, faceHash string) (*DIDRecord, error)
	CountWalletsByFingerprint(ctx context.Context, fingerprintHash string) (int64, error)

	// Destination screening
	IsBlacklisted(ctx context.Context, address string) (bool, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
