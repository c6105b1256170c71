// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/credora-labs/kestrel/internal/domain"
)

// SQLRepository implements domain.LedgerRepository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.LedgerRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveLoan stores a loan record.
func (r *SQLRepository) SaveLoan(ctx context.Context, loan *domain.Loan) error {
	if loan.ID == "" || loan.Borrower == "" {
		return fmt.Errorf("%w: loan id and borrower are required", domain.ErrInvalidInput)
	}

	status := loan.Status
	if status == "" {
		status = domain.LoanStatusPending
	}
	now := time.Now().UTC()
	if loan.CreatedAt.IsZero() {
		loan.CreatedAt = now
	}
	if loan.UpdatedAt.IsZero() {
		loan.UpdatedAt = now
	}

	query := `
		INSERT INTO loans (
			id, borrower, lender, amount, asset_symbol,
			collateral_amount, term_days, status, has_red_flag,
			repayment_delay_s, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		loan.ID, loan.Borrower, loan.Lender,
		loan.Amount, loan.AssetSymbol, loan.CollateralAmount,
		loan.TermDays, status, boolToInt(loan.HasRedFlag),
		loan.RepaymentDelayS, loan.CreatedAt, loan.UpdatedAt,
	)
	return err
}

// GetLoan retrieves a loan by ID.
func (r *SQLRepository) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	query := `
		SELECT id, borrower, lender, amount, asset_symbol,
			   collateral_amount, term_days, status, has_red_flag,
			   repayment_delay_s, created_at, updated_at
		FROM loans
		WHERE id = ?
	`

	loan, err := r.scanLoan(r.db.QueryRowContext(ctx, r.rebind(query), loanID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return loan, err
}

// ListLoans retrieves all loans for a borrower, newest first.
func (r *SQLRepository) ListLoans(ctx context.Context, borrower string) ([]*domain.Loan, error) {
	query := `
		SELECT id, borrower, lender, amount, asset_symbol,
			   collateral_amount, term_days, status, has_red_flag,
			   repayment_delay_s, created_at, updated_at
		FROM loans
		WHERE borrower = ?
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), borrower)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []*domain.Loan
	for rows.Next() {
		loan, err := r.scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}

	return loans, rows.Err()
}

// UpdateLoanStatus transitions a loan to a new status. When a lender is
// given it is recorded (loan funding). A transition to Repaid past the
// loan term records the repayment delay used by downstream aggregates.
func (r *SQLRepository) UpdateLoanStatus(ctx context.Context, loanID, status, lender string) (*domain.Loan, error) {
	loan, err := r.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	loan.Status = status
	loan.UpdatedAt = now
	if lender != "" {
		loan.Lender = lender
	}

	if status == domain.LoanStatusRepaid && loan.TermDays > 0 {
		due := loan.CreatedAt.Add(time.Duration(loan.TermDays) * 24 * time.Hour)
		if now.After(due) {
			loan.RepaymentDelayS = now.Sub(due).Seconds()
		}
	}

	query := `
		UPDATE loans
		SET status = ?, lender = ?, repayment_delay_s = ?, updated_at = ?
		WHERE id = ?
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		loan.Status, loan.Lender, loan.RepaymentDelayS, loan.UpdatedAt, loan.ID,
	)
	if err != nil {
		return nil, err
	}

	return loan, nil
}

// GetLoanStats computes the per-borrower aggregates the context builder
// consumes. A borrower with no loans gets all-zero stats, not an error.
func (r *SQLRepository) GetLoanStats(ctx context.Context, borrower string) (*domain.LoanStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = ?),
			COUNT(*),
			COUNT(*) FILTER (WHERE status = ?),
			COALESCE(AVG(repayment_delay_s) FILTER (WHERE status = ?), 0)
		FROM loans
		WHERE borrower = ?
	`

	// SQLite (modernc) and PostgreSQL both support FILTER since
	// SQLite 3.30; fall back to CASE aggregation otherwise.
	var stats domain.LoanStats
	err := r.db.QueryRowContext(ctx, r.rebind(query),
		domain.LoanStatusActive,
		domain.LoanStatusDefaulted,
		domain.LoanStatusRepaid,
		borrower,
	).Scan(
		&stats.ActiveLoansCount,
		&stats.TotalLoansTaken,
		&stats.TotalDefaults,
		&stats.AvgRepaymentDelaySeconds,
	)
	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// CountRecentLoanRequests counts loan rows created since the given time.
func (r *SQLRepository) CountRecentLoanRequests(ctx context.Context, borrower string, since time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM loans WHERE borrower = ? AND created_at >= ?`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), borrower, since.UTC()).Scan(&count)
	return count, err
}

// SaveAssessment stores a fraud assessment.
func (r *SQLRepository) SaveAssessment(ctx context.Context, a *domain.FraudAssessment) error {
	if a.ID == "" {
		return fmt.Errorf("%w: assessment id is required", domain.ErrInvalidInput)
	}

	rulesJSON, _ := json.Marshal(a.TriggeredRules)
	flagsJSON, _ := json.Marshal(a.ModelFlags)

	query := `
		INSERT INTO assessments (
			id, wallet_address, risk_level, risk_score,
			triggered_rules, model_flags, explanation, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, a.WalletAddress, string(a.FraudRiskLevel), a.FraudRiskScore,
		string(rulesJSON), string(flagsJSON), a.Explanation, a.Timestamp,
	)
	return err
}

// GetAssessment retrieves an assessment by ID.
func (r *SQLRepository) GetAssessment(ctx context.Context, id string) (*domain.FraudAssessment, error) {
	query := `
		SELECT id, wallet_address, risk_level, risk_score,
			   triggered_rules, model_flags, explanation, timestamp
		FROM assessments
		WHERE id = ?
	`

	var a domain.FraudAssessment
	var level, rulesJSON, flagsJSON string

	err := r.db.QueryRowContext(ctx, r.rebind(query), id).Scan(
		&a.ID, &a.WalletAddress, &level, &a.FraudRiskScore,
		&rulesJSON, &flagsJSON, &a.Explanation, &a.Timestamp,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	a.FraudRiskLevel = domain.RiskLevel(level)
	a.TriggeredRules = []string{}
	a.ModelFlags = []string{}
	json.Unmarshal([]byte(rulesJSON), &a.TriggeredRules)
	json.Unmarshal([]byte(flagsJSON), &a.ModelFlags)

	return &a, nil
}

// SaveDID stores a decentralized identity record.
func (r *SQLRepository) SaveDID(ctx context.Context, did *domain.DIDRecord) error {
	if did.WalletAddress == "" || did.UniquePersonID == "" {
		return fmt.Errorf("%w: wallet address and person id are required", domain.ErrInvalidInput)
	}

	if did.CreatedAt.IsZero() {
		did.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO dids (
			wallet_address, unique_person_id, face_embedding_hash,
			device_fingerprint_hash, behaviour_signature_hash,
			sybil_resistance_level, identity_strength_score,
			revoked, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		did.WalletAddress, did.UniquePersonID,
		did.FaceEmbeddingHash, did.DeviceFingerprintHash, did.BehaviourSignatureHash,
		did.SybilResistanceLevel, did.IdentityStrengthScore,
		boolToInt(did.Revoked), did.CreatedAt,
	)
	return err
}

// GetDIDByWallet retrieves a DID record by wallet address.
func (r *SQLRepository) GetDIDByWallet(ctx context.Context, walletAddress string) (*domain.DIDRecord, error) {
	query := `
		SELECT wallet_address, unique_person_id, face_embedding_hash,
			   device_fingerprint_hash, behaviour_signature_hash,
			   sybil_resistance_level, identity_strength_score,
			   revoked, created_at
		FROM dids
		WHERE wallet_address = ?
	`
	return r.scanDID(r.db.QueryRowContext(ctx, r.rebind(query), walletAddress))
}

// GetDIDByFaceHash retrieves a DID record by face embedding hash.
func (r *SQLRepository) GetDIDByFaceHash(ctx context.Context, faceHash string) (*domain.DIDRecord, error) {
	query := `
		SELECT wallet_address, unique_person_id, face_embedding_hash,
			   device_fingerprint_hash, behaviour_signature_hash,
			   sybil_resistance_level, identity_strength_score,
			   revoked, created_at
		FROM dids
		WHERE face_embedding_hash = ?
	`
	return r.scanDID(r.db.QueryRowContext(ctx, r.rebind(query), faceHash))
}

// CountWalletsByFingerprint counts non-revoked identities sharing a
// device fingerprint hash. Feeds the linked-wallets signal.
func (r *SQLRepository) CountWalletsByFingerprint(ctx context.Context, fingerprintHash string) (int64, error) {
	if fingerprintHash == "" {
		return 0, nil
	}

	query := `
		SELECT COUNT(*) FROM dids
		WHERE device_fingerprint_hash = ? AND revoked = 0
	`

	var count int64
	err := r.db.QueryRowContext(ctx, r.rebind(query), fingerprintHash).Scan(&count)
	return count, err
}

// IsBlacklisted reports whether the address is on the blacklist.
func (r *SQLRepository) IsBlacklisted(ctx context.Context, address string) (bool, error) {
	query := `SELECT COUNT(*) FROM blacklisted_addresses WHERE address = ?`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), address).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// AddBlacklistedAddress adds an address to the blacklist.
func (r *SQLRepository) AddBlacklistedAddress(ctx context.Context, address, reason string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required", domain.ErrInvalidInput)
	}

	query := `INSERT INTO blacklisted_addresses (address, reason, created_at) VALUES (?, ?, ?)`
	_, err := r.db.ExecContext(ctx, r.rebind(query), address, reason, time.Now().UTC())
	return err
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanLoan(row rowScanner) (*domain.Loan, error) {
	var loan domain.Loan
	var hasRedFlag int

	err := row.Scan(
		&loan.ID, &loan.Borrower, &loan.Lender,
		&loan.Amount, &loan.AssetSymbol, &loan.CollateralAmount,
		&loan.TermDays, &loan.Status, &hasRedFlag,
		&loan.RepaymentDelayS, &loan.CreatedAt, &loan.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	loan.HasRedFlag = hasRedFlag != 0
	return &loan, nil
}

func (r *SQLRepository) scanDID(row rowScanner) (*domain.DIDRecord, error) {
	var did domain.DIDRecord
	var revoked int

	err := row.Scan(
		&did.WalletAddress, &did.UniquePersonID,
		&did.FaceEmbeddingHash, &did.DeviceFingerprintHash, &did.BehaviourSignatureHash,
		&did.SybilResistanceLevel, &did.IdentityStrengthScore,
		&revoked, &did.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	did.Revoked = revoked != 0
	return &did, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
