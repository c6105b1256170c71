package repository

// Schema definitions for the Kestrel ledger.
// Compatible with both SQLite and PostgreSQL.

const schemaLoans = `
CREATE TABLE IF NOT EXISTS loans (
    id TEXT PRIMARY KEY,
    borrower TEXT NOT NULL,
    lender TEXT,
    amount TEXT NOT NULL,
    asset_symbol TEXT NOT NULL,
    collateral_amount TEXT NOT NULL,
    term_days INTEGER NOT NULL DEFAULT 0,
    status TEXT NOT NULL,
    has_red_flag INTEGER NOT NULL DEFAULT 0,
    repayment_delay_s REAL NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_loans_borrower ON loans(borrower);
CREATE INDEX IF NOT EXISTS idx_loans_status ON loans(borrower, status);
CREATE INDEX IF NOT EXISTS idx_loans_created ON loans(borrower, created_at);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    wallet_address TEXT NOT NULL,
    risk_level TEXT NOT NULL,
    risk_score REAL NOT NULL,
    triggered_rules TEXT NOT NULL,
    model_flags TEXT NOT NULL,
    explanation TEXT NOT NULL,
    timestamp BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_wallet ON assessments(wallet_address);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(wallet_address, timestamp);
`

const schemaDIDs = `
CREATE TABLE IF NOT EXISTS dids (
    wallet_address TEXT PRIMARY KEY,
    unique_person_id TEXT NOT NULL,
    face_embedding_hash TEXT,
    device_fingerprint_hash TEXT,
    behaviour_signature_hash TEXT,
    sybil_resistance_level INTEGER NOT NULL,
    identity_strength_score INTEGER NOT NULL,
    revoked INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_dids_face ON dids(face_embedding_hash);
CREATE INDEX IF NOT EXISTS idx_dids_device ON dids(device_fingerprint_hash);
`

const schemaBlacklist = `
CREATE TABLE IF NOT EXISTS blacklisted_addresses (
    address TEXT PRIMARY KEY,
    reason TEXT,
    created_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaLoans,
		schemaAssessments,
		schemaDIDs,
		schemaBlacklist,
	}
}
