// Package signals assembles the per-evaluation fraud context snapshot.
package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/credora-labs/kestrel/internal/domain"
	"github.com/credora-labs/kestrel/internal/velocity"
)

// Builder constructs FraudContext snapshots from the identity provider
// and the loan ledger. It makes one-shot reads only; retries, if any,
// belong to the caller.
type Builder struct {
	identity domain.IdentityProvider
	ledger   domain.LedgerRepository
	velocity *velocity.Service
	timeout  time.Duration
}

// NewBuilder creates a context builder. timeout bounds the combined
// upstream reads for one Build call.
func NewBuilder(identity domain.IdentityProvider, ledger domain.LedgerRepository, vel *velocity.Service, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Builder{
		identity: identity,
		ledger:   ledger,
		velocity: vel,
		timeout:  timeout,
	}
}

// Build assembles a fully populated context for one evaluation. Any
// unreachable collaborator surfaces as ErrUpstreamUnavailable; partial
// contexts are never returned.
func (b *Builder) Build(ctx context.Context, userID, walletAddress string, loanRequest *domain.LoanRequest) (*domain.FraudContext, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	sig, err := b.identity.Signals(ctx, userID, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: identity provider: %v", domain.ErrUpstreamUnavailable, err)
	}

	stats, err := b.ledger.GetLoanStats(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: loan ledger: %v", domain.ErrUpstreamUnavailable, err)
	}

	recent, err := b.velocity.Observe(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: request history: %v", domain.ErrUpstreamUnavailable, err)
	}

	blacklisted, err := b.ledger.IsBlacklisted(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: blacklist screen: %v", domain.ErrUpstreamUnavailable, err)
	}

	fc := &domain.FraudContext{
		UserID:        userID,
		WalletAddress: walletAddress,
		IdentityHash:  IdentityHash(userID),

		ActiveLoansCount:          stats.ActiveLoansCount,
		RecentLoanRequestsLast24h: recent,
		TotalLoansTaken:           stats.TotalLoansTaken,
		TotalDefaults:             stats.TotalDefaults,
		AvgRepaymentDelaySeconds:  stats.AvgRepaymentDelaySeconds,

		DeviceFingerprint: sig.DeviceFingerprint,
		IPCountryCode:     sig.IPCountryCode,

		LinkedWalletsCount:              sig.LinkedWalletsCount,
		IsBlacklistedAddressDestination: blacklisted,

		OnChainScore: stats.OnChainScore,
	}

	if loanRequest != nil {
		// Copy so the snapshot cannot be mutated through the caller's
		// request value.
		req := *loanRequest
		req.Timestamp = time.Now().UnixMilli()
		fc.CurrentLoanRequest = &req
	}

	return fc, nil
}

// IdentityHash derives the deterministic content hash of a user ID:
// keccak256 over the raw UTF-8 bytes, 0x-prefixed hex. This matches
// the hash registered with the identity provider.
func IdentityHash(userID string) string {
	return crypto.Keccak256Hash([]byte(userID)).Hex()
}
