package signals

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/credora-labs/kestrel/internal/domain"
	"github.com/credora-labs/kestrel/internal/velocity"
)

type stubIdentity struct {
	signals *domain.IdentitySignals
	err     error
}

func (s *stubIdentity) Signals(ctx context.Context, userID, walletAddress string) (*domain.IdentitySignals, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.signals, nil
}

type stubLedger struct {
	stats       *domain.LoanStats
	recentCount int64
	blacklisted bool

	statsErr     error
	recentErr    error
	blacklistErr error
}

func (s *stubLedger) SaveLoan(ctx context.Context, loan *domain.Loan) error { return nil }
func (s *stubLedger) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	return nil, domain.ErrNotFound
}
func (s *stubLedger) ListLoans(ctx context.Context, borrower string) ([]*domain.Loan, error) {
	return nil, nil
}
func (s *stubLedger) UpdateLoanStatus(ctx context.Context, loanID, status, lender string) (*domain.Loan, error) {
	return nil, domain.ErrNotFound
}

func (s *stubLedger) GetLoanStats(ctx context.Context, borrower string) (*domain.LoanStats, error) {
	if s.statsErr != nil {
		return nil, s.statsErr
	}
	if s.stats == nil {
		return &domain.LoanStats{}, nil
	}
	return s.stats, nil
}

func (s *stubLedger) CountRecentLoanRequests(ctx context.Context, borrower string, since time.Time) (int64, error) {
	if s.recentErr != nil {
		return 0, s.recentErr
	}
	return s.recentCount, nil
}

func (s *stubLedger) SaveAssessment(ctx context.Context, a *domain.FraudAssessment) error { return nil }
func (s *stubLedger) GetAssessment(ctx context.Context, id string) (*domain.FraudAssessment, error) {
	return nil, domain.ErrNotFound
}
func (s *stubLedger) SaveDID(ctx context.Context, did *domain.DIDRecord) error { return nil }
func (s *stubLedger) GetDIDByWallet(ctx context.Context, walletAddress string) (*domain.DIDRecord, error) {
	return nil, domain.ErrNotFound
}
func (s *stubLedger) GetDIDByFaceHash(ctx context.Context, faceHash string) (*domain.DIDRecord, error) {
	return nil, domain.ErrNotFound
}
func (s *stubLedger) CountWalletsByFingerprint(ctx context.Context, fingerprintHash string) (int64, error) {
	return 0, nil
}

func (s *stubLedger) IsBlacklisted(ctx context.Context, address string) (bool, error) {
	if s.blacklistErr != nil {
		return false, s.blacklistErr
	}
	return s.blacklisted, nil
}

func (s *stubLedger) Ping(ctx context.Context) error { return nil }
func (s *stubLedger) Close() error                   { return nil }

func newTestBuilder(ident domain.IdentityProvider, ledger domain.LedgerRepository) *Builder {
	vel := velocity.NewService(ledger, nil, 24*time.Hour)
	return NewBuilder(ident, ledger, vel, 5*time.Second)
}

func TestBuild(t *testing.T) {
	t.Run("PopulatesAllSignals", func(t *testing.T) {
		fp := "device-1"
		country := "DE"
		onChain := 0.35
		ident := &stubIdentity{signals: &domain.IdentitySignals{
			DeviceFingerprint:  &fp,
			IPCountryCode:      &country,
			LinkedWalletsCount: 4,
			Verified:           true,
		}}
		ledger := &stubLedger{
			stats: &domain.LoanStats{
				ActiveLoansCount:         2,
				TotalLoansTaken:          7,
				TotalDefaults:            1,
				AvgRepaymentDelaySeconds: 120.5,
				OnChainScore:             &onChain,
			},
			// Includes the row saved for the request under evaluation;
			// the context reports the three prior requests.
			recentCount: 4,
			blacklisted: true,
		}

		fc, err := newTestBuilder(ident, ledger).Build(t.Context(), "user-1", "0xabc", nil)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		if fc.UserID != "user-1" || fc.WalletAddress != "0xabc" {
			t.Errorf("unexpected identity fields: %q %q", fc.UserID, fc.WalletAddress)
		}
		if fc.ActiveLoansCount != 2 || fc.TotalLoansTaken != 7 || fc.TotalDefaults != 1 {
			t.Errorf("unexpected loan aggregates: %+v", fc)
		}
		if fc.AvgRepaymentDelaySeconds != 120.5 {
			t.Errorf("expected avg delay 120.5, got %v", fc.AvgRepaymentDelaySeconds)
		}
		if fc.RecentLoanRequestsLast24h != 3 {
			t.Errorf("expected 3 recent requests, got %d", fc.RecentLoanRequestsLast24h)
		}
		if fc.DeviceFingerprint == nil || *fc.DeviceFingerprint != "device-1" {
			t.Errorf("expected device fingerprint device-1, got %v", fc.DeviceFingerprint)
		}
		if fc.IPCountryCode == nil || *fc.IPCountryCode != "DE" {
			t.Errorf("expected country DE, got %v", fc.IPCountryCode)
		}
		if fc.LinkedWalletsCount != 4 {
			t.Errorf("expected 4 linked wallets, got %d", fc.LinkedWalletsCount)
		}
		if !fc.IsBlacklistedAddressDestination {
			t.Error("expected blacklisted destination flag")
		}
		if fc.OnChainScore == nil || *fc.OnChainScore != 0.35 {
			t.Errorf("expected on-chain score 0.35, got %v", fc.OnChainScore)
		}
		if fc.CurrentLoanRequest != nil {
			t.Error("expected nil loan request when none was supplied")
		}
	})

	t.Run("CopiesLoanRequest", func(t *testing.T) {
		ident := &stubIdentity{signals: &domain.IdentitySignals{}}
		ledger := &stubLedger{}

		req := &domain.LoanRequest{Amount: "1500", AssetSymbol: "C2FLR", CollateralAmount: "3000"}
		fc, err := newTestBuilder(ident, ledger).Build(t.Context(), "user-1", "0xabc", req)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		if fc.CurrentLoanRequest == nil {
			t.Fatal("expected loan request in context")
		}
		if fc.CurrentLoanRequest == req {
			t.Error("expected a copy, got the caller's pointer")
		}
		if fc.CurrentLoanRequest.Timestamp == 0 {
			t.Error("expected request timestamp to be stamped")
		}

		req.Amount = "999999"
		if fc.CurrentLoanRequest.Amount != "1500" {
			t.Error("mutating the caller's request leaked into the snapshot")
		}
	})

	t.Run("IdentityFailure", func(t *testing.T) {
		ident := &stubIdentity{err: errors.New("provider down")}
		_, err := newTestBuilder(ident, &stubLedger{}).Build(t.Context(), "user-1", "0xabc", nil)
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("LedgerStatsFailure", func(t *testing.T) {
		ident := &stubIdentity{signals: &domain.IdentitySignals{}}
		ledger := &stubLedger{statsErr: errors.New("db down")}
		_, err := newTestBuilder(ident, ledger).Build(t.Context(), "user-1", "0xabc", nil)
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("VelocityFailure", func(t *testing.T) {
		ident := &stubIdentity{signals: &domain.IdentitySignals{}}
		ledger := &stubLedger{recentErr: errors.New("db down")}
		_, err := newTestBuilder(ident, ledger).Build(t.Context(), "user-1", "0xabc", nil)
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})

	t.Run("BlacklistFailure", func(t *testing.T) {
		ident := &stubIdentity{signals: &domain.IdentitySignals{}}
		ledger := &stubLedger{blacklistErr: errors.New("db down")}
		_, err := newTestBuilder(ident, ledger).Build(t.Context(), "user-1", "0xabc", nil)
		if !errors.Is(err, domain.ErrUpstreamUnavailable) {
			t.Errorf("expected ErrUpstreamUnavailable, got %v", err)
		}
	})
}

func TestIdentityHash(t *testing.T) {
	h1 := IdentityHash("user-1")
	h2 := IdentityHash("user-1")
	h3 := IdentityHash("user-2")

	if h1 != h2 {
		t.Error("expected hash to be deterministic")
	}
	if h1 == h3 {
		t.Error("expected distinct users to hash differently")
	}
	if !strings.HasPrefix(h1, "0x") || len(h1) != 66 {
		t.Errorf("expected 0x-prefixed 32-byte hex hash, got %q", h1)
	}
}
