// Package velocity tracks loan-request frequency per borrower.
package velocity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/credora-labs/kestrel/internal/domain"
)

// Service counts loan requests inside a sliding window. It prefers the
// cache's atomic counter (accurate across nodes when backed by Redis)
// and falls back to a ledger count when the cache is unavailable.
type Service struct {
	ledger domain.LedgerRepository
	cache  domain.Cache
	window time.Duration
}

// NewService creates a new velocity service. window is the counting
// window for "recent" requests; the LOAN_SPAM signal uses 24 hours.
func NewService(ledger domain.LedgerRepository, cache domain.Cache, window time.Duration) *Service {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		ledger: ledger,
		cache:  cache,
		window: window,
	}
}

// Observe records one loan request for the borrower and returns how
// many requests preceded it inside the window. The counter includes
// the observed request, so the prior-request count is value-1.
func (s *Service) Observe(ctx context.Context, borrower string) (int, error) {
	if borrower == "" {
		return 0, fmt.Errorf("borrower is required")
	}

	if s.cache != nil {
		n, err := s.cache.IncrementCounter(ctx, "requests:"+borrower, s.window)
		if err == nil {
			return int(n - 1), nil
		}
		slog.Warn("velocity counter unavailable, falling back to ledger",
			"borrower", borrower,
			"error", err,
		)
	}

	count, err := s.countFromLedger(ctx, borrower)
	if err != nil {
		return 0, err
	}
	// The API edge saves the loan row before the pipeline runs, so the
	// ledger count already includes the request being observed. Exclude
	// it to match what the counter path reports.
	if count > 0 {
		count--
	}
	return count, nil
}

// Recent returns the window's request count without recording a new
// observation.
func (s *Service) Recent(ctx context.Context, borrower string) (int, error) {
	if borrower == "" {
		return 0, fmt.Errorf("borrower is required")
	}
	return s.countFromLedger(ctx, borrower)
}

func (s *Service) countFromLedger(ctx context.Context, borrower string) (int, error) {
	if s.ledger == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-s.window)
	count, err := s.ledger.CountRecentLoanRequests(ctx, borrower, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count loan requests: %w", err)
	}
	return int(count), nil
}
