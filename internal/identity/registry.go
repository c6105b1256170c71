// Package identity implements the DID registry that doubles as the
// fraud pipeline's identity signal provider.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/credora-labs/kestrel/internal/domain"
)

const signalsTTL = 5 * time.Minute

// Registry stores decentralized identities and derives identity
// signals (fingerprints, linked-wallet counts) from them.
type Registry struct {
	ledger domain.LedgerRepository
	cache  domain.Cache
}

// NewRegistry creates a registry backed by the ledger repository.
// cache may be nil; signals are then computed on every read.
func NewRegistry(ledger domain.LedgerRepository, cache domain.Cache) *Registry {
	return &Registry{
		ledger: ledger,
		cache:  cache,
	}
}

// RegisterInput is one DID registration request.
type RegisterInput struct {
	WalletAddress          string
	UniquePersonID         string
	FaceEmbeddingHash      string
	DeviceFingerprintHash  string
	BehaviourSignatureHash string
}

// Register stores a new DID after duplicate screening. A wallet or
// face hash already present is rejected with ErrDuplicateIdentity.
// A duplicate device fingerprint is flagged but NOT enforced: shared
// devices are a legitimate pattern (households), so blocking on it is
// a product decision this layer does not take.
func (r *Registry) Register(ctx context.Context, in RegisterInput) (*domain.DIDRecord, error) {
	if in.WalletAddress == "" {
		return nil, fmt.Errorf("%w: walletAddress is required", domain.ErrInvalidInput)
	}

	if existing, err := r.ledger.GetDIDByWallet(ctx, in.WalletAddress); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("%w: wallet already registered", domain.ErrDuplicateIdentity)
	}

	if in.FaceEmbeddingHash != "" {
		if existing, err := r.ledger.GetDIDByFaceHash(ctx, in.FaceEmbeddingHash); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		} else if existing != nil {
			return nil, fmt.Errorf("%w: face match", domain.ErrDuplicateIdentity)
		}
	}

	if in.DeviceFingerprintHash != "" {
		shared, err := r.ledger.CountWalletsByFingerprint(ctx, in.DeviceFingerprintHash)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		if shared > 0 {
			slog.Warn("device fingerprint already registered",
				"wallet", in.WalletAddress,
				"shared_wallets", shared,
			)
		}
	}

	level := resistanceLevel(in)

	did := &domain.DIDRecord{
		WalletAddress:          in.WalletAddress,
		UniquePersonID:         in.UniquePersonID,
		FaceEmbeddingHash:      in.FaceEmbeddingHash,
		DeviceFingerprintHash:  in.DeviceFingerprintHash,
		BehaviourSignatureHash: in.BehaviourSignatureHash,
		SybilResistanceLevel:   level,
		IdentityStrengthScore:  level * 20,
		CreatedAt:              time.Now().UTC(),
	}

	if err := r.ledger.SaveDID(ctx, did); err != nil {
		return nil, fmt.Errorf("failed to save DID: %w", err)
	}

	slog.Info("identity registered",
		"wallet", did.WalletAddress,
		"sybil_resistance_level", did.SybilResistanceLevel,
	)

	return did, nil
}

// resistanceLevel scores the registration 1-5 by signal count: the
// wallet is one point, each supplied hash another, plus one for
// completing the full flow.
func resistanceLevel(in RegisterInput) int {
	level := 1
	if in.DeviceFingerprintHash != "" {
		level++
	}
	if in.BehaviourSignatureHash != "" {
		level++
	}
	if in.FaceEmbeddingHash != "" {
		level++
	}
	if level < 5 {
		level++
	}
	return level
}

// Lookup returns the DID registered for a wallet.
func (r *Registry) Lookup(ctx context.Context, walletAddress string) (*domain.DIDRecord, error) {
	return r.ledger.GetDIDByWallet(ctx, walletAddress)
}

// Signals implements domain.IdentityProvider. An unregistered wallet
// yields unverified defaults rather than an error; only a failing
// ledger read is surfaced.
func (r *Registry) Signals(ctx context.Context, userID, walletAddress string) (*domain.IdentitySignals, error) {
	if r.cache != nil {
		if cached, err := r.cache.GetSignals(ctx, walletAddress); err == nil && cached != nil {
			return cached, nil
		}
	}

	did, err := r.ledger.GetDIDByWallet(ctx, walletAddress)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.IdentitySignals{}, nil
	}
	if err != nil {
		return nil, err
	}

	sig := &domain.IdentitySignals{Verified: !did.Revoked}

	if did.DeviceFingerprintHash != "" {
		fp := did.DeviceFingerprintHash
		sig.DeviceFingerprint = &fp

		linked, err := r.ledger.CountWalletsByFingerprint(ctx, fp)
		if err != nil {
			return nil, err
		}
		sig.LinkedWalletsCount = int(linked)
	}

	if r.cache != nil {
		if err := r.cache.SetSignals(ctx, walletAddress, sig, signalsTTL); err != nil {
			slog.Debug("failed to cache identity signals", "wallet", walletAddress, "error", err)
		}
	}

	return sig, nil
}
