package domain

import (
	"context"
	"time"
)

// DIDRecord is one registered decentralized identity.
type DIDRecord struct {
	WalletAddress          string    `json:"walletAddress"`
	UniquePersonID         string    `json:"uniquePersonID"`
	FaceEmbeddingHash      string    `json:"faceEmbeddingHash,omitempty"`
	DeviceFingerprintHash  string    `json:"deviceFingerprintHash,omitempty"`
	BehaviourSignatureHash string    `json:"behaviourSignatureHash,omitempty"`
	SybilResistanceLevel   int       `json:"sybilResistanceLevel"`  // 1-5
	IdentityStrengthScore  int       `json:"identityStrengthScore"` // level * 20
	Revoked                bool      `json:"revocationStatus"`
	CreatedAt              time.Time `json:"timestampCreated"`
}

// IdentitySignals is what the identity provider contributes to a fraud
// context. The core treats the provider as an opaque signal source.
type IdentitySignals struct {
	DeviceFingerprint  *string `json:"deviceFingerprint,omitempty"`
	IPCountryCode      *string `json:"ipCountryCode,omitempty"`
	LinkedWalletsCount int     `json:"linkedWalletsCount"`
	Verified           bool    `json:"verified"`
}

// IdentityProvider supplies verification status and device/behaviour
// fingerprints for a borrower.
type IdentityProvider interface {
	Signals(ctx context.Context, userID, walletAddress string) (*IdentitySignals, error)
}
