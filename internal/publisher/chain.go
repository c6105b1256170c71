// Package publisher pushes fraud scores to the on-chain registry.
// Everything here is advisory: a failed publish is logged and dropped,
// it never blocks or alters an assessment.
package publisher

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/credora-labs/kestrel/internal/domain"
)

// registryABI covers the single registry method the publisher calls.
const registryABI = `[{"name":"updateFraudScore","type":"function","stateMutability":"nonpayable","inputs":[{"name":"wallet","type":"address"},{"name":"score","type":"uint256"},{"name":"level","type":"uint8"}],"outputs":[]}]`

// ChainPublisher implements domain.ScorePublisher against an EVM
// registry contract. Without a signing key it degrades to a logging
// no-op so the rest of the pipeline never has to care.
type ChainPublisher struct {
	client   *ethclient.Client
	key      *ecdsa.PrivateKey
	from     common.Address
	registry common.Address
	abi      abi.ABI
	timeout  time.Duration
	logger   *slog.Logger
	enabled  bool
}

// New creates a chain publisher from config. A missing private key or
// registry address yields a disabled publisher, not an error; score
// publication is optional by design of the deployment, so a node
// without chain credentials still assesses loans.
func New(cfg domain.ChainConfig, logger *slog.Logger) (*ChainPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &ChainPublisher{
		abi:     parsed,
		timeout: timeout,
		logger:  logger,
	}

	if cfg.PrivateKey == "" || cfg.RegistryAddress == "" {
		logger.Info("chain publisher disabled",
			"reason", "missing private key or registry address")
		return p, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial chain RPC: %w", err)
	}

	p.client = client
	p.key = key
	p.from = crypto.PubkeyToAddress(key.PublicKey)
	p.registry = common.HexToAddress(cfg.RegistryAddress)
	p.enabled = true

	logger.Info("chain publisher enabled",
		"from", p.from.Hex(),
		"registry", p.registry.Hex(),
	)
	return p, nil
}

// Enabled reports whether the publisher has chain credentials.
func (p *ChainPublisher) Enabled() bool {
	return p.enabled
}

// Publish writes one score update to the registry. The score lands on
// chain as floor(score*100) in [0,100] and the level as its ordinal.
func (p *ChainPublisher) Publish(ctx context.Context, wallet string, score float64, level domain.RiskLevel) error {
	if !p.enabled {
		p.logger.Info("skipping score publication, publisher disabled",
			"wallet", wallet)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	calldata, err := p.abi.Pack("updateFraudScore",
		common.HexToAddress(wallet),
		big.NewInt(scaledScore(score)),
		level.Ordinal(),
	)
	if err != nil {
		return fmt.Errorf("failed to pack calldata: %w", err)
	}

	nonce, err := p.client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return fmt.Errorf("failed to fetch nonce: %w", err)
	}
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch gas price: %w", err)
	}
	chainID, err := p.client.NetworkID(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch chain id: %w", err)
	}

	tx := types.NewTransaction(nonce, p.registry, big.NewInt(0), 120000, gasPrice, calldata)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(chainID), p.key)
	if err != nil {
		return fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.client.SendTransaction(ctx, signedTx); err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}

	p.logger.Info("score published",
		"wallet", wallet,
		"score", scaledScore(score),
		"level", level,
		"tx", signedTx.Hash().Hex(),
	)
	return nil
}

// Close releases the RPC connection.
func (p *ChainPublisher) Close() {
	if p.client != nil {
		p.client.Close()
	}
}

// scaledScore converts a [0,1] score to the registry's integer scale.
func scaledScore(score float64) int64 {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return int64(math.Floor(score * 100))
}
