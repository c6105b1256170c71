package publisher

import (
	"context"
	"testing"

	"github.com/credora-labs/kestrel/internal/domain"
)

func TestDisabledPublisherIsNoOp(t *testing.T) {
	p, err := New(domain.ChainConfig{}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Enabled() {
		t.Error("publisher without key should be disabled")
	}
	if err := p.Publish(context.Background(), "0xabc", 0.42, domain.RiskMedium); err != nil {
		t.Errorf("disabled publish should succeed silently, got %v", err)
	}
}

func TestKeyWithoutRegistryStaysDisabled(t *testing.T) {
	p, err := New(domain.ChainConfig{
		PrivateKey: "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Enabled() {
		t.Error("publisher without registry address should be disabled")
	}
}

func TestScaledScore(t *testing.T) {
	tests := []struct {
		score float64
		want  int64
	}{
		{0, 0},
		{0.1, 10},
		{0.555, 55},
		{0.999, 99},
		{1, 100},
		{-0.5, 0},
		{2.0, 100},
	}
	for _, tt := range tests {
		if got := scaledScore(tt.score); got != tt.want {
			t.Errorf("scaledScore(%v) = %d, want %d", tt.score, got, tt.want)
		}
	}
}

func TestRiskLevelOrdinals(t *testing.T) {
	if domain.RiskLow.Ordinal() != 0 || domain.RiskMedium.Ordinal() != 1 || domain.RiskHigh.Ordinal() != 2 {
		t.Error("registry level encoding must be LOW=0, MEDIUM=1, HIGH=2")
	}
}
