// Package advisor wraps the external probabilistic risk-opinion model.
//
// The advisor never fails: a disabled integration answers with a fixed
// low-risk result (an operator chose to run without the model), while
// any runtime error answers with a fixed medium-risk result flagged
// AI_ERROR (an anomaly warrants suspicion). The two paths are
// deliberately distinguishable.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/credora-labs/kestrel/internal/domain"
)

// ModelClient is the transport seam to the generative model. It sends
// one prompt and returns the raw text response.
type ModelClient interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Advisor produces a normalized model opinion for a fraud context.
type Advisor struct {
	client  ModelClient
	enabled bool
	timeout time.Duration
}

// New creates an advisor. If cfg carries no API key the integration is
// disabled and every Assess call returns the unconfigured fallback.
func New(cfg domain.ModelConfig, client ModelClient) *Advisor {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Advisor{
		client:  client,
		enabled: cfg.APIKey != "" && client != nil,
		timeout: timeout,
	}
}

// Assess obtains the model's opinion on a context and rule result.
// Exactly one model call is made, bounded by the configured timeout;
// there is no retry. The returned result is always valid.
func (a *Advisor) Assess(ctx context.Context, fc *domain.FraudContext, rr domain.RuleResult) *domain.AdvisorResult {
	if !a.enabled {
		return unconfiguredFallback()
	}

	prompt, err := buildPrompt(fc, rr)
	if err != nil {
		slog.Error("failed to build model prompt", "error", err)
		return errorFallback()
	}

	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	text, err := a.client.Generate(callCtx, prompt)
	if err != nil {
		slog.Error("model call failed", "error", err)
		return errorFallback()
	}

	result, err := ParseVerdict(text)
	if err != nil {
		slog.Error("model returned unparseable verdict", "error", err)
		return errorFallback()
	}

	return result
}

// unconfiguredFallback is the fail-open answer for a disabled
// integration.
func unconfiguredFallback() *domain.AdvisorResult {
	return &domain.AdvisorResult{
		FraudRiskLevel: domain.RiskLow,
		FraudRiskScore: 0.1,
		Explanation:    "Model integration not configured. User behavior appears normal.",
		FlagsFromModel: []string{},
	}
}

// errorFallback is the fail-cautious answer for transport, timeout,
// and parse failures.
func errorFallback() *domain.AdvisorResult {
	return &domain.AdvisorResult{
		FraudRiskLevel: domain.RiskMedium,
		FraudRiskScore: 0.5,
		Explanation:    "Model analysis failed due to technical error. Manual review recommended.",
		FlagsFromModel: []string{"AI_ERROR"},
	}
}

// buildPrompt serializes the context and rule result into the analyst
// prompt sent to the model.
func buildPrompt(fc *domain.FraudContext, rr domain.RuleResult) (string, error) {
	ctxJSON, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal context: %w", err)
	}
	ruleJSON, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal rule result: %w", err)
	}

	var b strings.Builder
	b.WriteString("You are a fraud detection engine for a decentralized micro-loan protocol.\n")
	b.WriteString("You receive structured behavioral, identity, and on-chain loan data for a borrower.\n")
	b.WriteString("Your job is to:\n")
	b.WriteString("1. Assess fraud risk on a 0-1 scale\n")
	b.WriteString("2. Classify risk as LOW, MEDIUM, or HIGH\n")
	b.WriteString("3. List specific fraud patterns that may apply (e.g., SYBIL_SUSPECT, LOAN_STACKING, STRATEGIC_DEFAULT, STOLEN_WALLET, LAUNDERING_PATTERN, COLLATERAL_ANOMALY)\n")
	b.WriteString("4. Provide a brief explanation understandable to a risk analyst.\n\n")
	b.WriteString("Only consider fraud risk and behavioral risk, not creditworthiness alone. If behavior looks normal and low-risk, say so clearly.\n\n")
	b.WriteString("JSON \"fraudContext\": ")
	b.Write(ctxJSON)
	b.WriteString("\n\nJSON \"ruleEngineResult\": ")
	b.Write(ruleJSON)
	b.WriteString("\n\nReturn a strict JSON object with:\n")
	b.WriteString(`{"fraudRiskLevel": "LOW" | "MEDIUM" | "HIGH", "fraudRiskScore": number between 0 and 1, "flagsFromModel": string[], "explanation": string}`)

	return b.String(), nil
}

// rawVerdict is the wire shape of the model's answer. Pointers
// distinguish absent fields from zero values during coercion.
type rawVerdict struct {
	FraudRiskLevel string           `json:"fraudRiskLevel"`
	FraudRiskScore *float64         `json:"fraudRiskScore"`
	FlagsFromModel *json.RawMessage `json:"flagsFromModel"`
	Explanation    string           `json:"explanation"`
}

// ParseVerdict decodes and normalizes a model response. The text must
// contain a JSON object (markdown fences are tolerated and stripped);
// anything else is an error and falls into the cautious fallback.
// Individual fields are coerced: an invalid level becomes MEDIUM, an
// out-of-range or missing score becomes 0.5, a malformed flag list
// becomes empty, and a blank explanation gets a generic message.
func ParseVerdict(text string) (*domain.AdvisorResult, error) {
	cleaned := stripFences(text)

	var raw rawVerdict
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("invalid verdict JSON: %w", err)
	}

	result := &domain.AdvisorResult{
		FraudRiskLevel: domain.RiskLevel(raw.FraudRiskLevel),
		FraudRiskScore: 0.5,
		Explanation:    raw.Explanation,
		FlagsFromModel: []string{},
	}

	if !result.FraudRiskLevel.Valid() {
		result.FraudRiskLevel = domain.RiskMedium
	}

	if raw.FraudRiskScore != nil {
		score := *raw.FraudRiskScore
		if score >= 0 && score <= 1 {
			result.FraudRiskScore = score
		}
	}

	if raw.FlagsFromModel != nil {
		var flags []string
		if err := json.Unmarshal(*raw.FlagsFromModel, &flags); err == nil && flags != nil {
			result.FlagsFromModel = flags
		}
	}

	if strings.TrimSpace(result.Explanation) == "" {
		result.Explanation = "Model analysis completed."
	}

	return result, nil
}

// stripFences removes markdown code fencing some models wrap around
// JSON answers.
func stripFences(text string) string {
	t := strings.TrimSpace(text)
	t = strings.ReplaceAll(t, "```json", "")
	t = strings.ReplaceAll(t, "```", "")
	return strings.TrimSpace(t)
}
