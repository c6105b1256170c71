// Package rules provides the CEL-Go based deterministic rule layer.
package rules

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/shopspring/decimal"

	"github.com/credora-labs/kestrel/internal/domain"
)

// Engine evaluates the fixed fraud rule set against a context snapshot.
// All expressions are compiled once at construction; evaluation is pure
// and performs no I/O, so identical contexts always yield identical
// results.
type Engine struct {
	env      *cel.Env
	compiled []compiledRule
}

type compiledRule struct {
	spec    RuleSpec
	program cel.Program
}

// NewEngine compiles the builtin rule set and returns a ready engine.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("linked_wallets", cel.IntType),
		cel.Variable("recent_requests_24h", cel.IntType),
		cel.Variable("total_defaults", cel.IntType),
		cel.Variable("total_loans", cel.IntType),
		cel.Variable("active_loans", cel.IntType),
		cel.Variable("blacklisted_destination", cel.BoolType),
		cel.Variable("avg_repayment_delay", cel.DoubleType),
		cel.Variable("has_loan_request", cel.BoolType),
		cel.Variable("loan_amount", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Engine{env: env}

	for _, spec := range BuiltinRules() {
		prog, err := e.compile(spec)
		if err != nil {
			return nil, err
		}
		e.compiled = append(e.compiled, compiledRule{spec: spec, program: prog})
	}

	return e, nil
}

func (e *Engine) compile(spec RuleSpec) (cel.Program, error) {
	ast, issues := e.env.Compile(spec.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", spec.Name, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", spec.Name, ast.OutputType())
	}

	return e.env.Program(ast)
}

// Evaluate runs every rule in fixed order and returns the clamped score
// plus the names of triggered rules, in trigger order.
func (e *Engine) Evaluate(fc *domain.FraudContext) domain.RuleResult {
	activation := activationFor(fc)

	result := domain.RuleResult{TriggeredRules: []string{}}

	var sum float64
	for _, rule := range e.compiled {
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			// Compiled boolean expressions over a complete activation
			// cannot error; an unexpected one counts as not triggered.
			continue
		}
		if out == types.True {
			result.TriggeredRules = append(result.TriggeredRules, rule.spec.Name)
			sum += rule.spec.Contribution
		}
	}

	if sum > 1.0 {
		sum = 1.0
	}
	result.RuleScore = sum

	return result
}

// RulesCount returns the number of compiled rules.
func (e *Engine) RulesCount() int {
	return len(e.compiled)
}

// activationFor flattens a fraud context into CEL variables. The loan
// amount is parsed from its decimal string exactly once here; an
// unparseable amount behaves as zero and can never trigger the
// high-value rule.
func activationFor(fc *domain.FraudContext) map[string]any {
	var loanAmount float64
	hasRequest := fc.CurrentLoanRequest != nil
	if hasRequest {
		if d, err := decimal.NewFromString(fc.CurrentLoanRequest.Amount); err == nil {
			loanAmount = d.InexactFloat64()
		}
	}

	return map[string]any{
		"linked_wallets":          fc.LinkedWalletsCount,
		"recent_requests_24h":     fc.RecentLoanRequestsLast24h,
		"total_defaults":          fc.TotalDefaults,
		"total_loans":             fc.TotalLoansTaken,
		"active_loans":            fc.ActiveLoansCount,
		"blacklisted_destination": fc.IsBlacklistedAddressDestination,
		"avg_repayment_delay":     fc.AvgRepaymentDelaySeconds,
		"has_loan_request":        hasRequest,
		"loan_amount":             loanAmount,
	}
}
