package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/provio/provio/pkg/engine"
)

// Gate evaluates Rego policies against a step sequence. It implements
// engine.PolicyGate.
type Gate struct {
	mu          sync.RWMutex
	policies    map[string]*compiledPolicy
	environment string
	logger      zerolog.Logger
}

// compiledPolicy is a policy with its prepared deny query.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// GateConfig wires a policy gate.
type GateConfig struct {
	// Environment is injected into the evaluation context,
	// e.g. "production".
	Environment string

	// Logger receives gate diagnostics.
	Logger zerolog.Logger
}

// NewGate creates a gate preloaded with the built-in policies.
func NewGate(cfg GateConfig) (*Gate, error) {
	g := &Gate{
		policies:    make(map[string]*compiledPolicy),
		environment: cfg.Environment,
		logger:      cfg.Logger.With().Str("component", "policy-gate").Logger(),
	}

	for _, p := range BuiltinPolicies() {
		if err := g.compile(context.Background(), p); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", p.Name, err)
		}
	}

	return g, nil
}

// Check implements engine.PolicyGate. Blocking violations return a policy
// error that vetoes the run; warnings are logged and do not block.
func (g *Gate) Check(ctx context.Context, stack string, steps []engine.Step) error {
	result, err := g.Evaluate(ctx, stack, steps)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		g.logger.Warn().
			Str("policy", w.Policy).
			Str("step", w.Step).
			Msg(w.Message)
	}

	if result.Allowed {
		return nil
	}

	messages := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		messages = append(messages, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return engine.NewPolicyError(strings.Join(messages, "; "))
}

// Evaluate runs every enabled policy and returns the full result,
// including non-blocking warnings. It never vetoes; callers decide.
func (g *Gate) Evaluate(ctx context.Context, stack string, steps []engine.Step) (*Result, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	input := NewInput(stack, steps, g.environment)

	result := &Result{
		Allowed:     true,
		EvaluatedAt: time.Now(),
	}

	names := make([]string, 0, len(g.policies))
	for name := range g.policies {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		cp := g.policies[name]
		if !cp.policy.Enabled {
			continue
		}
		result.Evaluated = append(result.Evaluated, name)

		violations, err := g.evaluatePolicy(ctx, cp, input)
		if err != nil {
			return nil, fmt.Errorf("policy %s evaluation failed: %w", name, err)
		}

		for _, v := range violations {
			if v.Severity.Blocking() {
				result.Allowed = false
				result.Violations = append(result.Violations, v)
			} else {
				result.Warnings = append(result.Warnings, v)
			}
		}
	}

	g.logger.Debug().
		Str("stack", stack).
		Int("policies", len(result.Evaluated)).
		Int("violations", len(result.Violations)).
		Int("warnings", len(result.Warnings)).
		Msg("Policy evaluation completed")

	return result, nil
}

// evaluatePolicy runs one prepared deny query against the input document.
func (g *Gate) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *Input) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, toViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// toViolation converts one deny result into a Violation. Deny results may
// be plain strings or objects with message/severity/step fields.
func toViolation(policy *Policy, result interface{}) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if step, ok := v["step"].(string); ok {
			violation.Step = step
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// compile prepares a policy's deny query and stores it. Caller holds no
// locks; compile takes the write lock itself.
func (g *Gate) compile(ctx context.Context, policy Policy) error {
	query := fmt.Sprintf("data.%s.deny", packageName(policy.Rego))

	prepared, err := rego.New(
		rego.Query(query),
		rego.Module(policy.Name, policy.Rego),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare policy %s: %w", policy.Name, err)
	}

	g.mu.Lock()
	g.policies[policy.Name] = &compiledPolicy{
		policy:   &policy,
		query:    prepared,
		compiled: time.Now(),
	}
	g.mu.Unlock()

	g.logger.Debug().Str("policy", policy.Name).Msg("Policy compiled")
	return nil
}

// LoadPaths loads and compiles policies from files or directories,
// keeping the built-ins.
func (g *Gate) LoadPaths(ctx context.Context, paths []string) error {
	loader := NewLoader(g.logger)
	policies, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	for _, p := range policies {
		if err := g.compile(ctx, p); err != nil {
			return err
		}
	}

	g.logger.Info().Int("count", len(policies)).Msg("Policies loaded")
	return nil
}

// Replace swaps every loaded policy for the built-ins plus the given set.
// Used by the loader's watch callback.
func (g *Gate) Replace(ctx context.Context, policies []Policy) error {
	g.mu.Lock()
	g.policies = make(map[string]*compiledPolicy)
	g.mu.Unlock()

	for _, p := range BuiltinPolicies() {
		if err := g.compile(ctx, p); err != nil {
			return err
		}
	}
	for _, p := range policies {
		if err := g.compile(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Policy returns a loaded policy by name.
func (g *Gate) Policy(name string) (*Policy, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	cp, exists := g.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// Policies returns every loaded policy, sorted by name.
func (g *Gate) Policies() []Policy {
	g.mu.RLock()
	defer g.mu.RUnlock()

	policies := make([]Policy, 0, len(g.policies))
	for _, cp := range g.policies {
		policies = append(policies, *cp.policy)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies
}

// SetEnabled enables or disables a policy by name.
func (g *Gate) SetEnabled(name string, enabled bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	cp, exists := g.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}

	cp.policy.Enabled = enabled
	g.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("Policy toggled")
	return nil
}

// packageName extracts the package path from Rego source.
func packageName(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "provio.policies"
}
