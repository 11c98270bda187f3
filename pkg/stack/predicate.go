package stack

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/provio/provio/pkg/engine"
)

// DefaultPredicateTimeout bounds one predicate evaluation. Predicates are
// single expressions over a status payload; anything slower is a bug.
const DefaultPredicateTimeout = 5 * time.Second

// PredicateCompiler compiles Starlark expressions into engine predicates.
// The expression sees the status payload as the "status" dict:
//
//	status["properties"]["provisioningState"] == "Succeeded"
type PredicateCompiler struct {
	timeout time.Duration
}

// NewPredicateCompiler creates a compiler. Zero timeout uses the default.
func NewPredicateCompiler(timeout time.Duration) *PredicateCompiler {
	if timeout == 0 {
		timeout = DefaultPredicateTimeout
	}
	return &PredicateCompiler{timeout: timeout}
}

// Compile parses the expression and returns a predicate evaluating it.
// Syntax errors surface here, at stack build time, not mid-deployment.
func (c *PredicateCompiler) Compile(expr string) (engine.Predicate, error) {
	if expr == "" {
		return nil, fmt.Errorf("predicate expression is empty")
	}
	if _, err := syntax.ParseExpr("predicate.star", expr, 0); err != nil {
		return nil, fmt.Errorf("invalid predicate expression: %w", err)
	}
	timeout := c.timeout
	return engine.PredicateFunc(func(ctx context.Context, status map[string]interface{}) (bool, error) {
		return evalPredicate(ctx, timeout, expr, status)
	}), nil
}

// evalPredicate evaluates one compiled expression against a status payload,
// bounded by the compiler's timeout.
func evalPredicate(ctx context.Context, timeout time.Duration, expr string, status map[string]interface{}) (bool, error) {
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		truth bool
		err   error
	}
	resultCh := make(chan outcome, 1)

	thread := &starlark.Thread{
		Name: "provio-predicate",
		Print: func(_ *starlark.Thread, _ string) {
			// Predicates have no output channel.
		},
	}

	go func() {
		statusVal, err := toStarlarkValue(status)
		if err != nil {
			resultCh <- outcome{err: fmt.Errorf("failed to convert status payload: %w", err)}
			return
		}
		predeclared := starlark.StringDict{"status": statusVal}
		value, err := starlark.Eval(thread, "predicate.star", expr, predeclared)
		if err != nil {
			resultCh <- outcome{err: fmt.Errorf("predicate evaluation failed: %w", err)}
			return
		}
		resultCh <- outcome{truth: bool(value.Truth())}
	}()

	select {
	case <-evalCtx.Done():
		thread.Cancel("predicate timeout")
		return false, fmt.Errorf("predicate evaluation timed out after %v", timeout)
	case result := <-resultCh:
		return result.truth, result.err
	}
}

// toStarlarkValue converts a decoded JSON value to a Starlark value.
func toStarlarkValue(v interface{}) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}

	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			converted, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = converted
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			converted, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), converted); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}
