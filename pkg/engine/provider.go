package engine

import (
	"context"
	"encoding/json"
	"time"
)

// Provider invokes actions against the external environment. The contract is
// deliberately narrow: one synchronous invocation in, structured output and
// an exit status out. Everything the engine knows about the environment
// flows through this boundary.
type Provider interface {
	// Invoke runs a provider action with the given arguments and returns
	// the parsed result. Failures are returned as classified errors so the
	// executor can decide between retry and abort; the *Invocation is
	// non-nil alongside the error whenever the provider produced output.
	Invoke(ctx context.Context, action string, args map[string]string) (*Invocation, error)

	// Name identifies the provider for logs and events, e.g. "az".
	Name() string
}

// Invocation is the structured result of one provider action.
type Invocation struct {
	// Action is the invoked action.
	Action string `json:"action"`

	// Output is the provider's JSON payload, an object or an array.
	// Nil when the action produced no output.
	Output json.RawMessage `json:"output,omitempty"`

	// ExitCode is the provider process exit status.
	ExitCode int `json:"exit_code"`

	// Stderr is the captured diagnostic stream, trimmed.
	Stderr string `json:"stderr,omitempty"`

	// Duration is how long the invocation took.
	Duration time.Duration `json:"duration"`
}

// OutputObject decodes the payload as a JSON object. Returns an empty map
// for a nil payload.
func (i *Invocation) OutputObject() (map[string]interface{}, error) {
	if len(i.Output) == 0 {
		return map[string]interface{}{}, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(i.Output, &obj); err != nil {
		return nil, err
	}
	return obj, nil
}

// OutputList decodes the payload as a JSON array of objects. A single
// object payload decodes as a one-element list, matching providers that
// collapse single-match queries.
func (i *Invocation) OutputList() ([]map[string]interface{}, error) {
	if len(i.Output) == 0 {
		return nil, nil
	}
	var list []map[string]interface{}
	if err := json.Unmarshal(i.Output, &list); err == nil {
		return list, nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(i.Output, &obj); err != nil {
		return nil, err
	}
	return []map[string]interface{}{obj}, nil
}
