package engine

import (
	"context"
	"fmt"

	"github.com/provio/provio/pkg/telemetry"
)

// maxSelectAttempts bounds interactive re-prompts on invalid input before
// the engine gives up and reports the ambiguity.
const maxSelectAttempts = 3

// Selection is the create-or-reuse verdict for one step.
type Selection struct {
	// Decision is the verdict.
	Decision Decision `json:"decision"`

	// Ref is the adopted resource for reuse decisions.
	Ref *ResourceReference `json:"ref,omitempty"`
}

// Selector turns a probe result into a create-or-reuse decision.
//
// Zero matches mean create. Exactly one match is adopted without asking:
// the step's work already exists and running the action again would either
// fail or duplicate it. More than one match needs an operator; without one
// the step fails with an error enumerating every candidate.
type Selector struct {
	prompter Prompter
	logger   *telemetry.Logger
}

// NewSelector creates a selector. The prompter may be nil for strictly
// non-interactive runs.
func NewSelector(prompter Prompter, logger *telemetry.Logger) *Selector {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Selector{
		prompter: prompter,
		logger:   logger.WithField("component", "selector"),
	}
}

// Select applies the decision table to a probe result.
func (s *Selector) Select(step *Step, probe *ProbeResult) (Selection, error) {
	if probe == nil || probe.Count == 0 {
		s.logger.WithStep(step.Name).Debug("No existing resource, creating")
		return Selection{Decision: DecisionCreate}, nil
	}

	if probe.Count == 1 {
		ref := probe.Candidates[0]
		s.logger.WithStep(step.Name).
			WithResource(step.Resource).
			WithField("resource_id", ref.ID).
			Info("Reusing existing resource")
		return Selection{Decision: DecisionReuse, Ref: &ref}, nil
	}

	if s.prompter == nil || !s.prompter.Interactive() {
		return Selection{}, NewAmbiguousResourceError(step.Resource, probe.Candidates).WithStep(step.Name)
	}

	options := make([]string, len(probe.Candidates))
	for i, c := range probe.Candidates {
		options[i] = fmt.Sprintf("%s (id=%s)", c.Name, c.ID)
	}
	prompt := fmt.Sprintf("%d resources match %q, select one to reuse", probe.Count, step.Resource)

	for attempt := 1; attempt <= maxSelectAttempts; attempt++ {
		idx, err := s.prompter.Select(prompt, options)
		if err == nil && idx >= 0 && idx < len(probe.Candidates) {
			ref := probe.Candidates[idx]
			s.logger.WithStep(step.Name).
				WithField("resource_id", ref.ID).
				Info("Operator selected resource to reuse")
			return Selection{Decision: DecisionReuse, Ref: &ref}, nil
		}
		s.logger.WithStep(step.Name).
			WithField("attempt", attempt).
			Warn("Invalid selection")
	}

	return Selection{}, NewAmbiguousResourceError(step.Resource, probe.Candidates).WithStep(step.Name)
}
