package engine

import (
	"context"

	"github.com/provio/provio/pkg/telemetry"
)

// Prober queries the provider for resources matching a step so the engine
// can decide between creating and reusing.
type Prober struct {
	provider Provider
	logger   *telemetry.Logger
}

// NewProber creates a prober bound to a provider.
func NewProber(provider Provider, logger *telemetry.Logger) *Prober {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Prober{
		provider: provider,
		logger:   logger.WithField("component", "prober"),
	}
}

// Probe runs the probe action and parses the matching resources. Absence is
// a valid result; a provider failure is not, and surfaces as a fatal probe
// error rather than being read as "nothing exists".
func (p *Prober) Probe(ctx context.Context, spec *ProbeSpec, resource string, args map[string]string) (*ProbeResult, error) {
	inv, err := p.provider.Invoke(ctx, spec.Action, args)
	if err != nil {
		// Providers report "no matching resource" as NOT_FOUND. That is an
		// answer, not a failure.
		if CodeOf(err) == ErrCodeNotFound {
			p.logger.WithResource(resource).Debug("Probe found no matching resources")
			return &ProbeResult{}, nil
		}
		return nil, NewProbeError(resource, err)
	}

	items, err := inv.OutputList()
	if err != nil {
		return nil, NewProbeError(resource, err)
	}

	candidates := make([]ResourceReference, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		candidates = append(candidates, buildCandidate(item, spec))
	}

	p.logger.WithResource(resource).
		WithField("count", len(candidates)).
		Debug("Probe completed")

	return &ProbeResult{
		Count:      len(candidates),
		Candidates: candidates,
	}, nil
}

// buildCandidate converts one probe payload entry into a resource reference.
// A candidate without an ID or a name is still reported so ambiguity counts
// stay honest.
func buildCandidate(obj map[string]interface{}, spec *ProbeSpec) ResourceReference {
	idField := spec.IDField
	if idField == "" {
		idField = "id"
	}
	nameField := spec.NameField
	if nameField == "" {
		nameField = "name"
	}

	ref := ResourceReference{
		Attributes: make(map[string]string),
	}
	if v, ok := extractString(obj, idField); ok {
		ref.ID = v
	}
	if v, ok := extractString(obj, nameField); ok {
		ref.Name = v
	}
	if v, ok := extractString(obj, "type"); ok {
		ref.Kind = v
	}
	if v, ok := extractString(obj, "location"); ok {
		ref.Location = v
	}
	flattenPayload("", obj, ref.Attributes)

	return ref
}
