package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/provio/provio/pkg/telemetry"
)

// Poller waits for a provider resource to reach its converged state after an
// accepted action. Providers acknowledge long-running operations before they
// finish; the poller re-queries status on a fixed interval until the step's
// predicate reports convergence or the attempt bound runs out.
type Poller struct {
	provider Provider
	logger   *telemetry.Logger
}

// NewPoller creates a poller bound to a provider.
func NewPoller(provider Provider, logger *telemetry.Logger) *Poller {
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Poller{
		provider: provider,
		logger:   logger.WithField("component", "poller"),
	}
}

// Wait polls the status action until the predicate reports convergence, the
// attempt bound is exhausted, or the context is cancelled. It returns the
// number of attempts consumed.
//
// Exhausting the bound returns a POLL_TIMEOUT error; callers treat it as a
// warning and keep the deployment moving, since the provider accepted the
// work and only confirmation is missing. Transient status failures consume
// attempts and polling continues; a permanent failure aborts immediately.
func (p *Poller) Wait(ctx context.Context, step string, spec *PollSpec, args map[string]string) (int, error) {
	pred := spec.Predicate
	if pred == nil {
		pred = DefaultPredicate()
	}

	log := p.logger.WithStep(step).WithAction(spec.Action)
	log.WithFields(map[string]interface{}{
		"attempts": spec.Attempts,
		"interval": spec.Interval.String(),
	}).Info("Waiting for resource to converge")

	for attempt := 1; attempt <= spec.Attempts; attempt++ {
		inv, err := p.provider.Invoke(ctx, spec.Action, args)
		switch {
		case err != nil && !IsRetryable(err):
			return attempt, NewPermanentError("status query failed", err).
				WithStep(step).
				WithAction(spec.Action)
		case err != nil:
			log.WithError(err).
				WithField("attempt", attempt).
				Debug("Status query failed, will poll again")
		default:
			status, perr := inv.OutputObject()
			if perr != nil {
				log.WithError(perr).
					WithField("attempt", attempt).
					Debug("Status payload unreadable, will poll again")
				break
			}
			converged, perr := pred.Eval(ctx, status)
			if perr != nil {
				return attempt, NewPermanentError("convergence check failed", perr).WithStep(step)
			}
			if converged {
				log.WithField("attempt", attempt).Info("Resource converged")
				return attempt, nil
			}
		}

		if attempt == spec.Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return attempt, NewPermanentError("polling cancelled", ctx.Err()).WithStep(step)
		case <-time.After(spec.Interval):
		}
	}

	log.WithField("remediation", spec.Remediation).
		Warn("Resource did not converge within the poll bound")
	return spec.Attempts, NewPollTimeoutError(step, spec.Remediation, spec.Attempts)
}

// DefaultPredicate reports convergence when the status payload's
// provisioningState is Succeeded, checking the top level and the nested
// properties object. A Failed or Canceled state aborts the wait instead of
// letting it burn the full attempt bound.
func DefaultPredicate() Predicate {
	return PredicateFunc(func(ctx context.Context, status map[string]interface{}) (bool, error) {
		state, ok := extractString(status, "provisioningState")
		if !ok || state == "" {
			state, _ = extractString(status, "properties.provisioningState")
		}
		switch state {
		case "Succeeded":
			return true, nil
		case "Failed", "Canceled":
			return false, fmt.Errorf("resource entered terminal state %q", state)
		default:
			return false, nil
		}
	})
}
