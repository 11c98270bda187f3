package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/provio/provio/pkg/telemetry"
)

// PolicyGate checks a validated step sequence before anything executes.
// Implementations evaluate organizational policy; a non-nil error vetoes
// the run.
type PolicyGate interface {
	// Check returns a PolicyError when the sequence violates policy.
	Check(ctx context.Context, stack string, steps []Step) error
}

// Sequencer runs a stack's steps strictly in declaration order. The first
// fatal failure halts the run: later steps are never attempted, because
// their references assume the failed step's resource exists. Completed
// steps are left in place; re-running the stack converges them as NoOps.
type Sequencer struct {
	executor *Executor
	recorder Recorder
	gate     PolicyGate
	stack    string
	logger   *telemetry.Logger
}

// SequencerConfig wires a sequencer.
type SequencerConfig struct {
	// Executor runs individual steps. Required.
	Executor *Executor

	// Recorder journals run progress. Nil disables journaling.
	Recorder Recorder

	// Gate vetoes runs that violate policy. Nil disables policy checks.
	Gate PolicyGate

	// Stack names the stack being deployed.
	Stack string

	// Logger is the base logger. Nil falls back to the default logger.
	Logger *telemetry.Logger
}

// NewSequencer creates a sequencer from its configuration.
func NewSequencer(cfg SequencerConfig) *Sequencer {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.FromContext(context.Background())
	}
	return &Sequencer{
		executor: cfg.Executor,
		recorder: cfg.Recorder,
		gate:     cfg.Gate,
		stack:    cfg.Stack,
		logger:   logger.WithField("component", "sequencer"),
	}
}

// Deploy validates the sequence, checks policy, and executes every step in
// order. It returns an error only when nothing ran: an invalid sequence or
// a policy veto. Once execution starts the summary is always returned, with
// Status, FailedStep and Err describing any abort.
func (s *Sequencer) Deploy(ctx context.Context, steps []Step) (*RunSummary, error) {
	if err := ValidateSequence(steps); err != nil {
		return nil, err
	}
	if s.gate != nil {
		if err := s.gate.Check(ctx, s.stack, steps); err != nil {
			derr := asDeployError(err)
			if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
				_ = tel.Events.PublishPolicyViolation(s.stack, "deploy", derr.Message)
			}
			return nil, derr
		}
	}

	runID := uuid.New().String()
	summary := &RunSummary{
		RunID:     runID,
		Stack:     s.stack,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}

	log := s.logger.WithRunID(runID).WithStack(s.stack)
	log.WithField("steps", len(steps)).Info("Deployment started")

	ctx = telemetry.WithRunContext(ctx, runID, s.stack, len(steps))

	if s.recorder != nil {
		if err := s.recorder.RunStarted(ctx, runID, s.stack, steps); err != nil {
			log.WithError(err).Warn("Failed to journal run start")
		}
	}

	state := NewDeploymentState()
	aborted := false

	for i := range steps {
		step := &steps[i]

		if aborted {
			summary.Skipped = append(summary.Skipped, step.Name)
			s.recordEvent(ctx, Event{
				Type:    EventStepSkipped,
				Level:   EventLevelWarning,
				RunID:   runID,
				Step:    step.Name,
				Message: fmt.Sprintf("Step %s skipped: earlier step failed", step.Name),
			})
			if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
				_ = tel.Events.PublishStepSkipped(runID, step.Name)
			}
			continue
		}

		result := s.executor.ExecuteStep(ctx, runID, step, state)
		state.Record(result)

		if s.recorder != nil {
			if err := s.recorder.StepFinished(ctx, runID, result); err != nil {
				log.WithError(err).Warn("Failed to journal step result")
			}
		}

		switch result.Outcome {
		case OutcomeSuccess:
			summary.Completed = append(summary.Completed, step.Name)
		case OutcomeNoOp:
			summary.Reused = append(summary.Reused, step.Name)
		default:
			summary.FailedStep = step.Name
			summary.Err = result.Err
			aborted = true
			log.WithError(result.Err).
				WithStep(step.Name).
				Error("Step failed, halting deployment")
		}

		if result.Warning != nil {
			summary.Warnings = append(summary.Warnings, warningLine(result))
		}
	}

	summary.Results = state.Results()
	summary.Manifest = state.Manifest()
	summary.FinishedAt = time.Now()
	if aborted {
		summary.Status = StatusAborted
	} else {
		summary.Status = StatusCompleted
	}

	var runErr error
	if summary.Err != nil {
		runErr = summary.Err
	}
	telemetry.EndRunContext(ctx, runID, string(summary.Status), summary.Duration(), runErr)

	if s.recorder != nil {
		if err := s.recorder.RunFinished(ctx, runID, summary); err != nil {
			log.WithError(err).Warn("Failed to journal run finish")
		}
	}

	log.WithFields(map[string]interface{}{
		"status":    string(summary.Status),
		"completed": len(summary.Completed),
		"reused":    len(summary.Reused),
		"skipped":   len(summary.Skipped),
		"warnings":  len(summary.Warnings),
	}).Info("Deployment finished")

	return summary, nil
}

// recordEvent journals an event, tolerating recorder failures. Journaling
// never blocks a deployment.
func (s *Sequencer) recordEvent(ctx context.Context, event Event) {
	if s.recorder == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if err := s.recorder.Event(ctx, event); err != nil {
		s.logger.WithError(err).Debug("Failed to record event")
	}
}

// warningLine renders a step warning for the run summary, appending the
// remediation command when the warning carries one.
func warningLine(result *StepResult) string {
	line := fmt.Sprintf("step %s: %s", result.StepName, result.Warning.Message)
	if remediation, ok := result.Warning.Details["remediation"].(string); ok && remediation != "" {
		line += fmt.Sprintf("; check later with: %s", remediation)
	}
	return line
}
