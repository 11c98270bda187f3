package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a telemetry event in the provio system.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// RunID is the associated deployment run ID, if applicable.
	RunID string `json:"run_id,omitempty"`

	// Step is the associated step name, if applicable.
	Step string `json:"step,omitempty"`

	// Resource is the associated resource name, if applicable.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data. Never secret values.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeRunStarted      = "run.started"
	EventTypeRunCompleted    = "run.completed"
	EventTypeRunAborted      = "run.aborted"
	EventTypeStepStarted     = "step.started"
	EventTypeStepCompleted   = "step.completed"
	EventTypeStepReused      = "step.reused"
	EventTypeStepFailed      = "step.failed"
	EventTypeStepSkipped     = "step.skipped"
	EventTypeStepRetried     = "step.retried"
	EventTypePollTimedOut    = "poll.timed_out"
	EventTypeSecretPublished = "secret.published"
	EventTypePolicyViolation = "policy.violation"
	EventTypeError           = "error"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	filters     []EventFilter
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		filters:     make([]EventFilter, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	// Start the event processing goroutine
	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	// Start the periodic flush goroutine
	if cfg.FlushInterval > 0 && cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.periodicFlush()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	// Set ID and timestamp if not already set
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// Apply global filters
	ep.mu.RLock()
	for _, filter := range ep.filters {
		if !filter(event) {
			ep.mu.RUnlock()
			return nil // Event filtered out
		}
	}
	ep.mu.RUnlock()

	// Send to buffer if async, otherwise process immediately
	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			// Buffer full, drop event or log warning
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	// Synchronous publishing
	ep.deliverEvent(event)
	return nil
}

// PublishRunStarted publishes a run started event.
func (ep *EventPublisher) PublishRunStarted(runID, stack string, stepCount int) error {
	return ep.Publish(Event{
		Type:    EventTypeRunStarted,
		Source:  "sequencer",
		RunID:   runID,
		Message: fmt.Sprintf("Deploying stack %s (%d steps)", stack, stepCount),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"stack": stack,
			"steps": stepCount,
		},
	})
}

// PublishRunCompleted publishes a run completed event.
func (ep *EventPublisher) PublishRunCompleted(runID, status string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeRunCompleted,
		Source:  "sequencer",
		RunID:   runID,
		Message: fmt.Sprintf("Run %s finished with status: %s", runID, status),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishRunAborted publishes a run aborted event.
func (ep *EventPublisher) PublishRunAborted(runID, failedStep, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeRunAborted,
		Source:  "sequencer",
		RunID:   runID,
		Step:    failedStep,
		Message: fmt.Sprintf("Run %s aborted at step %s: %s", runID, failedStep, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishStepStarted publishes a step started event.
func (ep *EventPublisher) PublishStepStarted(runID, step, resource, action string) error {
	return ep.Publish(Event{
		Type:     EventTypeStepStarted,
		Source:   "executor",
		RunID:    runID,
		Step:     step,
		Resource: resource,
		Message:  fmt.Sprintf("Step %s started: %s on %s", step, action, resource),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"action": action,
		},
	})
}

// PublishStepCompleted publishes a step completed event.
func (ep *EventPublisher) PublishStepCompleted(runID, step, resource, outcome string, duration time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeStepCompleted,
		Source:   "executor",
		RunID:    runID,
		Step:     step,
		Resource: resource,
		Message:  fmt.Sprintf("Step %s finished: %s", step, outcome),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"outcome":  outcome,
			"duration": duration.Seconds(),
		},
	})
}

// PublishStepReused publishes an event for a step that adopted an existing resource.
func (ep *EventPublisher) PublishStepReused(runID, step, resource, resourceID string) error {
	return ep.Publish(Event{
		Type:     EventTypeStepReused,
		Source:   "executor",
		RunID:    runID,
		Step:     step,
		Resource: resource,
		Message:  fmt.Sprintf("Step %s reused existing resource %s", step, resource),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"resource_id": resourceID,
		},
	})
}

// PublishStepFailed publishes a step failed event.
func (ep *EventPublisher) PublishStepFailed(runID, step, resource, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeStepFailed,
		Source:   "executor",
		RunID:    runID,
		Step:     step,
		Resource: resource,
		Message:  fmt.Sprintf("Step %s failed: %s", step, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishStepSkipped publishes an event for a step skipped after an abort.
func (ep *EventPublisher) PublishStepSkipped(runID, step string) error {
	return ep.Publish(Event{
		Type:    EventTypeStepSkipped,
		Source:  "sequencer",
		RunID:   runID,
		Step:    step,
		Message: fmt.Sprintf("Step %s skipped: earlier step failed", step),
		Level:   EventLevelWarning,
	})
}

// PublishStepRetried publishes a retry event after a retryable failure.
func (ep *EventPublisher) PublishStepRetried(runID, step string, attempt int, delay time.Duration) error {
	return ep.Publish(Event{
		Type:    EventTypeStepRetried,
		Source:  "executor",
		RunID:   runID,
		Step:    step,
		Message: fmt.Sprintf("Step %s retrying (attempt %d) after %s", step, attempt, delay),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"attempt": attempt,
			"delay":   delay.Seconds(),
		},
	})
}

// PublishPollTimedOut publishes an event for a poll that exhausted its bound.
func (ep *EventPublisher) PublishPollTimedOut(runID, step, remediation string, attempts int) error {
	return ep.Publish(Event{
		Type:    EventTypePollTimedOut,
		Source:  "poller",
		RunID:   runID,
		Step:    step,
		Message: fmt.Sprintf("Step %s did not converge within %d attempts; check later with: %s", step, attempts, remediation),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"attempts":    attempts,
			"remediation": remediation,
		},
	})
}

// PublishSecretPublished publishes a secret publication event. Only the
// secret name travels in the event, never the value.
func (ep *EventPublisher) PublishSecretPublished(runID, secretName, mode string, reused bool, length int) error {
	return ep.Publish(Event{
		Type:    EventTypeSecretPublished,
		Source:  "publisher",
		RunID:   runID,
		Message: fmt.Sprintf("Secret %s published (mode=%s, reused=%t)", secretName, mode, reused),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"secret": secretName,
			"mode":   mode,
			"reused": reused,
			"length": length,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(stack, policyName, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypePolicyViolation,
		Source:  "policy_engine",
		Message: fmt.Sprintf("Policy violation on stack %s: %s - %s", stack, policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"stack":  stack,
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// AddFilter adds a global event filter.
func (ep *EventPublisher) AddFilter(filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.filters = append(ep.filters, filter)
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)

			// Flush batch if it reaches max size
			if len(batch) >= ep.config.MaxBatchSize {
				ep.flushBatch(batch)
				batch = make([]Event, 0, ep.config.MaxBatchSize)
			}

		case <-ep.ctx.Done():
			// Flush remaining events before shutting down
			if len(batch) > 0 {
				ep.flushBatch(batch)
			}
			return
		}
	}
}

// periodicFlush flushes events periodically.
func (ep *EventPublisher) periodicFlush() {
	defer ep.wg.Done()

	ticker := time.NewTicker(ep.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Trigger flush by draining buffer
			// This is handled by the processEvents goroutine
		case <-ep.ctx.Done():
			return
		}
	}
}

// flushBatch delivers a batch of events to subscribers.
func (ep *EventPublisher) flushBatch(events []Event) {
	for _, event := range events {
		ep.deliverEvent(event)
	}
}

// deliverEvent delivers an event to all subscribers. In synchronous mode
// subscribers run inline so a CLI renderer sees events in order; in async
// mode each subscriber runs on its own goroutine.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		// Apply subscriber-specific filter
		if entry.filter != nil && !entry.filter(event) {
			continue
		}

		if ep.config.EnableAsync {
			go entry.subscriber(event)
		} else {
			entry.subscriber(event)
		}
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	if ep.cancel != nil {
		ep.cancel()
	}

	// Wait for processing to complete with timeout
	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByRunID creates a filter that only allows events for a specific run.
func FilterByRunID(runID string) EventFilter {
	return func(event Event) bool {
		return event.RunID == runID
	}
}

// FilterByStep creates a filter that only allows events for a specific step.
func FilterByStep(step string) EventFilter {
	return func(event Event) bool {
		return event.Step == step
	}
}
