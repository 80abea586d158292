package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LifecycleEvent describes one thing that happened to an environment.
type LifecycleEvent struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// EnvID is the associated environment ID, if applicable.
	EnvID string `json:"env_id,omitempty"`

	// Phase is the associated lifecycle phase, if applicable.
	Phase string `json:"phase,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for lifecycle events.
const (
	EventTypeOperationStarted   = "operation.started"
	EventTypeOperationCompleted = "operation.completed"
	EventTypeOperationFailed    = "operation.failed"
	EventTypePhaseStarted       = "phase.started"
	EventTypePhaseCompleted     = "phase.completed"
	EventTypeRemediationApplied = "remediation.applied"
	EventTypeTimeoutExtended    = "timeout.extended"
	EventTypePolicyViolation    = "policy.violation"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event LifecycleEvent)

// EventFilter determines if an event should be processed.
type EventFilter func(event LifecycleEvent) bool

// EventPublisher fans lifecycle events out to subscribers. The CLI
// wires its progress display in here; tests subscribe directly.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan LifecycleEvent
	subscribers []subscriberEntry
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
		config: cfg,
		buffer: make(chan LifecycleEvent, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event LifecycleEvent) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishOperationStarted publishes an operation started event.
func (ep *EventPublisher) PublishOperationStarted(envID, operation string) error {
	return ep.Publish(LifecycleEvent{
		Type:    EventTypeOperationStarted,
		Source:  "engine",
		EnvID:   envID,
		Message: fmt.Sprintf("%s started for environment %s", operation, envID),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"operation": operation,
		},
	})
}

// PublishOperationCompleted publishes an operation completed event.
func (ep *EventPublisher) PublishOperationCompleted(envID, operation string, duration time.Duration) error {
	return ep.Publish(LifecycleEvent{
		Type:    EventTypeOperationCompleted,
		Source:  "engine",
		EnvID:   envID,
		Message: fmt.Sprintf("%s completed for environment %s", operation, envID),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"operation": operation,
			"duration":  duration.Seconds(),
		},
	})
}

// PublishOperationFailed publishes an operation failed event.
func (ep *EventPublisher) PublishOperationFailed(envID, operation, reason string) error {
	return ep.Publish(LifecycleEvent{
		Type:    EventTypeOperationFailed,
		Source:  "engine",
		EnvID:   envID,
		Message: fmt.Sprintf("%s failed for environment %s: %s", operation, envID, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"operation": operation,
			"reason":    reason,
		},
	})
}

// PublishPhaseStarted publishes a phase started event.
func (ep *EventPublisher) PublishPhaseStarted(envID, phase string) error {
	return ep.Publish(LifecycleEvent{
		Type:    EventTypePhaseStarted,
		Source:  "engine",
		EnvID:   envID,
		Phase:   phase,
		Message: fmt.Sprintf("phase %s started", phase),
		Level:   EventLevelInfo,
	})
}

// PublishPhaseCompleted publishes a phase completed event.
func (ep *EventPublisher) PublishPhaseCompleted(envID, phase string, duration time.Duration) error {
	return ep.Publish(LifecycleEvent{
		Type:    EventTypePhaseCompleted,
		Source:  "engine",
		EnvID:   envID,
		Phase:   phase,
		Message: fmt.Sprintf("phase %s completed", phase),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PublishRemediationApplied publishes a remediation event.
func (ep *EventPublisher) PublishRemediationApplied(envID, fix string) error {
	return ep.Publish(LifecycleEvent{
		Type:    EventTypeRemediationApplied,
		Source:  "provisioner",
		EnvID:   envID,
		Message: fmt.Sprintf("applied fix %s after provisioner failure", fix),
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"fix": fix,
		},
	})
}

// PublishTimeoutExtended publishes a deadline extension event.
func (ep *EventPublisher) PublishTimeoutExtended(envID string, inflight []string) error {
	return ep.Publish(LifecycleEvent{
		Type:    EventTypeTimeoutExtended,
		Source:  "provisioner",
		EnvID:   envID,
		Message: "deadline extended for slow in-flight resources",
		Level:   EventLevelWarning,
		Data: map[string]interface{}{
			"in_flight": inflight,
		},
	})
}

// PublishPolicyViolation publishes a policy violation event.
func (ep *EventPublisher) PublishPolicyViolation(envID, policyName, reason string) error {
	return ep.Publish(LifecycleEvent{
		Type:    EventTypePolicyViolation,
		Source:  "policy",
		EnvID:   envID,
		Message: fmt.Sprintf("policy %s: %s", policyName, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"policy": policyName,
			"reason": reason,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter receives every
// event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents processes events from the buffer asynchronously.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			// Drain what is left
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event LifecycleEvent) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

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

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event LifecycleEvent) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event LifecycleEvent) bool {
		return typeSet[event.Type]
	}
}

// FilterByEnvID creates a filter that only allows events for a specific environment.
func FilterByEnvID(envID string) EventFilter {
	return func(event LifecycleEvent) bool {
		return event.EnvID == envID
	}
}
