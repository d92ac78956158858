package domain

import (
	"context"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventObjectiveReceived  EventType = "objective.received"
	EventObjectiveCompleted EventType = "objective.completed"
	EventObjectiveFailed    EventType = "objective.failed"
	EventStepStarted        EventType = "step.started"
	EventStepCompleted      EventType = "step.completed"
	EventStepFailed         EventType = "step.failed"
	EventRetryScheduled     EventType = "retry.scheduled"
	EventReplanRequested    EventType = "replan.requested"
	EventKnowledgeStored    EventType = "knowledge.stored"
)

// Event is a single orchestration lifecycle notification.
type Event struct {
	Type            EventType `json:"type"`
	OrchestrationID string    `json:"orchestration_id,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
	Payload         any       `json:"payload,omitempty"`
}

// EventHandler receives published events.
type EventHandler func(ctx context.Context, event Event)

// EventBus fans events out to subscribers.
type EventBus interface {
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for an event type and returns an
	// unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
}
