package events

import (
	"context"
	"sync"
	"time"

	"plutocrat/models"

	log "github.com/sirupsen/logrus"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeBalanceChange        EventType = "balance_change"
	EventTypeMotionCreated        EventType = "motion_created"
	EventTypeMotionOutcomeChanged EventType = "motion_outcome_changed"
	EventTypeMotionResolved       EventType = "motion_resolved"
	EventTypeGenerationCompleted  EventType = "generation_completed"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// BalanceChangeEvent is emitted after a transfer commits, once per user
// side the transfer touched.
type BalanceChangeEvent struct {
	UserID     int64
	ItemType   string
	NewBalance int64
	Delta      int64
	Kind       models.TransferKind
	TransferID int64
}

func (e BalanceChangeEvent) Type() EventType {
	return EventTypeBalanceChange
}

// MotionCreatedEvent is emitted when a new motion enters the open state.
type MotionCreatedEvent struct {
	MotionID   int64
	PublicID   string
	MotionedBy int64
	IsSuper    bool
	EndsAt     time.Time
}

func (e MotionCreatedEvent) Type() EventType {
	return EventTypeMotionCreated
}

// MotionOutcomeChangedEvent is emitted when a vote flips the winning
// side of a still-open motion. The presentation layer uses it to
// rebroadcast the motion's status.
type MotionOutcomeChangedEvent struct {
	MotionID  int64
	PublicID  string
	YesTotal  int64
	NoTotal   int64
	IsWinning bool
}

func (e MotionOutcomeChangedEvent) Type() EventType {
	return EventTypeMotionOutcomeChanged
}

// MotionResolvedEvent is emitted exactly once per motion, by whichever
// caller wins the resolution race.
type MotionResolvedEvent struct {
	MotionID int64
	PublicID string
	Passed   bool
	YesTotal int64
	NoTotal  int64
}

func (e MotionResolvedEvent) Type() EventType {
	return EventTypeMotionResolved
}

// GenerationCompletedEvent is emitted after a generation cycle mints.
type GenerationCompletedEvent struct {
	Intervals   int64
	UsersPaid   int
	TotalMinted int64
	GeneratedAt time.Time
}

func (e GenerationCompletedEvent) Type() EventType {
	return EventTypeGenerationCompleted
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type")
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	// Call handlers asynchronously to avoid blocking the emitter
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// TransactionalBus holds pending events coupled to a unit of work and
// flushes them to the underlying bus only after the enclosing database
// transaction commits. Events from rolled-back work are discarded, so
// subscribers never observe state that was never committed.
type TransactionalBus struct {
	real    *Bus
	pending []Event
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	b.pending = append(b.pending, e)
}

// Flush emits all pending events. Called after a successful commit.
func (b *TransactionalBus) Flush(ctx context.Context) error {
	// Events outlive the transaction, so emit on a fresh context.
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// Discard drops all pending events. Called after rollback.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
