package progress

import (
	"sync"
	"time"
)

// Stage identifies a deployment or rollback phase.
type Stage string

const (
	StageValidating    Stage = "validating"
	StagePublisher     Stage = "publisher"
	StageSolution      Stage = "solution"
	StageEntities      Stage = "entities"
	StageRelationships Stage = "relationships"
	StageGlobalChoices Stage = "global-choices"
	StageCompleted     Stage = "completed"
	StageFailed        Stage = "failed"

	StageRollbackRelationships Stage = "rollback-relationships"
	StageRollbackEntities      Stage = "rollback-entities"
	StageRollbackChoices       Stage = "rollback-global-choices"
	StageRollbackSolution      Stage = "rollback-solution"
	StageRollbackPublisher     Stage = "rollback-publisher"
	StageRollbackCompleted     Stage = "rollback-completed"
)

// Event is one progress notification emitted at a stage transition.
type Event struct {
	Stage     Stage
	Message   string
	Context   map[string]any
	Timestamp time.Time
}

// Sink receives progress events. Implementations must not block the emitter.
type Sink interface {
	Publish(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Publish(Event) {}

// FuncSink adapts a plain callback. The callback is best-effort notification:
// a panic inside it is swallowed so reporting can never fail an operation.
type FuncSink func(event Event)

func (f FuncSink) Publish(event Event) {
	defer func() { _ = recover() }()
	f(event)
}

// Broker fans events out to channel subscribers. Slow subscribers lose events
// rather than stalling the emitting operation.
type Broker struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroker constructs an empty Broker.
func NewBroker() *Broker {
	return &Broker{subscribers: make(map[chan Event]struct{})}
}

// Subscribe registers a buffered event channel.
func (b *Broker) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(chan Event, 64)
	b.subscribers[sub] = struct{}{}
	return sub
}

// Unsubscribe removes and closes a subscription.
func (b *Broker) Unsubscribe(sub chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[sub]; ok {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish delivers the event to every subscriber with room in its buffer.
func (b *Broker) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

var (
	_ Sink = NopSink{}
	_ Sink = FuncSink(nil)
	_ Sink = (*Broker)(nil)
)
