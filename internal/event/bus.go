// internal/event/bus.go
package event

import (
	"sync"

	"go.uber.org/zap"

	"hardware-service/internal/model"
)

// Bus broadcasts hardware events to subscribers. Publishing never blocks on
// subscriber processing; a full bus or a slow subscriber drops events rather
// than back-pressuring device operations.
type Bus struct {
	subscribers map[int]*subscription
	nextID      int
	events      chan model.HardwareEvent
	done        chan struct{}
	mutex       sync.RWMutex
	logger      *zap.Logger
}

type subscription struct {
	ch    chan model.HardwareEvent
	kinds map[model.EventKind]bool // empty means all kinds
}

// NewBus creates an event bus. Call Start to begin distribution.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int]*subscription),
		events:      make(chan model.HardwareEvent, 1000),
		done:        make(chan struct{}),
		logger:      logger,
	}
}

// Start runs the distribution loop until Stop is called.
func (b *Bus) Start() {
	for {
		select {
		case ev := <-b.events:
			b.distribute(ev)
		case <-b.done:
			return
		}
	}
}

// Stop terminates the distribution loop.
func (b *Bus) Stop() {
	close(b.done)
}

// Publish enqueues an event for broadcast. Never blocks.
func (b *Bus) Publish(ev model.HardwareEvent) {
	select {
	case b.events <- ev:
	default:
		if b.logger != nil {
			b.logger.Warn("Event bus full, dropping event",
				zap.String("event_kind", string(ev.Kind)),
			)
		}
	}
}

// Subscribe registers a subscriber for the given event kinds; with no kinds
// the subscriber receives everything. Returns the channel and an id for
// Unsubscribe.
func (b *Bus) Subscribe(kinds ...model.EventKind) (<-chan model.HardwareEvent, int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	sub := &subscription{
		ch:    make(chan model.HardwareEvent, 100),
		kinds: make(map[model.EventKind]bool, len(kinds)),
	}
	for _, k := range kinds {
		sub.kinds[k] = true
	}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	return sub.ch, id
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id int) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
	}
}

func (b *Bus) distribute(ev model.HardwareEvent) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	for _, sub := range b.subscribers {
		if len(sub.kinds) > 0 && !sub.kinds[ev.Kind] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			// Subscriber is slow, skip
		}
	}
}
