package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher fans auth and profile events out to in-process handlers.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler) (unsubscribe func())
}

type subscription struct {
	id      uint64
	handler EventHandler
}

// inMemoryDispatcher runs handlers on the publisher's goroutine.
type inMemoryDispatcher struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[EventType][]subscription
	now    func() time.Time
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher() Dispatcher {
	return &inMemoryDispatcher{
		subs: make(map[EventType][]subscription),
		now:  time.Now,
	}
}

// Publish runs the handlers of event.Type in subscription order. A failing or
// panicking handler does not stop the others; their errors are joined.
// A zero Timestamp is stamped with the publish time.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = d.now().UTC()
	}

	d.mu.RLock()
	subs := append([]subscription(nil), d.subs[event.Type]...)
	d.mu.RUnlock()

	var errs []error
	for _, s := range subs {
		if err := invoke(ctx, s.handler, event); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %d: %w", event.Type, s.id, err))
		}
	}
	return errors.Join(errs...)
}

// Subscribe registers handler for eventType until unsubscribe is called.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) (unsubscribe func()) {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[eventType] = append(d.subs[eventType], subscription{id: id, handler: handler})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(eventType, id) })
	}
}

func (d *inMemoryDispatcher) remove(eventType EventType, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.subs[eventType]
	for i, s := range subs {
		if s.id == id {
			d.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.subs[eventType]) == 0 {
		delete(d.subs, eventType)
	}
}

func invoke(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(ctx, event)
}
