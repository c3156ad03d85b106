package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// inMemoryDispatcher is a simple synchronous dispatcher.
type inMemoryDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
	logger    *zap.Logger
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher(logger *zap.Logger) Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &inMemoryDispatcher{
		listeners: make(map[EventType][]EventHandler),
		logger:    logger,
	}
}

// Publish synchronously invokes handlers for the given event. A failing or
// panicking handler is logged and does not stop the others.
func (d *inMemoryDispatcher) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	for _, handler := range handlers {
		if err := d.invoke(ctx, handler, event); err != nil {
			d.logger.Warn("event handler failed",
				zap.String("event_type", string(event.Type)),
				zap.Int64("ticket_id", event.TicketID),
				zap.Error(err))
		}
	}
	return nil
}

func (d *inMemoryDispatcher) invoke(ctx context.Context, handler EventHandler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// Subscribe registers a handler for the given event type.
func (d *inMemoryDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}
