// Package events dispatches typed state-change events to cascade handlers
// synchronously, inside the transaction of the operation that produced them.
package events

import (
	"context"
	"fmt"
	"sync"

	"reliefops/internal/models"
	"reliefops/internal/repositories"

	"go.uber.org/zap"
)

// Handler reacts to one event using the repositories of the enclosing transaction.
type Handler func(ctx context.Context, repos repositories.Repos, evt models.Event) error

type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[models.EventType][]Handler
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[models.EventType][]Handler),
		logger:   logger,
	}
}

// Register appends h to the handlers of eventType. Handlers run in registration order.
func (d *Dispatcher) Register(eventType models.EventType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], h)
	d.logger.Debug("event handler registered", zap.String("event_type", string(eventType)))
}

// Dispatch runs every handler for each event in order. The first handler error
// stops dispatch and is returned so the caller's transaction rolls back.
func (d *Dispatcher) Dispatch(ctx context.Context, repos repositories.Repos, evts ...models.Event) error {
	for _, evt := range evts {
		d.mu.RLock()
		handlers := d.handlers[evt.Type()]
		d.mu.RUnlock()

		for _, h := range handlers {
			if err := h(ctx, repos, evt); err != nil {
				d.logger.Debug("event handler failed",
					zap.String("event_type", string(evt.Type())),
					zap.Error(err),
				)
				return fmt.Errorf("%s handler: %w", evt.Type(), err)
			}
		}
	}
	return nil
}

// HandlerCount reports how many handlers are registered for eventType.
func (d *Dispatcher) HandlerCount(eventType models.EventType) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[eventType])
}
