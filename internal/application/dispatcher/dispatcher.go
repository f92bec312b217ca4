package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/rfq-workflow/internal/domain/event"
)

// Dispatcher routes committed workflow events to subscribers. Events are
// only dispatched after the transaction that produced them commits, so a
// subscriber never observes a rolled-back transition.
type Dispatcher interface {
	// Subscribe adds an auto-named handler for eventType.
	Subscribe(eventType event.Type, handler Handler)
	SubscribeNamed(eventType event.Type, name string, handler Handler)
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs handlers in subscription order and stops at the first
	// failure.
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs each handler on its own goroutine. Handlers outlive
	// the caller's request; only its values are kept.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers describes subscribers without exposing their funcs.
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close rejects new events and waits for running async handlers.
	Close() error
}

// Logger is the key-value logger the dispatcher writes to.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger

	// zero means async handlers run unbounded
	asyncTimeout time.Duration

	inflight sync.WaitGroup
	closed   atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) { d.logger = logger }
}

// WithAsyncTimeout bounds how long an async handler may run
func WithAsyncTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) { d.asyncTimeout = timeout }
}

// NewDispatcher returns an in-process dispatcher.
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{handlers: make(map[event.Type][]HandlerInfo)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.RLock()
	n := len(d.handlers[eventType])
	d.mu.RUnlock()
	d.SubscribeNamed(eventType, fmt.Sprintf("%s#%d", eventType, n), handler)
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	info := HandlerInfo{Name: name, EventType: eventType, Handler: handler}

	d.mu.Lock()
	d.handlers[eventType] = append(d.handlers[eventType], info)
	d.mu.Unlock()

	d.log(false, "Event handler subscribed", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	kept := d.handlers[eventType][:0:0]
	for _, h := range d.handlers[eventType] {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	d.handlers[eventType] = kept
	d.mu.Unlock()

	d.log(false, "Event handler unsubscribed", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return fmt.Errorf("dispatcher is closed")
	}

	handlers := d.snapshot(evt.Type)
	d.log(false, "Dispatching event", eventFields(evt, "handler_count", len(handlers))...)

	for _, h := range handlers {
		if err := d.invoke(ctx, evt, h); err != nil {
			d.log(true, "Event handler failed", eventFields(evt, "handler_name", h.Name, "error", err)...)
			return fmt.Errorf("handler %s failed: %w", h.Name, err)
		}
	}
	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	// Registering in-flight work under the read lock keeps Close from
	// starting its drain between the closed check and the Add.
	d.mu.RLock()
	if d.closed.Load() {
		d.mu.RUnlock()
		d.log(true, "Dropping event, dispatcher is closed", eventFields(evt)...)
		return
	}
	handlers := append([]HandlerInfo(nil), d.handlers[evt.Type]...)
	d.inflight.Add(len(handlers))
	d.mu.RUnlock()

	if len(handlers) == 0 {
		return
	}
	d.log(false, "Dispatching event asynchronously", eventFields(evt, "handler_count", len(handlers))...)

	detached := context.WithoutCancel(ctx)
	for _, h := range handlers {
		go d.runAsync(detached, evt, h)
	}
}

func (d *eventDispatcher) runAsync(ctx context.Context, evt *event.Event, h HandlerInfo) {
	defer d.inflight.Done()

	if d.asyncTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.asyncTimeout)
		defer cancel()
	}
	if err := d.invoke(ctx, evt, h); err != nil {
		d.log(true, "Async event handler failed", eventFields(evt, "handler_name", h.Name, "error", err)...)
	}
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	handlers := d.snapshot(eventType)
	for i := range handlers {
		handlers[i].Handler = nil
	}
	return handlers
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	swapped := d.closed.CompareAndSwap(false, true)
	d.mu.Unlock()
	if !swapped {
		return fmt.Errorf("dispatcher already closed")
	}
	d.log(false, "Draining async event handlers")
	d.inflight.Wait()
	d.log(false, "Dispatcher closed")
	return nil
}

// snapshot copies the handler slice so callers can iterate without the lock.
func (d *eventDispatcher) snapshot(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]HandlerInfo(nil), d.handlers[eventType]...)
}

// invoke converts a handler panic into an error.
func (d *eventDispatcher) invoke(ctx context.Context, evt *event.Event, h HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			d.log(true, "Event handler panicked", eventFields(evt, "handler_name", h.Name, "panic", r)...)
		}
	}()
	return h.Handler(ctx, evt)
}

func eventFields(evt *event.Event, extra ...interface{}) []interface{} {
	fields := []interface{}{"event_type", evt.Type, "event_id", evt.ID, "rfq_id", evt.RFQID}
	if evt.CorrelationID != "" {
		fields = append(fields, "correlation_id", evt.CorrelationID)
	}
	return append(fields, extra...)
}

func (d *eventDispatcher) log(isError bool, msg string, keysAndValues ...interface{}) {
	switch {
	case d.logger == nil:
	case isError:
		d.logger.Error(msg, keysAndValues...)
	default:
		d.logger.Info(msg, keysAndValues...)
	}
}
