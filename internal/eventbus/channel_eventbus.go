package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultBufferSize    = 100
	defaultWorkerCount   = 5
	defaultMaxRetries    = 3
	defaultRetryInterval = 100 * time.Millisecond
)

// ChannelEventBus dispatches events to subscribed handlers through a
// buffered channel drained by a fixed worker pool. Handler failures are
// retried and then logged; they never propagate to publishers.
type ChannelEventBus struct {
	mutex       sync.RWMutex
	byType      map[EventType]map[string]EventHandler
	catchAll    map[string]EventHandler
	closed      bool
	eventChan   chan queuedEvent
	done        chan struct{}
	workers     sync.WaitGroup
	logger      *zap.Logger
	bufferSize  int
	workerCount int
	maxRetries  int
	retryEvery  time.Duration
}

// queuedEvent carries the publisher's context so cancelled events can be
// dropped instead of dispatched.
type queuedEvent struct {
	ctx   context.Context
	event Event
}

// ChannelEventBusOption configures a ChannelEventBus.
type ChannelEventBusOption func(*ChannelEventBus)

// WithBufferSize sets how many events may queue before Publish blocks.
func WithBufferSize(size int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		if size > 0 {
			eb.bufferSize = size
		}
	}
}

// WithWorkerCount sets the dispatch worker pool size.
func WithWorkerCount(count int) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		if count > 0 {
			eb.workerCount = count
		}
	}
}

// WithRetries sets how often a failing handler is retried and the pause
// between attempts.
func WithRetries(maxRetries int, interval time.Duration) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		eb.maxRetries = maxRetries
		eb.retryEvery = interval
	}
}

// WithLogger sets the logger used for handler failures.
func WithLogger(logger *zap.Logger) ChannelEventBusOption {
	return func(eb *ChannelEventBus) {
		if logger != nil {
			eb.logger = logger
		}
	}
}

// NewChannelEventBus creates a bus and starts its worker pool.
func NewChannelEventBus(options ...ChannelEventBusOption) *ChannelEventBus {
	eb := &ChannelEventBus{
		byType:      make(map[EventType]map[string]EventHandler),
		catchAll:    make(map[string]EventHandler),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
		bufferSize:  defaultBufferSize,
		workerCount: defaultWorkerCount,
		maxRetries:  defaultMaxRetries,
		retryEvery:  defaultRetryInterval,
	}
	for _, option := range options {
		option(eb)
	}

	eb.eventChan = make(chan queuedEvent, eb.bufferSize)
	for i := 0; i < eb.workerCount; i++ {
		eb.workers.Add(1)
		go eb.drain()
	}
	return eb
}

func (eb *ChannelEventBus) drain() {
	defer eb.workers.Done()
	for {
		select {
		case <-eb.done:
			return
		case queued := <-eb.eventChan:
			eb.dispatch(queued)
		}
	}
}

// dispatch fans one event out to every matching handler. Handlers run on a
// snapshot of the subscription maps so they may subscribe or unsubscribe
// without deadlocking.
func (eb *ChannelEventBus) dispatch(queued queuedEvent) {
	if queued.ctx.Err() != nil {
		return
	}

	eb.mutex.RLock()
	handlers := make([]EventHandler, 0, len(eb.byType[queued.event.Type()])+len(eb.catchAll))
	for _, handler := range eb.byType[queued.event.Type()] {
		handlers = append(handlers, handler)
	}
	for _, handler := range eb.catchAll {
		handlers = append(handlers, handler)
	}
	eb.mutex.RUnlock()

	for _, handler := range handlers {
		eb.invoke(queued.ctx, queued.event, handler)
	}
}

func (eb *ChannelEventBus) invoke(ctx context.Context, event Event, handler EventHandler) {
	var err error
	for attempt := 0; attempt <= eb.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return
		}
		if err = handler(ctx, event); err == nil {
			return
		}
		if attempt == eb.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(eb.retryEvery):
		}
	}

	eb.logger.Warn("event handler failed",
		zap.String("event_type", string(event.Type())),
		zap.Int("retries", eb.maxRetries),
		zap.Error(err))
}

// Publish queues an event for asynchronous dispatch. It blocks only when
// the buffer is full, and returns the context error if the caller is
// cancelled while waiting.
func (eb *ChannelEventBus) Publish(ctx context.Context, event Event) error {
	if eb.isClosed() {
		return fmt.Errorf("event bus is closed")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-eb.done:
		return fmt.Errorf("event bus is closed")
	case eb.eventChan <- queuedEvent{ctx: ctx, event: event}:
		return nil
	}
}

// Subscribe registers a handler for the given event types and returns the
// subscription id used for Unsubscribe.
func (eb *ChannelEventBus) Subscribe(eventTypes []EventType, handler EventHandler) (string, error) {
	if len(eventTypes) == 0 {
		return "", fmt.Errorf("at least one event type is required")
	}
	return eb.register(handler, func(id string) {
		for _, eventType := range eventTypes {
			if eb.byType[eventType] == nil {
				eb.byType[eventType] = make(map[string]EventHandler)
			}
			eb.byType[eventType][id] = handler
		}
	})
}

// SubscribeAll registers a handler that receives every event.
func (eb *ChannelEventBus) SubscribeAll(handler EventHandler) (string, error) {
	return eb.register(handler, func(id string) {
		eb.catchAll[id] = handler
	})
}

func (eb *ChannelEventBus) register(handler EventHandler, add func(id string)) (string, error) {
	if handler == nil {
		return "", fmt.Errorf("handler cannot be nil")
	}

	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if eb.closed {
		return "", fmt.Errorf("event bus is closed")
	}

	id := uuid.New().String()
	add(id)
	return id, nil
}

// Unsubscribe removes a subscription from every event type it was
// registered for. Unknown ids are a no-op.
func (eb *ChannelEventBus) Unsubscribe(subscriptionID string) error {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()
	if eb.closed {
		return fmt.Errorf("event bus is closed")
	}

	delete(eb.catchAll, subscriptionID)
	for _, handlers := range eb.byType {
		delete(handlers, subscriptionID)
	}
	return nil
}

// Close stops the workers and waits for in-flight dispatches to finish.
// Events still buffered when Close is called are discarded.
func (eb *ChannelEventBus) Close() error {
	eb.mutex.Lock()
	if eb.closed {
		eb.mutex.Unlock()
		return nil
	}
	eb.closed = true
	eb.mutex.Unlock()

	close(eb.done)
	eb.workers.Wait()
	return nil
}

func (eb *ChannelEventBus) isClosed() bool {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return eb.closed
}
