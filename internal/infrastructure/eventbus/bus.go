package eventbus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/cli-engineer/agent/internal/domain/entity"
)

// Bus is the internal broadcast channel that ties the loop's stages
// together. Every subscriber gets its own channel seeded from the point of
// subscription forward; there is no history replay.
type Bus interface {
	Emit(event entity.Event)
	Subscribe() (<-chan entity.Event, func())
	Metrics() entity.Metrics
	Close()
}

// subscriber wraps one receiver's channel plus a closed-once guard so
// Unsubscribe (returned from Subscribe) is idempotent.
type subscriber struct {
	ch     chan entity.Event
	once   sync.Once
}

// InMemoryBus is the default Bus implementation: an in-process broadcast
// with bounded per-subscriber capacity and an aggregated metrics record
// protected for concurrent read/update.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[int]*subscriber
	nextID      int
	bufferSize  int
	logger      *zap.Logger
	closed      bool

	metricsMu sync.Mutex
	metrics   entity.Metrics
}

// NewInMemoryBus builds a bus. bufferSize bounds each subscriber's channel
// (default 1000 if <= 0); a slow subscriber that falls behind this capacity
// has further events silently dropped for it, never for the others.
func NewInMemoryBus(logger *zap.Logger, bufferSize int) *InMemoryBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &InMemoryBus{
		subscribers: make(map[int]*subscriber),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Emit mutates the running metrics for accounting event kinds, logs the
// event at debug level, and then best-effort broadcasts it to every live
// subscriber. Delivery failure — no subscribers, or a full channel for a
// slow one — is non-fatal and silently dropped.
func (b *InMemoryBus) Emit(event entity.Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := make([]*subscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	b.applyMetrics(event)

	b.logger.Debug("event emitted",
		zap.String("kind", string(event.Kind)),
		zap.Time("at", event.At),
	)

	for _, s := range subs {
		select {
		case s.ch <- event:
		default:
			b.logger.Warn("subscriber buffer full, dropping event",
				zap.String("kind", string(event.Kind)),
			)
		}
	}
}

// applyMetrics updates the aggregated counters per §4.1's accounting rules.
func (b *InMemoryBus) applyMetrics(event entity.Event) {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()

	switch event.Kind {
	case entity.EventAPICallCompleted:
		if event.API != nil {
			b.metrics.TotalAPICalls++
			b.metrics.TotalTokens += event.API.Tokens
			b.metrics.TotalCost += event.API.Cost
		}
	case entity.EventArtifactCreated:
		b.metrics.ArtifactsCreated++
	case entity.EventTaskCompleted:
		b.metrics.TasksCompleted++
	case entity.EventTaskFailed:
		b.metrics.TasksFailed++
	case entity.EventContextUsage:
		if event.Context != nil {
			b.metrics.CurrentContextUsage = event.Context.Pct
		}
	}
}

// Subscribe returns a fresh receiver channel seeing events emitted from
// this point forward, plus an unsubscribe func the caller should defer.
func (b *InMemoryBus) Subscribe() (<-chan entity.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{ch: make(chan entity.Event, b.bufferSize)}
	b.subscribers[id] = sub

	b.logger.Debug("subscriber registered", zap.Int("id", id))

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[id]; !ok {
			return
		}
		delete(b.subscribers, id)
		sub.once.Do(func() { close(sub.ch) })
	}
	return sub.ch, unsubscribe
}

// Metrics returns a value copy of the current aggregate.
func (b *InMemoryBus) Metrics() entity.Metrics {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	return b.metrics
}

// Close shuts the bus down and closes every live subscriber channel.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.subscribers {
		s.once.Do(func() { close(s.ch) })
	}
	b.subscribers = make(map[int]*subscriber)
	b.logger.Info("event bus closed")
}
