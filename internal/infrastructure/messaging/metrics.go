package messaging

import (
	"maps"
	"sync"
	"time"

	"github.com/streakhub/streak-hub/internal/domain/participant"
)

// EventBusMetrics tracks event bus activity.
type EventBusMetrics struct {
	mu sync.RWMutex

	publishedByKind map[participant.Kind]int64

	handlerExecutions    int64
	handlerFailures      int64
	handlerTotalDuration time.Duration

	logFailures int64

	lastReset time.Time
}

// NewEventBusMetrics creates new metrics tracker.
func NewEventBusMetrics() *EventBusMetrics {
	return &EventBusMetrics{
		publishedByKind: make(map[participant.Kind]int64),
		lastReset:       time.Now(),
	}
}

// RecordPublish records a delivered event.
func (m *EventBusMetrics) RecordPublish(kind participant.Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishedByKind[kind]++
}

// RecordHandlerExecution records a handler execution.
func (m *EventBusMetrics) RecordHandlerExecution(_ participant.Kind, duration time.Duration, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlerExecutions++
	m.handlerTotalDuration += duration
	if !success {
		m.handlerFailures++
	}
}

// RecordLogFailure records an event that could not be appended to the log.
func (m *EventBusMetrics) RecordLogFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logFailures++
}

// Snapshot returns a copy of current metrics.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total int64
	for _, v := range m.publishedByKind {
		total += v
	}

	avg := time.Duration(0)
	if m.handlerExecutions > 0 {
		avg = m.handlerTotalDuration / time.Duration(m.handlerExecutions)
	}

	return EventBusMetricsSnapshot{
		TotalPublished:         total,
		PublishedByKind:        maps.Clone(m.publishedByKind),
		HandlerExecutions:      m.handlerExecutions,
		HandlerFailures:        m.handlerFailures,
		AverageHandlerDuration: avg,
		LogFailures:            m.logFailures,
		LastReset:              m.lastReset,
	}
}

// Reset zeroes all counters.
func (m *EventBusMetrics) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.publishedByKind = make(map[participant.Kind]int64)
	m.handlerExecutions = 0
	m.handlerFailures = 0
	m.handlerTotalDuration = 0
	m.logFailures = 0
	m.lastReset = time.Now()
}

// EventBusMetricsSnapshot is a point-in-time snapshot of metrics.
type EventBusMetricsSnapshot struct {
	TotalPublished         int64
	PublishedByKind        map[participant.Kind]int64
	HandlerExecutions      int64
	HandlerFailures        int64
	AverageHandlerDuration time.Duration
	LogFailures            int64
	LastReset              time.Time
}

// SuccessRate returns the share of handler runs that did not fail.
func (s EventBusMetricsSnapshot) SuccessRate() float64 {
	if s.HandlerExecutions == 0 {
		return 1.0
	}
	return float64(s.HandlerExecutions-s.HandlerFailures) / float64(s.HandlerExecutions)
}
