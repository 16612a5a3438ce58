package executor

import (
	"sync"
	"time"
)

// ExecutorMetrics tracks statistics about tool call dispatch.
type ExecutorMetrics struct {
	CallsExecuted   int
	CallsSuccessful int
	CallsFailed     int
	CallsTimedOut   int
	TotalDuration   time.Duration
	LongestCallTime time.Duration
	TotalRetries    int

	mu sync.Mutex // Protects metrics updates
}

func (m *ExecutorMetrics) record(success, timedOut bool, elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallsExecuted++
	if success {
		m.CallsSuccessful++
	} else {
		m.CallsFailed++
	}
	if timedOut {
		m.CallsTimedOut++
	}
	m.TotalDuration += elapsed
	if elapsed > m.LongestCallTime {
		m.LongestCallTime = elapsed
	}
}

func (m *ExecutorMetrics) addRetry() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TotalRetries++
}

// Copy creates a snapshot without the mutex.
func (m *ExecutorMetrics) Copy() ExecutorMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	return ExecutorMetrics{
		CallsExecuted:   m.CallsExecuted,
		CallsSuccessful: m.CallsSuccessful,
		CallsFailed:     m.CallsFailed,
		CallsTimedOut:   m.CallsTimedOut,
		TotalDuration:   m.TotalDuration,
		LongestCallTime: m.LongestCallTime,
		TotalRetries:    m.TotalRetries,
	}
}
