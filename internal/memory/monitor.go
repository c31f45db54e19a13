package memory

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"media-library/internal/logging"
	"media-library/internal/metrics"
)

// Monitor defaults
const (
	DefaultHighWaterMark     = 0.70
	DefaultCriticalWaterMark = 0.85
	DefaultCheckInterval     = 5 * time.Second
)

// Monitor pauses background work while heap usage is close to the memory
// limit. A Monitor without a limit never pauses.
type Monitor struct {
	limit    int64
	high     float64
	critical float64
	interval time.Duration
	readHeap func() uint64

	mu     sync.RWMutex
	heap   uint64
	paused bool
	resume chan struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates a Monitor for limit bytes. A zero limit falls back to
// the current Go soft memory limit.
func NewMonitor(limit int64) *Monitor {
	if limit <= 0 {
		if current := debug.SetMemoryLimit(-1); current > 0 && current < math.MaxInt64 {
			limit = current
		}
	}
	if limit <= 0 {
		logging.Info("No memory limit configured, background work will not be throttled")
	}

	return &Monitor{
		limit:    limit,
		high:     DefaultHighWaterMark,
		critical: DefaultCriticalWaterMark,
		interval: DefaultCheckInterval,
		readHeap: heapAlloc,
		resume:   make(chan struct{}),
		stop:     make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.HeapAlloc
}

// Start begins sampling. It does nothing without a limit.
func (m *Monitor) Start() {
	if m.limit <= 0 {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases every waiter.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stop:
			return
		}
	}
}

func (m *Monitor) check() {
	heap := m.readHeap()
	usage := float64(heap) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.heap = heap

	switch {
	case !m.paused && usage >= m.critical:
		logging.Warn("Memory critical (%.1f%% of limit), pausing background work", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryPausesTotal.Inc()
		go runtime.GC()
	case m.paused && usage < m.high:
		logging.Info("Memory recovered (%.1f%% of limit), resuming background work", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resume)
		m.resume = make(chan struct{})
	}
}

// Wait blocks while work is paused. It returns false when cancel is closed
// or the Monitor stops first.
func (m *Monitor) Wait(cancel <-chan struct{}) bool {
	m.mu.RLock()
	if !m.paused {
		m.mu.RUnlock()
		return true
	}
	resume := m.resume
	m.mu.RUnlock()

	select {
	case <-resume:
		return true
	case <-cancel:
		return false
	case <-m.stop:
		return false
	}
}

// Paused reports whether background work is currently held back.
func (m *Monitor) Paused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Usage returns the last sampled heap size as a fraction of the limit, or
// 0 without a limit.
func (m *Monitor) Usage() float64 {
	if m.limit <= 0 {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return float64(m.heap) / float64(m.limit)
}
