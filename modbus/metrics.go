package modbus

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counter is a monotonically increasing, concurrency-safe count
type Counter struct {
	v atomic.Int64
}

func (c *Counter) Add(delta int64) { c.v.Add(delta) }
func (c *Counter) Inc()            { c.v.Add(1) }
func (c *Counter) Value() int64    { return c.v.Load() }
func (c *Counter) Reset()          { c.v.Store(0) }

// Gauge is a concurrency-safe value that can go up and down
type Gauge struct {
	v atomic.Int64
}

func (g *Gauge) Set(value int64) { g.v.Store(value) }
func (g *Gauge) Add(delta int64) { g.v.Add(delta) }
func (g *Gauge) Inc()            { g.v.Add(1) }
func (g *Gauge) Dec()            { g.v.Add(-1) }
func (g *Gauge) Value() int64    { return g.v.Load() }

// latencyBounds are the upper bounds of the histogram buckets. A final
// bucket collects everything at or above the last bound.
var latencyBounds = []time.Duration{
	time.Millisecond,
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// LatencyHistogram tracks round-trip times of transactions
type LatencyHistogram struct {
	mu      sync.Mutex
	count   int64
	sum     time.Duration
	min     time.Duration
	max     time.Duration
	buckets []int64
}

func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{buckets: make([]int64, len(latencyBounds)+1)}
}

// Record adds one measurement
func (h *LatencyHistogram) Record(d time.Duration) {
	i := sort.Search(len(latencyBounds), func(i int) bool { return d < latencyBounds[i] })

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 || d < h.min {
		h.min = d
	}
	if d > h.max {
		h.max = d
	}
	h.count++
	h.sum += d
	h.buckets[i]++
}

// Stats returns a copy of the histogram state
func (h *LatencyHistogram) Stats() LatencyStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	stats := LatencyStats{
		Count:   h.count,
		Min:     h.min,
		Max:     h.max,
		Buckets: append([]int64(nil), h.buckets...),
	}
	if h.count > 0 {
		stats.Avg = h.sum / time.Duration(h.count)
	}
	return stats
}

func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count, h.sum, h.min, h.max = 0, 0, 0, 0
	for i := range h.buckets {
		h.buckets[i] = 0
	}
}

// LatencyStats contains latency statistics
type LatencyStats struct {
	Count   int64
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Buckets []int64
}

// Metrics holds connection and transaction counters
type Metrics struct {
	ConnectAttempts  Counter
	ConnectSuccesses Counter
	ConnectFailures  Counter
	Disconnects      Counter

	RequestsSent      Counter
	RequestsSucceeded Counter
	RequestsFailed    Counter
	RequestsTimedOut  Counter
	Retries           Counter

	ResponsesReceived  Counter
	ExceptionsReceived Counter
	UnsolicitedFrames  Counter
	DecodeErrors       Counter

	RequestLatency *LatencyHistogram

	BytesSent     Counter
	BytesReceived Counter

	ActiveRequests Gauge

	startTime    atomic.Int64
	lastActivity atomic.Int64
}

func NewMetrics() *Metrics {
	m := &Metrics{RequestLatency: NewLatencyHistogram()}
	m.startTime.Store(time.Now().UnixNano())
	return m
}

// RecordActivity marks the connection as active now
func (m *Metrics) RecordActivity() {
	m.lastActivity.Store(time.Now().UnixNano())
}

// LastActivity returns the time of the last recorded activity, or the start
// time when nothing happened yet
func (m *Metrics) LastActivity() time.Time {
	if ns := m.lastActivity.Load(); ns != 0 {
		return time.Unix(0, ns)
	}
	return time.Unix(0, m.startTime.Load())
}

func (m *Metrics) Uptime() time.Duration {
	return time.Since(time.Unix(0, m.startTime.Load()))
}

// Reset zeroes every metric and restarts the uptime clock
func (m *Metrics) Reset() {
	for _, c := range []*Counter{
		&m.ConnectAttempts, &m.ConnectSuccesses, &m.ConnectFailures, &m.Disconnects,
		&m.RequestsSent, &m.RequestsSucceeded, &m.RequestsFailed, &m.RequestsTimedOut, &m.Retries,
		&m.ResponsesReceived, &m.ExceptionsReceived, &m.UnsolicitedFrames, &m.DecodeErrors,
		&m.BytesSent, &m.BytesReceived,
	} {
		c.Reset()
	}
	m.RequestLatency.Reset()
	m.ActiveRequests.Set(0)
	m.startTime.Store(time.Now().UnixNano())
	m.lastActivity.Store(0)
}

// Snapshot returns a point-in-time copy of the metrics
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime: m.Uptime(),

		ConnectAttempts:  m.ConnectAttempts.Value(),
		ConnectSuccesses: m.ConnectSuccesses.Value(),
		ConnectFailures:  m.ConnectFailures.Value(),
		Disconnects:      m.Disconnects.Value(),

		RequestsSent:      m.RequestsSent.Value(),
		RequestsSucceeded: m.RequestsSucceeded.Value(),
		RequestsFailed:    m.RequestsFailed.Value(),
		RequestsTimedOut:  m.RequestsTimedOut.Value(),
		Retries:           m.Retries.Value(),

		ResponsesReceived:  m.ResponsesReceived.Value(),
		ExceptionsReceived: m.ExceptionsReceived.Value(),
		UnsolicitedFrames:  m.UnsolicitedFrames.Value(),
		DecodeErrors:       m.DecodeErrors.Value(),

		LatencyStats: m.RequestLatency.Stats(),

		BytesSent:     m.BytesSent.Value(),
		BytesReceived: m.BytesReceived.Value(),

		ActiveRequests: m.ActiveRequests.Value(),
		LastActivity:   m.LastActivity(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	Uptime time.Duration

	ConnectAttempts  int64
	ConnectSuccesses int64
	ConnectFailures  int64
	Disconnects      int64

	RequestsSent      int64
	RequestsSucceeded int64
	RequestsFailed    int64
	RequestsTimedOut  int64
	Retries           int64

	ResponsesReceived  int64
	ExceptionsReceived int64
	UnsolicitedFrames  int64
	DecodeErrors       int64

	LatencyStats LatencyStats

	BytesSent     int64
	BytesReceived int64

	ActiveRequests int64
	LastActivity   time.Time
}
