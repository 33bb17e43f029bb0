package taskloop

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics tracks runtime statistics for the loop: callback latency
// distribution, callback throughput, and queue depths. Collection is
// optional; enable it with WithMetrics.
//
// Thread Safety:
//   - Recording happens on the loop goroutine; reading may happen from any
//     goroutine via [Loop.Metrics], which returns a point-in-time snapshot.
//   - LatencyMetrics and QueueMetrics guard their windows with a mutex.
//   - Counters are atomics.
//
// Example:
//
//	loop, _ := New(WithMetrics(true))
//	go func() { _ = loop.RunForever() }()
//	...
//	stats := loop.Metrics()
//	fmt.Printf("TPS: %.2f, P99 latency: %v\n", stats.TPS, stats.Latency.P99)
type Metrics struct {
	Latency LatencyMetrics
	Queue   QueueMetrics
	tps     *TPSCounter

	callbacksRun    atomic.Uint64
	timersScheduled atomic.Uint64
	timersFired     atomic.Uint64
	tasksStarted    atomic.Uint64
}

func newMetrics() *Metrics {
	return &Metrics{
		tps: NewTPSCounter(10*time.Second, 100*time.Millisecond),
	}
}

// recordCallback accounts for one executed callback.
func (m *Metrics) recordCallback(d time.Duration) {
	m.callbacksRun.Add(1)
	m.Latency.Record(d)
	m.tps.Increment()
}

// MetricsSnapshot is a point-in-time copy of the loop's statistics, safe to
// retain and read from any goroutine.
type MetricsSnapshot struct {
	Latency LatencySnapshot
	Queue   QueueSnapshot

	// TPS is the callback throughput over the rolling window.
	TPS float64

	CallbacksRun    uint64
	TimersScheduled uint64
	TimersFired     uint64
	TasksStarted    uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Latency:         m.Latency.Sample(),
		Queue:           m.Queue.Snapshot(),
		TPS:             m.tps.TPS(),
		CallbacksRun:    m.callbacksRun.Load(),
		TimersScheduled: m.timersScheduled.Load(),
		TimersFired:     m.timersFired.Load(),
		TasksStarted:    m.tasksStarted.Load(),
	}
}

// latencySampleSize is the number of samples retained in the rolling
// buffer used to compute percentiles.
const latencySampleSize = 1000

// LatencyMetrics tracks callback execution latency two ways: a rolling
// window of exact samples for on-demand percentiles, and a P-Square
// streaming estimator that maintains a P99 over the loop's whole lifetime
// without storing observations.
type LatencyMetrics struct {
	mu          sync.Mutex
	samples     [latencySampleSize]time.Duration
	sampleIdx   int
	sampleCount int
	sum         time.Duration
	p99         *streamingQuantile
}

// LatencySnapshot is the computed distribution over the retained window.
type LatencySnapshot struct {
	Count int

	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
	Max time.Duration

	Mean time.Duration

	// P99Lifetime is the streaming estimate over all samples ever recorded,
	// not just the retained window.
	P99Lifetime time.Duration
}

// Record adds a latency sample, evicting the oldest once the window is full.
func (l *LatencyMetrics) Record(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sampleCount >= latencySampleSize {
		l.sum -= l.samples[l.sampleIdx]
	}

	l.samples[l.sampleIdx] = d
	l.sum += d
	l.sampleIdx++
	if l.sampleIdx >= latencySampleSize {
		l.sampleIdx = 0
	}
	if l.sampleCount < latencySampleSize {
		l.sampleCount++
	}

	if l.p99 == nil {
		l.p99 = newStreamingQuantile(0.99)
	}
	l.p99.observe(d)
}

// Sample computes percentiles over the retained window.
//
// Sorting is O(n log n) over at most 1000 samples; for monitoring, call this
// no more than once per second to avoid perturbing the loop it measures.
func (l *LatencyMetrics) Sample() LatencySnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := l.sampleCount
	if count == 0 {
		return LatencySnapshot{}
	}

	sorted := make([]time.Duration, count)
	copy(sorted, l.samples[:count])
	slices.Sort(sorted)

	snap := LatencySnapshot{
		Count: count,
		P50:   sorted[percentileIndex(count, 50)],
		P90:   sorted[percentileIndex(count, 90)],
		P95:   sorted[percentileIndex(count, 95)],
		P99:   sorted[percentileIndex(count, 99)],
		Max:   sorted[count-1],
		Mean:  l.sum / time.Duration(count),
	}
	if l.p99 != nil {
		snap.P99Lifetime = l.p99.estimate()
	}
	return snap
}

// percentileIndex computes the index for a given percentile (0-100).
func percentileIndex(n, p int) int {
	index := (p * n) / 100
	if index >= n {
		return n - 1
	}
	return index
}

// queueGauge tracks one queue's depth: current, high-water mark, and an
// exponential moving average (alpha=0.1, warmstarted on the first
// observation).
type queueGauge struct {
	current     int
	max         int
	avg         float64
	initialized bool
}

func (g *queueGauge) update(depth int) {
	g.current = depth
	if depth > g.max {
		g.max = depth
	}
	if !g.initialized {
		g.avg = float64(depth)
		g.initialized = true
	} else {
		g.avg = 0.9*g.avg + 0.1*float64(depth)
	}
}

// QueueGaugeSnapshot is a point-in-time view of one queue's depth.
type QueueGaugeSnapshot struct {
	Current int
	Max     int
	Avg     float64
}

func (g *queueGauge) snapshot() QueueGaugeSnapshot {
	return QueueGaugeSnapshot{Current: g.current, Max: g.max, Avg: g.avg}
}

// QueueMetrics tracks the depths of the loop's three queues, updated once
// per iteration.
type QueueMetrics struct {
	mu      sync.Mutex
	ready   queueGauge
	timers  queueGauge
	ingress queueGauge
}

// QueueSnapshot is a point-in-time view of all queue depths.
type QueueSnapshot struct {
	Ready   QueueGaugeSnapshot
	Timers  QueueGaugeSnapshot
	Ingress QueueGaugeSnapshot
}

// UpdateReady records the ready-queue depth.
func (q *QueueMetrics) UpdateReady(depth int) {
	q.mu.Lock()
	q.ready.update(depth)
	q.mu.Unlock()
}

// UpdateTimers records the timer-heap depth.
func (q *QueueMetrics) UpdateTimers(depth int) {
	q.mu.Lock()
	q.timers.update(depth)
	q.mu.Unlock()
}

// UpdateIngress records the cross-goroutine ingress depth observed at
// transfer time.
func (q *QueueMetrics) UpdateIngress(depth int) {
	q.mu.Lock()
	q.ingress.update(depth)
	q.mu.Unlock()
}

// Snapshot returns a consistent copy of all gauges.
func (q *QueueMetrics) Snapshot() QueueSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueSnapshot{
		Ready:   q.ready.snapshot(),
		Timers:  q.timers.snapshot(),
		Ingress: q.ingress.snapshot(),
	}
}

// TPSCounter tracks callback throughput with a rolling window.
//
// Implementation Details:
//   - Rolling window length: configurable (default: 10 seconds)
//   - Bucket granularity: configurable (default: 100 milliseconds)
//
// Behavior:
//
//	At startup, TPS is low until the rolling window fills. After warmup it
//	reflects the average rate over the whole window; with 100ms buckets the
//	precision is 0.1 TPS.
//
// Thread Safety: All methods are safe from any goroutine.
type TPSCounter struct {
	mu           sync.Mutex
	buckets      []int64
	bucketSize   time.Duration
	windowSize   time.Duration
	lastRotation time.Time
}

// NewTPSCounter creates a counter over the given rolling window with the
// given bucket granularity.
func NewTPSCounter(windowSize, bucketSize time.Duration) *TPSCounter {
	bucketCount := int(windowSize / bucketSize)
	if bucketCount < 1 {
		bucketCount = 1
	}
	return &TPSCounter{
		buckets:      make([]int64, bucketCount),
		bucketSize:   bucketSize,
		windowSize:   windowSize,
		lastRotation: time.Now(),
	}
}

// Increment records one executed callback.
func (t *TPSCounter) Increment() {
	t.mu.Lock()
	t.rotateLocked(time.Now())
	t.buckets[len(t.buckets)-1]++
	t.mu.Unlock()
}

// rotateLocked advances the window to now, dropping expired buckets.
func (t *TPSCounter) rotateLocked(now time.Time) {
	advance := int(now.Sub(t.lastRotation) / t.bucketSize)
	if advance <= 0 {
		return
	}
	if advance >= len(t.buckets) {
		clear(t.buckets)
		t.lastRotation = now
		return
	}
	copy(t.buckets, t.buckets[advance:])
	for i := len(t.buckets) - advance; i < len(t.buckets); i++ {
		t.buckets[i] = 0
	}
	t.lastRotation = t.lastRotation.Add(time.Duration(advance) * t.bucketSize)
}

// TPS returns the current average rate over the rolling window.
func (t *TPSCounter) TPS() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rotateLocked(time.Now())

	var sum int64
	for _, count := range t.buckets {
		sum += count
	}
	if sum == 0 {
		return 0
	}
	return float64(sum) / t.windowSize.Seconds()
}
