package runtime

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	"github.com/drblury/sockflow/internal/runtime/jsoncodec"
)

const (
	// latencySampleSize bounds the per-event latency ring buffer.
	latencySampleSize = 256
	// throughputWindowSize is the sliding window for rate calculations.
	throughputWindowSize = time.Minute
)

// RouteStats accumulates dispatch statistics for one event type. Entries
// are created at route registration and survive both route replacement and
// table clears, so counters stay continuous across re-registration.
type RouteStats struct {
	mu    sync.Mutex
	event string

	Done                uint64    `json:"done"`
	Rejected            uint64    `json:"rejected"`
	Errored             uint64    `json:"errored"`
	TotalProcessingTime int64     `json:"total_processing_time_ns"`
	LastDispatchedAt    time.Time `json:"last_dispatched_at"`
	LastOutcome         string    `json:"last_outcome"`

	Latency    LatencyMetrics    `json:"latency"`
	Throughput ThroughputMetrics `json:"throughput"`
	Errors     ErrorBreakdown    `json:"errors"`
	Resource   ResourceUsage     `json:"resource"`

	latencyWindow    *latencyWindow
	throughputWindow *throughputWindow
	resourceSampler  *resourceTracker
}

func newRouteStats(event string, sampler *resourceTracker) *RouteStats {
	return &RouteStats{
		event:            event,
		latencyWindow:    newLatencyWindow(latencySampleSize),
		throughputWindow: newThroughputWindow(throughputWindowSize),
		resourceSampler:  sampler,
	}
}

// record folds one finished dispatch into the stats.
func (rs *RouteStats) record(outcome Outcome, elapsed time.Duration, err error, category ErrorCategory) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	switch outcome {
	case OutcomeDone:
		rs.Done++
	case OutcomeRejected:
		rs.Rejected++
	case OutcomeErrored:
		rs.Errored++
	}
	rs.TotalProcessingTime += int64(elapsed)
	rs.LastDispatchedAt = time.Now().UTC()
	rs.LastOutcome = outcome.String()

	rs.latencyWindow.Add(int64(elapsed))
	rs.Latency = rs.latencyWindow.Snapshot()
	rs.Latency.LastNs = int64(elapsed)
	total := rs.Done + rs.Rejected + rs.Errored
	if total > 0 {
		rs.Latency.AverageNs = rs.TotalProcessingTime / int64(total)
	}

	rs.Throughput = rs.throughputWindow.AddAndSnapshot(time.Now())
	rs.Throughput.TotalMessages = total

	rs.Errors.Record(category, err)

	if rs.resourceSampler != nil {
		rs.Resource = rs.resourceSampler.Snapshot()
	}
}

// MarshalJSON serializes a consistent view of the stats.
func (rs *RouteStats) MarshalJSON() ([]byte, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	type Alias RouteStats
	return jsoncodec.Marshal((*Alias)(rs))
}

// RouteInfo describes one registered route for introspection surfaces.
type RouteInfo struct {
	Event       string      `json:"event"`
	Guards      int         `json:"guards"`
	Middlewares int         `json:"middlewares"`
	Stats       *RouteStats `json:"stats,omitempty"`
}

// LatencyMetrics summarizes recent dispatch durations in nanoseconds.
type LatencyMetrics struct {
	LastNs    int64 `json:"last_ns"`
	AverageNs int64 `json:"average_ns"`
	MinNs     int64 `json:"min_ns"`
	MaxNs     int64 `json:"max_ns"`
	P50Ns     int64 `json:"p50_ns"`
	P95Ns     int64 `json:"p95_ns"`
	P99Ns     int64 `json:"p99_ns"`
	Samples   int   `json:"samples"`
}

// ThroughputMetrics summarizes dispatch rates over the sliding window.
type ThroughputMetrics struct {
	CurrentRPS       float64 `json:"current_rps"`
	WindowSeconds    float64 `json:"window_seconds"`
	MessagesInWindow int     `json:"messages_in_window"`
	TotalMessages    uint64  `json:"total_messages"`
}

// ErrorBreakdown counts dispatch failures by pipeline stage.
type ErrorBreakdown struct {
	Serialization uint64 `json:"serialization"`
	Transport     uint64 `json:"transport"`
	Middleware    uint64 `json:"middleware"`
	Handler       uint64 `json:"handler"`
	Unknown       uint64 `json:"unknown"`
	LastError     string `json:"last_error,omitempty"`
}

// Record counts err under category. A nil err is a no-op.
func (eb *ErrorBreakdown) Record(category ErrorCategory, err error) {
	if err == nil {
		return
	}
	switch category {
	case ErrorCategorySerialization:
		eb.Serialization++
	case ErrorCategoryTransport:
		eb.Transport++
	case ErrorCategoryMiddleware:
		eb.Middleware++
	case ErrorCategoryHandler:
		eb.Handler++
	default:
		eb.Unknown++
	}
	eb.LastError = err.Error()
}

// ErrorCategory labels which pipeline stage produced a dispatch error.
type ErrorCategory string

const (
	ErrorCategoryNone          ErrorCategory = "none"
	ErrorCategorySerialization ErrorCategory = "serialization"
	ErrorCategoryTransport     ErrorCategory = "transport"
	ErrorCategoryMiddleware    ErrorCategory = "middleware"
	ErrorCategoryHandler       ErrorCategory = "handler"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// ErrorClassifier maps a dispatch error to the stage that produced it.
// Services accept a custom classifier for domain error types.
type ErrorClassifier func(err error) ErrorCategory

// defaultErrorClassifier inspects the error chain and stage prefixes the
// dispatcher attaches. Serialization and transport checks run before the
// broader middleware and handler matches so a wrapped cause wins.
func defaultErrorClassifier(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var notConfigured *errspkg.NotConfiguredError
	if errors.As(err, &notConfigured) {
		return ErrorCategoryTransport
	}
	var doubleContinuation *errspkg.DoubleContinuationError
	if errors.As(err, &doubleContinuation) {
		return ErrorCategoryMiddleware
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "decode payload"), strings.Contains(msg, "unmarshal"):
		return ErrorCategorySerialization
	case strings.Contains(msg, "normalize payload"):
		return ErrorCategoryTransport
	case strings.Contains(msg, "middleware"):
		return ErrorCategoryMiddleware
	case strings.Contains(msg, "handler"):
		return ErrorCategoryHandler
	default:
		return ErrorCategoryUnknown
	}
}

// latencyWindow is a fixed-size ring of duration samples.
type latencyWindow struct {
	samples []int64
	next    int
	filled  int
	last    int64
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]int64, size)}
}

func (lw *latencyWindow) Add(sample int64) {
	lw.samples[lw.next] = sample
	lw.next = (lw.next + 1) % len(lw.samples)
	if lw.filled < len(lw.samples) {
		lw.filled++
	}
	lw.last = sample
}

func (lw *latencyWindow) Snapshot() LatencyMetrics {
	if lw.filled == 0 {
		return LatencyMetrics{}
	}

	ordered := make([]int64, lw.filled)
	copy(ordered, lw.samples[:lw.filled])
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	return LatencyMetrics{
		LastNs:  lw.last,
		MinNs:   ordered[0],
		MaxNs:   ordered[len(ordered)-1],
		P50Ns:   percentile(ordered, 0.50),
		P95Ns:   percentile(ordered, 0.95),
		P99Ns:   percentile(ordered, 0.99),
		Samples: lw.filled,
	}
}

// percentile interpolates linearly between the two nearest samples.
func percentile(sorted []int64, q float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(pos)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lower)
	return sorted[lower] + int64(float64(sorted[upper]-sorted[lower])*frac)
}

// throughputWindow tracks dispatch timestamps within a sliding horizon.
type throughputWindow struct {
	horizon time.Duration
	samples []time.Time
}

func newThroughputWindow(horizon time.Duration) *throughputWindow {
	return &throughputWindow{horizon: horizon}
}

func (tw *throughputWindow) AddAndSnapshot(now time.Time) ThroughputMetrics {
	tw.samples = append(tw.samples, now)
	tw.cleanup(now)
	return tw.snapshot(now)
}

func (tw *throughputWindow) cleanup(now time.Time) {
	cutoff := now.Add(-tw.horizon)
	idx := 0
	for idx < len(tw.samples) && tw.samples[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		tw.samples = append(tw.samples[:0], tw.samples[idx:]...)
	}
}

func (tw *throughputWindow) snapshot(now time.Time) ThroughputMetrics {
	count := len(tw.samples)
	if count == 0 {
		return ThroughputMetrics{WindowSeconds: tw.horizon.Seconds()}
	}

	span := now.Sub(tw.samples[0])
	if span <= 0 {
		span = time.Nanosecond
	}
	if span > tw.horizon {
		span = tw.horizon
	}

	return ThroughputMetrics{
		CurrentRPS:       float64(count) / span.Seconds(),
		WindowSeconds:    tw.horizon.Seconds(),
		MessagesInWindow: count,
	}
}
