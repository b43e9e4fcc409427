package runtime

import (
	"errors"
	"fmt"
	"testing"
	"time"

	errspkg "github.com/drblury/sockflow/internal/runtime/errors"
	"github.com/drblury/sockflow/internal/runtime/jsoncodec"
)

func TestPercentile(t *testing.T) {
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("expected 0 for empty input, got %d", got)
	}
	if got := percentile([]int64{7}, 0.99); got != 7 {
		t.Fatalf("expected single sample, got %d", got)
	}
	if got := percentile([]int64{10, 20}, 0.5); got != 15 {
		t.Fatalf("expected interpolation to 15, got %d", got)
	}
	sorted := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	if got := percentile(sorted, 1.0); got != 10 {
		t.Fatalf("expected max at q=1, got %d", got)
	}
	if got := percentile(sorted, 0.0); got != 1 {
		t.Fatalf("expected min at q=0, got %d", got)
	}
}

func TestLatencyWindowRing(t *testing.T) {
	lw := newLatencyWindow(4)

	if snap := lw.Snapshot(); snap.Samples != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}

	for i := int64(1); i <= 6; i++ {
		lw.Add(i)
	}

	snap := lw.Snapshot()
	if snap.Samples != 4 {
		t.Fatalf("expected ring capped at 4, got %d", snap.Samples)
	}
	// 5 and 6 overwrote 1 and 2.
	if snap.MinNs != 3 || snap.MaxNs != 6 {
		t.Fatalf("expected window [3..6], got min=%d max=%d", snap.MinNs, snap.MaxNs)
	}
	if snap.LastNs != 6 {
		t.Fatalf("expected last sample 6, got %d", snap.LastNs)
	}
}

func TestThroughputWindow(t *testing.T) {
	tw := newThroughputWindow(time.Minute)
	now := time.Now()

	var snap ThroughputMetrics
	for i := range 3 {
		snap = tw.AddAndSnapshot(now.Add(time.Duration(i) * time.Second))
	}
	if snap.MessagesInWindow != 3 {
		t.Fatalf("expected 3 in window, got %d", snap.MessagesInWindow)
	}
	if snap.CurrentRPS <= 0 {
		t.Fatalf("expected positive rate, got %f", snap.CurrentRPS)
	}
	if snap.WindowSeconds != 60 {
		t.Fatalf("expected 60s window, got %f", snap.WindowSeconds)
	}

	// Samples beyond the horizon drop out.
	snap = tw.AddAndSnapshot(now.Add(2 * time.Minute))
	if snap.MessagesInWindow != 1 {
		t.Fatalf("expected stale samples evicted, got %d", snap.MessagesInWindow)
	}
}

func TestErrorBreakdownRecord(t *testing.T) {
	var eb ErrorBreakdown

	eb.Record(ErrorCategoryHandler, nil)
	if eb.Handler != 0 {
		t.Fatal("nil error must not count")
	}

	eb.Record(ErrorCategorySerialization, errors.New("bad json"))
	eb.Record(ErrorCategoryTransport, errors.New("link down"))
	eb.Record(ErrorCategoryMiddleware, errors.New("mw"))
	eb.Record(ErrorCategoryHandler, errors.New("h"))
	eb.Record(ErrorCategoryNone, errors.New("odd"))

	if eb.Serialization != 1 || eb.Transport != 1 || eb.Middleware != 1 || eb.Handler != 1 {
		t.Fatalf("unexpected counts %+v", eb)
	}
	if eb.Unknown != 1 {
		t.Fatalf("an error without a category counts as unknown, got %d", eb.Unknown)
	}
	if eb.LastError != "odd" {
		t.Fatalf("expected last error kept, got %q", eb.LastError)
	}
}

func TestDefaultErrorClassifier(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ErrorCategoryNone},
		{"not_configured", &errspkg.NotConfiguredError{Op: "send"}, ErrorCategoryTransport},
		{"wrapped_not_configured", fmt.Errorf("handler: %w", &errspkg.NotConfiguredError{}), ErrorCategoryTransport},
		{"double_continuation", &errspkg.DoubleContinuationError{Index: 1}, ErrorCategoryMiddleware},
		{"decode", fmt.Errorf("decode payload: %w", errors.New("bad byte")), ErrorCategorySerialization},
		{"unmarshal", errors.New("unmarshal json payload: eof"), ErrorCategorySerialization},
		{"normalize", fmt.Errorf("normalize payload: %w", errors.New("short frame")), ErrorCategoryTransport},
		{"global_middleware", fmt.Errorf("global middleware: %w", errors.New("x")), ErrorCategoryMiddleware},
		{"route_middleware", fmt.Errorf("route middleware: %w", errors.New("x")), ErrorCategoryMiddleware},
		{"handler", fmt.Errorf("handler: %w", errors.New("x")), ErrorCategoryHandler},
		{"handler_panic", errors.New("handler panic: nil deref"), ErrorCategoryHandler},
		{"other", errors.New("something else"), ErrorCategoryUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := defaultErrorClassifier(tc.err); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestRouteStatsRecord(t *testing.T) {
	stats := newRouteStats("chat.message", nil)

	stats.record(OutcomeDone, 10*time.Millisecond, nil, ErrorCategoryNone)
	stats.record(OutcomeRejected, 5*time.Millisecond, nil, ErrorCategoryNone)
	stats.record(OutcomeErrored, 20*time.Millisecond, errors.New("boom"), ErrorCategoryHandler)

	if stats.Done != 1 || stats.Rejected != 1 || stats.Errored != 1 {
		t.Fatalf("unexpected counters %+v", stats)
	}
	if stats.LastOutcome != "errored" {
		t.Fatalf("expected last outcome errored, got %q", stats.LastOutcome)
	}
	if stats.TotalProcessingTime != int64(35*time.Millisecond) {
		t.Fatalf("expected accumulated processing time, got %d", stats.TotalProcessingTime)
	}
	if stats.Throughput.TotalMessages != 3 {
		t.Fatalf("expected 3 total messages, got %d", stats.Throughput.TotalMessages)
	}
	if stats.Latency.Samples != 3 || stats.Latency.LastNs != int64(20*time.Millisecond) {
		t.Fatalf("unexpected latency snapshot %+v", stats.Latency)
	}
	if stats.Errors.Handler != 1 {
		t.Fatalf("expected handler error recorded, got %+v", stats.Errors)
	}
	if stats.LastDispatchedAt.IsZero() {
		t.Fatal("expected dispatch timestamp")
	}
}

func TestRouteStatsAverage(t *testing.T) {
	stats := newRouteStats("x", nil)
	stats.record(OutcomeDone, 10*time.Millisecond, nil, ErrorCategoryNone)
	stats.record(OutcomeDone, 30*time.Millisecond, nil, ErrorCategoryNone)

	if stats.Latency.AverageNs != int64(20*time.Millisecond) {
		t.Fatalf("expected average 20ms, got %d", stats.Latency.AverageNs)
	}
}

func TestRouteStatsMarshalJSON(t *testing.T) {
	stats := newRouteStats("chat.message", newResourceTracker())
	stats.record(OutcomeDone, time.Millisecond, nil, ErrorCategoryNone)

	raw, err := jsoncodec.Marshal(stats)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded map[string]any
	if err := jsoncodec.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded["done"] != float64(1) {
		t.Fatalf("expected done count in JSON, got %v", decoded["done"])
	}
	if _, ok := decoded["latency"]; !ok {
		t.Fatal("expected latency block in JSON")
	}
}
