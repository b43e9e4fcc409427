package runtime

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics exposes dispatch outcomes as Prometheus collectors plus an
// in-memory per-event snapshot for introspection surfaces that cannot scrape.
type DispatchMetrics struct {
	mu          sync.RWMutex
	eventCounts map[string]*DispatchEventMetrics

	messagesTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	durationHist  *prometheus.HistogramVec
	inFlight      prometheus.Gauge

	registerer prometheus.Registerer
	registered bool
}

// DispatchEventMetrics is the in-memory counter set for one event type.
type DispatchEventMetrics struct {
	Event            string    `json:"event"`
	Done             uint64    `json:"done"`
	Rejected         uint64    `json:"rejected"`
	Errored          uint64    `json:"errored"`
	LastOutcome      string    `json:"last_outcome"`
	LastDispatchedAt time.Time `json:"last_dispatched_at"`
}

// DispatchMetricsSnapshot is a point-in-time copy of every event's counters.
type DispatchMetricsSnapshot struct {
	Events        map[string]DispatchEventMetrics `json:"events"`
	TotalDone     uint64                          `json:"total_done"`
	TotalRejected uint64                          `json:"total_rejected"`
	TotalErrored  uint64                          `json:"total_errored"`
	CollectedAt   time.Time                       `json:"collected_at"`
}

func newDispatchCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sockflow",
		Subsystem: "dispatch",
		Name:      name,
		Help:      help,
	}, labels)
}

// NewDispatchMetrics builds the collector set. A nil registerer falls back
// to the default Prometheus registerer; registration itself is deferred to
// Register so metrics-disabled services never touch the registry.
func NewDispatchMetrics(registerer prometheus.Registerer) *DispatchMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &DispatchMetrics{
		eventCounts: make(map[string]*DispatchEventMetrics),
		messagesTotal: newDispatchCounterVec("messages_total",
			"Messages dispatched, by event type and terminal outcome.",
			[]string{"event", "outcome"}),
		errorsTotal: newDispatchCounterVec("errors_total",
			"Dispatch errors, by event type and pipeline stage.",
			[]string{"event", "category"}),
		durationHist: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sockflow",
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Wall time from message arrival to terminal outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sockflow",
			Subsystem: "dispatch",
			Name:      "in_flight",
			Help:      "Messages currently inside the dispatch pipeline.",
		}),
		registerer: registerer,
	}
}

// Register attaches the collectors to the configured registerer. Safe to
// call more than once; collectors another instance already registered are
// tolerated.
func (dm *DispatchMetrics) Register() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		dm.messagesTotal,
		dm.errorsTotal,
		dm.durationHist,
		dm.inFlight,
	}
	for _, collector := range collectors {
		if err := dm.registerer.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	dm.registered = true
	return nil
}

// RecordOutcome folds one finished dispatch into the collectors and the
// in-memory per-event counters.
func (dm *DispatchMetrics) RecordOutcome(event string, outcome Outcome, elapsed time.Duration, category ErrorCategory) {
	dm.messagesTotal.WithLabelValues(event, outcome.String()).Inc()
	dm.durationHist.WithLabelValues(event).Observe(elapsed.Seconds())
	if category != ErrorCategoryNone {
		dm.errorsTotal.WithLabelValues(event, string(category)).Inc()
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	counts, ok := dm.eventCounts[event]
	if !ok {
		counts = &DispatchEventMetrics{Event: event}
		dm.eventCounts[event] = counts
	}
	switch outcome {
	case OutcomeDone:
		counts.Done++
	case OutcomeRejected:
		counts.Rejected++
	case OutcomeErrored:
		counts.Errored++
	}
	counts.LastOutcome = outcome.String()
	counts.LastDispatchedAt = time.Now().UTC()
}

// MessageStarted marks a message entering the pipeline.
func (dm *DispatchMetrics) MessageStarted() {
	dm.inFlight.Inc()
}

// MessageFinished marks a message leaving the pipeline.
func (dm *DispatchMetrics) MessageFinished() {
	dm.inFlight.Dec()
}

// GetSnapshot copies the in-memory counters for all event types.
func (dm *DispatchMetrics) GetSnapshot() DispatchMetricsSnapshot {
	dm.mu.RLock()
	defer dm.mu.RUnlock()

	snapshot := DispatchMetricsSnapshot{
		Events:      make(map[string]DispatchEventMetrics, len(dm.eventCounts)),
		CollectedAt: time.Now().UTC(),
	}
	for event, counts := range dm.eventCounts {
		snapshot.Events[event] = *counts
		snapshot.TotalDone += counts.Done
		snapshot.TotalRejected += counts.Rejected
		snapshot.TotalErrored += counts.Errored
	}
	return snapshot
}

// GetEventMetrics copies the counters for one event type.
func (dm *DispatchMetrics) GetEventMetrics(event string) (DispatchEventMetrics, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	counts, ok := dm.eventCounts[event]
	if !ok {
		return DispatchEventMetrics{}, false
	}
	return *counts, true
}

// Reset clears the in-memory counters. Prometheus collectors are left
// untouched; scrape continuity is their contract.
func (dm *DispatchMetrics) Reset() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	dm.eventCounts = make(map[string]*DispatchEventMetrics)
}
