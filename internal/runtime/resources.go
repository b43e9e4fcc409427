package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

// cpuSecondsMetric is the cumulative on-CPU time of the process as reported
// by the Go runtime, across all goroutine work classes.
const cpuSecondsMetric = "/cpu/classes/total:cpu-seconds"

// ResourceUsage is a coarse look at process load at the time a dispatch
// finished. It is process-wide, not attributable to a single route.
type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

// resourceTracker samples coarse CPU/memory usage for inclusion in route
// stats snapshots. CPUPercent is derived from the growth of the cumulative
// CPU-seconds counter between two snapshots, so the first snapshot after
// construction always reports 0.
type resourceTracker struct {
	mu             sync.Mutex
	samples        []metrics.Sample
	lastCPUSeconds float64
	lastSample     time.Time
	numCPU         float64
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		samples: []metrics.Sample{{Name: cpuSecondsMetric}},
		numCPU:  float64(runtime.NumCPU()),
	}
}

func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.samples) == 0 {
		r.samples = []metrics.Sample{{Name: cpuSecondsMetric}}
	}

	now := time.Now()
	cpuPercent := r.sampleCPULocked(now)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return ResourceUsage{
		CPUPercent:  cpuPercent,
		MemoryBytes: mem.Alloc,
		Goroutines:  runtime.NumGoroutine(),
	}
}

func (r *resourceTracker) sampleCPULocked(now time.Time) float64 {
	metrics.Read(r.samples)
	sample := r.samples[0]
	if sample.Value.Kind() != metrics.KindFloat64 {
		r.lastSample = now
		return 0
	}
	cpuSeconds := sample.Value.Float64()

	var cpuPercent float64
	if !r.lastSample.IsZero() {
		deltaCPU := cpuSeconds - r.lastCPUSeconds
		deltaWall := now.Sub(r.lastSample).Seconds()
		if deltaWall > 0 && r.numCPU > 0 {
			cpuPercent = (deltaCPU / deltaWall) / r.numCPU * 100
		}
	}

	r.lastCPUSeconds = cpuSeconds
	r.lastSample = now
	return cpuPercent
}
