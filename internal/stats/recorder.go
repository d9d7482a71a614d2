package stats

import (
	"context"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name for miniq metrics.
const meterName = "miniq"

const metricPrefix = "miniq."

// Recorder counts named events. It is safe for concurrent use; the zero value
// is not usable, construct with New.
type Recorder struct {
	meter    metric.Meter
	duration metric.Float64Histogram

	mu       sync.Mutex
	counters map[string]metric.Int64Counter
	totals   map[string]int64
}

// New returns a Recorder on meter. A nil meter uses the global MeterProvider,
// which is a no-op until one is installed.
func New(meter metric.Meter) *Recorder {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	duration, _ := meter.Float64Histogram(
		metricPrefix+"phase.duration",
		metric.WithDescription("Duration of queue phases and housekeeping steps in seconds"),
		metric.WithUnit("s"),
	)
	return &Recorder{
		meter:    meter,
		duration: duration,
		counters: make(map[string]metric.Int64Counter),
		totals:   make(map[string]int64),
	}
}

// Incr adds one to name.
func (r *Recorder) Incr(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	r.Add(ctx, name, 1, attrs...)
}

// Add adds n to name. Non-positive n is ignored.
func (r *Recorder) Add(ctx context.Context, name string, n int64, attrs ...attribute.KeyValue) {
	if r == nil || n <= 0 {
		return
	}
	counter := r.counter(name)
	r.mu.Lock()
	r.totals[name] += n
	r.mu.Unlock()
	if len(attrs) == 0 {
		counter.Add(ctx, n)
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Observe records how long phase took.
func (r *Recorder) Observe(ctx context.Context, phase string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("phase", phase)))
}

// Total returns the local total for name.
func (r *Recorder) Total(name string) int64 {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals[name]
}

// Snapshot returns a copy of every local total.
func (r *Recorder) Snapshot() map[string]int64 {
	if r == nil {
		return map[string]int64{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return maps.Clone(r.totals)
}

func (r *Recorder) counter(name string) metric.Int64Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter, ok := r.counters[name]; ok {
		return counter
	}
	// The API hands back a no-op instrument alongside any error.
	counter, _ := r.meter.Int64Counter(metricPrefix + name)
	r.counters[name] = counter
	return counter
}

// JobType tags an event with its job type.
func JobType(jobType string) attribute.KeyValue {
	return attribute.String("job_type", jobType)
}
