// Package metrics provides Prometheus metrics for event capture and delivery
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Drop reasons
const (
	ReasonBeforeSend = "before_send"
	ReasonQueueFull  = "queue_full"
	ReasonClosed     = "closed"
)

// Recorder tracks delivery counts for one transport and syncs with Prometheus
type Recorder struct {
	transport  string
	captured   int64
	dropped    int64
	sendErrors int64
	mu         sync.RWMutex
}

// NewRecorder creates a recorder labeled with the transport name
func NewRecorder(transport string) *Recorder {
	return &Recorder{transport: transport}
}

// Transport returns the transport label
func (r *Recorder) Transport() string {
	return r.transport
}

// RecordCaptured records an event handed to the transport
func (r *Recorder) RecordCaptured() {
	r.mu.Lock()
	r.captured++
	r.mu.Unlock()
	eventsCaptured.WithLabelValues(r.transport).Inc()
}

// RecordDropped records an event that was not sent
func (r *Recorder) RecordDropped(reason string) {
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
	eventsDropped.WithLabelValues(reason).Inc()
}

// RecordSendError records a failed send
func (r *Recorder) RecordSendError() {
	r.mu.Lock()
	r.sendErrors++
	r.mu.Unlock()
	sendErrors.WithLabelValues(r.transport).Inc()
}

// RecordSendDuration records how long a send took
func (r *Recorder) RecordSendDuration(d time.Duration) {
	sendDuration.WithLabelValues(r.transport).Observe(d.Seconds())
}

// SetQueueDepth updates the async queue depth gauge
func (r *Recorder) SetQueueDepth(n int) {
	queueDepth.WithLabelValues(r.transport).Set(float64(n))
}

// Reset clears the mirrored counts (useful for testing)
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.captured = 0
	r.dropped = 0
	r.sendErrors = 0
	r.mu.Unlock()
}

// GetSnapshot returns a snapshot of current counts
func (r *Recorder) GetSnapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]int64{
		"captured":    r.captured,
		"dropped":     r.dropped,
		"send_errors": r.sendErrors,
	}
}

// Ingest results
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// RecordIngested counts an event received by the ingest server
func RecordIngested(source, result string) {
	eventsIngested.WithLabelValues(source, result).Inc()
}

// Collectors returns every beacon collector
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{eventsCaptured, eventsDropped, sendErrors, sendDuration, queueDepth, eventsIngested}
}

// Register registers the beacon collectors with reg. Collectors that are
// already registered are skipped.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

var (
	eventsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_captured_total",
			Help: "Total number of events handed to a transport",
		},
		[]string{"transport"},
	)

	eventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_events_dropped_total",
			Help: "Total number of events dropped before delivery",
		},
		[]string{"reason"},
	)

	sendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_send_errors_total",
			Help: "Total number of failed transport sends",
		},
		[]string{"transport"},
	)

	sendDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "beacon_send_duration_seconds",
			Help:    "Time spent sending a single event",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"transport"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "beacon_async_queue_depth",
			Help: "Events waiting in the async transport queue",
		},
		[]string{"transport"},
	)

	eventsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "beacon_ingest_events_total",
			Help: "Events received by the ingest server",
		},
		[]string{"source", "result"},
	)
)
