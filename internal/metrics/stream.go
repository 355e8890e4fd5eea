// Package metrics provides Prometheus metrics for V4L2 streams.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "v4lstream"
	subsystem = "stream"
)

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frames_total",
		Help:      "Frames delivered to consumers",
	}, []string{"device"})

	bytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "bytes_total",
		Help:      "Payload bytes delivered to consumers",
	}, []string{"device"})

	frameErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "frame_errors_total",
		Help:      "Failed frames by error code",
	}, []string{"device", "code"})

	droppedFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "dropped_frames_total",
		Help:      "Frames lost according to driver sequence gaps",
	}, []string{"device"})

	dequeueWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "dequeue_wait_seconds",
		Help:      "Time spent waiting for a filled buffer",
		Buckets:   []float64{.001, .005, .01, .02, .035, .05, .075, .1, .25, .5, 1},
	}, []string{"device"})

	queuedBuffers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "queued_buffers",
		Help:      "Buffers currently owned by the driver",
	}, []string{"device"})

	streaming = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "streaming",
		Help:      "1 while the device is streaming",
	}, []string{"device"})

	// Local cache for the SSE exporter and the API.
	streamCache   = make(map[string]*StreamMetrics)
	streamCacheMu sync.RWMutex
)

// StreamMetrics holds current counter values for a device.
type StreamMetrics struct {
	Frames    uint64
	Bytes     uint64
	Dropped   uint64
	Errors    uint64
	Queued    int
	Streaming bool
	LastFrame time.Time
}

// RecordFrame counts one delivered frame and how long its dequeue waited.
func RecordFrame(device string, bytes int, wait time.Duration) {
	framesTotal.WithLabelValues(device).Inc()
	bytesTotal.WithLabelValues(device).Add(float64(bytes))
	dequeueWait.WithLabelValues(device).Observe(wait.Seconds())
	updateCache(device, func(m *StreamMetrics) {
		m.Frames++
		m.Bytes += uint64(bytes)
		m.LastFrame = time.Now()
	})
}

// RecordFrameError counts one failed frame under its error code.
func RecordFrameError(device, code string) {
	frameErrorsTotal.WithLabelValues(device, code).Inc()
	updateCache(device, func(m *StreamMetrics) { m.Errors++ })
}

// AddDropped counts frames the driver skipped.
func AddDropped(device string, n uint64) {
	if n == 0 {
		return
	}
	droppedFramesTotal.WithLabelValues(device).Add(float64(n))
	updateCache(device, func(m *StreamMetrics) { m.Dropped += n })
}

// SetQueued sets the number of buffers owned by the driver.
func SetQueued(device string, n int) {
	queuedBuffers.WithLabelValues(device).Set(float64(n))
	updateCache(device, func(m *StreamMetrics) { m.Queued = n })
}

// SetStreaming records whether a device is streaming.
func SetStreaming(device string, on bool) {
	v := 0.0
	if on {
		v = 1
	}
	streaming.WithLabelValues(device).Set(v)
	updateCache(device, func(m *StreamMetrics) {
		m.Streaming = on
		if !on {
			m.Queued = 0
		}
	})
	if !on {
		queuedBuffers.WithLabelValues(device).Set(0)
	}
}

// DeleteStreamMetrics removes all metrics for a device.
func DeleteStreamMetrics(device string) {
	framesTotal.DeleteLabelValues(device)
	bytesTotal.DeleteLabelValues(device)
	frameErrorsTotal.DeletePartialMatch(prometheus.Labels{"device": device})
	droppedFramesTotal.DeleteLabelValues(device)
	dequeueWait.DeleteLabelValues(device)
	queuedBuffers.DeleteLabelValues(device)
	streaming.DeleteLabelValues(device)

	streamCacheMu.Lock()
	delete(streamCache, device)
	streamCacheMu.Unlock()
}

// GetStreamMetrics returns current values for a device, or nil if unknown.
func GetStreamMetrics(device string) *StreamMetrics {
	streamCacheMu.RLock()
	defer streamCacheMu.RUnlock()
	if m, ok := streamCache[device]; ok {
		dup := *m
		return &dup
	}
	return nil
}

// GetAllStreamMetrics returns values for every device seen so far.
func GetAllStreamMetrics() map[string]*StreamMetrics {
	streamCacheMu.RLock()
	defer streamCacheMu.RUnlock()
	result := make(map[string]*StreamMetrics, len(streamCache))
	for device, m := range streamCache {
		dup := *m
		result[device] = &dup
	}
	return result
}

func updateCache(device string, update func(*StreamMetrics)) {
	streamCacheMu.Lock()
	defer streamCacheMu.Unlock()
	m, ok := streamCache[device]
	if !ok {
		m = &StreamMetrics{}
		streamCache[device] = m
	}
	update(m)
}
