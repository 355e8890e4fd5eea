package exporters

import (
	"context"
	"sync"
	"time"

	"github.com/smazurov/v4lstream/internal/events"
	"github.com/smazurov/v4lstream/internal/metrics"
)

// EventPublisher interface for publishing events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// SSEExporter periodically publishes per-device stream metrics on the
// event bus, where the API's SSE endpoint picks them up.
type SSEExporter struct {
	eventBus EventPublisher
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	// Frame counts from the previous tick, for the FPS estimate.
	lastFrames map[string]uint64
	lastTick   time.Time
}

// NewSSEExporter creates a new SSE exporter.
func NewSSEExporter(eventBus EventPublisher) *SSEExporter {
	return &SSEExporter{
		eventBus:   eventBus,
		interval:   1 * time.Second,
		lastFrames: make(map[string]uint64),
	}
}

// Start begins the export loop.
func (s *SSEExporter) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.lastTick = time.Now()
	s.wg.Add(1)
	go s.run()
}

// Stop stops the exporter and waits for the goroutine to finish.
func (s *SSEExporter) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *SSEExporter) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case now := <-ticker.C:
			s.publishMetrics(now)
		}
	}
}

func (s *SSEExporter) publishMetrics(now time.Time) {
	elapsed := now.Sub(s.lastTick).Seconds()
	s.lastTick = now

	all := metrics.GetAllStreamMetrics()
	for device, m := range all {
		var fps float64
		if prev, ok := s.lastFrames[device]; ok && elapsed > 0 && m.Frames >= prev {
			fps = float64(m.Frames-prev) / elapsed
		}
		s.lastFrames[device] = m.Frames

		s.eventBus.Publish(events.StreamMetricsEvent{
			DevicePath: device,
			FPS:        fps,
			Frames:     m.Frames,
			Bytes:      m.Bytes,
			Dropped:    m.Dropped,
			Errors:     m.Errors,
			Queued:     m.Queued,
			Streaming:  m.Streaming,
		})
	}
	for device := range s.lastFrames {
		if _, ok := all[device]; !ok {
			delete(s.lastFrames, device)
		}
	}
}

// GetEventTypes returns event types for SSE endpoint registration.
func GetEventTypes() map[string]any {
	return map[string]any{
		"stream-metrics": events.StreamMetricsEvent{},
	}
}
