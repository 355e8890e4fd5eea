// Package collectors feeds stream metrics from sources other than the
// capture hot path.
package collectors

import (
	"sync"

	"github.com/smazurov/v4lstream/internal/events"
	"github.com/smazurov/v4lstream/internal/logging"
	"github.com/smazurov/v4lstream/internal/metrics"
)

// EventCollector turns stream lifecycle and error events into metrics.
// Per-frame counters are recorded by the capture runner directly.
type EventCollector struct {
	bus    *events.Bus
	logger logging.Logger
	mu     sync.Mutex
	unsubs []func()
}

// NewEventCollector creates a collector for bus. Nothing is subscribed until Start.
func NewEventCollector(bus *events.Bus) *EventCollector {
	return &EventCollector{
		bus:    bus,
		logger: logging.GetLogger("metrics"),
	}
}

// Start subscribes to the bus.
func (c *EventCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubs != nil {
		return
	}
	c.unsubs = []func(){
		c.bus.Subscribe(func(e events.StreamStartedEvent) {
			metrics.SetStreaming(e.DevicePath, true)
		}),
		c.bus.Subscribe(func(e events.StreamStoppedEvent) {
			metrics.SetStreaming(e.DevicePath, false)
		}),
		c.bus.Subscribe(func(e events.FrameErrorEvent) {
			metrics.RecordFrameError(e.DevicePath, e.Code)
		}),
	}
	c.logger.Debug("Event collector started")
}

// Stop unsubscribes from the bus.
func (c *EventCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
