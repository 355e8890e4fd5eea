package devices

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/v4lstream/internal/events"
	"github.com/smazurov/v4lstream/internal/logging"
	"github.com/smazurov/v4lstream/pkg/linuxav/hotplug"
)

// Monitor keeps the device list current and publishes a DeviceChangedEvent
// for every addition, removal or change.
type Monitor struct {
	bus    *events.Bus
	logger *slog.Logger
	settle time.Duration

	mu     sync.Mutex
	known  map[string]Device // keyed by ID
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor publishing to bus.
func NewMonitor(bus *events.Bus) *Monitor {
	return &Monitor{
		bus:    bus,
		logger: logging.GetLogger("devices"),
		settle: 500 * time.Millisecond,
		known:  make(map[string]Device),
	}
}

// Start takes the initial inventory and listens for video4linux uevents
// until ctx is done or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return nil
	}

	list, err := List()
	if err != nil {
		m.logger.Warn("Failed to get initial device list", "error", err)
	}
	for _, d := range list {
		m.known[d.ID] = d
	}
	m.logger.Info("Initialized with V4L2 devices", "count", len(list))

	mon, err := hotplug.NewMonitor(hotplug.SubsystemVideo4Linux)
	if err != nil {
		return fmt.Errorf("failed to open uevent socket: %w", err)
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	uevents := make(chan hotplug.Event, 16)

	go func() {
		if err := mon.Run(ctx, uevents); err != nil && ctx.Err() == nil {
			m.logger.Error("Uevent monitor failed", "error", err)
		}
		_ = mon.Close()
	}()

	go func() {
		defer close(m.done)
		m.logger.Debug("Hotplug monitoring started")
		for ev := range uevents {
			if ev.Action != hotplug.ActionAdd && ev.Action != hotplug.ActionRemove {
				continue
			}
			m.logger.Debug("Uevent", "action", ev.Action, "node", ev.Node(), "kobj", ev.KObj)

			// Give udev time to create the by-id symlinks.
			if ev.Action == hotplug.ActionAdd {
				select {
				case <-time.After(m.settle):
				case <-ctx.Done():
					return
				}
			}
			m.Rescan()
		}
		m.logger.Debug("Hotplug monitoring stopped")
	}()
	return nil
}

// Stop ends monitoring and waits for the listener to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Devices returns the last known device list, ordered by path.
func (m *Monitor) Devices() []Device {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Device, 0, len(m.known))
	for _, d := range m.known {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Device) int {
		return comparePaths(a.Path, b.Path)
	})
	return out
}

// Rescan lists devices again and publishes the differences.
func (m *Monitor) Rescan() {
	list, err := List()
	if err != nil {
		m.logger.Error("Error getting device data", "error", err)
		return
	}

	current := make(map[string]Device, len(list))
	for _, d := range list {
		current[d.ID] = d
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, old := range m.known {
		if _, ok := current[id]; !ok {
			m.publish("removed", old)
			m.logger.Info("Device removed", "device", old.Path, "name", old.Name, "id", id)
			delete(m.known, id)
		}
	}
	for id, d := range current {
		old, ok := m.known[id]
		switch {
		case !ok:
			m.publish("added", d)
			m.logger.Info("Device added", "device", d.Path, "name", d.Name, "id", id)
		case old != d:
			m.publish("changed", d)
			m.logger.Info("Device changed", "device", d.Path, "name", d.Name, "id", id)
		default:
			continue
		}
		m.known[id] = d
	}
}

func (m *Monitor) publish(action string, d Device) {
	m.bus.Publish(events.DeviceChangedEvent{
		Action:     action,
		DevicePath: d.Path,
		DeviceName: d.Name,
		DeviceID:   d.ID,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}
