package api

import (
	"context"
	"time"

	"github.com/smazurov/v4lstream/internal/capture"
	"github.com/smazurov/v4lstream/internal/devices"
	"github.com/smazurov/v4lstream/internal/events"
)

// DeviceService is what the API needs from the hardware side.
type DeviceService interface {
	List(ctx context.Context) ([]devices.Device, error)
	Resolve(ref string) (string, error)
	Describe(path string, sizes bool) (*devices.Description, error)
	Snapshot(ctx context.Context, path string, settings capture.Settings, skip int) (*capture.Image, error)
}

// SystemDevices serves DeviceService from the local V4L2 nodes.
type SystemDevices struct {
	// Monitor, when set, answers List from its hotplug-maintained inventory.
	Monitor *devices.Monitor
	// Bus receives stream and snapshot events.
	Bus *events.Bus
	// FrameTimeout bounds each dequeue during a snapshot.
	FrameTimeout time.Duration
}

func (s *SystemDevices) List(_ context.Context) ([]devices.Device, error) {
	if s.Monitor != nil {
		return s.Monitor.Devices(), nil
	}
	return devices.List()
}

func (s *SystemDevices) Resolve(ref string) (string, error) {
	return devices.Resolve(ref)
}

func (s *SystemDevices) Describe(path string, sizes bool) (*devices.Description, error) {
	return devices.Describe(path, sizes)
}

func (s *SystemDevices) Snapshot(ctx context.Context, path string, settings capture.Settings, skip int) (*capture.Image, error) {
	return capture.Snapshot(ctx, path, settings, capture.SnapshotOptions{
		Skip:    skip,
		Timeout: s.FrameTimeout,
		Bus:     s.Bus,
	})
}
