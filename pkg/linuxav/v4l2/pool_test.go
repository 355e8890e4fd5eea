//go:build linux

package v4l2

import (
	"errors"
	"syscall"
	"testing"
)

func TestNewPoolGrantedCount(t *testing.T) {
	tests := []struct {
		name       string
		requested  uint32
		maxBuffers uint32
		minBuffers uint32
		expected   int
	}{
		{name: "single buffer", requested: 1, maxBuffers: 8, expected: 1},
		{name: "granted as requested", requested: 4, maxBuffers: 8, expected: 4},
		{name: "driver grants fewer", requested: 4, maxBuffers: 2, expected: 2},
		{name: "more than supported yields driver maximum", requested: 64, maxBuffers: 8, expected: 8},
		{name: "driver grants more", requested: 1, maxBuffers: 8, minBuffers: 3, expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := newFakeDriver(BufTypeVideoCapture)
			fd.maxBuffers = tt.maxBuffers
			fd.minBuffers = tt.minBuffers
			dev := newFakeDevice(t, fd)

			pool, err := NewPool(dev, tt.requested)
			if err != nil {
				t.Fatalf("NewPool(%d) error = %v", tt.requested, err)
			}
			defer pool.Close()

			if pool.Len() != tt.expected {
				t.Errorf("Len() = %d, want %d", pool.Len(), tt.expected)
			}
			if fd.mapped != pool.Len() {
				t.Errorf("mapped buffers = %d, want %d", fd.mapped, pool.Len())
			}
			for i, state := range pool.States() {
				if state != BufferIdle {
					t.Errorf("buffer %d state = %s, want idle", i, state)
				}
			}
			for i, b := range pool.Buffers() {
				if b.Length != fd.format.sizeimage {
					t.Errorf("buffer %d length = %d, want %d", i, b.Length, fd.format.sizeimage)
				}
			}
			if dev.Pool() != pool {
				t.Error("device does not reference its pool")
			}
		})
	}
}

func TestNewPoolErrors(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(fd *fakeDriver)
		count  uint32
		target error
	}{
		{
			name:   "zero count",
			count:  0,
			target: ErrProtocol,
		},
		{
			name:   "driver grants zero buffers",
			setup:  func(fd *fakeDriver) { fd.maxBuffers = 0 },
			count:  4,
			target: ErrResource,
		},
		{
			name:   "allocation out of memory",
			setup:  func(fd *fakeDriver) { fd.reqbufsErr = syscall.ENOMEM },
			count:  4,
			target: ErrResource,
		},
		{
			name:   "request rejected",
			setup:  func(fd *fakeDriver) { fd.reqbufsErr = syscall.EINVAL },
			count:  4,
			target: ErrDevice,
		},
		{
			name:   "no streaming capability",
			setup:  func(fd *fakeDriver) { fd.caps &^= CapStreaming },
			count:  4,
			target: ErrDevice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fd := newFakeDriver(BufTypeVideoCapture)
			if tt.setup != nil {
				tt.setup(fd)
			}
			dev := newFakeDevice(t, fd)

			pool, err := NewPool(dev, tt.count)
			if !errors.Is(err, tt.target) {
				t.Fatalf("NewPool() error = %v, want %v", err, tt.target)
			}
			if pool != nil {
				t.Error("NewPool() returned a pool alongside an error")
			}
			if dev.Pool() != nil {
				t.Error("device kept a pool after failed construction")
			}
			if fd.mapped != 0 {
				t.Errorf("mapped buffers = %d, want 0", fd.mapped)
			}
		})
	}
}

func TestNewPoolRollbackOnMapFailure(t *testing.T) {
	fd := newFakeDriver(BufTypeVideoCapture)
	fd.mmapFailAt = 2
	dev := newFakeDevice(t, fd)

	_, err := NewPool(dev, 4)
	if !errors.Is(err, ErrResource) {
		t.Fatalf("NewPool() error = %v, want resource error", err)
	}
	if !errors.Is(err, syscall.ENOMEM) {
		t.Errorf("NewPool() error = %v, want ENOMEM cause", err)
	}
	if fd.mapped != 0 {
		t.Errorf("mapped buffers after rollback = %d, want 0", fd.mapped)
	}
	if len(fd.bufs) != 0 {
		t.Errorf("kernel buffers after rollback = %d, want 0", len(fd.bufs))
	}

	// The device is usable again once mapping succeeds.
	fd.mmapFailAt = -1
	pool, err := NewPool(dev, 4)
	if err != nil {
		t.Fatalf("NewPool() after rollback error = %v", err)
	}
	if pool.Len() != 4 {
		t.Errorf("Len() = %d, want 4", pool.Len())
	}
}

func TestNewPoolOnePerDevice(t *testing.T) {
	fd := newFakeDriver(BufTypeVideoCapture)
	dev := newFakeDevice(t, fd)

	first, err := NewPool(dev, 2)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	if _, err := NewPool(dev, 2); !errors.Is(err, ErrProtocol) {
		t.Fatalf("second NewPool() error = %v, want protocol violation", err)
	}

	if err := first.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := NewPool(dev, 2); err != nil {
		t.Fatalf("NewPool() after Close error = %v", err)
	}
}

func TestPoolCloseMidStream(t *testing.T) {
	fd := newFakeDriver(BufTypeVideoCapture)
	dev, pool, stream := newFakeStream(t, fd, 3)

	if err := stream.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	frame, err := stream.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if frame.Data() == nil {
		t.Fatal("Data() = nil for a fresh frame")
	}

	if err := pool.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if frame.Valid() {
		t.Error("frame still valid after pool Close")
	}
	if frame.Data() != nil || frame.Buffer() != nil {
		t.Error("frame exposes memory after pool Close")
	}
	if fd.mapped != 0 {
		t.Errorf("mapped buffers = %d, want 0", fd.mapped)
	}
	if len(fd.bufs) != 0 {
		t.Errorf("kernel buffers = %d, want 0", len(fd.bufs))
	}
	if fd.streaming {
		t.Error("driver still streaming after pool Close")
	}
	if stream.Streaming() {
		t.Error("stream reports streaming after pool Close")
	}
	if pool.Len() != 0 || !pool.Closed() {
		t.Errorf("Len() = %d, Closed() = %v after Close", pool.Len(), pool.Closed())
	}
	if dev.Pool() != nil {
		t.Error("device still references closed pool")
	}

	if err := pool.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := stream.Next(); !errors.Is(err, ErrProtocol) {
		t.Errorf("Next() after Close error = %v, want protocol violation", err)
	}
	if err := stream.Start(); !errors.Is(err, ErrProtocol) {
		t.Errorf("Start() after Close error = %v, want protocol violation", err)
	}

	// With the pool gone the format can change again.
	if _, err := dev.SetFormat(Format{Width: 1280, Height: 720, PixelFormat: PixFmtYUYV}); err != nil {
		t.Errorf("SetFormat() after pool Close error = %v", err)
	}
}

func TestPoolCloseWhenStreamOffFails(t *testing.T) {
	fd := newFakeDriver(BufTypeVideoCapture)
	_, pool, stream := newFakeStream(t, fd, 2)
	if err := stream.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	fd.streamOffErr = syscall.EIO
	err := pool.Close()
	if !errors.Is(err, ErrDevice) {
		t.Fatalf("Close() error = %v, want device error from stream off", err)
	}
	if fd.mapped != 0 {
		t.Errorf("mapped buffers = %d, want 0", fd.mapped)
	}
	if stream.Streaming() {
		t.Error("stream reports streaming after pool Close")
	}
}

func TestDeviceCloseReleasesPool(t *testing.T) {
	fd := newFakeDriver(BufTypeVideoCapture)
	dev, pool, stream := newFakeStream(t, fd, 2)
	if err := stream.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := dev.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !pool.Closed() {
		t.Error("pool not closed with its device")
	}
	if fd.mapped != 0 {
		t.Errorf("mapped buffers = %d, want 0", fd.mapped)
	}
	if !fd.closed {
		t.Error("driver not closed")
	}
	if err := dev.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := dev.Format(); !errors.Is(err, ErrDevice) {
		t.Errorf("Format() on closed device error = %v, want device error", err)
	}
}
