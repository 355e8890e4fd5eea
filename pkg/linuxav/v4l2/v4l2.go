//go:build linux

// Package v4l2 provides pure Go bindings to the Video4Linux2 (V4L2) API
// for format negotiation and memory-mapped streaming I/O.
//
// This package does not use cgo, enabling simple cross-compilation for
// different Linux architectures (amd64, arm64, arm).
//
// # Device Enumeration
//
// Use FindDevices to discover all V4L2 video devices:
//
//	devices, err := v4l2.FindDevices()
//	for _, dev := range devices {
//	    fmt.Printf("%s: %s\n", dev.DevicePath, dev.DeviceName)
//	}
//
// # Format Queries
//
// Formats, frame sizes and frame intervals are lazy sequences that restart
// from the first entry on every range:
//
//	for desc, err := range dev.Formats() {
//	    if err != nil {
//	        return err
//	    }
//	    for size, err := range dev.FrameSizes(desc.PixelFormat) {
//	        ...
//	    }
//	}
//
// # Streaming
//
// A capture session negotiates a format, maps a pool of kernel buffers and
// loops over Next. The frame returned by Next is valid until the following
// call to Next, Stop or Pool.Close:
//
//	dev, _ := v4l2.OpenCapture("/dev/video0")
//	defer dev.Close()
//	format, _ := dev.SetFormat(v4l2.Format{Width: 640, Height: 480, PixelFormat: v4l2.PixFmtYUYV})
//	pool, _ := v4l2.NewPool(dev, 4)
//	stream, _ := v4l2.NewStream(pool)
//	_ = stream.Start()
//	for {
//	    frame, err := stream.Next()
//	    ...
//	    process(frame.Data())
//	}
//
// Output devices use Dequeue to obtain a free buffer, fill Frame.Buffer()
// and hand it back with QueueBytes.
package v4l2

import (
	"log/slog"
	"sync/atomic"
)

var pkgLogger atomic.Pointer[slog.Logger]

// SetLogger replaces the logger used for debug output. A nil logger restores
// the default, which derives from slog.Default().
func SetLogger(l *slog.Logger) {
	pkgLogger.Store(l)
}

func logger() *slog.Logger {
	if l := pkgLogger.Load(); l != nil {
		return l
	}
	return slog.Default().With("component", "v4l2")
}
