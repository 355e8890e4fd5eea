// Package capture runs V4L2 capture streams on top of pkg/linuxav/v4l2.
//
// A Session owns an open device, its buffer pool and its stream. A Runner
// drives any Source in a loop, turning recoverable errors into events and
// metrics. Snapshot and Forward are one-shot and long-running uses of the
// two.
package capture

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/v4lstream/internal/logging"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// DefaultBuffers is the pool size used when Settings.Buffers is zero.
const DefaultBuffers = 4

// Frame is one captured buffer. Data aliases driver memory and is only
// valid until the Source is asked for the next frame.
type Frame struct {
	Index     uint32
	Sequence  uint32
	Timestamp time.Duration
	Data      []byte
	Corrupted bool
}

// Source produces frames. *Session is the production implementation.
type Source interface {
	Path() string
	Format() v4l2.Format
	Buffers() int
	Start() error
	Stop() error
	Next(timeout time.Duration) (Frame, error)
	Queued() int
	Close() error
}

// Settings select what a session asks the driver for. Zero fields keep the
// device's current value.
type Settings struct {
	Width       uint32
	Height      uint32
	PixelFormat v4l2.FourCC
	FPS         uint32
	Buffers     uint32
}

func (s Settings) changesFormat() bool {
	return (s.Width != 0 && s.Height != 0) || s.PixelFormat != 0
}

// apply overlays the non-zero settings on the current format.
func (s Settings) apply(cur v4l2.Format) v4l2.Format {
	req := v4l2.Format{
		Width:       cur.Width,
		Height:      cur.Height,
		PixelFormat: cur.PixelFormat,
		Field:       cur.Field,
	}
	if s.Width != 0 && s.Height != 0 {
		req.Width = s.Width
		req.Height = s.Height
	}
	if s.PixelFormat != 0 {
		req.PixelFormat = s.PixelFormat
	}
	return req
}

// Session is an open capture device with a mapped buffer pool.
type Session struct {
	dev    *v4l2.Device
	pool   *v4l2.Pool
	stream *v4l2.Stream
	format v4l2.Format
}

// Open opens a capture device, negotiates the format and maps the buffers.
// The device is closed again on any failure.
func Open(path string, settings Settings) (*Session, error) {
	logger := logging.GetLogger("capture")

	dev, err := v4l2.OpenCapture(path)
	if err != nil {
		return nil, err
	}

	sess, err := setup(dev, settings)
	if err != nil {
		dev.Close()
		return nil, err
	}

	logger.Info("Capture session opened",
		"device", path,
		"card", dev.Capability().Card,
		"pixel_format", sess.format.PixelFormat.String(),
		"width", sess.format.Width,
		"height", sess.format.Height,
		"buffers", sess.pool.Len())
	return sess, nil
}

func setup(dev *v4l2.Device, settings Settings) (*Session, error) {
	logger := logging.GetLogger("capture")

	cur, err := dev.Format()
	if err != nil {
		return nil, err
	}

	format := cur
	if settings.changesFormat() {
		format, err = dev.SetFormat(settings.apply(cur))
		if err != nil {
			return nil, err
		}
		if settings.PixelFormat != 0 && format.PixelFormat != settings.PixelFormat {
			logger.Warn("Driver substituted pixel format",
				"device", dev.Path(),
				"requested", settings.PixelFormat.String(),
				"got", format.PixelFormat.String())
		}
	}
	logger.Debug("Format negotiated", "device", dev.Path(), "format", format.PixelFormat.String(), "size_image", format.SizeImage)

	if settings.FPS > 0 {
		params, err := dev.SetParams(v4l2.Params{Interval: v4l2.Fraction{Numerator: 1, Denominator: settings.FPS}})
		if err != nil {
			logger.Warn("Device does not accept a frame rate", "device", dev.Path(), "fps", settings.FPS, "error", err)
		} else {
			logger.Debug("Frame interval set", "device", dev.Path(), "interval", params.Interval.String())
		}
	}

	count := settings.Buffers
	if count == 0 {
		count = DefaultBuffers
	}
	pool, err := v4l2.NewPool(dev, count)
	if err != nil {
		return nil, err
	}
	stream, err := v4l2.NewStream(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &Session{
		dev:    dev,
		pool:   pool,
		stream: stream,
		format: pool.Format(),
	}, nil
}

// Path returns the device node.
func (s *Session) Path() string { return s.dev.Path() }

// Format returns the format the driver settled on.
func (s *Session) Format() v4l2.Format { return s.format }

// Buffers returns the number of buffers the driver granted.
func (s *Session) Buffers() int { return s.pool.Len() }

// Queued returns the number of buffers currently owned by the driver.
func (s *Session) Queued() int { return s.stream.Queued() }

// Device exposes the underlying device, e.g. for enumeration.
func (s *Session) Device() *v4l2.Device { return s.dev }

// Start queues every buffer and turns streaming on.
func (s *Session) Start() error { return s.stream.Start() }

// Stop turns streaming off. Buffers stay mapped, so Start may follow.
func (s *Session) Stop() error { return s.stream.Stop() }

// Next waits up to timeout for a frame. A negative timeout blocks. The
// previous frame's buffer is handed back to the driver first. A frame the
// driver flagged as corrupted is returned with Corrupted set alongside the
// IO_ERROR.
func (s *Session) Next(timeout time.Duration) (Frame, error) {
	f, err := s.stream.NextTimeout(timeout)
	if err != nil && !(errors.Is(err, v4l2.ErrIO) && f.Valid()) {
		return Frame{}, err
	}
	return Frame{
		Index:     f.Index,
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
		Data:      f.Data(),
		Corrupted: err != nil,
	}, err
}

// Close stops streaming, unmaps the pool and closes the device.
func (s *Session) Close() error {
	err := errors.Join(s.pool.Close(), s.dev.Close())
	if err != nil {
		return fmt.Errorf("close %s: %w", s.dev.Path(), err)
	}
	return nil
}
