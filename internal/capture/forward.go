package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/v4lstream/internal/logging"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// Sink accepts frames, e.g. a V4L2 output device such as v4l2loopback.
type Sink interface {
	Path() string
	Start() error
	Stop() error
	Write(data []byte, timeout time.Duration) error
	Close() error
}

// OutputSink writes frames to a V4L2 output device.
type OutputSink struct {
	dev    *v4l2.Device
	pool   *v4l2.Pool
	stream *v4l2.Stream
}

// OpenOutput opens an output device with the given format.
func OpenOutput(path string, format v4l2.Format, buffers uint32) (*OutputSink, error) {
	dev, err := v4l2.OpenOutput(path)
	if err != nil {
		return nil, err
	}
	if buffers == 0 {
		buffers = DefaultBuffers
	}

	got, err := dev.SetFormat(v4l2.Format{
		Width:        format.Width,
		Height:       format.Height,
		PixelFormat:  format.PixelFormat,
		BytesPerLine: format.BytesPerLine,
		Field:        format.Field,
	})
	if err == nil && (got.PixelFormat != format.PixelFormat || got.Width != format.Width || got.Height != format.Height) {
		err = fmt.Errorf("output %s settled on %s %dx%d, want %s %dx%d", path,
			got.PixelFormat, got.Width, got.Height, format.PixelFormat, format.Width, format.Height)
	}
	if err != nil {
		dev.Close()
		return nil, err
	}

	pool, err := v4l2.NewPool(dev, buffers)
	if err != nil {
		dev.Close()
		return nil, err
	}
	stream, err := v4l2.NewStream(pool)
	if err != nil {
		dev.Close()
		return nil, err
	}
	return &OutputSink{dev: dev, pool: pool, stream: stream}, nil
}

// Path returns the device node.
func (s *OutputSink) Path() string { return s.dev.Path() }

// Start turns streaming on.
func (s *OutputSink) Start() error { return s.stream.Start() }

// Stop turns streaming off.
func (s *OutputSink) Stop() error { return s.stream.Stop() }

// Write copies data into a free buffer and queues it, waiting up to
// timeout for the driver to release one.
func (s *OutputSink) Write(data []byte, timeout time.Duration) error {
	if err := s.stream.Wait(timeout); err != nil {
		return err
	}
	f, err := s.stream.Dequeue()
	if err != nil {
		return err
	}
	n := copy(f.Buffer(), data)
	if n < len(data) {
		logging.GetLogger("capture").Warn("Frame truncated to output buffer",
			"device", s.Path(), "bytes", len(data), "buffer", n)
	}
	return s.stream.QueueBytes(f, uint32(n))
}

// Close stops streaming and releases the device.
func (s *OutputSink) Close() error {
	return s.dev.Close()
}

// Forward copies frames from src to sink until ctx is done. The sink is
// started and stopped here. Output timeouts drop the frame; other write
// errors end the run.
func Forward(ctx context.Context, src Source, sink Sink, opts RunnerOptions) (Stats, error) {
	logger := logging.GetLogger("capture").With("device", src.Path(), "output", sink.Path())

	if err := sink.Start(); err != nil {
		return Stats{}, fmt.Errorf("start output %s: %w", sink.Path(), err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	var skipped uint64
	runner := NewRunner(src, opts)
	err := runner.Run(ctx, func(f Frame) error {
		err := sink.Write(f.Data, timeout)
		if errors.Is(err, v4l2.ErrNoFrame) {
			skipped++
			logger.Warn("Output not draining, frame skipped", "sequence", f.Sequence, "skipped", skipped)
			return nil
		}
		return err
	})

	if stopErr := sink.Stop(); stopErr != nil {
		err = errors.Join(err, fmt.Errorf("stop output %s: %w", sink.Path(), stopErr))
	}

	stats := runner.Stats()
	logger.Info("Forwarding finished", "frames", stats.Frames, "skipped", skipped, "dropped", stats.Dropped)
	return stats, err
}
