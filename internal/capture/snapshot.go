package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/v4lstream/internal/events"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// Image is a frame copied out of driver memory.
type Image struct {
	Format    v4l2.Format
	Sequence  uint32
	Timestamp time.Duration
	Data      []byte
}

// SnapshotOptions tune Snapshot. Zero values pick the defaults.
type SnapshotOptions struct {
	// Skip discards this many frames first. Many sensors deliver dark or
	// partial frames right after STREAMON.
	Skip    int
	Timeout time.Duration
	Bus     *events.Bus
}

// Snapshot opens path, captures one frame and closes the device again.
func Snapshot(ctx context.Context, path string, settings Settings, opts SnapshotOptions) (*Image, error) {
	sess, err := Open(path, settings)
	if err != nil {
		return nil, err
	}
	img, err := SnapshotFrom(ctx, sess, opts)
	return img, errors.Join(err, sess.Close())
}

// SnapshotFrom captures one frame from an already opened source. The
// source is left stopped.
func SnapshotFrom(ctx context.Context, src Source, opts SnapshotOptions) (*Image, error) {
	skip := max(opts.Skip, 0)
	runner := NewRunner(src, RunnerOptions{
		Timeout: opts.Timeout,
		Frames:  uint64(skip) + 1,
		Bus:     opts.Bus,
	})

	var img *Image
	seen := 0
	err := runner.Run(ctx, func(f Frame) error {
		seen++
		if seen <= skip {
			return nil
		}
		img = &Image{
			Format:    src.Format(),
			Sequence:  f.Sequence,
			Timestamp: f.Timestamp,
			Data:      append([]byte(nil), f.Data...),
		}
		return ErrStop
	})
	if err != nil {
		return nil, err
	}
	if img == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("no frame captured from %s", src.Path())
	}

	opts.Bus.Publish(events.SnapshotEvent{
		DevicePath:  src.Path(),
		PixelFormat: img.Format.PixelFormat.String(),
		Width:       img.Format.Width,
		Height:      img.Format.Height,
		Bytes:       len(img.Data),
		Sequence:    img.Sequence,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
	return img, nil
}
