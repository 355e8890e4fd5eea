package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/smazurov/v4lstream/internal/events"
	"github.com/smazurov/v4lstream/internal/logging"
	"github.com/smazurov/v4lstream/internal/metrics"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// ErrTooManyFailures is returned by Run when the source failed to deliver a
// usable frame MaxFailures times in a row.
var ErrTooManyFailures = errors.New("too many consecutive capture failures")

// ErrStop may be returned by a Handler to end Run without an error.
var ErrStop = errors.New("capture stopped by handler")

// Handler receives each good frame. Frame.Data must not be retained after
// the handler returns.
type Handler func(Frame) error

// RunnerOptions tune a Runner. Zero values pick the defaults.
type RunnerOptions struct {
	// Timeout bounds each wait for a frame (default 2s). It also bounds how
	// long cancellation may take to be noticed.
	Timeout time.Duration
	// MaxFailures is the number of consecutive timeouts or bad frames
	// tolerated (default 5).
	MaxFailures int
	// Frames stops the run after this many good frames. Zero runs until the
	// context is done.
	Frames uint64
	// Bus receives stream lifecycle and frame error events. May be nil.
	Bus *events.Bus
}

// Stats summarise a run.
type Stats struct {
	Frames   uint64
	Bytes    uint64
	Dropped  uint64
	Errors   uint64
	Timeouts uint64
}

// Runner pulls frames from a Source until told to stop.
type Runner struct {
	src     Source
	opts    RunnerOptions
	logger  *slog.Logger
	session string

	frames   atomic.Uint64
	bytes    atomic.Uint64
	dropped  atomic.Uint64
	failed   atomic.Uint64
	timeouts atomic.Uint64
}

// NewRunner creates a runner for src.
func NewRunner(src Source, opts RunnerOptions) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = 5
	}
	session := uuid.NewString()
	return &Runner{
		src:     src,
		opts:    opts,
		session: session,
		logger:  logging.GetLogger("capture").With("device", src.Path(), "session", session),
	}
}

// Session identifies this runner in stream events and logs.
func (r *Runner) Session() string {
	return r.session
}

// Stats returns the counters so far. Safe to call while Run is active.
func (r *Runner) Stats() Stats {
	return Stats{
		Frames:   r.frames.Load(),
		Bytes:    r.bytes.Load(),
		Dropped:  r.dropped.Load(),
		Errors:   r.failed.Load(),
		Timeouts: r.timeouts.Load(),
	}
}

// Run starts the source and hands every good frame to handle. It returns
// nil when the context is canceled, the frame limit is reached or the
// handler returns ErrStop. The source is stopped, not closed, on return.
func (r *Runner) Run(ctx context.Context, handle Handler) (err error) {
	path := r.src.Path()
	if err := r.src.Start(); err != nil {
		return fmt.Errorf("start %s: %w", path, err)
	}

	format := r.src.Format()
	r.opts.Bus.Publish(events.StreamStartedEvent{
		Session:     r.session,
		DevicePath:  path,
		Direction:   "capture",
		PixelFormat: format.PixelFormat.String(),
		Width:       format.Width,
		Height:      format.Height,
		Buffers:     r.src.Buffers(),
		Timestamp:   time.Now().Format(time.RFC3339),
	})
	r.logger.Info("Capture started",
		"pixel_format", format.PixelFormat.String(),
		"width", format.Width,
		"height", format.Height,
		"buffers", r.src.Buffers())

	reason := "completed"
	defer func() {
		if stopErr := r.src.Stop(); stopErr != nil {
			r.logger.Warn("Failed to stop stream", "error", stopErr)
			err = errors.Join(err, stopErr)
		}
		metrics.SetQueued(path, 0)

		ev := events.StreamStoppedEvent{
			Session:    r.session,
			DevicePath: path,
			Frames:     r.frames.Load(),
			Dropped:    r.dropped.Load(),
			Reason:     reason,
			Timestamp:  time.Now().Format(time.RFC3339),
		}
		if err != nil {
			ev.Error = err.Error()
		}
		r.opts.Bus.Publish(ev)
		r.logger.Info("Capture stopped", "reason", reason, "frames", ev.Frames, "dropped", ev.Dropped)
	}()

	var (
		failures int
		lastSeq  uint32
		haveSeq  bool
	)
	for {
		if ctx.Err() != nil {
			reason = "canceled"
			return nil
		}
		if r.opts.Frames > 0 && r.frames.Load() >= r.opts.Frames {
			return nil
		}

		start := time.Now()
		f, nextErr := r.src.Next(r.opts.Timeout)
		switch {
		case nextErr == nil:
		case errors.Is(nextErr, v4l2.ErrNoFrame):
			r.timeouts.Add(1)
			failures++
			r.logger.Warn("No frame within timeout", "timeout", r.opts.Timeout, "consecutive", failures)
			r.frameError(path, "TIMEOUT", nextErr, 0)
		case errors.Is(nextErr, v4l2.ErrIO):
			failures++
			r.frameError(path, string(v4l2.ErrCodeIO), nextErr, f.Sequence)
			r.logger.Warn("Dropping corrupted frame", "sequence", f.Sequence, "consecutive", failures, "error", nextErr)
		case errors.Is(nextErr, v4l2.ErrDevice):
			failures++
			r.frameError(path, string(v4l2.ErrCodeDevice), nextErr, 0)
			r.logger.Warn("Device error while waiting for frame", "consecutive", failures, "error", nextErr)
		default:
			reason = "error"
			return nextErr
		}

		if nextErr != nil {
			if failures >= r.opts.MaxFailures {
				reason = "error"
				return fmt.Errorf("%w: last error: %w", ErrTooManyFailures, nextErr)
			}
			if f.Corrupted {
				haveSeq, lastSeq = true, f.Sequence
			}
			continue
		}
		failures = 0

		if gap := uint64(sequenceGap(lastSeq, f.Sequence)); haveSeq && gap > 0 {
			r.dropped.Add(gap)
			metrics.AddDropped(path, gap)
			r.logger.Debug("Sequence gap", "from", lastSeq, "to", f.Sequence, "dropped", gap)
		}
		haveSeq, lastSeq = true, f.Sequence

		r.frames.Add(1)
		r.bytes.Add(uint64(len(f.Data)))
		metrics.RecordFrame(path, len(f.Data), time.Since(start))
		metrics.SetQueued(path, r.src.Queued())

		if err := handle(f); err != nil {
			if errors.Is(err, ErrStop) {
				reason = "stopped"
				return nil
			}
			reason = "error"
			return fmt.Errorf("frame handler: %w", err)
		}
	}
}

// sequenceGap returns how many frames the driver skipped between last and
// next. The 32-bit counter wraps; a sequence that moves backwards, as after a
// driver reset, is not counted as a gap.
func sequenceGap(last, next uint32) uint32 {
	delta := next - last
	if delta == 0 || delta > math.MaxInt32 {
		return 0
	}
	return delta - 1
}

func (r *Runner) frameError(path, code string, err error, sequence uint32) {
	r.failed.Add(1)
	r.opts.Bus.Publish(events.FrameErrorEvent{
		DevicePath: path,
		Code:       code,
		Error:      err.Error(),
		Sequence:   sequence,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}
