package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/v4lstream/internal/capture"
	"github.com/smazurov/v4lstream/internal/config"
	"github.com/smazurov/v4lstream/internal/devices"
	"github.com/smazurov/v4lstream/internal/logging"
	"github.com/spf13/cobra"
)

// CreateCaptureCmd creates the capture command.
func CreateCaptureCmd() *cobra.Command {
	var flags captureFlags
	var frames uint64
	var output string
	var timeout time.Duration
	var maxFailures int
	var verbose, logJSON bool

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Stream frames from a capture device into a file",
		Long: `Streams frames through mmap buffers and appends every raw payload to the output file ` +
			`(stdout for "-"). With --profile the profiles file is watched and the capture restarts ` +
			`when the profile changes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initLogging(verbose, logJSON)
			logger := logging.GetLogger("capture")

			path, settings, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			out, closeOut, err := openOutput(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer closeOut()

			ctx, stop := signalContext()
			defer stop()

			job := &captureJob{
				path:     path,
				settings: settings,
				opts:     capture.RunnerOptions{Timeout: timeout, MaxFailures: maxFailures, Frames: frames},
				out:      out,
				logger:   logger,
			}
			if flags.profile != "" {
				unwatch := job.watchProfile(&flags, cmd)
				defer unwatch()
			}

			stats, err := job.run(ctx)
			fmt.Fprintf(cmd.ErrOrStderr(), "frames=%d bytes=%d dropped=%d errors=%d timeouts=%d\n",
				stats.Frames, stats.Bytes, stats.Dropped, stats.Errors, stats.Timeouts)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().Uint64VarP(&frames, "count", "n", 0, "Stop after this many frames (0 runs until interrupted)")
	cmd.Flags().StringVarP(&output, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "Wait for each frame at most this long")
	cmd.Flags().IntVar(&maxFailures, "max-failures", 5, "Give up after this many consecutive failed frames")
	addLoggingFlags(cmd, &verbose, &logJSON)
	return cmd
}

// captureJob runs capture sessions back to back until the frame limit,
// cancellation or an error. A profile change ends the current session and
// starts the next one with the new settings.
type captureJob struct {
	path     string
	settings capture.Settings
	opts     capture.RunnerOptions
	out      io.Writer
	logger   *slog.Logger

	mu      sync.Mutex
	pending *capture.Settings
	restart context.CancelFunc
	total   capture.Stats
}

func (j *captureJob) run(ctx context.Context) (capture.Stats, error) {
	for {
		runCtx, cancel := context.WithCancel(ctx)
		j.mu.Lock()
		j.restart = cancel
		settings := j.settings
		j.mu.Unlock()

		stats, err := j.session(runCtx, settings)
		cancel()
		j.add(stats)

		if err != nil || ctx.Err() != nil {
			return j.total, err
		}
		if j.opts.Frames > 0 && j.total.Frames >= j.opts.Frames {
			return j.total, nil
		}

		j.mu.Lock()
		next := j.pending
		j.pending = nil
		if next != nil {
			j.settings = *next
		}
		j.mu.Unlock()
		if next == nil {
			return j.total, nil
		}
		j.logger.Info("Restarting capture with new settings", "device", j.path)
	}
}

func (j *captureJob) session(ctx context.Context, settings capture.Settings) (capture.Stats, error) {
	sess, err := capture.Open(j.path, settings)
	if err != nil {
		return capture.Stats{}, err
	}

	opts := j.opts
	if opts.Frames > 0 {
		opts.Frames -= j.total.Frames
	}
	runner := capture.NewRunner(sess, opts)
	err = runner.Run(ctx, func(f capture.Frame) error {
		_, werr := j.out.Write(f.Data)
		return werr
	})
	return runner.Stats(), errors.Join(err, sess.Close())
}

func (j *captureJob) add(s capture.Stats) {
	j.total.Frames += s.Frames
	j.total.Bytes += s.Bytes
	j.total.Dropped += s.Dropped
	j.total.Errors += s.Errors
	j.total.Timeouts += s.Timeouts
}

// cancelSession ends the running session. Callers hold j.mu.
func (j *captureJob) cancelSession() {
	if j.restart != nil {
		j.restart()
	}
}

// watchProfile restarts the capture when the profile changes and stops it
// when the profile is removed.
func (j *captureJob) watchProfile(flags *captureFlags, cmd *cobra.Command) func() {
	loader := func(path string) (*config.Profile, error) {
		store := config.NewProfileStore(path)
		if err := store.Load(); err != nil {
			return nil, err
		}
		if p, ok := store.Get(flags.profile); ok {
			return &p, nil
		}
		return nil, nil
	}

	watcher := config.NewConfigWatcher(flags.profilesFile, loader, j.logger,
		config.WithDebounce[*config.Profile](500*time.Millisecond))

	watcher.OnReload(func(p *config.Profile) {
		j.mu.Lock()
		defer j.mu.Unlock()

		if p == nil {
			j.logger.Warn("Profile removed, stopping capture", "profile", flags.profile)
			j.pending = nil
			j.cancelSession()
			return
		}
		settings, err := capture.SettingsFromProfile(*p)
		if err == nil {
			err = flags.override(cmd, &settings)
		}
		if err != nil {
			j.logger.Warn("Ignoring invalid profile", "profile", p.ID, "error", err)
			return
		}
		if path, err := devices.Resolve(p.Device); err == nil && flags.device == "" && path != j.path {
			j.logger.Warn("Profile moved to another device, keeping the current one", "device", j.path, "new_device", path)
		}
		if settings == j.settings {
			j.logger.Debug("Profile reloaded, settings unchanged")
			return
		}
		j.pending = &settings
		j.cancelSession()
	})

	if err := watcher.Start(); err != nil {
		j.logger.Warn("Failed to watch profiles, hot-reload disabled", "error", err)
		return func() {}
	}
	return func() { _ = watcher.Stop() }
}
