package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/smazurov/v4lstream/internal/capture"
	"github.com/smazurov/v4lstream/internal/devices"
	"github.com/spf13/cobra"
)

// CreateForwardCmd creates the forward command.
func CreateForwardCmd() *cobra.Command {
	var flags captureFlags
	var outputRef string
	var outputBuffers uint32
	var frames uint64
	var timeout time.Duration
	var verbose, logJSON bool

	cmd := &cobra.Command{
		Use:   "forward",
		Short: "Copy frames from a capture device to an output device",
		Long: `Negotiates a format on the capture device, sets the same format on the output device ` +
			`(e.g. v4l2loopback) and copies every frame between the two mmap buffer pools.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initLogging(verbose, logJSON)

			path, settings, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			outPath, err := devices.Resolve(outputRef)
			if err != nil {
				return fmt.Errorf("output: %w", err)
			}

			src, err := capture.Open(path, settings)
			if err != nil {
				return err
			}
			sink, err := capture.OpenOutput(outPath, src.Format(), outputBuffers)
			if err != nil {
				return errors.Join(err, src.Close())
			}

			ctx, stop := signalContext()
			defer stop()

			stats, err := capture.Forward(ctx, src, sink, capture.RunnerOptions{Timeout: timeout, Frames: frames})
			fmt.Fprintf(cmd.ErrOrStderr(), "frames=%d bytes=%d dropped=%d errors=%d timeouts=%d\n",
				stats.Frames, stats.Bytes, stats.Dropped, stats.Errors, stats.Timeouts)
			return errors.Join(err, sink.Close(), src.Close())
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&outputRef, "output", "", "Output device index, path or stable ID")
	cmd.Flags().Uint32Var(&outputBuffers, "output-buffers", 0, "Buffers to request on the output device (default 4)")
	cmd.Flags().Uint64VarP(&frames, "count", "n", 0, "Stop after this many frames (0 runs until interrupted)")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "Wait for each frame at most this long")
	addLoggingFlags(cmd, &verbose, &logJSON)
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
