package cmd

import (
	"fmt"
	"time"

	"github.com/smazurov/v4lstream/internal/capture"
	"github.com/spf13/cobra"
)

// CreateSnapshotCmd creates the snapshot command.
func CreateSnapshotCmd() *cobra.Command {
	var flags captureFlags
	var skip int
	var output string
	var timeout time.Duration
	var verbose, logJSON bool

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Capture a single frame",
		Long: `Opens the device, streams until the warmup frames have been skipped, writes one raw ` +
			`frame and closes the device again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			initLogging(verbose, logJSON)

			path, settings, err := flags.resolve(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signalContext()
			defer stop()

			img, err := capture.Snapshot(ctx, path, settings, capture.SnapshotOptions{Skip: skip, Timeout: timeout})
			if err != nil {
				return err
			}

			out, closeOut, err := openOutput(output, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if _, err := out.Write(img.Data); err != nil {
				closeOut()
				return err
			}
			if err := closeOut(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "%s %dx%d seq=%d bytes=%d\n",
				img.Format.PixelFormat, img.Format.Width, img.Format.Height, img.Sequence, len(img.Data))
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&skip, "skip", 5, "Warmup frames to discard")
	cmd.Flags().StringVarP(&output, "out", "o", "-", "Output file, - for stdout")
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Second, "Wait for each frame at most this long")
	addLoggingFlags(cmd, &verbose, &logJSON)
	return cmd
}
