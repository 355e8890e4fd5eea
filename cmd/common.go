// Package cmd holds the command line tools that run next to the API server.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/smazurov/v4lstream/internal/capture"
	"github.com/smazurov/v4lstream/internal/config"
	"github.com/smazurov/v4lstream/internal/devices"
	"github.com/smazurov/v4lstream/internal/logging"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
	"github.com/spf13/cobra"
)

// initLogging sets up minimal logging for a one-shot command.
func initLogging(verbose, logJSON bool) {
	cfg := logging.Config{Level: "info", Format: "text"}
	if verbose {
		cfg.Level = "debug"
	}
	if logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
	v4l2.SetLogger(logging.GetLogger("v4l2"))
}

func addLoggingFlags(cmd *cobra.Command, verbose, logJSON *bool) {
	cmd.Flags().BoolVarP(verbose, "verbose", "v", false, "Log at debug level")
	cmd.Flags().BoolVar(logJSON, "log-json", false, "Use JSON log format")
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// captureFlags select a device and what to ask it for, either directly or
// through a stored profile. Explicit flags win over the profile.
type captureFlags struct {
	device       string
	size         string
	fourcc       string
	fps          uint32
	buffers      uint32
	profile      string
	profilesFile string
}

func (f *captureFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.device, "device", "d", "", "Device index, path or stable ID")
	cmd.Flags().StringVar(&f.size, "size", "", "Frame size as WIDTHxHEIGHT")
	cmd.Flags().StringVar(&f.fourcc, "fourcc", "", "Pixel format, e.g. YUYV or MJPG")
	cmd.Flags().Uint32Var(&f.fps, "fps", 0, "Frame rate to request")
	cmd.Flags().Uint32Var(&f.buffers, "buffers", 0, "Buffers to request (default 4)")
	cmd.Flags().StringVar(&f.profile, "profile", "", "Use a stored capture profile")
	cmd.Flags().StringVar(&f.profilesFile, "profiles-file", "profiles.toml", "Capture profiles file")
}

// loadProfile returns the named profile from the profiles file.
func (f *captureFlags) loadProfile() (config.Profile, error) {
	store := config.NewProfileStore(f.profilesFile)
	if err := store.Load(); err != nil {
		return config.Profile{}, err
	}
	p, ok := store.Get(f.profile)
	if !ok {
		return config.Profile{}, fmt.Errorf("%w: %s", config.ErrProfileNotFound, f.profile)
	}
	return p, nil
}

// resolve merges profile and flags into a device path and settings.
func (f *captureFlags) resolve(cmd *cobra.Command) (string, capture.Settings, error) {
	var settings capture.Settings
	ref := f.device

	if f.profile != "" {
		p, err := f.loadProfile()
		if err != nil {
			return "", settings, err
		}
		if settings, err = capture.SettingsFromProfile(p); err != nil {
			return "", settings, fmt.Errorf("profile %s: %w", p.ID, err)
		}
		if ref == "" {
			ref = p.Device
		}
	}
	if ref == "" {
		return "", settings, fmt.Errorf("no device given, use --device or --profile")
	}

	if err := f.override(cmd, &settings); err != nil {
		return "", settings, err
	}

	path, err := devices.Resolve(ref)
	if err != nil {
		return "", settings, err
	}
	return path, settings, nil
}

// override applies the flags the user actually set.
func (f *captureFlags) override(cmd *cobra.Command, settings *capture.Settings) error {
	flags := cmd.Flags()
	if flags.Changed("size") {
		w, h, err := capture.ParseSize(f.size)
		if err != nil {
			return err
		}
		settings.Width, settings.Height = w, h
	}
	if flags.Changed("fourcc") {
		pf, err := capture.ParseFourCC(f.fourcc)
		if err != nil {
			return err
		}
		settings.PixelFormat = pf
	}
	if flags.Changed("fps") {
		settings.FPS = f.fps
	}
	if flags.Changed("buffers") {
		settings.Buffers = f.buffers
	}
	return nil
}

// openOutput opens path for writing, "-" meaning stdout. The returned
// closer is a no-op for stdout.
func openOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return stdout, func() error { return nil }, nil
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}
