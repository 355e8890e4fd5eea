package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/smazurov/v4lstream/cmd"
	"github.com/smazurov/v4lstream/internal/api"
	"github.com/smazurov/v4lstream/internal/config"
	"github.com/smazurov/v4lstream/internal/devices"
	"github.com/smazurov/v4lstream/internal/events"
	"github.com/smazurov/v4lstream/internal/logging"
	"github.com/smazurov/v4lstream/internal/metrics/collectors"
	"github.com/smazurov/v4lstream/internal/metrics/exporters"
	"github.com/smazurov/v4lstream/internal/version"
	"github.com/smazurov/v4lstream/pkg/linuxav/v4l2"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"config.toml"`

	// Server settings
	Port string `help:"Address to listen on" short:"p" default:":8090" toml:"server.port" env:"SERVER_PORT"`

	// Auth settings
	AuthUsername string `help:"Basic auth username" default:"admin" toml:"auth.username" env:"AUTH_USERNAME"`
	AuthPassword string `help:"Basic auth password" default:"password" toml:"auth.password" env:"AUTH_PASSWORD"`

	// Capture settings
	ProfilesFile      string `help:"Capture profiles file" default:"profiles.toml" toml:"capture.profiles_file" env:"CAPTURE_PROFILES_FILE"`
	CaptureTimeoutMs  int    `help:"Wait for each frame at most this long, in milliseconds" default:"2000" toml:"capture.timeout_ms" env:"CAPTURE_TIMEOUT_MS"`
	DevicesHotplug    bool   `help:"Track devices through kernel uevents" default:"true" toml:"devices.hotplug" env:"DEVICES_HOTPLUG"`
	MetricsPrometheus bool   `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"metrics.prometheus_enabled" env:"METRICS_PROMETHEUS_ENABLED"`
	MetricsSSE        bool   `help:"Publish per-second stream metrics over SSE" default:"true" toml:"metrics.sse_enabled" env:"METRICS_SSE_ENABLED"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingBufferSize int    `help:"Log entries kept for the API" default:"1000" toml:"logging.buffer_size" env:"LOGGING_BUFFER_SIZE"`
	LoggingV4L2       string `help:"V4L2 library logging level" default:"info" toml:"logging.modules.v4l2" env:"LOGGING_V4L2"`
	LoggingCapture    string `help:"Capture logging level" default:"info" toml:"logging.modules.capture" env:"LOGGING_CAPTURE"`
	LoggingDevices    string `help:"Devices logging level" default:"info" toml:"logging.modules.devices" env:"LOGGING_DEVICES"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.modules.api" env:"LOGGING_API"`
	LoggingHTTP       string `help:"HTTP request logging level" default:"info" toml:"logging.modules.http" env:"LOGGING_HTTP"`
	LoggingMetrics    string `help:"Metrics logging level" default:"info" toml:"logging.modules.metrics" env:"LOGGING_METRICS"`
}

func (o *Options) loggingConfig() logging.Config {
	return logging.Config{
		Level:      o.LoggingLevel,
		Format:     o.LoggingFormat,
		BufferSize: o.LoggingBufferSize,
		Modules: map[string]string{
			"v4l2":    o.LoggingV4L2,
			"capture": o.LoggingCapture,
			"devices": o.LoggingDevices,
			"api":     o.LoggingAPI,
			"http":    o.LoggingHTTP,
			"metrics": o.LoggingMetrics,
		},
	}
}

func main() {
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(opts.loggingConfig())
		v4l2.SetLogger(logging.GetLogger("v4l2"))
		logger := logging.GetLogger("main")

		eventBus := events.New()

		// Mirror buffered log entries onto the bus for /api/logs/stream.
		var logSeq atomic.Uint64
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(events.LogEntryEvent{
				Seq:        logSeq.Add(1),
				Timestamp:  entry.Timestamp.Format(time.RFC3339Nano),
				Level:      entry.Level,
				Module:     entry.Module,
				Message:    entry.Message,
				Attributes: entry.Attributes,
			})
		})

		collector := collectors.NewEventCollector(eventBus)
		var sseExporter *exporters.SSEExporter
		if opts.MetricsSSE {
			sseExporter = exporters.NewSSEExporter(eventBus)
		}

		var monitor *devices.Monitor
		if opts.DevicesHotplug {
			monitor = devices.NewMonitor(eventBus)
		}

		profiles := config.NewProfileStore(opts.ProfilesFile)
		if loadErr := profiles.Load(); loadErr != nil {
			logger.Warn("Failed to load capture profiles", "path", opts.ProfilesFile, "error", loadErr)
		}

		// Logging levels follow the config file while the server runs.
		watcher := config.NewConfigWatcher(opts.Config, config.LoadLoggingConfig, logging.GetLogger("config"))
		watcher.OnReload(func(cfg logging.Config) {
			logging.Apply(cfg)
			logger.Info("Logging config reloaded", "level", cfg.Level)
			eventBus.Publish(events.ConfigReloadedEvent{
				Path:      opts.Config,
				Level:     cfg.Level,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		})

		apiOpts := &api.Options{
			AuthUsername: opts.AuthUsername,
			AuthPassword: opts.AuthPassword,
			Devices: &api.SystemDevices{
				Monitor:      monitor,
				Bus:          eventBus,
				FrameTimeout: time.Duration(opts.CaptureTimeoutMs) * time.Millisecond,
			},
			Profiles:     profiles,
			EventBus:     eventBus,
			ReloadConfig: watcher.Reload,
		}
		if opts.MetricsPrometheus {
			apiOpts.PrometheusHandler = exporters.HTTPHandler()
		}
		server := api.NewServer(apiOpts)

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			logger.Info("Starting v4lstream", "version", version.String())

			collector.Start()
			if sseExporter != nil {
				sseExporter.Start(ctx)
			}
			if monitor != nil {
				if startErr := monitor.Start(ctx); startErr != nil {
					logger.Warn("Device hotplug disabled", "error", startErr)
				}
			}
			if startErr := watcher.Start(); startErr != nil {
				logger.Warn("Failed to start config watcher, hot-reload disabled", "error", startErr)
			}

			hup := make(chan os.Signal, 1)
			signal.Notify(hup, syscall.SIGHUP)
			go func() {
				defer signal.Stop(hup)
				for {
					select {
					case <-ctx.Done():
						return
					case <-hup:
						logger.Info("SIGHUP received, reloading config")
						_ = watcher.Reload()
					}
				}
			}()

			if _, notifyErr := daemon.SdNotify(false, daemon.SdNotifyReady); notifyErr != nil {
				logger.Debug("systemd notify failed", "error", notifyErr)
			}

			logger.Info("Starting HTTP server", "port", opts.Port)
			if startErr := server.Start(opts.Port); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down server")
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

			if stopErr := server.Stop(); stopErr != nil {
				logger.Error("Error stopping HTTP server", "error", stopErr)
			}
			cancel()
			_ = watcher.Stop()
			if monitor != nil {
				monitor.Stop()
			}
			if sseExporter != nil {
				sseExporter.Stop()
			}
			collector.Stop()
			logging.SetLogCallback(nil)
		})
	})

	cli.Root().Version = version.String()
	cli.Root().AddCommand(
		cmd.CreateListCmd(),
		cmd.CreateInfoCmd(),
		cmd.CreateFormatsCmd(),
		cmd.CreateCaptureCmd(),
		cmd.CreateSnapshotCmd(),
		cmd.CreateForwardCmd(),
	)

	cli.Run()
}
