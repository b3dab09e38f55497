package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/OpenFunscripter/playback/internal/config"
	"github.com/OpenFunscripter/playback/internal/dispatcher"
	"github.com/OpenFunscripter/playback/internal/influx"
	"github.com/OpenFunscripter/playback/internal/logging"
	intOtel "github.com/OpenFunscripter/playback/internal/otel"
	"github.com/OpenFunscripter/playback/internal/playback"
	"github.com/OpenFunscripter/playback/internal/registry"
	"github.com/OpenFunscripter/playback/internal/stream"
	"github.com/OpenFunscripter/playback/internal/tcode"
	"github.com/OpenFunscripter/playback/pkg/streaming"
)

const (
	sinkQueueSize   = 1024
	shutdownTimeout = 5 * time.Second
)

// setupLogging loads the config and sets up the session logger: the log file
// (mirrored to stderr), GELF and OTel when enabled.
func setupLogging() {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(os.Stderr, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir()); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config")
	}

	logsDir := config.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		Logger.Error("Failed to create logs directory", "error", err, "path", logsDir)
	}

	logPath := logging.LogFilePath(logsDir, AppName, SessionStartTime)
	var out io.Writer = os.Stderr
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err, "path", logPath)
	} else {
		LogFile = f
		out = io.MultiWriter(os.Stderr, f)
	}

	gl := config.GetGraylogConfig()
	if gl.Enabled {
		if err := SlogManager.ConnectGraylog(gl.Address); err != nil {
			Logger.Error("Failed to connect to Graylog", "error", err)
		}
	}

	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		var w io.Writer
		if LogFile != nil {
			w = LogFile
		}
		OTelProvider, err = intOtel.New(intOtel.FromSettings(otelCfg, CurrentVersion, w))
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			Logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint)
		}
	}

	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(out, config.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", logPath, "version", CurrentVersion, "build", BuildDate)
}

func teardownLogging() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if OTelProvider != nil {
		if err := OTelProvider.Flush(ctx); err != nil {
			Logger.Warn("Failed to flush OTel data", "error", err)
		}
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
	if err := SlogManager.Close(); err != nil {
		Logger.Warn("Failed to close Graylog writer", "error", err)
	}
	if LogFile != nil {
		_ = LogFile.Close()
	}
}

// loadBindings registers every script and maps it to its channel. Later
// arguments for the same channel win.
func loadBindings(reg *registry.Registry, args []string) (map[tcode.Channel]registry.Handle, map[string]string, error) {
	handles := map[tcode.Channel]registry.Handle{}
	names := map[string]string{}
	for _, arg := range args {
		b, err := parseBinding(arg)
		if err != nil {
			return nil, nil, err
		}
		set, err := loadScript(b.Path)
		if err != nil {
			return nil, nil, err
		}
		if old, ok := handles[b.Channel]; ok {
			reg.Release(old)
		}
		name := filepath.Base(b.Path)
		handles[b.Channel] = reg.Register(name, set)
		names[b.Channel.String()] = name
		Logger.Info("Loaded script", "channel", b.Channel.String(), "path", b.Path, "actions", set.Len())
	}
	return handles, names, nil
}

// sinks holds the stroke sinks enabled in the config.
type sinks struct {
	influx *influx.Manager
	stream *stream.Sink
}

func setupSinks(ctx context.Context, d *dispatcher.Dispatcher) sinks {
	var s sinks

	ic := config.GetInfluxConfig()
	if ic.Enabled {
		var w io.Writer
		if LogFile != nil {
			w = LogFile
		}
		m := influx.NewManager(SlogManager.NewZerolog(config.GetString("logLevel"), w), ic, SessionStartTime)
		if err := m.Connect(ctx); err != nil {
			Logger.Error("Failed to set up InfluxDB sink", "error", err)
			_ = m.Close()
		} else {
			d.Register("influx", m.WriteStroke, dispatcher.Buffered(sinkQueueSize), dispatcher.Logged())
			s.influx = m
		}
	}

	sc := config.GetStreamConfig()
	if sc.Enabled {
		ws := stream.New(stream.FromSettings(sc), Logger)
		if err := ws.Init(); err != nil {
			Logger.Error("Failed to connect stroke stream", "error", err, "url", sc.URL)
		} else {
			d.Register("stream", ws.WriteStroke, dispatcher.Logged())
			s.stream = ws
		}
	}

	return s
}

func (s sinks) close() {
	if s.stream != nil {
		if err := s.stream.EndSession(); err != nil {
			Logger.Warn("Failed to end stream session", "error", err)
		}
		if err := s.stream.Close(); err != nil {
			Logger.Warn("Failed to close stroke stream", "error", err)
		}
	}
	if s.influx != nil {
		if err := s.influx.Close(); err != nil {
			Logger.Warn("Failed to close InfluxDB sink", "error", err)
		}
	}
}

func runPlay(args []string) error {
	setupLogging()
	defer teardownLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	handles, names, err := loadBindings(reg, args)
	if err != nil {
		return err
	}

	d, err := dispatcher.New(Logger)
	if err != nil {
		return fmt.Errorf("creating stroke dispatcher: %w", err)
	}
	s := setupSinks(ctx, d)

	deps := playback.Dependencies{
		Resolver: reg,
		Logger:   Logger,
		Observer: d,
	}
	if s.stream != nil {
		deps.Seeker = s.stream
	}
	player, err := playback.New(deps, playback.FromSettings(config.GetPlaybackConfig()))
	if err != nil {
		d.Close()
		s.close()
		return err
	}
	player.Load(handles)
	SlogManager.PlaybackMs = player.PlaybackMs

	if s.stream != nil {
		err := s.stream.StartSession(streaming.StartSessionPayload{
			Script:     filepath.Base(args[0]),
			Channels:   names,
			DurationMs: player.DurationMs(),
		})
		if err != nil {
			Logger.Warn("Failed to start stream session", "error", err)
		}
	}

	err = player.Run(ctx)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	d.Close()
	s.close()
	Logger.Info("Playback complete", "positionMs", player.Position(), "sinks", d.Sinks())
	return err
}
