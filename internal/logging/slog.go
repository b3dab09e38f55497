package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName is the GELF facility and the otel log bridge scope.
const ServiceName = "ofs-player"

// osStdout is where logs go when no output is given.
var osStdout io.Writer = os.Stdout

// SlogManager owns the player's slog pipeline: a text handler on the session
// log (or stdout), plus GELF and OTel outputs when configured.
type SlogManager struct {
	logger      *slog.Logger
	logProvider *sdklog.LoggerProvider
	graylog     io.Writer

	// PlaybackMs reports the current playback position, if any. It is added
	// to every record as playbackMs.
	PlaybackMs func() (int64, bool)
}

func NewSlogManager() *SlogManager {
	return &SlogManager{}
}

var levels = map[string]slog.Level{
	"DEBUG": slog.LevelDebug,
	"INFO":  slog.LevelInfo,
	"WARN":  slog.LevelWarn,
	"ERROR": slog.LevelError,
}

// parseLevel maps a config level name to slog; unknown names are info.
func parseLevel(level string) slog.Level {
	if lvl, ok := levels[strings.ToUpper(level)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// ConnectGraylog opens a GELF UDP writer to addr. It takes effect on the
// next Setup.
func (m *SlogManager) ConnectGraylog(addr string) error {
	w, err := gelf.NewWriter(addr)
	if err != nil {
		return fmt.Errorf("connecting to graylog at %s: %w", addr, err)
	}
	w.Facility = ServiceName
	m.graylog = w
	return nil
}

// SetGraylogWriter replaces the GELF output.
func (m *SlogManager) SetGraylogWriter(w io.Writer) {
	m.graylog = w
}

func utcTime(_ []string, a slog.Attr) slog.Attr {
	if a.Key != slog.TimeKey {
		return a
	}
	if t, ok := a.Value.Any().(time.Time); ok {
		a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
	}
	return a
}

// Setup (re)builds the logger. Records go to out, or to stdout when out is
// nil. A nil provider disables the OTel bridge.
func (m *SlogManager) Setup(out io.Writer, level string, provider *sdklog.LoggerProvider) {
	m.logProvider = provider
	opts := &slog.HandlerOptions{Level: parseLevel(level), ReplaceAttr: utcTime}

	if out == nil {
		out = osStdout
	}
	handlers := []slog.Handler{slog.NewTextHandler(out, opts)}
	if m.graylog != nil {
		handlers = append(handlers, slog.NewTextHandler(m.graylog, opts))
	}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider)))
	}

	m.logger = slog.New(NewContextHandler(NewMultiHandler(handlers...), m.contextAttrs))
	m.logger.Info("Logging initialized", "level", level)
}

func (m *SlogManager) contextAttrs() []slog.Attr {
	if m.PlaybackMs == nil {
		return nil
	}
	ms, ok := m.PlaybackMs()
	if !ok {
		return nil
	}
	return []slog.Attr{slog.Int64("playbackMs", ms)}
}

// Logger returns the configured logger, or slog.Default before Setup.
func (m *SlogManager) Logger() *slog.Logger {
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush pushes buffered OTel records to their exporters.
func (m *SlogManager) Flush(ctx context.Context) error {
	if m.logProvider == nil {
		return nil
	}
	return m.logProvider.ForceFlush(ctx)
}

// Close releases the GELF writer when it is closable.
func (m *SlogManager) Close() error {
	if c, ok := m.graylog.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
