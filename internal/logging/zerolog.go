package logging

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func parseZerologLevel(level string) zerolog.Level {
	switch strings.ToUpper(level) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewZerolog builds the console-format zerolog logger used by the sinks that
// log through zerolog. Output goes to every non-nil writer; the playback
// position from the manager's PlaybackMs is attached to each event.
func (m *SlogManager) NewZerolog(level string, writers ...io.Writer) zerolog.Logger {
	var outs []io.Writer
	for _, w := range writers {
		if w == nil {
			continue
		}
		outs = append(outs, zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
	}
	if len(outs) == 0 {
		outs = append(outs, zerolog.ConsoleWriter{Out: osStdout, TimeFormat: time.RFC3339})
	}

	return zerolog.New(zerolog.MultiLevelWriter(outs...)).
		Level(parseZerologLevel(level)).
		With().Timestamp().Logger().
		Hook(zerolog.HookFunc(func(e *zerolog.Event, _ zerolog.Level, _ string) {
			if m.PlaybackMs == nil {
				return
			}
			if ms, ok := m.PlaybackMs(); ok {
				e.Int64("playbackMs", ms)
			}
		}))
}
