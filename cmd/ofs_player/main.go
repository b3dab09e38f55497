// Command ofs_player plays funscripts through the channel producers and
// inspects their curves.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/OpenFunscripter/playback/internal/logging"
	intOtel "github.com/OpenFunscripter/playback/internal/otel"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "ofs_player"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	// LogFile is the session log file, nil when it could not be opened
	LogFile *os.File

	SessionStartTime time.Time = time.Now()
)

// configDir is the directory the config file is read from: next to the
// executable, or the working directory when that cannot be resolved.
func configDir() string {
	if dir := os.Getenv("OFS_PLAYER_CONFIG_DIR"); dir != "" {
		return dir
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func main() {
	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	switch cmd.name {
	case "inspect":
		err = runInspect(os.Stdout, cmd.args)
	case "tempo":
		err = runTempo(os.Stdout, cmd.args)
	case "play":
		err = runPlay(cmd.args)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.name)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, ErrUnknownCommand) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
