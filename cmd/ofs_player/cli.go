package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/OpenFunscripter/playback/internal/funscript"
	"github.com/OpenFunscripter/playback/internal/geo"
	"github.com/OpenFunscripter/playback/internal/spline"
	"github.com/OpenFunscripter/playback/internal/tempo"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrMissingArgs    = errors.New("missing arguments")
)

const usage = `usage:
  ofs_player play <file.funscript> [channel=file.funscript ...]
  ofs_player inspect <file.funscript> [sampleEveryMs]
  ofs_player tempo <bpm> <offsetSeconds> <multipleIdx> <ms>
scripts may also be curve files of [seconds, value] pairs`

const (
	defaultSampleEveryMs = 250
	traceStepS           = 0.01
)

type command struct {
	name string
	args []string
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, ErrMissingArgs
	}
	cmd := command{name: strings.ToLower(args[0]), args: args[1:]}

	switch cmd.name {
	case "play", "inspect":
		if len(cmd.args) < 1 {
			return cmd, fmt.Errorf("%s: %w", cmd.name, ErrMissingArgs)
		}
	case "tempo":
		if len(cmd.args) != 4 {
			return cmd, fmt.Errorf("%s: %w", cmd.name, ErrMissingArgs)
		}
	default:
		return cmd, fmt.Errorf("%w: %q", ErrUnknownCommand, args[0])
	}
	return cmd, nil
}

func runInspect(w io.Writer, args []string) error {
	set, err := loadScript(args[0])
	if err != nil {
		return err
	}
	every := int64(defaultSampleEveryMs)
	if len(args) > 1 {
		every, err = strconv.ParseInt(args[1], 10, 64)
		if err != nil || every <= 0 {
			return fmt.Errorf("invalid sample interval %q", args[1])
		}
	}
	return inspect(w, filepath.Base(args[0]), set, every)
}

// inspect prints the script summary, the path statistics of the raw and the
// spline curve and the curve values every everyMs.
func inspect(w io.Writer, name string, set *funscript.ActionSet, everyMs int64) error {
	fmt.Fprintf(w, "script:   %s\n", name)
	fmt.Fprintf(w, "actions:  %d\n", set.Len())
	if set.Empty() {
		return nil
	}
	fmt.Fprintf(w, "duration: %.3fs\n", set.Back().AtS-set.Front().AtS)

	raw, err := geo.RawLine(set)
	if errors.Is(err, geo.ErrTooFewActions) {
		return nil
	}
	if err != nil {
		return err
	}
	curve, err := geo.Trace(set, nil, traceStepS)
	if err != nil {
		return err
	}
	rs, cs := geo.Measure(raw), geo.Measure(curve)
	fmt.Fprintf(w, "raw:      points=%d length=%.4f travel=%.4f\n", rs.Points, rs.Length, rs.Travel)
	fmt.Fprintf(w, "spline:   points=%d length=%.4f travel=%.4f\n", cs.Points, cs.Length, cs.Travel)

	fmt.Fprintln(w, "samples:")
	s := spline.New()
	end := int64(set.Back().AtMs())
	for at := int64(set.Front().AtMs()); at <= end; at += everyMs {
		atS := float64(at) / 1000
		fmt.Fprintf(w, "  %8dms %.3f raw %.3f\n", at, s.Sample(set, atS), spline.SampleLinear(set, atS))
	}
	return nil
}

func runTempo(w io.Writer, args []string) error {
	bpm, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid bpm %q: %w", args[0], err)
	}
	offset, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return fmt.Errorf("invalid offset %q: %w", args[1], err)
	}
	idx, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid multiple index %q: %w", args[2], err)
	}
	at, err := strconv.ParseFloat(args[3], 64)
	if err != nil {
		return fmt.Errorf("invalid position %q: %w", args[3], err)
	}

	g := tempo.New(bpm, offset, idx)
	fmt.Fprintf(w, "grid:     %s\n", g)
	fmt.Fprintf(w, "previous: %.3fms\n", g.Previous(at))
	fmt.Fprintf(w, "snap:     %.3fms\n", g.Snap(at))
	fmt.Fprintf(w, "next:     %.3fms\n", g.Next(at))
	return nil
}
