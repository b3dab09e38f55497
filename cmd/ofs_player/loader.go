package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/OpenFunscripter/playback/internal/funscript"
	"github.com/OpenFunscripter/playback/internal/geo"
	"github.com/OpenFunscripter/playback/internal/tcode"
)

// scriptFile is the subset of the .funscript JSON format the player reads.
type scriptFile struct {
	Actions []struct {
		At  float64 `json:"at"`
		Pos int     `json:"pos"`
	} `json:"actions"`
}

// parseScript reads funscript JSON. Times are milliseconds, positions are
// clamped to 0..100.
func parseScript(r io.Reader) (*funscript.ActionSet, error) {
	var f scriptFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding funscript: %w", err)
	}

	set := funscript.NewActionSet()
	for _, a := range f.Actions {
		if a.At < 0 {
			continue
		}
		set.Upsert(funscript.NewAction(a.At/1000, int16(min(max(a.Pos, 0), 100))))
	}
	return set, nil
}

// readScript accepts either a funscript object or a bare curve of
// [seconds, value] pairs, which is turned into linear actions.
func readScript(data []byte) (*funscript.ActionSet, error) {
	if trimmed := bytes.TrimLeft(data, " \t\r\n"); len(trimmed) > 0 && trimmed[0] == '[' {
		ls, err := geo.ReadPolyline(bytes.NewReader(trimmed))
		if err != nil {
			return nil, err
		}
		return geo.ActionsFromLine(ls), nil
	}
	return parseScript(bytes.NewReader(data))
}

func loadScript(path string) (*funscript.ActionSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening script: %w", err)
	}

	set, err := readScript(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return set, nil
}

// binding is one channel=file argument.
type binding struct {
	Channel tcode.Channel
	Path    string
}

// parseBinding accepts "R0=file.funscript". A bare path binds L0.
func parseBinding(arg string) (binding, error) {
	name, path, ok := strings.Cut(arg, "=")
	if !ok {
		return binding{Channel: tcode.L0, Path: arg}, nil
	}
	ch, err := tcode.ParseChannel(name)
	if err != nil {
		return binding{}, err
	}
	if path == "" {
		return binding{}, fmt.Errorf("empty script path for channel %s", ch)
	}
	return binding{Channel: ch, Path: path}, nil
}
