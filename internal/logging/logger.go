// Package logging configures runtime JSONL logging output and the state
// directory debug artifacts live in.
package logging

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options selects the log level and optional debug sinks.
type Options struct {
	Verbose    bool
	StreamDump bool
}

// Runtime bundles the configured logger, the optional stream dump, and the
// lifecycle of their open files.
type Runtime struct {
	Logger *slog.Logger
	Path   string

	// StreamDump receives one JSON line per decoded engine response when
	// enabled; nil otherwise.
	StreamDump     io.Writer
	StreamDumpPath string

	closers []io.Closer
}

// Close flushes and closes every output sink.
func (r Runtime) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// New builds a JSONL logger rooted at the resolved state directory.
func New(opts Options) (Runtime, error) {
	dir, err := StateDir()
	if err != nil {
		return Runtime{}, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Runtime{}, err
	}

	path := filepath.Join(dir, "log.jsonl")
	f, err := openAppend(path)
	if err != nil {
		return Runtime{}, err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	rt := Runtime{
		Logger:  slog.New(slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})),
		Path:    path,
		closers: []io.Closer{f},
	}

	if opts.StreamDump {
		rt.StreamDumpPath = filepath.Join(dir, "stream-"+time.Now().Format("20060102-150405")+".jsonl")
		dump, err := openAppend(rt.StreamDumpPath)
		if err != nil {
			_ = rt.Close()
			return Runtime{}, err
		}
		rt.StreamDump = dump
		rt.closers = append(rt.closers, dump)
	}
	return rt, nil
}

// StateDir selects XDG_STATE_HOME when available, otherwise ~/.local/state.
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "parley"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "parley"), nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
}
