// Package app dispatches parsed commands: local diagnostics, forwarding
// intents to a running daemon, or becoming the daemon.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/rbright/parley/internal/audio"
	"github.com/rbright/parley/internal/cli"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/doctor"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/logging"
	"github.com/rbright/parley/internal/version"
)

const (
	binaryName     = "parley"
	forwardTimeout = 400 * time.Millisecond
)

type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
	Logger *slog.Logger
}

func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	r := Runner{Stdout: stdout, Stderr: stderr}
	return r.Execute(ctx, args)
}

func (r Runner) Execute(ctx context.Context, args []string) int {
	parsed, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n\n", err)
		fmt.Fprint(r.Stderr, cli.HelpText(binaryName))
		return 2
	}

	if parsed.ShowHelp {
		fmt.Fprint(r.Stdout, cli.HelpText(binaryName))
		return 0
	}

	if parsed.Command == cli.CommandVersion {
		fmt.Fprintln(r.Stdout, version.String())
		return 0
	}

	cfgLoaded, err := config.Load(parsed.ConfigPath)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	logRuntime, err := logging.New(logging.Options{
		Verbose:    cfgLoaded.Config.Debug.Verbose,
		StreamDump: cfgLoaded.Config.Debug.StreamDump && isDaemonCommand(parsed.Command),
	})
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: setup logging: %v\n", err)
		return 1
	}
	defer func() { _ = logRuntime.Close() }()

	logger := r.Logger
	if logger == nil {
		logger = logRuntime.Logger
	}

	for _, w := range cfgLoaded.Warnings {
		fmt.Fprintf(r.Stderr, "warning: %s\n", w.Message)
		logger.Warn("config warning", "message", w.Message)
	}

	logger.Info("command start",
		"command", parsed.Command,
		"config", cfgLoaded.Path,
		"log", logRuntime.Path,
	)

	switch parsed.Command {
	case cli.CommandDoctor:
		report := doctor.Run(ctx, cfgLoaded)
		fmt.Fprintln(r.Stdout, report.String())
		if report.OK() {
			return 0
		}
		return 1
	case cli.CommandDevices:
		return r.commandDevices(ctx)
	case cli.CommandStatus:
		return r.commandStatus(ctx, parsed.Metrics)
	case cli.CommandStart, cli.CommandStop, cli.CommandUndo, cli.CommandRedo, cli.CommandQuit:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command)})
	case cli.CommandUse:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command), Index: parsed.Index})
	case cli.CommandText:
		return r.forwardOrFail(ctx, ipc.Request{Command: string(parsed.Command), Text: parsed.Text})
	case cli.CommandToggle:
		return r.commandToggle(ctx, cfgLoaded, logRuntime, logger)
	case cli.CommandDaemon:
		return r.commandDaemon(ctx, cfgLoaded, logRuntime, logger)
	default:
		fmt.Fprintf(r.Stderr, "error: unsupported command %q\n", parsed.Command)
		return 2
	}
}

func isDaemonCommand(cmd cli.Command) bool {
	return cmd == cli.CommandDaemon || cmd == cli.CommandToggle
}

func (r Runner) commandDevices(ctx context.Context) int {
	devices, err := audio.ListDevices(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if len(devices) == 0 {
		fmt.Fprintln(r.Stdout, "no audio devices found")
		return 1
	}

	for _, device := range devices {
		defaultMark := " "
		if device.Default {
			defaultMark = "*"
		}
		fmt.Fprintf(
			r.Stdout,
			"%s id=%s | description=%q | state=%s | available=%s | muted=%s\n",
			defaultMark,
			device.ID,
			device.Description,
			device.State,
			yesNo(device.Available),
			yesNo(device.Muted),
		)
	}

	return 0
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func (r Runner) commandStatus(ctx context.Context, metrics bool) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, handled, err := tryForward(ctx, socketPath, ipc.Request{Command: "status", Metrics: metrics})
	if !handled {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintln(r.Stdout, resp.State)
	if len(resp.Data) > 0 {
		if err := printStatus(r.Stdout, resp.Data); err != nil {
			fmt.Fprintf(r.Stderr, "error: decode status: %v\n", err)
			return 1
		}
	}
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, req ipc.Request) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	resp, handled, err := tryForward(ctx, socketPath, req)
	if !handled {
		fmt.Fprintf(r.Stderr, "error: no running parley daemon\n")
		return 1
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandToggle forwards to a running daemon, or becomes the daemon and
// starts listening.
func (r Runner) commandToggle(ctx context.Context, loaded config.Loaded, rt logging.Runtime, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	toggle := ipc.Request{Command: "toggle"}
	resp, handled, err := tryForward(ctx, socketPath, toggle)
	if handled {
		if err != nil {
			fmt.Fprintf(r.Stderr, "error: %v\n", err)
			return 1
		}
		if resp.Message != "" {
			fmt.Fprintln(r.Stdout, resp.Message)
		}
		return 0
	}

	code, running := r.serve(ctx, socketPath, loaded, rt, logger, true)
	if !running {
		return code
	}
	resp, _, err = tryForward(ctx, socketPath, toggle)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

func (r Runner) commandDaemon(ctx context.Context, loaded config.Loaded, rt logging.Runtime, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	code, running := r.serve(ctx, socketPath, loaded, rt, logger, false)
	if running {
		fmt.Fprintln(r.Stderr, "error: parley daemon already running")
		return 1
	}
	return code
}

// serve runs the daemon on socketPath until it quits. running reports that
// another daemon already owns the socket.
func (r Runner) serve(ctx context.Context, socketPath string, loaded config.Loaded, rt logging.Runtime, logger *slog.Logger, listen bool) (code int, running bool) {
	listener, err := ipc.Acquire(ctx, socketPath, 180*time.Millisecond, 8)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			return 0, true
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1, false
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	d, err := newDaemon(loaded, rt, logger)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon setup failed", "error", err)
		return 1, false
	}

	started := time.Now()
	logger.Info("daemon start", "socket", socketPath, "listen", listen, "engine", loaded.Config.Engine.Endpoint)
	err = d.run(ctx, listener, listen)
	logger.Info("daemon stop", "duration_ms", time.Since(started).Milliseconds())
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		logger.Error("daemon failed", "error", err)
		return 1, false
	}
	return 0, false
}

func tryForward(ctx context.Context, socketPath string, req ipc.Request) (ipc.Response, bool, error) {
	resp, err := ipc.Send(ctx, socketPath, req, forwardTimeout)
	if err == nil {
		if resp.OK {
			return resp, true, nil
		}
		return resp, true, errors.New(resp.Error)
	}

	if isSocketMissing(err) || isConnectionRefused(err) {
		return ipc.Response{}, false, nil
	}

	return ipc.Response{}, true, fmt.Errorf("forward command %q: %w", req.Command, err)
}

func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist) ||
		strings.Contains(err.Error(), "no such file or directory")
}

func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
