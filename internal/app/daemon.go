package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/parley/internal/config"
	"github.com/rbright/parley/internal/edit"
	"github.com/rbright/parley/internal/editor"
	"github.com/rbright/parley/internal/executor"
	"github.com/rbright/parley/internal/host"
	"github.com/rbright/parley/internal/indicator"
	"github.com/rbright/parley/internal/ipc"
	"github.com/rbright/parley/internal/logging"
	"github.com/rbright/parley/internal/microphone"
	"github.com/rbright/parley/internal/observe"
	"github.com/rbright/parley/internal/orchestrator"
	"github.com/rbright/parley/internal/plugin"
	"github.com/rbright/parley/internal/policy"
	"github.com/rbright/parley/internal/protocol"
	"golang.org/x/sync/errgroup"
)

// daemon owns every long-lived component of a running parley process.
type daemon struct {
	cfg    config.Config
	logger *slog.Logger

	metrics   *observe.Provider
	presenter *indicator.Presenter
	plugins   *plugin.Manager
	client    *protocol.Client
	sender    *orchestrator.Sender
	exec      *executor.Executor
	orch      *orchestrator.Orchestrator

	quit context.CancelFunc
}

// statusReport is the Data payload of a status response.
type statusReport struct {
	Indicator indicator.State  `json:"indicator"`
	Pending   int              `json:"pending"`
	Plugins   []string         `json:"plugins,omitempty"`
	Metrics   map[string]int64 `json:"metrics,omitempty"`
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func newDaemon(loaded config.Loaded, rt logging.Runtime, logger *slog.Logger) (*daemon, error) {
	cfg := loaded.Config

	pol, err := policy.Load(loaded.PolicyPath)
	if err != nil {
		return nil, err
	}

	metrics, err := observe.NewProvider()
	if err != nil {
		return nil, err
	}

	dial, err := protocol.NewDialer(protocol.Endpoint{
		URL:         cfg.Engine.Endpoint,
		Token:       cfg.Engine.Token,
		DialTimeout: millis(cfg.Engine.DialTimeoutMS),
	})
	if err != nil {
		_ = metrics.Shutdown(context.Background())
		return nil, err
	}

	var streamDump io.Writer
	if rt.StreamDump != nil {
		streamDump = rt.StreamDump
		logger.Info("stream dump enabled", "path", rt.StreamDumpPath)
	}

	d := &daemon{cfg: cfg, logger: logger, metrics: metrics, quit: func() {}}

	inbox := orchestrator.NewInbox()
	d.client = protocol.NewClient(dial, protocol.Config{
		KeepAliveInterval: millis(cfg.Stream.KeepAliveIntervalMS),
		KeepAliveTimeout:  millis(cfg.Stream.KeepAliveTimeoutMS),
		IdleTimeout:       millis(cfg.Stream.IdleTimeoutMS),
		IdleCheckInterval: millis(cfg.Stream.IdleCheckIntervalMS),
		StreamDump:        streamDump,
	}, inbox, logger.With("component", "protocol"), protocol.WithRecorder(metrics.Metrics))

	env := observe.InstrumentEnvironment(host.NewHyprland(host.Options{
		ClipboardArgv:     cfg.Clipboard.Argv,
		ClipboardReadArgv: cfg.ClipboardRead.Argv,
		TypeArgv:          cfg.Type.Argv,
		TypeViaClipboard:  cfg.Keyboard.TypeViaClipboard,
		PasteShortcut:     cfg.Keyboard.PasteShortcut,
		KeyDelay:          millis(cfg.Keyboard.KeyDelayMS),
	}, pol, logger.With("component", "host")), metrics.Metrics)

	d.plugins = plugin.NewManager(logger.With("component", "plugin"),
		plugin.WithTimeout(millis(cfg.Plugin.TimeoutMS)),
		plugin.WithTimeoutHandler(metrics.Metrics.PluginTimeout),
		plugin.WithInstallHandler(func(app string) {
			logger.Info("editor plugin registered", "app", app)
		}),
		plugin.WithTextHandler(func(text string) {
			d.sender.Text(context.Background(), text, true)
		}),
	)

	tracker := editor.NewTracker(env, pol, d.plugins, nil, uuid.NewString(), logger.With("component", "editor"))
	d.sender = orchestrator.NewSender(d.client, tracker, logger.With("component", "sender"))
	d.presenter = indicator.NewPresenter(cfg.Indicator, logger.With("component", "indicator"))

	d.exec = executor.New(executor.Deps{
		Env:       env,
		Editor:    tracker,
		Plugins:   d.plugins,
		Requests:  d.sender,
		Presenter: d.presenter,
		History:   edit.NewHistory(cfg.Execute.UndoDepth, cfg.Execute.MaxKeystrokes),
		Policy:    pol,
		Recorder:  metrics.Metrics,
		Logger:    logger.With("component", "executor"),
		Display: executor.Display{
			MiniMode:          cfg.Display.MiniMode,
			FewerAlternatives: cfg.Display.FewerAlternatives,
			AlternativesCount: cfg.Display.Alternatives,
			HideTimeout:       millis(cfg.Display.HideTimeoutMS),
		},
	})

	mic := microphone.NewRegistry(
		microphone.Pulse{Input: cfg.Audio.Input, Fallback: cfg.Audio.Fallback, Logger: logger},
		microphone.VADConfig{
			SpeechThreshold:  cfg.VAD.SpeechThreshold,
			StartFrames:      cfg.VAD.StartFrames,
			EndSilenceFrames: cfg.VAD.EndSilenceFrames,
			PrerollFrames:    cfg.VAD.PrerollFrames,
		},
		logger.With("component", "microphone"),
	)

	d.orch = orchestrator.New(orchestrator.Config{
		SilenceThreshold: cfg.Execute.SilenceThreshold,
		Capacity:         cfg.Execute.ChunkCapacity,
	}, orchestrator.Deps{
		Inbox:      inbox,
		Outbound:   d.sender,
		Microphone: mic,
		Editor:     tracker,
		Executor:   d.exec,
		Presenter:  d.presenter,
		Recorder:   metrics.Metrics,
		Policy:     pol,
		Logger:     logger.With("component", "orchestrator"),
	})
	d.exec.SetListener(d.orch)

	return d, nil
}

// run serves IPC and plugins until ctx is done or a quit intent arrives.
func (d *daemon) run(ctx context.Context, ipcListener net.Listener, listen bool) error {
	ctx, d.quit = context.WithCancel(ctx)
	defer d.quit()

	pluginListener, err := net.Listen("tcp", d.cfg.Plugin.Listen)
	if err != nil {
		d.logger.Warn("plugin server disabled", "listen", d.cfg.Plugin.Listen, "error", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.sender.Run(ctx) })
	g.Go(func() error { return d.orch.Run(ctx) })
	g.Go(func() error { return ipc.Serve(ctx, ipcListener, d, ipc.WithLogger(d.logger)) })
	if pluginListener != nil {
		g.Go(func() error { return d.plugins.Serve(ctx, pluginListener) })
		g.Go(func() error {
			d.plugins.Run(ctx, 0)
			return nil
		})
	}

	if listen {
		d.orch.SetListening(true)
	}

	err = g.Wait()
	d.client.Disconnect()
	d.presenter.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if shutdownErr := d.metrics.Shutdown(shutdownCtx); shutdownErr != nil {
		d.logger.Warn("metrics shutdown failed", "error", shutdownErr)
	}
	return err
}

// Handle serves IPC intents. quit and the status payload are the daemon's
// own; everything else belongs to the orchestrator.
func (d *daemon) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case "quit":
		d.logger.Info("quit requested")
		d.quit()
		return ipc.Response{OK: true, State: "stopping", Message: "quit requested"}
	case "status":
		resp := d.orch.Handle(ctx, req)
		data, err := d.status(ctx, req.Metrics)
		if err != nil {
			d.logger.Warn("status report failed", "error", err)
			return resp
		}
		resp.Data = data
		return resp
	default:
		return d.orch.Handle(ctx, req)
	}
}

func (d *daemon) status(ctx context.Context, withMetrics bool) (json.RawMessage, error) {
	report := statusReport{Indicator: d.presenter.Snapshot()}
	report.Pending, _ = d.exec.PendingCount()
	for _, p := range d.plugins.Plugins() {
		report.Plugins = append(report.Plugins, p.App)
	}
	if withMetrics {
		snapshot, err := d.metrics.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		report.Metrics = snapshot
	}
	return json.Marshal(report)
}

// printStatus renders a status payload below the state line.
func printStatus(w io.Writer, data json.RawMessage) error {
	var report statusReport
	if err := json.Unmarshal(data, &report); err != nil {
		return err
	}
	if report.Indicator.Error != "" {
		fmt.Fprintf(w, "error: %s\n", report.Indicator.Error)
	}
	for i, alt := range report.Indicator.Alternatives {
		fmt.Fprintf(w, "  %d. %s\n", i+1, alt)
	}
	fmt.Fprintf(w, "pending: %d\n", report.Pending)
	if len(report.Plugins) > 0 {
		fmt.Fprintf(w, "plugins: %v\n", report.Plugins)
	}
	for _, name := range slices.Sorted(maps.Keys(report.Metrics)) {
		fmt.Fprintf(w, "%s %d\n", name, report.Metrics[name])
	}
	return nil
}
