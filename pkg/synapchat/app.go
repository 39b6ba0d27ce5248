// Package synapchat wires configuration, the session controller and its
// surfaces into a runnable application.
package synapchat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/synapchat/pkg/audio"
	"github.com/harunnryd/synapchat/pkg/journal"
	"github.com/harunnryd/synapchat/pkg/logging"
	"github.com/harunnryd/synapchat/pkg/metrics"
	"github.com/harunnryd/synapchat/pkg/notify"
	"github.com/harunnryd/synapchat/pkg/observers"
	"github.com/harunnryd/synapchat/pkg/permission"
	"github.com/harunnryd/synapchat/pkg/redact"
	"github.com/harunnryd/synapchat/pkg/runner"
	"github.com/harunnryd/synapchat/pkg/tui"
	"github.com/harunnryd/synapchat/pkg/voice"
	"github.com/harunnryd/synapchat/pkg/web"
)

type Options struct {
	Config   Config
	Registry *ProviderRegistry
	Logger   *slog.Logger
	// Optional overrides; when set they replace what Config selects.
	Requester permission.Requester
	Factory   voice.ClientFactory
}

type App struct {
	cfg        Config
	log        *slog.Logger
	controller *voice.Controller
	gate       *permission.Gate
	journal    *journal.Store
	relay      *notify.Relay
	observer   *metrics.AsyncObserver
	timeline   *observers.TimelineObserver
	asyncs     []*notify.Async

	closeOnce sync.Once
	closeErr  error
}

func New(opts Options) (*App, error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	}
	redact.SetEnabled(cfg.Privacy.RedactPII)

	log.Info("synapchat_init",
		"environment", cfg.Environment,
		"provider", cfg.Provider.Provider,
		"agent_id", cfg.Agent.ID,
		"audio", cfg.Audio.Enabled,
		"permission_mode", cfg.Permission.Mode,
	)

	a := &App{cfg: cfg, log: log, relay: &notify.Relay{}}

	var obs metrics.Observer = metrics.NoopObserver{}
	if cfg.Metrics.Enabled {
		metricsLog := logging.NewComponentLogger(log, "metrics")
		list := []metrics.Observer{metrics.NewLoggerObserver(metricsLog)}
		if dir := strings.TrimSpace(cfg.Metrics.TimelineDir); dir != "" {
			a.timeline = observers.NewTimelineObserver(dir, metricsLog)
			if cfg.Metrics.RetentionDays > 0 {
				removed, err := a.timeline.Purge(time.Duration(cfg.Metrics.RetentionDays) * 24 * time.Hour)
				if err != nil {
					metricsLog.Warn("timeline_purge_failed", slog.String("error", err.Error()))
				} else if removed > 0 {
					metricsLog.Info("timelines_purged", slog.Int("removed", removed))
				}
			}
			list = append(list, a.timeline)
		}
		a.observer = metrics.NewAsyncObserver(metrics.NewMultiObserver(list...), cfg.Metrics.Buffer)
		obs = a.observer
	}

	registry := opts.Registry
	if registry == nil {
		registry = DefaultProviderRegistry()
	}

	for _, nc := range cfg.Notifiers {
		n, err := registry.BuildNotifier(nc.Provider, nc.Settings, log)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("build notifier: %w", err)
		}
		async := notify.NewAsync(n, 32, 10*time.Second, log)
		a.asyncs = append(a.asyncs, async)
		a.relay.Add(async)
	}

	var devices Devices
	if cfg.Audio.Enabled {
		devices.Source = audio.NewMicrophoneSource(cfg.Audio.SampleRate, log)
		devices.Sink = audio.NewSpeaker(cfg.Audio.SampleRate, log)
	}

	factory := opts.Factory
	if factory == nil {
		var err error
		factory, err = registry.BuildClient(cfg.Provider.Provider, cfg, devices, log)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("build session client: %w", err)
		}
	}

	a.controller = voice.New(voice.Config{
		AgentID:  cfg.Agent.ID,
		Logger:   log,
		Notifier: a.relay,
		Observer: obs,
	}, factory)

	if cfg.Journal.Enabled {
		store, err := journal.Open(journal.Options{
			Dir:      cfg.Journal.Dir,
			InMemory: cfg.Journal.InMemory,
			Logger:   log,
		})
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.journal = store
		a.controller.Subscribe(store)
	}

	requester := opts.Requester
	if requester == nil {
		requester = requesterFromConfig(cfg)
	}
	a.gate = permission.NewGate(requester, a.controller, a.relay, log)
	return a, nil
}

func requesterFromConfig(cfg Config) permission.Requester {
	if strings.EqualFold(strings.TrimSpace(cfg.Permission.Mode), PermissionDevice) {
		return audio.NewMicrophoneProbe(cfg.Audio.SampleRate)
	}
	return permission.Static{Grant: cfg.Permission.Grant}
}

func (a *App) Controller() *voice.Controller { return a.controller }

func (a *App) Config() Config { return a.cfg }

// Journal is nil when the journal is disabled.
func (a *App) Journal() *journal.Store { return a.journal }

// AddSurface subscribes a renderer to state changes and toasts.
func (a *App) AddSurface(l voice.Listener, n notify.Notifier) {
	if l != nil {
		a.controller.Subscribe(l)
	}
	a.relay.Add(n)
}

// RequestPermission asks for microphone access once. A denial is not an
// error for the app; it leaves the controller unable to start.
func (a *App) RequestPermission(ctx context.Context) permission.Result {
	res, err := a.gate.Request(ctx)
	if err != nil {
		a.log.Warn("mic_permission", slog.String("result", res.String()), slog.String("error", err.Error()))
	}
	return res
}

// Serve runs the web widget until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	server := web.NewServer(web.Config{
		Addr:          a.cfg.Web.Addr,
		Title:         a.cfg.Web.Title,
		Logger:        a.log,
		ActionTimeout: a.cfg.Web.ActionTimeout,
	}, a.controller)
	a.AddSurface(server, server)
	a.RequestPermission(ctx)
	return a.run(ctx, nil, runner.ServiceFunc(server.Run))
}

// Console runs the terminal widget, reading commands from in.
func (a *App) Console(ctx context.Context, in io.Reader, out io.Writer) error {
	console := tui.NewConsole(out, 0, a.log)
	a.AddSurface(console, console)
	a.RequestPermission(ctx)
	return a.run(ctx, out, runner.ServiceFunc(func(ctx context.Context) error {
		return console.Run(ctx, in, a.controller)
	}))
}

func (a *App) run(ctx context.Context, bannerOut io.Writer, services ...runner.Service) error {
	r := runner.NewLifecycleRunner(runner.Options{
		Banner:   runner.BannerOptions{Disabled: !a.cfg.Banner, Title: strings.ToUpper(a.cfg.Web.Title), Out: bannerOut},
		Services: services,
		Drainers: []runner.Drainer{
			a.controller,
			runner.DrainFunc(a.Close),
		},
		Hooks: runner.Hooks{
			OnStart: func() { a.log.Info("synapchat_ready", slog.String("agent_id", a.cfg.Agent.ID)) },
		},
		Logger: a.log,
	})
	return r.Run(ctx)
}

// Close flushes metrics and notifications and closes the journal. It does
// not end an open session; the controller's Drain does that.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.observer != nil {
			a.observer.Close()
		}
		if a.timeline != nil {
			a.closeErr = errors.Join(a.closeErr, a.timeline.Close())
		}
		for _, async := range a.asyncs {
			async.Close()
		}
		if a.journal != nil {
			a.closeErr = errors.Join(a.closeErr, a.journal.Close())
		}
	})
	return a.closeErr
}
