package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/janitor"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
	"git.home.luguber.info/inful/distbuilder/internal/server/httpserver"
	"git.home.luguber.info/inful/distbuilder/internal/services"
	"git.home.luguber.info/inful/distbuilder/internal/version"
)

// ServeCmd implements the 'serve' command.
type ServeCmd struct {
	Addr      string `help:"Override the public listen address"`
	AdminAddr string `help:"Override the admin listen address"`
	NoWatch   bool   `help:"Do not reload the configuration file on change"`
}

func (s *ServeCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root.Config)
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}
	if s.AdminAddr != "" {
		cfg.Server.AdminAddr = s.AdminAddr
	}
	applyLogging(g, cfg, root.Verbose)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app, err := NewApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			slog.Warn("Failed to close resources", logfields.Error(cerr))
		}
	}()

	so, err := s.services(g, root, app)
	if err != nil {
		return err
	}
	if err := so.StartAll(ctx); err != nil {
		return err
	}
	slog.Info("distbuilder running", slog.String("version", version.Version), slog.String("addr", cfg.Server.Addr))

	<-ctx.Done()
	slog.Info("Shutdown signal received, stopping...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer stopCancel()
	return so.StopAll(stopCtx)
}

func (s *ServeCmd) services(g *Global, root *CLI, app *App) (*services.ServiceOrchestrator, error) {
	cfg := app.Config
	opts := httpserver.Options{
		Resolver:  app.Pipeline,
		Cache:     app.Cache,
		Recorder:  app.Recorder,
		Incidents: derrors.NewIncidentLog(cfg.Logging.IncidentDir),
		Version:   version.Version,
	}
	if app.Registry != nil {
		opts.PrometheusHandler = metrics.HTTPHandler(app.Registry)
	}
	if app.Store != nil {
		opts.Events = app.Store
		opts.Branches = app.Projection
	}
	srv, err := httpserver.New(cfg.Server, opts)
	if err != nil {
		return nil, err
	}

	var onPurge func()
	if app.Projection != nil {
		onPurge = func() {
			for _, b := range app.Projection.Branches() {
				app.Projection.Forget(b.Branch)
			}
		}
	}
	jan, err := janitor.New(app.Cache, janitor.Config{
		Interval:      cfg.Cache.JanitorInterval,
		ScratchTTL:    cfg.Cache.ScratchTTL,
		PurgeSchedule: cfg.Cache.PurgeSchedule,
	}, onPurge)
	if err != nil {
		return nil, err
	}

	so := services.NewServiceOrchestrator().WithTimeouts(30*time.Second, cfg.Server.ShutdownTimeout)
	list := []services.ManagedService{
		services.Func{ServiceName: "http", StartFunc: srv.Start, StopFunc: srv.Stop},
		services.Func{
			ServiceName: "janitor",
			StartFunc:   func(ctx context.Context) error { jan.Start(ctx); return nil },
			StopFunc:    jan.Stop,
		},
	}
	if !s.NoWatch {
		list = append(list, s.watcher(g, root))
	}
	for _, svc := range list {
		if err := so.RegisterService(svc); err != nil {
			return nil, err
		}
	}
	return so, nil
}

// watcher reloads the config file and applies the new log level. Other
// settings need a restart.
func (s *ServeCmd) watcher(g *Global, root *CLI) services.ManagedService {
	var w *config.Watcher
	return services.Func{
		ServiceName: "config-watcher",
		StartFunc: func(ctx context.Context) error {
			var err error
			w, err = config.NewWatcher(root.Config, func(c *config.Config) {
				if root.Verbose {
					return
				}
				g.Level.Set(c.Logging.Level.SlogLevel())
				slog.Info("Configuration reloaded", slog.String("log_level", string(c.Logging.Level)))
			})
			if err != nil {
				return err
			}
			// The watcher outlives the start timeout context.
			return w.Start(context.WithoutCancel(ctx))
		},
		StopFunc: func(context.Context) error {
			if w == nil {
				return nil
			}
			return w.Close()
		},
	}
}
