package commands

import (
	"context"
	"errors"
	"log/slog"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/distbuilder/internal/build"
	"git.home.luguber.info/inful/distbuilder/internal/cache"
	"git.home.luguber.info/inful/distbuilder/internal/compile"
	"git.home.luguber.info/inful/distbuilder/internal/config"
	"git.home.luguber.info/inful/distbuilder/internal/download"
	"git.home.luguber.info/inful/distbuilder/internal/eventstore"
	"git.home.luguber.info/inful/distbuilder/internal/git"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
	"git.home.luguber.info/inful/distbuilder/internal/notify"
	"git.home.luguber.info/inful/distbuilder/internal/pipeline"
	"git.home.luguber.info/inful/distbuilder/internal/remote"
	"git.home.luguber.info/inful/distbuilder/internal/request"
)

// App is the wired resolution pipeline and its optional collaborators.
type App struct {
	Config     *config.Config
	Cache      *cache.Cache
	Pipeline   *pipeline.Pipeline
	Registry   *prom.Registry // nil when metrics are disabled
	Recorder   metrics.Recorder
	Store      *eventstore.SQLiteStore // nil when event history is disabled
	Projection *eventstore.BranchActivityProjection
	Notifier   *notify.Notifier // nil when notifications are disabled
}

// NewApp wires every component named in cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg, Recorder: metrics.NoopRecorder{}}
	if cfg.Metrics.Enabled {
		app.Registry = metrics.NewRegistry()
		app.Recorder = metrics.NewPrometheusRecorder(app.Registry)
	}

	c, err := cache.New(cfg.Cache.Root)
	if err != nil {
		return nil, err
	}
	app.Cache = c

	client := remote.NewClient(cfg.Remote)
	tree := newTreeSource(cfg.Remote, client)

	orch := build.NewOrchestrator(c, build.NewCommandBuilder(cfg.Build.Command, cfg.Build.Args, cfg.Build.Timeout)).
		WithRecorder(app.Recorder)
	compiler := compile.NewCommandCompiler(cfg.Compile.Command, cfg.Compile.Args, cfg.Compile.Timeout).
		WithRecorder(app.Recorder)
	downloads, err := download.NewBuilder(c, orch, compiler, download.Config{
		SourceDir: cfg.Download.SourceDir,
		Version:   cfg.Download.Version,
		Banner:    cfg.Download.Banner,
	})
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithRecorder(app.Recorder),
		pipeline.WithBuildOptions(cfg.Build.Options),
		pipeline.WithDownloads(downloads.WithRecorder(app.Recorder)),
	}

	if cfg.Events.DBPath != "" {
		store, err := eventstore.NewSQLiteStore(cfg.Events.DBPath)
		if err != nil {
			return nil, err
		}
		app.Store = store
		app.Projection = eventstore.NewBranchActivityProjection(store)
		if err := app.Projection.Rebuild(ctx); err != nil {
			slog.Warn("Failed to rebuild branch activity", logfields.Error(err))
		}
		opts = append(opts, pipeline.WithObserver(eventstore.NewSink(store, app.Projection)))
	}

	n, err := notify.Connect(cfg.Notify)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if n != nil {
		app.Notifier = n
		opts = append(opts, pipeline.WithObserver(n))
	}

	app.Pipeline = pipeline.New(pipeline.Deps{
		Resolver:     request.NewResolver(cfg.Server.DefaultBranch),
		Cache:        c,
		Probe:        client,
		Files:        client,
		Tree:         tree,
		Orchestrator: orch,
	}, opts...)

	slog.Info("Pipeline ready",
		slog.String("cache_root", c.Root()),
		slog.String("source_mode", string(cfg.Remote.SourceMode)),
		slog.Bool("metrics", app.Registry != nil),
		slog.Bool("events", app.Store != nil),
		slog.Bool("notify", app.Notifier != nil))
	return app, nil
}

// Close releases the event store and the NATS connection.
func (a *App) Close() error {
	var errs []error
	if a.Notifier != nil {
		errs = append(errs, a.Notifier.Close())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// newTreeSource picks the source tree mirror for the configured source mode.
func newTreeSource(rc config.RemoteConfig, client *remote.Client) remote.TreeSource {
	if rc.SourceMode != config.SourceModeGit {
		return client
	}
	opts := []git.Option{git.WithToken(rc.Token), git.WithTimeout(rc.CloneTimeout)}
	if rc.CloneDepth != nil {
		opts = append(opts, git.WithDepth(*rc.CloneDepth))
	}
	return git.NewTreeSource(rc.GitURL, opts...)
}
