package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/distbuilder/internal/build"
	"git.home.luguber.info/inful/distbuilder/internal/cache"
	"git.home.luguber.info/inful/distbuilder/internal/download"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
	"git.home.luguber.info/inful/distbuilder/internal/remote"
	"git.home.luguber.info/inful/distbuilder/internal/request"
)

// sourceSubtree is the remote directory mirrored for builds.
const sourceSubtree = "js"

// Prober answers whether a branch carries a build system.
type Prober interface {
	HasBuildSystem(ctx context.Context, branch string) (bool, error)
}

// FileFetcher downloads single remote files.
type FileFetcher interface {
	RawURL(branch, subpath string) string
	FetchFile(ctx context.Context, target, dest string) (int, error)
}

// Observer is told about every finished resolution.
type Observer interface {
	Observe(ctx context.Context, o Outcome)
}

// Query carries the optional request parameters.
type Query struct {
	// Parts is the raw JSON parts list of a custom build.
	Parts   string
	Compile bool
}

// Pipeline resolves requests into artifacts.
type Pipeline struct {
	resolver  *request.Resolver
	cache     *cache.Cache
	probe     Prober
	files     FileFetcher
	tree      remote.TreeSource
	orch      *build.Orchestrator
	downloads *download.Builder
	options   map[string]any
	recorder  metrics.Recorder
	observers []Observer
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(p *Pipeline) { p.recorder = metrics.OrNoop(r) }
}

// WithObserver registers an outcome observer.
func WithObserver(o Observer) Option {
	return func(p *Pipeline) {
		if o != nil {
			p.observers = append(p.observers, o)
		}
	}
}

// WithBuildOptions passes extra options to every branch build.
func WithBuildOptions(opts map[string]any) Option {
	return func(p *Pipeline) { p.options = opts }
}

// WithDownloads enables custom builds.
func WithDownloads(d *download.Builder) Option {
	return func(p *Pipeline) { p.downloads = d }
}

// Deps are the collaborators a Pipeline cannot run without.
type Deps struct {
	Resolver     *request.Resolver
	Cache        *cache.Cache
	Probe        Prober
	Files        FileFetcher
	Tree         remote.TreeSource
	Orchestrator *build.Orchestrator
}

// New creates a pipeline.
func New(d Deps, opts ...Option) *Pipeline {
	p := &Pipeline{
		resolver: d.Resolver,
		cache:    d.Cache,
		probe:    d.Probe,
		files:    d.Files,
		tree:     d.Tree,
		orch:     d.Orchestrator,
		recorder: metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve runs the pipeline for path. A root path with parts is a custom build.
func (p *Pipeline) Resolve(ctx context.Context, path string, q Query) (art Artifact, err error) {
	out := Outcome{ID: uuid.NewString(), Time: time.Now(), Path: path}
	defer func() {
		out.Duration = time.Since(out.Time)
		out.Err = err
		out.Origin = art.Origin
		out.Artifact = art.Path
		p.notify(ctx, out)
	}()

	if q.Parts != "" && isRoot(path) {
		return p.custom(ctx, q)
	}
	req, err := p.resolver.Resolve(path)
	if err != nil {
		return Artifact{}, err
	}
	out.Request = req
	return p.ResolveRequest(ctx, req)
}

// ResolveRequest runs every stage after path resolution.
func (p *Pipeline) ResolveRequest(ctx context.Context, req request.FileRequest) (Artifact, error) {
	if err := p.cache.CheckBranch(req.Branch); err != nil {
		return Artifact{}, err
	}

	start := time.Now()
	hasBuild, err := p.probe.HasBuildSystem(ctx, req.Branch)
	p.recorder.ObserveStageDuration(metrics.StageProbe, time.Since(start))
	if err != nil {
		p.recorder.IncStageResult(metrics.StageProbe, metrics.ResultFailed)
		return Artifact{}, err
	}
	p.recorder.IncStageResult(metrics.StageProbe, metrics.ResultSuccess)

	switch {
	case !req.IsScript():
		return p.static(ctx, req, req.File)
	case !hasBuild:
		return p.static(ctx, req, sourceSubtree+"/"+req.OutputSubpath())
	default:
		return p.built(ctx, req)
	}
}

// static serves a file copied verbatim from the remote branch.
func (p *Pipeline) static(ctx context.Context, req request.FileRequest, remoteSubpath string) (Artifact, error) {
	final := filepath.Join(p.cache.OutputDir(req.Branch), filepath.FromSlash(req.OutputSubpath()))
	art := Artifact{Path: final, Request: req, Origin: OriginCache}
	if exists(final) {
		p.recorder.IncCacheLookup(metrics.StageFetch, true)
		return art, nil
	}
	p.recorder.IncCacheLookup(metrics.StageFetch, false)

	target := p.files.RawURL(req.Branch, remoteSubpath)
	start := time.Now()
	late := false
	shared, err := p.cache.Once(ctx, "static:"+final, func(ctx context.Context) error {
		release := p.cache.Hold(req.Branch)
		defer release()
		if exists(final) {
			late = true
			return nil
		}
		status, err := p.files.FetchFile(ctx, target, final)
		if err != nil {
			return err
		}
		if status == http.StatusNotFound {
			return notFound(req)
		}
		return nil
	})
	p.recorder.ObserveStageDuration(metrics.StageFetch, time.Since(start))
	if shared {
		p.recorder.IncSharedFlight(metrics.StageFetch)
	}
	if err != nil {
		p.recorder.IncStageResult(metrics.StageFetch, labelFor(err))
		return Artifact{}, err
	}
	p.recorder.IncStageResult(metrics.StageFetch, metrics.ResultSuccess)
	switch {
	case late:
		art.Origin = OriginCache
	case shared:
		art.Origin = OriginShared
	default:
		art.Origin = OriginFetched
	}
	return art, nil
}

// built serves an artifact assembled from the branch module sources.
func (p *Pipeline) built(ctx context.Context, req request.FileRequest) (Artifact, error) {
	final := filepath.Join(p.cache.OutputDir(req.Branch), filepath.FromSlash(req.OutputSubpath()))
	if exists(final) {
		p.recorder.IncCacheLookup(metrics.StageBuild, true)
		return Artifact{Path: final, Request: req, Origin: OriginCache}, nil
	}

	start := time.Now()
	hit, err := p.cache.EnsureSourceTree(ctx, req.Branch, func(ctx context.Context, dir string) error {
		return p.tree.FetchTree(ctx, req.Branch, sourceSubtree, dir)
	})
	p.recorder.IncCacheLookup(metrics.StageTree, hit)
	if !hit {
		p.recorder.ObserveStageDuration(metrics.StageTree, time.Since(start))
		p.recorder.IncStageResult(metrics.StageTree, labelFor(err))
	}
	if err != nil {
		if derrors.HasCategory(err, derrors.CategoryNotFound) {
			return Artifact{}, notFound(req)
		}
		return Artifact{}, err
	}

	res, err := p.orch.Build(ctx, build.Job{
		BaseDir:   p.cache.MastersDir(req.Branch),
		JSBase:    p.cache.SourceDir(req.Branch),
		OutputDir: p.cache.OutputDir(req.Branch),
		Files:     []string{req.File},
		Type:      string(req.Type),
		Version:   req.Branch,
		Options:   p.options,
		Target:    req.OutputSubpath(),
	})
	if err != nil {
		if derrors.HasCategory(err, derrors.CategoryNotFound) {
			return Artifact{}, notFound(req)
		}
		return Artifact{}, err
	}
	art := Artifact{Path: res.Path, Request: req, Origin: OriginBuilt}
	switch {
	case res.Hit:
		art.Origin = OriginCache
	case res.Shared:
		art.Origin = OriginShared
	}
	return art, nil
}

// custom runs a download builder request. The result is always deleted after serving.
func (p *Pipeline) custom(ctx context.Context, q Query) (Artifact, error) {
	if p.downloads == nil {
		return Artifact{}, derrors.NotFound("Custom builds are not enabled").Build()
	}
	parts, err := download.ParseParts(q.Parts)
	if err != nil {
		return Artifact{}, err
	}
	res, err := p.downloads.Build(ctx, parts, q.Compile)
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: res.Path, Delete: true, ScratchDir: res.ScratchDir, Origin: OriginDownload}, nil
}

func (p *Pipeline) notify(ctx context.Context, o Outcome) {
	lvl := slog.LevelDebug
	attrs := []any{logfields.Path(o.Path), slog.String("origin", string(o.Origin)), logfields.Duration(o.Duration)}
	if o.Err != nil {
		lvl = slog.LevelWarn
		if derrors.GetCategory(o.Err) == derrors.CategoryNotFound || derrors.GetCategory(o.Err) == derrors.CategoryInvalidRequest {
			lvl = slog.LevelInfo
		}
		attrs = append(attrs, logfields.Error(o.Err))
	}
	slog.Log(ctx, lvl, "Resolved request", attrs...)
	// Observers record what happened even when the client has gone away.
	ctx = context.WithoutCancel(ctx)
	for _, obs := range p.observers {
		obs.Observe(ctx, o)
	}
}

func notFound(req request.FileRequest) error {
	return derrors.NotFound("Could not find file " + req.Branch + "/" + req.OutputSubpath()).
		WithContext("branch", req.Branch).
		WithContext("file", req.File).
		Build()
}

func labelFor(err error) metrics.ResultLabel {
	switch {
	case err == nil:
		return metrics.ResultSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultCanceled
	case derrors.HasCategory(err, derrors.CategoryNotFound):
		return metrics.ResultNotFound
	default:
		return metrics.ResultFailed
	}
}

func isRoot(path string) bool {
	return path == "" || path == "/"
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Cleanup removes a delete-after-serve artifact and its scratch dir.
func Cleanup(a Artifact) error {
	if !a.Delete {
		return nil
	}
	if a.ScratchDir != "" {
		return os.RemoveAll(a.ScratchDir)
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
