package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/distbuilder/internal/cache"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
)

// Result describes a materialized artifact.
type Result struct {
	Path string
	// Hit is true when the artifact existed and the builder was not run.
	Hit bool
	// Shared is true when this caller waited on a build started by another.
	Shared bool
}

// Orchestrator runs builds against the cache.
type Orchestrator struct {
	cache    *cache.Cache
	builder  Builder
	recorder metrics.Recorder
}

// NewOrchestrator creates an orchestrator publishing through c.
func NewOrchestrator(c *cache.Cache, b Builder) *Orchestrator {
	return &Orchestrator{cache: c, builder: b, recorder: metrics.NoopRecorder{}}
}

// WithRecorder attaches a metrics recorder.
func (o *Orchestrator) WithRecorder(r metrics.Recorder) *Orchestrator {
	o.recorder = metrics.OrNoop(r)
	return o
}

// Build returns job.Target below job.OutputDir, running the builder on a miss.
func (o *Orchestrator) Build(ctx context.Context, job Job) (Result, error) {
	if len(job.Files) == 0 || job.Target == "" {
		return Result{}, derrors.InternalError("build job without files").Build()
	}
	for _, f := range job.Files {
		if _, err := os.Stat(filepath.Join(job.BaseDir, f)); err != nil {
			o.recorder.IncStageResult(metrics.StageBuild, metrics.ResultNotFound)
			return Result{}, derrors.NotFound("Could not find module " + f).
				WithContext("file", f).
				WithContext("base", job.BaseDir).
				Build()
		}
	}

	final := filepath.Join(job.OutputDir, filepath.FromSlash(job.Target))
	if _, err := os.Stat(final); err == nil {
		o.recorder.IncCacheLookup(metrics.StageBuild, true)
		return Result{Path: final, Hit: true}, nil
	}
	o.recorder.IncCacheLookup(metrics.StageBuild, false)

	// late is set when this caller ran the flight after another build had
	// already published the target.
	late := false
	shared, err := o.cache.Once(ctx, "build:"+final, func(ctx context.Context) error {
		if _, err := os.Stat(final); err == nil {
			late = true
			return nil
		}
		return o.run(ctx, job, final)
	})
	if shared {
		o.recorder.IncSharedFlight(metrics.StageBuild)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{Path: final, Hit: late, Shared: shared}, nil
}

// run builds into a private staging dir next to the output dir and publishes
// the target on success. The staging dir never survives the call, and the
// branch cannot be purged while the builder reads its sources.
func (o *Orchestrator) run(ctx context.Context, job Job, final string) error {
	release := o.cache.HoldPath(job.OutputDir)
	defer release()
	staging := filepath.Join(filepath.Dir(job.OutputDir), ".build-"+uuid.NewString())
	if err := os.MkdirAll(staging, 0o750); err != nil {
		return derrors.InternalIO("create build staging dir").WithCause(err).WithContext("path", staging).Build()
	}
	defer func() {
		if err := os.RemoveAll(staging); err != nil {
			slog.Warn("Failed to remove build staging dir", logfields.Path(staging), logfields.Error(err))
		}
	}()

	staged := job
	staged.OutputDir = staging
	start := time.Now()
	slog.Info("Building artifact",
		slog.Any("files", job.Files),
		logfields.ArtifactType(job.Type),
		slog.String("version", job.Version),
		logfields.Path(final))

	err := o.builder.Build(ctx, staged)
	o.recorder.ObserveStageDuration(metrics.StageBuild, time.Since(start))
	if err != nil {
		o.recorder.IncStageResult(metrics.StageBuild, resultLabel(err))
		if derrors.IsClassified(err) {
			return err
		}
		return derrors.BuildFailed("builder failed").WithCause(err).WithContext("target", job.Target).Build()
	}

	produced := filepath.Join(staging, filepath.FromSlash(job.Target))
	info, err := os.Stat(produced)
	if err != nil || info.IsDir() || info.Size() == 0 {
		o.recorder.IncStageResult(metrics.StageBuild, metrics.ResultFailed)
		return derrors.BuildFailed(fmt.Sprintf("builder produced no %s", job.Target)).
			WithContext("target", job.Target).
			WithContext("staging", staging).
			Build()
	}
	if err := o.cache.PublishFile(produced, final); err != nil {
		o.recorder.IncStageResult(metrics.StageBuild, metrics.ResultFailed)
		return err
	}
	o.recorder.IncStageResult(metrics.StageBuild, metrics.ResultSuccess)
	slog.Info("Artifact built", logfields.Path(final), logfields.Duration(time.Since(start)))
	return nil
}

func resultLabel(err error) metrics.ResultLabel {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return metrics.ResultCanceled
	}
	return metrics.ResultFailed
}
