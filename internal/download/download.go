// Package download assembles custom builds from a caller supplied list of
// module parts.
//
// Each request gets its own scratch directory below the cache download dir.
// An entry module importing the selected parts is written there, built and
// optionally compiled. The result is always served once and then removed
// together with its scratch directory.
package download

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/distbuilder/internal/build"
	"git.home.luguber.info/inful/distbuilder/internal/cache"
	"git.home.luguber.info/inful/distbuilder/internal/compile"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
)

const (
	// EntryFile is the generated entry module and the built artifact name.
	EntryFile = "custom.src.js"
	globals   = "parts/Globals.js"
	lineBreak = "\r\n"
	maxParts  = 512
)

var segmentPattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Part selects one module file: <sourceDir>/<BaseURL>/<Name>.js.
type Part struct {
	BaseURL string `json:"baseUrl"`
	Name    string `json:"name"`
}

// File is the part's path relative to the source dir.
func (p Part) File() string {
	return path.Join(p.BaseURL, p.Name+".js")
}

// ParseParts decodes the parts query parameter.
func ParseParts(raw string) ([]Part, error) {
	var parts []Part
	if err := json.Unmarshal([]byte(raw), &parts); err != nil {
		return nil, derrors.InvalidRequest("Invalid parts parameter").WithCause(err).Build()
	}
	if len(parts) > maxParts {
		return nil, derrors.InvalidRequest("Too many parts").WithContext("parts", len(parts)).Build()
	}
	for _, p := range parts {
		if !safeSegments(p.BaseURL, true) || !safeSegments(p.Name, false) {
			return nil, derrors.InvalidRequest("Invalid part " + p.File()).
				WithContext("base_url", p.BaseURL).
				WithContext("name", p.Name).
				Build()
		}
	}
	return parts, nil
}

func safeSegments(s string, allowEmpty bool) bool {
	if s == "" {
		return allowEmpty
	}
	for _, seg := range strings.Split(s, "/") {
		if seg == "." || seg == ".." || !segmentPattern.MatchString(seg) {
			return false
		}
	}
	return true
}

// Result is a finished custom build.
type Result struct {
	Path string
	// ScratchDir holds Path and must be removed once Path has been served.
	ScratchDir string
}

// Builder runs custom builds.
type Builder struct {
	cache     *cache.Cache
	orch      *build.Orchestrator
	compiler  compile.Compiler
	sourceDir string
	version   string
	banner    []string
	recorder  metrics.Recorder
}

// Config carries the custom build settings.
type Config struct {
	SourceDir string
	Version   string
	Banner    []string
}

// NewBuilder creates a custom build runner.
func NewBuilder(c *cache.Cache, orch *build.Orchestrator, comp compile.Compiler, cfg Config) (*Builder, error) {
	abs, err := filepath.Abs(cfg.SourceDir)
	if err != nil {
		return nil, derrors.ConfigError("invalid download source dir").WithCause(err).Build()
	}
	return &Builder{
		cache:     c,
		orch:      orch,
		compiler:  comp,
		sourceDir: abs,
		version:   cfg.Version,
		banner:    cfg.Banner,
		recorder:  metrics.NoopRecorder{},
	}, nil
}

// WithRecorder attaches a metrics recorder.
func (b *Builder) WithRecorder(r metrics.Recorder) *Builder {
	b.recorder = metrics.OrNoop(r)
	return b
}

// Build assembles parts into one artifact, compiling it when requested. On
// error the scratch directory is already gone.
func (b *Builder) Build(ctx context.Context, parts []Part, compileOutput bool) (res Result, err error) {
	id := uuid.NewString()
	jobDir := filepath.Join(b.cache.DownloadDir(), id)
	start := time.Now()
	defer func() {
		b.recorder.ObserveStageDuration(metrics.StageDownload, time.Since(start))
		if err != nil {
			b.recorder.IncStageResult(metrics.StageDownload, metrics.ResultFailed)
			if rmErr := os.RemoveAll(jobDir); rmErr != nil {
				slog.Warn("Failed to remove download scratch dir", logfields.JobID(id), logfields.Error(rmErr))
			}
			return
		}
		b.recorder.IncStageResult(metrics.StageDownload, metrics.ResultSuccess)
	}()

	entry, included, err := b.entryModule(jobDir, parts)
	if err != nil {
		return Result{}, err
	}
	if _, err := cache.WriteFileAtomic(filepath.Join(jobDir, EntryFile), strings.NewReader(entry)); err != nil {
		return Result{}, derrors.InternalIO("write entry module").WithCause(err).WithContext("job", id).Build()
	}
	slog.Info("Custom build requested",
		logfields.JobID(id),
		slog.Int("parts", len(parts)),
		slog.Int("included", included),
		slog.Bool("compile", compileOutput))

	built, err := b.orch.Build(ctx, build.Job{
		BaseDir:   jobDir,
		JSBase:    b.sourceDir,
		OutputDir: filepath.Join(jobDir, "output"),
		Files:     []string{EntryFile},
		Type:      "classic",
		Version:   b.version,
		Target:    EntryFile,
	})
	if err != nil {
		return Result{}, err
	}
	out := built.Path
	if compileOutput {
		out, err = b.compiler.Compile(ctx, built.Path)
		if err != nil {
			return Result{}, err
		}
	}
	return Result{Path: out, ScratchDir: jobDir}, nil
}

// entryModule renders the entry module. Parts without a source file are skipped.
func (b *Builder) entryModule(jobDir string, parts []Part) (string, int, error) {
	rel, err := filepath.Rel(jobDir, b.sourceDir)
	if err != nil {
		return "", 0, derrors.InternalIO("relate source dir").WithCause(err).Build()
	}
	importRoot := filepath.ToSlash(rel) + "/"

	lines := append([]string(nil), b.banner...)
	lines = append(lines, "'use strict';", "import Highcharts from '"+importRoot+globals+"';")
	included := 0
	for _, p := range parts {
		if _, err := os.Stat(filepath.Join(b.sourceDir, filepath.FromSlash(p.File()))); err != nil {
			slog.Debug("Skipping unknown part", slog.String("part", p.File()))
			continue
		}
		lines = append(lines, "import '"+importRoot+p.File()+"';")
		included++
	}
	lines = append(lines, "export default Highcharts;"+lineBreak)
	return strings.Join(lines, lineBreak), included, nil
}
