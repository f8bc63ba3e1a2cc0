package download

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distbuilder/internal/build"
	"git.home.luguber.info/inful/distbuilder/internal/cache"
	"git.home.luguber.info/inful/distbuilder/internal/compile"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

type compilerFunc func(ctx context.Context, src string) (string, error)

func (f compilerFunc) Compile(ctx context.Context, src string) (string, error) { return f(ctx, src) }

// copyBuilder copies the entry module to the output dir, recording the job.
type copyBuilder struct {
	job   build.Job
	entry string
	err   error
}

func (b *copyBuilder) Build(_ context.Context, job build.Job) error {
	b.job = job
	if b.err != nil {
		return b.err
	}
	data, err := os.ReadFile(filepath.Join(job.BaseDir, job.Files[0]))
	if err != nil {
		return err
	}
	b.entry = string(data)
	if err := os.MkdirAll(job.OutputDir, 0o750); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(job.OutputDir, job.Target), data, 0o600)
}

func setup(t *testing.T, bld build.Builder, comp compile.Compiler) (*Builder, *cache.Cache, string) {
	t.Helper()
	root := t.TempDir()
	c, err := cache.New(filepath.Join(root, "tmp"))
	require.NoError(t, err)
	src := filepath.Join(root, "source", "download", "js")
	for _, f := range []string{"parts/Globals.js", "modules/exporting.js", "parts-more/Polar.js"} {
		p := filepath.Join(src, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte("// "+f), 0o600))
	}
	b, err := NewBuilder(c, build.NewOrchestrator(c, bld), comp, Config{
		SourceDir: src,
		Version:   "5.0.0 custom build",
		Banner:    []string{"/**", " * banner", " */"},
	})
	require.NoError(t, err)
	return b, c, src
}

func TestParseParts(t *testing.T) {
	parts, err := ParseParts(`[{"baseUrl":"modules","name":"exporting"},{"baseUrl":"parts-more","name":"Polar"}]`)
	require.NoError(t, err)
	assert.Equal(t, []Part{{BaseURL: "modules", Name: "exporting"}, {BaseURL: "parts-more", Name: "Polar"}}, parts)
	assert.Equal(t, "modules/exporting.js", parts[0].File())

	for _, raw := range []string{
		`not json`,
		`{"baseUrl":"modules"}`,
		`[{"baseUrl":"../secret","name":"x"}]`,
		`[{"baseUrl":"modules","name":""}]`,
		`[{"baseUrl":"modules","name":"a/../../b"}]`,
		`[{"baseUrl":"/etc","name":"passwd"}]`,
	} {
		_, err := ParseParts(raw)
		require.Error(t, err, raw)
		assert.True(t, derrors.HasCategory(err, derrors.CategoryInvalidRequest), raw)
	}
}

func TestBuild_WritesEntryModuleAndKeepsScratch(t *testing.T) {
	fake := &copyBuilder{}
	b, c, src := setup(t, fake, nil)

	res, err := b.Build(context.Background(), []Part{
		{BaseURL: "modules", Name: "exporting"},
		{BaseURL: "modules", Name: "unknown"},
		{BaseURL: "parts-more", Name: "Polar"},
	}, false)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(res.ScratchDir, "output", EntryFile), res.Path)
	assert.Equal(t, c.DownloadDir(), filepath.Dir(res.ScratchDir))
	assert.Equal(t, src, fake.job.JSBase)
	assert.Equal(t, "classic", fake.job.Type)
	assert.Equal(t, "5.0.0 custom build", fake.job.Version)

	lines := strings.Split(fake.entry, "\r\n")
	assert.Equal(t, []string{
		"/**",
		" * banner",
		" */",
		"'use strict';",
		"import Highcharts from '../../../source/download/js/parts/Globals.js';",
		"import '../../../source/download/js/modules/exporting.js';",
		"import '../../../source/download/js/parts-more/Polar.js';",
		"export default Highcharts;",
		"",
	}, lines)
}

func TestBuild_Compile(t *testing.T) {
	b, _, _ := setup(t, &copyBuilder{}, compilerFunc(func(_ context.Context, src string) (string, error) {
		dst := compile.CompiledName(src)
		return dst, os.WriteFile(dst, []byte("min"), 0o600)
	}))

	res, err := b.Build(context.Background(), []Part{{BaseURL: "modules", Name: "exporting"}}, true)
	require.NoError(t, err)
	assert.Equal(t, "custom.js", filepath.Base(res.Path))
}

func TestBuild_FailureRemovesScratch(t *testing.T) {
	t.Run("build", func(t *testing.T) {
		b, c, _ := setup(t, &copyBuilder{err: errors.New("boom")}, nil)
		_, err := b.Build(context.Background(), nil, false)
		require.Error(t, err)
		assert.True(t, derrors.HasCategory(err, derrors.CategoryBuildFailed))
		entries, _ := os.ReadDir(c.DownloadDir())
		assert.Empty(t, entries)
	})

	t.Run("compile", func(t *testing.T) {
		b, c, _ := setup(t, &copyBuilder{}, compilerFunc(func(context.Context, string) (string, error) {
			return "", derrors.CompileFailed("compiler failed").Build()
		}))
		_, err := b.Build(context.Background(), nil, true)
		require.Error(t, err)
		assert.True(t, derrors.HasCategory(err, derrors.CategoryCompileFailed))
		entries, _ := os.ReadDir(c.DownloadDir())
		assert.Empty(t, entries)
	})
}
