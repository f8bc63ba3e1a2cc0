package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distbuilder/internal/cache"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

type fixture struct {
	cache *cache.Cache
	calls atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	master := filepath.Join(c.MastersDir("stable"), "highcharts.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(master), 0o750))
	require.NoError(t, os.WriteFile(master, []byte("// master"), 0o600))
	return &fixture{cache: c}
}

func (f *fixture) job(file, target string) Job {
	return Job{
		BaseDir:   f.cache.MastersDir("stable"),
		OutputDir: f.cache.OutputDir("stable"),
		Files:     []string{file},
		Type:      "classic",
		Version:   "stable",
		Target:    target,
	}
}

// writer returns a builder that writes content for every file after delay.
func (f *fixture) writer(content string, delay time.Duration) Builder {
	return BuilderFunc(func(_ context.Context, job Job) error {
		f.calls.Add(1)
		time.Sleep(delay)
		p := filepath.Join(job.OutputDir, filepath.FromSlash(job.Target))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return err
		}
		return os.WriteFile(p, []byte(content), 0o600)
	})
}

func stagingLeftovers(t *testing.T, c *cache.Cache) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(c.BranchDir("stable"), ".build-*"))
	require.NoError(t, err)
	return matches
}

func TestBuild_MissThenHit(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.cache, f.writer("built", 0))

	res, err := o.Build(context.Background(), f.job("highcharts.js", "highcharts.js"))
	require.NoError(t, err)
	assert.False(t, res.Hit)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "built", string(data))
	assert.Empty(t, stagingLeftovers(t, f.cache))

	res, err = o.Build(context.Background(), f.job("highcharts.js", "highcharts.js"))
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestBuild_ExistingOutputSkipsBuilder(t *testing.T) {
	f := newFixture(t)
	existing := filepath.Join(f.cache.OutputDir("stable"), "js", "highcharts.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o750))
	require.NoError(t, os.WriteFile(existing, []byte("cached"), 0o600))
	o := NewOrchestrator(f.cache, f.writer("rebuilt", 0))

	res, err := o.Build(context.Background(), f.job("highcharts.js", "js/highcharts.js"))
	require.NoError(t, err)
	assert.True(t, res.Hit)
	assert.Equal(t, existing, res.Path)
	assert.Zero(t, f.calls.Load())
}

func TestBuild_MissingMasterIsNotFoundWithoutSideEffects(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.cache, f.writer("built", 0))

	_, err := o.Build(context.Background(), f.job("nope.js", "nope.js"))
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNotFound))
	assert.Zero(t, f.calls.Load())
	assert.NoDirExists(t, f.cache.OutputDir("stable"))
}

func TestBuild_FailureLeavesNoVisibleOutput(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.cache, BuilderFunc(func(_ context.Context, job Job) error {
		p := filepath.Join(job.OutputDir, job.Target)
		_ = os.WriteFile(p, []byte("half"), 0o600)
		return errors.New("exit status 1")
	}))

	_, err := o.Build(context.Background(), f.job("highcharts.js", "highcharts.js"))
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryBuildFailed))
	assert.NoFileExists(t, filepath.Join(f.cache.OutputDir("stable"), "highcharts.js"))
	assert.Empty(t, stagingLeftovers(t, f.cache))
}

func TestBuild_EmptyOutputIsFailure(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.cache, f.writer("", 0))

	_, err := o.Build(context.Background(), f.job("highcharts.js", "highcharts.js"))
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryBuildFailed))
	assert.NoFileExists(t, filepath.Join(f.cache.OutputDir("stable"), "highcharts.js"))
}

func TestBuild_ConcurrentRequestsShareOneBuild(t *testing.T) {
	f := newFixture(t)
	o := NewOrchestrator(f.cache, f.writer("complete artifact", 50*time.Millisecond))

	const n = 10
	var wg sync.WaitGroup
	results := make([]Result, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = o.Build(context.Background(), f.job("highcharts.js", "highcharts.js"))
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.calls.Load())
	fresh := 0
	for i := range n {
		require.NoError(t, errs[i])
		data, err := os.ReadFile(results[i].Path)
		require.NoError(t, err)
		assert.Equal(t, "complete artifact", string(data))
		if !results[i].Shared && !results[i].Hit {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, "exactly one caller reports the fresh build")
}

func TestBuild_PurgeWaitsForRunningBuild(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	o := NewOrchestrator(f.cache, BuilderFunc(func(_ context.Context, job Job) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		p := filepath.Join(job.OutputDir, job.Target)
		return os.WriteFile(p, []byte("artifact"), 0o600)
	}))

	purged := make(chan error, 1)
	go func() {
		<-started
		purged <- f.cache.Purge("stable")
	}()
	res, err := o.Build(context.Background(), f.job("highcharts.js", "highcharts.js"))
	require.NoError(t, err)
	require.NoError(t, <-purged)
	assert.NoFileExists(t, res.Path, "purge ran after publish")
	assert.Empty(t, stagingLeftovers(t, f.cache))
}
