package cache

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(t.TempDir())
	require.NoError(t, err)
	return c
}

func writeMaster(t *testing.T, dir, name string) {
	t.Helper()
	p := filepath.Join(dir, "masters", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte("// master "+name), 0o600))
}

func TestLayout(t *testing.T) {
	c := newTestCache(t)
	assert.Equal(t, filepath.Join(c.Root(), "stable", "js", "masters"), c.MastersDir("stable"))
	assert.Equal(t, filepath.Join(c.Root(), "stable", "output"), c.OutputDir("stable"))
	assert.Equal(t, filepath.Join(c.Root(), "download"), c.DownloadDir())
}

func TestCheckBranch(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.CheckBranch("v6.0.0"))
	for _, b := range []string{"", "download", ".staging", "a/b"} {
		err := c.CheckBranch(b)
		require.Error(t, err, b)
		assert.True(t, derrors.HasCategory(err, derrors.CategoryInvalidRequest))
	}
}

func TestEnsureSourceTree_MissThenHit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()
	calls := 0
	fill := func(_ context.Context, dir string) error {
		calls++
		writeMaster(t, dir, "highcharts.js")
		return nil
	}

	hit, err := c.EnsureSourceTree(ctx, "stable", fill)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.True(t, c.Exists("stable", "js/masters/highcharts.js"))
	assert.NoDirExists(t, filepath.Join(c.BranchDir("stable"), ".staging"))

	hit, err = c.EnsureSourceTree(ctx, "stable", fill)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, calls)
}

func TestEnsureSourceTree_FailureLeavesResumableStaging(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	boom := errors.New("connection reset")
	_, err := c.EnsureSourceTree(ctx, "stable", func(_ context.Context, dir string) error {
		writeMaster(t, dir, "highcharts.js")
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, c.Exists("stable", "js/masters/highcharts.js"), "partial tree must not be visible")

	var seen []string
	_, err = c.EnsureSourceTree(ctx, "stable", func(_ context.Context, dir string) error {
		entries, rerr := os.ReadDir(filepath.Join(dir, "masters"))
		require.NoError(t, rerr)
		for _, e := range entries {
			seen = append(seen, e.Name())
		}
		writeMaster(t, dir, "highstock.js")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"highcharts.js"}, seen, "retry must resume from the staged files")
	assert.True(t, c.Exists("stable", "js/masters/highcharts.js"))
	assert.True(t, c.Exists("stable", "js/masters/highstock.js"))
}

func TestEnsureSourceTree_ConcurrentCallersShareOneFill(t *testing.T) {
	c := newTestCache(t)
	var calls atomic.Int32
	release := make(chan struct{})
	fill := func(_ context.Context, dir string) error {
		calls.Add(1)
		<-release
		writeMaster(t, dir, "highcharts.js")
		return nil
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.EnsureSourceTree(context.Background(), "stable", fill)
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestOnce_WaiterHonoursOwnContext(t *testing.T) {
	c := newTestCache(t)
	release := make(chan struct{})
	defer close(release)

	go func() {
		_, _ = c.Once(context.Background(), "k", func(context.Context) error {
			<-release
			return nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Once(ctx, "k", func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOnce_OnlyWaitersAreShared(t *testing.T) {
	c := newTestCache(t)
	release := make(chan struct{})
	var runs atomic.Int32

	const n = 6
	var wg sync.WaitGroup
	shared := make([]bool, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			shared[i], err = c.Once(context.Background(), "k", func(context.Context) error {
				runs.Add(1)
				<-release
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.EqualValues(t, 1, runs.Load())
	fresh := 0
	for _, s := range shared {
		if !s {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh, "exactly the caller that ran fn is not shared")
}

func TestEnsureSourceTree_TreeWithoutMastersIsAHit(t *testing.T) {
	c := newTestCache(t)
	calls := 0
	fill := func(_ context.Context, dir string) error {
		calls++
		p := filepath.Join(dir, "parts", "Globals.js")
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		return os.WriteFile(p, []byte("// globals"), 0o600)
	}

	for i := range 3 {
		hit, err := c.EnsureSourceTree(context.Background(), "stable", fill)
		require.NoError(t, err)
		assert.Equal(t, i > 0, hit, "call %d", i)
	}
	assert.Equal(t, 1, calls)
	assert.NoDirExists(t, c.MastersDir("stable"))
}

func TestEnsureSourceTree_PurgeWaitsForPublish(t *testing.T) {
	c := newTestCache(t)
	purged := make(chan error, 1)
	fill := func(_ context.Context, dir string) error {
		writeMaster(t, dir, "highcharts.js")
		go func() {
			_, err := c.PurgeAll()
			purged <- err
		}()
		time.Sleep(50 * time.Millisecond)
		writeMaster(t, dir, "modules.js")
		return nil
	}

	_, err := c.EnsureSourceTree(context.Background(), "stable", fill)
	require.NoError(t, err)
	require.NoError(t, <-purged)

	// The purge ran after the complete tree was published, so nothing of the
	// branch is left. A purge in the middle of the fill would have published
	// a tree holding only modules.js.
	assert.NoDirExists(t, c.SourceDir("stable"))
	assert.NoDirExists(t, c.BranchDir("stable"))
}

func TestHoldPath(t *testing.T) {
	c := newTestCache(t)
	release := c.HoldPath(c.OutputDir("stable"))
	done := make(chan struct{})
	go func() {
		_ = c.Purge("stable")
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("purge must wait for the hold")
	case <-time.After(30 * time.Millisecond):
	}
	release()
	<-done

	// Paths outside a branch never block a purge.
	c.HoldPath(filepath.Join(c.DownloadDir(), "job"))
	c.HoldPath(t.TempDir())
	_, err := c.PurgeAll()
	require.NoError(t, err)
}

type failingReader struct{ n int }

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	r.n--
	p[0] = 'x'
	return 1, nil
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "nested", "highcharts.js")

	n, err := WriteFileAtomic(dst, strings.NewReader("content"))
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	broken := filepath.Join(dir, "nested", "broken.js")
	_, err = WriteFileAtomic(broken, &failingReader{n: 3})
	require.Error(t, err)
	assert.NoFileExists(t, broken)
	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must be cleaned up")
}

func TestPurge(t *testing.T) {
	c := newTestCache(t)
	for _, b := range []string{"stable", "v5.0.0"} {
		require.NoError(t, os.MkdirAll(c.OutputDir(b), 0o750))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(c.DownloadDir(), "job"), 0o750))

	require.NoError(t, c.Purge("stable"))
	assert.NoDirExists(t, c.BranchDir("stable"))

	branches, err := c.Branches()
	require.NoError(t, err)
	assert.Equal(t, []string{"v5.0.0"}, branches)

	n, err := c.PurgeAll()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.DirExists(t, c.DownloadDir())

	require.Error(t, c.Purge("download"))
}
