package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	ggitcfg "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

// seedRemote creates a bare repository holding one commit on master tagged v1.0.0.
func seedRemote(t *testing.T, files map[string]string) string {
	t.Helper()
	tmp := t.TempDir()
	barePath := filepath.Join(tmp, "remote.git")
	_, err := git.PlainInit(barePath, true)
	require.NoError(t, err)

	workPath := filepath.Join(tmp, "seed")
	workRepo, err := git.PlainInit(workPath, false)
	require.NoError(t, err)
	_, err = workRepo.CreateRemote(&ggitcfg.RemoteConfig{Name: "origin", URLs: []string{barePath}})
	require.NoError(t, err)

	for rel, content := range files {
		p := filepath.Join(workPath, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	}
	w, err := workRepo.Worktree()
	require.NoError(t, err)
	_, err = w.Add(".")
	require.NoError(t, err)
	hash, err := w.Commit("seed", &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	_, err = workRepo.CreateTag("v1.0.0", hash, nil)
	require.NoError(t, err)

	require.NoError(t, workRepo.Push(&git.PushOptions{
		RemoteName: "origin",
		RefSpecs: []ggitcfg.RefSpec{
			"refs/heads/master:refs/heads/master",
			"refs/tags/*:refs/tags/*",
		},
	}))
	return barePath
}

var seedFiles = map[string]string{
	"assembler/build.js":       "build",
	"js/masters/highcharts.js": "master hc",
	"js/parts/Globals.js":      "globals",
	"css/highcharts.css":       ".hc{}",
}

func TestFetchTree_Branch(t *testing.T) {
	src := NewTreeSource(seedRemote(t, seedFiles), WithDepth(0))
	dest := t.TempDir()

	require.NoError(t, src.FetchTree(context.Background(), "master", "js", dest))

	data, err := os.ReadFile(filepath.Join(dest, "masters", "highcharts.js"))
	require.NoError(t, err)
	assert.Equal(t, "master hc", string(data))
	assert.FileExists(t, filepath.Join(dest, "parts", "Globals.js"))
	assert.NoFileExists(t, filepath.Join(dest, "highcharts.css"))
}

func TestFetchTree_Tag(t *testing.T) {
	src := NewTreeSource(seedRemote(t, seedFiles), WithDepth(0))
	dest := t.TempDir()

	require.NoError(t, src.FetchTree(context.Background(), "v1.0.0", "js", dest))
	assert.FileExists(t, filepath.Join(dest, "masters", "highcharts.js"))
}

func TestFetchTree_KeepsPresentFiles(t *testing.T) {
	src := NewTreeSource(seedRemote(t, seedFiles), WithDepth(0))
	dest := t.TempDir()
	existing := filepath.Join(dest, "masters", "highcharts.js")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o750))
	require.NoError(t, os.WriteFile(existing, []byte("already here"), 0o600))

	require.NoError(t, src.FetchTree(context.Background(), "master", "js", dest))

	data, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, "already here", string(data))
	assert.FileExists(t, filepath.Join(dest, "parts", "Globals.js"))
}

func TestFetchTree_NotFound(t *testing.T) {
	src := NewTreeSource(seedRemote(t, seedFiles), WithDepth(0))

	err := src.FetchTree(context.Background(), "unknown-branch", "js", t.TempDir())
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNotFound))

	err = src.FetchTree(context.Background(), "master", "does-not-exist", t.TempDir())
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNotFound))
}

func TestFetchTree_CloneTimeout(t *testing.T) {
	src := NewTreeSource(seedRemote(t, seedFiles), WithDepth(0), WithTimeout(time.Nanosecond))
	dest := t.TempDir()

	err := src.FetchTree(context.Background(), "master", "js", dest)
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dest, "masters", "highcharts.js"))

	src = NewTreeSource(src.url, WithDepth(0), WithTimeout(0))
	assert.Equal(t, 2*time.Minute, src.timeout)
}
