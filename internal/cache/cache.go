package cache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

const (
	sourceDirName   = "js"
	mastersDirName  = "masters"
	outputDirName   = "output"
	stagingDirName  = ".staging"
	downloadDirName = "download"
)

// Flight coalesces concurrent calls that share a key.
// *singleflight.Group satisfies it.
type Flight interface {
	DoChan(key string, fn func() (any, error)) <-chan singleflight.Result
}

// Cache is the explicit owner of the cache root and its key space.
type Cache struct {
	root   string
	flight Flight
	// locks holds a *sync.RWMutex per branch. Writers to a branch tree hold it
	// shared, purges hold it exclusively.
	locks sync.Map
}

// Option configures a Cache.
type Option func(*Cache)

// WithFlight injects the per-key registry used to coalesce concurrent work.
func WithFlight(f Flight) Option {
	return func(c *Cache) { c.flight = f }
}

// New creates a cache rooted at root, creating the directory if needed.
func New(root string, opts ...Option) (*Cache, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, derrors.InternalIO("create cache root").WithCause(err).WithContext("path", abs).Build()
	}
	c := &Cache{root: abs, flight: &singleflight.Group{}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the absolute cache root.
func (c *Cache) Root() string { return c.root }

// CheckBranch rejects branch names that would collide with cache bookkeeping.
func (c *Cache) CheckBranch(branch string) error {
	if branch == "" || branch == downloadDirName || strings.HasPrefix(branch, ".") || strings.ContainsAny(branch, `/\`) {
		return derrors.InvalidRequest("Invalid branch " + branch).WithContext("branch", branch).Build()
	}
	return nil
}

// BranchDir is <root>/<branch>.
func (c *Cache) BranchDir(branch string) string {
	return filepath.Join(c.root, branch)
}

// SourceDir is the published module source tree of a branch.
func (c *Cache) SourceDir(branch string) string {
	return filepath.Join(c.root, branch, sourceDirName)
}

// MastersDir holds the module master descriptors of a branch.
func (c *Cache) MastersDir(branch string) string {
	return filepath.Join(c.SourceDir(branch), mastersDirName)
}

// OutputDir holds built and statically fetched artifacts of a branch.
func (c *Cache) OutputDir(branch string) string {
	return filepath.Join(c.root, branch, outputDirName)
}

// StagingDir receives a source tree while it is being mirrored.
func (c *Cache) StagingDir(branch string) string {
	return filepath.Join(c.root, branch, stagingDirName, sourceDirName)
}

// DownloadDir holds ephemeral custom build jobs.
func (c *Cache) DownloadDir() string {
	return filepath.Join(c.root, downloadDirName)
}

func (c *Cache) branchLock(branch string) *sync.RWMutex {
	l, _ := c.locks.LoadOrStore(branch, &sync.RWMutex{})
	return l.(*sync.RWMutex)
}

// Hold keeps branch from being purged until release is called. Holds do not
// nest: a holder must release before calling anything that holds again.
func (c *Cache) Hold(branch string) (release func()) {
	l := c.branchLock(branch)
	l.RLock()
	return l.RUnlock
}

// HoldPath is Hold for the branch that contains p. Paths outside a branch,
// such as download jobs, are never purged and need no hold.
func (c *Cache) HoldPath(p string) (release func()) {
	rel, err := filepath.Rel(c.root, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return func() {}
	}
	branch, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	if branch == downloadDirName {
		return func() {}
	}
	return c.Hold(branch)
}

// Exists reports whether <root>/<branch>/<rel> is present.
func (c *Cache) Exists(branch, rel string) bool {
	return exists(filepath.Join(c.BranchDir(branch), filepath.FromSlash(rel)))
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Filler populates dir with a complete source tree. It may be called again on
// a partially populated dir and must then only add what is missing.
type Filler func(ctx context.Context, dir string) error

// EnsureSourceTree makes sure the branch source tree is present, calling fill
// on a miss. Concurrent callers for one branch share a single fill. A published
// tree is complete whatever it contains; missing masters are the builder's
// concern. A purge waits for a running fill to be published.
func (c *Cache) EnsureSourceTree(ctx context.Context, branch string, fill Filler) (hit bool, err error) {
	if exists(c.SourceDir(branch)) {
		return true, nil
	}
	_, err = c.Once(ctx, "tree:"+branch, func(ctx context.Context) error {
		release := c.Hold(branch)
		defer release()
		if exists(c.SourceDir(branch)) {
			return nil
		}
		staging := c.StagingDir(branch)
		if err := os.MkdirAll(staging, 0o750); err != nil {
			return derrors.InternalIO("create staging dir").WithCause(err).WithContext("path", staging).Build()
		}
		start := time.Now()
		if err := fill(ctx, staging); err != nil {
			// Staging is kept so a retry only fetches what is missing.
			return err
		}
		if err := c.publishTree(staging, c.SourceDir(branch)); err != nil {
			return err
		}
		slog.Info("Source tree published", logfields.Branch(branch), logfields.Duration(time.Since(start)))
		return nil
	})
	return false, err
}

func (c *Cache) publishTree(staging, final string) error {
	if exists(final) {
		// Another process won; its tree is complete because it was renamed into place.
		return os.RemoveAll(filepath.Dir(staging))
	}
	if err := os.Rename(staging, final); err != nil {
		return derrors.InternalIO("publish source tree").WithCause(err).WithContext("path", final).Build()
	}
	_ = os.RemoveAll(filepath.Dir(staging))
	return nil
}

// Once runs fn at most once at a time per key. Callers that arrive while fn is
// running wait for its result. fn runs detached from the cancellation of the
// caller that started it so one disconnecting client does not fail the others;
// every caller still stops waiting when its own ctx is done.
// shared is true only for callers that waited on a run started by another.
func (c *Cache) Once(ctx context.Context, key string, fn func(ctx context.Context) error) (shared bool, err error) {
	detached := context.WithoutCancel(ctx)
	ran := false
	ch := c.flight.DoChan(key, func() (any, error) {
		ran = true
		return nil, fn(detached)
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		return res.Shared && !ran, res.Err
	}
}

// PublishFile atomically moves a complete file at src to dst.
func (c *Cache) PublishFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return derrors.InternalIO("create artifact dir").WithCause(err).WithContext("path", dst).Build()
	}
	if err := os.Rename(src, dst); err != nil {
		return derrors.InternalIO("publish artifact").WithCause(err).WithContext("path", dst).Build()
	}
	return nil
}

// WriteFileAtomic streams r into dst via a temporary sibling and a rename, so
// readers either see no file or the complete one.
func WriteFileAtomic(dst string, r io.Reader) (int64, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, derrors.InternalIO("create dir").WithCause(err).WithContext("path", dir).Build()
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return 0, derrors.InternalIO("create temp file").WithCause(err).WithContext("path", dst).Build()
	}
	tmpName := tmp.Name()
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return n, err
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return n, derrors.InternalIO("publish file").WithCause(err).WithContext("path", dst).Build()
	}
	return n, nil
}

// Purge removes every cached file of branch, waiting for running tree fills
// and builds of the branch to publish first.
func (c *Cache) Purge(branch string) error {
	if err := c.CheckBranch(branch); err != nil {
		return err
	}
	if err := c.removeBranch(branch); err != nil {
		return derrors.InternalIO("purge branch").WithCause(err).WithContext("branch", branch).Build()
	}
	slog.Info("Purged branch cache", logfields.Branch(branch))
	return nil
}

// PurgeAll removes every branch. Download scratch dirs are left to the janitor.
func (c *Cache) PurgeAll() (int, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return 0, derrors.InternalIO("list cache root").WithCause(err).Build()
	}
	purged := 0
	for _, e := range entries {
		if !e.IsDir() || e.Name() == downloadDirName {
			continue
		}
		if err := c.removeBranch(e.Name()); err != nil {
			return purged, derrors.InternalIO("purge branch").WithCause(err).WithContext("branch", e.Name()).Build()
		}
		purged++
	}
	slog.Info("Purged cache", slog.Int("branches", purged))
	return purged, nil
}

func (c *Cache) removeBranch(branch string) error {
	l := c.branchLock(branch)
	l.Lock()
	defer l.Unlock()
	return os.RemoveAll(c.BranchDir(branch))
}

// Branches lists cached branch names.
func (c *Cache) Branches() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, derrors.InternalIO("list cache root").WithCause(err).Build()
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != downloadDirName && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
