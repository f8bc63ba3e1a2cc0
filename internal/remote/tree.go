package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

const (
	maxListingBytes  = 5 * 1024 * 1024
	maxFetchParallel = 8
	entryTypeFile    = "file"
	entryTypeDir     = "dir"
)

// TreeSource mirrors a remote directory of a branch into a local directory.
// Implementations must skip files already present in dest so an interrupted
// mirror can be completed by calling FetchTree again.
type TreeSource interface {
	FetchTree(ctx context.Context, branch, subpath, dest string) error
}

type listEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
}

// FetchTree mirrors <branch>/<subpath> into dest using directory listings from
// the contents API and raw downloads for files. A missing top-level directory is
// NotFound. Files that vanish between listing and download are skipped.
func (c *Client) FetchTree(ctx context.Context, branch, subpath, dest string) error {
	root := strings.Trim(subpath, "/")
	entries, status, err := c.list(ctx, branch, root)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return derrors.NotFound(fmt.Sprintf("Could not find %s/%s", branch, root)).
			WithContext("branch", branch).
			WithContext("path", root).
			Build()
	}

	var files []string
	if err := c.walk(ctx, branch, root, entries, &files); err != nil {
		return err
	}

	fetched, skipped, err := c.fetchAll(ctx, branch, root, dest, files)
	if err != nil {
		return err
	}
	slog.Info("Mirrored remote tree",
		logfields.Branch(branch),
		logfields.Path(root),
		slog.Int("fetched", fetched),
		slog.Int("present", skipped))
	return nil
}

// walk collects every file path below root, listing sub directories as needed.
func (c *Client) walk(ctx context.Context, branch, root string, entries []listEntry, files *[]string) error {
	for _, e := range entries {
		rel, ok := relativeTo(root, e.Path)
		if !ok {
			return derrors.NewError(derrors.CategoryFetchFailed, "listing entry outside requested tree").
				WithContext("branch", branch).
				WithContext("path", e.Path).
				Build()
		}
		switch e.Type {
		case entryTypeFile:
			*files = append(*files, rel)
		case entryTypeDir:
			children, status, err := c.list(ctx, branch, e.Path)
			if err != nil {
				return err
			}
			if status == http.StatusNotFound {
				return derrors.FetchFailed("listed directory disappeared").
					WithContext("branch", branch).
					WithContext("path", e.Path).
					Build()
			}
			if err := c.walk(ctx, branch, root, children, files); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Client) fetchAll(ctx context.Context, branch, root, dest string, files []string) (fetched, skipped int, err error) {
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFetchParallel)
	for _, rel := range files {
		local := filepath.Join(dest, filepath.FromSlash(rel))
		if _, statErr := os.Stat(local); statErr == nil {
			skipped++
			continue
		}
		g.Go(func() error {
			target := c.RawURL(branch, path.Join(root, rel))
			status, ferr := c.FetchFile(gctx, target, local)
			if ferr != nil {
				return ferr
			}
			if status == http.StatusNotFound {
				slog.Warn("Listed file missing on remote", logfields.Branch(branch), logfields.URL(target))
				return nil
			}
			mu.Lock()
			fetched++
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return fetched, skipped, err
}

func (c *Client) list(ctx context.Context, branch, dir string) ([]listEntry, int, error) {
	target := c.listURL(branch, dir)
	var (
		entries []listEntry
		status  int
	)
	err := c.policy.Do(ctx, "list", func(ctx context.Context) error {
		var err error
		entries, status, err = c.listOnce(ctx, target)
		return err
	})
	return entries, status, err
}

func (c *Client) listOnce(ctx context.Context, target string) ([]listEntry, int, error) {
	resp, cancel, err := c.do(ctx, http.MethodGet, target)
	if err != nil {
		return nil, 0, derrors.FetchFailed("failed to list remote directory").
			WithCause(err).
			WithContext("url", target).
			Build()
	}
	defer cancel()
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, http.StatusNotFound, nil
	default:
		return nil, 0, derrors.FetchFailed("unexpected listing status").
			WithContext("url", target).
			WithContext("status", resp.StatusCode).
			Build()
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxListingBytes+1))
	if err != nil {
		return nil, 0, derrors.FetchFailed("failed to read listing").WithCause(err).WithContext("url", target).Build()
	}
	if len(data) > maxListingBytes {
		return nil, 0, derrors.FetchFailed("listing too large").WithContext("url", target).Build()
	}
	var entries []listEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		// The contents API answers a file path with an object rather than a list.
		var single listEntry
		if json.Unmarshal(data, &single) == nil && single.Type == entryTypeFile {
			return nil, 0, derrors.NewError(derrors.CategoryFetchFailed, "listing target is a file").WithContext("url", target).Build()
		}
		return nil, 0, derrors.NewError(derrors.CategoryFetchFailed, "malformed listing").
			WithCause(err).
			WithContext("url", target).
			Build()
	}
	return entries, http.StatusOK, nil
}

func relativeTo(root, p string) (string, bool) {
	p = strings.Trim(p, "/")
	rel := p
	if root != "" {
		rel = strings.TrimPrefix(p, root+"/")
		if rel == p {
			return "", false
		}
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", false
		}
	}
	return rel, true
}

var _ TreeSource = (*Client)(nil)
