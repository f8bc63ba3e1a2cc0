package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"git.home.luguber.info/inful/distbuilder/internal/cache"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// TreeSource clones a branch into memory and copies one of its directories out.
type TreeSource struct {
	url     string
	token   string
	depth   int
	timeout time.Duration
}

// Option configures a TreeSource.
type Option func(*TreeSource)

// WithToken authenticates HTTPS clones with a personal access token.
func WithToken(token string) Option { return func(s *TreeSource) { s.token = token } }

// WithDepth sets the clone depth; 0 fetches full history.
func WithDepth(depth int) Option { return func(s *TreeSource) { s.depth = depth } }

// WithTimeout bounds a single clone. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(s *TreeSource) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewTreeSource creates a source for the repository at url.
func NewTreeSource(url string, opts ...Option) *TreeSource {
	s := &TreeSource{url: url, depth: 1, timeout: 2 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FetchTree writes every file below subpath of branch into dest, skipping files
// already present. branch may name a branch or a tag.
func (s *TreeSource) FetchTree(ctx context.Context, branch, subpath, dest string) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	repo, err := s.clone(ctx, branch)
	if err != nil {
		return err
	}
	commit, err := headCommit(repo)
	if err != nil {
		return derrors.FetchFailed("failed to resolve cloned head").
			WithCause(err).
			WithContext("branch", branch).
			Build()
	}
	root, err := commit.Tree()
	if err != nil {
		return derrors.FetchFailed("failed to read commit tree").WithCause(err).WithContext("branch", branch).Build()
	}

	dir := strings.Trim(path.Clean("/"+subpath), "/")
	tree := root
	if dir != "" {
		tree, err = root.Tree(dir)
		if errors.Is(err, object.ErrDirectoryNotFound) || errors.Is(err, object.ErrEntryNotFound) {
			return derrors.NotFound(fmt.Sprintf("Could not find %s/%s", branch, dir)).
				WithContext("branch", branch).
				WithContext("path", dir).
				Build()
		}
		if err != nil {
			return derrors.FetchFailed("failed to read subtree").WithCause(err).WithContext("path", dir).Build()
		}
	}

	written, present := 0, 0
	err = tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		local := filepath.Join(dest, filepath.FromSlash(f.Name))
		if _, statErr := os.Stat(local); statErr == nil {
			present++
			return nil
		}
		if err := writeBlob(f, local); err != nil {
			return err
		}
		written++
		return nil
	})
	if err != nil {
		if derrors.IsClassified(err) {
			return err
		}
		return derrors.FetchFailed("failed to copy tree").WithCause(err).WithContext("branch", branch).Build()
	}

	slog.Info("Mirrored git tree",
		logfields.Branch(branch),
		logfields.Path(dir),
		slog.String("commit", commit.Hash.String()[:8]),
		slog.Int("fetched", written),
		slog.Int("present", present),
		logfields.Duration(time.Since(start)))
	return nil
}

func (s *TreeSource) clone(ctx context.Context, branch string) (*git.Repository, error) {
	refs := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(branch),
		plumbing.NewTagReferenceName(branch),
	}
	var lastErr error
	for _, ref := range refs {
		opts := &git.CloneOptions{
			URL:           s.url,
			ReferenceName: ref,
			SingleBranch:  true,
			Depth:         s.depth,
		}
		if s.token != "" {
			opts.Auth = &http.BasicAuth{Username: "x-access-token", Password: s.token}
		}
		slog.Debug("Cloning remote", logfields.URL(s.url), logfields.Branch(branch), slog.String("ref", ref.String()))
		repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, opts)
		if err == nil {
			return repo, nil
		}
		if !isRefNotFound(err) {
			return nil, classifyCloneError(s.url, branch, err)
		}
		lastErr = err
	}
	return nil, derrors.NotFound("Could not find branch " + branch).
		WithCause(lastErr).
		WithContext("branch", branch).
		Build()
}

func headCommit(repo *git.Repository) (*object.Commit, error) {
	head, err := repo.Head()
	if err != nil {
		return nil, err
	}
	if commit, err := repo.CommitObject(head.Hash()); err == nil {
		return commit, nil
	}
	tag, err := repo.TagObject(head.Hash())
	if err != nil {
		return nil, err
	}
	return tag.Commit()
}

func writeBlob(f *object.File, local string) error {
	r, err := f.Reader()
	if err != nil {
		return derrors.FetchFailed("failed to open blob").WithCause(err).WithContext("path", f.Name).Build()
	}
	defer func() { _ = r.Close() }()
	if _, err := cache.WriteFileAtomic(local, r); err != nil {
		if derrors.IsClassified(err) {
			return err
		}
		return derrors.FetchFailed("failed to copy blob").WithCause(err).WithContext("path", f.Name).Build()
	}
	return nil
}

func isRefNotFound(err error) bool {
	if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, git.NoMatchingRefSpecError{}) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "couldn't find remote ref")
}

// classifyCloneError maps go-git failures onto the error taxonomy.
func classifyCloneError(url, branch string, err error) error {
	switch {
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return derrors.ConfigError("git remote does not exist").
			WithCause(err).
			WithContext("url", url).
			Build()
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return derrors.ConfigError("git remote rejected credentials").
			WithCause(err).
			WithContext("url", url).
			Build()
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return derrors.NotFound("Could not find branch " + branch).WithCause(err).WithContext("branch", branch).Build()
	}
	return derrors.UpstreamUnavailable("git clone failed").
		WithCause(err).
		WithContext("url", url).
		WithContext("branch", branch).
		Build()
}
