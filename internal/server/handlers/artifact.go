package handlers

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/markdown"
	"git.home.luguber.info/inful/distbuilder/internal/pipeline"
	"git.home.luguber.info/inful/distbuilder/internal/server/responses"
)

//go:embed index.md
var defaultIndex []byte

// Resolver turns a request path into an artifact. *pipeline.Pipeline satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, path string, q pipeline.Query) (pipeline.Artifact, error)
}

// ArtifactHandlers serve the public surface.
type ArtifactHandlers struct {
	resolver     Resolver
	errorAdapter *derrors.HTTPErrorAdapter
	index        []byte
	favicon      string
	version      string
	started      time.Time
	cleanup      func(pipeline.Artifact) error
}

// ArtifactOptions configures ArtifactHandlers.
type ArtifactOptions struct {
	// IndexFile is a markdown file rendered at "/". Empty uses the built-in page.
	IndexFile string
	Favicon   string
	Version   string
}

// NewArtifactHandlers renders the index page once and returns the handlers.
func NewArtifactHandlers(resolver Resolver, adapter *derrors.HTTPErrorAdapter, opts ArtifactOptions) (*ArtifactHandlers, error) {
	src := defaultIndex
	if opts.IndexFile != "" {
		// #nosec G304 - path comes from the operator
		b, err := os.ReadFile(opts.IndexFile)
		if err != nil {
			return nil, derrors.ConfigError("read index page").WithCause(err).WithContext("path", opts.IndexFile).Build()
		}
		src = b
	}
	page, err := markdown.Render(src)
	if err != nil {
		return nil, derrors.ConfigError("render index page").WithCause(err).WithContext("path", opts.IndexFile).Build()
	}
	return &ArtifactHandlers{
		resolver:     resolver,
		errorAdapter: adapter,
		index:        markdown.Document(page),
		favicon:      opts.Favicon,
		version:      opts.Version,
		started:      time.Now(),
		cleanup:      pipeline.Cleanup,
	}, nil
}

// HandleHealth reports liveness.
func (h *ArtifactHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := responses.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Uptime:    time.Since(h.started).Seconds(),
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.WrapError(err, derrors.CategoryInternal, "failed to encode health").Build())
	}
}

// HandleFavicon serves the configured icon.
func (h *ArtifactHandlers) HandleFavicon(w http.ResponseWriter, r *http.Request) {
	if h.favicon == "" {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.NotFound("No favicon configured").Build())
		return
	}
	h.serveFile(w, r, h.favicon)
}

// HandleRoot serves "/": a custom build when parts is present, the index page otherwise.
func (h *ArtifactHandlers) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodGet, http.MethodHead) {
		return
	}
	if r.URL.Query().Get("parts") != "" {
		h.HandleArtifact(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(h.index)
}

// HandleArtifact resolves the request path through the pipeline and streams the
// artifact. Delete-after-serve artifacts are removed once the response is written.
func (h *ArtifactHandlers) HandleArtifact(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodGet, http.MethodHead) {
		return
	}
	q, err := parseQuery(r)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	art, err := h.resolver.Resolve(r.Context(), r.URL.Path, q)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	defer func() {
		if cerr := h.cleanup(art); cerr != nil {
			slog.Warn("Failed to remove served artifact", logfields.Path(art.Path), logfields.Error(cerr))
		}
	}()
	if art.Delete {
		w.Header().Set("Cache-Control", "no-store")
	}
	h.serveFile(w, r, art.Path)
}

func (h *ArtifactHandlers) serveFile(w http.ResponseWriter, r *http.Request, path string) {
	f, err := os.Open(path) // #nosec G304 - path resolved inside the cache root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = derrors.NotFound("Could not find file " + filepath.Base(path)).WithCause(err).Build()
		} else {
			err = derrors.InternalIO("open artifact").WithCause(err).WithContext("path", path).Build()
		}
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.InternalIO("stat artifact").WithCause(err).WithContext("path", path).Build())
		return
	}
	http.ServeContent(w, r, filepath.Base(path), st.ModTime(), f)
}

func parseQuery(r *http.Request) (pipeline.Query, error) {
	v := r.URL.Query()
	q := pipeline.Query{Parts: v.Get("parts")}
	if c := v.Get("compile"); c != "" {
		b, err := strconv.ParseBool(c)
		if err != nil {
			return q, derrors.InvalidRequest("Invalid compile flag " + strconv.Quote(c)).WithCause(err).Build()
		}
		q.Compile = b
	}
	return q, nil
}
