// Package httpserver runs the public artifact listener and the optional admin listener.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/server/handlers"
	smw "git.home.luguber.info/inful/distbuilder/internal/server/middleware"
)

// Server manages the HTTP endpoints (public artifacts, admin).
type Server struct {
	publicServer *http.Server
	adminServer  *http.Server
	cfg          config.ServerConfig
	errorAdapter *derrors.HTTPErrorAdapter

	artifactHandlers *handlers.ArtifactHandlers
	adminHandlers    *handlers.AdminHandlers
	prometheus       http.Handler

	mchain func(http.Handler) http.Handler
}

// New constructs the server. It fails when the index page cannot be rendered.
func New(cfg config.ServerConfig, opts Options) (*Server, error) {
	adapter := derrors.NewHTTPErrorAdapter(slog.Default())
	if opts.Incidents != nil {
		adapter = adapter.WithIncidents(opts.Incidents)
	}
	artifacts, err := handlers.NewArtifactHandlers(opts.Resolver, adapter, handlers.ArtifactOptions{
		IndexFile: cfg.IndexFile,
		Favicon:   cfg.Favicon,
		Version:   opts.Version,
	})
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:              cfg,
		errorAdapter:     adapter,
		artifactHandlers: artifacts,
		adminHandlers:    handlers.NewAdminHandlers(opts.Cache, opts.Events, opts.Branches, adapter),
		prometheus:       opts.PrometheusHandler,
		mchain:           smw.Chain(slog.Default(), adapter, opts.Recorder),
	}, nil
}

// PublicHandler returns the public mux wrapped in the middleware chain.
func (s *Server) PublicHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.artifactHandlers.HandleHealth)
	mux.HandleFunc("/favicon.ico", s.artifactHandlers.HandleFavicon)
	mux.HandleFunc("/{$}", s.artifactHandlers.HandleRoot)
	mux.HandleFunc("/", s.artifactHandlers.HandleArtifact)
	return s.mchain(mux)
}

// AdminHandler returns the admin mux wrapped in the middleware chain.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.artifactHandlers.HandleHealth)
	if s.prometheus != nil {
		mux.Handle("/metrics", s.prometheus)
	}
	mux.HandleFunc("/api/events", s.adminHandlers.HandleEvents)
	mux.HandleFunc("/api/branches", s.adminHandlers.HandleBranches)
	mux.HandleFunc("/api/purge", s.adminHandlers.HandlePurge)
	return s.mchain(mux)
}

// Start binds every listener first so a port conflict fails startup as a whole,
// then serves in the background.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		addr string
		ln   net.Listener
	}
	binds := []preBind{{name: "public", addr: s.cfg.Addr}}
	if s.cfg.AdminAddr != "" {
		binds = append(binds, preBind{name: "admin", addr: s.cfg.AdminAddr})
	}

	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		ln, err := lc.Listen(ctx, "tcp", binds[i].addr)
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s listener %s: %w", binds[i].name, binds[i].addr, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	// Builds can take minutes, so the public write timeout is generous.
	s.publicServer = &http.Server{Handler: s.PublicHandler(), ReadHeaderTimeout: 10 * time.Second, IdleTimeout: 120 * time.Second}
	s.startServerWithListener("public", s.publicServer, binds[0].ln)
	attrs := []any{slog.String("addr", binds[0].ln.Addr().String())}

	if len(binds) > 1 {
		s.adminServer = &http.Server{Handler: s.AdminHandler(), ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second, IdleTimeout: 120 * time.Second}
		s.startServerWithListener("admin", s.adminServer, binds[1].ln)
		attrs = append(attrs, slog.String("admin_addr", binds[1].ln.Addr().String()))
	}
	slog.Info("HTTP servers started", attrs...)
	return nil
}

// Stop gracefully shuts down all HTTP servers, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.publicServer != nil {
		if err := s.publicServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("public server shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	slog.Info("HTTP servers stopped")
	return nil
}

func (s *Server) startServerWithListener(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s server error", kind), logfields.Error(err))
		}
	}()
}
