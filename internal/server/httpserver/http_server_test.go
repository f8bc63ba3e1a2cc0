package httpserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/distbuilder/internal/cache"
	"git.home.luguber.info/inful/distbuilder/internal/config"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
	"git.home.luguber.info/inful/distbuilder/internal/pipeline"
)

type fileResolver struct{ dir string }

func (f fileResolver) Resolve(_ context.Context, path string, _ pipeline.Query) (pipeline.Artifact, error) {
	p := filepath.Join(f.dir, filepath.Base(path))
	if _, err := os.Stat(p); err != nil {
		return pipeline.Artifact{}, derrors.NotFound("Could not find file " + path).Build()
	}
	return pipeline.Artifact{Path: p, Origin: pipeline.OriginCache}, nil
}

type recordingIncidents struct{ n int }

func (r *recordingIncidents) Record(error, map[string]string) (string, error) {
	r.n++
	return "incident.log", nil
}

func newTestServer(t *testing.T, cfg config.ServerConfig, opts Options) (*Server, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "highcharts.js"), []byte("var Highcharts;"), 0o600))
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	if opts.Resolver == nil {
		opts.Resolver = fileResolver{dir: dir}
	}
	opts.Cache = c
	s, err := New(cfg, opts)
	require.NoError(t, err)
	return s, dir
}

func TestPublicRoutes(t *testing.T) {
	s, _ := newTestServer(t, config.ServerConfig{}, Options{})
	srv := httptest.NewServer(s.PublicHandler())
	defer srv.Close()

	tests := []struct {
		path   string
		status int
	}{
		{"/health", http.StatusOK},
		{"/", http.StatusOK},
		{"/favicon.ico", http.StatusNotFound},
		{"/stable/highcharts.js", http.StatusOK},
		{"/stable/missing.js", http.StatusNotFound},
		{"/api/events", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestAdminRoutes(t *testing.T) {
	reg := metrics.NewRegistry()
	s, _ := newTestServer(t, config.ServerConfig{}, Options{
		Recorder:          metrics.NewPrometheusRecorder(reg),
		PrometheusHandler: metrics.HTTPHandler(reg),
	})
	public := httptest.NewServer(s.PublicHandler())
	defer public.Close()
	admin := httptest.NewServer(s.AdminHandler())
	defer admin.Close()

	resp, err := http.Get(public.URL + "/stable/highcharts.js")
	require.NoError(t, err)
	_ = resp.Body.Close()

	resp, err = http.Get(admin.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "distbuilder_http_request_duration_seconds_count")

	resp, err = http.Post(admin.URL+"/api/purge?branch=stable", "", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(admin.URL + "/api/events")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "event history disabled")
}

func TestServerErrorRecordsIncident(t *testing.T) {
	incidents := &recordingIncidents{}
	s, _ := newTestServer(t, config.ServerConfig{}, Options{
		Resolver:  failingResolver{},
		Incidents: incidents,
	})
	srv := httptest.NewServer(s.PublicHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stable/highcharts.js")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, incidents.n)
}

type failingResolver struct{}

func (failingResolver) Resolve(context.Context, string, pipeline.Query) (pipeline.Artifact, error) {
	return pipeline.Artifact{}, derrors.BuildFailed("builder exited 1").Build()
}

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestStartStop(t *testing.T) {
	cfg := config.ServerConfig{Addr: freeAddr(t), AdminAddr: freeAddr(t)}
	s, _ := newTestServer(t, cfg, Options{})

	require.NoError(t, s.Start(t.Context()))
	resp, err := http.Get("http://" + cfg.Addr + "/stable/highcharts.js")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "var Highcharts;", string(body))

	resp, err = http.Get("http://" + cfg.AdminAddr + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
}

func TestStartFailsWhenPortTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	free := freeAddr(t)
	s, _ := newTestServer(t, config.ServerConfig{Addr: free, AdminAddr: ln.Addr().String()}, Options{})
	err = s.Start(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin listener")

	// The public listener bound before the failure must have been released.
	again, err := net.Listen("tcp", free)
	require.NoError(t, err)
	_ = again.Close()
}
