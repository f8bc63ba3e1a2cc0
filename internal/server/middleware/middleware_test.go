package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
)

type requestRecorder struct {
	metrics.NoopRecorder
	mu       sync.Mutex
	statuses []int
}

func (r *requestRecorder) ObserveRequest(status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func TestChain_RecordsStatus(t *testing.T) {
	rec := &requestRecorder{}
	h := Chain(slog.Default(), derrors.NewHTTPErrorAdapter(nil), rec)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stable/highcharts.js", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, []int{http.StatusTeapot}, rec.statuses)
}

func TestChain_RecoversPanic(t *testing.T) {
	rec := &requestRecorder{}
	h := Chain(slog.Default(), derrors.NewHTTPErrorAdapter(nil), rec)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body derrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, derrors.GenericFailureMessage, body.Error)
	assert.NotContains(t, w.Body.String(), "boom")
	assert.Equal(t, []int{http.StatusInternalServerError}, rec.statuses)
}
