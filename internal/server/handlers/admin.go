package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"git.home.luguber.info/inful/distbuilder/internal/eventstore"
	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/server/responses"
)

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

// EventLister reads recorded events.
type EventLister interface {
	Recent(ctx context.Context, limit int) ([]eventstore.Event, error)
}

// BranchView is the per-branch activity read model.
type BranchView interface {
	Branches() []eventstore.BranchActivity
	Forget(branch string)
	LastSyncTime() time.Time
}

// CachePurger administers the artifact cache.
type CachePurger interface {
	Purge(branch string) error
	PurgeAll() (int, error)
	Branches() ([]string, error)
}

// AdminHandlers serve the operator surface. Events and branches are optional.
type AdminHandlers struct {
	cache        CachePurger
	events       EventLister
	branches     BranchView
	errorAdapter *derrors.HTTPErrorAdapter
}

// NewAdminHandlers creates the admin handlers. events and branches may be nil.
func NewAdminHandlers(cache CachePurger, events EventLister, branches BranchView, adapter *derrors.HTTPErrorAdapter) *AdminHandlers {
	return &AdminHandlers{cache: cache, events: events, branches: branches, errorAdapter: adapter}
}

// HandleEvents lists recent pipeline events.
func (h *AdminHandlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodGet) {
		return
	}
	if h.events == nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.NotFound("Event history is disabled").Build())
		return
	}
	limit := defaultEventLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > maxEventLimit {
			h.errorAdapter.WriteErrorResponse(w, r, derrors.InvalidRequest("limit must be between 1 and "+strconv.Itoa(maxEventLimit)).
				WithContext("limit", s).
				Build())
			return
		}
		limit = n
	}

	events, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	resp := responses.EventsResponse{Events: make([]responses.EventView, 0, len(events)), Count: len(events)}
	for _, e := range events {
		resp.Events = append(resp.Events, responses.EventView{
			ID:        e.ID(),
			RequestID: e.RequestID(),
			Type:      e.Type(),
			Timestamp: e.Timestamp(),
			Payload:   json.RawMessage(e.Payload()),
			Metadata:  e.Metadata(),
		})
	}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.WrapError(err, derrors.CategoryInternal, "failed to encode events").Build())
	}
}

// HandleBranches reports per-branch activity and the branches currently cached.
func (h *AdminHandlers) HandleBranches(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodGet) {
		return
	}
	cached, err := h.cache.Branches()
	if err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}
	resp := responses.BranchesResponse{Branches: []eventstore.BranchActivity{}, CachedOnDisk: cached}
	if resp.CachedOnDisk == nil {
		resp.CachedOnDisk = []string{}
	}
	if h.branches != nil {
		resp.Branches = h.branches.Branches()
		resp.LastSync = h.branches.LastSyncTime()
	}
	if err := writeJSONPretty(w, r, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.WrapError(err, derrors.CategoryInternal, "failed to encode branches").Build())
	}
}

// HandlePurge removes one branch (?branch=) or every branch from the cache.
func (h *AdminHandlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(h.errorAdapter, w, r, http.MethodPost) {
		return
	}
	resp := responses.PurgeResponse{Status: "purged"}
	if branch := r.URL.Query().Get("branch"); branch != "" {
		if err := h.cache.Purge(branch); err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
		if h.branches != nil {
			h.branches.Forget(branch)
		}
		resp.Branches = []string{branch}
		resp.Count = 1
	} else {
		before, _ := h.cache.Branches()
		n, err := h.cache.PurgeAll()
		if err != nil {
			h.errorAdapter.WriteErrorResponse(w, r, err)
			return
		}
		if h.branches != nil {
			for _, b := range before {
				h.branches.Forget(b)
			}
		}
		resp.Branches = before
		resp.Count = n
	}
	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		h.errorAdapter.WriteErrorResponse(w, r, derrors.WrapError(err, derrors.CategoryInternal, "failed to encode purge result").Build())
	}
}
