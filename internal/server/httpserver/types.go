package httpserver

import (
	"net/http"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/metrics"
	"git.home.luguber.info/inful/distbuilder/internal/server/handlers"
)

// Options wires the server to the rest of the service.
type Options struct {
	Resolver handlers.Resolver
	Cache    handlers.CachePurger

	// Optional: event history and per-branch activity on the admin listener.
	Events   handlers.EventLister
	Branches handlers.BranchView

	// Optional: metrics.
	Recorder          metrics.Recorder
	PrometheusHandler http.Handler

	// Optional: incident records for 5xx responses.
	Incidents derrors.IncidentRecorder

	Version string
}
