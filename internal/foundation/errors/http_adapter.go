package errors

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// GenericFailureMessage is the only text a caller sees for server-side failures.
const GenericFailureMessage = "Something went wrong. Please contact support if this happens repeatedly."

// IncidentRecorder persists diagnostic detail for a failure.
type IncidentRecorder interface {
	Record(err error, attrs map[string]string) (string, error)
}

// HTTPErrorAdapter is the single boundary that turns pipeline failures into responses.
type HTTPErrorAdapter struct {
	logger    *slog.Logger
	incidents IncidentRecorder
}

// NewHTTPErrorAdapter creates a new HTTP error adapter with an optional slog logger.
// If logger is nil, the default package logger will be used.
func NewHTTPErrorAdapter(logger *slog.Logger) *HTTPErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPErrorAdapter{logger: logger}
}

// WithIncidents attaches a recorder used for failures above NotFound severity.
func (a *HTTPErrorAdapter) WithIncidents(rec IncidentRecorder) *HTTPErrorAdapter {
	a.incidents = rec
	return a
}

// HTTPErrorResponse represents the JSON error payload.
type HTTPErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// StatusCodeFor determines the HTTP status code for a given error based on
// its classification. Unknown errors map to 500.
func (a *HTTPErrorAdapter) StatusCodeFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	switch GetCategory(err) {
	case CategoryInvalidRequest:
		return http.StatusBadRequest
	case CategoryNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FormatErrorResponse builds the payload. Server-side failures never leak their message.
func (a *HTTPErrorAdapter) FormatErrorResponse(err error) HTTPErrorResponse {
	if err == nil {
		return HTTPErrorResponse{}
	}
	c, ok := AsClassified(err)
	if !ok {
		return HTTPErrorResponse{Error: GenericFailureMessage, Code: string(CategoryInternal)}
	}
	if a.StatusCodeFor(err) == http.StatusInternalServerError {
		return HTTPErrorResponse{Error: GenericFailureMessage, Code: string(c.Category()), Retryable: c.IsTransient()}
	}
	return HTTPErrorResponse{Error: c.Message(), Code: string(c.Category())}
}

// WriteErrorResponse writes a JSON error response, logs it and records an incident
// for anything more severe than NotFound.
func (a *HTTPErrorAdapter) WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	status := a.StatusCodeFor(err)
	payload := a.FormatErrorResponse(err)

	attrs := []any{slog.Int("status", status), slog.String("error", err.Error())}
	if r != nil {
		attrs = append(attrs, slog.String("path", r.URL.Path))
	}

	if status >= http.StatusInternalServerError {
		a.logger.Error("Request failed", attrs...)
		if a.incidents != nil {
			meta := map[string]string{"status": http.StatusText(status)}
			if r != nil {
				meta["path"] = r.URL.RequestURI()
			}
			if path, ierr := a.incidents.Record(err, meta); ierr != nil {
				a.logger.Error("Failed to write incident record", slog.String("error", ierr.Error()))
			} else {
				a.logger.Debug("Incident recorded", slog.String("file", path))
			}
		}
	} else {
		a.logger.Info("Request rejected", attrs...)
	}

	b, jerr := json.Marshal(payload)
	if jerr != nil {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("{\"error\":\"internal error\"}"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}
