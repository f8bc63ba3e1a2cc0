package eventstore

import (
	"encoding/json"
	"time"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
)

// Event type names.
const (
	TypeArtifactResolved = "ArtifactResolved"
	TypeResolutionFailed = "ResolutionFailed"
)

// ArtifactResolvedData is the payload of an ArtifactResolved event.
type ArtifactResolvedData struct {
	Path       string `json:"path"`
	Branch     string `json:"branch,omitempty"`
	File       string `json:"file,omitempty"`
	Type       string `json:"type,omitempty"`
	Origin     string `json:"origin"`
	DurationMS int64  `json:"duration_ms"`
}

// ArtifactResolved is emitted when a request produced an artifact.
type ArtifactResolved struct {
	BaseEvent
	Data ArtifactResolvedData
}

// NewArtifactResolved creates an ArtifactResolved event.
func NewArtifactResolved(requestID string, at time.Time, data ArtifactResolvedData) (*ArtifactResolved, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, derrors.InternalError("failed to marshal ArtifactResolved payload").
			WithCause(err).
			WithContext("request_id", requestID).
			Build()
	}
	return &ArtifactResolved{
		BaseEvent: BaseEvent{
			EventRequestID: requestID,
			EventType:      TypeArtifactResolved,
			EventTimestamp: at,
			EventPayload:   payload,
		},
		Data: data,
	}, nil
}

// ResolutionFailedData is the payload of a ResolutionFailed event.
type ResolutionFailedData struct {
	Path       string `json:"path"`
	Branch     string `json:"branch,omitempty"`
	Category   string `json:"category"`
	Error      string `json:"error"`
	DurationMS int64  `json:"duration_ms"`
}

// ResolutionFailed is emitted when a request failed.
type ResolutionFailed struct {
	BaseEvent
	Data ResolutionFailedData
}

// NewResolutionFailed creates a ResolutionFailed event.
func NewResolutionFailed(requestID string, at time.Time, data ResolutionFailedData) (*ResolutionFailed, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, derrors.InternalError("failed to marshal ResolutionFailed payload").
			WithCause(err).
			WithContext("request_id", requestID).
			Build()
	}
	return &ResolutionFailed{
		BaseEvent: BaseEvent{
			EventRequestID: requestID,
			EventType:      TypeResolutionFailed,
			EventTimestamp: at,
			EventPayload:   payload,
		},
		Data: data,
	}, nil
}
