package eventstore

import (
	"context"
	"log/slog"

	derrors "git.home.luguber.info/inful/distbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/pipeline"
)

// Sink records pipeline outcomes as events and feeds the projection.
type Sink struct {
	store      Store
	projection *BranchActivityProjection
}

// NewSink creates a sink. projection may be nil.
func NewSink(store Store, projection *BranchActivityProjection) *Sink {
	return &Sink{store: store, projection: projection}
}

// Observe implements pipeline.Observer. Failures to record are logged only.
func (s *Sink) Observe(ctx context.Context, o pipeline.Outcome) {
	event, err := toEvent(o)
	if err != nil {
		slog.Warn("Failed to encode pipeline event", logfields.Error(err))
		return
	}
	if err := s.store.Append(ctx, event.RequestID(), event.Type(), event.Payload(), metadataFor(o)); err != nil {
		slog.Warn("Failed to record pipeline event", logfields.Error(err))
		return
	}
	if s.projection != nil {
		s.projection.Apply(event)
	}
}

func toEvent(o pipeline.Outcome) (Event, error) {
	if o.Failed() {
		return NewResolutionFailed(o.ID, o.Time, ResolutionFailedData{
			Path:       o.Path,
			Branch:     o.Request.Branch,
			Category:   string(derrors.GetCategory(o.Err)),
			Error:      o.Err.Error(),
			DurationMS: o.Duration.Milliseconds(),
		})
	}
	return NewArtifactResolved(o.ID, o.Time, ArtifactResolvedData{
		Path:       o.Path,
		Branch:     o.Request.Branch,
		File:       o.Request.File,
		Type:       string(o.Request.Type),
		Origin:     string(o.Origin),
		DurationMS: o.Duration.Milliseconds(),
	})
}

func metadataFor(o pipeline.Outcome) map[string]string {
	if o.Request.Branch == "" {
		return nil
	}
	return map[string]string{"branch": o.Request.Branch}
}

var _ pipeline.Observer = (*Sink)(nil)
