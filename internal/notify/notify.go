// Package notify publishes artifact notifications to NATS so downstream
// consumers (CDN warmers, changelog bots) learn about freshly built files.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/distbuilder/internal/config"
	"git.home.luguber.info/inful/distbuilder/internal/logfields"
	"git.home.luguber.info/inful/distbuilder/internal/pipeline"
)

// Publisher sends a payload on a subject. *nats.Conn satisfies it.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// ArtifactEvent is the JSON message published for every new artifact.
type ArtifactEvent struct {
	RequestID  string    `json:"request_id"`
	Path       string    `json:"path"`
	Branch     string    `json:"branch,omitempty"`
	File       string    `json:"file,omitempty"`
	Type       string    `json:"type,omitempty"`
	Origin     string    `json:"origin"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// Notifier is a pipeline.Observer that announces built artifacts.
type Notifier struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

// New wraps an existing publisher.
func New(pub Publisher, subject string) *Notifier {
	return &Notifier{pub: pub, subject: subject}
}

// Connect dials NATS. An empty URL yields a nil notifier, which callers treat
// as disabled.
func Connect(cfg config.NotifyConfig) (*Notifier, error) {
	if cfg.NATSURL == "" {
		return nil, nil
	}
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("distbuilder"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS notifier connected", logfields.URL(cfg.NATSURL), slog.String("subject", cfg.Subject))
	n := New(conn, cfg.Subject)
	n.conn = conn
	return n, nil
}

// Observe implements pipeline.Observer. Only newly produced artifacts are
// announced; cache hits and failures are not.
func (n *Notifier) Observe(_ context.Context, o pipeline.Outcome) {
	if n == nil || o.Failed() {
		return
	}
	if o.Origin != pipeline.OriginBuilt && o.Origin != pipeline.OriginDownload {
		return
	}
	data, err := json.Marshal(ArtifactEvent{
		RequestID:  o.ID,
		Path:       o.Path,
		Branch:     o.Request.Branch,
		File:       o.Request.File,
		Type:       string(o.Request.Type),
		Origin:     string(o.Origin),
		DurationMS: o.Duration.Milliseconds(),
		Timestamp:  o.Time,
	})
	if err != nil {
		slog.Warn("Failed to encode artifact notification", logfields.Error(err))
		return
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		slog.Warn("Failed to publish artifact notification", logfields.Path(o.Path), logfields.Error(err))
		return
	}
	slog.Debug("Published artifact notification", logfields.Path(o.Path), slog.String("subject", n.subject))
}

// Close drains the connection when Connect created it.
func (n *Notifier) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

var _ pipeline.Observer = (*Notifier)(nil)
