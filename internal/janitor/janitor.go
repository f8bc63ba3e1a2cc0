// Package janitor runs periodic cache housekeeping: abandoned custom build
// scratch dirs are removed and, optionally, every branch cache is purged on a
// fixed interval.
package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/distbuilder/internal/logfields"
)

// Cache is the part of the artifact cache the janitor maintains.
type Cache interface {
	DownloadDir() string
	PurgeAll() (int, error)
}

// Config controls the janitor schedule.
type Config struct {
	Interval      time.Duration
	ScratchTTL    time.Duration
	PurgeSchedule time.Duration // zero disables scheduled purges
}

// Janitor wraps a gocron scheduler.
type Janitor struct {
	scheduler gocron.Scheduler
	cache     Cache
	cfg       Config
	onPurge   func()
	now       func() time.Time
}

// New creates a janitor. onPurge, when non-nil, runs after each scheduled purge.
func New(c Cache, cfg Config, onPurge func()) (*Janitor, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	j := &Janitor{scheduler: s, cache: c, cfg: cfg, onPurge: onPurge, now: time.Now}

	if _, err := s.NewJob(
		gocron.DurationJob(cfg.Interval),
		gocron.NewTask(j.sweepTask),
		gocron.WithName("scratch-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("failed to create sweep job: %w", err)
	}

	if cfg.PurgeSchedule > 0 {
		if _, err := s.NewJob(
			gocron.DurationJob(cfg.PurgeSchedule),
			gocron.NewTask(j.Purge),
			gocron.WithName("cache-purge"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		); err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("failed to create purge job: %w", err)
		}
	}
	return j, nil
}

// Start begins the scheduler.
func (j *Janitor) Start(_ context.Context) {
	slog.Info("Starting cache janitor",
		slog.Duration("interval", j.cfg.Interval),
		slog.Duration("scratch_ttl", j.cfg.ScratchTTL),
		slog.Duration("purge_schedule", j.cfg.PurgeSchedule))
	j.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs.
func (j *Janitor) Stop(_ context.Context) error {
	slog.Info("Stopping cache janitor")
	return j.scheduler.Shutdown()
}

func (j *Janitor) sweepTask() {
	if _, err := j.Sweep(); err != nil {
		slog.Warn("Scratch sweep failed", logfields.Error(err))
	}
}

// Sweep removes download scratch entries older than the scratch TTL and
// returns how many were removed.
func (j *Janitor) Sweep() (int, error) {
	dir := j.cache.DownloadDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := j.now().Add(-j.cfg.ScratchTTL)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			slog.Warn("Failed to remove scratch dir", logfields.Path(p), logfields.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		slog.Info("Removed abandoned scratch dirs", slog.Int("count", removed))
	}
	return removed, nil
}

// Purge removes every branch cache.
func (j *Janitor) Purge() {
	n, err := j.cache.PurgeAll()
	if err != nil {
		slog.Error("Scheduled cache purge failed", logfields.Error(err))
		return
	}
	slog.Info("Scheduled cache purge complete", slog.Int("branches", n))
	if j.onPurge != nil {
		j.onPurge()
	}
}
