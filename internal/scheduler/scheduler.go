// Package scheduler runs the periodic background tasks: flushing packet
// counters to the store and daily capture retention cleanup.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tilehook-project/tilehook/internal/capture"
	"github.com/tilehook-project/tilehook/internal/config"
	"github.com/tilehook-project/tilehook/internal/db"
	"github.com/tilehook-project/tilehook/internal/events"
	"github.com/tilehook-project/tilehook/internal/telemetry"
	"github.com/tilehook-project/tilehook/internal/util"
)

// Store is the persistence the scheduler writes to.
type Store interface {
	AddKindStats(deltas []db.KindStat, at time.Time) error
	DeleteCapturesBefore(cutoff time.Time) (int64, error)
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	stats    *telemetry.Stats
	store    Store
}

// NewScheduler creates a new task scheduler. store may be nil, in which
// case counters are not persisted.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, stats *telemetry.Stats, store Store) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		stats:    stats,
		store:    store,
	}
}

// Start runs all scheduled tasks until ctx is cancelled. Counters are
// flushed one final time on shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	log.Info().Msg("scheduler started")

	if s.cfg.GetCapture().RetentionDays > 0 {
		go s.runCaptureCleanerLoop(ctx)
	}

	interval := time.Duration(s.cfg.GetTimers().StatsFlushInterval) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if _, err := s.FlushStats(time.Now()); err != nil {
				log.Warn().Err(err).Msg("final stats flush failed")
			}
			log.Info().Msg("scheduler stopped")
			return
		case now := <-ticker.C:
			if _, err := s.FlushStats(now); err != nil {
				log.Warn().Err(err).Msg("stats flush failed")
			}
		}
	}
}

// FlushStats writes counter changes since the last flush to the store and
// returns the number of rows written.
func (s *Scheduler) FlushStats(now time.Time) (int, error) {
	if s.store == nil || s.stats == nil {
		return 0, nil
	}
	delta := s.stats.Delta()
	if len(delta) == 0 {
		return 0, nil
	}

	rows := make([]db.KindStat, 0, len(delta))
	for _, d := range delta {
		rows = append(rows, db.KindStat{
			Kind:      uint8(d.Kind),
			Side:      d.Side.String(),
			Decoded:   d.Decoded,
			Encoded:   d.Encoded,
			Errors:    d.Errors,
			Unknown:   d.Unknown,
			Dropped:   d.Dropped,
			Rewritten: d.Rewritten,
		})
	}
	if err := s.store.AddKindStats(rows, now); err != nil {
		return 0, fmt.Errorf("failed to persist %d stat rows: %w", len(rows), err)
	}

	log.Debug().Int("rows", len(rows)).Msg("stats flushed")
	s.emit(events.EventStatsFlushed, events.StatsFlushedPayload{Rows: len(rows), At: now})
	return len(rows), nil
}

// runCaptureCleanerLoop runs the capture cleaner at the configured time.
func (s *Scheduler) runCaptureCleanerLoop(ctx context.Context) {
	for {
		nextRun := NextRunTime(s.cfg.GetCapture().CleanupTime, time.Now())
		sleepDuration := time.Until(nextRun)
		if sleepDuration <= 0 {
			sleepDuration = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleepDuration).
			Msg("capture cleaner scheduled")

		select {
		case <-ctx.Done():
			return
		case now := <-time.After(sleepDuration):
			if _, err := s.CleanupCaptures(now); err != nil {
				log.Warn().Err(err).Msg("capture cleaner encountered errors")
			}
		}
	}
}

// CleanupCaptures removes capture files and index rows older than the
// retention period.
func (s *Scheduler) CleanupCaptures(now time.Time) (capture.CleanupResult, error) {
	cfg := s.cfg.GetCapture()
	if cfg.RetentionDays <= 0 {
		return capture.CleanupResult{}, nil
	}
	cutoff := now.Add(-time.Duration(cfg.RetentionDays) * 24 * time.Hour)

	log.Info().
		Str("directory", cfg.Directory).
		Int("retention_days", cfg.RetentionDays).
		Msg("running capture cleaner")

	res, err := capture.CleanupOld(cfg.Directory, cutoff)
	if err != nil {
		return res, err
	}
	if s.store != nil {
		if _, err := s.store.DeleteCapturesBefore(cutoff); err != nil {
			log.Warn().Err(err).Msg("failed to prune capture index")
		}
	}

	log.Info().
		Int("deleted_files", res.Removed).
		Str("freed_space", util.FormatBytes(res.FreedBytes)).
		Msg("capture cleaner completed")

	s.emit(events.EventCaptureCleaned, events.CaptureCleanedPayload{
		Removed:    res.Removed,
		FreedBytes: res.FreedBytes,
	})
	return res, nil
}

func (s *Scheduler) emit(t events.EventType, payload interface{}) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Emit(context.Background(), events.NewEvent(t, "scheduler", payload))
}

// NextRunTime returns the next occurrence of an "HH:MM" wall-clock time
// after now. Unparseable values fall back to 04:00.
func NextRunTime(clock string, now time.Time) time.Time {
	parts := strings.Split(clock, ":")

	hour, minute := 4, 0
	if len(parts) >= 2 {
		var h, m int
		if _, err := fmt.Sscanf(parts[0], "%d", &h); err == nil && h >= 0 && h < 24 {
			if _, err := fmt.Sscanf(parts[1], "%d", &m); err == nil && m >= 0 && m < 60 {
				hour, minute = h, m
			}
		}
	}

	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
