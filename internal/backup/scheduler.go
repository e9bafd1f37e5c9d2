package backup

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"posevault/internal/notify"
)

// Scheduler drives the three archive triggers. Scheduled and manual runs
// are followed by the retention sweep; the immediate post-ingestion trigger
// deliberately skips it, so only the scheduled and manual paths prune old
// archives. Every trigger ends with a notification dispatch whose failure
// is logged and swallowed.
type Scheduler struct {
	builder  *Builder
	notifier notify.Notifier
	dir      string
	keep     int
	spec     string
	cron     *cron.Cron
}

// NewScheduler creates a Scheduler over the given builder and archive
// directory. keep is the retention threshold; spec is a five-field cron
// expression for the daily trigger.
func NewScheduler(builder *Builder, notifier notify.Notifier, archiveDir, spec string, keep int) *Scheduler {
	return &Scheduler{
		builder:  builder,
		notifier: notifier,
		dir:      archiveDir,
		keep:     keep,
		spec:     spec,
	}
}

// Start registers the daily trigger and starts the cron loop. A run still
// in flight when the next tick arrives is skipped rather than stacked.
func (s *Scheduler) Start() error {
	c := cron.New(
		cron.WithParser(cron.NewParser(
			cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow,
		)),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)

	_, err := c.AddFunc(s.spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if _, err := s.runSweeping(ctx, "scheduled"); err != nil {
			slog.Error("scheduled backup failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("register backup schedule %q: %w", s.spec, err)
	}

	s.cron = c
	c.Start()
	slog.Info("backup scheduler started", "schedule", s.spec)
	return nil
}

// Stop halts the cron loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// RunManual builds an archive on demand, runs the retention sweep, and
// returns the archive filename synchronously to the requester.
func (s *Scheduler) RunManual(ctx context.Context) (string, error) {
	return s.runSweeping(ctx, "manual")
}

// RunImmediate is the fire-and-forget post-ingestion trigger: build and
// notify, no retention sweep.
func (s *Scheduler) RunImmediate(ctx context.Context) error {
	path, err := s.builder.Build(ctx)
	if err != nil {
		return err
	}
	s.notify(ctx, path, "immediate")
	return nil
}

func (s *Scheduler) runSweeping(ctx context.Context, trigger string) (string, error) {
	path, err := s.builder.Build(ctx)
	if err != nil {
		return "", err
	}
	if err := Sweep(s.dir, s.keep); err != nil {
		slog.Warn("retention sweep failed", "error", err)
	}
	s.notify(ctx, path, trigger)
	return filepath.Base(path), nil
}

func (s *Scheduler) notify(ctx context.Context, archivePath, trigger string) {
	name := filepath.Base(archivePath)
	err := s.notifier.Send(ctx, notify.Message{
		Subject:    "Backup complete: " + name,
		Body:       fmt.Sprintf("Archive %s was created by the %s trigger.", name, trigger),
		Attachment: archivePath,
	})
	if err != nil {
		slog.Warn("backup notification failed", "archive", name, "error", err)
	}
}
