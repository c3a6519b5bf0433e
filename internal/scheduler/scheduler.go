// Package scheduler delivers due reminders and the optional daily task
// digest over the chat channel. Reminder dispatch is a polling loop; a
// missed tick only delays delivery, it never loses a reminder because
// unsent rows stay due until marked.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"secondbrain/internal/domain"
	"secondbrain/internal/log"
)

type Config struct {
	// PollInterval bounds how late a reminder can fire. Zero means 30s.
	PollInterval time.Duration
	// DigestSchedule is a cron expression ("0 8 * * *"); empty disables
	// the digest.
	DigestSchedule string
	// DigestOwners are the users who receive the daily digest.
	DigestOwners []string
}

type Scheduler struct {
	cfg       Config
	store     domain.TaskStore
	messenger domain.Messenger
	logger    log.Logger
	cron      *cron.Cron
}

func New(cfg Config, store domain.TaskStore, messenger domain.Messenger, logger log.Logger) *Scheduler {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Scheduler{cfg: cfg, store: store, messenger: messenger, logger: logger}
}

// Run blocks until ctx is cancelled, dispatching due reminders every poll
// interval and the digest on its cron schedule.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.cfg.DigestSchedule != "" {
		s.cron = cron.New()
		_, err := s.cron.AddFunc(s.cfg.DigestSchedule, func() { s.SendDigest(ctx) })
		if err != nil {
			return fmt.Errorf("invalid digest schedule %q: %w", s.cfg.DigestSchedule, err)
		}
		s.cron.Start()
		defer s.cron.Stop()
	}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	s.logger.Info("scheduler running", "poll_interval", s.cfg.PollInterval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.DispatchDue(ctx)
		}
	}
}

// DispatchDue sends every unsent reminder whose time has passed. Each
// reminder is marked sent only after a successful delivery, so a send
// failure retries on the next tick.
func (s *Scheduler) DispatchDue(ctx context.Context) {
	due, err := s.store.UpcomingReminders(ctx, 0)
	if err != nil {
		s.logger.Error("load due reminders failed", "error", err)
		return
	}
	for _, r := range due {
		body := "Reminder: " + r.Message
		if err := s.messenger.Send(ctx, r.Owner, body); err != nil {
			s.logger.Error("reminder delivery failed", "reminder", r.ID, "owner", r.Owner, "error", err)
			continue
		}
		if err := s.store.MarkReminderSent(ctx, r.ID); err != nil {
			s.logger.Error("mark reminder sent failed", "reminder", r.ID, "error", err)
			continue
		}
		s.logger.Info("reminder delivered", "reminder", r.ID, "owner", r.Owner)
	}
}

// SendDigest messages each configured owner their open tasks, soonest
// first. Owners with no tasks are skipped.
func (s *Scheduler) SendDigest(ctx context.Context) {
	for _, owner := range s.cfg.DigestOwners {
		tasks, err := s.store.Tasks(ctx, owner)
		if err != nil {
			s.logger.Error("digest task load failed", "owner", owner, "error", err)
			continue
		}
		if len(tasks) == 0 {
			continue
		}
		if err := s.messenger.Send(ctx, owner, renderDigest(tasks)); err != nil {
			s.logger.Error("digest delivery failed", "owner", owner, "error", err)
		}
	}
}

func renderDigest(tasks []domain.Task) string {
	var b strings.Builder
	b.WriteString("Your open tasks:\n")
	for _, t := range tasks {
		if t.DueDate != nil {
			fmt.Fprintf(&b, "- %s (due %s)\n", t.Description, t.DueDate.Format("Mon Jan 2 15:04"))
		} else {
			fmt.Fprintf(&b, "- %s\n", t.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
