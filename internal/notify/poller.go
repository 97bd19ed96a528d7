package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/assistente/internal/store"
)

// DefaultPollInterval is used when the poller is given no interval.
const DefaultPollInterval = 30 * time.Second

// ReminderStore is the storage the poller needs.
type ReminderStore interface {
	DueReminders(ctx context.Context, t time.Time) ([]*store.Reminder, error)
	UpdateReminder(ctx context.Context, r *store.Reminder) error
}

// Poller fires due reminders on a fixed interval.
type Poller struct {
	store    ReminderStore
	pub      Publisher
	interval time.Duration
	loc      *time.Location
	logger   *slog.Logger

	now func() time.Time
}

// NewPoller creates a poller. Recurrences are evaluated on the civil
// calendar of loc.
func NewPoller(st ReminderStore, pub Publisher, interval time.Duration, loc *time.Location, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		store:    st,
		pub:      pub,
		interval: interval,
		loc:      loc,
		logger:   logger.With("component", "notify"),
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("reminder poller started", "interval", p.interval)
	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("reminder poller stopped")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	fired, err := p.Tick(ctx)
	if err != nil {
		p.logger.Error("reminder poll failed", "error", err)
		return
	}
	if fired > 0 {
		p.logger.Debug("reminders fired", "count", fired)
	}
}

// Tick fires every reminder due at the current instant and returns how
// many were published. A failed publish leaves the reminder due.
func (p *Poller) Tick(ctx context.Context) (int, error) {
	now := p.now()
	due, err := p.store.DueReminders(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("load due reminders: %w", err)
	}

	fired := 0
	for _, r := range due {
		if err := p.pub.Publish(ctx, newNotification(r, now, p.loc)); err != nil {
			p.logger.Warn("reminder publish failed, will retry",
				"user", r.UserID, "reminder_id", r.ID, "error", err)
			continue
		}
		fired++

		next, done := r.Recurrence.Advance(r.DueAt, now, p.loc)
		if done {
			r.Completed = true
		} else {
			r.DueAt = next
		}
		if err := p.store.UpdateReminder(ctx, r); err != nil {
			// The reminder stays due and fires again next tick.
			p.logger.Error("failed to advance reminder",
				"user", r.UserID, "reminder_id", r.ID, "error", err)
			continue
		}

		if done {
			p.logger.Info("reminder completed", "user", r.UserID, "reminder_id", r.ID)
		} else {
			p.logger.Info("reminder rescheduled",
				"user", r.UserID,
				"reminder_id", r.ID,
				"next", next.In(p.loc).Format(time.RFC3339),
			)
		}
	}
	return fired, nil
}
