// Package notify delivers due reminders.
//
// A [Poller] wakes on a fixed interval, loads every uncompleted reminder
// whose due time has passed, hands each one to a [Publisher] and then
// advances it along its recurrence: one-shot reminders are completed,
// repeating ones move to their next occurrence. Delivery is at least
// once: a reminder whose publish fails stays due and is retried on the
// next tick.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/assistente/internal/store"
)

// Notification is the payload published for a due reminder.
type Notification struct {
	ReminderID string    `json:"reminder_id"`
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	DueAt      time.Time `json:"due_at"`
	FiredAt    time.Time `json:"fired_at"`
	Recurrence string    `json:"recurrence"`
}

func newNotification(r *store.Reminder, firedAt time.Time, loc *time.Location) Notification {
	return Notification{
		ReminderID: r.ID,
		UserID:     r.UserID,
		Title:      r.Title,
		DueAt:      r.DueAt.In(loc),
		FiredAt:    firedAt.In(loc),
		Recurrence: string(r.Recurrence.Type),
	}
}

// Publisher delivers a notification to the user.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

// LogPublisher writes notifications to the log. It is used when no
// broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a publisher that logs at info level.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger.With("component", "notify")}
}

// Publish implements [Publisher].
func (p *LogPublisher) Publish(ctx context.Context, n Notification) error {
	p.logger.InfoContext(ctx, "reminder due",
		"user", n.UserID,
		"reminder_id", n.ReminderID,
		"title", n.Title,
		"due_at", n.DueAt.Format(time.RFC3339),
	)
	return nil
}
