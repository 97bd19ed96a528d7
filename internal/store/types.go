// Package store persists the assistant's user-scoped entities in SQLite.
package store

import (
	"slices"
	"time"

	"github.com/nugget/assistente/internal/temporal"
)

// Reminder is a time-triggered notification owned by a user.
type Reminder struct {
	ID         string     `json:"id"` // UUIDv7
	UserID     string     `json:"user_id"`
	Title      string     `json:"title"`
	DueAt      time.Time  `json:"due_at"`
	Completed  bool       `json:"completed"`
	Recurrence Recurrence `json:"recurrence"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// RecurrenceType identifies a reminder's repeat policy.
type RecurrenceType string

const (
	RecurrenceOnce   RecurrenceType = "once"
	RecurrenceDaily  RecurrenceType = "daily"
	RecurrenceWeekly RecurrenceType = "weekly"
	RecurrenceCustom RecurrenceType = "custom"
)

// RecurrenceTypes lists the accepted recurrence types in schema order.
var RecurrenceTypes = []string{
	string(RecurrenceOnce), string(RecurrenceDaily),
	string(RecurrenceWeekly), string(RecurrenceCustom),
}

// Recurrence is a reminder's repeat policy. Weekdays applies to weekly
// (0 = Sunday); Interval, Unit, MaxCount and TimesFired apply to custom.
type Recurrence struct {
	Type       RecurrenceType `json:"type"`
	Weekdays   []int          `json:"weekdays,omitempty"`
	Interval   int            `json:"interval,omitempty"`
	Unit       temporal.Unit  `json:"unit,omitempty"`
	MaxCount   *int           `json:"max_count,omitempty"`
	TimesFired int            `json:"times_fired,omitempty"`
}

// Repeats reports whether the policy fires more than once.
func (r Recurrence) Repeats() bool {
	return r.Type != "" && r.Type != RecurrenceOnce
}

// Next returns the occurrence after due, evaluated on the civil
// calendar of loc. done is true when the reminder should be completed
// instead. Custom recurrences count the firing of due in TimesFired.
func (r *Recurrence) Next(due time.Time, loc *time.Location) (next time.Time, done bool) {
	if loc == nil {
		loc = time.UTC
	}
	due = due.In(loc)

	switch r.Type {
	case RecurrenceDaily:
		return due.AddDate(0, 0, 1), false

	case RecurrenceWeekly:
		if len(r.Weekdays) == 0 {
			return due.AddDate(0, 0, 7), false
		}
		for i := 1; i <= 7; i++ {
			candidate := due.AddDate(0, 0, i)
			if slices.Contains(r.Weekdays, int(candidate.Weekday())) {
				return candidate, false
			}
		}
		return time.Time{}, true

	case RecurrenceCustom:
		r.TimesFired++
		if r.MaxCount != nil && r.TimesFired >= *r.MaxCount {
			return time.Time{}, true
		}
		if r.Interval <= 0 {
			return time.Time{}, true
		}
		return stepCustom(due, r.Interval, r.Unit), false
	}

	return time.Time{}, true
}

// Advance applies [Recurrence.Next] and then skips occurrences that are
// already behind now, so a long outage fires once rather than once per
// missed slot. Skipped slots do not count toward MaxCount.
func (r *Recurrence) Advance(due, now time.Time, loc *time.Location) (time.Time, bool) {
	next, done := r.Next(due, loc)
	if done {
		return next, true
	}
	for guard := 0; !next.After(now) && guard < 10000; guard++ {
		switch r.Type {
		case RecurrenceCustom:
			next = stepCustom(next, r.Interval, r.Unit)
		default:
			next, done = r.Next(next, loc)
			if done {
				return next, true
			}
		}
	}
	return next, false
}

func stepCustom(t time.Time, interval int, unit temporal.Unit) time.Time {
	if unit == temporal.UnitDays {
		return t.AddDate(0, 0, interval)
	}
	return t.Add(time.Duration(interval) * unit.Duration())
}

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
	StatusArchived   = "archived"
)

// Priorities and Statuses list the accepted values in schema order.
var (
	Priorities = []string{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}
	Statuses   = []string{StatusTodo, StatusInProgress, StatusDone, StatusArchived}
)

// Task is a to-do entry.
type Task struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    string    `json:"priority"`
	Status      string    `json:"status"`
	Tags        []string  `json:"tags,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Open reports whether the task still needs doing.
func (t *Task) Open() bool {
	return t.Status != StatusDone && t.Status != StatusArchived
}

// Collection is a named, user-owned list of items.
type Collection struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon,omitempty"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Item is an entry in a collection. Metadata holds free-form key/value
// pairs; by convention "amount" is always numeric.
type Item struct {
	ID           string         `json:"id"`
	CollectionID string         `json:"collection_id"`
	Content      string         `json:"content"`
	MediaURL     string         `json:"media_url,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Memory is a fact about the user, retrieved by similarity search.
type Memory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredMemory is a search hit.
type ScoredMemory struct {
	Memory
	Similarity float32 `json:"similarity"`
}

// Rule is a standing user preference, keyed so it can be replaced.
type Rule struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Key       string    `json:"key"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Turn is one persisted conversation message. MessageID is the
// caller's identifier for the inbound message, when it has one.
type Turn struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	MessageID string    `json:"message_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Settings holds per-user preferences.
type Settings struct {
	UserID        string    `json:"user_id"`
	PreferredName string    `json:"preferred_name,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}
