package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const reminderColumns = `id, user_id, title, due_at, completed, recurrence_json, created_at, updated_at`

// CreateReminder persists a new reminder.
func (s *Store) CreateReminder(ctx context.Context, r *Reminder) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Recurrence.Type == "" {
		r.Recurrence.Type = RecurrenceOnce
	}
	r.CreatedAt = now()
	r.UpdatedAt = r.CreatedAt

	recurrenceJSON, err := json.Marshal(r.Recurrence)
	if err != nil {
		return fmt.Errorf("marshal recurrence: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reminders (`+reminderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.UserID, r.Title, formatTime(r.DueAt), boolToInt(r.Completed), string(recurrenceJSON),
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert reminder: %w", err)
	}
	return nil
}

// GetReminder returns the user's reminder with the given ID, or nil
// when it does not exist.
func (s *Store) GetReminder(ctx context.Context, userID, id string) (*Reminder, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE user_id = ? AND id = ?`, userID, id)
	r, err := scanReminder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return r, err
}

// ListReminders returns the user's reminders ordered by due time.
func (s *Store) ListReminders(ctx context.Context, userID string, includeCompleted bool) ([]*Reminder, error) {
	query := `SELECT ` + reminderColumns + ` FROM reminders WHERE user_id = ?`
	if !includeCompleted {
		query += ` AND completed = 0`
	}
	query += ` ORDER BY due_at ASC`
	return s.queryReminders(ctx, query, userID)
}

// FindReminders returns the user's reminders whose title contains
// substr, ignoring case. Open reminders come first, then the most
// recently updated.
func (s *Store) FindReminders(ctx context.Context, userID, substr string) ([]*Reminder, error) {
	all, err := s.queryReminders(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE user_id = ?
		ORDER BY completed ASC, updated_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	var matches []*Reminder
	for _, r := range all {
		if containsFold(r.Title, substr) {
			matches = append(matches, r)
		}
	}
	return matches, nil
}

// UpdateReminder writes every mutable field of r.
func (s *Store) UpdateReminder(ctx context.Context, r *Reminder) error {
	r.UpdatedAt = now()

	recurrenceJSON, err := json.Marshal(r.Recurrence)
	if err != nil {
		return fmt.Errorf("marshal recurrence: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE reminders SET title = ?, due_at = ?, completed = ?, recurrence_json = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, r.Title, formatTime(r.DueAt), boolToInt(r.Completed), string(recurrenceJSON), formatTime(r.UpdatedAt),
		r.ID, r.UserID)
	if err != nil {
		return fmt.Errorf("update reminder: %w", err)
	}
	return requireRow(res, "reminder", r.ID)
}

// DeleteReminder removes a reminder.
func (s *Store) DeleteReminder(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete reminder: %w", err)
	}
	return requireRow(res, "reminder", id)
}

// DueReminders returns open reminders of every user due at or before t.
func (s *Store) DueReminders(ctx context.Context, t time.Time) ([]*Reminder, error) {
	return s.queryReminders(ctx, `SELECT `+reminderColumns+` FROM reminders
		WHERE completed = 0 AND due_at <= ? ORDER BY due_at ASC`, formatTime(t))
}

func (s *Store) queryReminders(ctx context.Context, query string, args ...any) ([]*Reminder, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query reminders: %w", err)
	}
	defer rows.Close()

	var out []*Reminder
	for rows.Next() {
		r, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanReminder(row scanner) (*Reminder, error) {
	var r Reminder
	var dueAt, createdAt, updatedAt, recurrenceJSON string
	var completed int

	if err := row.Scan(&r.ID, &r.UserID, &r.Title, &dueAt, &completed, &recurrenceJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(recurrenceJSON), &r.Recurrence); err != nil {
		return nil, fmt.Errorf("unmarshal recurrence: %w", err)
	}

	r.Completed = completed == 1
	r.DueAt = parseTime(dueAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// ErrNotFound is returned by updates and deletes that match no row.
var ErrNotFound = errors.New("not found")

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
