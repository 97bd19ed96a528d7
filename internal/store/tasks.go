package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const taskColumns = `id, user_id, title, description, priority, status, tags_json, created_at, updated_at`

// CreateTask persists a new task, defaulting priority to medium and
// status to todo.
func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.Status == "" {
		t.Status = StatusTodo
	}
	t.CreatedAt = now()
	t.UpdatedAt = t.CreatedAt

	tagsJSON, err := marshalTags(t.Tags)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Title, t.Description, t.Priority, t.Status, tagsJSON,
		formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask returns the user's task with the given ID, or nil.
func (s *Store) GetTask(ctx context.Context, userID, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ? AND id = ?`, userID, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// ListTasks returns the user's tasks. An empty status returns only open
// tasks (neither done nor archived).
func (s *Store) ListTasks(ctx context.Context, userID, status string) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []any{userID}
	if status == "" {
		query += ` AND status NOT IN (?, ?)`
		args = append(args, StatusDone, StatusArchived)
	} else {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY CASE priority
		WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END, created_at ASC`
	return s.queryTasks(ctx, query, args...)
}

// FindTasks returns the user's tasks whose title contains substr,
// ignoring case, open tasks first and then most recently updated.
func (s *Store) FindTasks(ctx context.Context, userID, substr string) ([]*Task, error) {
	all, err := s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE user_id = ?
		ORDER BY CASE WHEN status IN ('done', 'archived') THEN 1 ELSE 0 END, updated_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	var matches []*Task
	for _, t := range all {
		if containsFold(t.Title, substr) {
			matches = append(matches, t)
		}
	}
	return matches, nil
}

// UpdateTask writes every mutable field of t.
func (s *Store) UpdateTask(ctx context.Context, t *Task) error {
	t.UpdatedAt = now()
	tagsJSON, err := marshalTags(t.Tags)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, priority = ?, status = ?, tags_json = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, t.Title, t.Description, t.Priority, t.Status, tagsJSON, formatTime(t.UpdatedAt), t.ID, t.UserID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(res, "task", t.ID)
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return requireRow(res, "task", id)
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTask(row scanner) (*Task, error) {
	var t Task
	var tagsJSON, createdAt, updatedAt string
	if err := row.Scan(&t.ID, &t.UserID, &t.Title, &t.Description, &t.Priority, &t.Status, &tagsJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tagsJSON), &t.Tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	t.CreatedAt = parseTime(createdAt)
	t.UpdatedAt = parseTime(updatedAt)
	return &t, nil
}

func marshalTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(b), nil
}
