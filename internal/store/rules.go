package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertRule stores r, replacing the content of an existing rule with
// the same key. created reports whether a new row was inserted.
func (s *Store) UpsertRule(ctx context.Context, r *Rule) (created bool, err error) {
	r.Key = strings.TrimSpace(r.Key)
	ts := now()

	var existingID, createdAt string
	err = s.db.QueryRowContext(ctx, `SELECT id, created_at FROM rules WHERE user_id = ? AND key = ?`, r.UserID, r.Key).
		Scan(&existingID, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if r.ID == "" {
			r.ID = NewID()
		}
		r.CreatedAt, r.UpdatedAt = ts, ts
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO rules (id, user_id, key, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, r.UserID, r.Key, r.Content, formatTime(ts), formatTime(ts))
		if err != nil {
			return false, fmt.Errorf("insert rule: %w", err)
		}
		return true, nil

	case err != nil:
		return false, fmt.Errorf("lookup rule: %w", err)
	}

	r.ID = existingID
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = ts
	_, err = s.db.ExecContext(ctx, `UPDATE rules SET content = ?, updated_at = ? WHERE id = ?`,
		r.Content, formatTime(ts), r.ID)
	if err != nil {
		return false, fmt.Errorf("update rule: %w", err)
	}
	return false, nil
}

// ListRules returns the user's rules ordered by key.
func (s *Store) ListRules(ctx context.Context, userID string) ([]*Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, key, content, created_at, updated_at
		FROM rules WHERE user_id = ? ORDER BY key ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var out []*Rule
	for rows.Next() {
		var r Rule
		var createdAt, updatedAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Key, &r.Content, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(createdAt)
		r.UpdatedAt = parseTime(updatedAt)
		out = append(out, &r)
	}
	return out, rows.Err()
}

// DeleteRule removes the user's rule with the given key.
func (s *Store) DeleteRule(ctx context.Context, userID, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rules WHERE user_id = ? AND key = ?`, userID, strings.TrimSpace(key))
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	return requireRow(res, "rule", key)
}
