package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
)

// AppendTurn persists a conversation turn.
func (s *Store) AppendTurn(ctx context.Context, t *Turn) error {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (id, user_id, role, content, message_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.UserID, t.Role, t.Content, t.MessageID, formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// RecentTurns returns the user's last limit turns, oldest first.
func (s *Store) RecentTurns(ctx context.Context, userID string, limit int) ([]*Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, content, message_id, created_at
		FROM turns WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []*Turn
	for rows.Next() {
		var t Turn
		var createdAt string
		if err := rows.Scan(&t.ID, &t.UserID, &t.Role, &t.Content, &t.MessageID, &createdAt); err != nil {
			return nil, err
		}
		t.CreatedAt = parseTime(createdAt)
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

// GetSettings returns the user's settings. A user without stored
// settings gets a zero value carrying only the user ID.
func (s *Store) GetSettings(ctx context.Context, userID string) (*Settings, error) {
	st := Settings{UserID: userID}
	var updatedAt string
	err := s.db.QueryRowContext(ctx, `SELECT preferred_name, updated_at FROM settings WHERE user_id = ?`, userID).
		Scan(&st.PreferredName, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

// SaveSettings inserts or replaces the user's settings.
func (s *Store) SaveSettings(ctx context.Context, st *Settings) error {
	st.UpdatedAt = now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (user_id, preferred_name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET preferred_name = excluded.preferred_name, updated_at = excluded.updated_at
	`, st.UserID, st.PreferredName, formatTime(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
