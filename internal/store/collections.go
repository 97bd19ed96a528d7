package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const collectionColumns = `id, user_id, name, icon, description, created_at, updated_at`

const itemColumns = `id, collection_id, content, media_url, metadata_json, created_at, updated_at`

// CreateCollection persists a new collection.
func (s *Store) CreateCollection(ctx context.Context, c *Collection) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	c.CreatedAt = now()
	c.UpdatedAt = c.CreatedAt

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (`+collectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.UserID, c.Name, c.Icon, c.Description, formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert collection: %w", err)
	}
	return nil
}

// ListCollections returns the user's collections ordered by name.
func (s *Store) ListCollections(ctx context.Context, userID string) ([]*Collection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+collectionColumns+` FROM collections
		WHERE user_id = ? ORDER BY name COLLATE NOCASE ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	var out []*Collection
	for rows.Next() {
		var c Collection
		var createdAt, updatedAt string
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Icon, &c.Description, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(createdAt)
		c.UpdatedAt = parseTime(updatedAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// GetCollectionByName returns the user's collection whose name equals
// name ignoring case, or nil.
func (s *Store) GetCollectionByName(ctx context.Context, userID, name string) (*Collection, error) {
	all, err := s.ListCollections(ctx, userID)
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	for _, c := range all {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return nil, nil
}

// UpdateCollection writes name, icon and description.
func (s *Store) UpdateCollection(ctx context.Context, c *Collection) error {
	c.UpdatedAt = now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET name = ?, icon = ?, description = ?, updated_at = ?
		WHERE id = ? AND user_id = ?
	`, c.Name, c.Icon, c.Description, formatTime(c.UpdatedAt), c.ID, c.UserID)
	if err != nil {
		return fmt.Errorf("update collection: %w", err)
	}
	return requireRow(res, "collection", c.ID)
}

// DeleteCollection removes a collection and its items, returning how
// many items went with it.
func (s *Store) DeleteCollection(ctx context.Context, userID, id string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return 0, fmt.Errorf("delete collection: %w", err)
	}
	if err := requireRow(res, "collection", id); err != nil {
		return 0, err
	}

	res, err = tx.ExecContext(ctx, `DELETE FROM items WHERE collection_id = ?`, id)
	if err != nil {
		return 0, fmt.Errorf("delete items: %w", err)
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return int(n), nil
}

// AddItem persists a new item.
func (s *Store) AddItem(ctx context.Context, it *Item) error {
	if it.ID == "" {
		it.ID = NewID()
	}
	it.CreatedAt = now()
	it.UpdatedAt = it.CreatedAt

	metadataJSON, err := marshalMetadata(it.Metadata)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, it.ID, it.CollectionID, it.Content, it.MediaURL, metadataJSON, formatTime(it.CreatedAt), formatTime(it.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// GetItem returns the item with the given ID in a collection, or nil.
func (s *Store) GetItem(ctx context.Context, collectionID, id string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE collection_id = ? AND id = ?`, collectionID, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return it, err
}

// ItemFilter narrows [Store.ListItems]. Zero fields do not filter.
// Since and Until bound the creation time inclusively; Key and Value
// select items whose metadata[Key] equals Value ignoring case.
type ItemFilter struct {
	Since *time.Time
	Until *time.Time
	Key   string
	Value string
}

// ListItems returns a collection's items, oldest first.
func (s *Store) ListItems(ctx context.Context, collectionID string, f ItemFilter) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE collection_id = ?`
	args := []any{collectionID}
	if f.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, formatTime(*f.Since))
	}
	if f.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, formatTime(*f.Until))
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	items, err := s.queryItems(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if f.Key == "" {
		return items, nil
	}

	var out []*Item
	for _, it := range items {
		if v, ok := it.Metadata[f.Key]; ok && v != nil && strings.EqualFold(fmt.Sprint(v), f.Value) {
			out = append(out, it)
		}
	}
	return out, nil
}

// FindItems returns items in a collection whose content contains
// substr ignoring case, most recently updated first.
func (s *Store) FindItems(ctx context.Context, collectionID, substr string) ([]*Item, error) {
	all, err := s.queryItems(ctx, `SELECT `+itemColumns+` FROM items WHERE collection_id = ?
		ORDER BY updated_at DESC, rowid DESC`, collectionID)
	if err != nil {
		return nil, err
	}
	var out []*Item
	for _, it := range all {
		if containsFold(it.Content, substr) {
			out = append(out, it)
		}
	}
	return out, nil
}

// UpdateItem writes content, media URL and metadata.
func (s *Store) UpdateItem(ctx context.Context, it *Item) error {
	it.UpdatedAt = now()
	metadataJSON, err := marshalMetadata(it.Metadata)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET content = ?, media_url = ?, metadata_json = ?, updated_at = ?
		WHERE id = ? AND collection_id = ?
	`, it.Content, it.MediaURL, metadataJSON, formatTime(it.UpdatedAt), it.ID, it.CollectionID)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return requireRow(res, "item", it.ID)
}

// DeleteItem removes an item.
func (s *Store) DeleteItem(ctx context.Context, collectionID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ? AND collection_id = ?`, id, collectionID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return requireRow(res, "item", id)
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]*Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func scanItem(row scanner) (*Item, error) {
	var it Item
	var metadataJSON, createdAt, updatedAt string
	if err := row.Scan(&it.ID, &it.CollectionID, &it.Content, &it.MediaURL, &metadataJSON, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadataJSON), &it.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	it.CreatedAt = parseTime(createdAt)
	it.UpdatedAt = parseTime(updatedAt)
	return &it, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(b), nil
}
