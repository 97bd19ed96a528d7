package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/nugget/assistente/internal/embeddings"
)

// SaveMemory persists a memory with its embedding.
func (s *Store) SaveMemory(ctx context.Context, m *Memory) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	m.CreatedAt = now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, user_id, content, category, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, m.ID, m.UserID, m.Content, m.Category, encodeEmbedding(m.Embedding), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

// SearchMemories returns the user's memories whose cosine similarity
// to query is at least threshold, best first, at most limit of them.
func (s *Store) SearchMemories(ctx context.Context, userID string, query []float32, threshold float32, limit int) ([]ScoredMemory, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content, category, embedding, created_at
		FROM memories WHERE user_id = ? AND embedding IS NOT NULL
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query memories: %w", err)
	}
	defer rows.Close()

	var hits []ScoredMemory
	for rows.Next() {
		var m Memory
		var blob []byte
		var createdAt string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.Category, &blob, &createdAt); err != nil {
			return nil, err
		}
		m.Embedding = decodeEmbedding(blob)
		m.CreatedAt = parseTime(createdAt)

		score := embeddings.CosineSimilarity(query, m.Embedding)
		if score >= threshold {
			hits = append(hits, ScoredMemory{Memory: m, Similarity: score})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// CountMemories returns how many memories the user has.
func (s *Store) CountMemories(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories WHERE user_id = ?`, userID).Scan(&n)
	return n, err
}

// Embeddings are stored as little-endian float32 blobs.
func encodeEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEmbedding(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
