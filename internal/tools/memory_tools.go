package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/assistente/internal/store"
)

func (r *Registry) registerMemoryTools() {
	r.Register(&Tool{
		Name:        "save_memory",
		Description: "Remember a lasting fact about the user (family, preferences, routines, important dates). Save one fact per call, phrased as a full sentence.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The fact to remember",
				},
				"category": map[string]any{
					"type":        "string",
					"description": "Optional grouping such as family, health, work",
				},
			},
			"required": []string{"content"},
		},
		Handler: r.handleSaveMemory,
	})

	r.Register(&Tool{
		Name:        "recall_memory",
		Description: "Search remembered facts about the user by meaning. Use before answering questions about the user's life or preferences.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "What to look for",
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleRecallMemory,
	})
}

func (r *Registry) handleSaveMemory(ctx context.Context, args map[string]any) (string, error) {
	const tool = "save_memory"
	req, err := requestFor(ctx, tool)
	if err != nil {
		return "", err
	}
	v := newValidator(tool)
	content := requireString(v, args, "content")
	if err := v.result(); err != nil {
		return "", err
	}

	vec, err := r.deps.Embedder.Generate(ctx, content)
	if err != nil {
		return "", execErr(tool, "embed", err)
	}
	m := &store.Memory{
		UserID:    req.UserID,
		Content:   content,
		Category:  strings.ToLower(stringArg(args, "category")),
		Embedding: vec,
	}
	if err := r.deps.Memories.SaveMemory(ctx, m); err != nil {
		return "", execErr(tool, "save", err)
	}
	r.logger.Debug("memory saved", "user", req.UserID, "id", m.ID, "dims", len(vec))
	return fmt.Sprintf("Remembered: %q.", content), nil
}

func (r *Registry) handleRecallMemory(ctx context.Context, args map[string]any) (string, error) {
	const tool = "recall_memory"
	req, err := requestFor(ctx, tool)
	if err != nil {
		return "", err
	}
	v := newValidator(tool)
	query := requireString(v, args, "query")
	if err := v.result(); err != nil {
		return "", err
	}

	vec, err := r.deps.Embedder.Generate(ctx, query)
	if err != nil {
		return "", execErr(tool, "embed", err)
	}
	hits, err := r.deps.Memories.SearchMemories(ctx, req.UserID, vec, r.deps.MemoryThreshold, r.deps.MemoryLimit)
	if err != nil {
		return "", execErr(tool, "search", err)
	}
	if len(hits) == 0 {
		return fmt.Sprintf("No memories related to %q.", query), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d related %s:\n", len(hits), plural(len(hits), "memory", "memories"))
	for _, h := range hits {
		fmt.Fprintf(&sb, "- %s", h.Content)
		if h.Category != "" {
			fmt.Fprintf(&sb, " [%s]", h.Category)
		}
		fmt.Fprintf(&sb, " (similarity %.2f)\n", h.Similarity)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
