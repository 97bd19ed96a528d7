package tools

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/nugget/assistente/internal/store"
)

func TestManageTasks_Lifecycle(t *testing.T) {
	reg, s, _ := newTestRegistry(t)
	ctx := testCtx()

	out := mustCall(t, ctx, reg, "manage_tasks", map[string]any{
		"action": "create",
		"title":  "Renovar passaporte",
		"tags":   "viagem, documentos",
	})
	if !strings.Contains(out, "priority medium, status todo") {
		t.Errorf("create observation = %q", out)
	}
	mustCall(t, ctx, reg, "manage_tasks", map[string]any{"action": "create", "title": "Trocar lâmpada", "priority": "low"})

	out = mustCall(t, ctx, reg, "manage_tasks", map[string]any{"action": "update", "match": "passaporte", "priority": "URGENT"})
	if !strings.Contains(out, "priority urgent") {
		t.Errorf("update observation = %q", out)
	}

	mustCall(t, ctx, reg, "manage_tasks", map[string]any{"action": "complete", "title": "lâmpada"})

	out = mustCall(t, ctx, reg, "manage_tasks", map[string]any{"action": "list"})
	if !strings.Contains(out, "1 task:") || strings.Contains(out, "lâmpada") {
		t.Errorf("open list = %q", out)
	}
	if !strings.Contains(out, "tags viagem, documentos") {
		t.Errorf("open list does not show tags: %q", out)
	}

	out = mustCall(t, ctx, reg, "manage_tasks", map[string]any{"action": "list", "status": "done"})
	if !strings.Contains(out, "Trocar lâmpada") {
		t.Errorf("done list = %q", out)
	}

	tasks, err := s.ListTasks(ctx, testUser, "")
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Priority != store.PriorityUrgent {
		t.Fatalf("tasks = %+v", tasks)
	}
	if !slices.Equal(tasks[0].Tags, []string{"viagem", "documentos"}) {
		t.Errorf("Tags = %v", tasks[0].Tags)
	}

	out = mustCall(t, ctx, reg, "manage_tasks", map[string]any{"action": "delete", "id": tasks[0].ID})
	if !strings.Contains(out, `Task "Renovar passaporte" deleted.`) {
		t.Errorf("delete observation = %q", out)
	}
}

func TestManageTasks_Validation(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	tests := []struct {
		name  string
		args  map[string]any
		field string
	}{
		{"missing action", map[string]any{"title": "x"}, "action"},
		{"missing title", map[string]any{"action": "create"}, "title"},
		{"bad priority", map[string]any{"action": "create", "title": "x", "priority": "asap"}, "priority"},
		{"update with nothing", map[string]any{"action": "update", "id": "nope"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := call(t, testCtx(), reg, "manage_tasks", tt.args)
			if tt.field == "" {
				// Unknown id: reported, not an error.
				if err != nil || !strings.Contains(out, "No task matching") {
					t.Errorf("got (%q, %v), want no-match observation", out, err)
				}
				return
			}
			var validation *ValidationError
			if !errors.As(err, &validation) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if !strings.Contains(Observe("", err), tt.field) {
				t.Errorf("observation does not name %q", tt.field)
			}
		})
	}
}
