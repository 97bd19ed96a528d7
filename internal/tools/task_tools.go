package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/nugget/assistente/internal/store"
)

var taskActions = []string{"create", "update", "complete", "delete", "list"}

func (r *Registry) registerTaskTools() {
	r.Register(&Tool{
		Name:        "manage_tasks",
		Description: "Create, update, complete, delete or list to-do tasks. Tasks have no due time; use manage_reminders for anything that must notify the user at a given moment.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": taskActions,
				},
				"title": map[string]any{
					"type":        "string",
					"description": "Task title. On update with id or match, the new title",
				},
				"description": map[string]any{
					"type": "string",
				},
				"priority": map[string]any{
					"type": "string",
					"enum": store.Priorities,
				},
				"status": map[string]any{
					"type":        "string",
					"enum":        store.Statuses,
					"description": "On list, filter by status (default: open tasks)",
				},
				"tags": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
				"id": map[string]any{
					"type": "string",
				},
				"match": map[string]any{
					"type":        "string",
					"description": "Text contained in the title of the task to update/complete/delete",
				},
			},
			"required": []string{"action"},
		},
		Handler: r.handleManageTasks,
	})
}

func (r *Registry) handleManageTasks(ctx context.Context, args map[string]any) (string, error) {
	const tool = "manage_tasks"
	req, err := requestFor(ctx, tool)
	if err != nil {
		return "", err
	}

	v := newValidator(tool)
	if !present(args, "action") {
		v.missing("action")
	}
	action := enumArg(v, args, "action", taskActions, "")
	priority := enumArg(v, args, "priority", store.Priorities, "")
	status := enumArg(v, args, "status", store.Statuses, "")
	if action == "create" {
		requireString(v, args, "title")
	}
	if err := v.result(); err != nil {
		return "", err
	}
	ts := r.deps.Tasks
	tags, hasTags := stringListArg(args, "tags")

	switch action {
	case "create":
		t := &store.Task{
			UserID:      req.UserID,
			Title:       stringArg(args, "title"),
			Description: stringArg(args, "description"),
			Priority:    priority,
			Status:      status,
			Tags:        tags,
		}
		if err := ts.CreateTask(ctx, t); err != nil {
			return "", execErr(tool, "create", err)
		}
		return fmt.Sprintf("Task created: %q (priority %s, status %s). id=%s", t.Title, t.Priority, t.Status, t.ID), nil

	case "list":
		tasks, err := ts.ListTasks(ctx, req.UserID, status)
		if err != nil {
			return "", execErr(tool, "list", err)
		}
		if len(tasks) == 0 {
			if status == "" {
				return "No open tasks.", nil
			}
			return fmt.Sprintf("No tasks with status %s.", status), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d %s:\n", len(tasks), plural(len(tasks), "task", "tasks"))
		for _, t := range tasks {
			fmt.Fprintf(&sb, "- [%s] %q, priority %s", t.Status, t.Title, t.Priority)
			if len(t.Tags) > 0 {
				fmt.Fprintf(&sb, ", tags %s", strings.Join(t.Tags, ", "))
			}
			fmt.Fprintf(&sb, " (id=%s)\n", t.ID)
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	}

	target, n, ident, err := r.findTask(ctx, req.UserID, args)
	if err != nil {
		return "", execErr(tool, "find", err)
	}
	if ident == "" {
		v.missing("id or match")
		return "", v.result()
	}
	if target == nil {
		return fmt.Sprintf("No task matching %q. Nothing was changed.", ident), nil
	}
	note := matchNote(n, "task")

	switch action {
	case "complete":
		target.Status = store.StatusDone
		if err := ts.UpdateTask(ctx, target); err != nil {
			return "", execErr(tool, "complete", err)
		}
		return fmt.Sprintf("Task %q marked as done.%s", target.Title, note), nil

	case "delete":
		if err := ts.DeleteTask(ctx, req.UserID, target.ID); err != nil {
			return "", execErr(tool, "delete", err)
		}
		return fmt.Sprintf("Task %q deleted.%s", target.Title, note), nil
	}

	// update
	changed := false
	if (present(args, "id") || present(args, "match")) && stringArg(args, "title") != "" {
		target.Title, changed = stringArg(args, "title"), true
	}
	if present(args, "description") {
		target.Description, changed = stringArg(args, "description"), true
	}
	if priority != "" {
		target.Priority, changed = priority, true
	}
	if status != "" {
		target.Status, changed = status, true
	}
	if hasTags {
		target.Tags, changed = tags, true
	}
	if !changed {
		v.missing("title, description, priority, status or tags")
		return "", v.result()
	}
	if err := ts.UpdateTask(ctx, target); err != nil {
		return "", execErr(tool, "update", err)
	}
	return fmt.Sprintf("Task updated: %q (priority %s, status %s). id=%s%s",
		target.Title, target.Priority, target.Status, target.ID, note), nil
}

func (r *Registry) findTask(ctx context.Context, userID string, args map[string]any) (t *store.Task, n int, ident string, err error) {
	ts := r.deps.Tasks
	if id := stringArg(args, "id"); id != "" {
		t, err = ts.GetTask(ctx, userID, id)
		if t != nil {
			n = 1
		}
		return t, n, id, err
	}
	match := firstNonEmpty(stringArg(args, "match"), stringArg(args, "title"))
	if match == "" {
		return nil, 0, "", nil
	}
	found, err := ts.FindTasks(ctx, userID, match)
	if err != nil || len(found) == 0 {
		return nil, 0, match, err
	}
	return found[0], len(found), match, nil
}
