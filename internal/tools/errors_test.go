package tools

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nugget/assistente/internal/temporal"
)

func TestErrToolUnavailable_Error(t *testing.T) {
	err := &ErrToolUnavailable{ToolName: "web_search"}
	want := `tool "web_search" is not available in this context`
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestExecutionError_Unwrap(t *testing.T) {
	cause := errors.New("database is locked")
	err := fmt.Errorf("dispatch: %w", execErr("manage_items", "add", cause))

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find the cause through ExecutionError")
	}
	var execution *ExecutionError
	if !errors.As(err, &execution) {
		t.Fatal("errors.As failed to match *ExecutionError")
	}
	if execution.Op != "add" {
		t.Errorf("Op = %q, want add", execution.Op)
	}
}

func TestValidator(t *testing.T) {
	v := newValidator("manage_tasks")
	if err := v.result(); err != nil {
		t.Fatalf("clean validator returned %v", err)
	}

	v.missing("title")
	v.invalid("priority", "must be one of %s", "low, high")
	err := v.result()

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if validation.Tool != "manage_tasks" {
		t.Errorf("Tool = %q, want manage_tasks", validation.Tool)
	}
	want := "manage_tasks: missing required field(s): title; invalid priority: must be one of low, high"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestObserve(t *testing.T) {
	tests := []struct {
		name     string
		result   string
		err      error
		contains []string
		absent   []string
	}{
		{
			name:     "success passes through",
			result:   "Added \"leite\" to Mercado.",
			contains: []string{"Added \"leite\" to Mercado."},
		},
		{
			name:     "unknown tool lists alternatives",
			err:      &ErrToolUnavailable{ToolName: "fly", Available: []string{"manage_items", "query_data"}},
			contains: []string{`no tool named "fly"`, "manage_items, query_data"},
		},
		{
			name: "validation names fields",
			err: &ValidationError{
				Tool:    "manage_items",
				Missing: []string{"collection"},
				Invalid: []FieldError{{Field: "metadata.amount", Reason: "must be a number"}},
			},
			contains: []string{"manage_items", "collection", "metadata.amount must be a number", "call the tool again"},
		},
		{
			name:     "ambiguous time asks for clarification",
			err:      &temporal.AmbiguousTimeError{Reason: "the resolved time 2025-12-01 08:00 is in the past"},
			contains: []string{"Could not schedule", "in the past", "Nothing was saved"},
		},
		{
			name:     "execution hides the cause",
			err:      execErr("save_memory", "save", errors.New("disk I/O error")),
			contains: []string{"save_memory", "did not work"},
			absent:   []string{"disk I/O"},
		},
		{
			name:     "wrapped execution",
			err:      fmt.Errorf("outer: %w", execErr("query_data", "list", errors.New("boom"))),
			contains: []string{"query_data"},
			absent:   []string{"boom"},
		},
		{
			name:     "unknown error type",
			err:      errors.New("surprise"),
			contains: []string{"did not work"},
			absent:   []string{"surprise"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Observe(tt.result, tt.err)
			if got == "" {
				t.Fatal("Observe returned empty text")
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Observe() = %q, missing %q", got, want)
				}
			}
			for _, bad := range tt.absent {
				if strings.Contains(got, bad) {
					t.Errorf("Observe() = %q, should not contain %q", got, bad)
				}
			}
		})
	}
}
