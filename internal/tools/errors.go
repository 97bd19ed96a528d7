// Package tools provides the tool registry and execution framework.
//
// This file defines the error types a tool call can produce. Every one
// of them is rendered into observation text by [Observe]; none of them
// aborts the request.
package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nugget/assistente/internal/temporal"
)

// ErrToolUnavailable is returned when a tool call targets a tool that
// is not present in the registry.
type ErrToolUnavailable struct {
	ToolName  string
	Available []string
}

// Error implements the error interface.
func (e *ErrToolUnavailable) Error() string {
	return fmt.Sprintf("tool %q is not available in this context", e.ToolName)
}

// FieldError describes one invalid argument.
type FieldError struct {
	Field  string
	Reason string
}

// ValidationError reports arguments that are missing or unusable.
type ValidationError struct {
	Tool    string
	Missing []string
	Invalid []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, "missing required field(s): "+strings.Join(e.Missing, ", "))
	}
	for _, f := range e.Invalid {
		parts = append(parts, fmt.Sprintf("invalid %s: %s", f.Field, f.Reason))
	}
	return fmt.Sprintf("%s: %s", e.Tool, strings.Join(parts, "; "))
}

// validator accumulates argument problems for one call.
type validator struct {
	tool string
	err  ValidationError
}

func newValidator(tool string) *validator {
	return &validator{tool: tool}
}

func (v *validator) missing(field string) {
	v.err.Missing = append(v.err.Missing, field)
}

func (v *validator) invalid(field, format string, args ...any) {
	v.err.Invalid = append(v.err.Invalid, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// result returns nil when nothing was recorded.
func (v *validator) result() error {
	if len(v.err.Missing) == 0 && len(v.err.Invalid) == 0 {
		return nil
	}
	e := v.err
	e.Tool = v.tool
	return &e
}

// ExecutionError wraps a failure inside a collaborator (store,
// embeddings). Err is logged but never shown to the model.
type ExecutionError struct {
	Tool string
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Tool, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExecutionError) Unwrap() error { return e.Err }

func execErr(tool, op string, err error) error {
	return &ExecutionError{Tool: tool, Op: op, Err: err}
}

// Observe renders a handler outcome as the observation text fed back to
// the model. It is the only place errors are turned into text.
func Observe(result string, err error) string {
	if err == nil {
		return result
	}

	var (
		unavailable *ErrToolUnavailable
		validation  *ValidationError
		ambiguous   *temporal.AmbiguousTimeError
		execution   *ExecutionError
	)
	switch {
	case errors.As(err, &unavailable):
		msg := fmt.Sprintf("Error: there is no tool named %q.", unavailable.ToolName)
		if len(unavailable.Available) > 0 {
			msg += " Available tools: " + strings.Join(unavailable.Available, ", ") + "."
		}
		return msg

	case errors.As(err, &validation):
		var parts []string
		if len(validation.Missing) > 0 {
			parts = append(parts, "missing required field(s): "+strings.Join(validation.Missing, ", "))
		}
		for _, f := range validation.Invalid {
			parts = append(parts, fmt.Sprintf("%s %s", f.Field, f.Reason))
		}
		return fmt.Sprintf("Error: invalid arguments for %s: %s. Fix the arguments and call the tool again.",
			validation.Tool, strings.Join(parts, "; "))

	case errors.As(err, &ambiguous):
		return fmt.Sprintf("Could not schedule: %s. Nothing was saved. Ask the user to say exactly when (for example \"in 10 minutes\" or \"tomorrow at 9\").",
			ambiguous.Reason)

	case errors.As(err, &execution):
		return fmt.Sprintf("Error: the %s operation failed because of an internal problem. Nothing can be confirmed; tell the user it did not work and to try again later.",
			execution.Tool)

	default:
		return "Error: the operation failed. Tell the user it did not work."
	}
}
