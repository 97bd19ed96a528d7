package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nugget/assistente/internal/store"
	"github.com/nugget/assistente/internal/temporal"
)

var (
	reminderActions = []string{"create", "update", "complete", "delete", "list"}
	timeKinds       = []string{string(temporal.KindRelative), string(temporal.KindAbsolute)}
	timeFields      = []string{"time_type", "relative_amount", "relative_unit", "year", "month", "day", "hour", "minute"}
)

var weekdayAbbrev = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func (r *Registry) registerReminderTools() {
	r.Register(&Tool{
		Name: "manage_reminders",
		Description: "Create, update, complete, delete or list reminders. Describe the time either as a " +
			"relative offset (time_type=relative with relative_amount and relative_unit, e.g. 10 minutes) or " +
			"as absolute calendar fields (time_type=absolute with any of year, month, day, hour, minute). " +
			"Never do date arithmetic yourself: for \"in 2 hours\" send relative_amount=2, relative_unit=hours. " +
			"An absolute date without hour defaults to 09:00.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": reminderActions,
				},
				"title": map[string]any{
					"type":        "string",
					"description": "What to remind about. On update with id or match, the new title",
				},
				"id": map[string]any{
					"type":        "string",
					"description": "Reminder id, for update/complete/delete",
				},
				"match": map[string]any{
					"type":        "string",
					"description": "Text contained in the title of the reminder to update/complete/delete",
				},
				"time_type": map[string]any{
					"type": "string",
					"enum": timeKinds,
				},
				"relative_amount": map[string]any{
					"type":        "number",
					"description": "How many units from now (relative)",
				},
				"relative_unit": map[string]any{
					"type": "string",
					"enum": temporal.Units,
				},
				"year":   map[string]any{"type": "integer"},
				"month":  map[string]any{"type": "integer", "description": "1-12"},
				"day":    map[string]any{"type": "integer", "description": "Day of month"},
				"hour":   map[string]any{"type": "integer", "description": "0-23"},
				"minute": map[string]any{"type": "integer", "description": "0-59"},
				"recurrence_type": map[string]any{
					"type": "string",
					"enum": store.RecurrenceTypes,
				},
				"weekdays": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "integer"},
					"description": "For weekly: days of the week, 0 = Sunday ... 6 = Saturday",
				},
				"interval": map[string]any{
					"type":        "integer",
					"description": "For custom: repeat every N units",
				},
				"unit": map[string]any{
					"type":        "string",
					"enum":        temporal.Units,
					"description": "For custom: unit of interval",
				},
				"count": map[string]any{
					"type":        "integer",
					"description": "For custom: total number of times to fire (omit for no limit)",
				},
				"include_completed": map[string]any{
					"type":        "boolean",
					"description": "For list: also show completed reminders",
				},
			},
			"required": []string{"action"},
		},
		Handler: r.handleManageReminders,
	})
}

func (r *Registry) handleManageReminders(ctx context.Context, args map[string]any) (string, error) {
	const tool = "manage_reminders"
	req, err := requestFor(ctx, tool)
	if err != nil {
		return "", err
	}

	v := newValidator(tool)
	if !present(args, "action") {
		v.missing("action")
	}
	action := enumArg(v, args, "action", reminderActions, "")
	spec := reminderSpec(v, args)
	rec, recSupplied := recurrenceArg(v, args)
	if action == "create" {
		requireString(v, args, "title")
	}
	if err := v.result(); err != nil {
		return "", err
	}

	switch action {
	case "create":
		return r.createReminder(ctx, req, args, spec, rec)
	case "list":
		return r.listReminders(ctx, req, args)
	}

	target, n, ident, err := r.findReminder(ctx, req.UserID, args)
	if err != nil {
		return "", execErr(tool, "find", err)
	}
	if ident == "" {
		v.missing("id or match")
		return "", v.result()
	}
	if target == nil {
		return fmt.Sprintf("No reminder matching %q. Nothing was changed.", ident), nil
	}
	note := matchNote(n, "reminder")
	rs := r.deps.Reminders

	switch action {
	case "complete":
		target.Completed = true
		if err := rs.UpdateReminder(ctx, target); err != nil {
			return "", execErr(tool, "complete", err)
		}
		return fmt.Sprintf("Reminder %q marked as done.%s", target.Title, note), nil

	case "delete":
		if err := rs.DeleteReminder(ctx, req.UserID, target.ID); err != nil {
			return "", execErr(tool, "delete", err)
		}
		return fmt.Sprintf("Reminder %q deleted.%s", target.Title, note), nil
	}

	// update
	changed := false
	if (present(args, "id") || present(args, "match")) && stringArg(args, "title") != "" {
		target.Title, changed = stringArg(args, "title"), true
	}
	if spec != nil {
		res, err := temporal.ResolveReminder(req.Override, spec, req.Reference, req.Location)
		if err != nil {
			return "", err
		}
		r.logResolution(req, spec, res)
		target.DueAt, target.Completed, changed = res.At, false, true
	}
	if recSupplied {
		target.Recurrence, changed = withWeekdayDefault(rec, target.DueAt, req.Location), true
	}
	if !changed {
		v.missing("title, a time field or recurrence_type")
		return "", v.result()
	}

	if err := rs.UpdateReminder(ctx, target); err != nil {
		return "", execErr(tool, "update", err)
	}
	return fmt.Sprintf("Reminder updated: %q at %s, %s. id=%s%s",
		target.Title, formatWhen(target.DueAt, req.Location), describeRecurrence(target.Recurrence), target.ID, note), nil
}

func (r *Registry) createReminder(ctx context.Context, req Request, args map[string]any, spec *temporal.Spec, rec store.Recurrence) (string, error) {
	res, err := temporal.ResolveReminder(req.Override, spec, req.Reference, req.Location)
	if err != nil {
		return "", err
	}
	r.logResolution(req, spec, res)

	rem := &store.Reminder{
		UserID:     req.UserID,
		Title:      stringArg(args, "title"),
		DueAt:      res.At,
		Recurrence: withWeekdayDefault(rec, res.At, req.Location),
	}
	if err := r.deps.Reminders.CreateReminder(ctx, rem); err != nil {
		return "", execErr("manage_reminders", "create", err)
	}

	r.logger.Info("reminder created",
		"user", req.UserID,
		"id", rem.ID,
		"due_at", rem.DueAt.In(req.Location).Format(time.RFC3339),
		"source", res.Source,
		"recurrence", rem.Recurrence.Type,
	)
	return fmt.Sprintf("Reminder created: %q at %s, %s. id=%s",
		rem.Title, formatWhen(rem.DueAt, req.Location), describeRecurrence(rem.Recurrence), rem.ID), nil
}

// logResolution records which path produced the time, and flags the
// cases where the model's own arithmetic disagreed with the override.
func (r *Registry) logResolution(req Request, spec *temporal.Spec, res temporal.Resolution) {
	attrs := []any{"user", req.UserID, "source", res.Source, "at", res.At.Format(time.RFC3339)}
	if spec != nil {
		attrs = append(attrs, "spec", spec.String())
	}
	if res.Source == temporal.SourceOverride && spec != nil {
		if modelAt, err := temporal.Resolve(*spec, req.Reference, req.Location); err == nil && !modelAt.Equal(res.At) {
			r.logger.Warn("model time overridden by text", append(attrs, "model_at", modelAt.Format(time.RFC3339))...)
			return
		}
	}
	r.logger.Debug("reminder time resolved", attrs...)
}

func (r *Registry) listReminders(ctx context.Context, req Request, args map[string]any) (string, error) {
	includeCompleted, _ := boolArg(args, "include_completed")
	rems, err := r.deps.Reminders.ListReminders(ctx, req.UserID, includeCompleted)
	if err != nil {
		return "", execErr("manage_reminders", "list", err)
	}
	if len(rems) == 0 {
		return "No reminders.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d %s:\n", len(rems), plural(len(rems), "reminder", "reminders"))
	for _, rem := range rems {
		fmt.Fprintf(&sb, "- %q at %s, %s", rem.Title, formatWhen(rem.DueAt, req.Location), describeRecurrence(rem.Recurrence))
		if rem.Completed {
			sb.WriteString(" [done]")
		}
		fmt.Fprintf(&sb, " (id=%s)\n", rem.ID)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// findReminder resolves the target of update/complete/delete by id,
// then match, then title. ident is the identifier used, "" if none.
func (r *Registry) findReminder(ctx context.Context, userID string, args map[string]any) (rem *store.Reminder, n int, ident string, err error) {
	rs := r.deps.Reminders
	if id := stringArg(args, "id"); id != "" {
		rem, err = rs.GetReminder(ctx, userID, id)
		if rem != nil {
			n = 1
		}
		return rem, n, id, err
	}
	match := firstNonEmpty(stringArg(args, "match"), stringArg(args, "title"))
	if match == "" {
		return nil, 0, "", nil
	}
	found, err := rs.FindReminders(ctx, userID, match)
	if err != nil || len(found) == 0 {
		return nil, 0, match, err
	}
	return found[0], len(found), match, nil
}

// reminderSpec builds a time spec from the flat time fields. It returns
// nil when no time field was supplied.
func reminderSpec(v *validator, args map[string]any) *temporal.Spec {
	supplied := false
	for _, f := range timeFields {
		if present(args, f) {
			supplied = true
			break
		}
	}
	if !supplied {
		return nil
	}

	kind := temporal.Kind(enumArg(v, args, "time_type", timeKinds, ""))
	if kind == "" {
		kind = temporal.KindAbsolute
		if present(args, "relative_amount") || present(args, "relative_unit") {
			kind = temporal.KindRelative
		}
	}

	if kind == temporal.KindRelative {
		amount, ok, err := floatArg(args, "relative_amount")
		switch {
		case err != nil:
			v.invalid("relative_amount", "%v", err)
		case !ok:
			v.missing("relative_amount")
		case amount <= 0:
			v.invalid("relative_amount", "must be greater than zero")
		}
		unitName := stringArg(args, "relative_unit")
		unit, unitOK := temporal.ParseUnit(unitName)
		switch {
		case unitName == "":
			v.missing("relative_unit")
		case !unitOK:
			v.invalid("relative_unit", "must be one of %s (got %q)", strings.Join(temporal.Units, ", "), unitName)
		}
		spec := temporal.Relative(amount, unit)
		return &spec
	}

	spec := temporal.Spec{Kind: temporal.KindAbsolute}
	for _, f := range []struct {
		name string
		dst  **int
	}{
		{"year", &spec.Year},
		{"month", &spec.Month},
		{"day", &spec.Day},
		{"hour", &spec.Hour},
		{"minute", &spec.Minute},
	} {
		n, ok, err := intArg(args, f.name)
		if err != nil {
			v.invalid(f.name, "%v", err)
			continue
		}
		if ok {
			*f.dst = temporal.Int(n)
		}
	}
	return &spec
}

// recurrenceArg reads the recurrence fields. supplied is false when no
// recurrence_type was given, in which case callers keep what they have.
func recurrenceArg(v *validator, args map[string]any) (rec store.Recurrence, supplied bool) {
	typ := enumArg(v, args, "recurrence_type", store.RecurrenceTypes, "")
	if typ == "" {
		return store.Recurrence{Type: store.RecurrenceOnce}, false
	}
	rec.Type = store.RecurrenceType(typ)

	switch rec.Type {
	case store.RecurrenceWeekly:
		rec.Weekdays = weekdaysArg(v, args, "weekdays")

	case store.RecurrenceCustom:
		interval, ok, err := intArg(args, "interval")
		switch {
		case err != nil:
			v.invalid("interval", "%v", err)
		case !ok:
			v.missing("interval")
		case interval <= 0:
			v.invalid("interval", "must be greater than zero")
		}
		rec.Interval = interval

		unitName := stringArg(args, "unit")
		unit, unitOK := temporal.ParseUnit(unitName)
		switch {
		case unitName == "":
			v.missing("unit")
		case !unitOK:
			v.invalid("unit", "must be one of %s (got %q)", strings.Join(temporal.Units, ", "), unitName)
		}
		rec.Unit = unit

		count, ok, err := intArg(args, "count")
		switch {
		case err != nil:
			v.invalid("count", "%v", err)
		case ok && count <= 0:
			v.invalid("count", "must be greater than zero")
		case ok:
			rec.MaxCount = &count
		}
	}
	return rec, true
}

// withWeekdayDefault fills an empty weekly set with the due date's weekday.
func withWeekdayDefault(rec store.Recurrence, due time.Time, loc *time.Location) store.Recurrence {
	if rec.Type == store.RecurrenceWeekly && len(rec.Weekdays) == 0 {
		rec.Weekdays = []int{int(due.In(loc).Weekday())}
	}
	return rec
}

func describeRecurrence(rec store.Recurrence) string {
	switch rec.Type {
	case store.RecurrenceDaily:
		return "repeats daily"
	case store.RecurrenceWeekly:
		days := make([]string, 0, len(rec.Weekdays))
		for _, d := range rec.Weekdays {
			if d >= 0 && d < len(weekdayAbbrev) {
				days = append(days, weekdayAbbrev[d])
			}
		}
		return "repeats weekly on " + strings.Join(days, ", ")
	case store.RecurrenceCustom:
		s := fmt.Sprintf("repeats every %d %s", rec.Interval, rec.Unit)
		if rec.MaxCount != nil {
			s += fmt.Sprintf(", %d times in total", *rec.MaxCount)
		}
		if rec.TimesFired > 0 {
			s += fmt.Sprintf(" (fired %d so far)", rec.TimesFired)
		}
		return s
	}
	return "does not repeat"
}
