package tools

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/nugget/assistente/internal/store"
)

var (
	collectionActions = []string{"create", "list", "update", "delete"}
	itemActions       = []string{"add", "update", "delete", "list"}
	queryOperations   = []string{"list", "sum", "count", "average"}
)

func (r *Registry) registerCollectionTools() {
	r.Register(&Tool{
		Name: "manage_collections",
		Description: "Create, list, rename or delete the user's collections (named lists such as " +
			"shopping lists, expenses, trips or notes). Items inside a collection are handled by manage_items.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": collectionActions,
				},
				"name": map[string]any{
					"type":        "string",
					"description": "Collection name (target for update/delete)",
				},
				"new_name": map[string]any{
					"type":        "string",
					"description": "New name, for update",
				},
				"icon": map[string]any{
					"type":        "string",
					"description": "Optional emoji icon",
				},
				"description": map[string]any{
					"type":        "string",
					"description": "Optional description",
				},
			},
			"required": []string{"action"},
		},
		Handler: r.handleManageCollections,
	})

	r.Register(&Tool{
		Name: "manage_items",
		Description: "Add, update, delete or list items in a collection. add always appends a new item and " +
			"creates the collection if it does not exist. update and delete find the item by id or by text " +
			"contained in its content. Put numbers such as prices in metadata.amount.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"action": map[string]any{
					"type": "string",
					"enum": itemActions,
				},
				"collection": map[string]any{
					"type":        "string",
					"description": "Collection name",
				},
				"content": map[string]any{
					"type":        "string",
					"description": "Item text. For add, the new item; for update, the replacement text",
				},
				"match": map[string]any{
					"type":        "string",
					"description": "Text contained in the item to update or delete",
				},
				"item_id": map[string]any{
					"type":        "string",
					"description": "Exact item id, instead of match",
				},
				"metadata": map[string]any{
					"type":        "object",
					"description": "Key/value details, e.g. {\"amount\": 12.5, \"category\": \"food\"}. On update, keys are merged; null removes a key",
				},
				"media_url": map[string]any{
					"type":        "string",
					"description": "Optional attachment URL",
				},
			},
			"required": []string{"action", "collection"},
		},
		Handler: r.handleManageItems,
	})

	r.Register(&Tool{
		Name: "query_data",
		Description: "Compute over a collection's items: list them, count them, or sum/average a numeric " +
			"metadata field (default amount). Optionally restrict to a creation date range or to items whose " +
			"metadata filter_key equals filter_value.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"collection": map[string]any{
					"type":        "string",
					"description": "Collection name",
				},
				"operation": map[string]any{
					"type": "string",
					"enum": queryOperations,
				},
				"field": map[string]any{
					"type":        "string",
					"description": "Metadata field to aggregate (default amount)",
				},
				"start_date": map[string]any{
					"type":        "string",
					"description": "Inclusive start date, YYYY-MM-DD",
				},
				"end_date": map[string]any{
					"type":        "string",
					"description": "Inclusive end date, YYYY-MM-DD",
				},
				"filter_key": map[string]any{
					"type":        "string",
					"description": "Metadata key to filter on",
				},
				"filter_value": map[string]any{
					"type":        "string",
					"description": "Value filter_key must equal",
				},
			},
			"required": []string{"collection", "operation"},
		},
		Handler: r.handleQueryData,
	})
}

func (r *Registry) handleManageCollections(ctx context.Context, args map[string]any) (string, error) {
	const tool = "manage_collections"
	req, err := requestFor(ctx, tool)
	if err != nil {
		return "", err
	}

	v := newValidator(tool)
	action := enumArg(v, args, "action", collectionActions, "")
	if action == "" && !present(args, "action") {
		v.missing("action")
	}
	name := stringArg(args, "name")
	if action != "" && action != "list" && name == "" {
		v.missing("name")
	}
	if err := v.result(); err != nil {
		return "", err
	}

	cs := r.deps.Collections

	if action == "list" {
		cols, err := cs.ListCollections(ctx, req.UserID)
		if err != nil {
			return "", execErr(tool, "list", err)
		}
		if len(cols) == 0 {
			return "The user has no collections yet.", nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%d %s:\n", len(cols), plural(len(cols), "collection", "collections"))
		for _, c := range cols {
			items, err := cs.ListItems(ctx, c.ID, store.ItemFilter{})
			if err != nil {
				return "", execErr(tool, "count items", err)
			}
			fmt.Fprintf(&sb, "- %s (%d %s)", collectionLabel(c), len(items), plural(len(items), "item", "items"))
			if c.Description != "" {
				fmt.Fprintf(&sb, ": %s", c.Description)
			}
			sb.WriteString("\n")
		}
		return strings.TrimRight(sb.String(), "\n"), nil
	}

	existing, err := cs.GetCollectionByName(ctx, req.UserID, name)
	if err != nil {
		return "", execErr(tool, "lookup", err)
	}

	switch action {
	case "create":
		if existing != nil {
			return fmt.Sprintf("Collection %q already exists; nothing was created.", existing.Name), nil
		}
		c := &store.Collection{
			UserID:      req.UserID,
			Name:        name,
			Icon:        stringArg(args, "icon"),
			Description: stringArg(args, "description"),
		}
		if err := cs.CreateCollection(ctx, c); err != nil {
			return "", execErr(tool, "create", err)
		}
		r.logger.Info("collection created", "user", req.UserID, "collection", c.Name)
		return fmt.Sprintf("Collection %s created.", collectionLabel(c)), nil

	case "update":
		if existing == nil {
			return r.collectionNotFound(ctx, req.UserID, name)
		}
		changed := false
		if s := stringArg(args, "new_name"); s != "" && s != existing.Name {
			if clash, err := cs.GetCollectionByName(ctx, req.UserID, s); err != nil {
				return "", execErr(tool, "lookup", err)
			} else if clash != nil && clash.ID != existing.ID {
				return fmt.Sprintf("A collection named %q already exists; %q was not renamed.", clash.Name, existing.Name), nil
			}
			existing.Name, changed = s, true
		}
		if present(args, "icon") {
			existing.Icon, changed = stringArg(args, "icon"), true
		}
		if present(args, "description") {
			existing.Description, changed = stringArg(args, "description"), true
		}
		if !changed {
			v.missing("new_name, icon or description")
			return "", v.result()
		}
		if err := cs.UpdateCollection(ctx, existing); err != nil {
			return "", execErr(tool, "update", err)
		}
		return fmt.Sprintf("Collection updated: %s.", collectionLabel(existing)), nil

	default: // delete
		if existing == nil {
			return r.collectionNotFound(ctx, req.UserID, name)
		}
		n, err := cs.DeleteCollection(ctx, req.UserID, existing.ID)
		if err != nil {
			return "", execErr(tool, "delete", err)
		}
		r.logger.Info("collection deleted", "user", req.UserID, "collection", existing.Name, "items", n)
		return fmt.Sprintf("Collection %q deleted together with its %d %s.", existing.Name, n, plural(n, "item", "items")), nil
	}
}

func (r *Registry) handleManageItems(ctx context.Context, args map[string]any) (string, error) {
	const tool = "manage_items"
	req, err := requestFor(ctx, tool)
	if err != nil {
		return "", err
	}

	v := newValidator(tool)
	if !present(args, "action") {
		v.missing("action")
	}
	action := enumArg(v, args, "action", itemActions, "")
	collection := requireString(v, args, "collection")
	meta, _, metaErr := objectArg(args, "metadata")
	if metaErr != nil {
		v.invalid("metadata", "%v", metaErr)
	}

	switch action {
	case "add":
		requireString(v, args, "content")
		meta = normalizeMetadata(v, meta)
	case "update", "delete":
		if stringArg(args, "item_id") == "" && stringArg(args, "match") == "" &&
			(action == "update" || stringArg(args, "content") == "") {
			v.missing("match or item_id")
		}
	}
	if err := v.result(); err != nil {
		return "", err
	}

	cs := r.deps.Collections
	col, err := cs.GetCollectionByName(ctx, req.UserID, collection)
	if err != nil {
		return "", execErr(tool, "lookup collection", err)
	}

	if action == "add" {
		created := false
		if col == nil {
			col = &store.Collection{UserID: req.UserID, Name: collection}
			if err := cs.CreateCollection(ctx, col); err != nil {
				return "", execErr(tool, "create collection", err)
			}
			created = true
			r.logger.Info("collection auto-created", "user", req.UserID, "collection", col.Name)
		}

		it := &store.Item{
			CollectionID: col.ID,
			Content:      stringArg(args, "content"),
			MediaURL:     stringArg(args, "media_url"),
			Metadata:     meta,
		}
		if err := cs.AddItem(ctx, it); err != nil {
			return "", execErr(tool, "add", err)
		}

		var sb strings.Builder
		if created {
			fmt.Fprintf(&sb, "Collection %q did not exist and was created. ", col.Name)
		}
		fmt.Fprintf(&sb, "Added %q to %s", it.Content, col.Name)
		if m := formatMetadata(it.Metadata); m != "" {
			fmt.Fprintf(&sb, " (%s)", m)
		}
		fmt.Fprintf(&sb, ". id=%s", it.ID)
		return sb.String(), nil
	}

	if col == nil {
		return r.collectionNotFound(ctx, req.UserID, collection)
	}

	if action == "list" {
		items, err := cs.ListItems(ctx, col.ID, store.ItemFilter{})
		if err != nil {
			return "", execErr(tool, "list", err)
		}
		if len(items) == 0 {
			return fmt.Sprintf("Collection %q is empty.", col.Name), nil
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "%s has %d %s:\n", collectionLabel(col), len(items), plural(len(items), "item", "items"))
		writeItems(&sb, items)
		return strings.TrimRight(sb.String(), "\n"), nil
	}

	// update / delete: locate the target.
	match := stringArg(args, "match")
	if match == "" && action == "delete" {
		match = stringArg(args, "content")
	}
	target, n, err := r.findItem(ctx, col.ID, stringArg(args, "item_id"), match)
	if err != nil {
		return "", execErr(tool, "find", err)
	}
	if target == nil {
		return fmt.Sprintf("No item matching %q in %s. Nothing was changed.", firstNonEmpty(stringArg(args, "item_id"), match), col.Name), nil
	}

	if action == "delete" {
		if err := cs.DeleteItem(ctx, col.ID, target.ID); err != nil {
			return "", execErr(tool, "delete", err)
		}
		return fmt.Sprintf("Deleted %q from %s.%s", target.Content, col.Name, matchNote(n, "item")), nil
	}

	changed := false
	if s := stringArg(args, "content"); s != "" {
		target.Content, changed = s, true
	}
	if present(args, "media_url") {
		target.MediaURL, changed = stringArg(args, "media_url"), true
	}
	if meta != nil {
		merged := maps.Clone(target.Metadata)
		if merged == nil {
			merged = map[string]any{}
		}
		for k, val := range meta {
			if val == nil {
				delete(merged, k)
				continue
			}
			merged[k] = val
		}
		merged = normalizeMetadata(v, merged)
		if err := v.result(); err != nil {
			return "", err
		}
		target.Metadata, changed = merged, true
	}
	if !changed {
		v.missing("content, metadata or media_url")
		return "", v.result()
	}

	if err := cs.UpdateItem(ctx, target); err != nil {
		return "", execErr(tool, "update", err)
	}
	out := fmt.Sprintf("Updated item in %s: %q", col.Name, target.Content)
	if m := formatMetadata(target.Metadata); m != "" {
		out += " (" + m + ")"
	}
	return out + "." + matchNote(n, "item"), nil
}

// findItem resolves an item by exact id or, failing that, by content
// substring. It returns the chosen item and how many matched.
func (r *Registry) findItem(ctx context.Context, collectionID, id, match string) (*store.Item, int, error) {
	cs := r.deps.Collections
	if id != "" {
		it, err := cs.GetItem(ctx, collectionID, id)
		if err != nil || it == nil {
			return nil, 0, err
		}
		return it, 1, nil
	}
	items, err := cs.FindItems(ctx, collectionID, match)
	if err != nil || len(items) == 0 {
		return nil, 0, err
	}
	return items[0], len(items), nil
}

func (r *Registry) handleQueryData(ctx context.Context, args map[string]any) (string, error) {
	const tool = "query_data"
	req, err := requestFor(ctx, tool)
	if err != nil {
		return "", err
	}

	v := newValidator(tool)
	collection := requireString(v, args, "collection")
	if !present(args, "operation") {
		v.missing("operation")
	}
	op := enumArg(v, args, "operation", queryOperations, "list")
	field := stringArg(args, "field")
	if field == "" {
		field = "amount"
	}
	filter := store.ItemFilter{
		Since: parseDateArg(v, args, "start_date", req.Location, false),
		Until: parseDateArg(v, args, "end_date", req.Location, true),
		Key:   stringArg(args, "filter_key"),
		Value: stringArg(args, "filter_value"),
	}
	if filter.Key != "" && !present(args, "filter_value") {
		v.missing("filter_value")
	}
	if filter.Since != nil && filter.Until != nil && filter.Until.Before(*filter.Since) {
		v.invalid("end_date", "is before start_date")
	}
	if err := v.result(); err != nil {
		return "", err
	}

	col, err := r.deps.Collections.GetCollectionByName(ctx, req.UserID, collection)
	if err != nil {
		return "", execErr(tool, "lookup collection", err)
	}
	if col == nil {
		return r.collectionNotFound(ctx, req.UserID, collection)
	}

	items, err := r.deps.Collections.ListItems(ctx, col.ID, filter)
	if err != nil {
		return "", execErr(tool, "list", err)
	}

	scope := describeFilter(filter, req)
	if len(items) == 0 {
		return fmt.Sprintf("No items in %s%s.", col.Name, scope), nil
	}

	var sb strings.Builder
	switch op {
	case "count":
		fmt.Fprintf(&sb, "%s has %d %s%s.", col.Name, len(items), plural(len(items), "item", "items"), scope)
		return sb.String(), nil

	case "list":
		fmt.Fprintf(&sb, "%d %s in %s%s:\n", len(items), plural(len(items), "item", "items"), col.Name, scope)
		writeItems(&sb, items)
		return strings.TrimRight(sb.String(), "\n"), nil
	}

	agg := aggregate(items, field)
	if op == "sum" {
		fmt.Fprintf(&sb, "Sum of %s over %d %s in %s%s: %s.\n", field, len(items), plural(len(items), "item", "items"),
			col.Name, scope, formatNumber(agg.sum))
	} else {
		if agg.numeric == 0 {
			fmt.Fprintf(&sb, "None of the %d %s in %s%s has a numeric %s; no average can be computed.\n",
				len(items), plural(len(items), "item", "items"), col.Name, scope, field)
		} else {
			fmt.Fprintf(&sb, "Average of %s over %d %s with a value in %s%s: %s.\n", field, agg.numeric,
				plural(agg.numeric, "item", "items"), col.Name, scope, formatNumber(agg.sum/float64(agg.numeric)))
		}
	}
	sb.WriteString("Items:\n")
	for _, it := range items {
		if val, ok := ParseAmount(it.Metadata[field]); ok {
			fmt.Fprintf(&sb, "- %s: %s\n", it.Content, formatNumber(val))
		} else {
			fmt.Fprintf(&sb, "- %s: no %s\n", it.Content, field)
		}
	}
	if agg.missing > 0 {
		fmt.Fprintf(&sb, "%d %s had no numeric %s and counted as 0.", agg.missing, plural(agg.missing, "item", "items"), field)
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

type aggregation struct {
	sum     float64
	numeric int
	missing int
}

// aggregate sums field across items. Missing or non-numeric values
// contribute 0 and are counted separately.
func aggregate(items []*store.Item, field string) aggregation {
	var a aggregation
	for _, it := range items {
		val, ok := ParseAmount(it.Metadata[field])
		if !ok {
			a.missing++
			continue
		}
		a.sum += val
		a.numeric++
	}
	return a
}

func describeFilter(f store.ItemFilter, req Request) string {
	var parts []string
	if f.Since != nil {
		parts = append(parts, "from "+f.Since.In(req.Location).Format("2006-01-02"))
	}
	if f.Until != nil {
		parts = append(parts, "until "+f.Until.In(req.Location).Format("2006-01-02"))
	}
	if f.Key != "" {
		parts = append(parts, fmt.Sprintf("where %s = %s", f.Key, f.Value))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

func (r *Registry) collectionNotFound(ctx context.Context, userID, name string) (string, error) {
	cols, err := r.deps.Collections.ListCollections(ctx, userID)
	if err != nil {
		return "", execErr("collections", "list", err)
	}
	msg := fmt.Sprintf("Collection %q does not exist.", name)
	if len(cols) > 0 {
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}
		msg += " Existing collections: " + strings.Join(names, ", ") + "."
	}
	return msg, nil
}

func collectionLabel(c *store.Collection) string {
	if c.Icon != "" {
		return c.Icon + " " + c.Name
	}
	return c.Name
}

func writeItems(sb *strings.Builder, items []*store.Item) {
	for _, it := range items {
		fmt.Fprintf(sb, "- %s", it.Content)
		if m := formatMetadata(it.Metadata); m != "" {
			fmt.Fprintf(sb, " [%s]", m)
		}
		if it.MediaURL != "" {
			fmt.Fprintf(sb, " <%s>", it.MediaURL)
		}
		fmt.Fprintf(sb, " (id=%s)\n", it.ID)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, s := range vals {
		if s != "" {
			return s
		}
	}
	return ""
}
