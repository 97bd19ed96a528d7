package tools

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Tool arguments come from the model and are untrusted: numbers may
// arrive as strings, lists as comma-separated text, objects as JSON
// strings. The helpers below coerce what they can and report the rest.

// stringArg returns args[key] as trimmed text. Numbers and booleans are
// formatted; anything else yields "".
func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// present reports whether args[key] is set to something other than
// null or an empty string.
func present(args map[string]any, key string) bool {
	v, ok := args[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

// intArg returns args[key] as an integer. ok is false when the key is
// absent; err is set when it is present but not a whole number.
func intArg(args map[string]any, key string) (n int, ok bool, err error) {
	if !present(args, key) {
		return 0, false, nil
	}
	f, ok, err := floatArg(args, key)
	if err != nil || !ok {
		return 0, ok, err
	}
	if f != math.Trunc(f) {
		return 0, true, fmt.Errorf("must be a whole number")
	}
	return int(f), true, nil
}

// floatArg returns args[key] as a number, accepting numeric strings.
func floatArg(args map[string]any, key string) (f float64, ok bool, err error) {
	if !present(args, key) {
		return 0, false, nil
	}
	switch v := args[key].(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, true, fmt.Errorf("must be a number")
		}
		return f, true, nil
	case string:
		if f, ok := ParseAmount(v); ok {
			return f, true, nil
		}
	}
	return 0, true, fmt.Errorf("must be a number")
}

// boolArg returns args[key] as a boolean, accepting common spellings.
func boolArg(args map[string]any, key string) (b bool, ok bool) {
	switch v := args[key].(type) {
	case bool:
		return v, true
	case float64:
		return v != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "sim", "1":
			return true, true
		case "false", "no", "não", "nao", "0":
			return false, true
		}
	}
	return false, false
}

// stringListArg returns args[key] as a list of non-empty strings. A
// single string is split on commas.
func stringListArg(args map[string]any, key string) ([]string, bool) {
	if !present(args, key) {
		return nil, false
	}
	var raw []string
	switch v := args[key].(type) {
	case []any:
		for _, e := range v {
			raw = append(raw, fmt.Sprint(e))
		}
	case []string:
		raw = v
	case string:
		raw = strings.Split(v, ",")
	default:
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out, true
}

// objectArg returns args[key] as an object, decoding JSON text when
// the model sent the object as a string.
func objectArg(args map[string]any, key string) (map[string]any, bool, error) {
	if !present(args, key) {
		return nil, false, nil
	}
	switch v := args[key].(type) {
	case map[string]any:
		return v, true, nil
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil, true, fmt.Errorf("must be an object")
		}
		return m, true, nil
	}
	return nil, true, fmt.Errorf("must be an object")
}

// enumArg returns the lower-cased value of args[key] when it belongs to
// allowed, def when absent, and records a validation problem otherwise.
func enumArg(v *validator, args map[string]any, key string, allowed []string, def string) string {
	s := strings.ToLower(stringArg(args, key))
	if s == "" {
		return def
	}
	if !slices.Contains(allowed, s) {
		v.invalid(key, "must be one of %s (got %q)", strings.Join(allowed, ", "), s)
		return def
	}
	return s
}

// requireString returns args[key] or records it as missing.
func requireString(v *validator, args map[string]any, key string) string {
	s := stringArg(args, key)
	if s == "" {
		v.missing(key)
	}
	return s
}

var currencyPrefixes = []string{"r$", "us$", "$", "€", "£", "brl", "usd", "eur"}

// ParseAmount converts a monetary or numeric value into a float64.
// Strings may carry a currency marker and either Brazilian ("1.234,56")
// or English ("1,234.56") separators. When both separators appear the
// last one is the decimal point; a lone comma is decimal; a lone dot
// followed by exactly three digits, or repeated dots, group thousands.
func ParseAmount(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		return parseAmountString(n)
	}
	return 0, false
}

func parseAmountString(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	neg := false
	if strings.HasPrefix(s, "-") {
		neg, s = true, strings.TrimSpace(s[1:])
	}
	for _, p := range currencyPrefixes {
		if strings.HasPrefix(s, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	if strings.HasPrefix(s, "-") {
		neg, s = true, strings.TrimSpace(s[1:])
	}
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(s, ",") > 1 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.Replace(s, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 || len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// normalizeMetadata coerces metadata["amount"] to a number, recording
// a validation problem when it cannot be read. A null amount is dropped.
func normalizeMetadata(v *validator, meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	raw, ok := meta["amount"]
	if !ok {
		return meta
	}
	if raw == nil {
		delete(meta, "amount")
		return meta
	}
	f, ok := ParseAmount(raw)
	if !ok {
		v.invalid("metadata.amount", "must be a number (got %v)", raw)
		return meta
	}
	meta["amount"] = f
	return meta
}

// parseDateArg reads a YYYY-MM-DD (or RFC 3339) date in loc. endOfDay
// moves a bare date to its last millisecond so ranges are inclusive.
func parseDateArg(v *validator, args map[string]any, key string, loc *time.Location, endOfDay bool) *time.Time {
	s := stringArg(args, key)
	if s == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		v.invalid(key, "must be a date like 2025-12-31 (got %q)", s)
		return nil
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return &t
}

var weekdayNames = map[string]int{
	"dom": 0, "domingo": 0, "sun": 0, "sunday": 0,
	"seg": 1, "segunda": 1, "mon": 1, "monday": 1,
	"ter": 2, "terça": 2, "terca": 2, "tue": 2, "tuesday": 2,
	"qua": 3, "quarta": 3, "wed": 3, "wednesday": 3,
	"qui": 4, "quinta": 4, "thu": 4, "thursday": 4,
	"sex": 5, "sexta": 5, "fri": 5, "friday": 5,
	"sáb": 6, "sab": 6, "sábado": 6, "sabado": 6, "sat": 6, "saturday": 6,
}

// weekdaysArg reads a set of weekdays (0 = Sunday) given as numbers or
// names. The result is sorted and de-duplicated.
func weekdaysArg(v *validator, args map[string]any, key string) []int {
	list, ok := stringListArg(args, key)
	if !ok {
		return nil
	}
	var out []int
	for _, s := range list {
		name := strings.TrimSuffix(strings.ToLower(s), "-feira")
		if d, ok := weekdayNames[name]; ok {
			out = append(out, d)
			continue
		}
		f, ok := ParseAmount(s)
		if !ok || f != math.Trunc(f) || f < 0 || f > 6 {
			v.invalid(key, "must contain weekdays 0-6 (0 = Sunday), got %q", s)
			continue
		}
		out = append(out, int(f))
	}
	slices.Sort(out)
	return slices.Compact(out)
}
