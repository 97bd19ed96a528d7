package tools

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{float64(50), 50, true},
		{42, 42, true},
		{json.Number("7.25"), 7.25, true},
		{"30", 30, true},
		{"12.5", 12.5, true},
		{"12,50", 12.5, true},
		{"R$ 12,50", 12.5, true},
		{"r$12,50", 12.5, true},
		{"$ 9.99", 9.99, true},
		{"1.234,56", 1234.56, true},
		{"1,234.56", 1234.56, true},
		{"1.500", 1500, true},
		{"1,000,000", 1000000, true},
		{"1.000.000", 1000000, true},
		{"-R$ 10", -10, true},
		{"R$ -10", -10, true},
		{"", 0, false},
		{"abc", 0, false},
		{"R$", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseAmount(%#v) = (%v, %v), want (%v, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestIntArg(t *testing.T) {
	tests := []struct {
		name    string
		val     any
		want    int
		wantOK  bool
		wantErr bool
	}{
		{"float whole", float64(12), 12, true, false},
		{"numeric string", "7", 7, true, false},
		{"fraction", 1.5, 0, true, true},
		{"garbage", "soon", 0, true, true},
		{"absent", nil, 0, false, false},
		{"empty string", "  ", 0, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{}
			if tt.val != nil {
				args["n"] = tt.val
			}
			got, ok, err := intArg(args, "n")
			if got != tt.want || ok != tt.wantOK || (err != nil) != tt.wantErr {
				t.Errorf("intArg = (%d, %v, %v), want (%d, %v, err=%v)", got, ok, err, tt.want, tt.wantOK, tt.wantErr)
			}
		})
	}
}

func TestObjectArg_DecodesJSONString(t *testing.T) {
	args := map[string]any{"metadata": `{"amount": 12.5, "store": "feira"}`}
	m, ok, err := objectArg(args, "metadata")
	if err != nil || !ok {
		t.Fatalf("objectArg = (%v, %v, %v)", m, ok, err)
	}
	if m["amount"] != 12.5 || m["store"] != "feira" {
		t.Errorf("decoded = %v", m)
	}

	if _, _, err := objectArg(map[string]any{"metadata": "not json"}, "metadata"); err == nil {
		t.Error("expected error for non-object string")
	}
}

func TestEnumArg(t *testing.T) {
	v := newValidator("t")
	if got := enumArg(v, map[string]any{"a": "LIST"}, "a", []string{"list", "add"}, ""); got != "list" {
		t.Errorf("enumArg = %q, want list", got)
	}
	if got := enumArg(v, map[string]any{}, "a", []string{"list"}, "list"); got != "list" {
		t.Errorf("default = %q, want list", got)
	}
	if v.result() != nil {
		t.Fatalf("unexpected validation error: %v", v.result())
	}

	enumArg(v, map[string]any{"a": "fly"}, "a", []string{"list"}, "")
	if v.result() == nil {
		t.Error("expected validation error for value outside the enum")
	}
}

func TestNormalizeMetadata(t *testing.T) {
	v := newValidator("manage_items")
	meta := normalizeMetadata(v, map[string]any{"amount": "R$ 1.234,56", "store": "feira"})
	if meta["amount"] != 1234.56 {
		t.Errorf("amount = %#v, want 1234.56", meta["amount"])
	}

	meta = normalizeMetadata(v, map[string]any{"amount": nil})
	if _, ok := meta["amount"]; ok {
		t.Error("null amount should be dropped")
	}
	if err := v.result(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	normalizeMetadata(v, map[string]any{"amount": "a lot"})
	if v.result() == nil {
		t.Error("expected validation error for unreadable amount")
	}
}

func TestParseDateArg(t *testing.T) {
	v := newValidator("query_data")
	args := map[string]any{"start": "2025-12-01", "end": "2025-12-01", "bad": "yesterday"}

	start := parseDateArg(v, args, "start", testLoc, false)
	end := parseDateArg(v, args, "end", testLoc, true)
	if start == nil || end == nil {
		t.Fatalf("start = %v, end = %v", start, end)
	}
	if want := time.Date(2025, 12, 1, 0, 0, 0, 0, testLoc); !start.Equal(want) {
		t.Errorf("start = %v, want %v", start, want)
	}
	if want := time.Date(2025, 12, 1, 23, 59, 59, int(999*time.Millisecond), testLoc); !end.Equal(want) {
		t.Errorf("end = %v, want %v", end, want)
	}
	if v.result() != nil {
		t.Fatalf("unexpected validation error: %v", v.result())
	}

	if got := parseDateArg(v, args, "bad", testLoc, false); got != nil {
		t.Errorf("bad date = %v, want nil", got)
	}
	if v.result() == nil {
		t.Error("expected validation error for unparseable date")
	}
}

func TestWeekdaysArg(t *testing.T) {
	tests := []struct {
		name    string
		val     any
		want    []int
		wantErr bool
	}{
		{"numbers", []any{float64(5), float64(1), float64(1)}, []int{1, 5}, false},
		{"portuguese names", []any{"segunda-feira", "sexta"}, []int{1, 5}, false},
		{"comma string", "mon, wed", []int{1, 3}, false},
		{"out of range", []any{float64(7)}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newValidator("manage_reminders")
			got := weekdaysArg(v, map[string]any{"weekdays": tt.val}, "weekdays")
			if (v.result() != nil) != tt.wantErr {
				t.Fatalf("validation error = %v, wantErr %v", v.result(), tt.wantErr)
			}
			if !tt.wantErr && !slices.Equal(got, tt.want) {
				t.Errorf("weekdaysArg = %v, want %v", got, tt.want)
			}
		})
	}
}
