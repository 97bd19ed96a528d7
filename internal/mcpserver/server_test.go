package mcpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/nugget/assistente/internal/store"
	"github.com/nugget/assistente/internal/tools"

	_ "modernc.org/sqlite"
)

var testLoc = time.FixedZone("UTC-03:00", -3*60*60)

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	st, err := store.NewStoreWithDB(db)
	if err != nil {
		t.Fatalf("NewStoreWithDB: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := tools.NewRegistry(tools.Deps{
		Collections: st,
		Reminders:   st,
		Tasks:       st,
		Rules:       st,
		Logger:      logger,
	})
	s, err := New(reg, "mcp-user", testLoc, logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 12, 3, 22, 54, 0, 0, testLoc) }
	return s, st
}

func callTool(t *testing.T, s *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	res, err := s.handler(name)(context.Background(), req)
	if err != nil {
		t.Fatalf("%s: protocol error %v", name, err)
	}
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want mcp.TextContent", res.Content[0])
	}
	return text.Text
}

func TestToolsList(t *testing.T) {
	s, _ := newTestServer(t)

	raw := s.MCPServer().HandleMessage(context.Background(), json.RawMessage(
		`{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`))
	data, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}

	var resp struct {
		Result struct {
			Tools []struct {
				Name        string          `json:"name"`
				InputSchema json.RawMessage `json:"inputSchema"`
			} `json:"tools"`
		} `json:"result"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}

	got := map[string]bool{}
	for _, tool := range resp.Result.Tools {
		got[tool.Name] = true
		if !strings.Contains(string(tool.InputSchema), `"properties"`) {
			t.Errorf("%s schema = %s, want the registry schema", tool.Name, tool.InputSchema)
		}
	}
	for _, want := range []string{"manage_collections", "manage_items", "query_data", "manage_reminders", "manage_tasks", "manage_rules"} {
		if !got[want] {
			t.Errorf("tools/list missing %s (got %v)", want, got)
		}
	}
	if got["save_memory"] {
		t.Error("memory tools listed without an embedder")
	}
}

func TestCallTool_ActsForConfiguredUser(t *testing.T) {
	s, st := newTestServer(t)

	res := callTool(t, s, "manage_collections", map[string]any{"action": "create", "name": "Gastos"})
	if res.IsError {
		t.Fatalf("create failed: %s", resultText(t, res))
	}

	cols, err := st.ListCollections(context.Background(), "mcp-user")
	if err != nil {
		t.Fatal(err)
	}
	if len(cols) != 1 || cols[0].Name != "Gastos" {
		t.Errorf("collections = %+v, want Gastos owned by mcp-user", cols)
	}
}

func TestCallTool_UsesCurrentReference(t *testing.T) {
	s, st := newTestServer(t)

	res := callTool(t, s, "manage_reminders", map[string]any{
		"action":          "create",
		"title":           "ligar para a mãe",
		"time_type":       "relative",
		"relative_amount": 1,
		"relative_unit":   "hours",
	})
	if res.IsError {
		t.Fatalf("create failed: %s", resultText(t, res))
	}

	rems, err := st.ListReminders(context.Background(), "mcp-user", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rems) != 1 {
		t.Fatalf("got %d reminders, want 1", len(rems))
	}
	want := time.Date(2025, 12, 3, 23, 54, 0, 0, testLoc)
	if !rems[0].DueAt.Equal(want) {
		t.Errorf("DueAt = %v, want %v", rems[0].DueAt, want)
	}
}

func TestCallTool_ErrorsAreResults(t *testing.T) {
	s, _ := newTestServer(t)

	res := callTool(t, s, "manage_collections", map[string]any{})
	if !res.IsError {
		t.Fatal("missing action should produce an error result")
	}
	if text := resultText(t, res); !strings.Contains(text, "action") {
		t.Errorf("error text = %q, want it to name the missing field", text)
	}
}
