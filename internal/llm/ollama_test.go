package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		validTools []string
		wantCount  int
		wantName   string
	}{
		{name: "empty content", content: "", wantCount: 0},
		{name: "whitespace only", content: "   \n\t  ", wantCount: 0},
		{name: "plain text no JSON", content: "Anotei a lista de compras.", wantCount: 0},
		{
			name:      "single tool call object",
			content:   `{"name": "manage_items", "arguments": {"action": "add"}}`,
			wantCount: 1,
			wantName:  "manage_items",
		},
		{
			name:      "array of tool calls",
			content:   `[{"name": "query_data", "arguments": {}}, {"name": "manage_tasks", "arguments": {}}]`,
			wantCount: 2,
			wantName:  "query_data",
		},
		{
			name:      "tagged with preamble",
			content:   `Vou verificar. <tool_call>{"name": "recall_memory", "arguments": {"query": "aniversário"}}</tool_call>`,
			wantCount: 1,
			wantName:  "recall_memory",
		},
		{
			name:      "tagged without closing tag",
			content:   `<tool_call>{"name": "manage_reminders", "arguments": {}}`,
			wantCount: 1,
			wantName:  "manage_reminders",
		},
		{name: "malformed JSON", content: `{"name": "query_data", "arguments": {`, wantCount: 0},
		{name: "JSON without name", content: `{"foo": "bar"}`, wantCount: 0},
		{
			name:       "unknown tool rejected",
			content:    `{"name": "rm_rf", "arguments": {}}`,
			validTools: []string{"query_data"},
			wantCount:  0,
		},
		{
			name:       "mixed valid and unknown in array",
			content:    `[{"name": "query_data", "arguments": {}}, {"name": "rm_rf", "arguments": {}}]`,
			validTools: []string{"query_data"},
			wantCount:  1,
			wantName:   "query_data",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseTextToolCalls(tt.content, tt.validTools)
			if len(got) != tt.wantCount {
				t.Fatalf("parseTextToolCalls() returned %d tools, want %d", len(got), tt.wantCount)
			}
			if tt.wantCount > 0 && got[0].Function.Name != tt.wantName {
				t.Errorf("first tool name = %q, want %q", got[0].Function.Name, tt.wantName)
			}
		})
	}
}

func TestExtractToolNames(t *testing.T) {
	tools := []map[string]any{
		{"function": map[string]any{"name": "manage_items"}},
		{"broken": "entry"},
		{"function": map[string]any{"name": "query_data"}},
	}
	got := extractToolNames(tools)
	if len(got) != 2 || got[0] != "manage_items" || got[1] != "query_data" {
		t.Errorf("extractToolNames() = %v", got)
	}
}

func TestOllamaChat_NativeToolCalls(t *testing.T) {
	var gotReq ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %s, want /api/chat", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"model": "qwen3:8b",
			"created_at": "2026-02-11T15:00:00.123456789Z",
			"message": {
				"role": "assistant",
				"content": "",
				"tool_calls": [{"function": {"name": "manage_items", "arguments": {"action": "add", "collection": "Compras"}}}]
			},
			"done": true,
			"prompt_eval_count": 42,
			"eval_count": 15
		}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, quietLogger())
	msgs := []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "adiciona leite", Images: []string{"aGVsbG8="}},
	}
	tools := []map[string]any{{"type": "function", "function": map[string]any{"name": "manage_items"}}}

	resp, err := c.Chat(context.Background(), "qwen3:8b", msgs, tools)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}

	if gotReq.Stream {
		t.Error("request should not stream")
	}
	if len(gotReq.Messages) != 2 || len(gotReq.Messages[1].Images) != 1 {
		t.Errorf("images not forwarded: %+v", gotReq.Messages)
	}
	if len(gotReq.Tools) != 1 {
		t.Errorf("tools = %d, want 1", len(gotReq.Tools))
	}

	if resp.InputTokens != 42 || resp.OutputTokens != 15 {
		t.Errorf("tokens = %d/%d, want 42/15", resp.InputTokens, resp.OutputTokens)
	}
	if len(resp.Message.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(resp.Message.ToolCalls))
	}
	tc := resp.Message.ToolCalls[0]
	if tc.Function.Name != "manage_items" || tc.Function.Arguments["collection"] != "Compras" {
		t.Errorf("tool call = %+v", tc)
	}
}

func TestOllamaChat_TextToolCallFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"model":"m","message":{"role":"assistant","content":"{\"name\": \"query_data\", \"arguments\": {\"collection\": \"Gastos\"}}"},"done":true}`)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, quietLogger())
	tools := []map[string]any{{"type": "function", "function": map[string]any{"name": "query_data"}}}
	resp, err := c.Chat(context.Background(), "m", []Message{{Role: RoleUser, Content: "quanto gastei?"}}, tools)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Message.Content != "" {
		t.Errorf("content should be cleared, got %q", resp.Message.Content)
	}
	if len(resp.Message.ToolCalls) != 1 || resp.Message.ToolCalls[0].Function.Name != "query_data" {
		t.Errorf("tool calls = %+v", resp.Message.ToolCalls)
	}
}

func TestOllamaChat_ToolResultCarriesToolName(t *testing.T) {
	msgs := []Message{
		{Role: RoleAssistant, ToolCalls: []ToolCall{NewToolCall("call_1", "manage_tasks", nil)}},
		{Role: RoleTool, ToolCallID: "call_1", Content: "ok"},
	}
	wire := toOllamaMessages(msgs)
	if wire[1].ToolName != "manage_tasks" {
		t.Errorf("tool_name = %q, want manage_tasks", wire[1].ToolName)
	}
}

func TestOllamaChat_InlinesImageURLs(t *testing.T) {
	var gotReq ollamaRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/media/nota.jpg":
			_, _ = io.WriteString(w, "fake-jpeg")
		case "/api/chat":
			if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
				t.Errorf("decode request: %v", err)
			}
			_, _ = io.WriteString(w, `{"model":"m","message":{"role":"assistant","content":"ok"},"done":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	tests := []struct {
		name        string
		images      []string
		wantImages  []string
		wantContent string
	}{
		{
			name:       "http url fetched and encoded",
			images:     []string{srv.URL + "/media/nota.jpg"},
			wantImages: []string{base64.StdEncoding.EncodeToString([]byte("fake-jpeg"))},
		},
		{
			name:       "data url stripped to payload",
			images:     []string{"data:image/png;base64,AAAA"},
			wantImages: []string{"AAAA"},
		},
		{
			name:       "raw base64 passed through",
			images:     []string{"aGVsbG8="},
			wantImages: []string{"aGVsbG8="},
		},
		{
			name:        "unreachable image dropped with a note",
			images:      []string{srv.URL + "/media/missing.jpg"},
			wantContent: "[image could not be loaded: " + srv.URL + "/media/missing.jpg]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotReq = ollamaRequest{}
			msgs := []Message{{Role: RoleUser, Content: "o que é isso?", Images: tt.images}}

			c := NewOllamaClient(srv.URL, quietLogger())
			if _, err := c.Chat(context.Background(), "m", msgs, nil); err != nil {
				t.Fatalf("Chat() error: %v", err)
			}

			got := gotReq.Messages[0]
			if strings.Join(got.Images, ",") != strings.Join(tt.wantImages, ",") {
				t.Errorf("images = %v, want %v", got.Images, tt.wantImages)
			}
			if tt.wantContent != "" && !strings.Contains(got.Content, tt.wantContent) {
				t.Errorf("content = %q, want note %q", got.Content, tt.wantContent)
			}
			if msgs[0].Images[0] != tt.images[0] {
				t.Error("caller's messages were modified")
			}
		})
	}
}

func TestOllamaChat_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewOllamaClient(srv.URL, quietLogger())
	if _, err := c.Chat(context.Background(), "missing", nil, nil); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestOllamaPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, `{"models":[]}`)
	}))
	defer srv.Close()

	if err := NewOllamaClient(srv.URL, quietLogger()).Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}
