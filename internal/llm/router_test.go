package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubClient struct {
	name    string
	pingErr error
	chatErr error
}

func (s *stubClient) Chat(_ context.Context, model string, _ []Message, _ []map[string]any) (*ChatResponse, error) {
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return &ChatResponse{Model: model, Message: Message{Role: RoleAssistant, Content: s.name}}, nil
}

func (s *stubClient) Ping(context.Context) error { return s.pingErr }

func TestRouter_Chat(t *testing.T) {
	r, err := NewRouter(
		map[string]Client{"ollama": &stubClient{name: "ollama"}, "anthropic": &stubClient{name: "anthropic"}},
		map[string]string{"claude-sonnet": "anthropic", "qwen3:8b": "ollama"},
		"ollama",
	)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	tests := []struct {
		model string
		want  string
	}{
		{"claude-sonnet", "anthropic"},
		{"qwen3:8b", "ollama"},
		{"llama3.2", "ollama"},
	}
	for _, tt := range tests {
		resp, err := r.Chat(context.Background(), tt.model, nil, nil)
		if err != nil {
			t.Fatalf("Chat(%q): %v", tt.model, err)
		}
		if resp.Message.Content != tt.want || r.Provider(tt.model) != tt.want {
			t.Errorf("model %q routed to %q, want %q", tt.model, resp.Message.Content, tt.want)
		}
	}
}

func TestNewRouter_RejectsUnknownProviders(t *testing.T) {
	ollama := map[string]Client{"ollama": &stubClient{}}

	tests := []struct {
		name    string
		routes  map[string]string
		def     string
		wantErr string
	}{
		{"unknown default", nil, "openai", `default provider "openai"`},
		{"route to missing provider", map[string]string{"claude-sonnet": "anthropic"}, "ollama", `unconfigured provider "anthropic"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRouter(ollama, tt.routes, tt.def)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("NewRouter() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRouter_ErrorsNameProvider(t *testing.T) {
	down := errors.New("connection refused")
	r, err := NewRouter(map[string]Client{
		"ollama":    &stubClient{chatErr: down, pingErr: down},
		"anthropic": &stubClient{},
	}, nil, "ollama")
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.Chat(context.Background(), "qwen3:8b", nil, nil)
	if !errors.Is(err, down) || !strings.HasPrefix(err.Error(), "ollama: ") {
		t.Errorf("Chat() error = %v, want wrapped and prefixed with ollama", err)
	}

	err = r.Ping(context.Background())
	if !errors.Is(err, down) || strings.Contains(err.Error(), "anthropic") {
		t.Errorf("Ping() error = %v, want only ollama reported", err)
	}
}
