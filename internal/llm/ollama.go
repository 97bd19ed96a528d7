package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/nugget/assistente/internal/httpkit"
)

// OllamaClient is a client for the Ollama chat API.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(baseURL string, logger *slog.Logger) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.With("provider", "ollama"),
		// Large models with tools need time; the per-call context
		// deadline is the tighter bound.
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(5*time.Minute),
			httpkit.WithRetry(2, time.Second, logger),
		),
	}
}

type ollamaRequest struct {
	Model    string           `json:"model"`
	Messages []ollamaMessage  `json:"messages"`
	Stream   bool             `json:"stream"`
	Tools    []map[string]any `json:"tools,omitempty"`
}

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	Images    []string         `json:"images,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaToolCall struct {
	ID       string `json:"id,omitempty"`
	Function struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"` // Ollama returns an object, not a string
	} `json:"function"`
}

type ollamaResponse struct {
	Model           string        `json:"model"`
	CreatedAt       string        `json:"created_at"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	TotalDuration   int64         `json:"total_duration,omitempty"`
	PromptEvalCount int           `json:"prompt_eval_count,omitempty"`
	EvalCount       int           `json:"eval_count,omitempty"`
}

// Chat sends a non-streaming chat request to Ollama.
func (c *OllamaClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	req := ollamaRequest{
		Model:    model,
		Messages: toOllamaMessages(c.inlineImages(ctx, messages)),
		Tools:    tools,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	c.logger.Log(ctx, LevelTrace, "request payload", "json", string(jsonData))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama API error %d: %s", resp.StatusCode, httpkit.ReadErrorBody(resp.Body, 4096))
	}

	var wire ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out := fromOllama(&wire)
	// Many local models print tool calls as JSON text instead of using
	// the native tool_calls field.
	if len(out.Message.ToolCalls) == 0 && out.Message.Content != "" {
		if parsed := parseTextToolCalls(out.Message.Content, extractToolNames(tools)); len(parsed) > 0 {
			out.Message.ToolCalls = parsed
			out.Message.Content = ""
		}
	}

	c.logger.Debug("response received",
		"model", out.Model,
		"input_tokens", out.InputTokens,
		"output_tokens", out.OutputTokens,
		"tool_calls", len(out.Message.ToolCalls),
	)
	return out, nil
}

// maxImageBytes caps a fetched image, since it is inlined in the request.
const maxImageBytes = 20 << 20

// inlineImages returns messages with image URLs replaced by base64
// payloads, the only form Ollama accepts. An image that cannot be
// fetched is dropped and noted in the message text. The input slice is
// not modified.
func (c *OllamaClient) inlineImages(ctx context.Context, messages []Message) []Message {
	var out []Message
	for i, m := range messages {
		if len(m.Images) == 0 {
			continue
		}
		if out == nil {
			out = slices.Clone(messages)
		}
		images := make([]string, 0, len(m.Images))
		for _, img := range m.Images {
			data, err := c.imagePayload(ctx, img)
			if err != nil {
				c.logger.Warn("image dropped", "url", img, "error", err)
				m.Content = strings.TrimSpace(m.Content + "\n[image could not be loaded: " + img + "]")
				continue
			}
			images = append(images, data)
		}
		m.Images = images
		out[i] = m
	}
	if out == nil {
		return messages
	}
	return out
}

// imagePayload returns the base64 body for img, which may be an
// http(s) URL, a base64 data URL, or an already encoded payload.
func (c *OllamaClient) imagePayload(ctx context.Context, img string) (string, error) {
	if strings.HasPrefix(img, "data:") {
		_, data, ok := strings.Cut(img, ";base64,")
		if !ok {
			return "", fmt.Errorf("data URL is not base64")
		}
		return data, nil
	}
	if !strings.HasPrefix(img, "http://") && !strings.HasPrefix(img, "https://") {
		return img, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, img, nil)
	if err != nil {
		return "", fmt.Errorf("create image request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) > maxImageBytes {
		return "", fmt.Errorf("image larger than %d bytes", maxImageBytes)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func toOllamaMessages(messages []Message) []ollamaMessage {
	// tool_name correlates a tool result with its call in Ollama.
	names := make(map[string]string)
	out := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		om := ollamaMessage{Role: m.Role, Content: m.Content, Images: m.Images}
		for _, tc := range m.ToolCalls {
			var wire ollamaToolCall
			wire.ID = tc.ID
			wire.Function.Name = tc.Function.Name
			wire.Function.Arguments = tc.Function.Arguments
			om.ToolCalls = append(om.ToolCalls, wire)
			if tc.ID != "" {
				names[tc.ID] = tc.Function.Name
			}
		}
		if m.Role == RoleTool {
			om.ToolName = names[m.ToolCallID]
		}
		out = append(out, om)
	}
	return out
}

func fromOllama(wire *ollamaResponse) *ChatResponse {
	msg := Message{Role: wire.Message.Role, Content: wire.Message.Content}
	if msg.Role == "" {
		msg.Role = RoleAssistant
	}
	for _, tc := range wire.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, NewToolCall(tc.ID, tc.Function.Name, tc.Function.Arguments))
	}
	created, _ := time.Parse(time.RFC3339Nano, wire.CreatedAt)
	return &ChatResponse{
		Model:         wire.Model,
		CreatedAt:     created,
		Message:       msg,
		Done:          wire.Done,
		InputTokens:   wire.PromptEvalCount,
		OutputTokens:  wire.EvalCount,
		TotalDuration: time.Duration(wire.TotalDuration),
	}
}

// extractToolNames returns the function names from OpenAI-style tool
// definitions.
func extractToolNames(tools []map[string]any) []string {
	var names []string
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			continue
		}
		if name, _ := fn["name"].(string); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// parseTextToolCalls extracts tool calls that a model wrote into its
// content. Handles a raw object, an array of objects, and the
// <tool_call>...</tool_call> tagged form. When validTools is non-empty,
// calls naming other tools are dropped.
func parseTextToolCalls(content string, validTools []string) []ToolCall {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	if start := strings.Index(content, "<tool_call>"); start != -1 {
		rest := content[start+len("<tool_call>"):]
		if end := strings.Index(rest, "</tool_call>"); end != -1 {
			rest = rest[:end]
		}
		content = strings.TrimSpace(rest)
	}

	type textCall struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}

	valid := func(name string) bool {
		return name != "" && (len(validTools) == 0 || slices.Contains(validTools, name))
	}

	var calls []textCall
	if err := json.Unmarshal([]byte(content), &calls); err == nil && len(calls) > 0 {
		var out []ToolCall
		for _, c := range calls {
			if valid(c.Name) {
				out = append(out, NewToolCall("", c.Name, c.Arguments))
			}
		}
		return out
	}

	var single textCall
	if err := json.Unmarshal([]byte(content), &single); err == nil && valid(single.Name) {
		return []ToolCall{NewToolCall("", single.Name, single.Arguments)}
	}
	return nil
}

// Ping checks if Ollama is reachable.
func (c *OllamaClient) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API error %d", resp.StatusCode)
	}
	return nil
}
