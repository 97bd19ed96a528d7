// Package agent implements the core agent loop.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/assistente/internal/llm"
	"github.com/nugget/assistente/internal/prompts"
	"github.com/nugget/assistente/internal/store"
	"github.com/nugget/assistente/internal/temporal"
	"github.com/nugget/assistente/internal/tools"
)

// Defaults applied by [NewLoop] when the config leaves a field zero.
const (
	DefaultMaxIterations = 5
	DefaultHistoryLimit  = 20
	DefaultLLMTimeout    = 60 * time.Second
	DefaultToolTimeout   = 15 * time.Second
)

// ErrInvalidRequest is returned for requests with no user or no input.
var ErrInvalidRequest = errors.New("invalid request")

// Request represents an incoming message.
type Request struct {
	UserID    string `json:"user_id"`
	Content   string `json:"content"`
	MediaURL  string `json:"media_url,omitempty"`
	MediaKind string `json:"media_kind,omitempty"`
	MessageID string `json:"message_id,omitempty"`

	// PersistInput makes Process store the user turn before running.
	PersistInput bool `json:"-"`
}

// Response is the outward result of processing a request.
type Response struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// ToolRecord is one executed tool call.
type ToolRecord struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Arguments   map[string]any `json:"arguments"`
	Observation string         `json:"observation"`
	Failed      bool           `json:"failed"`
	Duration    time.Duration  `json:"duration"`
}

// Result is the detailed outcome of [Loop.Run].
type Result struct {
	Content    string       `json:"content"`
	Model      string       `json:"model"`
	Iterations int          `json:"iterations"`
	ToolCalls  []ToolRecord `json:"tool_calls,omitempty"`

	// Exhausted is set when the iteration bound stopped the loop before
	// the model answered.
	Exhausted bool `json:"exhausted"`

	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// UpstreamError reports that the model provider failed. It is the only
// error that fails a request once it has started.
type UpstreamError struct {
	Model     string
	Iteration int
	Err       error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("llm %s failed on iteration %d: %v", e.Model, e.Iteration+1, e.Err)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error { return e.Err }

// Store is the persistence the loop needs.
type Store interface {
	ContextStore
	AppendTurn(ctx context.Context, t *store.Turn) error
}

// Config tunes a [Loop].
type Config struct {
	Model         string
	MaxIterations int
	HistoryLimit  int
	LLMTimeout    time.Duration
	ToolTimeout   time.Duration

	// Location is the fixed civil offset of the user.
	Location *time.Location
}

// Loop is the core agent execution loop.
type Loop struct {
	logger    *slog.Logger
	llm       llm.Client
	tools     *tools.Registry
	store     Store
	assembler *Assembler
	cfg       Config

	now func() time.Time
}

// NewLoop creates a new agent loop.
func NewLoop(logger *slog.Logger, client llm.Client, registry *tools.Registry, st Store, cfg Config) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.HistoryLimit < 0 {
		cfg.HistoryLimit = 0
	} else if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	logger = logger.With("component", "agent")
	return &Loop{
		logger:    logger,
		llm:       client,
		tools:     registry,
		store:     st,
		assembler: NewAssembler(st, cfg.HistoryLimit, cfg.Location, logger),
		cfg:       cfg,
		now:       time.Now,
	}
}

// Tools returns the registry the loop dispatches to.
func (l *Loop) Tools() *tools.Registry {
	return l.tools
}

// Process runs a request and folds the outcome into a [Response].
// Failures become Success=false; nothing is returned as an error.
func (l *Loop) Process(ctx context.Context, req *Request) Response {
	if req.PersistInput && req.UserID != "" {
		if req.MessageID == "" {
			req.MessageID = store.NewID()
		}
		err := l.store.AppendTurn(ctx, &store.Turn{
			UserID:    req.UserID,
			Role:      llm.RoleUser,
			Content:   req.Content,
			MessageID: req.MessageID,
		})
		if err != nil {
			l.logger.Error("failed to persist user turn", "user", req.UserID, "error", err)
		}
	}

	res, err := l.Run(ctx, req)
	if err != nil {
		return Response{Success: false, Error: err.Error()}
	}
	return Response{Success: true, Response: res.Content}
}

// Run executes the reason/act loop for one request: call the model,
// execute any tool calls it makes, feed the observations back, and
// repeat until it answers or the iteration bound is reached.
func (l *Loop) Run(ctx context.Context, req *Request) (*Result, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Content) == "" && req.MediaURL == "" {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidRequest)
	}

	start := l.now()
	ref := start.In(l.cfg.Location)
	treq := tools.Request{UserID: req.UserID, Reference: ref, Location: l.cfg.Location}
	if at, ok := temporal.DetectOverride(req.Content, ref); ok {
		treq.Override = &at
		l.logger.Debug("time override detected", "user", req.UserID, "at", at.Format(time.RFC3339))
	}
	ctx = tools.WithRequest(ctx, treq)

	messages, err := l.assembler.Build(ctx, Input{
		UserID:    req.UserID,
		Content:   req.Content,
		MediaURL:  req.MediaURL,
		MediaKind: req.MediaKind,
		MessageID: req.MessageID,
		Reference: ref,
	})
	if err != nil {
		return nil, fmt.Errorf("assemble conversation: %w", err)
	}

	l.logger.Info("agent loop started",
		"user", req.UserID,
		"messages", len(messages),
		"model", l.cfg.Model,
	)

	toolDefs := l.tools.List()
	res := &Result{Model: l.cfg.Model}
	lastText := ""
	answered := false

	for i := 0; i < l.cfg.MaxIterations; i++ {
		res.Iterations = i + 1

		resp, err := l.chat(ctx, messages, toolDefs)
		if err != nil {
			l.logger.Error("LLM call failed", "user", req.UserID, "iteration", i+1, "error", err)
			return nil, &UpstreamError{Model: l.cfg.Model, Iteration: i, Err: err}
		}
		res.InputTokens += resp.InputTokens
		res.OutputTokens += resp.OutputTokens
		if resp.Model != "" {
			res.Model = resp.Model
		}

		msg := resp.Message
		if text := strings.TrimSpace(msg.Content); text != "" {
			lastText = text
		}

		if len(msg.ToolCalls) == 0 {
			answered = true
			break
		}

		calls := make([]llm.ToolCall, len(msg.ToolCalls))
		for j, tc := range msg.ToolCalls {
			if tc.ID == "" {
				tc.ID = fmt.Sprintf("call_%d_%d", i, j)
			}
			calls[j] = tc
		}
		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: calls,
		})

		for _, tc := range calls {
			rec := l.execute(ctx, req.UserID, i, tc)
			res.ToolCalls = append(res.ToolCalls, rec)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    rec.Observation,
				ToolCallID: tc.ID,
			})
		}
	}

	res.Content = lastText
	if res.Content == "" {
		res.Content = prompts.FallbackResponse
	}
	if !answered {
		res.Exhausted = true
		l.logger.Warn("max iterations reached",
			"user", req.UserID,
			"iterations", res.Iterations,
			"tool_calls", len(res.ToolCalls),
		)
	}

	if err := l.store.AppendTurn(ctx, &store.Turn{
		UserID:  req.UserID,
		Role:    llm.RoleAssistant,
		Content: res.Content,
	}); err != nil {
		l.logger.Error("failed to persist assistant turn", "user", req.UserID, "error", err)
	}

	l.logger.Info("agent loop completed",
		"user", req.UserID,
		"iterations", res.Iterations,
		"tool_calls", len(res.ToolCalls),
		"exhausted", res.Exhausted,
		"input_tokens", res.InputTokens,
		"output_tokens", res.OutputTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return res, nil
}

func (l *Loop) chat(ctx context.Context, messages []llm.Message, toolDefs []map[string]any) (*llm.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.LLMTimeout)
	defer cancel()
	return l.llm.Chat(ctx, l.cfg.Model, messages, toolDefs)
}

// execute runs one tool call under its own deadline and renders the
// outcome. Tool failures never end the loop.
func (l *Loop) execute(ctx context.Context, userID string, iter int, tc llm.ToolCall) ToolRecord {
	ctx, cancel := context.WithTimeout(ctx, l.cfg.ToolTimeout)
	defer cancel()

	begin := time.Now()
	result, err := l.tools.Execute(ctx, tc)
	rec := ToolRecord{
		ID:          tc.ID,
		Name:        tc.Function.Name,
		Arguments:   tc.Function.Arguments,
		Observation: tools.Observe(result, err),
		Failed:      err != nil,
		Duration:    time.Since(begin),
	}

	attrs := []any{"user", userID, "iteration", iter + 1, "tool", rec.Name, "elapsed", rec.Duration.Round(time.Millisecond)}
	var execution *tools.ExecutionError
	switch {
	case err == nil:
		l.logger.Info("tool executed", attrs...)
	case errors.As(err, &execution):
		l.logger.Error("tool failed", append(attrs, "error", err)...)
	default:
		l.logger.Warn("tool rejected", append(attrs, "error", err)...)
	}
	l.logger.Log(ctx, llm.LevelTrace, "tool observation", "tool", rec.Name, "args", rec.Arguments, "observation", rec.Observation)
	return rec
}
