// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/nugget/assistente/internal/llm"
	"github.com/nugget/assistente/internal/store"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                         `json:"name"`
	Description string                                                         `json:"description"`
	Parameters  map[string]any                                                 `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// CollectionStore is the storage the collection, item and query tools need.
type CollectionStore interface {
	CreateCollection(ctx context.Context, c *store.Collection) error
	ListCollections(ctx context.Context, userID string) ([]*store.Collection, error)
	GetCollectionByName(ctx context.Context, userID, name string) (*store.Collection, error)
	UpdateCollection(ctx context.Context, c *store.Collection) error
	DeleteCollection(ctx context.Context, userID, id string) (int, error)

	AddItem(ctx context.Context, it *store.Item) error
	GetItem(ctx context.Context, collectionID, id string) (*store.Item, error)
	ListItems(ctx context.Context, collectionID string, f store.ItemFilter) ([]*store.Item, error)
	FindItems(ctx context.Context, collectionID, substr string) ([]*store.Item, error)
	UpdateItem(ctx context.Context, it *store.Item) error
	DeleteItem(ctx context.Context, collectionID, id string) error
}

// ReminderStore is the storage the reminder tool needs.
type ReminderStore interface {
	CreateReminder(ctx context.Context, r *store.Reminder) error
	GetReminder(ctx context.Context, userID, id string) (*store.Reminder, error)
	ListReminders(ctx context.Context, userID string, includeCompleted bool) ([]*store.Reminder, error)
	FindReminders(ctx context.Context, userID, substr string) ([]*store.Reminder, error)
	UpdateReminder(ctx context.Context, r *store.Reminder) error
	DeleteReminder(ctx context.Context, userID, id string) error
}

// TaskStore is the storage the task tool needs.
type TaskStore interface {
	CreateTask(ctx context.Context, t *store.Task) error
	GetTask(ctx context.Context, userID, id string) (*store.Task, error)
	ListTasks(ctx context.Context, userID, status string) ([]*store.Task, error)
	FindTasks(ctx context.Context, userID, substr string) ([]*store.Task, error)
	UpdateTask(ctx context.Context, t *store.Task) error
	DeleteTask(ctx context.Context, userID, id string) error
}

// MemoryStore is the storage the memory tools need.
type MemoryStore interface {
	SaveMemory(ctx context.Context, m *store.Memory) error
	SearchMemories(ctx context.Context, userID string, query []float32, threshold float32, limit int) ([]store.ScoredMemory, error)
}

// RuleStore is the storage the rule tool needs. Settings live here
// because the preferred name is managed as a reserved rule key.
type RuleStore interface {
	UpsertRule(ctx context.Context, r *store.Rule) (bool, error)
	ListRules(ctx context.Context, userID string) ([]*store.Rule, error)
	DeleteRule(ctx context.Context, userID, key string) error
	GetSettings(ctx context.Context, userID string) (*store.Settings, error)
	SaveSettings(ctx context.Context, st *store.Settings) error
}

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Deps wires the registry to its collaborators. Tools whose
// collaborator is nil are not registered.
type Deps struct {
	Collections CollectionStore
	Reminders   ReminderStore
	Tasks       TaskStore
	Memories    MemoryStore
	Rules       RuleStore
	Embedder    Embedder

	// MemoryThreshold is the minimum cosine similarity for recall.
	MemoryThreshold float32
	// MemoryLimit caps how many memories recall returns.
	MemoryLimit int

	Logger *slog.Logger
}

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	deps   Deps
	logger *slog.Logger
}

// NewEmptyRegistry creates a registry with no tools.
func NewEmptyRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool), logger: slog.Default()}
}

// NewRegistry creates a registry holding every tool whose dependencies
// are present.
func NewRegistry(deps Deps) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MemoryThreshold <= 0 {
		deps.MemoryThreshold = 0.5
	}
	if deps.MemoryLimit <= 0 {
		deps.MemoryLimit = 5
	}

	r := &Registry{
		tools:  make(map[string]*Tool),
		deps:   deps,
		logger: deps.Logger.With("component", "tools"),
	}
	if deps.Collections != nil {
		r.registerCollectionTools()
	}
	if deps.Reminders != nil {
		r.registerReminderTools()
	}
	if deps.Tasks != nil {
		r.registerTaskTools()
	}
	if deps.Memories != nil && deps.Embedder != nil {
		r.registerMemoryTools()
	}
	if deps.Rules != nil {
		r.registerRuleTools()
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns the registered tools sorted by name.
func (r *Registry) All() []*Tool {
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// List returns all tools in the function-calling format the LLM
// clients accept, sorted by name so request bodies are stable.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, t := range r.All() {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs the tool named by call. Request values must be on ctx
// (see [WithRequest]). The returned error is one of the types in
// errors.go; render it with [Observe].
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) (result string, err error) {
	tool := r.tools[call.Function.Name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: call.Function.Name, Available: r.Names()}
	}

	args := call.Function.Arguments
	if args == nil {
		args = map[string]any{}
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("tool handler panicked", "tool", tool.Name, "panic", p)
			result, err = "", execErr(tool.Name, "handler", fmt.Errorf("panic: %v", p))
		}
	}()

	return tool.Handler(ctx, args)
}

// requestFor returns the request values on ctx or an execution error
// when the caller forgot to attach them.
func requestFor(ctx context.Context, tool string) (Request, error) {
	req, ok := RequestFromContext(ctx)
	if !ok {
		return req, execErr(tool, "request", fmt.Errorf("no user on context"))
	}
	return req, nil
}
