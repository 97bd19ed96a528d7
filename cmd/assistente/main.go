// Assistente is a personal assistant agent reached through chat.
//
// It runs a bounded reason/act loop over a language model and a set of
// tools for collections, reminders, tasks, memories and user rules, and
// exposes that loop over HTTP and WebSocket, as an MCP server, and as a
// one-shot CLI. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	assistente serve                  Start the API server and reminder poller
//	assistente init [dir]             Write an example config.yaml
//	assistente ask [-user id] <text>  Send one message and print the reply
//	assistente mcp [-user id]         Serve the tools over MCP stdio
//	assistente version                Print version and build information
//	assistente -o json version        Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nugget/assistente/internal/agent"
	"github.com/nugget/assistente/internal/api"
	"github.com/nugget/assistente/internal/buildinfo"
	"github.com/nugget/assistente/internal/config"
	"github.com/nugget/assistente/internal/embeddings"
	"github.com/nugget/assistente/internal/llm"
	"github.com/nugget/assistente/internal/mcpserver"
	"github.com/nugget/assistente/internal/notify"
	"github.com/nugget/assistente/internal/store"
	"github.com/nugget/assistente/internal/tools"
)

// defaultUser is the user ID for CLI and MCP sessions when -user is
// not given.
const defaultUser = "cli"

// main constructs the OS-level environment and delegates to [run], so
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point. Arguments are parsed by hand rather than
// with the flag package, whose package-level state gets in the way of
// calling run from parallel tests.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case command != "":
			cmdArgs = append(cmdArgs, args[i])
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-"):
			command = args[i]
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		user, rest, err := userFlag(cmdArgs)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return fmt.Errorf("usage: assistente ask [-user id] <message>")
		}
		return runAsk(ctx, stdout, stderr, configPath, outputFmt, user, strings.Join(rest, " "))
	case "mcp":
		user, _, err := userFlag(cmdArgs)
		if err != nil {
			return err
		}
		return runMCP(ctx, stderr, configPath, user)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// userFlag extracts "-user <id>" or "-user=<id>" from subcommand args.
func userFlag(args []string) (string, []string, error) {
	user := defaultUser
	var rest []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-user":
			if i+1 >= len(args) || strings.TrimSpace(args[i+1]) == "" {
				return "", nil, errors.New("-user needs a value")
			}
			user = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-user="):
			user = strings.TrimPrefix(args[i], "-user=")
			if strings.TrimSpace(user) == "" {
				return "", nil, errors.New("-user needs a value")
			}
		default:
			rest = append(rest, args[i])
		}
	}
	return user, rest, nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Get()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, f := range info.Fields() {
		fmt.Fprintf(w, "  %-12s %s\n", f[0]+":", f[1])
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Assistente - personal assistant agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: assistente [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve                  Start the API server and reminder poller")
	fmt.Fprintln(w, "  init [dir]             Write an example config.yaml (default: .)")
	fmt.Fprintln(w, "  ask [-user id] <text>  Send one message and print the reply")
	fmt.Fprintln(w, "  mcp [-user id]         Serve the tools over MCP stdio")
	fmt.Fprintln(w, "  version                Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/assistente/config.yaml, /etc/assistente/config.yaml")
	return nil
}

// runAsk sends one message through the full agent (persisted store,
// tools, history) and prints the reply. Logs go to stderr so stdout
// carries only the answer.
func runAsk(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt, user, message string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)
	logger.Debug("config loaded", "path", cfgPath)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	resp := a.loop.Process(ctx, &agent.Request{UserID: user, Content: message, PersistInput: true})
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else if resp.Success {
		fmt.Fprintln(stdout, resp.Response)
	}
	if !resp.Success {
		return fmt.Errorf("ask: %s", resp.Error)
	}
	return nil
}

// runMCP serves the tool registry over stdio. stdout belongs to the
// protocol, so logs go to stderr.
func runMCP(ctx context.Context, stderr io.Writer, configPath, user string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := configuredLogger(stderr, cfg)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := mcpserver.New(a.registry, user, a.loc, logger)
	if err != nil {
		return err
	}
	logger.Info("serving MCP over stdio", "user", user, "tools", len(a.registry.Names()))
	return srv.Serve()
}

// runServe starts the API server and the reminder poller and blocks
// until SIGINT or SIGTERM.
//
// The shutdown sequence is:
//  1. The signal cancels the context, stopping the poller
//  2. The MQTT publisher announces offline and disconnects
//  3. HTTP connections drain
//  4. The store closes via defer
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := config.NewLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting assistente", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "branch", buildinfo.GitBranch, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger = configuredLogger(stdout, cfg)

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Models.Default,
		"ollama_url", cfg.Models.OllamaURL,
		"utc_offset", cfg.Locale.UTCOffset,
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// --- Reminder notifications ---
	var publisher notify.Publisher = notify.NewLogPublisher(logger)
	var mqttPub *notify.MQTTPublisher
	if cfg.MQTT.Configured() {
		mqttPub = notify.NewMQTTPublisher(cfg.MQTT, logger)
		if err := mqttPub.Start(ctx); err != nil {
			return fmt.Errorf("start mqtt publisher: %w", err)
		}
		publisher = mqttPub
		logger.Info("reminder notifications via MQTT", "broker", cfg.MQTT.Broker, "topic", cfg.MQTT.Topic)
	} else {
		logger.Info("MQTT not configured - reminder notifications go to the log")
	}

	poller := notify.NewPoller(a.store, publisher, cfg.Reminders.PollInterval(), a.loc, logger)
	go poller.Run(ctx)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, cfg.Listen.AllowedOrigins, a.loop, logger)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if mqttPub != nil {
			if err := mqttPub.Stop(shutdownCtx); err != nil {
				logger.Error("mqtt shutdown failed", "error", err)
			}
		}
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("assistente stopped")
	return nil
}

// app holds the components every subcommand shares.
type app struct {
	store    *store.Store
	registry *tools.Registry
	loop     *agent.Loop
	loc      *time.Location
}

// newApp opens the store and wires the LLM client, embeddings, tool
// registry and agent loop from cfg.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	st, err := store.NewStore(cfg.Store.Driver, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	logger.Info("store opened", "driver", cfg.Store.Driver, "path", cfg.Store.Path)

	llmClient, err := createLLMClient(cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	deps := tools.Deps{
		Collections:     st,
		Reminders:       st,
		Tasks:           st,
		Memories:        st,
		Rules:           st,
		MemoryThreshold: float32(cfg.Memory.SimilarityThreshold),
		MemoryLimit:     cfg.Memory.MaxResults,
		Logger:          logger,
	}
	// Memory tools are registered only with an embedder.
	if cfg.Embeddings.Enabled {
		deps.Embedder = embeddings.New(embeddings.Config{
			BaseURL: cfg.Embeddings.BaseURL,
			Model:   cfg.Embeddings.Model,
			Logger:  logger,
		})
		logger.Info("embeddings enabled", "model", cfg.Embeddings.Model)
	}
	registry := tools.NewRegistry(deps)

	loop := agent.NewLoop(logger, llmClient, registry, st, agent.Config{
		Model:         cfg.Models.Default,
		MaxIterations: cfg.Agent.MaxIterations,
		HistoryLimit:  cfg.Agent.HistoryLimit,
		LLMTimeout:    cfg.Agent.LLMTimeout(),
		ToolTimeout:   cfg.Agent.ToolTimeout(),
		Location:      loc,
	})
	logger.Info("agent ready", "tools", registry.Names())

	return &app{store: st, registry: registry, loop: loop, loc: loc}, nil
}

// Close releases the store.
func (a *app) Close() error {
	return a.store.Close()
}

// configuredLogger builds the logger the config asks for. The level
// was checked by [config.Config.Validate].
func configuredLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	level, _ := config.ParseLogLevel(cfg.LogLevel)
	return config.NewLogger(w, level, cfg.LogFormat)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// createLLMClient builds the provider router from the configuration.
// Each listed model is routed to its provider; unlisted models go to
// Ollama.
func createLLMClient(cfg *config.Config, logger *slog.Logger) (*llm.Router, error) {
	providers := map[string]llm.Client{
		"ollama": llm.NewOllamaClient(cfg.Models.OllamaURL, logger),
	}
	if cfg.Anthropic.Configured() {
		providers["anthropic"] = llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
		logger.Info("Anthropic provider configured")
	}

	routes := make(map[string]string, len(cfg.Models.Available))
	for _, m := range cfg.Models.Available {
		routes[m.Name] = m.Provider
	}

	router, err := llm.NewRouter(providers, routes, "ollama")
	if err != nil {
		return nil, fmt.Errorf("configure models: %w", err)
	}
	logger.Info("LLM client initialized", "default_model", cfg.Models.Default, "default_provider", router.Provider(cfg.Models.Default))
	return router, nil
}
