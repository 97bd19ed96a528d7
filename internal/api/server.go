// Package api implements the HTTP and WebSocket chat API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"

	"github.com/nugget/assistente/internal/agent"
	"github.com/nugget/assistente/internal/buildinfo"
	"github.com/nugget/assistente/internal/tools"
)

// Agent is the request processor behind the API.
type Agent interface {
	Process(ctx context.Context, req *agent.Request) agent.Response
	Tools() *tools.Registry
}

// MessageResponse is the reply to a chat message. HTML carries the
// response rendered from Markdown for chat clients that display it.
type MessageResponse struct {
	agent.Response
	HTML string `json:"html,omitempty"`
}

// ToolInfo describes one registered tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, code int, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	origins  []string
	agent    Agent
	logger   *slog.Logger
	server   *http.Server
	upgrader websocket.Upgrader
}

// NewServer creates a new API server. origins lists the browser
// origins allowed besides the server's own.
func NewServer(address string, port int, origins []string, a Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		address: address,
		port:    port,
		origins: origins,
		agent:   a,
		logger:  logger.With("component", "api"),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// checkOrigin admits clients without an Origin header, same-origin
// pages and the configured origins. CORS does not cover WebSocket
// upgrades, so the socket needs its own check.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || strings.EqualFold(strings.TrimRight(o, "/"), origin) {
			return true
		}
	}
	return false
}

// Handler returns the routed handler. Start serves it; tests mount it
// on an httptest server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.withLogging)
	// Without configured origins no CORS headers are sent, which keeps
	// browsers same-origin.
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/tools", s.handleTools)
		r.Post("/messages", s.handleMessage)
		r.Get("/ws", s.handleWebSocket)
	})
	return r
}

// Start begins serving HTTP requests. It blocks until the server is
// shut down.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // a full loop can take several model calls
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Runtime(), s.logger)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	all := s.agent.Tools().All()
	out := make([]ToolInfo, 0, len(all))
	for _, t := range all {
		out = append(out, ToolInfo{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validate(&req); msg != "" {
		s.errorResponse(w, http.StatusBadRequest, msg)
		return
	}

	resp := s.process(r.Context(), &req)
	code := http.StatusOK
	if !resp.Success {
		code = http.StatusBadGateway
	}
	writeJSON(w, code, resp, s.logger)
}

// handleWebSocket serves a chat socket: each text frame is one JSON
// request and gets one JSON response frame back, in order.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		var req agent.Request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed", "error", err)
			}
			return
		}

		var resp MessageResponse
		if msg := validate(&req); msg != "" {
			resp.Error = msg
		} else {
			resp = s.process(ctx, &req)
		}

		if err := conn.WriteJSON(resp); err != nil {
			s.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// process runs one request through the agent. The API is the upstream
// caller, so it asks the loop to persist the user turn first.
func (s *Server) process(ctx context.Context, req *agent.Request) MessageResponse {
	req.PersistInput = true
	resp := MessageResponse{Response: s.agent.Process(ctx, req)}
	if resp.Success {
		html, err := renderMarkdown(resp.Response.Response)
		if err != nil {
			s.logger.Debug("markdown render failed", "error", err)
		}
		resp.HTML = html
	}
	return resp
}

func validate(req *agent.Request) string {
	if strings.TrimSpace(req.UserID) == "" {
		return "user_id is required"
	}
	if strings.TrimSpace(req.Content) == "" && req.MediaURL == "" {
		return "content or media_url is required"
	}
	return ""
}

func renderMarkdown(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, MessageResponse{Response: agent.Response{Success: false, Error: message}}, s.logger)
}
