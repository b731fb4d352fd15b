// ABOUTME: MCP-compatible HTTP server exposing the pipeline tools to AI clients.
// ABOUTME: Implements Streamable HTTP transport with session management and per-grant permission gating.

package mcp

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pursuitworks/pursuit-gateway/internal/provider"
	"github.com/pursuitworks/pursuit-gateway/internal/store"
	"github.com/pursuitworks/pursuit-gateway/internal/tools"
)

// Supported MCP protocol versions
var supportedProtocolVersions = map[string]bool{
	"2025-03-26": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version we advertise in initialize responses
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

var toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pursuit_tool_calls_total",
	Help: "Tool invocations by tool name and outcome.",
}, []string{"tool", "outcome"})

// JSON-RPC 2.0 types

// JSONRPCRequest represents a JSON-RPC 2.0 request.
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response.
type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *JSONRPCError   `json:"error,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error object.
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Standard JSON-RPC error codes
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// MCPListToolsResult is the result for tools/list.
type MCPListToolsResult struct {
	Tools []tools.Definition `json:"tools"`
}

// MCPCallToolParams are the params for tools/call.
type MCPCallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MCPCallToolResult is the result for tools/call.
type MCPCallToolResult struct {
	Content []MCPContent `json:"content"`
	IsError bool         `json:"isError,omitempty"`
}

// MCPContent represents content in a tool result.
type MCPContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// mcpSession tracks an active MCP client session and the grant it was
// initialized with.
type mcpSession struct {
	id              string
	protocolVersion string
	grant           *provider.Grant
	ownerToken      string // bearer token used at initialize; re-checked on DELETE
	createdAt       time.Time
}

// sessionStore manages active MCP sessions (in-memory).
type sessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*mcpSession
}

func newSessionStore() *sessionStore {
	return &sessionStore{sessions: make(map[string]*mcpSession)}
}

func (s *sessionStore) create(protocolVersion string, grant *provider.Grant, ownerToken string) *mcpSession {
	sess := &mcpSession{
		id:              uuid.New().String(),
		protocolVersion: protocolVersion,
		grant:           grant,
		ownerToken:      ownerToken,
		createdAt:       time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *sessionStore) get(id string) (*mcpSession, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	return sess, ok
}

func (s *sessionStore) delete(id string) bool {
	s.mu.Lock()
	_, existed := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	return existed
}

// Config holds configuration for the MCP server.
type Config struct {
	Registry *tools.Registry
	Verifier *provider.Provider
	Logger   *slog.Logger
}

// Server implements the MCP Streamable HTTP endpoint. Every session is
// bound to a verified grant; tool calls are gated on the grant's
// permissions before any handler runs.
type Server struct {
	registry *tools.Registry
	verifier *provider.Provider
	logger   *slog.Logger
	sessions *sessionStore
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("verifier is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default().With("component", "mcp")
	}

	return &Server{
		registry: cfg.Registry,
		verifier: cfg.Verifier,
		logger:   logger,
		sessions: newSessionStore(),
	}, nil
}

// RegisterRoutes registers the MCP endpoint on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/mcp", s.handleMCP)
}

// handleMCP is the single MCP endpoint supporting POST and DELETE per
// the Streamable HTTP transport spec.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		// Server-initiated SSE streams are not supported
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, GET, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handleDelete terminates a session. The caller must present the same
// bearer token the session was initialized with.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}

	sess, ok := s.sessions.get(sessionID)
	if !ok {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if sess.ownerToken != "" && bearerToken(r) != sess.ownerToken {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	s.sessions.delete(sessionID)
	s.logger.Info("MCP session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// handlePost processes JSON-RPC messages sent via HTTP POST.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	protoVersion := r.Header.Get("Mcp-Protocol-Version")

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "failed to read request body", nil)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "request body too large", nil)
		return
	}

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.sendJSONRPCError(w, nil, JSONRPCParseError, "invalid JSON", nil)
		return
	}

	if req.JSONRPC != "2.0" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidRequest, "invalid JSON-RPC version", nil)
		return
	}

	isInitialize := req.Method == "initialize"
	isNotification := len(req.ID) == 0 || string(req.ID) == "null"

	// Protocol version header is optional; when present it must be one
	// we speak. Not required on initialize.
	if !isInitialize && protoVersion != "" {
		if !supportedProtocolVersions[protoVersion] {
			http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
			return
		}
	}

	var grant *provider.Grant
	if isInitialize {
		grant, err = s.authenticate(r)
		if err != nil {
			s.sendJSONRPCError(w, nil, JSONRPCInvalidRequest, "invalid or missing bearer token", nil)
			return
		}
	} else {
		if sessionID == "" {
			http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
			return
		}
		sess, ok := s.sessions.get(sessionID)
		if !ok {
			// Session expired or invalid - client must re-initialize
			http.Error(w, "Not Found", http.StatusNotFound)
			return
		}
		grant = sess.grant
	}

	s.logger.Debug("MCP request",
		"method", req.Method,
		"is_notification", isNotification,
		"session_id", sessionID,
	)

	// Notifications: accept and return HTTP 202 with no body
	if isNotification {
		if !strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Warn("received notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		s.handleInitialize(w, r, req, grant)
	case "tools/list":
		s.handleToolsList(w, req)
	case "tools/call":
		s.handleToolsCall(w, r, req, grant)
	default:
		s.sendJSONRPCError(w, req.ID, JSONRPCMethodNotFound, "method not found", nil)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// authenticate verifies the bearer token and returns its grant.
func (s *Server) authenticate(r *http.Request) (*provider.Grant, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, errors.New("missing bearer token")
	}
	return s.verifier.VerifyToken(token)
}

// handleInitialize handles the MCP initialize handshake and creates a session.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, grant *provider.Grant) {
	sess := s.sessions.create(latestProtocolVersion, grant, bearerToken(r))

	s.logger.Info("MCP session created",
		"session_id", sess.id,
		"user_id", grant.UserID,
		"protocol_version", sess.protocolVersion,
	)

	w.Header().Set("Mcp-Session-Id", sess.id)

	result := map[string]any{
		"protocolVersion": latestProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    "pursuit-gateway",
			"version": "1.0.0",
		},
	}
	s.sendJSONRPCResult(w, req.ID, result)
}

// handleToolsList handles tools/list requests. Every session sees the
// full catalog; permissions gate execution, not visibility.
func (s *Server) handleToolsList(w http.ResponseWriter, req JSONRPCRequest) {
	defs := s.registry.Definitions()
	s.logger.Debug("tools/list", "count", len(defs))
	s.sendJSONRPCResult(w, req.ID, MCPListToolsResult{Tools: defs})
}

// handleToolsCall handles tools/call requests. Denials and operation
// failures both come back as a text content envelope with IsError set;
// JSON-RPC errors are reserved for protocol problems.
func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req JSONRPCRequest, grant *provider.Grant) {
	var params MCPCallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "invalid params", nil)
			return
		}
	}

	if params.Name == "" {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool name is required", nil)
		return
	}

	tool, ok := s.registry.Lookup(params.Name)
	if !ok {
		s.sendJSONRPCError(w, req.ID, JSONRPCInvalidParams, "tool not found", nil)
		return
	}

	// Permission gate: the handler is never invoked on denial.
	if !grant.Props.Permissions.Allows(store.Tool(params.Name)) {
		s.logger.Warn("tool call denied",
			"tool_name", params.Name,
			"user_id", grant.UserID,
		)
		toolCallsTotal.WithLabelValues(params.Name, "denied").Inc()
		s.sendJSONRPCResult(w, req.ID, deniedResult(params.Name))
		return
	}

	input := params.Arguments
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage("{}")
	}

	requestID := uuid.New().String()
	s.logger.Debug("tools/call",
		"tool_name", params.Name,
		"request_id", requestID,
		"user_id", grant.UserID,
	)

	text, err := tool.Handler(r.Context(), input)

	var result MCPCallToolResult
	if err != nil {
		s.logger.Warn("tool call failed",
			"tool_name", params.Name,
			"request_id", requestID,
			"error", err,
		)
		toolCallsTotal.WithLabelValues(params.Name, "error").Inc()
		result = MCPCallToolResult{
			Content: []MCPContent{{Type: "text", Text: "Error " + tool.ErrVerb + ": " + err.Error()}},
			IsError: true,
		}
	} else {
		toolCallsTotal.WithLabelValues(params.Name, "ok").Inc()
		result = MCPCallToolResult{
			Content: []MCPContent{{Type: "text", Text: text}},
		}
	}

	s.logger.Debug("tools/call complete",
		"tool_name", params.Name,
		"request_id", requestID,
		"is_error", result.IsError,
	)

	s.sendJSONRPCResult(w, req.ID, result)
}

// deniedResult is the uniform envelope for a permission denial.
func deniedResult(toolName string) MCPCallToolResult {
	action := strings.ReplaceAll(toolName, "_", " ")
	return MCPCallToolResult{
		Content: []MCPContent{{
			Type: "text",
			Text: "Access denied: You don't have permission to " + action + ".",
		}},
		IsError: true,
	}
}

// sendJSONRPCResult sends a successful JSON-RPC response.
func (s *Server) sendJSONRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// sendJSONRPCError sends a JSON-RPC error response.
func (s *Server) sendJSONRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string, data any) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC error response", "error", err)
	}
}
