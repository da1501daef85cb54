// Package preview serves the mapped frame table to a live animation client
// over HTTP and WebSocket using JSON-RPC 2.0 messages.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"gcode-anim/pkg/axismap"
	"gcode-anim/pkg/log"
)

// JSON-RPC 2.0 error codes
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

// Server publishes frame tables to HTTP and WebSocket clients.
type Server struct {
	addr       string
	logger     *log.Logger
	httpServer *http.Server
	mux        *http.ServeMux

	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*WSClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	// frames is replaced wholesale on Publish and never mutated.
	framesMu sync.RWMutex
	frames   []axismap.Record

	listenerMu sync.Mutex
	listener   net.Listener

	running   atomic.Bool
	startTime time.Time
}

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g., ":7125")
	Addr string

	// Logger defaults to the "preview" child of the root logger.
	Logger *log.Logger
}

// New creates a preview server with an empty frame table.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.GetLogger("preview")
	}
	s := &Server{
		addr:      cfg.Addr,
		logger:    logger,
		wsClients: make(map[int64]*WSClient),
		startTime: time.Now(),
	}
	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/server/info", s.handleServerInfo)
	s.mux.HandleFunc("/frames", s.handleFrames)
	s.mux.HandleFunc("/jsonrpc", s.handleJSONRPC)
	s.mux.HandleFunc("/websocket", s.handleWebSocket)

	s.httpServer = &http.Server{Handler: s.corsMiddleware(s.mux)}
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Publish replaces the frame table and notifies every WebSocket client.
func (s *Server) Publish(frames []axismap.Record) {
	snapshot := make([]axismap.Record, len(frames))
	copy(snapshot, frames)

	s.framesMu.Lock()
	s.frames = snapshot
	s.framesMu.Unlock()

	s.broadcast(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notify_frames_updated",
		"params":  []any{map[string]any{"end_frame": len(snapshot)}},
	})
	s.logger.WithField("end_frame", len(snapshot)).Info("frame table published")
}

// Frames returns a copy of the current frame table.
func (s *Server) Frames() []axismap.Record {
	return append([]axismap.Record(nil), s.table()...)
}

// table returns the published table itself. Publish replaces the slice
// rather than writing into it, so callers may read it without the lock
// but must not modify it.
func (s *Server) table() []axismap.Record {
	s.framesMu.RLock()
	defer s.framesMu.RUnlock()
	return s.frames
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("preview listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.listenerMu.Lock()
	s.listener = ln
	s.listenerMu.Unlock()

	s.running.Store(true)
	s.logger.Info("preview server listening on %s", ln.Addr())

	err := s.httpServer.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("preview server: %w", err)
	}
	return nil
}

// Address returns the bound address once serving, else the configured one.
func (s *Server) Address() string {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown closes every WebSocket client and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[int64]*WSClient)
	s.wsClientMu.Unlock()

	return s.httpServer.Shutdown(ctx)
}

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// dispatchMethod routes a method call to the appropriate handler.
func (s *Server) dispatchMethod(method string, params map[string]any) (any, *jsonRPCError) {
	switch method {
	case "server.info":
		return s.methodServerInfo(), nil
	case "frames.get":
		return s.methodFramesGet(params)
	default:
		return nil, &jsonRPCError{Code: codeMethodNotFound, Message: "Method not found: " + method}
	}
}

func (s *Server) methodServerInfo() map[string]any {
	n := len(s.table())
	state := "empty"
	if n > 0 {
		state = "ready"
	}

	s.wsClientMu.RLock()
	clients := len(s.wsClients)
	s.wsClientMu.RUnlock()

	return map[string]any{
		"frames":            n,
		"state":             state,
		"serving":           s.running.Load(),
		"websocket_clients": clients,
		"uptime":            time.Since(s.startTime).Seconds(),
	}
}

// methodFramesGet returns frames in [start_frame, end_frame], both 1-based
// and inclusive. Missing bounds default to the whole table.
func (s *Server) methodFramesGet(params map[string]any) (any, *jsonRPCError) {
	frames := s.table()
	start, end := 1, len(frames)

	for _, b := range []struct {
		key string
		dst *int
	}{{"start_frame", &start}, {"end_frame", &end}} {
		v, ok := params[b.key]
		if !ok {
			continue
		}
		f, isNum := v.(float64)
		if !isNum || f != float64(int(f)) {
			return nil, &jsonRPCError{Code: codeInvalidParams, Message: b.key + " must be an integer"}
		}
		*b.dst = int(f)
	}
	return framesResult(frames, start, end), nil
}

func framesResult(frames []axismap.Record, start, end int) map[string]any {
	if start < 1 {
		start = 1
	}
	if end > len(frames) {
		end = len(frames)
	}
	selected := []axismap.Record{}
	if start <= end {
		selected = frames[start-1 : end]
	}
	return map[string]any{
		"end_frame": len(frames),
		"frames":    selected,
	}
}

// REST endpoint handlers

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{"result": s.methodServerInfo()})
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	params := map[string]any{}
	for _, key := range []string{"start_frame", "end_frame"} {
		raw := r.URL.Query().Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeJSONError(w, &jsonRPCError{Code: codeInvalidParams, Message: key + " must be an integer"})
			return
		}
		params[key] = float64(n)
	}
	result, rpcErr := s.methodFramesGet(params)
	if rpcErr != nil {
		s.writeJSONError(w, rpcErr)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

// handleJSONRPC handles JSON-RPC 2.0 requests over plain HTTP POST.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, errorResponse(nil, codeParseError, "Parse error"))
		return
	}
	s.writeJSON(w, s.call(req))
}

func (s *Server) call(req jsonRPCRequest) jsonRPCResponse {
	result, rpcErr := s.dispatchMethod(req.Method, req.Params)
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
	}
	return jsonRPCResponse{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func errorResponse(id any, code int, message string) jsonRPCResponse {
	return jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	}
}

// corsMiddleware allows browser-based viewers on other origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Warn("failed to write response")
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, rpcErr *jsonRPCError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": rpcErr})
}
