package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"image-compressor-go/internal/bridge"
	"image-compressor-go/internal/compressor"
)

// maxBodySize bounds request bodies on every endpoint.
const maxBodySize = 1 << 20

// Server is the HTTP and WebSocket transport for the bridge tools. It runs at
// most one tool at a time.
type Server struct {
	log        *logrus.Logger
	bridge     *bridge.Server
	version    string
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]*sync.Mutex
	wsMutex    sync.RWMutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	current        *OperationStatus
	last           *OperationStatus

	// background batch runs, waited on by Stop
	wg sync.WaitGroup
}

// OperationStatus describes a running or finished tool call.
type OperationStatus struct {
	Tool       string      `json:"tool"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Result     interface{} `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    int         `json:"code,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// FileProgress is broadcast for every file of a batch.
type FileProgress struct {
	Input           string  `json:"input"`
	Output          string  `json:"output,omitempty"`
	Action          string  `json:"action"`
	Stage           string  `json:"stage,omitempty"`
	Error           string  `json:"error,omitempty"`
	OriginalBytes   int64   `json:"original_bytes,omitempty"`
	CompressedBytes int64   `json:"compressed_bytes,omitempty"`
	SavingsPercent  float64 `json:"savings_percent,omitempty"`
	DurationMS      int64   `json:"duration_ms"`
}

// NewServer creates the transport around a bridge server.
func NewServer(b *bridge.Server, version string, log *logrus.Logger) *Server {
	s := &Server{
		log:       log,
		bridge:    b,
		version:   version,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]*sync.Mutex),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/tools", s.handleTools).Methods("GET")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/batch", s.handleBatch).Methods("POST")

	s.router.HandleFunc("/rpc", s.handleRPC).Methods("POST")
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	// /api/compress runs the whole compression inside the request
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://%s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}

// beginOperation claims the single operation slot.
func (s *Server) beginOperation(tool string) bool {
	s.operationMutex.Lock()
	defer s.operationMutex.Unlock()
	if s.isRunning {
		return false
	}
	s.isRunning = true
	s.current = &OperationStatus{Tool: tool, StartedAt: time.Now()}
	return true
}

func (s *Server) endOperation(result interface{}, rpcErr *bridge.RPCError) {
	now := time.Now()
	s.operationMutex.Lock()
	op := s.current
	op.FinishedAt = &now
	op.Result = result
	if rpcErr != nil {
		op.Error = rpcErr.Message
	}
	s.last = op
	s.current = nil
	s.isRunning = false
	s.operationMutex.Unlock()

	if rpcErr != nil {
		s.broadcastWSMessage("operation_error", op)
	} else {
		s.broadcastWSMessage("operation_completed", op)
	}
}

// runTool runs a tool in the operation slot. ok is false when another tool is
// already running.
func (s *Server) runTool(ctx context.Context, name string, args json.RawMessage) (result interface{}, rpcErr *bridge.RPCError, ok bool) {
	if !s.beginOperation(name) {
		return nil, nil, false
	}
	s.broadcastWSMessage("operation_started", map[string]interface{}{"tool": name})
	result, rpcErr = s.bridge.CallTool(ctx, name, args)
	s.endOperation(result, rpcErr)
	return result, rpcErr, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"ok":      true,
			"name":    bridge.ServerName,
			"version": s.version,
		},
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	data := map[string]interface{}{
		"running": s.isRunning,
		"current": copyStatus(s.current),
		"last":    copyStatus(s.last),
	}
	s.operationMutex.RUnlock()

	s.writeJSON(w, APIResponse{Success: true, Data: data})
}

func copyStatus(op *OperationStatus) *OperationStatus {
	if op == nil {
		return nil
	}
	c := *op
	return &c
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, APIResponse{Success: true, Data: bridge.Tools()})
}

func readArgs(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	if len(body) > 0 && !json.Valid(body) {
		return nil, fmt.Errorf("invalid JSON")
	}
	return body, nil
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	args, err := readArgs(r)
	if err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, rpcErr, ok := s.runTool(r.Context(), bridge.ToolCompressImage, args)
	if !ok {
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	if rpcErr != nil {
		s.writeRPCError(w, rpcErr)
		return
	}
	s.writeJSON(w, APIResponse{Success: true, Data: result})
}

// handleBatch starts a directory run in the background and returns at once;
// progress and the final result arrive over /ws and /api/status.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	args, err := readArgs(r)
	if err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if _, rpcErr := bridge.ParseDirectoryArgs(args); rpcErr != nil {
		s.writeRPCError(w, rpcErr)
		return
	}
	if !s.beginOperation(bridge.ToolCompressDirectory) {
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}

	s.broadcastWSMessage("operation_started", map[string]interface{}{"tool": bridge.ToolCompressDirectory})
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		result, rpcErr := s.bridge.CallTool(context.Background(), bridge.ToolCompressDirectory, args)
		s.endOperation(result, rpcErr)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(APIResponse{
		Success: true,
		Message: "Batch started",
	})
}

// dispatch answers one JSON-RPC request, running tool calls in the operation
// slot. busy reports a rejected tool call.
func (s *Server) dispatch(ctx context.Context, req bridge.Request) (resp *bridge.Response, busy bool) {
	if !bridge.IsToolCall(req) || req.IsNotification() {
		return s.bridge.Handle(ctx, req), false
	}

	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &call); err != nil {
			return &bridge.Response{JSONRPC: "2.0", ID: req.ID, Error: &bridge.RPCError{
				Code: bridge.CodeInvalidParams, Message: fmt.Sprintf("Invalid arguments: %v", err),
			}}, false
		}
	}

	result, rpcErr, ok := s.runTool(ctx, call.Name, call.Arguments)
	if !ok {
		return &bridge.Response{JSONRPC: "2.0", ID: req.ID, Error: &bridge.RPCError{
			Code: bridge.CodeToolFailed, Message: "Operation already in progress",
		}}, true
	}
	if rpcErr != nil {
		return &bridge.Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}, false
	}
	return &bridge.Response{JSONRPC: "2.0", ID: req.ID, Result: result}, false
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req bridge.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(bridge.Response{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &bridge.RPCError{
			Code: bridge.CodeParseError, Message: fmt.Sprintf("JSON parse error: %v", err),
		}})
		return
	}

	resp, busy := s.dispatch(r.Context(), req)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if busy {
		w.WriteHeader(http.StatusConflict)
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	writeMu := &sync.Mutex{}
	s.wsMutex.Lock()
	s.wsClients[conn] = writeMu
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var req bridge.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.log.WithError(err).Warn("Ignoring malformed WebSocket message")
			continue
		}
		resp, _ := s.dispatch(r.Context(), req)
		if resp == nil {
			continue
		}
		writeMu.Lock()
		err = conn.WriteJSON(WSMessage{Type: "rpc_response", Data: resp})
		writeMu.Unlock()
		if err != nil {
			break
		}
	}
}

// Progress broadcasts one batch file outcome. It matches
// compressor.ProgressFunc.
func (s *Server) Progress(res compressor.CompressionResult) {
	p := FileProgress{
		Input:           res.InputPath,
		Output:          res.OutputPath,
		Action:          res.Action,
		Stage:           res.Stage,
		OriginalBytes:   res.Stats.OriginalBytes,
		CompressedBytes: res.Stats.CompressedBytes,
		SavingsPercent:  res.Stats.SavingsPercent,
		DurationMS:      res.FinishedAt.Sub(res.StartedAt).Milliseconds(),
	}
	if res.Error != nil {
		p.Error = res.Error.Error()
	}
	s.broadcastWSMessage("file_progress", p)
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()

	for conn, writeMu := range s.wsClients {
		writeMu.Lock()
		err := conn.WriteMessage(websocket.TextMessage, msgBytes)
		writeMu.Unlock()
		if err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			// Remove failed connection
			go func(c *websocket.Conn) {
				s.wsMutex.Lock()
				delete(s.wsClients, c)
				s.wsMutex.Unlock()
				c.Close()
			}(conn)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

// writeRPCError maps a tool error onto an HTTP status: bad arguments are the
// client's fault, pipeline failures are unprocessable input.
func (s *Server) writeRPCError(w http.ResponseWriter, rpcErr *bridge.RPCError) {
	status := http.StatusUnprocessableEntity
	switch rpcErr.Code {
	case bridge.CodeInvalidParams:
		status = http.StatusBadRequest
	case bridge.CodeMethodNotFound:
		status = http.StatusNotFound
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   rpcErr.Message,
		Code:    rpcErr.Code,
	})
}
