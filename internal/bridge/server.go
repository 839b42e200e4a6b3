package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"image-compressor-go/internal/compressor"
	"image-compressor-go/internal/logger"
)

// maxLineSize bounds a single request line.
const maxLineSize = 16 * 1024 * 1024

// Server answers bridge requests. It keeps no per-request state; callers that
// share one Server across goroutines serialize access themselves.
type Server struct {
	compressor compressor.Compressor
	defaults   compressor.CompressOptions
	version    string
	log        *logrus.Entry
}

// NewServer creates a bridge server. defaults seeds every tool call before the
// tool arguments are applied.
func NewServer(c compressor.Compressor, defaults compressor.CompressOptions, version string, log *logrus.Logger) *Server {
	return &Server{
		compressor: c,
		defaults:   defaults,
		version:    version,
		log:        logger.ForPlugin(log, ServerName),
	}
}

// Handle answers one request. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, req Request) *Response {
	if req.IsNotification() {
		s.log.WithField("method", req.Method).Debug("Notification ignored")
		return nil
	}

	switch req.Method {
	case "initialize":
		s.log.Info("Plugin initialized")
		return newResult(req.ID, map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities":    map[string]interface{}{"tools": map[string]interface{}{}},
			"serverInfo":      map[string]interface{}{"name": ServerName, "version": s.version},
		})
	case "ping", "shutdown":
		return newResult(req.ID, map[string]interface{}{})
	case "health/check":
		return newResult(req.ID, map[string]interface{}{"ok": true})
	case "tools/list":
		return newResult(req.ID, map[string]interface{}{"tools": Tools()})
	case "tools/call":
		result, rpcErr := s.callTool(ctx, req.Params)
		if rpcErr != nil {
			return &Response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr}
		}
		return newResult(req.ID, result)
	default:
		return newError(req.ID, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

type toolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) callTool(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	var call toolCall
	if rpcErr := decodeArgs(params, &call); rpcErr != nil {
		return nil, rpcErr
	}
	return s.CallTool(ctx, call.Name, call.Arguments)
}

// CallTool runs the named tool with its JSON arguments.
func (s *Server) CallTool(ctx context.Context, name string, args json.RawMessage) (interface{}, *RPCError) {
	s.log.WithField("tool", name).Debug("Tool call")

	switch name {
	case ToolCompressImage:
		return s.callCompressImage(ctx, args)
	case ToolCompressDirectory:
		return s.callCompressDirectory(ctx, args)
	default:
		return nil, &RPCError{Code: CodeMethodNotFound, Message: fmt.Sprintf("Unknown tool: %s", name)}
	}
}

// IsToolCall reports whether req runs a tool, as opposed to answering from
// server metadata.
func IsToolCall(req Request) bool {
	return req.Method == "tools/call"
}

// HandleLine parses one request line and answers it. Unparseable input
// returns an error and no response.
func (s *Server) HandleLine(ctx context.Context, line []byte) (*Response, error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, fmt.Errorf("JSON parse error: %w", err)
	}
	return s.Handle(ctx, req), nil
}

// Serve reads requests from r one per line and writes responses to w until r
// is exhausted, a shutdown request is answered, or ctx is cancelled. Bad lines
// are logged and skipped.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.WithError(err).Error("JSON parse error")
			continue
		}

		resp := s.Handle(ctx, req)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
		if req.Method == "shutdown" {
			s.log.Info("Shutdown requested")
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		s.log.WithError(err).Error("stdin read error")
		return err
	}
	return nil
}
