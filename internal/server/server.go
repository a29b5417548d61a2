package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ironsheep/imageview-bridge/internal/engine"
	"github.com/ironsheep/imageview-bridge/internal/lifecycle"
)

// Server handles JSON-RPC communication with the host.
type Server struct {
	coord   *lifecycle.Coordinator
	engine  engine.Engine
	log     zerolog.Logger
	version string

	in  io.Reader
	out io.Writer

	// mu serialises writes to out. Responses and notifications from
	// engine goroutines share the stream.
	mu      sync.Mutex
	encoder *json.Encoder

	pending sync.WaitGroup
}

// Request represents an incoming JSON-RPC request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents an outgoing JSON-RPC response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC error
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Notification represents an outgoing notification (no ID)
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeEngineFailure  = -32000
)

// Option configures a Server.
type Option func(*Server)

// WithIO replaces stdin and stdout.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(s *Server) {
		s.in = in
		s.out = out
	}
}

// WithLogger sets the logger. Logs must never go to the protocol stream.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithVersion sets the version reported by initialize.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New creates a new server instance
func New(coord *lifecycle.Coordinator, eng engine.Engine, opts ...Option) *Server {
	s := &Server{
		coord:   coord,
		engine:  eng,
		log:     zerolog.Nop(),
		version: "dev",
		in:      os.Stdin,
		out:     os.Stdout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "server").Logger()
	s.encoder = json.NewEncoder(s.out)
	return s
}

// Run reads requests until the input is exhausted, then waits for
// outstanding work and tears down every view.
func (s *Server) Run() error {
	defer s.coord.Close()

	scanner := bufio.NewScanner(s.in)
	// Increase buffer size for large props (inline data URIs)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn().Err(err).Msg("failed to parse request")
			s.write(s.errorResponse(nil, codeParseError, "Parse error", err.Error()))
			continue
		}

		if resp := s.handleRequest(&req); resp != nil {
			s.write(resp)
		}
	}

	s.pending.Wait()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanner error: %w", err)
	}
	return nil
}

// write encodes one message onto the output stream.
func (s *Server) write(v interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode message")
	}
}

// notify sends a notification to the host.
func (s *Server) notify(method string, params interface{}) {
	s.write(&Notification{JSONRPC: "2.0", Method: method, Params: params})
}

// async runs fn off the read loop and writes its response when done.
func (s *Server) async(fn func() *Response) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if resp := fn(); resp != nil {
			s.write(resp)
		}
	}()
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(req *Request) *Response {
	s.log.Debug().Str("method", req.Method).Interface("id", req.ID).Msg("request")

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "ping":
		return s.result(req.ID, map[string]interface{}{})
	case "methods/list":
		return s.result(req.ID, map[string]interface{}{"methods": MethodDefinitions()})

	case "view/create":
		return s.handleViewCreate(req)
	case "view/update":
		return s.handleViewUpdate(req)
	case "view/drop":
		return s.handleViewDrop(req)

	case "loader/setOptions":
		return s.handleSetOptions(req)
	case "loader/prefetch":
		return s.handlePrefetch(req)

	case "cache/clearAll":
		return s.handleClear(req, s.engine.ClearAllCache)
	case "cache/clearMemory":
		return s.handleClear(req, func() error {
			s.engine.ClearMemoryCache()
			return nil
		})
	case "cache/clearDisk":
		return s.handleClear(req, s.engine.ClearDiskCache)
	case "cache/createKey":
		return s.handleCreateKey(req)

	default:
		return s.errorResponse(req.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method), nil)
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *Request) *Response {
	return s.result(req.ID, map[string]interface{}{
		"protocolVersion": "2.0",
		"capabilities": map[string]interface{}{
			"views":         map[string]interface{}{"render": true},
			"notifications": []string{"view/event", "view/image"},
		},
		"serverInfo": map[string]interface{}{
			"name":    "imageview-bridge",
			"version": s.version,
		},
	})
}

func (s *Server) result(id interface{}, v interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  v,
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}
