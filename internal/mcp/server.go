// Package mcp serves threat model compilation and knowledge lookups to
// coding agents over the Model Context Protocol (JSON-RPC 2.0 on stdio).
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/mark-chris/threatc/internal/compiler"
	"github.com/mark-chris/threatc/internal/knowledge"
	"github.com/mark-chris/threatc/internal/store"
)

const (
	protocolVersion = "2025-11-25"
	maxMessageSize  = 4 << 20
)

// serverState is the protocol lifecycle state
type serverState int

const (
	stateNotInitialized serverState = iota
	stateInitializing
	stateInitialized
)

// Server implements the Model Context Protocol for threatc
type Server struct {
	index    *knowledge.Index
	compiler *compiler.Compiler
	store    store.Store
	logger   *zap.Logger
	version  string

	state              serverState
	protocolVersion    string
	clientCapabilities map[string]interface{}
	mu                 sync.RWMutex
}

// Option configures a Server
type Option func(*Server)

// WithCompiler sets the compiler used by threat_model_compile
func WithCompiler(c *compiler.Compiler) Option {
	return func(s *Server) { s.compiler = c }
}

// WithStore sets where compiled models are kept
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithLogger sets the logger. It must not write to the protocol stream.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithVersion sets the version reported during initialize
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a server over the index. Without WithCompiler models are
// compiled offline from the knowledge base.
func NewServer(index *knowledge.Index, opts ...Option) *Server {
	s := &Server{
		index:   index,
		state:   stateNotInitialized,
		version: "dev",
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.store == nil {
		s.store = store.NewMemory()
	}
	if s.compiler == nil {
		s.compiler = compiler.New(index, nil, compiler.DefaultConfig(), s.logger)
	}
	return s
}

func (s *Server) setState(state serverState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

func (s *Server) getState() serverState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// handleMessage processes one JSON-RPC message. It returns nil for
// notifications. The error is reserved for failures to encode a response.
func (s *Server) handleMessage(ctx context.Context, data []byte) ([]byte, error) {
	req, err := parseRequest(data)
	if err != nil {
		if req == nil {
			return json.Marshal(createErrorResponse(ErrCodeParseError, ErrMsgParseError, err.Error(), nil))
		}
		if req.isNotification() {
			return nil, nil
		}
		return json.Marshal(createErrorResponse(ErrCodeInvalidRequest, ErrMsgInvalidRequest, err.Error(), req.ID))
	}

	if req.isNotification() {
		s.handleNotification(req)
		return nil, nil
	}

	var result interface{}
	switch req.Method {
	case "initialize":
		result, err = handleInitialize(s, req.Params)
	case "ping":
		result = map[string]interface{}{}
	case "tools/list":
		result, err = handleToolsList(s, req.Params)
	case "tools/call":
		result, err = handleToolsCall(ctx, s, req.Params)
	default:
		return json.Marshal(createErrorResponse(ErrCodeMethodNotFound, ErrMsgMethodNotFound, req.Method, req.ID))
	}

	if err != nil {
		code, msg := errorCode(err)
		s.logger.Debug("request failed", zap.String("method", req.Method), zap.Int("code", code), zap.Error(err))
		return json.Marshal(createErrorResponse(code, msg, err.Error(), req.ID))
	}
	return json.Marshal(createResponse(result, req.ID))
}

func (s *Server) handleNotification(req *JSONRPCRequest) {
	switch req.Method {
	case "notifications/initialized":
		s.mu.Lock()
		if s.state == stateInitializing {
			s.state = stateInitialized
		}
		s.mu.Unlock()
	default:
		s.logger.Debug("ignoring notification", zap.String("method", req.Method))
	}
}

// ServeStdio reads newline-delimited messages from r and writes responses to
// w until r is exhausted or ctx is done.
func (s *Server) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	out := bufio.NewWriter(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp, err := s.handleMessage(ctx, line)
		if err != nil {
			return fmt.Errorf("failed to encode response: %w", err)
		}
		if resp == nil {
			continue
		}
		if _, err := out.Write(append(resp, '\n')); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}
