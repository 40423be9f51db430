// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway serves the daemon's JSON-RPC interface on a local
// Unix socket. It is the sole entry point for other processes: status
// bars, the CLI, and test harnesses all go through it.
//
// The protocol is line-delimited JSON. A client connects, writes one
// request object ({"method": ..., "params": ...}) terminated by a
// newline, and reads one response envelope ({"ok": ..., "data": ...}).
// The connection then closes, except for events.subscribe, which keeps
// the connection open and streams one event object per line.
package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"
)

// HandlerFunc processes one request. params is the raw "params" member
// of the request (never nil; missing params decode as {}). Return a
// value for the response's "data" field, or an error; coded errors
// (gateway.Error, component sentinels) map to wire error codes,
// everything else to "internal".
type HandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

// StreamFunc prepares a streaming method. It decodes and validates
// params before the server acknowledges; returning an error sends a
// coded error envelope and no stream starts. The returned body runs
// after the success envelope is on the wire.
type StreamFunc func(ctx context.Context, params json.RawMessage) (StreamBody, error)

// StreamBody streams on an acknowledged connection. It owns the
// connection and returns when the client disconnects or ctx is
// cancelled.
type StreamBody func(ctx context.Context, conn net.Conn) error

// Response is the wire envelope for every non-streamed reply.
type Response struct {
	OK        bool            `json:"ok"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// request is the wire shape of one call.
type request struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

const (
	// readTimeout bounds how long a client may dawdle before sending
	// its request.
	readTimeout = 30 * time.Second

	// writeTimeout bounds each response write, including individual
	// stream lines.
	writeTimeout = 10 * time.Second

	// maxRequestSize caps one request line. Far beyond any legitimate
	// call; a matcher plus filters fits in a few hundred bytes.
	maxRequestSize = 256 * 1024
)

// Server serves the gateway protocol on a Unix socket. Register
// methods with Handle and HandleStream before calling Serve.
type Server struct {
	socketPath string
	logger     *slog.Logger
	handlers   map[string]HandlerFunc
	streams    map[string]StreamFunc

	// ready is closed once the listener is accepting connections.
	ready chan struct{}

	// activeConnections tracks in-flight handlers so Serve can drain
	// them on shutdown.
	activeConnections sync.WaitGroup
}

// NewServer creates a server that will listen on socketPath.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	return &Server{
		socketPath: socketPath,
		logger:     logger,
		handlers:   make(map[string]HandlerFunc),
		streams:    make(map[string]StreamFunc),
		ready:      make(chan struct{}),
	}
}

// Handle registers a request-response method. Panics on duplicates;
// registration is wiring, and a duplicate is a programming error.
func (s *Server) Handle(method string, handler HandlerFunc) {
	if _, exists := s.handlers[method]; exists {
		panic(fmt.Sprintf("gateway: duplicate handler for method %q", method))
	}
	if _, exists := s.streams[method]; exists {
		panic(fmt.Sprintf("gateway: method %q already registered as stream", method))
	}
	s.handlers[method] = handler
}

// HandleStream registers a streaming method.
func (s *Server) HandleStream(method string, handler StreamFunc) {
	if _, exists := s.streams[method]; exists {
		panic(fmt.Sprintf("gateway: duplicate stream handler for method %q", method))
	}
	if _, exists := s.handlers[method]; exists {
		panic(fmt.Sprintf("gateway: method %q already registered as handler", method))
	}
	s.streams[method] = handler
}

// Ready returns a channel closed once the socket is accepting
// connections. Used by tests and by the daemon's startup log.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits for active handlers to drain. Any stale socket
// file at the path is removed before listening, and the socket file is
// removed on return.
func (s *Server) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("gateway listening", "path", s.socketPath)
	close(s.ready)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection processes one request.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	reader := bufio.NewReaderSize(io.LimitReader(conn, maxRequestSize), 64*1024)
	line, err := reader.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeError(conn, CodeBadRequest, fmt.Sprintf("reading request: %v", err))
		return
	}

	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeError(conn, CodeBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}
	if req.Method == "" {
		s.writeError(conn, CodeBadRequest, "missing required field: method")
		return
	}
	if len(req.Params) == 0 {
		req.Params = json.RawMessage("{}")
	}

	if stream, exists := s.streams[req.Method]; exists {
		s.handleStream(ctx, conn, req, stream)
		return
	}

	handler, exists := s.handlers[req.Method]
	if !exists {
		s.writeError(conn, CodeUnknownMethod, fmt.Sprintf("unknown method %q", req.Method))
		return
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		s.logger.Debug("method failed", "method", req.Method, "error", err)
		s.writeError(conn, errorCode(err), errorMessage(err))
		return
	}
	s.writeSuccess(conn, result)
}

// handleStream validates the request, acknowledges the subscription,
// clears the read deadline, and hands the connection to the stream
// body. Bad params are rejected with a coded envelope before any
// acknowledgement reaches the client.
func (s *Server) handleStream(ctx context.Context, conn net.Conn, req request, stream StreamFunc) {
	body, err := stream(ctx, req.Params)
	if err != nil {
		s.logger.Debug("stream rejected", "method", req.Method, "error", err)
		s.writeError(conn, errorCode(err), errorMessage(err))
		return
	}

	s.writeSuccess(conn, nil)
	conn.SetReadDeadline(time.Time{})

	if err := body(ctx, conn); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, net.ErrClosed) {
		s.logger.Debug("stream ended", "method", req.Method, "error", err)
	}
}

func (s *Server) writeError(conn net.Conn, code, message string) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	s.writeResponse(conn, Response{OK: false, ErrorCode: code, Error: message})
}

func (s *Server) writeSuccess(conn net.Conn, result any) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	response := Response{OK: true}
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			s.writeResponse(conn, Response{
				OK:        false,
				ErrorCode: CodeInternal,
				Error:     fmt.Sprintf("marshaling response: %v", err),
			})
			return
		}
		response.Data = data
	}
	s.writeResponse(conn, response)
}

func (s *Server) writeResponse(conn net.Conn, response Response) {
	encoded, err := json.Marshal(response)
	if err != nil {
		s.logger.Debug("failed to encode response", "error", err)
		return
	}
	encoded = append(encoded, '\n')
	if _, err := conn.Write(encoded); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
