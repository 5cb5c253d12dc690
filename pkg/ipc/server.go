package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// HandlerFunc processes RPC params and returns a result or structured error.
type HandlerFunc func(context.Context, json.RawMessage) (any, *Error)

// StreamFunc opens a subscription. Every value received on the channel is
// written as a raw frame until the channel closes or the client goes away.
type StreamFunc func(context.Context, json.RawMessage) (<-chan []byte, *Error)

// Server listens for IPC requests over Unix sockets.
type Server struct {
	ln       net.Listener
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	streams  map[string]StreamFunc
	closed   bool
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewServer constructs an IPC server.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handlers: make(map[string]HandlerFunc),
		streams:  make(map[string]StreamFunc),
		logger:   logger,
	}
}

// Register installs a handler for a method.
func (s *Server) Register(method string, handler HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = handler
}

// RegisterStream installs a streaming handler for a method.
func (s *Server) RegisterStream(method string, stream StreamFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams[method] = stream
}

// Start begins accepting connections on endpoint.
func (s *Server) Start(ctx context.Context, endpoint string) error {
	if s == nil {
		return errors.New("nil server")
	}
	ln, err := net.Listen("unix", endpoint)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	s.wg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || s.isClosed() {
				return
			}
			s.logger.Warn("accept error", "err", err)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer conn.Close()
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	for {
		payload, err := ReadFrame(conn)
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(payload, &req); err != nil {
			s.writeError(conn, req.ID, newTraceID(), CodeInvalidRequest, "invalid json", nil)
			continue
		}
		traceID := newTraceID()
		if stream := s.lookupStream(req.Type); stream != nil {
			s.serveStream(ctx, conn, req, traceID, stream)
			return
		}
		handler := s.lookupHandler(req.Type)
		if handler == nil {
			s.writeError(conn, req.ID, traceID, CodeInvalidRequest, "unknown method", map[string]any{"method": req.Type})
			continue
		}
		start := time.Now()
		result, rpcErr := handler(ctx, req.Params)
		resp := Response{ID: req.ID, TraceID: traceID}
		if rpcErr != nil {
			resp.Error = rpcErr
			s.logger.Debug("request failed", "method", req.Type, "traceId", traceID, "code", rpcErr.Code, "err", rpcErr.Message)
		} else {
			raw, err := json.Marshal(result)
			if err != nil {
				s.writeError(conn, req.ID, traceID, CodeInternal, err.Error(), nil)
				continue
			}
			resp.OK = true
			resp.Result = raw
		}
		s.logger.Debug("request served", "method", req.Type, "traceId", traceID, "elapsed", time.Since(start))
		if err := s.writeResponse(conn, resp); err != nil {
			return
		}
	}
}

// serveStream acknowledges the subscription with a normal response, then
// forwards frames until either side finishes.
func (s *Server) serveStream(ctx context.Context, conn net.Conn, req Request, traceID string, stream StreamFunc) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, rpcErr := stream(ctx, req.Params)
	if rpcErr != nil {
		_ = s.writeResponse(conn, Response{ID: req.ID, TraceID: traceID, Error: rpcErr})
		return
	}
	if err := s.writeResponse(conn, Response{ID: req.ID, TraceID: traceID, OK: true}); err != nil {
		return
	}
	// subscribers never write again, so a finished read means they hung up
	go func() {
		_, _ = io.Copy(io.Discard, conn)
		cancel()
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-events:
			if !ok {
				return
			}
			if err := WriteFrame(conn, frame); err != nil {
				return
			}
		}
	}
}

func (s *Server) lookupHandler(method string) HandlerFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[method]
}

func (s *Server) lookupStream(method string) StreamFunc {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streams[method]
}

func (s *Server) writeResponse(conn net.Conn, resp Response) error {
	payload, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return WriteFrame(conn, payload)
}

func (s *Server) writeError(conn net.Conn, id, traceID, code, msg string, details map[string]any) {
	resp := Response{ID: id, TraceID: traceID}
	resp.Error = &Error{Code: code, Message: msg, Details: details}
	_ = s.writeResponse(conn, resp)
}

// Stop shuts down the listener. Open connections close once their context ends.
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

// Wait blocks until the accept loop and all connection handlers return.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func newTraceID() string {
	return fmt.Sprintf("ipc-%d", time.Now().UnixNano())
}

// Errorf helps build protocol errors.
func Errorf(code, message string, details map[string]any) *Error {
	return &Error{Code: code, Message: message, Details: details}
}
