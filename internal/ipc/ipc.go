// Package ipc implements the broker's local stream-socket server:
// newline-delimited JSON framing over a Unix domain socket, one
// goroutine per connection, requests processed serially within a
// connection (spec §4.9, §5).
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/Mindburn-Labs/helm-broker/internal/wire"
)

// Handler processes one request and returns the response to write back.
type Handler func(ctx context.Context, req wire.Request) wire.Response

// Server binds a Unix domain socket at Path and dispatches each framed
// line to Handle.
type Server struct {
	Path    string
	Mode    os.FileMode
	Handle  Handler
	Log     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
}

func (s *Server) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

// Listen binds the socket, removing any stale file at Path first (spec
// §4.9, §5: "best-effort released (unlinked) on restart before rebind"),
// and applies the configured permission mode.
func (s *Server) Listen() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return err
	}

	ln, err := net.Listen("unix", s.Path)
	if err != nil {
		return err
	}

	mode := s.Mode
	if mode == 0 {
		mode = 0o660
	}
	if err := os.Chmod(s.Path, mode); err != nil {
		ln.Close()
		return err
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until the listener is closed or ctx is
// cancelled, handling each on its own goroutine. It blocks until
// accept fails (typically because Close was called).
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ipc: Listen must be called before Serve")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go s.handleConn(ctx, conn)
	}
}

// Close releases the listener (and, best-effort, the socket file).
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	_ = os.Remove(s.Path)
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewScanner(conn)
	reader.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	writer := bufio.NewWriter(conn)

	for reader.Scan() {
		line := reader.Bytes()
		if len(line) == 0 {
			continue
		}

		var req wire.Request
		resp := wire.Response{}
		if err := json.Unmarshal(line, &req); err != nil {
			resp = wire.Errorf("unknown", "malformed request: "+err.Error())
		} else {
			resp = s.Handle(ctx, req)
		}

		out, err := json.Marshal(resp)
		if err != nil {
			s.log().Error("ipc: marshal response failed", "error", err)
			continue
		}
		out = append(out, '\n')
		if _, err := writer.Write(out); err != nil {
			s.log().Warn("ipc: write response failed", "error", err)
			return
		}
		if err := writer.Flush(); err != nil {
			s.log().Warn("ipc: flush response failed", "error", err)
			return
		}
	}
	if err := reader.Err(); err != nil {
		s.log().Debug("ipc: connection read error", "error", err)
	}
}
