// Package ctlsock serves the line-oriented control socket through which
// helper scripts push a connection list straight to the pipeline.
//
// A client writes one JSON array of connection records terminated by a
// newline and reads back a single line: "Success" or "Error: <msg>".
package ctlsock

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/logging"
)

const (
	replySuccess = "Success"
	replyError   = "Error: "

	// DefaultTimeout bounds reading the request and the apply that follows.
	DefaultTimeout = 30 * time.Second

	maxRequest = 1 << 20
)

// Applier installs rules for a pushed connection list. *daemon.Daemon
// implements it.
type Applier interface {
	ApplyConnections(ctx context.Context, conns connection.Connections) error
}

// Options configure a Server.
type Options struct {
	Timeout time.Duration
	// Mode is the permission set on the socket file. Zero means 0660.
	Mode   os.FileMode
	Logger *logging.Logger
}

// Server accepts control connections on a unix socket.
type Server struct {
	path    string
	apply   Applier
	timeout time.Duration
	mode    os.FileMode
	logger  *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
}

// NewServer creates a server for path. Call Start or Serve to accept.
func NewServer(path string, apply Applier, opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Mode == 0 {
		opts.Mode = 0660
	}
	if opts.Logger == nil {
		opts.Logger = logging.WithComponent("control")
	}
	return &Server{
		path:    path,
		apply:   apply,
		timeout: opts.Timeout,
		mode:    opts.Mode,
		logger:  opts.Logger,
	}
}

// Listen binds the socket, replacing a stale socket file left by a previous
// run.
func (s *Server) Listen() (net.Listener, error) {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket %s: %w", s.path, err)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, s.mode); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to set socket permissions: %w", err)
	}
	return ln, nil
}

// ListenAndServe binds the socket and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or ln is closed. Each
// connection is handled on its own goroutine.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	s.logger.Info("control socket listening", "path", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.wg.Wait()
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("control handler panicked", "panic", r)
				}
			}()
			s.handle(ctx, conn)
		}()
	}
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	os.Remove(s.path)
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	err := s.process(ctx, conn)
	reply := replySuccess
	if err != nil {
		s.logger.Warn("control request failed", "error", err)
		reply = replyError + err.Error()
	}
	if _, werr := io.WriteString(conn, reply+"\n"); werr != nil {
		s.logger.Debug("control reply not delivered", "error", werr)
	}
}

func (s *Server) process(ctx context.Context, conn net.Conn) error {
	line, err := readLine(bufio.NewReader(io.LimitReader(conn, maxRequest)))
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	s.logger.Debug("control request", "bytes", len(line))

	conns, err := connection.ParseConnections(line)
	if err != nil {
		return err
	}
	s.logger.Info("control push", "connections", strings.Join(conns.IDs(), ","))
	return s.apply.ApplyConnections(ctx, conns)
}

// readLine reads up to the first newline. A final line without one is
// accepted when the peer closes its write side.
func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return line, nil
}
