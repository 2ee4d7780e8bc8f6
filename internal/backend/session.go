package backend

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// Session is a line-oriented control connection. Do sends one command and
// returns its framed response.
type Session interface {
	Do(ctx context.Context, cmd string) (string, error)
	Close() error
}

// Dialer opens a Session.
type Dialer func(ctx context.Context) (Session, error)

// SocketSession is a Session over a stream socket.
type SocketSession struct {
	mu      sync.Mutex
	conn    net.Conn
	reader  *ResponseReader
	timeout time.Duration
}

// Dial connects to the unix control socket at path. timeout bounds the
// connect and each command's round trip; zero means no bound.
func Dial(ctx context.Context, path string, timeout time.Duration) (*SocketSession, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", path, err)
	}
	return NewSocketSession(conn, timeout), nil
}

// NewSocketSession wraps an established connection.
func NewSocketSession(conn net.Conn, timeout time.Duration) *SocketSession {
	return &SocketSession{
		conn:    conn,
		reader:  NewResponseReader(conn),
		timeout: timeout,
	}
}

// SocketDialer returns a Dialer for the unix socket at path.
func SocketDialer(path string, timeout time.Duration) Dialer {
	return func(ctx context.Context) (Session, error) {
		return Dial(ctx, path, timeout)
	}
}

// Do writes cmd followed by a newline and reads the response. The deadline
// is the earlier of ctx's and the per-command timeout.
func (s *SocketSession) Do(ctx context.Context, cmd string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}

	var deadline time.Time
	if s.timeout > 0 {
		deadline = time.Now().Add(s.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := s.conn.SetDeadline(deadline); err != nil {
		return "", err
	}

	// Unblock the read if ctx is cancelled mid-command.
	stop := context.AfterFunc(ctx, func() {
		s.conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	if !strings.HasSuffix(cmd, "\n") {
		cmd += "\n"
	}
	if _, err := s.conn.Write([]byte(cmd)); err != nil {
		return "", ctxErr(ctx, err)
	}
	resp, err := s.reader.ReadResponse()
	if err != nil {
		return resp, ctxErr(ctx, err)
	}
	return resp, nil
}

func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Close closes the connection.
func (s *SocketSession) Close() error {
	return s.conn.Close()
}
