package ctlsock

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/logging"
	"grimm.is/splitdns/internal/testutil"
)

type recordingApplier struct {
	mu    sync.Mutex
	calls []connection.Connections
	err   error
}

func (a *recordingApplier) ApplyConnections(ctx context.Context, conns connection.Connections) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, conns)
	return a.err
}

func (a *recordingApplier) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func startServer(t *testing.T, a Applier) (string, *Server) {
	t.Helper()
	path := testutil.SocketPath(t, "control")
	srv := NewServer(path, a, Options{Timeout: time.Second, Logger: logging.Nop()})
	ln, err := srv.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return path, srv
}

const pushed = `[{"id":"corp-vpn","type":"vpn","default":false,"addresses":["10.8.0.5/24"],"nameservers":["10.8.0.1"],"domains":["corp.example"]}]`

func TestServer_Success(t *testing.T) {
	a := &recordingApplier{}
	path, _ := startServer(t, a)

	err := SendRaw(context.Background(), path, []byte(pushed))
	require.NoError(t, err)
	require.Equal(t, 1, a.count())
	assert.Equal(t, []string{"corp-vpn"}, a.calls[0].IDs())
	assert.Equal(t, []string{"corp.example"}, a.calls[0][0].Domains)
}

func TestServer_ParseErrorSkipsApply(t *testing.T) {
	a := &recordingApplier{}
	path, _ := startServer(t, a)

	err := SendRaw(context.Background(), path, []byte(`{"id":"not-a-list"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed connection list")
	assert.Zero(t, a.count())
}

func TestServer_ApplyError(t *testing.T) {
	a := &recordingApplier{err: errors.New("backend connect: refused")}
	path, _ := startServer(t, a)

	err := SendRaw(context.Background(), path, []byte(`[]`))
	assert.EqualError(t, err, "backend connect: refused")
	assert.Equal(t, 1, a.count())
}

func TestServer_RawReply(t *testing.T) {
	path, _ := startServer(t, &recordingApplier{})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("[]\n"))
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "Success\n", string(buf[:n]))
}

func TestServer_UnterminatedLineOnClose(t *testing.T) {
	a := &recordingApplier{}
	path, _ := startServer(t, a)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("[]"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.UnixConn).CloseWrite())

	buf := make([]byte, 64)
	n, _ := conn.Read(buf)
	assert.Equal(t, "Success\n", string(buf[:n]))
	assert.Equal(t, 1, a.count())
}

func TestServer_EmptyRequest(t *testing.T) {
	a := &recordingApplier{}
	path, _ := startServer(t, a)

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.(*net.UnixConn).CloseWrite())

	buf := make([]byte, 128)
	n, _ := conn.Read(buf)
	assert.Contains(t, string(buf[:n]), "Error: read request")
	assert.Zero(t, a.count())
}

func TestServer_ReplacesStaleSocket(t *testing.T) {
	path := testutil.SocketPath(t, "control")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	srv := NewServer(path, &recordingApplier{}, Options{Logger: logging.Nop()})
	ln, err := srv.Listen()
	require.NoError(t, err)
	defer ln.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSocket, info.Mode().Type())
	assert.Equal(t, os.FileMode(0660), info.Mode().Perm())
}

func TestServer_Close(t *testing.T) {
	path, srv := startServer(t, &recordingApplier{})
	require.NoError(t, srv.Close())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Error(t, SendRaw(context.Background(), path, []byte("[]")))
}

func TestSend(t *testing.T) {
	a := &recordingApplier{}
	path, _ := startServer(t, a)

	conns, err := connection.ParseConnections([]byte(pushed))
	require.NoError(t, err)
	require.NoError(t, Send(context.Background(), path, conns))
	require.Equal(t, 1, a.count())
	assert.Equal(t, conns, a.calls[0])

	require.NoError(t, Send(context.Background(), path, nil))
	assert.Empty(t, a.calls[1])
}

func TestSend_NoServer(t *testing.T) {
	err := Send(context.Background(), filepath.Join(os.TempDir(), "splitdns-missing.sock"), nil)
	assert.Error(t, err)
}

func TestSendRaw_UnexpectedReply(t *testing.T) {
	path := testutil.SocketPath(t, "odd")

	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 64)
		conn.Read(buf)
		conn.Write([]byte("OK\n"))
	}()

	err = SendRaw(context.Background(), path, []byte("[]"))
	assert.EqualError(t, err, `unexpected reply "OK"`)
}
