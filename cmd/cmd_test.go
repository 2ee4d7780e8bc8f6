package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/ctlsock"
	"grimm.is/splitdns/internal/logging"
	"grimm.is/splitdns/internal/testutil"
)

const sample = `[
  {"id":"Wired","type":"802-3-ethernet","default":true,"addresses":["192.168.1.20/24"],"nameservers":["192.168.1.1"],"domains":["home.arpa"]},
  {"id":"corp-vpn","type":"vpn","default":false,"addresses":["10.8.0.5/24"],"nameservers":["10.8.0.1"],"domains":["corp.example","home.arpa"]},
  {"id":"docker0","type":"bridge","default":false,"addresses":["172.17.0.1/16"],"nameservers":[],"domains":[]}
]`

// capture swaps Stdout and Stdin for the duration of the test.
func capture(t *testing.T, input string) *bytes.Buffer {
	t.Helper()
	out := &bytes.Buffer{}
	oldOut, oldIn := Stdout, Stdin
	Stdout, Stdin = out, strings.NewReader(input)
	t.Cleanup(func() { Stdout, Stdin = oldOut, oldIn })
	return out
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunZones_Text(t *testing.T) {
	out := capture(t, sample)
	require.NoError(t, RunZones(nil))

	text := out.String()
	assert.Contains(t, text, "KIND")
	assert.Contains(t, text, "home.arpa")
	assert.Contains(t, text, "corp.example")
	assert.Contains(t, text, "168.192.in-addr.arpa")
	// No ignore list without -config, so docker0 contributes 172.17.
	assert.Contains(t, text, "17.172.in-addr.arpa")
}

func TestRunZones_JSONWithConfig(t *testing.T) {
	cfg := writeFile(t, "splitdnsd.hcl", `filter { ignore = ["docker"] }`)
	out := capture(t, sample)
	require.NoError(t, RunZones([]string{"-format", "json", "-config", cfg}))

	text := out.String()
	assert.Contains(t, text, `"zone": "home.arpa"`)
	assert.Contains(t, text, `"nameservers": [`)
	assert.NotContains(t, text, "172.in-addr.arpa")
}

func TestRunZones_Commands(t *testing.T) {
	out := capture(t, sample)
	file := writeFile(t, "conns.json", sample)
	require.NoError(t, RunZones([]string{"-f", file, "-commands"}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "policy.add(policy.suffix(policy.STUB('192.168.1.1'), {todname('home.arpa')}))", lines[0])
	assert.Contains(t, lines[len(lines)-1], "TLS_FORWARD")
}

func TestRunZones_YAML(t *testing.T) {
	out := capture(t, sample)
	require.NoError(t, RunZones([]string{"-format", "yaml"}))
	assert.Contains(t, out.String(), "- kind: forward")
	assert.Contains(t, out.String(), "zone: corp.example")
}

func TestRunZones_Errors(t *testing.T) {
	capture(t, `{"not":"a list"}`)
	err := RunZones(nil)
	var pe *connection.ParseError
	assert.ErrorAs(t, err, &pe)

	capture(t, sample)
	assert.Error(t, RunZones([]string{"-format", "xml"}))
}

func TestRunZones_Empty(t *testing.T) {
	out := capture(t, `[]`)
	require.NoError(t, RunZones(nil))
	assert.Equal(t, "No zones.\n", out.String())
}

func TestRunConfig(t *testing.T) {
	out := capture(t, "")
	require.NoError(t, RunConfig([]string{"default"}))
	assert.Contains(t, out.String(), `control_socket = "/run/knot-resolver/control@1"`)

	cfg := writeFile(t, "splitdnsd.hcl", `resolver { dry_run = true }`)
	out.Reset()
	require.NoError(t, RunConfig([]string{"show", "-config", cfg}))
	assert.Contains(t, out.String(), "dry_run")

	out.Reset()
	require.NoError(t, RunConfig([]string{"validate", cfg}))
	assert.Contains(t, out.String(), "Configuration valid")

	bad := writeFile(t, "bad.hcl", `monitor { debounce = "5s" }`)
	assert.Error(t, RunConfig([]string{"validate", bad}))
	assert.Error(t, RunConfig([]string{"frobnicate"}))
}

type recordingApplier struct {
	mu    sync.Mutex
	conns []connection.Connections
}

func (a *recordingApplier) ApplyConnections(ctx context.Context, conns connection.Connections) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.conns = append(a.conns, conns)
	return nil
}

func TestRunPush(t *testing.T) {
	sock := testutil.SocketPath(t, "control")

	a := &recordingApplier{}
	srv := ctlsock.NewServer(sock, a, ctlsock.Options{Logger: logging.Nop()})
	ln, err := srv.Listen()
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()
	defer func() {
		cancel()
		<-done
	}()

	out := capture(t, sample)
	require.NoError(t, RunPush([]string{"-socket", sock, "-timeout", "2s"}))
	assert.Equal(t, "Pushed 3 connections.\n", out.String())

	a.mu.Lock()
	defer a.mu.Unlock()
	require.Len(t, a.conns, 1)
	assert.Equal(t, []string{"Wired", "corp-vpn", "docker0"}, a.conns[0].IDs())
}

func TestPush_NoDaemon(t *testing.T) {
	capture(t, "")
	err := push(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, time.Second)
	assert.Error(t, err)
}

func TestDefaultType(t *testing.T) {
	assert.Equal(t, "PTR", defaultType("10.1.2.3"))
	assert.Equal(t, "PTR", defaultType("3.2.1.10.in-addr.arpa"))
	assert.Equal(t, "A", defaultType("git.corp.example"))
}

func TestProbe_Usage(t *testing.T) {
	capture(t, "")
	assert.Error(t, RunProbe(nil))
}
