// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// RequireSystemBus skips the test unless SPLITDNS_BUS_TEST is set. Such tests
// talk to the real NetworkManager on the system bus.
func RequireSystemBus(t *testing.T) {
	t.Helper()
	if os.Getenv("SPLITDNS_BUS_TEST") == "" {
		t.Skip("Skipping test: requires SPLITDNS_BUS_TEST environment")
	}
}

// SocketPath returns a unix socket path in a fresh directory that is removed
// when the test ends. t.TempDir paths can exceed the 108 byte sun_path limit,
// so the directory is created directly under the system temp dir.
func SocketPath(t *testing.T, name string) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "sdns")
	if err != nil {
		t.Fatalf("create socket dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, name)
}
