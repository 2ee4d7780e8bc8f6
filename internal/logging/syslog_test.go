package logging

import (
	"net"
	"strings"
	"testing"
	"time"
)

func TestDefaultSyslogConfig(t *testing.T) {
	cfg := DefaultSyslogConfig()

	if cfg.Port != 514 {
		t.Errorf("Expected port 514, got %d", cfg.Port)
	}
	if cfg.Protocol != "udp" {
		t.Errorf("Expected protocol udp, got %s", cfg.Protocol)
	}
	if cfg.Tag != "splitdnsd" {
		t.Errorf("Expected tag splitdnsd, got %s", cfg.Tag)
	}
	if cfg.Facility != 3 {
		t.Errorf("Expected facility 3, got %d", cfg.Facility)
	}
}

func TestNewSyslogWriter_MissingHost(t *testing.T) {
	_, err := NewSyslogWriter(SyslogConfig{})
	if err == nil {
		t.Error("Expected error for missing host")
	}
}

func TestSyslogWriter_UDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("udp listen unavailable: %v", err)
	}
	defer pc.Close()

	port := pc.LocalAddr().(*net.UDPAddr).Port
	w, err := NewSyslogWriter(SyslogConfig{Host: "127.0.0.1", Port: port, Facility: 3})
	if err != nil {
		t.Fatalf("NewSyslogWriter: %v", err)
	}
	defer w.Close()

	n, err := w.Write([]byte("zones applied"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != len("zones applied") {
		t.Errorf("Write returned %d", n)
	}

	pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1024)
	n, _, err = pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	msg := string(buf[:n])
	if !strings.HasPrefix(msg, "<30>") {
		t.Errorf("expected daemon.info priority, got %q", msg)
	}
	if !strings.Contains(msg, "splitdnsd[") || !strings.HasSuffix(msg, "zones applied") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestSyslogWriter_CloseTwice(t *testing.T) {
	w := &SyslogWriter{}
	if err := w.Close(); err != nil {
		t.Errorf("Close on unconnected writer: %v", err)
	}
}
