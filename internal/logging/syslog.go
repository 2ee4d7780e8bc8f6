package logging

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"sync"
	"time"
)

// SyslogConfig holds remote syslog configuration.
type SyslogConfig struct {
	Host     string // Remote syslog server hostname or IP
	Port     int    // default: 514
	Protocol string // udp or tcp (default: udp)
	Tag      string // default: splitdnsd
	Facility int    // default: 3 (daemon)
}

// DefaultSyslogConfig returns sensible defaults.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Port:     514,
		Protocol: "udp",
		Tag:      "splitdnsd",
		Facility: 3,
	}
}

// SyslogWriter implements io.Writer and sends each write as one RFC 3164
// message to a remote syslog server.
type SyslogWriter struct {
	mu       sync.Mutex
	conn     net.Conn
	config   SyslogConfig
	hostname string
	dial     func(network, addr string) (net.Conn, error)
}

// NewSyslogWriter connects to the configured server.
func NewSyslogWriter(cfg SyslogConfig) (*SyslogWriter, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("syslog host is required")
	}
	def := DefaultSyslogConfig()
	if cfg.Port == 0 {
		cfg.Port = def.Port
	}
	if cfg.Protocol == "" {
		cfg.Protocol = def.Protocol
	}
	if cfg.Tag == "" {
		cfg.Tag = def.Tag
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}

	w := &SyslogWriter{
		config:   cfg,
		hostname: hostname,
		dial: func(network, addr string) (net.Conn, error) {
			return net.DialTimeout(network, addr, 5*time.Second)
		},
	}
	if err := w.connect(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *SyslogWriter) addr() string {
	return net.JoinHostPort(w.config.Host, strconv.Itoa(w.config.Port))
}

func (w *SyslogWriter) connect() error {
	conn, err := w.dial(w.config.Protocol, w.addr())
	if err != nil {
		return fmt.Errorf("failed to connect to syslog server %s: %w", w.addr(), err)
	}
	w.conn = conn
	return nil
}

// Write implements io.Writer.
// Format: <priority>timestamp hostname tag[pid]: message
func (w *SyslogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		if err := w.connect(); err != nil {
			return 0, err
		}
	}

	// Priority = facility * 8 + severity (6 = informational)
	priority := w.config.Facility*8 + 6
	msg := fmt.Sprintf("<%d>%s %s %s[%d]: %s", priority, time.Now().Format(time.Stamp),
		w.hostname, w.config.Tag, os.Getpid(), p)

	if _, err := w.conn.Write([]byte(msg)); err != nil {
		w.conn.Close()
		w.conn = nil
		return 0, err
	}
	return len(p), nil
}

// Close closes the syslog connection.
func (w *SyslogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

// MultiWriter combines multiple io.Writers (e.g., stderr + syslog).
func MultiWriter(writers ...io.Writer) io.Writer {
	return io.MultiWriter(writers...)
}
