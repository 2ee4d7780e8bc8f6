package config

import (
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"grimm.is/splitdns/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	positive := func(field string, d time.Duration) {
		if d <= 0 {
			add(field, "must be positive, got %s", d)
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level", "%v", err)
	}

	positive("monitor.watch_timeout", c.Monitor.WatchTimeout)
	positive("monitor.debounce", c.Monitor.Debounce)
	positive("monitor.bus_timeout", c.Monitor.BusTimeout)
	if c.Monitor.Settle < 0 {
		add("monitor.settle", "must not be negative, got %s", c.Monitor.Settle)
	}
	if c.Monitor.Debounce >= c.Monitor.WatchTimeout && c.Monitor.WatchTimeout > 0 {
		add("monitor.debounce", "must be shorter than watch_timeout (%s)", c.Monitor.WatchTimeout)
	}

	if c.Resolver.ControlSocket == "" {
		add("resolver.control_socket", "is required")
	}
	positive("resolver.timeout", c.Resolver.Timeout)

	if addr, err := netip.ParseAddr(c.Fallback.Address); err != nil {
		add("fallback.address", "invalid IP address %q", c.Fallback.Address)
	} else if !addr.Is4() {
		add("fallback.address", "must be IPv4, got %s", addr)
	}

	for i, p := range c.Filter.Ignore {
		if strings.TrimSpace(p) == "" {
			add(fmt.Sprintf("filter.ignore[%d]", i), "must not be empty")
		}
	}

	if c.Control.Enabled && c.Control.Socket == "" {
		add("control.socket", "is required when control is enabled")
	}

	if c.Metrics.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			add("metrics.listen", "invalid listen address %q", c.Metrics.Listen)
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
