package config

import (
	"time"
)

// DefaultPath is where the daemon looks for its configuration.
const DefaultPath = "/etc/splitdnsd/splitdnsd.hcl"

// Config is the resolved daemon configuration.
type Config struct {
	Log      LogConfig      `envPrefix:"LOG_"`
	Monitor  MonitorConfig  `envPrefix:"MONITOR_"`
	Resolver ResolverConfig `envPrefix:"RESOLVER_"`
	Fallback FallbackConfig `envPrefix:"FALLBACK_"`
	Filter   FilterConfig   `envPrefix:"FILTER_"`
	Control  ControlConfig  `envPrefix:"CONTROL_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level      string `env:"LEVEL"`
	JSON       bool   `env:"JSON"`
	SyslogHost string `env:"SYSLOG_HOST"`
}

// MonitorConfig holds the change monitor and collector timings.
type MonitorConfig struct {
	WatchTimeout time.Duration `env:"WATCH_TIMEOUT"`
	Debounce     time.Duration `env:"DEBOUNCE"`
	Settle       time.Duration `env:"SETTLE"`
	BusTimeout   time.Duration `env:"BUS_TIMEOUT"`
	InitialSync  bool          `env:"INITIAL_SYNC"`
}

// ResolverConfig points at the Knot Resolver control socket.
type ResolverConfig struct {
	ControlSocket string        `env:"CONTROL_SOCKET"`
	Timeout       time.Duration `env:"TIMEOUT"`
	DryRun        bool          `env:"DRY_RUN"`
}

// FallbackConfig is the catch-all upstream. An empty Hostname means plain
// forwarding instead of DNS-over-TLS.
type FallbackConfig struct {
	Address  string `env:"ADDRESS"`
	Hostname string `env:"HOSTNAME"`
	CAFile   string `env:"CA_FILE"`
}

// FilterConfig drops connections before zones are derived.
type FilterConfig struct {
	Ignore []string `env:"IGNORE" envSeparator:","`
}

// ControlConfig is the daemon's own control socket.
type ControlConfig struct {
	Enabled bool   `env:"ENABLED"`
	Socket  string `env:"SOCKET"`
}

// MetricsConfig enables the Prometheus endpoint when Listen is set.
type MetricsConfig struct {
	Listen string `env:"LISTEN"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Monitor: MonitorConfig{
			WatchTimeout: time.Second,
			Debounce:     20 * time.Millisecond,
			Settle:       1500 * time.Millisecond,
			BusTimeout:   5 * time.Second,
			InitialSync:  true,
		},
		Resolver: ResolverConfig{
			ControlSocket: "/run/knot-resolver/control@1",
			Timeout:       5 * time.Second,
		},
		Fallback: FallbackConfig{
			Address:  "1.1.1.1",
			Hostname: "cloudflare-dns.com",
			CAFile:   "/etc/pki/tls/certs/ca-bundle.crt",
		},
		Filter: FilterConfig{
			Ignore: []string{"virbr", "docker"},
		},
		Control: ControlConfig{
			Enabled: true,
			Socket:  "/run/splitdnsd/control",
		},
	}
}
