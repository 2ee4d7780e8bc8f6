package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsimple"
	"github.com/zclconf/go-cty/cty"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SPLITDNS_"

// fileConfig mirrors the HCL file. Pointers distinguish "absent" from
// "zero" so absent attributes keep their defaults.
type fileConfig struct {
	Log      *fileLog      `hcl:"log,block"`
	Monitor  *fileMonitor  `hcl:"monitor,block"`
	Resolver *fileResolver `hcl:"resolver,block"`
	Fallback *fileFallback `hcl:"fallback,block"`
	Filter   *fileFilter   `hcl:"filter,block"`
	Control  *fileControl  `hcl:"control,block"`
	Metrics  *fileMetrics  `hcl:"metrics,block"`
}

type fileLog struct {
	Level      *string `hcl:"level,optional"`
	JSON       *bool   `hcl:"json,optional"`
	SyslogHost *string `hcl:"syslog_host,optional"`
}

type fileMonitor struct {
	WatchTimeout *string `hcl:"watch_timeout,optional"`
	Debounce     *string `hcl:"debounce,optional"`
	Settle       *string `hcl:"settle,optional"`
	BusTimeout   *string `hcl:"bus_timeout,optional"`
	InitialSync  *bool   `hcl:"initial_sync,optional"`
}

type fileResolver struct {
	ControlSocket *string `hcl:"control_socket,optional"`
	Timeout       *string `hcl:"timeout,optional"`
	DryRun        *bool   `hcl:"dry_run,optional"`
}

type fileFallback struct {
	Address  *string `hcl:"address,optional"`
	Hostname *string `hcl:"hostname,optional"`
	CAFile   *string `hcl:"ca_file,optional"`
}

type fileFilter struct {
	Ignore *[]string `hcl:"ignore,optional"`
}

type fileControl struct {
	Enabled *bool   `hcl:"enabled,optional"`
	Socket  *string `hcl:"socket,optional"`
}

type fileMetrics struct {
	Listen *string `hcl:"listen,optional"`
}

// Load reads path, applies environment overrides and validates. A missing
// file is not an error when path is DefaultPath; the defaults are used.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
		data = nil
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(path, data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes HCL source on top of Default. Empty input yields the
// defaults.
func Parse(filename string, data []byte) (*Config, error) {
	cfg := Default()
	if len(strings.TrimSpace(string(data))) == 0 {
		return cfg, nil
	}

	var fc fileConfig
	if err := hclsimple.Decode(hclFilename(filename), data, evalContext(os.Environ()), &fc); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := fc.merge(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from SPLITDNS_* environment variables, e.g.
// SPLITDNS_LOG_LEVEL or SPLITDNS_FILTER_IGNORE=virbr,docker,podman.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(nil)
}

func (c *Config) applyEnv(environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(c, opts); err != nil {
		return fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	return nil
}

// hclsimple picks the syntax from the extension; anything that is not
// .json is native HCL.
func hclFilename(name string) string {
	if strings.HasSuffix(name, ".hcl") || strings.HasSuffix(name, ".json") {
		return name
	}
	return name + ".hcl"
}

// evalContext exposes the process environment as env.NAME.
func evalContext(environ []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || !hclIdentifier(k) {
			continue
		}
		vars[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(vars),
		},
	}
}

func hclIdentifier(s string) bool {
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9'):
		default:
			return false
		}
	}
	return true
}

func (fc *fileConfig) merge(cfg *Config) error {
	var errs []error
	duration := func(field string, src *string, dst *time.Duration) {
		if src == nil {
			return
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}

	if l := fc.Log; l != nil {
		set(&cfg.Log.Level, l.Level)
		set(&cfg.Log.JSON, l.JSON)
		set(&cfg.Log.SyslogHost, l.SyslogHost)
	}
	if m := fc.Monitor; m != nil {
		duration("monitor.watch_timeout", m.WatchTimeout, &cfg.Monitor.WatchTimeout)
		duration("monitor.debounce", m.Debounce, &cfg.Monitor.Debounce)
		duration("monitor.settle", m.Settle, &cfg.Monitor.Settle)
		duration("monitor.bus_timeout", m.BusTimeout, &cfg.Monitor.BusTimeout)
		set(&cfg.Monitor.InitialSync, m.InitialSync)
	}
	if r := fc.Resolver; r != nil {
		set(&cfg.Resolver.ControlSocket, r.ControlSocket)
		duration("resolver.timeout", r.Timeout, &cfg.Resolver.Timeout)
		set(&cfg.Resolver.DryRun, r.DryRun)
	}
	if f := fc.Fallback; f != nil {
		set(&cfg.Fallback.Address, f.Address)
		set(&cfg.Fallback.Hostname, f.Hostname)
		set(&cfg.Fallback.CAFile, f.CAFile)
	}
	if f := fc.Filter; f != nil && f.Ignore != nil {
		cfg.Filter.Ignore = append([]string(nil), (*f.Ignore)...)
	}
	if c := fc.Control; c != nil {
		set(&cfg.Control.Enabled, c.Enabled)
		set(&cfg.Control.Socket, c.Socket)
	}
	if m := fc.Metrics; m != nil {
		set(&cfg.Metrics.Listen, m.Listen)
	}
	return errors.Join(errs...)
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
