// Package config handles splitdnsd configuration.
//
// # Overview
//
// The daemon reads a single HCL file. Every block and attribute is optional;
// anything left out keeps the value from [Default]. After the file is
// decoded, SPLITDNS_* environment variables override individual settings,
// then [Config.Validate] checks the result.
//
// # Configuration Blocks
//
//   - log: level, json output, remote syslog host
//   - monitor: watch and debounce windows, settle delay, initial sync
//   - resolver: Knot Resolver control socket, per-command timeout, dry run
//   - fallback: public upstream for names no zone claims
//   - filter: connection id substrings to ignore (virbr, docker, ...)
//   - control: the daemon's own control socket
//   - metrics: Prometheus listen address
//
// # Expressions
//
// Attribute expressions may reference the process environment through the
// env variable, e.g.
//
//	resolver {
//	  control_socket = "${env.RUNTIME_DIRECTORY}/kresd.sock"
//	}
package config
