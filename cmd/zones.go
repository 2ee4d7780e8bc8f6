package cmd

import (
	"flag"
	"fmt"

	"grimm.is/splitdns/internal/backend"
	"grimm.is/splitdns/internal/connection"
	"grimm.is/splitdns/internal/zones"
)

// RunZones handles the "zones" command: derive and print the zones for a
// connection list given as JSON, without touching the resolver.
func RunZones(args []string) error {
	fs := flag.NewFlagSet("zones", flag.ContinueOnError)
	file := fs.String("f", "-", "Connection list (JSON), - for stdin")
	format := fs.String("format", formatText, "Output format: text, json, yaml")
	commands := fs.Bool("commands", false, "Print the resolver commands instead of the zones")
	configFile := fs.String("config", "", "Configuration file for the fallback and ignore list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkFormat(*format, formatText, formatJSON, formatYAML); err != nil {
		return err
	}

	data, err := readInput(*file)
	if err != nil {
		return err
	}
	conns, err := connection.ParseConnections(data)
	if err != nil {
		return err
	}

	var ignore []string
	fb := backend.DefaultFallback()
	if *configFile != "" {
		cfg, err := loadConfig(*configFile)
		if err != nil {
			return err
		}
		ignore = cfg.Filter.Ignore
		if fb, err = fallback(cfg.Fallback); err != nil {
			return err
		}
	}

	set := zones.Derive(conns.Without(ignore))
	if !*commands {
		return printZones(Stdout, set, *format)
	}

	cmds := backend.New(nil, backend.Options{Fallback: fb}).Commands(set)
	if *format != formatText {
		return encode(Stdout, *format, cmds)
	}
	for _, c := range cmds {
		fmt.Fprintln(Stdout, c)
	}
	return nil
}
