package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"grimm.is/splitdns/cmd"
	"grimm.is/splitdns/internal/brand"
	"grimm.is/splitdns/internal/i18n"
	"grimm.is/splitdns/internal/logging"
)

var printer = i18n.NewCLIPrinter()

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	logging.SetPrefix(brand.BinaryName)

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "run":
		err = cmd.RunDaemon(args)
	case "zones":
		err = cmd.RunZones(args)
	case "dump":
		err = cmd.RunDump(args)
	case "rules":
		err = cmd.RunRules(args)
	case "push":
		err = cmd.RunPush(args)
	case "probe":
		err = cmd.RunProbe(args)
	case "config":
		err = cmd.RunConfig(args)
	case "version", "-v", "--version":
		fmt.Println(brand.VersionString())
	case "help", "-h", "--help":
		printUsage()
	default:
		printer.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		printer.Fprintf(os.Stderr, "%s %s: %v\n", brand.BinaryName, os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	printer.Printf(`%s - %s

Usage:
  %s <command> [options]

Daemon:
  run       Watch NetworkManager and keep resolver rules in step
            Options: -config (-c) <file>, -dry-run (-n)

Inspection:
  dump      Print active connections as JSON
            Options: -format json|yaml, -all, -config <file>
  zones     Derive zones from a connection list
            Options: -f <file|->, -format text|json|yaml, -commands, -config <file>
  rules     List installed resolver rules
            Options: -flush, -raw, -config <file>
  probe     Query the upstream that should answer a name
            Options: -type <rr>, -f <file>, -ping, -timeout <d>, -config <file>

Control:
  push      Send a connection list to the running daemon
            Options: -f <file|->, -socket <path>, -timeout <d>, -config <file>
  config    Show or validate the configuration
            Subcommands: show, validate, default

  version   Print version information

Examples:
  %s run -n                          # Log rule changes without applying them
  %s dump | %s zones                 # Preview zones for the current network
  %s probe git.corp.example          # Check where a name is routed
`, brand.Name, brand.Description, brand.BinaryName,
		brand.BinaryName, brand.BinaryName, brand.BinaryName, brand.BinaryName)
}
