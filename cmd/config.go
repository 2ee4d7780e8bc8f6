package cmd

import (
	"flag"
	"fmt"

	"grimm.is/splitdns/internal/config"
)

// RunConfig handles configuration CLI commands.
func RunConfig(args []string) error {
	if len(args) < 1 {
		args = []string{"show"}
	}

	switch args[0] {
	case "show":
		return runConfigShow(args[1:])
	case "validate", "check":
		return runConfigValidate(args[1:])
	case "default":
		_, err := Stdout.Write(config.Encode(config.Default()))
		return err
	default:
		printConfigUsage()
		return fmt.Errorf("unknown config command: %s", args[0])
	}
}

func printConfigUsage() {
	Printer.Fprintf(Stdout, `Usage: splitdnsd config <command> [options]

Commands:
  show       Print the effective configuration (file, then environment)
             Options: -config <file>
  validate   Check a configuration file
  default    Print the built-in defaults as HCL
`)
}

func runConfigShow(args []string) error {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	configFile := fs.String("config", "", "Configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	_, err = Stdout.Write(config.Encode(cfg))
	return err
}

func runConfigValidate(args []string) error {
	fs := flag.NewFlagSet("config validate", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := config.DefaultPath
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if _, err := config.Load(path); err != nil {
		return fmt.Errorf("configuration invalid: %w", err)
	}
	Printer.Fprintf(Stdout, "Configuration valid: %s\n", path)
	return nil
}
