package config

import (
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

// Encode renders cfg as HCL in the same shape Parse accepts.
func Encode(cfg *Config) []byte {
	f := hclwrite.NewEmptyFile()
	root := f.Body()

	log := root.AppendNewBlock("log", nil).Body()
	log.SetAttributeValue("level", cty.StringVal(cfg.Log.Level))
	log.SetAttributeValue("json", cty.BoolVal(cfg.Log.JSON))
	if cfg.Log.SyslogHost != "" {
		log.SetAttributeValue("syslog_host", cty.StringVal(cfg.Log.SyslogHost))
	}
	root.AppendNewline()

	mon := root.AppendNewBlock("monitor", nil).Body()
	mon.SetAttributeValue("watch_timeout", cty.StringVal(cfg.Monitor.WatchTimeout.String()))
	mon.SetAttributeValue("debounce", cty.StringVal(cfg.Monitor.Debounce.String()))
	mon.SetAttributeValue("settle", cty.StringVal(cfg.Monitor.Settle.String()))
	mon.SetAttributeValue("bus_timeout", cty.StringVal(cfg.Monitor.BusTimeout.String()))
	mon.SetAttributeValue("initial_sync", cty.BoolVal(cfg.Monitor.InitialSync))
	root.AppendNewline()

	res := root.AppendNewBlock("resolver", nil).Body()
	res.SetAttributeValue("control_socket", cty.StringVal(cfg.Resolver.ControlSocket))
	res.SetAttributeValue("timeout", cty.StringVal(cfg.Resolver.Timeout.String()))
	res.SetAttributeValue("dry_run", cty.BoolVal(cfg.Resolver.DryRun))
	root.AppendNewline()

	fb := root.AppendNewBlock("fallback", nil).Body()
	fb.SetAttributeValue("address", cty.StringVal(cfg.Fallback.Address))
	fb.SetAttributeValue("hostname", cty.StringVal(cfg.Fallback.Hostname))
	fb.SetAttributeValue("ca_file", cty.StringVal(cfg.Fallback.CAFile))
	root.AppendNewline()

	filter := root.AppendNewBlock("filter", nil).Body()
	filter.SetAttributeValue("ignore", stringList(cfg.Filter.Ignore))
	root.AppendNewline()

	ctl := root.AppendNewBlock("control", nil).Body()
	ctl.SetAttributeValue("enabled", cty.BoolVal(cfg.Control.Enabled))
	ctl.SetAttributeValue("socket", cty.StringVal(cfg.Control.Socket))

	if cfg.Metrics.Listen != "" {
		root.AppendNewline()
		m := root.AppendNewBlock("metrics", nil).Body()
		m.SetAttributeValue("listen", cty.StringVal(cfg.Metrics.Listen))
	}

	return hclwrite.Format(f.Bytes())
}

func stringList(items []string) cty.Value {
	if len(items) == 0 {
		return cty.ListValEmpty(cty.String)
	}
	vals := make([]cty.Value, len(items))
	for i, s := range items {
		vals[i] = cty.StringVal(s)
	}
	return cty.ListVal(vals)
}
