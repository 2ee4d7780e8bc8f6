package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"grimm.is/splitdns/internal/backend"
	"grimm.is/splitdns/internal/brand"
	"grimm.is/splitdns/internal/bus"
	"grimm.is/splitdns/internal/collector"
	"grimm.is/splitdns/internal/config"
	"grimm.is/splitdns/internal/ctlsock"
	"grimm.is/splitdns/internal/daemon"
	"grimm.is/splitdns/internal/events"
	"grimm.is/splitdns/internal/health"
	"grimm.is/splitdns/internal/logging"
	"grimm.is/splitdns/internal/metrics"
	"grimm.is/splitdns/internal/monitor"
)

// RunDaemon handles the "run" command: watch NetworkManager and keep Knot
// Resolver's forwarding rules in step until interrupted.
func RunDaemon(args []string) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	configFile := fs.String("config", config.DefaultPath, "Configuration file")
	fs.StringVar(configFile, "c", config.DefaultPath, "Configuration file (short)")
	dryRun := fs.Bool("dry-run", false, "Log resolver commands instead of sending them")
	fs.BoolVar(dryRun, "n", false, "Dry run (short)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg.Log)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()
	return runDaemon(ctx, cfg, *dryRun)
}

func runDaemon(ctx context.Context, cfg *config.Config, dryRun bool) error {
	log := logging.WithComponent("main")
	log.Info("starting", "version", brand.Version, "resolver", cfg.Resolver.ControlSocket, "dry_run", dryRun || cfg.Resolver.DryRun)

	nm, err := bus.DialNetworkManager(cfg.Monitor.BusTimeout)
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}
	defer nm.Close()

	applier, err := newApplier(cfg, dryRun)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	d := daemon.New(daemon.Options{
		Monitor: monitor.New(nm, monitor.Options{
			Timeouts: monitor.Timeouts{
				Watch:    cfg.Monitor.WatchTimeout,
				Debounce: cfg.Monitor.Debounce,
			},
			Logger: logging.WithComponent("monitor"),
		}),
		Resolver: collector.New(nm, collector.Options{
			Settle: cfg.Monitor.Settle,
			Logger: logging.WithComponent("collector"),
		}),
		Syncer:      applier,
		Ignore:      cfg.Filter.Ignore,
		InitialSync: cfg.Monitor.InitialSync,
		DryRun:      dryRun || cfg.Resolver.DryRun,
		Hub:         hub,
		Logger:      logging.WithComponent("daemon"),
	})

	g, ctx := errgroup.WithContext(ctx)

	registry := metrics.Get()
	mc := metrics.NewCollector(registry, logging.WithComponent("metrics"))
	g.Go(func() error {
		mc.Run(ctx, hub)
		return nil
	})

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           metricsMux(registry, mc, healthChecker(cfg, mc)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.Info("metrics listening", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if cfg.Control.Enabled {
		srv := ctlsock.NewServer(cfg.Control.Socket, d, ctlsock.Options{
			Logger: logging.WithComponent("control"),
		})
		g.Go(func() error {
			defer srv.Close()
			return srv.ListenAndServe(ctx)
		})
	}

	g.Go(func() error {
		return d.Run(ctx)
	})

	err = g.Wait()
	log.Info("stopped")
	return err
}

// metricsMux serves Prometheus metrics, health probes and a JSON status
// snapshot.
func metricsMux(registry *metrics.Registry, mc *metrics.Collector, hc *health.Checker) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.Handle("/healthz", hc.Handler())
	mux.Handle("/livez", health.LivenessHandler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, mc.Status())
	})
	return mux
}

func healthChecker(cfg *config.Config, mc *metrics.Collector) *health.Checker {
	hc := health.NewChecker(nil)
	hc.Register("resolver", health.CheckDial("knot-resolver", func(ctx context.Context) (interface{ Close() error }, error) {
		return backend.Dial(ctx, cfg.Resolver.ControlSocket, cfg.Resolver.Timeout)
	}))
	hc.Register("pipeline", health.CheckPipeline(func() (time.Time, string) {
		st := mc.Status()
		return st.LastApply, st.LastError
	}))
	return hc
}
