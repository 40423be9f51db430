// Copyright 2026 The Sightline Authors
// SPDX-License-Identifier: Apache-2.0

// Sightlined is the event observability daemon for i3/sway window
// managers. It subscribes to the WM's IPC event stream, correlates and
// enriches events into a rolling in-memory buffer, and serves queries,
// traces, state validation, and diagnostic snapshots over a local
// Unix socket.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/sightline-wm/sightline/correlate"
	"github.com/sightline-wm/sightline/enrich"
	"github.com/sightline-wm/sightline/eventlog"
	"github.com/sightline-wm/sightline/gateway"
	"github.com/sightline-wm/sightline/ingest"
	"github.com/sightline-wm/sightline/lib/clock"
	"github.com/sightline-wm/sightline/lib/config"
	"github.com/sightline-wm/sightline/lib/version"
	"github.com/sightline-wm/sightline/snapshot"
	"github.com/sightline-wm/sightline/tracer"
	"github.com/sightline-wm/sightline/validate"
	"github.com/sightline-wm/sightline/wmipc"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var wmSocket string
	var socketPath string
	var logLevel string
	var showVersion bool

	pflag.StringVar(&configPath, "config", "", "path to config file (optional)")
	pflag.StringVar(&wmSocket, "wm-socket", "", "WM IPC socket (default: $SWAYSOCK, then $I3SOCK)")
	pflag.StringVar(&socketPath, "socket", "", "gateway socket path (overrides config)")
	pflag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("sightlined %s\n", version.Full())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if wmSocket != "" {
		cfg.WMSocket = wmSocket
	}
	if socketPath != "" {
		cfg.Socket = socketPath
	}

	wmSocketPath, err := wmipc.SocketPath(cfg.WMSocket)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Socket), 0o700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting sightlined",
		"version", version.Info(),
		"wm_socket", wmSocketPath,
		"socket", cfg.Socket,
	)

	clk := clock.Real()
	buffer := eventlog.NewBuffer(cfg.Buffer.Capacity)
	engine := correlate.NewEngine(clk, correlate.Config{
		JoinWindow:   cfg.Correlation.JoinWindow.Std(),
		CloseTimeout: cfg.Correlation.CloseTimeout.Std(),
	})

	var registry enrich.Registry
	if cfg.RegistrySocket != "" {
		registry = enrich.NewSocketRegistry(cfg.RegistrySocket)
	} else {
		logger.Info("no registry socket configured, events will not be enriched")
	}
	resolver := enrich.NewResolver(registry, clk, cfg.Enrichment.Budget.Std(), logger)

	traces := tracer.NewManager(clk, logger, cfg.Traces.DefaultTimeout.Std(), cfg.Traces.MaxCaptured)
	if cfg.Traces.TemplatesPath != "" {
		templates, err := tracer.LoadTemplates(cfg.Traces.TemplatesPath)
		if err != nil {
			return err
		}
		traces.SetTemplates(templates)
		logger.Info("loaded trace templates", "count", len(templates), "path", cfg.Traces.TemplatesPath)
	}

	model := validate.NewModel()

	wmClient, err := wmipc.Dial(wmSocketPath)
	if err != nil {
		return fmt.Errorf("connecting to WM: %w", err)
	}
	defer wmClient.Close()

	validator := validate.NewValidator(wmClient, model, clk, logger, 0)
	assembler := snapshot.NewAssembler(wmClient, model, buffer, traces, clk, logger, 0, 0)

	service := ingest.NewService(
		ingest.WMSubscriber(wmSocketPath),
		buffer, engine, resolver, traces, model, clk, logger,
	)

	server := gateway.NewServer(cfg.Socket, logger)
	gateway.NewGateway(buffer, traces, validator, assembler, wmClient, model, logger).Register(server)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return server.Serve(ctx) })
	group.Go(func() error { return service.Run(ctx) })
	if cfg.Traces.TemplatesPath != "" {
		group.Go(func() error {
			return tracer.WatchTemplates(ctx, traces, cfg.Traces.TemplatesPath, logger)
		})
	}

	err = group.Wait()
	if ctx.Err() != nil {
		logger.Info("shutdown complete")
		return nil
	}
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
