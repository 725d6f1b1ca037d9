// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Wshd is the terminal session daemon: it owns a registry of PTY-backed
// sessions and serves the HTTP control API and WebSocket attach
// endpoint that clients use to create, inspect, and drive them.
//
// Configuration is loaded from the file named by --config, or by the
// WSH_CONFIG environment variable when --config is omitted.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/wsh-dev/wsh/lib/config"
	"github.com/wsh-dev/wsh/lib/process"
	"github.com/wsh-dev/wsh/lib/service"
	"github.com/wsh-dev/wsh/lib/version"
	"github.com/wsh-dev/wsh/session"
	"github.com/wsh-dev/wsh/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flag.StringVar(&configPath, "config", "", "path to wshd.yaml (defaults to $WSH_CONFIG)")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := service.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := session.NewRegistry(logger)
	defer registry.Shutdown()

	auth := transport.NewAuthenticator(cfg.Auth.Token, logger)
	handler := transport.NewServer(registry, auth, logger,
		transport.WithDefaultShell(cfg.Session.DefaultShell),
		transport.WithMaxSessions(cfg.Session.MaxSessions),
		transport.WithSessionDefaults(cfg.Session.ScrollbackLines, cfg.Session.IdleThresholdDuration()),
	)

	httpServer := service.NewHTTPServer(service.HTTPServerConfig{
		Address: cfg.Listen.Address,
		Handler: withRequestLogging(logger, handler),
		Logger:  logger,
	})

	logger.Info("wshd starting", "version", version.Short(), "address", cfg.Listen.Address, "environment", cfg.Environment)

	if err := httpServer.Serve(ctx); err != nil {
		return fmt.Errorf("serving http: %w", err)
	}

	logger.Info("wshd stopped")
	return nil
}

func loadConfig(explicitPath string) (*config.Config, error) {
	if explicitPath != "" {
		return config.LoadFile(explicitPath)
	}
	return config.Load()
}

func withRequestLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Debug("request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}
