// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-router/internal/config"
	"github.com/ffutop/modbus-router/internal/router"
	"github.com/ffutop/modbus-router/internal/slave"
	"github.com/ffutop/modbus-router/internal/slave/persistence"
	"github.com/ffutop/modbus-router/route"
	"github.com/ffutop/modbus-router/transport"
	"github.com/ffutop/modbus-router/transport/rtu"
	rtuovertcp "github.com/ffutop/modbus-router/transport/rtu-over-tcp"
	"github.com/ffutop/modbus-router/transport/tcp"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "Configuration file path.")
	pflag.StringP("log_level", "v", "info", "Log verbosity level (debug, info, warn, error).")
	pflag.StringP("log_file", "L", "", "Log file name ('-' for logging to STDOUT only).")
	pflag.Parse()

	// Load Configuration
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus Router...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create Routers
	var routers []*router.Router
	var storages []persistence.Storage

	for _, rCfg := range cfg.Routers {
		// Create Upstreams
		var upstreams []transport.Upstream
		for _, usCfg := range rCfg.Upstreams {
			var us transport.Upstream
			switch usCfg.Type {
			case "tcp":
				us = tcp.NewServer(usCfg.Tcp.Address)
			case "rtu":
				us = rtu.NewServer(usCfg.Serial)
			case "rtu-over-tcp":
				us = rtuovertcp.NewServer(usCfg.Tcp.Address)
			default:
				slog.Error("Unknown upstream type", "type", usCfg.Type, "router", rCfg.Name)
				continue
			}
			upstreams = append(upstreams, us)
		}

		// Build the route table. Units are registered in listed order:
		// the first matching rule wins.
		m := route.NewMap()
		ok := true
		for _, uCfg := range rCfg.Units {
			endpoint, storage, err := buildUnit(uCfg)
			if err != nil {
				slog.Error("Failed to build unit", "router", rCfg.Name, "unit", uCfg.Name, "err", err)
				ok = false
				break
			}
			storages = append(storages, storage)

			slaveIDs, err := buildConstraint(uCfg.SlaveIDs, 255)
			if err != nil {
				slog.Error("Invalid slave_ids", "router", rCfg.Name, "unit", uCfg.Name, "err", err)
				ok = false
				break
			}
			functionCodes, err := buildConstraint(uCfg.FunctionCodes, 255)
			if err != nil {
				slog.Error("Invalid function_codes", "router", rCfg.Name, "unit", uCfg.Name, "err", err)
				ok = false
				break
			}
			addresses, err := buildConstraint(uCfg.Addresses, 65535)
			if err != nil {
				slog.Error("Invalid addresses", "router", rCfg.Name, "unit", uCfg.Name, "err", err)
				ok = false
				break
			}

			if err := m.AddRule(endpoint, slaveIDs, functionCodes, addresses); err != nil {
				slog.Error("Failed to add rule", "router", rCfg.Name, "unit", uCfg.Name, "err", err)
				ok = false
				break
			}
		}
		if !ok {
			continue
		}

		routers = append(routers, router.New(rCfg.Name, upstreams, m))
	}

	if len(routers) == 0 {
		slog.Error("No valid routers configured. Exiting.")
		os.Exit(1)
	}

	// Start Routers
	var wg sync.WaitGroup
	for _, r := range routers {
		wg.Add(1)
		go func(r *router.Router) {
			defer wg.Done()
			if err := r.Start(ctx); err != nil {
				slog.Error("Router stopped with error", "name", r.Name, "err", err)
			}
		}(r)
	}

	// Wait for Signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	cancel()
	wg.Wait()

	for _, s := range storages {
		if closer, ok := s.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				slog.Error("Failed to close storage", "err", err)
			}
		}
	}
	slog.Info("Goodbye.")
}

// buildUnit loads the unit's storage backend and wraps its slave logic
// as a route endpoint.
func buildUnit(cfg config.UnitConfig) (route.Endpoint, persistence.Storage, error) {
	storage := persistence.Open(cfg.Persistence.Type, cfg.Persistence.Path)
	m, err := storage.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load persistence data: %w", err)
	}
	s := slave.New(m, storage)
	return s.Process, storage, nil
}

// buildConstraint maps a config set string to a route constraint.
// The empty string means unconstrained.
func buildConstraint(input string, max int) (route.Constraint, error) {
	values, err := config.ParseSet(input, max)
	if err != nil {
		return route.Constraint{}, err
	}
	if len(values) == 0 {
		return route.Any(), nil
	}
	return route.OneOf(values...), nil
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
