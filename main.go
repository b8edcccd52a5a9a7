// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/modbus-server/internal/config"
	"github.com/ffutop/modbus-server/internal/local-slave/model"
	"github.com/ffutop/modbus-server/internal/metrics"
	"github.com/ffutop/modbus-server/internal/server"
	"github.com/ffutop/modbus-server/transport"
	"github.com/ffutop/modbus-server/transport/tcp"
)

func main() {
	fs := config.Flags()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("Failed to parse flags: %v\n", err)
		os.Exit(2)
	}

	// Load Configuration
	cfg, err := config.LoadConfig(fs)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus Server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// One register bank for the whole process, shared by every connection.
	bank := model.NewRegisterBank()
	bank.Preset(model.TableCoils, cfg.Registers.Coil)
	bank.Preset(model.TableDiscreteInputs, cfg.Registers.DiscreteInput)
	bank.Preset(model.TableHoldingRegisters, cfg.Registers.HoldingRegister)
	bank.Preset(model.TableInputRegisters, cfg.Registers.InputRegister)

	us := tcp.NewServer(cfg.Server.Address)
	us.MaxConns = cfg.Server.MaxConns
	us.IdleTimeout = cfg.Server.IdleTimeout

	if cfg.Metrics.Address != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Address); err != nil {
				slog.Error("Metrics server stopped with error", "err", err)
			}
		}()
	}

	srv := server.NewServer("modbus-server", []transport.Upstream{us}, bank)
	if err := srv.Start(ctx); err != nil {
		slog.Error("Server stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("Goodbye.")
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
