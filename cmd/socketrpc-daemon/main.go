// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/bureau-foundation/socketrpc/lib/config"
	"github.com/bureau-foundation/socketrpc/lib/dispatch"
	"github.com/bureau-foundation/socketrpc/lib/logging"
	"github.com/bureau-foundation/socketrpc/lib/process"
	"github.com/bureau-foundation/socketrpc/lib/session"
	"github.com/bureau-foundation/socketrpc/lib/socketrpc"
	"github.com/bureau-foundation/socketrpc/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		socketPath  string
		basename    string
		statePath   string
		logLevel    string
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("socketrpc-daemon", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML config file (default: $SOCKETRPC_CONFIG)")
	flagSet.StringVar(&socketPath, "socket", "", "control socket path (overrides --basename)")
	flagSet.StringVar(&basename, "basename", "", "socket base name, resolved under $XDG_RUNTIME_DIR or $HOME")
	flagSet.StringVar(&statePath, "state", "", "audio settings file (empty keeps settings in memory)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return process.Exit(2, err)
	}
	if showVersion {
		version.Print("socketrpc-daemon")
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("socket") {
		cfg.Socket.Path = socketPath
	}
	if flagSet.Changed("basename") {
		cfg.Socket.Basename = basename
	}
	if flagSet.Changed("state") {
		cfg.State.SettingsPath = statePath
	}
	if flagSet.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cfg.LogLevel()
	logger, err := logging.New(level, logging.Format(cfg.Logging.Format))
	if err != nil {
		return err
	}

	address, err := cfg.SocketAddress()
	if err != nil {
		return err
	}
	idleTimeout, _ := cfg.IdleTimeout()
	writeTimeout, _ := cfg.WriteTimeout()

	executor, err := session.New(logger, cfg.State.SettingsPath)
	if err != nil {
		return fmt.Errorf("opening session: %w", err)
	}
	dispatcher := dispatch.New(executor, logger)

	options := []socketrpc.ServerOption{
		socketrpc.WithIdleTimeout(idleTimeout),
		socketrpc.WithWriteTimeout(writeTimeout),
		socketrpc.WithMaxDocumentSize(cfg.Server.MaxDocumentSize),
	}
	if limit := cfg.Server.RateLimit; limit.RequestsPerSecond > 0 {
		options = append(options, socketrpc.WithRateLimit(rate.Limit(limit.RequestsPerSecond), limit.Burst))
	}
	server := socketrpc.NewServer(address, dispatcher, logger, options...)
	if err := server.Listen(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("socketrpc daemon running",
		"socket", address,
		"version", version.Info(),
		"commands", dispatcher.Commands(),
	)

	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("shut down")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
