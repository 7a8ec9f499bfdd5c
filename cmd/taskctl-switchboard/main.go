// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Taskctl-switchboard runs the tasks listed in its configuration and
// serves them to taskctl: attach and exec sessions on the session
// address, task listing and log reads on the HTTP address.
//
//	taskctl-switchboard --config /etc/taskctl/switchboard.yaml
//
// Configuration keys are under "switchboard:" (session_address,
// http_address, ring_buffer_size, tasks). On SIGINT or SIGTERM the
// listeners close, running tasks are killed, and open sessions end.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/taskctl/lib/clock"
	"github.com/bureau-foundation/taskctl/lib/config"
	"github.com/bureau-foundation/taskctl/lib/netutil"
	"github.com/bureau-foundation/taskctl/lib/process"
	"github.com/bureau-foundation/taskctl/lib/version"
	"github.com/bureau-foundation/taskctl/switchboard"
)

// shutdownTimeout bounds draining in-flight HTTP requests.
const shutdownTimeout = 5 * time.Second

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
	flagSet := pflag.NewFlagSet("taskctl-switchboard", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (default: $TASKCTL_CONFIG, then built-in defaults)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("taskctl-switchboard %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// serve launches the configured tasks and serves them until ctx is
// cancelled.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	clk := clock.Real()
	registry := switchboard.NewRegistry(cfg.Switchboard.RingBufferSize, clk, logger)
	defer registry.Shutdown()

	for _, taskConfig := range cfg.Switchboard.Tasks {
		task, err := registry.Launch(switchboard.TaskSpecFromConfig(taskConfig))
		if err != nil {
			return err
		}
		logger.Info("task launched",
			"task", task.ID,
			"pid", task.Process().Pid(),
			"tty", task.Spec.TTY,
			"switchboard", task.Spec.SwitchboardEnabled,
		)
	}

	server := switchboard.NewServer(registry, clk, logger)

	sessionListener, err := netutil.Listen(cfg.Switchboard.SessionAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Switchboard.SessionAddress, err)
	}
	httpListener, err := net.Listen("tcp", cfg.Switchboard.HTTPAddress)
	if err != nil {
		sessionListener.Close()
		return fmt.Errorf("listening on %s: %w", cfg.Switchboard.HTTPAddress, err)
	}

	httpServer := &http.Server{
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	httpDone := make(chan error, 1)
	go func() {
		logger.Info("http listener started", "address", httpListener.Addr().String())
		httpDone <- httpServer.Serve(httpListener)
	}()

	sessionErr := server.ServeSessions(ctx, sessionListener)

	shutdownContext, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownContext); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	if err := <-httpDone; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
	}

	// Killing the tasks ends their attach sessions.
	registry.Shutdown()
	server.Wait()
	logger.Info("switchboard stopped")
	return sessionErr
}
