package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tinytelemetry/feedwatch/internal/client"
	"github.com/tinytelemetry/feedwatch/internal/httpserver"
	"github.com/tinytelemetry/feedwatch/internal/logging"
	"github.com/tinytelemetry/feedwatch/internal/promexport"
	"github.com/tinytelemetry/feedwatch/internal/socketrpc"
	"github.com/tinytelemetry/feedwatch/internal/stats"
	"github.com/tinytelemetry/feedwatch/internal/subscriber"
)

// runServer subscribes to the feed and serves the read surfaces until a
// termination signal arrives.
func runServer(cfg appConfig) error {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer logging.Flush(logger)

	registry := stats.NewRegistry(stats.RegistryConfig{
		EntityCount:  cfg.MaxEntityID + 1,
		OnlineWindow: cfg.OnlineWindow,
	})
	feed := client.New(client.Config{
		Subscriber: subscriber.Config{
			Registry:       registry,
			Logger:         logger,
			ConnectTimeout: cfg.ConnectTimeout,
			RecvTimeout:    cfg.RecvTimeout,
			StatsMessage:   cfg.StatsMessage,
			EventMessage:   cfg.EventMessage,
		},
		EventHistory: cfg.EventHistory,
	})
	defer feed.Disconnect()

	// Start HTTP API server if enabled
	if cfg.APIEnabled {
		metrics := promexport.Handler(promexport.NewRegistry(feed))
		apiServer := httpserver.NewServer(cfg.APIAddr, feed, metrics)
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		defer apiServer.Stop()
	}

	// Start socket RPC server for TUI IPC
	sockServer := socketrpc.NewServer(cfg.SocketPath, feed, logger)
	if err := sockServer.Start(); err != nil {
		logger.Warn("socket server unavailable", zap.Error(err))
	} else {
		defer sockServer.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
			return
		}
		fmt.Println("\nShutting down gracefully... (press Ctrl+C again to force)")
		cancel()

		deadline := time.NewTimer(10 * time.Second)
		defer deadline.Stop()

		select {
		case <-sigCh:
			fmt.Println("\nForce shutdown.")
		case <-deadline.C:
			fmt.Println("Shutdown timed out, forcing exit.")
		}
		cleanupSocket(cfg.SocketPath)
		os.Exit(1)
	}()

	printStartupBanner(cfg)

	g, gctx := errgroup.WithContext(ctx)

	// Connection supervisor: retry the initial connect until data flows.
	// After that the subscriber handles transport errors itself.
	g.Go(func() error {
		err := feed.RunReconnect(gctx, cfg.Server, cfg.Port, cfg.ReconnectInterval)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}

	// The subscriber keeps itself connected from here on.
	<-ctx.Done()
	return nil
}

func cleanupSocket(path string) {
	if path != "" {
		os.Remove(path)
	}
}

func printStartupBanner(cfg appConfig) {
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	cyan := lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	bold := lipgloss.NewStyle().Bold(true)

	check := green.Render("●")
	dot := dim.Render("●")

	logo := cyan.Bold(true).Render(`
    ╔═╗╔═╗╔═╗╔╦╗╦ ╦╔═╗╔╦╗╔═╗╦ ╦
    ╠╣ ║╣ ║╣  ║║║║║╠═╣ ║ ║  ╠═╣
    ╚  ╚═╝╚═╝═╩╝╚╩╝╩ ╩ ╩ ╚═╝╩ ╩`)

	ver := dim.Render("v" + version)

	var lines []string
	lines = append(lines, "")
	lines = append(lines, logo)
	lines = append(lines, "    "+ver)
	lines = append(lines, "")

	separator := dim.Render("    ─────────────────────────────────")
	lines = append(lines, separator)
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Feed"))
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("    %s  Publisher      %s", check, cyan.Render(subscriber.Target(cfg.Server, cfg.Port))))
	lines = append(lines, fmt.Sprintf("    %s  Messages       %s", check, dim.Render(cfg.StatsMessage+" / "+cfg.EventMessage)))
	lines = append(lines, fmt.Sprintf("    %s  Entities       %s", check, dim.Render(fmt.Sprintf("0..%d", cfg.MaxEntityID))))
	lines = append(lines, fmt.Sprintf("    %s  Timeouts       %s", check,
		dim.Render(fmt.Sprintf("connect %s, receive %s", cfg.ConnectTimeout, cfg.RecvTimeout))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Gateway"))
	lines = append(lines, "")
	if cfg.APIEnabled {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", check, cyan.Render(cfg.APIAddr)))
		lines = append(lines, fmt.Sprintf("    %s  Metrics        %s", check, cyan.Render(cfg.APIAddr+"/metrics")))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  HTTP API       %s", dot, dim.Render("disabled")))
	}
	lines = append(lines, fmt.Sprintf("    %s  Unix Socket    %s", check, cyan.Render(shortenPath(cfg.SocketPath))))
	lines = append(lines, "")

	lines = append(lines, bold.Render("    Config"))
	lines = append(lines, "")
	if cfg.ConfigPath != "" {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", check, dim.Render(shortenPath(cfg.ConfigPath))))
	} else {
		lines = append(lines, fmt.Sprintf("    %s  Config File    %s", dot, dim.Render("default (no file)")))
	}
	if cfg.LogFile != "" {
		lines = append(lines, fmt.Sprintf("    %s  Log File       %s", check, dim.Render(shortenPath(cfg.LogFile))))
	}

	lines = append(lines, "")
	lines = append(lines, separator)
	lines = append(lines, "")
	lines = append(lines, "    "+dim.Render("Press ")+yellow.Render("Ctrl+C")+dim.Render(" to stop"))
	lines = append(lines, "")

	fmt.Println(strings.Join(lines, "\n"))
}

func shortenPath(path string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if strings.HasPrefix(path, home) {
		return "~" + path[len(home):]
	}
	return path
}
