// Command agent is the edge Bluetooth telemetry collector binary. It loads
// the operational YAML configuration and the network.conf JSON descriptor,
// starts the requested sniffer modes' capture pipelines and the shared
// reporting components, exposes a /healthz liveness endpoint, and shuts down
// gracefully on SIGTERM or SIGINT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldmesh/beacon/internal/agent"
	"github.com/fieldmesh/beacon/internal/config"
)

const healthAddr = "127.0.0.1:9100"

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "agent.yaml", "path to the agent operational YAML configuration file")
	networkConfPath := flag.String("network-conf", "network.conf", "path to the network.conf JSON descriptor")
	queuePath := flag.String("queue-path", "", "override the local durable SQLite queue path from agent.yaml")
	flag.Parse()

	modes := flag.Args()
	if len(modes) == 0 {
		fmt.Fprintln(os.Stderr, "beacon-agent: at least one sniffer mode (btbr, btle, btle-adv) is required")
		return 1
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "beacon-agent: %v\n", err)
		return 1
	}
	if *queuePath != "" {
		cfg.QueuePath = *queuePath
	}

	network, err := config.LoadNetworkConfig(*networkConfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "beacon-agent: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		slog.String("config_path", *configPath),
		slog.String("network_conf_path", *networkConfPath),
		slog.Any("modes", modes),
		slog.String("base_url", network.BaseURL()),
	)

	ag, err := agent.New(cfg, network, logger, modes)
	if err != nil {
		logger.Error("failed to construct agent", slog.Any("error", err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ag.Start(ctx); err != nil {
		logger.Error("failed to start agent", slog.Any("error", err))
		return 1
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", ag.HealthzHandler)
	healthServer := &http.Server{
		Addr:         healthAddr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("healthz server listening", slog.String("addr", healthAddr))
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("healthz server error", slog.Any("error", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	logger.Info("received shutdown signal", slog.String("signal", sig.String()))

	ag.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("healthz server shutdown error", slog.Any("error", err))
	}

	logger.Info("beacon agent exited cleanly")
	return 0
}

// newLogger constructs a *slog.Logger that writes JSON-structured log
// records to stderr at the requested minimum level.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
