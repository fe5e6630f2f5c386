package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fuomag9/onlinetracker/internal/agent"
	"github.com/fuomag9/onlinetracker/internal/config"
	"github.com/fuomag9/onlinetracker/internal/logging"
	"github.com/fuomag9/onlinetracker/internal/monitor"
)

func main() {
	configPath := flag.String("config", "", "path to the agent YAML config file")
	flag.Parse()

	cfg, err := config.LoadAgent(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	state, err := agent.LoadOrCreateState(cfg.DataPath)
	if err != nil {
		logger.Fatal("failed to load agent state", zap.Error(err))
	}

	name := cfg.Name
	if name == "" {
		name = state.Name
	}
	if name == "" {
		name, _ = os.Hostname()
	}

	client, err := agent.NewClient(&http.Client{Timeout: cfg.RequestTimeout}, cfg.ServerURL(), state.UUID, name, cfg.SharedSecret)
	if err != nil {
		logger.Fatal("failed to create uplink client", zap.Error(err))
	}

	opts := agent.DefaultOptions(state.UUID)
	opts.RegisterRetry = cfg.RegisterRetry
	opts.SyncInterval = cfg.SyncInterval
	opts.FlushInterval = cfg.FlushInterval
	opts.HeartbeatEvery = cfg.HeartbeatEvery
	opts.TickInterval = cfg.TickInterval
	opts.MaxConcurrent = cfg.MaxConcurrent
	opts.CheckTimeout = cfg.CheckTimeout
	opts.QueueCapacity = cfg.QueueCapacity

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("agent starting",
		zap.String("uuid", state.UUID),
		zap.String("name", name),
		zap.String("server", cfg.ServerURL()))

	rt := agent.NewRuntime(client, monitor.NewRegistry(), opts, logger.Named("agent"))
	if err := rt.Run(ctx); err != nil {
		logger.Fatal("agent stopped", zap.Error(err))
	}
	logger.Info("agent exited")
}
