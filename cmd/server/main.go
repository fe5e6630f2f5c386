package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/fuomag9/onlinetracker/internal/agentproto"
	"github.com/fuomag9/onlinetracker/internal/alert"
	"github.com/fuomag9/onlinetracker/internal/api"
	"github.com/fuomag9/onlinetracker/internal/auth"
	"github.com/fuomag9/onlinetracker/internal/config"
	"github.com/fuomag9/onlinetracker/internal/database"
	"github.com/fuomag9/onlinetracker/internal/engine"
	"github.com/fuomag9/onlinetracker/internal/jobs"
	"github.com/fuomag9/onlinetracker/internal/logging"
	"github.com/fuomag9/onlinetracker/internal/metrics"
	"github.com/fuomag9/onlinetracker/internal/monitor"
	"github.com/fuomag9/onlinetracker/internal/notification"
	"github.com/fuomag9/onlinetracker/internal/scheduler"
	"github.com/fuomag9/onlinetracker/internal/settings"
	"github.com/fuomag9/onlinetracker/internal/store"
	"github.com/fuomag9/onlinetracker/internal/websocket"
)

const shutdownTimeout = 30 * time.Second

func main() {
	printToken := flag.String("print-token", "", "print an operator API token for the given name and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if *printToken != "" {
		token, err := auth.IssueToken(*printToken, cfg.JWTSecret, auth.DefaultTTL)
		if err != nil {
			logger.Fatal("failed to issue token", zap.Error(err))
		}
		fmt.Println(token)
		return
	}

	if cfg.Generated {
		logger.Warn("JWT_SECRET not set, using a generated secret; tokens will not survive a restart")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server exited")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(db); err != nil {
		return err
	}

	st := store.NewGorm(db)

	// Runtime settings: environment values are the fallback for missing rows
	base := settings.Default()
	base.Defaults.Timeout = cfg.CheckTimeout
	base.SharedSecret = cfg.SharedSecret
	base.AllowedAgents = cfg.AllowedAgents
	settingsStore := settings.NewStore(db, base, min(cfg.SettingsCacheTTL, cfg.TickInterval), logger.Named("settings"))
	listener := settings.NewListener(cfg.Database.DSN, func(key string) {
		settingsStore.Invalidate()
	}, logger.Named("settings"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	if cfg.Redis.URL != "" {
		client, err := notification.ConnectRedis(ctx, cfg.Redis.URL, logger)
		if err != nil {
			logger.Warn("redis alert channel disabled", zap.Error(err))
		} else {
			defer client.Close()
			notification.RegisterProvider(notification.NewRedisProvider(client, cfg.Redis.AlertChannel))
		}
	}

	hub := websocket.NewHub(cfg.JWTSecret, originHosts(cfg.CORSOrigins), logger.Named("ws"))
	dispatcher := notification.NewDispatcher(st, logger.Named("notification"))
	alerts := alert.NewEngine(st, settingsStore, dispatcher,
		alert.WithLogger(logger.Named("alert")),
		alert.WithMetrics(m))
	pipeline := engine.NewPipeline(st, st, alerts, hub, logger.Named("pipeline"))

	execOpts := []monitor.ExecutorOption{
		monitor.WithExecutorLogger(logger.Named("executor")),
		monitor.WithExecutorMetrics(m),
	}
	if cfg.BlockPrivateTargets {
		execOpts = append(execOpts, monitor.WithGuard(monitor.NewTargetGuard(false)))
	}
	executor := monitor.NewExecutor(monitor.NewRegistry(), cfg.MaxConcurrentChecks, pipeline.HandleJob, execOpts...)
	sched := scheduler.New(engine.NewServerSource(st, settingsStore, logger.Named("source")), executor,
		scheduler.WithTick(cfg.TickInterval),
		scheduler.WithLogger(logger.Named("scheduler")))

	agents := agentproto.NewRegistry(st, st, pipeline, settingsStore,
		agentproto.WithLogger(logger.Named("agents")),
		agentproto.WithMetrics(m))

	background := jobs.NewScheduler(st, st, agents, jobs.Retention{
		Results: time.Duration(cfg.ResultRetentionDays) * 24 * time.Hour,
		Alerts:  time.Duration(cfg.AlertRetentionDays) * 24 * time.Hour,
	}, m, logger.Named("jobs"))
	if err := background.Start(); err != nil {
		return fmt.Errorf("failed to start background jobs: %w", err)
	}
	defer background.Stop()

	stopSweep := make(chan struct{})
	defer close(stopSweep)
	apiLimiter := api.NewRateLimiter(rate.Limit(20), 60)
	apiLimiter.CleanupOldLimiters(10*time.Minute, stopSweep)
	agentLimiter := api.NewRateLimiter(rate.Limit(10), 30)
	agentLimiter.CleanupOldLimiters(10*time.Minute, stopSweep)

	apiServer := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(api.Deps{
			Store:       st,
			Agents:      agents,
			Settings:    settingsStore,
			Hub:         hub,
			Dispatcher:  dispatcher,
			Gatherer:    reg,
			Limiter:     apiLimiter,
			JWTSecret:   cfg.JWTSecret,
			CORSOrigins: cfg.CORSOrigins,
			Production:  cfg.Environment == "production",
			Logger:      logger.Named("api"),
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	agentRouter := chi.NewRouter()
	agentRouter.Use(middleware.RealIP)
	agentRouter.Use(middleware.Recoverer)
	agentRouter.Use(api.RateLimitMiddleware(agentLimiter))
	agentRouter.Mount("/", agentproto.NewRouter(agents))
	agentServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.AgentPort),
		Handler:      agentRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error { return listener.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return serve(apiServer, "admin api", logger) })
	g.Go(func() error { return serve(agentServer, "agent channel", logger) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), agentServer.Shutdown(shutdownCtx))
	})

	err = g.Wait()

	executor.Stop()
	dispatcher.Wait()
	return err
}

func serve(srv *http.Server, name string, logger *zap.Logger) error {
	logger.Info("listening", zap.String("server", name), zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// originHosts turns CORS origins into the host patterns the websocket upgrader expects
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			hosts = append(hosts, u.Host)
		}
	}
	return hosts
}
