// p2pool-dashboard - mining analytics for a P2Pool node
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tanguille/p2pool-dashboard/internal/api"
	"github.com/Tanguille/p2pool-dashboard/internal/config"
	"github.com/Tanguille/p2pool-dashboard/internal/history"
	"github.com/Tanguille/p2pool-dashboard/internal/newrelic"
	"github.com/Tanguille/p2pool-dashboard/internal/notify"
	"github.com/Tanguille/p2pool-dashboard/internal/rpc"
	"github.com/Tanguille/p2pool-dashboard/internal/storage"
	"github.com/Tanguille/p2pool-dashboard/internal/tracker"
	"github.com/Tanguille/p2pool-dashboard/internal/util"
)

var (
	version   = "1.0.0"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("p2pool-dashboard v%s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.File); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer util.Sync()

	util.Infof("p2pool-dashboard v%s starting", version)

	var redis *storage.RedisClient
	if cfg.Redis.Enabled {
		redis, err = storage.NewRedisClient(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			util.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redis.Close()
	}

	var store history.Store
	switch cfg.History.Backend {
	case config.BackendFile:
		store = storage.NewFileStore(cfg.History.Path)
		util.Infof("History persisted to %s", cfg.History.Path)
	case config.BackendRedis:
		store = redis
		util.Info("History persisted to Redis")
	default:
		util.Warn("History kept in memory only, it will not survive a restart")
	}

	agent := newrelic.NewAgent(&cfg.NewRelic)
	if err := agent.Start(); err != nil {
		util.Warnf("New Relic disabled: %v", err)
	}
	defer agent.Stop()

	timeout := cfg.Sources.RequestTimeout
	sources := tracker.Sources{
		Data: rpc.NewDataAPIClient(cfg.Sources.DataAPIURL, timeout),
	}
	if cfg.Sources.MonerodURL != "" {
		sources.Monerod = rpc.NewMonerodClient(cfg.Sources.MonerodURL, timeout)
	}
	if cfg.Sources.XMRigURL != "" {
		sources.XMRig = rpc.NewXMRigClient(cfg.Sources.XMRigURL, cfg.Sources.XMRigToken, timeout)
	}
	if cfg.Price.Enabled {
		sources.Price = rpc.NewPriceClient(cfg.Price.Fiat, cfg.Price.CacheTTL, timeout)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observers := rpc.NewObserverManager(ctx, &cfg.Ledger, timeout)
	if observers.Enabled() {
		sources.Ledger = observers
	}
	observers.Start()

	notifier := notify.NewNotifier(&notify.WebhookConfig{
		Enabled:      cfg.Notify.Enabled,
		DiscordURL:   cfg.Notify.DiscordURL,
		TelegramBot:  cfg.Notify.TelegramBot,
		TelegramChat: cfg.Notify.TelegramChat,
		DashboardURL: cfg.Notify.DashboardURL,
		Fiat:         cfg.Price.Fiat,
	})

	t := tracker.New(cfg, sources, tracker.Options{
		Store:    store,
		Redis:    redis,
		Notifier: notifier,
		Agent:    agent,
	})
	if err := t.Start(); err != nil {
		util.Fatalf("Failed to start tracker: %v", err)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg, t, redis)
		apiServer.SetObserverStateFunc(observers.States)
		if err := apiServer.Start(); err != nil {
			util.Fatalf("Failed to start API server: %v", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	util.Info("Dashboard started successfully. Press Ctrl+C to stop.")

	<-sigChan
	util.Info("Shutting down...")

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			util.Warnf("API server stop: %v", err)
		}
	}
	t.Stop()
	observers.Stop()

	util.Info("Dashboard stopped")
}
