// ABOUTME: Entry point for trendingmints-bot
// ABOUTME: Wires config, stores, Airstack, the Matrix transport, and cron schedules

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"

	"github.com/fabriguespe/trendingmints-bot/internal/airstack"
	"github.com/fabriguespe/trendingmints-bot/internal/analytics"
	"github.com/fabriguespe/trendingmints-bot/internal/cache"
	"github.com/fabriguespe/trendingmints-bot/internal/config"
	"github.com/fabriguespe/trendingmints-bot/internal/delivery"
	"github.com/fabriguespe/trendingmints-bot/internal/onboarding"
	"github.com/fabriguespe/trendingmints-bot/internal/scheduler"
	"github.com/fabriguespe/trendingmints-bot/internal/subscriber"
	"github.com/fabriguespe/trendingmints-bot/internal/transport"
	"github.com/fabriguespe/trendingmints-bot/internal/trending"
)

const banner = `
    ╭────────────────────────────────────╮
    │                                    │
    │   ╺┳╸┏━┓┏━╸┏┓╻╺┳┓╻┏┓╻┏━╸          │
    │    ┃ ┣┳┛┣╸ ┃┗┫ ┃┃┃┃┗┫┃╺┓          │
    │    ╹ ╹┗╸┗━╸╹ ╹╺┻┛╹╹ ╹┗━┛          │
    │   ┏┳┓╻┏┓╻╺┳╸┏━┓   ┏┓ ┏━┓╺┳╸       │
    │   ┃┃┃┃┃┗┫ ┃ ┗━┓   ┣┻┓┃ ┃ ┃        │
    │   ╹ ╹╹╹ ╹ ╹ ┗━┛   ┗━┛┗━┛ ╹        │
    │                                    │
    ╰────────────────────────────────────╯
`

// getConfigPath resolves the config file location.
// Priority: TRENDINGMINTS_CONFIG env var > ./trendingmints.yaml >
// XDG_CONFIG_HOME/trendingmints/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("TRENDINGMINTS_CONFIG"); envPath != "" {
		return envPath
	}
	if _, err := os.Stat("trendingmints.yaml"); err == nil {
		return "trendingmints.yaml"
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "trendingmints.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "trendingmints", "config.yaml")
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config from %s: %w", configPath, err)
	}

	slog.SetDefault(setupLogger(cfg.Logging.Level))
	logger := slog.Default()

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("User:       %s\n", cfg.Matrix.UserID)
	green.Print("    ▶ ")
	fmt.Printf("Store:      %s\n", cfg.Store.Backend)
	fmt.Println()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Cache store (always Redis; it backs the trending caches)
	cacheStore, err := cache.NewRedisStore(ctx, cache.RedisConfig{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Password: cfg.Redis.Password,
	})
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer cacheStore.Close()

	// Subscriber store
	var subStore subscriber.Store
	switch cfg.Store.Backend {
	case "sqlite":
		subStore, err = subscriber.NewSQLiteStore(cfg.Store.SQLitePath, cfg.Store.HistoryLimit)
		if err != nil {
			return fmt.Errorf("opening sqlite store: %w", err)
		}
	default:
		subStore = subscriber.NewRedisStore(cacheStore.Client(), cfg.Store.HistoryLimit)
	}
	defer subStore.Close()

	// Upstream, caching layer, delivery engine
	provider := airstack.NewClient(cfg.Airstack.Endpoint, cfg.Airstack.APIKey)
	trendingSvc := trending.New(provider, cacheStore)
	engine := delivery.New(subStore)
	tracker := analytics.NewLogTracker()

	// Matrix transport
	tp, err := transport.NewMatrix(transport.MatrixConfig{
		Homeserver:  cfg.Matrix.Homeserver,
		UserID:      cfg.Matrix.UserID,
		AccessToken: cfg.Matrix.AccessToken,
		RecoveryKey: cfg.Matrix.RecoveryKey,
		DataDir:     cfg.Matrix.DataDir,
	})
	if err != nil {
		return fmt.Errorf("creating matrix transport: %w", err)
	}

	// Onboarding
	machine := onboarding.New(subStore, tp, trendingSvc, engine, tracker, onboarding.Options{
		StopWords:    cfg.Onboarding.StopWords,
		SampleSize:   cfg.Delivery.SampleSize,
		FrameBaseURL: cfg.Delivery.FrameBaseURL,
	})
	tp.OnMessage(machine.HandleMessage)

	// Scheduler + cron triggers
	sched := scheduler.New(trendingSvc, subStore, engine, tp, tracker, scheduler.Options{
		Criteria:       airstack.Criteria(cfg.Delivery.Criteria),
		BatchSize:      cfg.Delivery.BatchSize,
		FirstBatchSize: cfg.Delivery.FirstBatchSize,
		FrameBaseURL:   cfg.Delivery.FrameBaseURL,
	})

	runner := cron.New()
	for _, entry := range cfg.Schedules {
		timeFrame := airstack.TimeFrame(entry.TimeFrame)
		if _, err := runner.AddFunc(entry.Cron, func() {
			if err := sched.Tick(ctx, timeFrame); err != nil {
				logger.Error("scheduler tick failed", "time_frame", timeFrame, "error", err)
			}
		}); err != nil {
			return fmt.Errorf("registering schedule %q: %w", entry.Cron, err)
		}
		logger.Info("registered schedule", "cron", entry.Cron, "time_frame", entry.TimeFrame)
	}
	if cfg.Debug {
		logger.Info("running in debug mode")
		if _, err := runner.AddFunc("@every 10s", func() {
			if err := sched.Tick(ctx, airstack.TimeFrameOneHour); err != nil {
				logger.Error("debug tick failed", "error", err)
			}
		}); err != nil {
			return fmt.Errorf("registering debug schedule: %w", err)
		}
	}
	runner.Start()
	defer runner.Stop()

	logger.Info("starting trendingmints bot")
	return tp.Run(ctx)
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}
