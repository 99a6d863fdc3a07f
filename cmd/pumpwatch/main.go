package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/rewired-gh/pumpwatch/internal/config"
	"github.com/rewired-gh/pumpwatch/internal/history"
	"github.com/rewired-gh/pumpwatch/internal/kucoin"
	"github.com/rewired-gh/pumpwatch/internal/logger"
	"github.com/rewired-gh/pumpwatch/internal/monitor"
	"github.com/rewired-gh/pumpwatch/internal/storage"
	"github.com/rewired-gh/pumpwatch/internal/telegram"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func openAlertLog(cfg config.StorageConfig) (storage.AlertLog, error) {
	switch cfg.Backend {
	case "sqlite":
		return storage.New("sqlite", cfg.DBPath)
	case "postgres":
		return storage.New("postgres", cfg.DSN)
	case "csv":
		return storage.NewCSVLog(cfg.CSVPath)
	case "redis":
		return storage.NewRedisLog(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}), cfg.RedisStream)
	}
	return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", *configPath)

	alertLog, err := openAlertLog(cfg.Storage)
	if err != nil {
		logger.Fatal("Failed to initialize %s storage: %v", cfg.Storage.Backend, err)
	}
	defer func() {
		if err := alertLog.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	gateway := kucoin.NewClient(
		cfg.Exchange.BaseURL,
		cfg.Exchange.Timeout,
		kucoin.ClientConfig{
			QuoteCurrency:     cfg.Exchange.QuoteCurrency,
			RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
			Burst:             cfg.Exchange.Burst,
			MaxRetries:        cfg.Exchange.MaxRetries,
			OrderBookDepth:    cfg.Exchange.OrderBookDepth,
		},
	)

	monitorConfig := monitor.Config{
		Score: monitor.ScoreConfig{
			VolumeSpikeMultiplier: cfg.Monitor.VolumeSpikeMultiplier,
			TradeBurstThreshold:   cfg.Monitor.TradeBurstThreshold,
			StackingThreshold:     cfg.Monitor.StackingThreshold,
			BidDepth:              cfg.Monitor.BidDepth,
			NotionalFloor:         cfg.Monitor.NotionalFloor,
		},
		AlertThreshold:  cfg.Monitor.AlertThreshold,
		MinQuoteVolume:  cfg.Monitor.MinQuoteVolume,
		Workers:         cfg.Monitor.Workers,
		ScanInterval:    cfg.Monitor.ScanInterval,
		RefreshInterval: cfg.Monitor.RefreshInterval,
		RequestTimeout:  cfg.Monitor.RequestTimeout,
	}

	// notifier stays a nil interface when telegram is disabled
	var notifier monitor.Notifier
	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			logger.Fatal("Failed to initialize Telegram client: %v", err)
		}
		notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	mon := monitor.New(gateway, history.New(cfg.Monitor.HistoryLength), alertLog, notifier, monitorConfig)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, finishing current cycle...")
		cancel()
	}()

	if telegramClient != nil {
		telegramClient.ListenForCommands(ctx, mon, alertLog)
	}

	logger.Info("Starting pump monitor (scan: %v, refresh: %v, workers: %d, alert threshold: %d)",
		cfg.Monitor.ScanInterval,
		cfg.Monitor.RefreshInterval,
		cfg.Monitor.Workers,
		cfg.Monitor.AlertThreshold,
	)

	if err := mon.Run(ctx); err != nil {
		if telegramClient != nil {
			if sendErr := telegramClient.SendError(err); sendErr != nil {
				logger.Error("Failed to send error notification: %v", sendErr)
			}
		}
		alertLog.Close()
		logger.Fatal("Monitor failed: %v", err)
	}

	logger.Info("Shutdown complete")
}
