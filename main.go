package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spreadwatch/config"
	"spreadwatch/internal/model"
	"spreadwatch/internal/server"
	"spreadwatch/internal/stream"
	"spreadwatch/internal/venue"
	"spreadwatch/internal/venue/binance"
	"spreadwatch/internal/venue/bybit"
	"spreadwatch/internal/venue/kucoin"
	"spreadwatch/internal/venue/okx"
	"spreadwatch/internal/watch"
	"spreadwatch/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Spreadwatch.Name,
		"version":     cfg.Spreadwatch.Version,
		"environment": config.AppEnvironment(),
	}).Info("starting spreadwatch")

	if cfg.Metrics.CloudWatch.Enabled {
		logger.InitCloudWatch(cfg.Metrics.CloudWatch.Region, cfg.Metrics.CloudWatch.Namespace, cfg.Metrics.CloudWatch.Dashboard)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := buildRegistry(cfg)

	svc := watch.NewService(registry, cfg.Watch.DefaultBookA, cfg.Watch.DefaultBookB)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.New(svc).Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithFields(logger.Fields{"addr": cfg.Server.Addr}).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	var mgr *stream.Manager
	if cfg.Stream.Enabled {
		mgr = stream.NewBinanceManager(cfg.Venues.Binance.APIKey, cfg.Venues.Binance.APISecret, stream.Options{
			HeartbeatInterval: cfg.Stream.Heartbeat,
			RenewInterval:     cfg.Stream.RenewInterval,
		})

		go func() {
			err := mgr.SubscribePublic(ctx, cfg.Stream.Topics, func(msg []byte) {
				log.WithComponent("stream").WithFields(logger.Fields{"bytes": len(msg)}).Debug("public frame")
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Warn("public stream terminated")
			}
		}()

		if cfg.Venues.Binance.APIKey != "" {
			go func() {
				err := mgr.SubscribeAccount(ctx, func(msg []byte) {
					log.WithComponent("stream").WithFields(logger.Fields{"bytes": len(msg)}).Debug("account frame")
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).Warn("account stream terminated")
				}
			}()
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown")
	cancel()

	if mgr != nil {
		log.Info("closing stream manager")
		mgr.Close()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown timeout exceeded")
	} else {
		log.Info("graceful shutdown completed")
	}

	log.Info("spreadwatch stopped")
}

func buildRegistry(cfg *config.Config) *venue.Registry {
	registry := venue.NewRegistry()
	registry.Register("binance", "Binance", []model.MarketType{model.MarketSpot, model.MarketSwap}, binance.NewFactory(cfg.Venues.Binance))
	registry.Register("okx", "OKX", []model.MarketType{model.MarketSpot, model.MarketSwap}, okx.NewFactory(cfg.Venues.Okx))
	registry.Register("bybit", "Bybit", []model.MarketType{model.MarketSpot, model.MarketSwap}, bybit.NewFactory(cfg.Venues.Bybit))
	registry.Register("kucoin", "KuCoin", []model.MarketType{model.MarketSwap}, kucoin.NewFactory(cfg.Venues.Kucoin))
	return registry
}
