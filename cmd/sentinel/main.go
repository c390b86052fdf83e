// Budget sentinel entry point.
//
// Wires config, ledger store, billing client, metrics and the HTTP event
// server together, then runs until SIGINT/SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/capguard/budget-sentinel/internal/billing"
	"github.com/capguard/budget-sentinel/internal/config"
	"github.com/capguard/budget-sentinel/internal/handler"
	"github.com/capguard/budget-sentinel/internal/ledger"
	"github.com/capguard/budget-sentinel/internal/ledger/memstore"
	"github.com/capguard/budget-sentinel/internal/ledger/mongostore"
	"github.com/capguard/budget-sentinel/internal/ledger/sqlitestore"
	"github.com/capguard/budget-sentinel/internal/metrics"
	"github.com/capguard/budget-sentinel/internal/server"
	"github.com/capguard/budget-sentinel/internal/utils"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file (optional)")
	flag.Parse()

	// Local .env is a convenience for development, absence is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg.Log)

	log.Info().
		Str("store_driver", cfg.Store.Driver).
		Str("collection_prefix", cfg.Ledger.CollectionPrefix).
		Str("billing_api", cfg.Billing.BaseURL).
		Str("billing_token", utils.MaskKey(cfg.Billing.Token)).
		Int("port", cfg.Server.Port).
		Msg("starting budget sentinel")

	store, err := openStore(cfg.Store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open ledger store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("closing ledger store")
		}
	}()

	billingClient := billing.NewHTTPClient(cfg.Billing.BaseURL, cfg.Billing.Token,
		billing.WithTimeout(cfg.Billing.Timeout))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	h := handler.New(store, billingClient,
		handler.WithCollectionPrefix(cfg.Ledger.CollectionPrefix),
		handler.WithMetrics(metrics.New(registry)),
	)

	srv := server.New(cfg.Server, h, store, registry)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("http server failed")
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DefaultShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

// setupLogging configures the global zerolog logger.
func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// openStore builds the ledger store selected by the config.
func openStore(cfg config.StoreConfig) (ledger.Store, error) {
	switch cfg.Driver {
	case "sqlite":
		return sqlitestore.Open(cfg.SQLitePath)
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultStoreConnectTimeout)
		defer cancel()
		return mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDB)
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
