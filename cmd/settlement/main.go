package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tdevries/commerce-bundles/internal/bundles"
	"github.com/tdevries/commerce-bundles/internal/catalog"
	"github.com/tdevries/commerce-bundles/internal/config"
	kafkax "github.com/tdevries/commerce-bundles/internal/kafka"
	"github.com/tdevries/commerce-bundles/internal/postgres"
	"github.com/tdevries/commerce-bundles/internal/redisx"
	"github.com/tdevries/commerce-bundles/internal/settlement"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer: stock-changed notifications for downstream caches
	prod := kafkax.NewProducer(cfg.KafkaBrokers, bundles.TopicBundleStockChanged, 1024)
	prod.Start(ctx)

	svc := &settlement.Service{
		Bundles:     &bundles.Repo{DB: db},
		Engine:      bundles.NewStockEngine(&catalog.Repo{DB: db}),
		Redis:       rdb,
		Producer:    prod,
		ServiceName: cfg.ServiceName + "-settlement",
	}

	group := getenv("SETTLEMENT_GROUP", "bundle-settlement")
	workers := mustAtoi(os.Getenv("SETTLEMENT_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, bundles.TopicOrderCompleted, workers)

	go func() {
		log.Info().Str("group", group).Str("topic", bundles.TopicOrderCompleted).
			Int("workers", workers).Msg("settlement consumer started")
		if err := cons.Start(ctx, svc.HandleOrderCompleted); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	prod.Close()
	prod.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
