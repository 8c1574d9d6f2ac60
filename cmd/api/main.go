package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/tdevries/commerce-bundles/internal/bundles"
	"github.com/tdevries/commerce-bundles/internal/catalog"
	"github.com/tdevries/commerce-bundles/internal/config"
	"github.com/tdevries/commerce-bundles/internal/httpx"
	"github.com/tdevries/commerce-bundles/internal/postgres"
	"github.com/tdevries/commerce-bundles/internal/redisx"
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

	// Repos & engine
	repo := &bundles.Repo{DB: db}
	engine := bundles.NewStockEngine(&catalog.Repo{DB: db})

	router := httpx.NewRouter()
	bh := &httpx.BundlesHandler{
		Repo:    repo,
		Engine:  engine,
		Redis:   rdb,
		Service: cfg.ServiceName,
	}
	bh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}
