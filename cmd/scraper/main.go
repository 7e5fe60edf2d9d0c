package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"lokum/internal/adapters/fetch"
	"lokum/internal/adapters/gemini"
	"lokum/internal/adapters/observability"
	redisad "lokum/internal/adapters/redis"
	"lokum/internal/app"
	"lokum/internal/domain"
	"lokum/internal/engine"
	_ "lokum/internal/engine/olx"
	"lokum/internal/shared"
	mysqlrepo "lokum/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)
	observability.Serve()

	log.Info().
		Int("workers", cfg.Workers).
		Dur("freshness", cfg.Freshness).
		Msg("scraper starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	client := fetch.New(cfg.UserAgent, cfg.FetchRPS)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	var enricher engine.Enricher
	if cfg.GeminiKey != "" {
		gc, err := gemini.New(cfg.GeminiBase, cfg.GeminiKey, cfg.GeminiModel, 1)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize Gemini client")
		}
		enricher = gc
	}

	resolver := app.NewResolver(repo)
	discovery := app.NewDiscoveryService(repo, resolver, func(site domain.Site) (engine.Discovery, error) {
		return engine.NewDiscovery(site, client)
	})
	pipeline := app.NewPipeline(repo, func(site domain.Site) (engine.DetailScraper, error) {
		return engine.NewDetailScraper(site, client)
	}, enricher, cache, cfg.Freshness, cfg.Workers)

	dsum, err := discovery.RunDiscoveryCycle(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("discovery cycle failed")
	}
	log.Info().
		Int("queries", dsum.Queries).
		Int("new", dsum.New).
		Int("known", dsum.Known).
		Msg("discovery done")

	psum, err := pipeline.RunDetailCycle(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("detail cycle failed")
	}
	log.Info().
		Int("eligible", psum.Eligible).
		Int("consolidated", psum.Consolidated).
		Int("failed", psum.Failed).
		Int("gone", psum.Gone).
		Msg("scrape completed")
}
