package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/auth"
	"github.com/oggyb/muzz-engagement/internal/cache"
	"github.com/oggyb/muzz-engagement/internal/config"
	"github.com/oggyb/muzz-engagement/internal/db"
	"github.com/oggyb/muzz-engagement/internal/logger"
	"github.com/oggyb/muzz-engagement/internal/repository"
	"github.com/oggyb/muzz-engagement/internal/server"
	"github.com/oggyb/muzz-engagement/internal/service/access"
	"github.com/oggyb/muzz-engagement/internal/service/hearts"
	"github.com/oggyb/muzz-engagement/internal/service/ledger"
	"github.com/oggyb/muzz-engagement/internal/service/notify"
	"github.com/oggyb/muzz-engagement/internal/service/rewards"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.New()

	// Init logger (global singleton)
	logger.InitFromConfig(cfg)
	log := logger.L()

	// Init DB
	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}
	sqlDB, err := database.DB()
	if err != nil {
		log.Error("failed to get sql db", "err", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	// Init Redis. The free-spin claim degrades to the database check without it,
	// so a failed ping is not fatal.
	redisCache := cache.NewRedisCache(cfg)
	defer redisCache.Close()
	if err := redisCache.Ping(ctx); err != nil {
		log.Warn("redis unavailable at startup", "addr", cfg.Redis.Addr, "err", err)
	}

	catalogue, err := rewards.CatalogueFromFile(cfg.Rewards.CatalogueFile)
	if err != nil {
		log.Error("failed to load rewards catalogue", "err", err)
		os.Exit(1)
	}

	appCtx := app.New(cfg, database, redisCache, log)
	if appCtx.Payments == nil {
		log.Warn("payments not configured, profile unlocks are granted without charge")
	}

	authn := auth.NewAuthenticator(repository.NewSessionRepository(database), appCtx.Clock)
	// Redis only narrows races the database already bounds; losing it degrades, not fails.
	health := server.NewHealth(map[string]server.Check{
		"db": sqlDB.PingContext,
	}).WithOptional("redis", redisCache.Ping)

	router := server.NewRouter(log, authn.Middleware,
		health,
		access.NewRegistrar(appCtx),
		ledger.NewRegistrar(appCtx),
		notify.NewRegistrar(appCtx),
		hearts.NewRegistrar(appCtx),
		rewards.NewRegistrar(appCtx, rewards.WithCatalogue(catalogue)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.RunHTTP(gctx, cfg, router, log) })
	g.Go(func() error { return server.StartGRPCServer(gctx, cfg, health, log) })

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
