package app

import (
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-engagement/internal/cache"
	"github.com/oggyb/muzz-engagement/internal/config"
	"github.com/oggyb/muzz-engagement/internal/payments"
	"github.com/oggyb/muzz-engagement/internal/push"
)

// AppContext holds shared dependencies (DB, Redis, Logger, etc.)
type AppContext struct {
	DB         *gorm.DB
	RedisCache *cache.RedisCache
	Logger     *slog.Logger
	Config     *config.Config

	// Payments is nil when no processor is configured.
	Payments payments.Charger
	Push     push.Sender

	Now func() time.Time
}

// New creates a new AppContext. External clients are built from cfg.
func New(cfg *config.Config, db *gorm.DB, rdb *cache.RedisCache, logger *slog.Logger) *AppContext {
	return &AppContext{
		DB:         db,
		RedisCache: rdb,
		Logger:     logger,
		Config:     cfg,
		Payments:   payments.FromConfig(cfg),
		Push:       push.FromConfig(cfg, logger),
		Now:        Now,
	}
}

// Now is the default clock: UTC, millisecond precision like the store.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Clock returns ctx.Now, falling back to the default clock.
func (c *AppContext) Clock() time.Time {
	if c.Now == nil {
		return Now()
	}
	return c.Now()
}
