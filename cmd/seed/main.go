package main

import (
	"fmt"
	"os"

	"github.com/oggyb/muzz-engagement/internal/auth"
	"github.com/oggyb/muzz-engagement/internal/config"
	"github.com/oggyb/muzz-engagement/internal/db"
	"github.com/oggyb/muzz-engagement/internal/logger"
	"github.com/oggyb/muzz-engagement/internal/service/ledger"
)

func main() {
	// Load configuration
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	skus := []string{ledger.SKUProfileUnlock, ledger.SKUBigHeart, ledger.SKURewardSpin}
	res, err := db.SeedDemoData(database, auth.HashToken, skus, log)
	if err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	for id := uint64(1); id <= uint64(len(res.Tokens)); id++ {
		fmt.Printf("user %d  Authorization: Bearer %s\n", id, res.Tokens[id])
	}
	for _, sku := range skus {
		fmt.Printf("purchase %-15s %s (user 1)\n", sku, res.Purchases[sku])
	}
	log.Info("seeding completed")
}
