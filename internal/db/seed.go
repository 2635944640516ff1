package db

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SeedResult lists what a seed run created that a developer needs to call the API.
type SeedResult struct {
	// Tokens maps user id to a bearer token.
	Tokens map[uint64]string
	// Purchases maps sku to an unconsumed purchase id owned by user 1.
	Purchases map[string]string
}

// SeedDemoData resets the engine tables and populates a small demo dataset.
//
// Behavior:
//  1. Clears every engine table.
//  2. Creates 6 users with profiles (password "password"), user 6 hidden.
//  3. Matches 1↔2 and 3↔4.
//  4. Creates one session per user; hashToken turns the printed token into the
//     stored hash.
//  5. Gives user 1 one succeeded purchase per sku in skus.
//
// Compatible with both MySQL and SQLite.
func SeedDemoData(db *gorm.DB, hashToken func(string) string, skus []string, log *slog.Logger) (*SeedResult, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	res := &SeedResult{Tokens: map[uint64]string{}, Purchases: map[string]string{}}

	err := db.Transaction(func(tx *gorm.DB) error {
		// --- Fresh start ---
		models := All()
		for i := len(models) - 1; i >= 0; i-- {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(models[i]).Error; err != nil {
				return fmt.Errorf("failed to clear %T: %w", models[i], err)
			}
		}
		log.Info("seed.cleared")

		hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}

		names := []string{"Alex", "Blair", "Casey", "Devon", "Emery", "Finley"}
		for i, name := range names {
			id := uint64(i + 1)
			user := User{
				ID:           id,
				Username:     fmt.Sprintf("user%d", id),
				Email:        fmt.Sprintf("user%d@example.com", id),
				PasswordHash: string(hash),
				Active:       true,
			}
			if err := tx.Create(&user).Error; err != nil {
				return fmt.Errorf("failed to seed user: %w", err)
			}

			profile := Profile{
				UserID:      id,
				DisplayName: name,
				Bio:         fmt.Sprintf("Hi, I'm %s. I like long walks, short queues and very strong coffee, in that order.", name),
				Photos:      []string{fmt.Sprintf("https://cdn.example.com/%d/1.jpg", id), fmt.Sprintf("https://cdn.example.com/%d/2.jpg", id)},
				Preferences: map[string]any{"ageMin": 24, "ageMax": 38, "distanceKm": 25},
				City:        "London",
				Age:         25 + i,
				Verified:    i%2 == 0,
				Visible:     id != 6,
			}
			if err := tx.Create(&profile).Error; err != nil {
				return fmt.Errorf("failed to seed profile: %w", err)
			}

			token := uuid.NewString()
			if err := tx.Create(&Session{TokenHash: hashToken(token), UserID: id}).Error; err != nil {
				return fmt.Errorf("failed to seed session: %w", err)
			}
			res.Tokens[id] = token
		}
		log.Info("seed.users", "count", len(names))

		for _, pair := range [][2]uint64{{1, 2}, {3, 4}} {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				Create(&Match{UserA: pair[0], UserB: pair[1], CreatedAt: now}).Error; err != nil {
				return fmt.Errorf("failed to seed match: %w", err)
			}
		}

		for _, sku := range skus {
			p := Purchase{
				ID:            uuid.NewString(),
				UserID:        1,
				SKU:           sku,
				ProviderTxnID: "seed_" + sku,
				AmountCents:   199,
				Currency:      "USD",
				Status:        PurchaseStatusSucceeded,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.Create(&p).Error; err != nil {
				return fmt.Errorf("failed to seed purchase: %w", err)
			}
			res.Purchases[sku] = p.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
