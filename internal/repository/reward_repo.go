package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-engagement/internal/db"
	"github.com/oggyb/muzz-engagement/internal/utils/pagination"
)

// RewardRepository provides access to the spin log and applied bonuses.
type RewardRepository struct {
	db *gorm.DB
}

// NewRewardRepository creates a new repository bound to the given DB connection.
func NewRewardRepository(database *gorm.DB) *RewardRepository {
	return &RewardRepository{db: database}
}

// LastSpin returns the most recent spin of spinType for userID, or nil.
// An empty spinType matches any type.
func (r *RewardRepository) LastSpin(ctx context.Context, userID uint64, spinType string) (*db.RewardSpin, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if spinType != "" {
		q = q.Where("spin_type = ?", spinType)
	}

	var s db.RewardSpin
	err := q.Order("spin_at DESC, id DESC").Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSpin appends the spin log row and, when bonus is non-nil, the applied
// bonus in the same transaction.
func (r *RewardRepository) CreateSpin(ctx context.Context, spin *db.RewardSpin, bonus *db.UserBonus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(spin).Error; err != nil {
			return err
		}
		if bonus == nil {
			return nil
		}
		return tx.Create(bonus).Error
	})
}

// ActiveBonuses returns every bonus of userID that is permanent or not yet expired.
func (r *RewardRepository) ActiveBonuses(ctx context.Context, userID uint64, now time.Time) ([]db.UserBonus, error) {
	var bonuses []db.UserBonus
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND (expires_at IS NULL OR expires_at > ?)", userID, now.UTC()).
		Order("created_at DESC, id DESC").
		Find(&bonuses).Error
	return bonuses, err
}

// ListSpins returns the spin log of userID, newest first.
//
// Behavior:
//   - Ordered by spin_at DESC, id DESC.
//   - Supports cursor-based pagination via paginationToken.
//
// Example:
//
//	repo.ListSpins(ctx, 42, nil, 20)
func (r *RewardRepository) ListSpins(
	ctx context.Context,
	userID uint64,
	paginationToken *string,
	limit int,
) ([]db.RewardSpin, *string, error) {
	var spins []db.RewardSpin

	cursor, err := pagination.Decode(getString(paginationToken))
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("spin_at DESC, id DESC").
		Limit(limit + 1)

	// apply cursor
	if !cursor.IsZero() {
		ts := time.UnixMilli(cursor.AtUnix).UTC()
		query = query.Where(
			"(spin_at < ? OR (spin_at = ? AND id < ?))",
			ts, ts, cursor.ID,
		)
	}

	if err := query.Find(&spins).Error; err != nil {
		return nil, nil, err
	}

	// pagination: build next cursor if needed
	var nextToken *string
	if len(spins) > limit {
		last := spins[limit-1]
		token, _ := pagination.Encode(pagination.Cursor{
			ID:     last.ID,
			AtUnix: last.SpinAt.UnixMilli(),
		})
		nextToken = &token
		spins = spins[:limit]
	}

	return spins, nextToken, nil
}

// getString safely dereferences a string pointer for pagination tokens.
func getString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
