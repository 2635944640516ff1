package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-engagement/internal/db"
)

// UnlockRepository provides data access for ProfileUnlock grants.
type UnlockRepository struct {
	db *gorm.DB
}

// NewUnlockRepository creates a new repository bound to the given DB connection.
func NewUnlockRepository(database *gorm.DB) *UnlockRepository {
	return &UnlockRepository{db: database}
}

// UnlockGrant is the input of UpsertUnlock.
type UnlockGrant struct {
	ViewerID     uint64
	TargetUserID uint64
	Source       string
	ExpiresAt    *time.Time
	PurchaseID   *string
	Now          time.Time
}

// UpsertUnlock inserts or overwrites the grant for viewer -> target.
//
// Behavior:
//   - If (viewer_id, target_user_id) exists → source, expires_at, purchase_id are overwritten.
//   - If it doesn't exist → a new row is inserted.
//   - Unique index guarantees a single row per pair.
//
// Example:
//
//	repo.UpsertUnlock(ctx, UnlockGrant{ViewerID: 1, TargetUserID: 2, Source: db.UnlockSourceAdmin})
func (r *UnlockRepository) UpsertUnlock(ctx context.Context, in UnlockGrant) (*db.ProfileUnlock, error) {
	now := in.Now.UTC()
	var expires *time.Time
	if in.ExpiresAt != nil {
		e := in.ExpiresAt.UTC()
		expires = &e
	}

	row := db.ProfileUnlock{
		ViewerID:     in.ViewerID,
		TargetUserID: in.TargetUserID,
		Source:       in.Source,
		ExpiresAt:    expires,
		PurchaseID:   in.PurchaseID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "viewer_id"}, {Name: "target_user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"source", "expires_at", "purchase_id", "updated_at"}),
		}).
		Create(&row).Error
	if err != nil {
		return nil, err
	}

	// the insert may have turned into an update; read the surviving row
	var out db.ProfileUnlock
	if err := r.db.WithContext(ctx).
		Where("viewer_id = ? AND target_user_id = ?", in.ViewerID, in.TargetUserID).
		Take(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// FindPermanent returns the never-expiring grant for viewer -> target, or nil.
func (r *UnlockRepository) FindPermanent(ctx context.Context, viewerID, targetID uint64) (*db.ProfileUnlock, error) {
	var u db.ProfileUnlock
	err := r.db.WithContext(ctx).
		Where("viewer_id = ? AND target_user_id = ? AND expires_at IS NULL", viewerID, targetID).
		Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindLatestActive returns the timed grant with the latest expiry still after now, or nil.
func (r *UnlockRepository) FindLatestActive(ctx context.Context, viewerID, targetID uint64, now time.Time) (*db.ProfileUnlock, error) {
	var u db.ProfileUnlock
	err := r.db.WithContext(ctx).
		Where("viewer_id = ? AND target_user_id = ? AND expires_at IS NOT NULL AND expires_at > ?", viewerID, targetID, now.UTC()).
		Order("expires_at DESC").
		Take(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CountForPair returns how many grant rows exist for viewer -> target.
func (r *UnlockRepository) CountForPair(ctx context.Context, viewerID, targetID uint64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&db.ProfileUnlock{}).
		Where("viewer_id = ? AND target_user_id = ?", viewerID, targetID).
		Count(&n).Error
	return n, err
}
