package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/oggyb/muzz-engagement/internal/db"
)

// ProfileRepository reads profiles. The engine never writes them outside seeding.
type ProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository creates a new repository bound to the given DB connection.
func NewProfileRepository(database *gorm.DB) *ProfileRepository {
	return &ProfileRepository{db: database}
}

// GetProfile returns the profile of userID or ErrProfileNotFound.
func (r *ProfileRepository) GetProfile(ctx context.Context, userID uint64) (*db.Profile, error) {
	var p db.Profile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Exists reports whether userID has a profile row.
func (r *ProfileRepository) Exists(ctx context.Context, userID uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count > 0, err
}

// DisplayName returns the profile display name, or fallback when the profile is gone.
func (r *ProfileRepository) DisplayName(ctx context.Context, userID uint64, fallback string) (string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Model(&db.Profile{}).
		Where("user_id = ?", userID).
		Limit(1).
		Pluck("display_name", &names).Error
	if err != nil {
		return fallback, err
	}
	if len(names) == 0 || names[0] == "" {
		return fallback, nil
	}
	return names[0], nil
}
