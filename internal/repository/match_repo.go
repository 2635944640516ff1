package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-engagement/internal/db"
)

// MatchRepository reads match pairs. Matches are created by the matching flow;
// CreateMatch exists for seeding and tests.
type MatchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new repository bound to the given DB connection.
func NewMatchRepository(database *gorm.DB) *MatchRepository {
	return &MatchRepository{db: database}
}

// HasMatch reports whether a and b matched, in either order.
//
// Rows are stored normalized (user_a < user_b) but both orders are checked so
// rows written by older producers are still honored.
func (r *MatchRepository) HasMatch(ctx context.Context, a, b uint64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&db.Match{}).
		Where("(user_a = ? AND user_b = ?) OR (user_a = ? AND user_b = ?)", a, b, b, a).
		Count(&count).Error
	return count > 0, err
}

// CreateMatch inserts the normalized pair. Existing pairs are left untouched.
func (r *MatchRepository) CreateMatch(ctx context.Context, a, b uint64, at time.Time) error {
	if a > b {
		a, b = b, a
	}
	m := db.Match{UserA: a, UserB: b, CreatedAt: at.UTC()}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_a"}, {Name: "user_b"}},
			DoNothing: true,
		}).
		Create(&m).Error
}
