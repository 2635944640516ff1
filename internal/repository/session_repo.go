package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-engagement/internal/db"
)

// SessionRepository resolves hashed bearer tokens to users.
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new repository bound to the given DB connection.
func NewSessionRepository(database *gorm.DB) *SessionRepository {
	return &SessionRepository{db: database}
}

// FindUserID returns the owner of tokenHash when the session is still valid.
func (r *SessionRepository) FindUserID(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	var s db.Session
	err := r.db.WithContext(ctx).
		Where("token_hash = ? AND (expires_at IS NULL OR expires_at > ?)", tokenHash, now.UTC()).
		Take(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrSessionNotFound
	}
	if err != nil {
		return 0, err
	}
	return s.UserID, nil
}

// SaveSession stores a session, replacing an existing one with the same hash.
func (r *SessionRepository) SaveSession(ctx context.Context, s db.Session) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"user_id", "expires_at"}),
		}).
		Create(&s).Error
}
