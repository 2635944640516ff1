package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-engagement/internal/db"
)

// NotificationRepository maintains the per (to, from, kind) debounce buffers.
type NotificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a new repository bound to the given DB connection.
func NewNotificationRepository(database *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: database}
}

// BufferKey identifies one debounce buffer.
type BufferKey struct {
	ToUser   uint64
	FromUser uint64
	Kind     string
}

// BufferTransition is what RecordEvent observed and did.
type BufferTransition struct {
	WasInserted bool
	PriorCount  int64
	LastAt      time.Time
	// Flushed is true when the buffer was reset and a send is due.
	Flushed bool
}

// RecordEvent applies one event to the buffer in a single transaction.
//
// Behavior:
//   - No row → insert with count=0, last_notified_at=now (WasInserted, send now).
//   - Row locked with SELECT ... FOR UPDATE, then:
//   - now-last < window → count = count+1 (suppressed).
//   - otherwise → count = 0, last_notified_at = now (Flushed, send prior+1).
//
// Concurrent events for the same key serialize on the row lock, so no
// increment is lost and only one of them can flush a stale buffer.
func (r *NotificationRepository) RecordEvent(
	ctx context.Context,
	key BufferKey,
	now time.Time,
	window time.Duration,
) (BufferTransition, error) {
	now = now.UTC()
	var out BufferTransition

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := db.NotificationBuffer{
			ToUser:         key.ToUser,
			FromUser:       key.FromUser,
			Kind:           key.Kind,
			Count:          0,
			LastNotifiedAt: now,
			UpdatedAt:      now,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "to_user"}, {Name: "from_user"}, {Name: "kind"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			out = BufferTransition{WasInserted: true, LastAt: now}
			return nil
		}

		var current db.NotificationBuffer
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("to_user = ? AND from_user = ? AND kind = ?", key.ToUser, key.FromUser, key.Kind).
			Take(&current).Error; err != nil {
			return err
		}
		out.PriorCount = current.Count
		out.LastAt = current.LastNotifiedAt

		q := tx.Model(&db.NotificationBuffer{}).
			Where("to_user = ? AND from_user = ? AND kind = ?", key.ToUser, key.FromUser, key.Kind)

		if now.Sub(current.LastNotifiedAt) < window {
			return q.Updates(map[string]any{
				"count":      gorm.Expr("count + 1"),
				"updated_at": now,
			}).Error
		}

		out.Flushed = true
		return q.Updates(map[string]any{
			"count":            0,
			"last_notified_at": now,
			"updated_at":       now,
		}).Error
	})
	if err != nil {
		return BufferTransition{}, err
	}
	return out, nil
}

// GetBuffer returns the buffer row for key. Used by tests and diagnostics.
func (r *NotificationRepository) GetBuffer(ctx context.Context, key BufferKey) (*db.NotificationBuffer, error) {
	var b db.NotificationBuffer
	err := r.db.WithContext(ctx).
		Where("to_user = ? AND from_user = ? AND kind = ?", key.ToUser, key.FromUser, key.Kind).
		Take(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}
