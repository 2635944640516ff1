package db

import (
	"time"

	"gorm.io/datatypes"
)

// Unlock sources.
const (
	UnlockSourcePurchase = "purchase"
	UnlockSourceAdmin    = "admin"
	UnlockSourceStub     = "stub"
)

// Purchase statuses as reported by the payment processor.
const (
	PurchaseStatusPending   = "pending"
	PurchaseStatusSucceeded = "succeeded"
	PurchaseStatusFailed    = "failed"
	PurchaseStatusRefunded  = "refunded"
)

// Spin types.
const (
	SpinTypeFree = "free"
	SpinTypePaid = "paid"
)

// User table
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	Username     string    `gorm:"uniqueIndex;size:64;not null"`
	Email        string    `gorm:"uniqueIndex;size:128;not null"`
	PasswordHash string    `gorm:"size:255;not null"`
	Active       bool      `gorm:"default:true"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Session maps a verified bearer token to a user.
// Only the blake2b hash of the token is stored.
type Session struct {
	TokenHash string     `gorm:"primaryKey;size:64"`
	UserID    uint64     `gorm:"not null;index"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time  `gorm:"autoCreateTime"`
}

// Profile is the public-facing profile of a user.
//
// Photos and Preferences are JSON columns; Preferences is free-form and never
// leaves the service in the limited projection.
type Profile struct {
	UserID      uint64                      `gorm:"primaryKey;autoIncrement:false"`
	DisplayName string                      `gorm:"size:64;not null"`
	Bio         string                      `gorm:"type:text"`
	Photos      datatypes.JSONSlice[string] `gorm:"type:json"`
	Preferences datatypes.JSONMap           `gorm:"type:json"`
	City        string                      `gorm:"size:64"`
	Age         int                         `gorm:"not null;default:0"`
	Verified    bool                        `gorm:"not null"`
	Visible     bool                        `gorm:"not null"`
	CreatedAt   time.Time                   `gorm:"autoCreateTime"`
	UpdatedAt   time.Time                   `gorm:"autoUpdateTime"`
}

// Match is an unordered pair of users, stored with UserA < UserB.
// Composite PK guarantees one row per pair.
type Match struct {
	UserA     uint64    `gorm:"primaryKey"`
	UserB     uint64    `gorm:"primaryKey;index"`
	CreatedAt time.Time `gorm:"not null"`
}

// ProfileUnlock grants a viewer full visibility of a target profile.
//
// Unique (viewer_id, target_user_id):
//   - a second grant for the same pair overwrites source/expiry.
//   - ExpiresAt nil means permanent.
type ProfileUnlock struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement"`
	ViewerID     uint64     `gorm:"not null;uniqueIndex:ux_unlock_viewer_target,priority:1"`
	TargetUserID uint64     `gorm:"not null;uniqueIndex:ux_unlock_viewer_target,priority:2"`
	Source       string     `gorm:"size:16;not null"`
	ExpiresAt    *time.Time `gorm:"index"`
	PurchaseID   *string    `gorm:"size:36"`
	CreatedAt    time.Time  `gorm:"not null"`
	UpdatedAt    time.Time  `gorm:"not null"`
}

// Purchase is one external-processor transaction.
//
// A purchase with Status=succeeded and ConsumedAt=nil is available; ConsumedAt is
// written exactly once by a conditional update.
type Purchase struct {
	ID            string     `gorm:"primaryKey;size:36"`
	UserID        uint64     `gorm:"not null;index:idx_purchase_user_sku,priority:1"`
	SKU           string     `gorm:"size:64;not null;index:idx_purchase_user_sku,priority:2"`
	ProviderTxnID string     `gorm:"size:128;not null;uniqueIndex"`
	AmountCents   int64      `gorm:"not null"`
	Currency      string     `gorm:"size:3;not null"`
	Status        string     `gorm:"size:16;not null"`
	ConsumedAt    *time.Time `gorm:"index"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

// NotificationBuffer holds the debounce state for one (to, from, kind) triple.
//
// Count is the number of events received since LastNotifiedAt that were not
// delivered yet.
type NotificationBuffer struct {
	ToUser         uint64    `gorm:"primaryKey"`
	FromUser       uint64    `gorm:"primaryKey"`
	Kind           string    `gorm:"primaryKey;size:32"`
	Count          int64     `gorm:"not null;default:0"`
	LastNotifiedAt time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// RewardSpin is an append-only log entry. IDs are ULIDs so they sort by time.
type RewardSpin struct {
	ID          string    `gorm:"primaryKey;size:26"`
	UserID      uint64    `gorm:"not null;index:idx_spin_user_type_at,priority:1"`
	SpinType    string    `gorm:"size:8;not null;index:idx_spin_user_type_at,priority:2"`
	RewardType  string    `gorm:"size:32;not null"`
	RewardValue int       `gorm:"not null"`
	PurchaseID  *string   `gorm:"size:36"`
	SpinAt      time.Time `gorm:"not null;index:idx_spin_user_type_at,priority:3"`
}

// UserBonus is the applied effect of a reward.
type UserBonus struct {
	ID        string            `gorm:"primaryKey;size:26"`
	UserID    uint64            `gorm:"not null;index"`
	BonusType string            `gorm:"size:32;not null"`
	Quantity  int               `gorm:"not null;default:1"`
	ExpiresAt *time.Time        `gorm:"index"`
	Metadata  datatypes.JSONMap `gorm:"type:json"`
	CreatedAt time.Time         `gorm:"not null"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Session{},
		&Profile{},
		&Match{},
		&ProfileUnlock{},
		&Purchase{},
		&NotificationBuffer{},
		&RewardSpin{},
		&UserBonus{},
	}
}
