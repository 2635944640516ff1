package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oggyb/muzz-engagement/internal/db"
)

// PurchaseRepository owns the single-use purchase tokens.
type PurchaseRepository struct {
	db *gorm.DB
}

// NewPurchaseRepository creates a new repository bound to the given DB connection.
func NewPurchaseRepository(database *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: database}
}

// statusPredecessors lists, per target status, the statuses it may replace.
// Anything else is a late or out-of-order delivery and leaves the row alone.
var statusPredecessors = map[string][]string{
	db.PurchaseStatusSucceeded: {db.PurchaseStatusPending},
	db.PurchaseStatusFailed:    {db.PurchaseStatusPending},
	db.PurchaseStatusRefunded:  {db.PurchaseStatusPending, db.PurchaseStatusSucceeded},
}

// RecordPurchase inserts p keyed on provider_txn_id, or returns the row already
// recorded for that provider transaction.
//
// Behavior:
//   - First delivery → row inserted, created = true.
//   - Replay → existing row returned, created = false. Status only advances
//     pending → succeeded|failed|refunded and succeeded → refunded, in one
//     conditional UPDATE; any other change is ignored. consumed_at, owner and
//     sku are never touched.
//   - Replay with a different owner or sku → ErrPurchaseOwnership.
func (r *PurchaseRepository) RecordPurchase(ctx context.Context, p db.Purchase) (*db.Purchase, bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_txn_id"}},
			DoNothing: true,
		}).
		Create(&p)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 1 {
		return &p, true, nil
	}

	existing, err := r.findByProviderTxn(ctx, p.ProviderTxnID)
	if err != nil {
		return nil, false, err
	}
	if existing.UserID != p.UserID || existing.SKU != p.SKU {
		return existing, false, ErrPurchaseOwnership
	}

	from, ok := statusPredecessors[p.Status]
	if !ok || existing.Status == p.Status {
		return existing, false, nil
	}
	upd := r.db.WithContext(ctx).
		Model(&db.Purchase{}).
		Where("id = ? AND status IN ?", existing.ID, from).
		Updates(map[string]any{"status": p.Status, "updated_at": p.UpdatedAt})
	if upd.Error != nil {
		return nil, false, upd.Error
	}
	if upd.RowsAffected == 0 {
		// illegal transition, or a concurrent delivery moved the row first
		existing, err = r.findByProviderTxn(ctx, p.ProviderTxnID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}
	existing.Status = p.Status
	existing.UpdatedAt = p.UpdatedAt
	return existing, false, nil
}

func (r *PurchaseRepository) findByProviderTxn(ctx context.Context, providerTxnID string) (*db.Purchase, error) {
	var p db.Purchase
	if err := r.db.WithContext(ctx).
		Where("provider_txn_id = ?", providerTxnID).
		Take(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ConsumePurchase atomically marks an available purchase as consumed.
//
// Behavior:
//   - A single conditional UPDATE matches id, owner, sku, status=succeeded and
//     consumed_at IS NULL. Exactly one concurrent caller can affect the row.
//   - 0 rows → follow-up read tells ErrPurchaseNotFound (no such purchase for
//     this user) from ErrPurchaseUnavailable (consumed, pending, wrong sku).
//
// Example:
//
//	repo.ConsumePurchase(ctx, "9b2f...", 42, "big_heart", time.Now())
func (r *PurchaseRepository) ConsumePurchase(
	ctx context.Context,
	purchaseID string,
	userID uint64,
	sku string,
	now time.Time,
) (*db.Purchase, error) {
	now = now.UTC()
	res := r.db.WithContext(ctx).
		Model(&db.Purchase{}).
		Where("id = ? AND user_id = ? AND sku = ? AND status = ? AND consumed_at IS NULL",
			purchaseID, userID, sku, db.PurchaseStatusSucceeded).
		Updates(map[string]any{"consumed_at": now, "updated_at": now})
	if res.Error != nil {
		return nil, res.Error
	}

	var p db.Purchase
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", purchaseID, userID).
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}

	if res.RowsAffected == 0 {
		return &p, ErrPurchaseUnavailable
	}
	return &p, nil
}

// GetPurchase returns a purchase by id.
func (r *PurchaseRepository) GetPurchase(ctx context.Context, purchaseID string) (*db.Purchase, error) {
	var p db.Purchase
	err := r.db.WithContext(ctx).Where("id = ?", purchaseID).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPurchaseNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
