package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/db"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/metrics"
	"github.com/oggyb/muzz-engagement/internal/payments"
	"github.com/oggyb/muzz-engagement/internal/repository"
	"github.com/oggyb/muzz-engagement/internal/service/access"
)

// SKUs sold through the processor.
const (
	SKUProfileUnlock = "profile_unlock"
	SKUBigHeart      = "big_heart"
	SKURewardSpin    = "reward_spin"
)

var knownStatuses = map[string]bool{
	db.PurchaseStatusPending:   true,
	db.PurchaseStatusSucceeded: true,
	db.PurchaseStatusFailed:    true,
	db.PurchaseStatusRefunded:  true,
}

// Service records unlock grants and consumes single-use purchases.
type Service struct {
	appCtx    *app.AppContext
	unlocks   *repository.UnlockRepository
	purchases *repository.PurchaseRepository
	access    *access.Service

	// unlocks in flight in this process, keyed by viewer:target
	inflight singleflight.Group
}

// NewLedgerService creates the ledger with repositories bound to appCtx.DB.
func NewLedgerService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:    appCtx,
		unlocks:   repository.NewUnlockRepository(appCtx.DB),
		purchases: repository.NewPurchaseRepository(appCtx.DB),
		access:    access.NewAccessService(appCtx),
	}
}

// Grant upserts the unlock for (viewer, target). A second grant for the same
// pair overwrites source, expiry and purchase id.
func (s *Service) Grant(ctx context.Context, in repository.UnlockGrant) (*db.ProfileUnlock, error) {
	if in.Now.IsZero() {
		in.Now = s.appCtx.Clock()
	}
	u, err := s.unlocks.UpsertUnlock(ctx, in)
	if err != nil {
		s.appCtx.Logger.Error("grant unlock failed", "viewer", in.ViewerID, "target", in.TargetUserID, "err", err)
		return nil, err
	}
	metrics.UnlockGrants.WithLabelValues(in.Source).Inc()
	s.appCtx.Logger.Info("unlock granted",
		"viewer", in.ViewerID,
		"target", in.TargetUserID,
		"source", in.Source,
		"expires_at", in.ExpiresAt,
	)
	return u, nil
}

// Redeem consumes purchaseID for userID and sku. Exactly one concurrent caller
// wins; the rest get ErrPurchaseUnavailable (or ErrPurchaseNotFound when the
// purchase is not theirs).
func (s *Service) Redeem(ctx context.Context, purchaseID string, userID uint64, sku string) (*db.Purchase, error) {
	p, err := s.purchases.ConsumePurchase(ctx, purchaseID, userID, sku, s.appCtx.Clock())
	switch {
	case err == nil:
		metrics.Redemptions.WithLabelValues(sku, "ok").Inc()
		s.appCtx.Logger.Info("purchase redeemed", "purchase_id", purchaseID, "user_id", userID, "sku", sku)
		return p, nil
	case errors.Is(err, repository.ErrPurchaseNotFound):
		metrics.Redemptions.WithLabelValues(sku, "not_found").Inc()
	case errors.Is(err, repository.ErrPurchaseUnavailable):
		metrics.Redemptions.WithLabelValues(sku, "unavailable").Inc()
	default:
		metrics.Redemptions.WithLabelValues(sku, "error").Inc()
		s.appCtx.Logger.Error("redeem failed", "purchase_id", purchaseID, "err", err)
	}
	return nil, err
}

// PurchaseEvent is one processor notification.
type PurchaseEvent struct {
	ProviderTxnID string
	UserID        uint64
	SKU           string
	AmountCents   int64
	Currency      string
	Status        string
}

func (e PurchaseEvent) validate() error {
	switch {
	case strings.TrimSpace(e.ProviderTxnID) == "":
		return svcErr.InvalidArgument("invalid_event", "providerTxnId is required")
	case e.UserID == 0:
		return svcErr.InvalidArgument("invalid_event", "userId is required")
	case strings.TrimSpace(e.SKU) == "":
		return svcErr.InvalidArgument("invalid_event", "sku is required")
	case e.AmountCents < 0:
		return svcErr.InvalidArgument("invalid_event", "amountCents must not be negative")
	case !knownStatuses[e.Status]:
		return svcErr.InvalidArgument("invalid_event", fmt.Sprintf("unknown status %q", e.Status))
	}
	return nil
}

// RecordPurchase stores a processor event keyed on its provider transaction.
// idempotent is true when the transaction had been recorded before.
func (s *Service) RecordPurchase(ctx context.Context, ev PurchaseEvent) (*db.Purchase, bool, error) {
	if err := ev.validate(); err != nil {
		return nil, false, err
	}
	if ev.Currency == "" {
		ev.Currency = s.appCtx.Config.Payments.Currency
	}

	now := s.appCtx.Clock()
	p, created, err := s.purchases.RecordPurchase(ctx, db.Purchase{
		ID:            uuid.NewString(),
		UserID:        ev.UserID,
		SKU:           ev.SKU,
		ProviderTxnID: ev.ProviderTxnID,
		AmountCents:   ev.AmountCents,
		Currency:      strings.ToUpper(ev.Currency),
		Status:        ev.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		s.appCtx.Logger.Warn("record purchase failed", "provider_txn_id", ev.ProviderTxnID, "err", err)
		return nil, false, err
	}
	metrics.WebhookEvents.WithLabelValues(p.Status, fmt.Sprint(!created)).Inc()
	return p, !created, nil
}

// ChargeRequest is a paid flow's charge.
type ChargeRequest struct {
	UserID          uint64
	SKU             string
	AmountCents     int64
	PaymentMethodID string
}

// ErrPaymentsDisabled is returned by ChargeAndRecord without a processor.
var ErrPaymentsDisabled = svcErr.Unavailable("payments_not_configured", "payments are not configured")

// ChargeAndRecord charges the caller, records the charge as a succeeded
// purchase and redeems it for req.SKU, so the charge backs exactly one use.
//
// Behavior:
//   - Missing payment method → 400 payment_method_required, no charge.
//   - Decline / processor failure → mapped payment error, nothing recorded.
//   - Failure after the charge is logged with the provider transaction id.
func (s *Service) ChargeAndRecord(ctx context.Context, req ChargeRequest) (*db.Purchase, error) {
	if s.appCtx.Payments == nil {
		return nil, ErrPaymentsDisabled
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return nil, svcErr.InvalidArgument("payment_method_required", "paymentMethodId is required")
	}

	currency := s.appCtx.Config.Payments.Currency
	charge, err := s.appCtx.Payments.Charge(ctx, payments.ChargeRequest{
		UserID:          req.UserID,
		SKU:             req.SKU,
		AmountCents:     req.AmountCents,
		Currency:        currency,
		PaymentMethodID: req.PaymentMethodID,
		IdempotencyKey:  uuid.NewString(),
	})
	if err != nil {
		result := "error"
		if errors.Is(err, payments.ErrChargeDeclined) {
			result = "declined"
		}
		metrics.Charges.WithLabelValues(req.SKU, result).Inc()
		s.appCtx.Logger.Warn("charge failed", "user_id", req.UserID, "sku", req.SKU, "err", err)
		return nil, err
	}
	metrics.Charges.WithLabelValues(req.SKU, "ok").Inc()

	p, _, err := s.RecordPurchase(ctx, PurchaseEvent{
		ProviderTxnID: charge.ProviderTxnID,
		UserID:        req.UserID,
		SKU:           req.SKU,
		AmountCents:   charge.AmountCents,
		Currency:      charge.Currency,
		Status:        db.PurchaseStatusSucceeded,
	})
	if err != nil {
		s.appCtx.Logger.Error("charged but not recorded",
			"provider_txn_id", charge.ProviderTxnID, "user_id", req.UserID, "sku", req.SKU, "err", err)
		return nil, err
	}

	redeemed, err := s.Redeem(ctx, p.ID, req.UserID, req.SKU)
	if err != nil {
		s.appCtx.Logger.Error("charged but not redeemed",
			"provider_txn_id", charge.ProviderTxnID, "purchase_id", p.ID, "err", err)
		return nil, err
	}
	return redeemed, nil
}

// ErrUnlockInProgress is returned while another instance is charging for the
// same (viewer, target) unlock.
var ErrUnlockInProgress = svcErr.Conflict("unlock_in_progress", "an unlock for this profile is already being processed")

const minUnlockClaimTTL = 30 * time.Second

// UnlockProfile grants viewer full access to target.
//
// Behavior:
//   - Missing target → access.NotFound() and ErrProfileNotFound.
//   - Viewer already has full access → current access, nothing charged.
//   - Payments configured → charge UNLOCK_PRICE_CENTS, grant source purchase
//     expiring after UNLOCK_DURATION (0 = permanent).
//   - Payments not configured → grant source stub.
//
// At most one charge runs per (viewer, target): concurrent calls in this
// process share one result, and a Redis claim rejects a second instance with
// ErrUnlockInProgress. Access is re-checked once the claim is held.
func (s *Service) UnlockProfile(ctx context.Context, viewerID, targetID uint64, paymentMethodID string) (*access.Access, error) {
	s.appCtx.Logger.Debug("UnlockProfile called", "viewer", viewerID, "target", targetID)

	key := fmt.Sprintf("%d:%d", viewerID, targetID)
	v, err, shared := s.inflight.Do(key, func() (any, error) {
		return s.unlockProfile(ctx, viewerID, targetID, paymentMethodID)
	})
	if shared {
		s.appCtx.Logger.Debug("unlock result shared with a concurrent request", "viewer", viewerID, "target", targetID)
	}
	out, _ := v.(*access.Access)
	return out, err
}

func (s *Service) unlockProfile(ctx context.Context, viewerID, targetID uint64, paymentMethodID string) (*access.Access, error) {
	current, err := s.access.Resolve(ctx, viewerID, targetID)
	if err != nil {
		return current, err
	}
	if current.CanViewFull {
		return current, nil
	}

	grant := repository.UnlockGrant{
		ViewerID:     viewerID,
		TargetUserID: targetID,
		Source:       db.UnlockSourceStub,
	}
	if s.appCtx.Payments != nil {
		release, err := s.claimUnlock(ctx, viewerID, targetID)
		if err != nil {
			return nil, err
		}
		defer release()

		// another request may have finished between the first check and the claim
		current, err = s.access.Resolve(ctx, viewerID, targetID)
		if err != nil {
			return current, err
		}
		if current.CanViewFull {
			return current, nil
		}

		p, err := s.ChargeAndRecord(ctx, ChargeRequest{
			UserID:          viewerID,
			SKU:             SKUProfileUnlock,
			AmountCents:     s.appCtx.Config.Unlock.PriceCents,
			PaymentMethodID: paymentMethodID,
		})
		if err != nil {
			return nil, err
		}
		grant.Source = db.UnlockSourcePurchase
		grant.PurchaseID = &p.ID
	}

	grant.Now = s.appCtx.Clock()
	if d := s.appCtx.Config.Unlock.Duration; d > 0 {
		exp := grant.Now.Add(d)
		grant.ExpiresAt = &exp
	}
	if _, err := s.Grant(ctx, grant); err != nil {
		return nil, err
	}
	return s.access.Resolve(ctx, viewerID, targetID)
}

// claimUnlock takes the cross-instance unlock claim. Without Redis the
// in-process guard is all there is; that is logged, not fatal.
func (s *Service) claimUnlock(ctx context.Context, viewerID, targetID uint64) (func(), error) {
	noop := func() {}
	if s.appCtx.RedisCache == nil {
		return noop, nil
	}

	ttl := 2 * s.appCtx.Config.Payments.Timeout
	if ttl < minUnlockClaimTTL {
		ttl = minUnlockClaimTTL
	}
	won, err := s.appCtx.RedisCache.ClaimUnlock(ctx, viewerID, targetID, ttl)
	if err != nil {
		s.appCtx.Logger.Warn("unlock claim unavailable", "viewer", viewerID, "target", targetID, "err", err)
		return noop, nil
	}
	if !won {
		return nil, ErrUnlockInProgress
	}
	return func() {
		if err := s.appCtx.RedisCache.ReleaseUnlock(context.WithoutCancel(ctx), viewerID, targetID); err != nil {
			s.appCtx.Logger.Warn("unlock claim release failed", "viewer", viewerID, "target", targetID, "err", err)
		}
	}, nil
}

// AdminGrant grants access without a charge. expiresAt nil means permanent.
func (s *Service) AdminGrant(ctx context.Context, viewerID, targetID uint64, expiresAt *time.Time) (*db.ProfileUnlock, error) {
	now := s.appCtx.Clock()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, svcErr.InvalidArgument("invalid_expiry", "expiresAt must be in the future")
	}
	if viewerID == targetID {
		return nil, svcErr.InvalidArgument("invalid_target", "viewer and target must differ")
	}
	return s.Grant(ctx, repository.UnlockGrant{
		ViewerID:     viewerID,
		TargetUserID: targetID,
		Source:       db.UnlockSourceAdmin,
		ExpiresAt:    expiresAt,
		Now:          now,
	})
}
