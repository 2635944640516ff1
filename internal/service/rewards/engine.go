// Package rewards implements the reward spin: weighted selection, the free
// spin cooldown and bonus application.
package rewards

import (
	"context"
	"crypto/rand"
	"fmt"
	mrand "math/rand/v2"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/db"
	"github.com/oggyb/muzz-engagement/internal/metrics"
	"github.com/oggyb/muzz-engagement/internal/repository"
	"github.com/oggyb/muzz-engagement/internal/service/ledger"
)

const historyPageSize = 20

// AlreadySpunError is returned for a free spin inside the cooldown.
type AlreadySpunError struct {
	NextFreeSpinAt time.Time
}

func (e *AlreadySpunError) Error() string {
	return fmt.Sprintf("free spin already used, next at %s", e.NextFreeSpinAt.Format(time.RFC3339))
}

// Engine selects and applies rewards.
type Engine struct {
	appCtx    *app.AppContext
	catalogue *Catalogue
	spins     *repository.RewardRepository
	ledger    *ledger.Service

	mu  sync.Mutex
	src Source
}

// Option configures an Engine.
type Option func(*Engine)

// WithCatalogue replaces the default catalogue.
func WithCatalogue(c *Catalogue) Option {
	return func(e *Engine) {
		if c != nil {
			e.catalogue = c
		}
	}
}

// WithSource sets the random source. The engine serializes calls to it.
func WithSource(src Source) Option {
	return func(e *Engine) { e.src = src }
}

// NewRewardsService creates the engine with repositories bound to appCtx.DB.
func NewRewardsService(appCtx *app.AppContext, opts ...Option) *Engine {
	e := &Engine{
		appCtx:    appCtx,
		catalogue: DefaultCatalogue(),
		spins:     repository.NewRewardRepository(appCtx.DB),
		ledger:    ledger.NewLedgerService(appCtx),
		src:       mrand.New(mrand.NewPCG(mrand.Uint64(), mrand.Uint64())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SpinResult is the /rewards-spin payload.
type SpinResult struct {
	SpinID   string    `json:"spinId"`
	SpinType string    `json:"spinType"`
	Reward   RewardOut `json:"reward"`
	Status   *Status   `json:"status"`
}

type RewardOut struct {
	Type      string     `json:"type"`
	Label     string     `json:"label"`
	Value     int        `json:"value"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

// FreeSpin spins once per cooldown period.
//
// Behavior:
//   - Latest free spin younger than the cooldown → *AlreadySpunError.
//   - A Redis claim closes the gap between that check and the log insert
//     across instances; losing it → *AlreadySpunError. Redis errors are
//     logged and the spin proceeds on the database check alone.
//   - A failure after winning the claim releases it.
func (e *Engine) FreeSpin(ctx context.Context, userID uint64) (*SpinResult, error) {
	log := e.appCtx.Logger.With("user_id", userID, "spin_type", db.SpinTypeFree)
	log.Debug("FreeSpin called")

	now := e.appCtx.Clock()
	cooldown := e.appCtx.Config.Rewards.FreeSpinCooldown

	last, err := e.spins.LastSpin(ctx, userID, db.SpinTypeFree)
	if err != nil {
		return nil, err
	}
	if next := nextFreeSpinAt(last, cooldown, now); next != nil {
		metrics.SpinRejections.WithLabelValues("db").Inc()
		return nil, &AlreadySpunError{NextFreeSpinAt: *next}
	}

	claimed := false
	if e.appCtx.RedisCache != nil && cooldown > 0 {
		won, err := e.appCtx.RedisCache.ClaimFreeSpin(ctx, userID, now, cooldown)
		switch {
		case err != nil:
			log.Warn("free spin claim unavailable, relying on database check", "err", err)
		case !won:
			metrics.SpinRejections.WithLabelValues("claim").Inc()
			next := now.Add(cooldown)
			if at, err := e.appCtx.RedisCache.FreeSpinClaimedAt(ctx, userID); err == nil && at != nil {
				next = at.Add(cooldown)
			}
			return nil, &AlreadySpunError{NextFreeSpinAt: next}
		default:
			claimed = true
		}
	}

	res, err := e.spin(ctx, userID, db.SpinTypeFree, nil, now)
	if err != nil && claimed {
		if rerr := e.appCtx.RedisCache.ReleaseFreeSpin(context.WithoutCancel(ctx), userID); rerr != nil {
			log.Warn("free spin claim release failed", "err", rerr)
		}
	}
	return res, err
}

// PaidSpin charges PAID_SPIN_PRICE_CENTS first. A failed charge selects
// nothing and writes nothing.
func (e *Engine) PaidSpin(ctx context.Context, userID uint64, paymentMethodID string) (*SpinResult, error) {
	e.appCtx.Logger.Debug("PaidSpin called", "user_id", userID)

	p, err := e.ledger.ChargeAndRecord(ctx, ledger.ChargeRequest{
		UserID:          userID,
		SKU:             ledger.SKURewardSpin,
		AmountCents:     e.appCtx.Config.Rewards.PaidSpinPriceCents,
		PaymentMethodID: paymentMethodID,
	})
	if err != nil {
		return nil, err
	}
	res, err := e.spin(ctx, userID, db.SpinTypePaid, &p.ID, e.appCtx.Clock())
	if err != nil {
		e.appCtx.Logger.Error("charged but not spun", "user_id", userID, "purchase_id", p.ID, "err", err)
		return nil, err
	}
	return res, nil
}

func (e *Engine) spin(ctx context.Context, userID uint64, spinType string, purchaseID *string, now time.Time) (*SpinResult, error) {
	reward := e.draw()

	spinID, err := newID(now)
	if err != nil {
		return nil, err
	}
	spin := &db.RewardSpin{
		ID:          spinID,
		UserID:      userID,
		SpinType:    spinType,
		RewardType:  reward.Type,
		RewardValue: reward.Value(),
		PurchaseID:  purchaseID,
		SpinAt:      now,
	}

	bonus, err := applyReward(reward, spin, now)
	if err != nil {
		return nil, err
	}
	if err := e.spins.CreateSpin(ctx, spin, bonus); err != nil {
		e.appCtx.Logger.Error("spin log insert failed", "user_id", userID, "spin_type", spinType, "err", err)
		return nil, err
	}
	metrics.Spins.WithLabelValues(spinType, reward.Type).Inc()
	e.appCtx.Logger.Info("reward spun",
		"user_id", userID,
		"spin_type", spinType,
		"reward", reward.Type,
		"spin_id", spin.ID,
	)

	out := RewardOut{Type: reward.Type, Label: reward.Label, Value: reward.Value()}
	if bonus != nil {
		out.ExpiresAt = bonus.ExpiresAt
	}

	status, err := e.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &SpinResult{SpinID: spin.ID, SpinType: spinType, Reward: out, Status: status}, nil
}

func (e *Engine) draw() Reward {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.catalogue.Select(e.src)
}

// applyReward builds the bonus for reward. nothing yields no bonus.
func applyReward(reward Reward, spin *db.RewardSpin, now time.Time) (*db.UserBonus, error) {
	if reward.Type == RewardNothing {
		return nil, nil
	}
	id, err := newID(now)
	if err != nil {
		return nil, err
	}
	bonus := &db.UserBonus{
		ID:        id,
		UserID:    spin.UserID,
		BonusType: reward.Type,
		Quantity:  1,
		Metadata: map[string]any{
			"spinId":   spin.ID,
			"spinType": spin.SpinType,
			"label":    reward.Label,
		},
		CreatedAt: now,
	}
	if reward.Timed() {
		exp := now.Add(time.Duration(reward.DurationMinutes) * time.Minute)
		bonus.ExpiresAt = &exp
		bonus.Metadata["durationMinutes"] = reward.DurationMinutes
	}
	return bonus, nil
}

// Status is the /rewards-status payload. FreeAvailable is true exactly when
// NextFreeSpinAt is nil.
type Status struct {
	FreeAvailable  bool       `json:"freeAvailable"`
	NextFreeSpinAt *time.Time `json:"nextFreeSpinAt"`
	LastSpin       *SpinOut   `json:"lastSpin"`
	ActiveBonuses  []BonusOut `json:"activeBonuses"`
}

type SpinOut struct {
	ID          string    `json:"id"`
	SpinType    string    `json:"spinType"`
	RewardType  string    `json:"rewardType"`
	RewardValue int       `json:"rewardValue"`
	SpinAt      time.Time `json:"spinAt"`
}

type BonusOut struct {
	ID        string         `json:"id"`
	BonusType string         `json:"bonusType"`
	Quantity  int            `json:"quantity"`
	ExpiresAt *time.Time     `json:"expiresAt"`
	Metadata  map[string]any `json:"metadata"`
}

// Status reports free spin availability, the latest spin of any type and the
// active bonuses.
func (e *Engine) Status(ctx context.Context, userID uint64) (*Status, error) {
	now := e.appCtx.Clock()

	lastFree, err := e.spins.LastSpin(ctx, userID, db.SpinTypeFree)
	if err != nil {
		return nil, err
	}
	lastAny, err := e.spins.LastSpin(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	bonuses, err := e.spins.ActiveBonuses(ctx, userID, now)
	if err != nil {
		return nil, err
	}

	next := nextFreeSpinAt(lastFree, e.appCtx.Config.Rewards.FreeSpinCooldown, now)
	out := &Status{
		FreeAvailable:  next == nil,
		NextFreeSpinAt: next,
		ActiveBonuses:  make([]BonusOut, 0, len(bonuses)),
	}
	if lastAny != nil {
		s := spinOut(*lastAny)
		out.LastSpin = &s
	}
	for _, b := range bonuses {
		out.ActiveBonuses = append(out.ActiveBonuses, BonusOut{
			ID:        b.ID,
			BonusType: b.BonusType,
			Quantity:  b.Quantity,
			ExpiresAt: b.ExpiresAt,
			Metadata:  b.Metadata,
		})
	}
	return out, nil
}

// History is one page of the spin log, newest first.
type History struct {
	Spins      []SpinOut `json:"spins"`
	NextCursor *string   `json:"nextCursor"`
}

func (e *Engine) History(ctx context.Context, userID uint64, cursor *string, limit int) (*History, error) {
	if limit <= 0 || limit > 100 {
		limit = historyPageSize
	}
	spins, next, err := e.spins.ListSpins(ctx, userID, cursor, limit)
	if err != nil {
		return nil, err
	}
	out := &History{Spins: make([]SpinOut, 0, len(spins)), NextCursor: next}
	for _, s := range spins {
		out.Spins = append(out.Spins, spinOut(s))
	}
	return out, nil
}

// nextFreeSpinAt returns nil when a free spin is available at now.
func nextFreeSpinAt(last *db.RewardSpin, cooldown time.Duration, now time.Time) *time.Time {
	if last == nil {
		return nil
	}
	next := last.SpinAt.Add(cooldown)
	if !now.Before(next) {
		return nil
	}
	return &next
}

func spinOut(s db.RewardSpin) SpinOut {
	return SpinOut{
		ID:          s.ID,
		SpinType:    s.SpinType,
		RewardType:  s.RewardType,
		RewardValue: s.RewardValue,
		SpinAt:      s.SpinAt,
	}
}

func newID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
