// Package apptest builds a fully wired AppContext for service tests:
// in-memory SQLite, miniredis, a settable clock and fake external clients.
package apptest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/auth"
	"github.com/oggyb/muzz-engagement/internal/cache"
	"github.com/oggyb/muzz-engagement/internal/config"
	"github.com/oggyb/muzz-engagement/internal/db"
	"github.com/oggyb/muzz-engagement/internal/db/dbtest"
	"github.com/oggyb/muzz-engagement/internal/logger"
	"github.com/oggyb/muzz-engagement/internal/payments"
	"github.com/oggyb/muzz-engagement/internal/push"
	"github.com/oggyb/muzz-engagement/internal/repository"
)

// Start is the clock's initial time in every test environment.
var Start = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

type Env struct {
	App     *app.AppContext
	Redis   *miniredis.Miniredis
	Clock   *Clock
	Charger *FakeCharger
	Push    *FakeSender
}

// New returns an environment with payments configured and the default policy
// knobs. Tests tweak env.App.Config before building services.
func New(t testing.TB) *Env {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := cache.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &Clock{now: Start}
	charger := &FakeCharger{}
	sender := &FakeSender{}

	appCtx := &app.AppContext{
		DB:         dbtest.New(t),
		RedisCache: rdb,
		Logger:     logger.Discard(),
		Config:     DefaultConfig(),
		Payments:   charger,
		Push:       sender,
		Now:        clock.Now,
	}
	return &Env{App: appCtx, Redis: mr, Clock: clock, Charger: charger, Push: sender}
}

// DefaultConfig mirrors config.New defaults without reading the environment.
func DefaultConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.ENV = "test"
	cfg.Access.BioLimit = 120
	cfg.Unlock.PriceCents = 499
	cfg.Notify.DebounceWindow = 10 * time.Minute
	cfg.Rewards.FreeSpinCooldown = 24 * time.Hour
	cfg.Rewards.PaidSpinPriceCents = 99
	cfg.Payments.Currency = "USD"
	cfg.Payments.URL = "http://payments.test"
	cfg.Push.Timeout = time.Second
	cfg.Secrets.Webhook = "webhook-secret"
	cfg.Secrets.Trigger = "trigger-secret"
	cfg.Secrets.Admin = "admin-token"
	return cfg
}

// SeedProfile inserts a visible profile.
func (e *Env) SeedProfile(t testing.TB, userID uint64, name, bio string, photos ...string) *db.Profile {
	t.Helper()
	p := &db.Profile{
		UserID:      userID,
		DisplayName: name,
		Bio:         bio,
		Photos:      photos,
		Preferences: map[string]any{"ageMin": 25, "ageMax": 35},
		City:        "London",
		Age:         30,
		Visible:     true,
	}
	require.NoError(t, e.App.DB.Create(p).Error)
	return p
}

// SeedMatch records a match between a and b.
func (e *Env) SeedMatch(t testing.TB, a, b uint64) {
	t.Helper()
	require.NoError(t, repository.NewMatchRepository(e.App.DB).CreateMatch(context.Background(), a, b, e.Clock.Now()))
}

// SeedPurchase inserts a succeeded, unconsumed purchase.
func (e *Env) SeedPurchase(t testing.TB, id string, userID uint64, sku string) {
	t.Helper()
	now := e.Clock.Now()
	_, _, err := repository.NewPurchaseRepository(e.App.DB).RecordPurchase(context.Background(), db.Purchase{
		ID:            id,
		UserID:        userID,
		SKU:           sku,
		ProviderTxnID: "txn_" + id,
		AmountCents:   199,
		Currency:      "USD",
		Status:        db.PurchaseStatusSucceeded,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
}

// Token creates a session for userID and returns its bearer token.
func (e *Env) Token(t testing.TB, userID uint64) string {
	t.Helper()
	token := fmt.Sprintf("token-%d", userID)
	err := repository.NewSessionRepository(e.App.DB).SaveSession(context.Background(), db.Session{
		TokenHash: auth.HashToken(token),
		UserID:    userID,
	})
	require.NoError(t, err)
	return token
}

// Authenticator returns the bearer middleware bound to this environment.
func (e *Env) Authenticator() *auth.Authenticator {
	return auth.NewAuthenticator(repository.NewSessionRepository(e.App.DB), e.Clock.Now)
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FakeCharger records charges and fails with Err when set.
type FakeCharger struct {
	mu    sync.Mutex
	Err   error
	Calls []payments.ChargeRequest
}

var _ payments.Charger = (*FakeCharger)(nil)

func (f *FakeCharger) Charge(_ context.Context, req payments.ChargeRequest) (*payments.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, req)
	if f.Err != nil {
		return nil, f.Err
	}
	return &payments.Charge{
		ProviderTxnID: fmt.Sprintf("ch_%d", len(f.Calls)),
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
	}, nil
}

func (f *FakeCharger) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// FakeSender records pushes and fails with Err when set.
type FakeSender struct {
	mu       sync.Mutex
	Err      error
	Messages []push.Message
}

var _ push.Sender = (*FakeSender)(nil)

func (f *FakeSender) Send(_ context.Context, msg push.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages = append(f.Messages, msg)
	return f.Err
}

func (f *FakeSender) Sent() []push.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]push.Message(nil), f.Messages...)
}
