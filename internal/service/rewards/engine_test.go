package rewards_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-engagement/internal/app/apptest"
	"github.com/oggyb/muzz-engagement/internal/cache"
	"github.com/oggyb/muzz-engagement/internal/db"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/payments"
	"github.com/oggyb/muzz-engagement/internal/service/rewards"
)

// fixed always draws the same point; 0 lands on the first catalogue entry.
type fixed float64

func (f fixed) Float64() float64 { return float64(f) }

const drawNothing = fixed(0.99)

func setupEngine(t *testing.T, src rewards.Source) (*apptest.Env, *rewards.Engine) {
	t.Helper()
	env := apptest.New(t)
	return env, rewards.NewRewardsService(env.App, rewards.WithSource(src))
}

// advance moves the app clock and the Redis clock together.
func advance(env *apptest.Env, d time.Duration) {
	env.Clock.Advance(d)
	env.Redis.FastForward(d)
}

func TestFreeSpin_Cooldown(t *testing.T) {
	env, engine := setupEngine(t, fixed(0))
	ctx := context.Background()

	res, err := engine.FreeSpin(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, db.SpinTypeFree, res.SpinType)
	assert.Equal(t, rewards.RewardBoost, res.Reward.Type)
	assert.False(t, res.Status.FreeAvailable)
	require.NotNil(t, res.Status.NextFreeSpinAt)
	assert.True(t, res.Status.NextFreeSpinAt.Equal(apptest.Start.Add(24*time.Hour)))

	advance(env, 23*time.Hour)
	_, err = engine.FreeSpin(ctx, 1)
	var spun *rewards.AlreadySpunError
	require.ErrorAs(t, err, &spun)
	assert.True(t, spun.NextFreeSpinAt.Equal(apptest.Start.Add(24*time.Hour)))

	advance(env, time.Hour)
	_, err = engine.FreeSpin(ctx, 1)
	assert.NoError(t, err, "eligible again exactly at last+cooldown")
}

func TestFreeSpin_CooldownIsPerUser(t *testing.T) {
	_, engine := setupEngine(t, drawNothing)
	ctx := context.Background()

	_, err := engine.FreeSpin(ctx, 1)
	require.NoError(t, err)
	_, err = engine.FreeSpin(ctx, 2)
	assert.NoError(t, err)
}

func TestFreeSpin_LosingTheClaimIsAlreadySpun(t *testing.T) {
	env, engine := setupEngine(t, drawNothing)

	// another instance won the claim a minute ago but has not written its row yet
	claimedAt := apptest.Start.Add(-time.Minute)
	require.NoError(t, env.Redis.Set(cache.KeyForFreeSpin(1), strconv.FormatInt(claimedAt.UnixMilli(), 10)))
	env.Redis.SetTTL(cache.KeyForFreeSpin(1), 24*time.Hour)

	_, err := engine.FreeSpin(context.Background(), 1)
	var spun *rewards.AlreadySpunError
	require.ErrorAs(t, err, &spun)
	assert.True(t, spun.NextFreeSpinAt.Equal(claimedAt.Add(24*time.Hour)))

	h, err := engine.History(context.Background(), 1, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, h.Spins)
}

func TestFreeSpin_ConcurrentRequestsSpinOnce(t *testing.T) {
	_, engine := setupEngine(t, drawNothing)
	ctx := context.Background()

	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.FreeSpin(ctx, 1)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			var spun *rewards.AlreadySpunError
			assert.ErrorAs(t, err, &spun)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
	h, err := engine.History(ctx, 1, nil, 0)
	require.NoError(t, err)
	assert.Len(t, h.Spins, 1)
}

func TestFreeSpin_RedisDownFallsBackToDatabase(t *testing.T) {
	env, engine := setupEngine(t, drawNothing)
	env.Redis.Close()
	ctx := context.Background()

	_, err := engine.FreeSpin(ctx, 1)
	require.NoError(t, err)

	_, err = engine.FreeSpin(ctx, 1)
	var spun *rewards.AlreadySpunError
	assert.ErrorAs(t, err, &spun, "database check still applies")
}

func TestFreeSpin_FailedWriteReleasesClaim(t *testing.T) {
	env, engine := setupEngine(t, fixed(0))
	ctx := context.Background()

	// the bonus insert fails, rolling back the spin row with it
	require.NoError(t, env.App.DB.Migrator().DropTable(&db.UserBonus{}))
	_, err := engine.FreeSpin(ctx, 1)
	require.Error(t, err)
	assert.False(t, env.Redis.Exists(cache.KeyForFreeSpin(1)))

	require.NoError(t, db.Migrate(env.App.DB))
	_, err = engine.FreeSpin(ctx, 1)
	assert.NoError(t, err)
}

func TestPaidSpin_ChargesAndIgnoresCooldown(t *testing.T) {
	env, engine := setupEngine(t, fixed(0))
	ctx := context.Background()

	_, err := engine.FreeSpin(ctx, 1)
	require.NoError(t, err)

	res, err := engine.PaidSpin(ctx, 1, "pm_card")
	require.NoError(t, err)
	assert.Equal(t, db.SpinTypePaid, res.SpinType)
	assert.False(t, res.Status.FreeAvailable, "paid spins do not reset the free cooldown")

	require.Equal(t, 1, env.Charger.Count())
	assert.EqualValues(t, 99, env.Charger.Calls[0].AmountCents)

	var spin db.RewardSpin
	require.NoError(t, env.App.DB.Where("spin_type = ?", db.SpinTypePaid).Take(&spin).Error)
	require.NotNil(t, spin.PurchaseID)

	var p db.Purchase
	require.NoError(t, env.App.DB.Take(&p, "id = ?", *spin.PurchaseID).Error)
	assert.NotNil(t, p.ConsumedAt)
}

func TestPaidSpin_FailedChargeSpinsNothing(t *testing.T) {
	env, engine := setupEngine(t, fixed(0))
	ctx := context.Background()

	_, err := engine.PaidSpin(ctx, 1, "")
	assert.Equal(t, "payment_method_required", svcErr.Map(err).Code)
	assert.Zero(t, env.Charger.Count())

	env.Charger.Err = &payments.DeclineError{Reason: "card_declined"}
	_, err = engine.PaidSpin(ctx, 1, "pm_card")
	assert.ErrorIs(t, err, payments.ErrChargeDeclined)

	env.Charger.Err = errors.Join(payments.ErrUnavailable, errors.New("timeout"))
	_, err = engine.PaidSpin(ctx, 1, "pm_card")
	assert.ErrorIs(t, err, payments.ErrUnavailable)

	var spins, bonuses int64
	require.NoError(t, env.App.DB.Model(&db.RewardSpin{}).Count(&spins).Error)
	require.NoError(t, env.App.DB.Model(&db.UserBonus{}).Count(&bonuses).Error)
	assert.Zero(t, spins)
	assert.Zero(t, bonuses)
}

func TestPaidSpin_FailedSpinLogsPurchase(t *testing.T) {
	env, engine := setupEngine(t, fixed(0))
	var buf bytes.Buffer
	env.App.Logger = slog.New(slog.NewTextHandler(&buf, nil))

	require.NoError(t, env.App.DB.Migrator().DropTable(&db.UserBonus{}))
	_, err := engine.PaidSpin(context.Background(), 1, "pm_card")
	require.Error(t, err)
	require.Equal(t, 1, env.Charger.Count())

	// the charge stands; the log carries the purchase for reconciliation
	var p db.Purchase
	require.NoError(t, env.App.DB.Where("user_id = ?", 1).Take(&p).Error)
	assert.Contains(t, buf.String(), "charged but not spun")
	assert.Contains(t, buf.String(), "purchase_id="+p.ID)
}

func TestPaidSpin_PaymentsNotConfigured(t *testing.T) {
	env, engine := setupEngine(t, fixed(0))
	env.App.Payments = nil

	_, err := engine.PaidSpin(context.Background(), 1, "pm_card")
	assert.Equal(t, 503, svcErr.Map(err).Status)
}

func TestSpin_AppliesBonus(t *testing.T) {
	catalogue, err := rewards.NewCatalogue([]rewards.Reward{
		{Type: rewards.RewardHighlight, Weight: 1, DurationMinutes: 60},
		{Type: rewards.RewardSuperlike, Weight: 1, Label: "Superlike"},
		{Type: rewards.RewardNothing, Weight: 1},
	})
	require.NoError(t, err)

	cases := []struct {
		name      string
		draw      fixed
		reward    string
		value     int
		bonus     bool
		expiresIn time.Duration
	}{
		{"timed", 0.1, rewards.RewardHighlight, 60, true, time.Hour},
		{"permanent", 0.5, rewards.RewardSuperlike, 1, true, 0},
		{"nothing", 0.9, rewards.RewardNothing, 0, false, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := apptest.New(t)
			engine := rewards.NewRewardsService(env.App,
				rewards.WithCatalogue(catalogue), rewards.WithSource(tc.draw))

			res, err := engine.FreeSpin(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, tc.reward, res.Reward.Type)
			assert.Equal(t, tc.value, res.Reward.Value)

			bonuses := res.Status.ActiveBonuses
			if !tc.bonus {
				assert.Empty(t, bonuses)
				assert.Nil(t, res.Reward.ExpiresAt)
				return
			}
			require.Len(t, bonuses, 1)
			assert.Equal(t, tc.reward, bonuses[0].BonusType)
			assert.Equal(t, 1, bonuses[0].Quantity)
			assert.Equal(t, res.SpinID, bonuses[0].Metadata["spinId"])
			if tc.expiresIn == 0 {
				assert.Nil(t, bonuses[0].ExpiresAt)
			} else {
				require.NotNil(t, bonuses[0].ExpiresAt)
				assert.True(t, bonuses[0].ExpiresAt.Equal(apptest.Start.Add(tc.expiresIn)))
			}
		})
	}
}

func TestStatus(t *testing.T) {
	env, engine := setupEngine(t, fixed(0))
	ctx := context.Background()

	st, err := engine.Status(ctx, 1)
	require.NoError(t, err)
	assert.True(t, st.FreeAvailable)
	assert.Nil(t, st.NextFreeSpinAt)
	assert.Nil(t, st.LastSpin)
	assert.Empty(t, st.ActiveBonuses)

	res, err := engine.FreeSpin(ctx, 1)
	require.NoError(t, err)

	advance(env, 31*time.Minute)
	st, err = engine.Status(ctx, 1)
	require.NoError(t, err)
	assert.False(t, st.FreeAvailable)
	require.NotNil(t, st.LastSpin)
	assert.Equal(t, res.SpinID, st.LastSpin.ID)
	assert.Empty(t, st.ActiveBonuses, "30 minute boost has expired")

	advance(env, 24*time.Hour)
	st, err = engine.Status(ctx, 1)
	require.NoError(t, err)
	assert.True(t, st.FreeAvailable)
	assert.Nil(t, st.NextFreeSpinAt)
}

func TestHistory_Pages(t *testing.T) {
	env, engine := setupEngine(t, drawNothing)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		res, err := engine.FreeSpin(ctx, 1)
		require.NoError(t, err)
		ids = append(ids, res.SpinID)
		advance(env, 24*time.Hour)
	}

	page, err := engine.History(ctx, 1, nil, 2)
	require.NoError(t, err)
	require.Len(t, page.Spins, 2)
	assert.Equal(t, ids[2], page.Spins[0].ID)
	assert.Equal(t, ids[1], page.Spins[1].ID)
	require.NotNil(t, page.NextCursor)

	page, err = engine.History(ctx, 1, page.NextCursor, 2)
	require.NoError(t, err)
	require.Len(t, page.Spins, 1)
	assert.Equal(t, ids[0], page.Spins[0].ID)
	assert.Nil(t, page.NextCursor)

	bad := "not-a-cursor"
	_, err = engine.History(ctx, 1, &bad, 2)
	assert.Equal(t, "invalid_pagination_token", svcErr.Map(err).Code)
}
