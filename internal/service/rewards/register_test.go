package rewards_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-engagement/internal/app/apptest"
	"github.com/oggyb/muzz-engagement/internal/server"
	"github.com/oggyb/muzz-engagement/internal/service/rewards"
)

func newRouter(env *apptest.Env, src rewards.Source) http.Handler {
	return server.NewRouter(env.App.Logger, env.Authenticator().Middleware,
		rewards.NewRegistrar(env.App, rewards.WithSource(src)))
}

func call(t *testing.T, h http.Handler, method, path, body, token string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	h.ServeHTTP(rec, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestHandler_FreeSpin(t *testing.T) {
	env := apptest.New(t)
	r := newRouter(env, fixed(0))
	token := env.Token(t, 1)

	code, _ := call(t, r, http.MethodPost, "/rewards-spin", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, out := call(t, r, http.MethodPost, "/rewards-spin", "", token)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "free", out["spinType"])
	reward := out["reward"].(map[string]any)
	assert.Equal(t, rewards.RewardBoost, reward["type"])
	assert.EqualValues(t, 30, reward["value"])
	assert.NotNil(t, reward["expiresAt"])
	status := out["status"].(map[string]any)
	assert.Equal(t, false, status["freeAvailable"])

	code, out = call(t, r, http.MethodPost, "/rewards-spin", "", token)
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "already_spun", out["error"])
	next, err := time.Parse(time.RFC3339Nano, out["nextFreeSpinAt"].(string))
	require.NoError(t, err)
	assert.True(t, next.Equal(apptest.Start.Add(24*time.Hour)))

	code, _ = call(t, r, http.MethodGet, "/rewards-spin", "", token)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}

func TestHandler_PaidSpin(t *testing.T) {
	env := apptest.New(t)
	r := newRouter(env, drawNothing)
	token := env.Token(t, 1)

	code, out := call(t, r, http.MethodPost, "/rewards-spin-paid", `{}`, token)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "payment_method_required", out["error"])

	code, out = call(t, r, http.MethodPost, "/rewards-spin-paid", `{"paymentMethodId":"pm_card"}`, token)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", out["spinType"])
	assert.Equal(t, rewards.RewardNothing, out["reward"].(map[string]any)["type"])
}

func TestHandler_StatusAndHistory(t *testing.T) {
	env := apptest.New(t)
	r := newRouter(env, drawNothing)
	token := env.Token(t, 1)

	code, out := call(t, r, http.MethodGet, "/rewards-status", "", token)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["freeAvailable"])
	assert.Nil(t, out["nextFreeSpinAt"])
	assert.Nil(t, out["lastSpin"])
	assert.Equal(t, []any{}, out["activeBonuses"])

	for i := 0; i < 3; i++ {
		code, _ = call(t, r, http.MethodPost, "/rewards-spin", "", token)
		require.Equal(t, http.StatusOK, code)
		env.Clock.Advance(24 * time.Hour)
		env.Redis.FastForward(24 * time.Hour)
	}

	code, out = call(t, r, http.MethodPost, "/rewards-status", "", token)
	require.Equal(t, http.StatusOK, code)
	assert.NotNil(t, out["lastSpin"])

	code, out = call(t, r, http.MethodGet, "/rewards-history?limit=2", "", token)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["spins"], 2)
	cursor, ok := out["nextCursor"].(string)
	require.True(t, ok)

	body, _ := json.Marshal(map[string]any{"cursor": cursor, "limit": 2})
	code, out = call(t, r, http.MethodPost, "/rewards-history", string(body), token)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["spins"], 1)
	assert.Nil(t, out["nextCursor"])

	code, out = call(t, r, http.MethodGet, "/rewards-history?limit=two", "", token)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_limit", out["error"])

	code, out = call(t, r, http.MethodGet, "/rewards-history?cursor=not-a-cursor", "", token)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "invalid_pagination_token", out["error"])
}
