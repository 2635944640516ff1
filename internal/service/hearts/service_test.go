package hearts_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-engagement/internal/app/apptest"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/repository"
	"github.com/oggyb/muzz-engagement/internal/server"
	"github.com/oggyb/muzz-engagement/internal/service/hearts"
	"github.com/oggyb/muzz-engagement/internal/service/ledger"
)

func setupService(t *testing.T) (*apptest.Env, *hearts.Service) {
	t.Helper()
	env := apptest.New(t)
	env.SeedProfile(t, 1, "Jo", "")
	env.SeedProfile(t, 2, "Max", "")
	env.SeedPurchase(t, "heart-1", 1, ledger.SKUBigHeart)
	env.SeedPurchase(t, "unlock-1", 1, ledger.SKUProfileUnlock)
	return env, hearts.NewHeartsService(env.App)
}

func TestSend_RedeemsOnceAndNotifies(t *testing.T) {
	env, svc := setupService(t)
	ctx := context.Background()

	p, err := svc.Send(ctx, 1, 2, "heart-1")
	require.NoError(t, err)
	require.NotNil(t, p.ConsumedAt)

	sent := env.Push.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Jo sent you a big heart", sent[0].Body)

	_, err = svc.Send(ctx, 1, 2, "heart-1")
	assert.ErrorIs(t, err, repository.ErrPurchaseUnavailable)
	assert.Len(t, env.Push.Sent(), 1, "a rejected heart must not notify")
}

func TestSend_Rejections(t *testing.T) {
	_, svc := setupService(t)
	ctx := context.Background()

	_, err := svc.Send(ctx, 1, 2, "unlock-1")
	assert.Equal(t, "purchase_unavailable", svcErr.Map(err).Code, "wrong sku")

	_, err = svc.Send(ctx, 2, 1, "heart-1")
	assert.Equal(t, "purchase_not_found", svcErr.Map(err).Code, "not the caller's purchase")

	_, err = svc.Send(ctx, 1, 99, "heart-1")
	assert.ErrorIs(t, err, repository.ErrProfileNotFound)

	_, err = svc.Send(ctx, 1, 2, " ")
	assert.Equal(t, "purchase_required", svcErr.Map(err).Code)

	_, err = svc.Send(ctx, 1, 1, "heart-1")
	assert.Equal(t, "invalid_target", svcErr.Map(err).Code)
}

func TestSend_PushFailureDoesNotFailRequest(t *testing.T) {
	env, svc := setupService(t)
	env.Push.Err = errors.New("gateway down")

	p, err := svc.Send(context.Background(), 1, 2, "heart-1")
	require.NoError(t, err)
	assert.NotNil(t, p.ConsumedAt)
}

func TestHandler_SendHeart(t *testing.T) {
	env, _ := setupService(t)
	r := server.NewRouter(env.App.Logger, env.Authenticator().Middleware, hearts.NewRegistrar(env.App))
	token := env.Token(t, 1)

	call := func(body string) (int, map[string]any) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/hearts-send", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		r.ServeHTTP(rec, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		return rec.Code, out
	}

	code, out := call(`{"targetUserId":"2","purchaseId":"heart-1"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "heart-1", out["purchaseId"])
	assert.NotNil(t, out["consumedAt"])

	code, out = call(`{"targetUserId":"2","purchaseId":"heart-1"}`)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "purchase_unavailable", out["error"])

	code, out = call(`{"targetUserId":"2","purchaseId":"nope"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "purchase_not_found", out["error"])
}
