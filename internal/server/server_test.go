package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/logger"
	"github.com/oggyb/muzz-engagement/internal/server"
)

type testRoutes struct{}

func (testRoutes) Register(r *mux.Router, auth mux.MiddlewareFunc) {
	r.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			UserID server.ID `json:"userId"`
		}
		if err := server.DecodeJSON(r, &in); err != nil {
			server.WriteError(w, r, err)
			return
		}
		server.WriteJSON(w, http.StatusOK, map[string]any{"userId": in.UserID})
	}).Methods(http.MethodPost)

	r.HandleFunc("/boom", func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}).Methods(http.MethodPost)

	r.Handle("/private", auth(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		server.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
	}))).Methods(http.MethodPost)
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		server.WriteError(w, r, svcErr.Unauthorized())
	})
}

func newRouter(checks map[string]server.Check) *mux.Router {
	return server.NewRouter(logger.Discard(), denyAll, testRoutes{}, server.NewHealth(checks))
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestRouter_MethodNotAllowedIsJSON(t *testing.T) {
	rec, body := do(t, newRouter(nil), http.MethodGet, "/echo", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "method_not_allowed", body["error"])
	assert.NotEmpty(t, rec.Header().Get(server.RequestIDHeader))
}

func TestRouter_NotFoundIsJSON(t *testing.T) {
	rec, body := do(t, newRouter(nil), http.MethodPost, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestRouter_IDsAcceptStringOrNumber(t *testing.T) {
	r := newRouter(nil)

	_, body := do(t, r, http.MethodPost, "/echo", `{"userId":"18446744073709551615"}`)
	assert.Equal(t, "18446744073709551615", body["userId"])

	_, body = do(t, r, http.MethodPost, "/echo", `{"userId":42}`)
	assert.Equal(t, "42", body["userId"])

	rec, body := do(t, r, http.MethodPost, "/echo", `{"userId":"abc"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", body["error"])

	// empty body is allowed
	rec, _ = do(t, r, http.MethodPost, "/echo", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_RecoverReturnsGeneric500(t *testing.T) {
	rec, body := do(t, newRouter(nil), http.MethodPost, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", body["error"])
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRouter_AuthMiddlewareWrapsPrivateRoutes(t *testing.T) {
	rec, body := do(t, newRouter(nil), http.MethodPost, "/private", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestHealth(t *testing.T) {
	ok := newRouter(map[string]server.Check{
		"db": func(context.Context) error { return nil },
	})
	rec, _ := do(t, ok, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = do(t, ok, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	down := newRouter(map[string]server.Check{
		"db": func(context.Context) error { return errors.New("dial tcp: refused") },
	})
	rec, body := do(t, down, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, body["failed"], "db")
}

func TestHealth_OptionalCheckOnlyDegrades(t *testing.T) {
	health := server.NewHealth(map[string]server.Check{
		"db": func(context.Context) error { return nil },
	}).WithOptional("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
	r := server.NewRouter(logger.Discard(), denyAll, health)

	rec, body := do(t, r, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Contains(t, body["degraded"], "redis")
	assert.Empty(t, health.Ready(context.Background()))
}

func TestMetricsEndpoint(t *testing.T) {
	r := newRouter(nil)
	do(t, r, http.MethodGet, "/healthz", "")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `engagement_http_requests_total{method="GET",route="/healthz",status="200"}`)
}
