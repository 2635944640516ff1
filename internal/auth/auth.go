// Package auth resolves the calling user from a bearer token and guards
// internal endpoints with shared secrets.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/logger"
	"github.com/oggyb/muzz-engagement/internal/repository"
	"github.com/oggyb/muzz-engagement/internal/server"
)

// ErrUnauthenticated is returned for a missing, malformed, unknown or expired token.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// SessionStore looks up the user behind a token hash.
type SessionStore interface {
	FindUserID(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
}

// HashToken returns the hex blake2b-256 digest stored in sessions.token_hash.
func HashToken(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

type Authenticator struct {
	sessions SessionStore
	now      func() time.Time
}

func NewAuthenticator(sessions SessionStore, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{sessions: sessions, now: now}
}

// Authenticate resolves an Authorization header value to a user id.
func (a *Authenticator) Authenticate(ctx context.Context, header string) (uint64, error) {
	token, ok := bearerToken(header)
	if !ok {
		return 0, ErrUnauthenticated
	}
	userID, err := a.sessions.FindUserID(ctx, HashToken(token), a.now())
	if errors.Is(err, repository.ErrSessionNotFound) {
		return 0, ErrUnauthenticated
	}
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// Middleware rejects requests without a valid session with 401 and stores the
// caller's id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if errors.Is(err, ErrUnauthenticated) {
			server.WriteError(w, r, svcErr.Unauthorized())
			return
		}
		if err != nil {
			server.WriteError(w, r, err)
			return
		}

		ctx := WithUserID(r.Context(), userID)
		ctx = logger.NewContext(ctx, logger.FromContext(ctx, nil).With("user_id", userID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireSecret guards an internal endpoint with a shared secret header.
// An empty configured secret disables the endpoint.
func RequireSecret(header, secret string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				log.Warn("secret-guarded endpoint called but no secret is configured", "path", r.URL.Path)
				server.WriteError(w, r, svcErr.Forbidden())
				return
			}
			got := r.Header.Get(header)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				server.WriteError(w, r, svcErr.Forbidden())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type ctxKey struct{}

func WithUserID(ctx context.Context, userID uint64) context.Context {
	return context.WithValue(ctx, ctxKey{}, userID)
}

// UserID returns the authenticated caller, if any.
func UserID(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(ctxKey{}).(uint64)
	return id, ok && id != 0
}
