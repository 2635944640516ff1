package rewards

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/auth"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/server"
)

// Registrar ties the reward engine into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
	opts   []Option
}

func NewRegistrar(appCtx *app.AppContext, opts ...Option) *Registrar {
	return &Registrar{appCtx: appCtx, opts: opts}
}

// Register attaches the /rewards-* routes. All of them require a session.
func (r *Registrar) Register(router *mux.Router, authMW mux.MiddlewareFunc) {
	h := &Handler{engine: NewRewardsService(r.appCtx, r.opts...)}

	router.Handle("/rewards-spin", authMW(http.HandlerFunc(h.FreeSpin))).Methods(http.MethodPost)
	router.Handle("/rewards-spin-paid", authMW(http.HandlerFunc(h.PaidSpin))).Methods(http.MethodPost)
	router.Handle("/rewards-status", authMW(http.HandlerFunc(h.Status))).Methods(http.MethodGet, http.MethodPost)
	router.Handle("/rewards-history", authMW(http.HandlerFunc(h.History))).Methods(http.MethodGet, http.MethodPost)
}

type Handler struct {
	engine *Engine
}

type paidSpinRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

type historyRequest struct {
	Cursor *string `json:"cursor"`
	Limit  int     `json:"limit"`
}

func (h *Handler) FreeSpin(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		server.WriteError(w, r, svcErr.Unauthorized())
		return
	}
	res, err := h.engine.FreeSpin(r.Context(), userID)
	writeSpin(w, r, res, err)
}

func (h *Handler) PaidSpin(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		server.WriteError(w, r, svcErr.Unauthorized())
		return
	}
	var req paidSpinRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, r, err)
		return
	}
	res, err := h.engine.PaidSpin(r.Context(), userID, req.PaymentMethodID)
	writeSpin(w, r, res, err)
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		server.WriteError(w, r, svcErr.Unauthorized())
		return
	}
	st, err := h.engine.Status(r.Context(), userID)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, st)
}

// History reads cursor and limit from the query string, or from the JSON body
// on POST. Query values win.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		server.WriteError(w, r, svcErr.Unauthorized())
		return
	}

	var req historyRequest
	if r.Method == http.MethodPost {
		if err := server.DecodeJSON(r, &req); err != nil {
			server.WriteError(w, r, err)
			return
		}
	}
	q := r.URL.Query()
	if c := q.Get("cursor"); c != "" {
		req.Cursor = &c
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil {
			server.WriteError(w, r, svcErr.InvalidArgument("invalid_limit", "limit must be an integer"))
			return
		}
		req.Limit = n
	}

	out, err := h.engine.History(r.Context(), userID, req.Cursor, req.Limit)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, out)
}

func writeSpin(w http.ResponseWriter, r *http.Request, res *SpinResult, err error) {
	var spun *AlreadySpunError
	switch {
	case errors.As(err, &spun):
		server.WriteError(w, r, svcErr.TooManyRequests("already_spun", "").
			With("nextFreeSpinAt", spun.NextFreeSpinAt.UTC().Format(time.RFC3339Nano)))
	case err != nil:
		server.WriteError(w, r, err)
	default:
		server.WriteJSON(w, http.StatusOK, res)
	}
}
