package ledger

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/auth"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/server"
	"github.com/oggyb/muzz-engagement/internal/service/access"
)

// Header names of the shared secrets guarding internal endpoints.
const (
	WebhookSecretHeader = "X-Webhook-Secret"
	AdminTokenHeader    = "X-Admin-Token"
)

// Registrar ties the ledger into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the ledger service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches /profile-unlock, /admin/profile-unlock and /payments-webhook.
func (r *Registrar) Register(router *mux.Router, authMW mux.MiddlewareFunc) {
	h := &Handler{svc: NewLedgerService(r.appCtx)}
	secrets := r.appCtx.Config.Secrets

	router.Handle("/profile-unlock", authMW(http.HandlerFunc(h.ProfileUnlock))).Methods(http.MethodPost)

	admin := auth.RequireSecret(AdminTokenHeader, secrets.Admin, r.appCtx.Logger)
	router.Handle("/admin/profile-unlock", admin(http.HandlerFunc(h.AdminUnlock))).Methods(http.MethodPost)

	webhook := auth.RequireSecret(WebhookSecretHeader, secrets.Webhook, r.appCtx.Logger)
	router.Handle("/payments-webhook", webhook(http.HandlerFunc(h.PaymentsWebhook))).Methods(http.MethodPost)
}

type Handler struct {
	svc *Service
}

type unlockRequest struct {
	TargetUserID    server.ID `json:"targetUserId"`
	PaymentMethodID string    `json:"paymentMethodId"`
}

func (h *Handler) ProfileUnlock(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := auth.UserID(r.Context())
	if !ok {
		server.WriteError(w, r, svcErr.Unauthorized())
		return
	}
	var req unlockRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, r, err)
		return
	}
	if req.TargetUserID == 0 {
		server.WriteError(w, r, svcErr.InvalidArgument("invalid_target", "targetUserId is required"))
		return
	}

	out, err := h.svc.UnlockProfile(r.Context(), viewerID, uint64(req.TargetUserID), req.PaymentMethodID)
	access.WriteAccess(w, r, out, err)
}

type adminUnlockRequest struct {
	ViewerUserID server.ID  `json:"viewerUserId"`
	TargetUserID server.ID  `json:"targetUserId"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

type unlockView struct {
	ViewerUserID server.ID  `json:"viewerUserId"`
	TargetUserID server.ID  `json:"targetUserId"`
	Source       string     `json:"source"`
	ExpiresAt    *time.Time `json:"expiresAt"`
}

func (h *Handler) AdminUnlock(w http.ResponseWriter, r *http.Request) {
	var req adminUnlockRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, r, err)
		return
	}
	if req.ViewerUserID == 0 || req.TargetUserID == 0 {
		server.WriteError(w, r, svcErr.InvalidArgument("invalid_target", "viewerUserId and targetUserId are required"))
		return
	}

	u, err := h.svc.AdminGrant(r.Context(), uint64(req.ViewerUserID), uint64(req.TargetUserID), req.ExpiresAt)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"unlock": unlockView{
			ViewerUserID: server.ID(u.ViewerID),
			TargetUserID: server.ID(u.TargetUserID),
			Source:       u.Source,
			ExpiresAt:    u.ExpiresAt,
		},
	})
}

type webhookRequest struct {
	ProviderTxnID string    `json:"providerTxnId"`
	UserID        server.ID `json:"userId"`
	SKU           string    `json:"sku"`
	AmountCents   int64     `json:"amountCents"`
	Currency      string    `json:"currency"`
	Status        string    `json:"status"`
}

type webhookResponse struct {
	OK         bool   `json:"ok"`
	PurchaseID string `json:"purchaseId"`
	Status     string `json:"status"`
	Idempotent bool   `json:"idempotent"`
}

func (h *Handler) PaymentsWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, r, err)
		return
	}

	p, idempotent, err := h.svc.RecordPurchase(r.Context(), PurchaseEvent{
		ProviderTxnID: req.ProviderTxnID,
		UserID:        uint64(req.UserID),
		SKU:           req.SKU,
		AmountCents:   req.AmountCents,
		Currency:      req.Currency,
		Status:        req.Status,
	})
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, webhookResponse{
		OK:         true,
		PurchaseID: p.ID,
		Status:     p.Status,
		Idempotent: idempotent,
	})
}
