package hearts

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/auth"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/server"
)

// Registrar ties the hearts service into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches POST /hearts-send.
func (r *Registrar) Register(router *mux.Router, authMW mux.MiddlewareFunc) {
	h := &Handler{svc: NewHeartsService(r.appCtx)}
	router.Handle("/hearts-send", authMW(http.HandlerFunc(h.SendHeart))).Methods(http.MethodPost)
}

type Handler struct {
	svc *Service
}

type sendRequest struct {
	TargetUserID server.ID `json:"targetUserId"`
	PurchaseID   string    `json:"purchaseId"`
}

type sendResponse struct {
	OK         bool       `json:"ok"`
	PurchaseID string     `json:"purchaseId"`
	ConsumedAt *time.Time `json:"consumedAt"`
}

func (h *Handler) SendHeart(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		server.WriteError(w, r, svcErr.Unauthorized())
		return
	}
	var req sendRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, r, err)
		return
	}
	if req.TargetUserID == 0 {
		server.WriteError(w, r, svcErr.InvalidArgument("invalid_target", "targetUserId is required"))
		return
	}

	p, err := h.svc.Send(r.Context(), userID, uint64(req.TargetUserID), req.PurchaseID)
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, sendResponse{OK: true, PurchaseID: p.ID, ConsumedAt: p.ConsumedAt})
}
