package notify

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/auth"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/server"
)

const TriggerSecretHeader = "X-Trigger-Secret"

// Registrar ties the notification aggregator into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the notification service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches POST /likes-trigger, guarded by the trigger secret.
func (r *Registrar) Register(router *mux.Router, _ mux.MiddlewareFunc) {
	h := &Handler{svc: NewNotifyService(r.appCtx)}
	guard := auth.RequireSecret(TriggerSecretHeader, r.appCtx.Config.Secrets.Trigger, r.appCtx.Logger)
	router.Handle("/likes-trigger", guard(http.HandlerFunc(h.LikesTrigger))).Methods(http.MethodPost)
}

type Handler struct {
	svc *Service
}

type triggerRequest struct {
	Record *struct {
		ToUser   server.ID `json:"toUser"`
		FromUser server.ID `json:"fromUser"`
		Kind     string    `json:"kind"`
	} `json:"record"`
}

// LikesTrigger handles the row-insert hook of the likes table.
func (h *Handler) LikesTrigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, r, err)
		return
	}
	if req.Record == nil {
		server.WriteError(w, r, svcErr.InvalidArgument("invalid_record", "record is required"))
		return
	}

	_, err := h.svc.HandleLike(r.Context(), LikeEvent{
		ToUser:   uint64(req.Record.ToUser),
		FromUser: uint64(req.Record.FromUser),
		Kind:     req.Record.Kind,
	})
	if err != nil {
		server.WriteError(w, r, err)
		return
	}
	server.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
