package access

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/auth"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/repository"
	"github.com/oggyb/muzz-engagement/internal/server"
)

// Registrar ties the access resolver into the HTTP router
type Registrar struct {
	appCtx *app.AppContext
}

// NewRegistrar creates a new Registrar for the access service
func NewRegistrar(appCtx *app.AppContext) *Registrar {
	return &Registrar{appCtx: appCtx}
}

// Register attaches POST /profile-access.
func (r *Registrar) Register(router *mux.Router, authMW mux.MiddlewareFunc) {
	h := &Handler{svc: NewAccessService(r.appCtx)}
	router.Handle("/profile-access", authMW(http.HandlerFunc(h.ProfileAccess))).Methods(http.MethodPost)
}

type Handler struct {
	svc *Service
}

type accessRequest struct {
	TargetUserID server.ID `json:"targetUserId"`
}

func (h *Handler) ProfileAccess(w http.ResponseWriter, r *http.Request) {
	viewerID, ok := auth.UserID(r.Context())
	if !ok {
		server.WriteError(w, r, svcErr.Unauthorized())
		return
	}

	var req accessRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, r, err)
		return
	}
	if req.TargetUserID == 0 {
		server.WriteError(w, r, svcErr.InvalidArgument("invalid_target", "targetUserId is required"))
		return
	}

	out, err := h.svc.Resolve(r.Context(), viewerID, uint64(req.TargetUserID))
	WriteAccess(w, r, out, err)
}

// WriteAccess writes the access payload, using the 404 shape for a missing
// target profile.
func WriteAccess(w http.ResponseWriter, r *http.Request, out *Access, err error) {
	switch {
	case errors.Is(err, repository.ErrProfileNotFound):
		server.WriteJSON(w, http.StatusNotFound, NotFound())
	case err != nil:
		server.WriteError(w, r, err)
	default:
		server.WriteJSON(w, http.StatusOK, out)
	}
}
