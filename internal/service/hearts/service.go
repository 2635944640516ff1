// Package hearts implements the paid "big heart": a single-use purchase is
// redeemed and the recipient is notified.
package hearts

import (
	"context"
	"strings"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/db"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/repository"
	"github.com/oggyb/muzz-engagement/internal/service/ledger"
	"github.com/oggyb/muzz-engagement/internal/service/notify"
)

type Service struct {
	appCtx   *app.AppContext
	profiles *repository.ProfileRepository
	ledger   *ledger.Service
	notify   *notify.Service
}

func NewHeartsService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		profiles: repository.NewProfileRepository(appCtx.DB),
		ledger:   ledger.NewLedgerService(appCtx),
		notify:   notify.NewNotifyService(appCtx),
	}
}

// Send redeems purchaseID for a big heart from fromUser to toUser.
// A failed redemption fails the whole request; the notification is best-effort.
func (s *Service) Send(ctx context.Context, fromUser, toUser uint64, purchaseID string) (*db.Purchase, error) {
	purchaseID = strings.TrimSpace(purchaseID)
	if purchaseID == "" {
		return nil, svcErr.InvalidArgument("purchase_required", "purchaseId is required")
	}
	if fromUser == toUser {
		return nil, svcErr.InvalidArgument("invalid_target", "cannot send a heart to yourself")
	}

	ok, err := s.profiles.Exists(ctx, toUser)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrProfileNotFound
	}

	p, err := s.ledger.Redeem(ctx, purchaseID, fromUser, ledger.SKUBigHeart)
	if err != nil {
		return nil, err
	}

	if _, err := s.notify.HandleLike(ctx, notify.LikeEvent{
		ToUser:   toUser,
		FromUser: fromUser,
		Kind:     notify.KindBigHeart,
	}); err != nil {
		s.appCtx.Logger.Warn("big heart notification failed", "purchase_id", p.ID, "err", err)
	}
	return p, nil
}
