package notify

import (
	"context"
	"time"

	"github.com/oggyb/muzz-engagement/internal/app"
	svcErr "github.com/oggyb/muzz-engagement/internal/errors"
	"github.com/oggyb/muzz-engagement/internal/metrics"
	"github.com/oggyb/muzz-engagement/internal/repository"
)

const (
	fallbackName       = "Someone"
	defaultPushTimeout = 5 * time.Second
)

// LikeEvent is one like (or paid heart) from FromUser to ToUser.
type LikeEvent struct {
	ToUser   uint64
	FromUser uint64
	Kind     string
}

type Outcome string

const (
	OutcomeSent       Outcome = "sent"
	OutcomeSuppressed Outcome = "suppressed"
	OutcomeFailed     Outcome = "failed"
	OutcomeIgnored    Outcome = "ignored"
)

// Result describes what HandleLike did.
type Result struct {
	Outcome Outcome
	// Total is the count carried by the push; zero when nothing was due.
	Total int64
}

// Service debounces like notifications per (toUser, fromUser, kind).
type Service struct {
	appCtx   *app.AppContext
	buffers  *repository.NotificationRepository
	profiles *repository.ProfileRepository
}

// NewNotifyService creates the aggregator with repositories bound to appCtx.DB.
func NewNotifyService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		buffers:  repository.NewNotificationRepository(appCtx.DB),
		profiles: repository.NewProfileRepository(appCtx.DB),
	}
}

// HandleLike applies ev to its buffer and sends a push when one is due.
//
// Behavior:
//   - First event for the triple → push with total 1.
//   - Event inside the debounce window → counted, no push.
//   - First event after the window → push with total prior+1, buffer reset.
//   - Self-likes are ignored.
//
// The buffer change is committed before delivery; delivery errors are logged
// and counted, never returned.
func (s *Service) HandleLike(ctx context.Context, ev LikeEvent) (Result, error) {
	if ev.Kind == "" {
		ev.Kind = KindLike
	}
	if !KnownKind(ev.Kind) || ev.ToUser == 0 || ev.FromUser == 0 {
		return Result{}, svcErr.InvalidArgument("invalid_record", "record needs toUser, fromUser and a known kind")
	}
	log := s.appCtx.Logger.With("to_user", ev.ToUser, "from_user", ev.FromUser, "kind", ev.Kind)

	if ev.ToUser == ev.FromUser {
		metrics.Notifications.WithLabelValues(ev.Kind, string(OutcomeIgnored)).Inc()
		log.Debug("self like ignored")
		return Result{Outcome: OutcomeIgnored}, nil
	}

	key := repository.BufferKey{ToUser: ev.ToUser, FromUser: ev.FromUser, Kind: ev.Kind}
	tr, err := s.buffers.RecordEvent(ctx, key, s.appCtx.Clock(), s.appCtx.Config.Notify.DebounceWindow)
	if err != nil {
		log.Error("record like event failed", "err", err)
		return Result{}, err
	}

	var total int64
	switch {
	case tr.WasInserted:
		total = 1
	case tr.Flushed:
		total = tr.PriorCount + 1
	default:
		metrics.Notifications.WithLabelValues(ev.Kind, string(OutcomeSuppressed)).Inc()
		log.Debug("notification suppressed", "pending", tr.PriorCount+1, "last_notified_at", tr.LastAt)
		return Result{Outcome: OutcomeSuppressed}, nil
	}

	outcome := s.deliver(ctx, ev, total)
	metrics.Notifications.WithLabelValues(ev.Kind, string(outcome)).Inc()
	return Result{Outcome: outcome, Total: total}, nil
}

func (s *Service) deliver(ctx context.Context, ev LikeEvent, total int64) Outcome {
	log := s.appCtx.Logger.With("to_user", ev.ToUser, "from_user", ev.FromUser, "kind", ev.Kind, "total", total)

	// delivery outlives a cancelled request; the counter change is already committed
	timeout := s.appCtx.Config.Push.Timeout
	if timeout <= 0 {
		timeout = defaultPushTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	name, err := s.profiles.DisplayName(ctx, ev.FromUser, fallbackName)
	if err != nil {
		log.Warn("sender name lookup failed", "err", err)
		name = fallbackName
	}

	if err := s.appCtx.Push.Send(ctx, buildMessage(ev, name, total)); err != nil {
		log.Warn("push delivery failed", "err", err)
		return OutcomeFailed
	}
	log.Info("notification sent")
	return OutcomeSent
}
