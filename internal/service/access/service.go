package access

import (
	"context"
	"errors"
	"time"

	"github.com/oggyb/muzz-engagement/internal/app"
	"github.com/oggyb/muzz-engagement/internal/metrics"
	"github.com/oggyb/muzz-engagement/internal/repository"
)

// Service resolves profile visibility. It never writes.
type Service struct {
	appCtx   *app.AppContext
	profiles *repository.ProfileRepository
	matches  *repository.MatchRepository
	unlocks  *repository.UnlockRepository
}

// NewAccessService creates the resolver with repositories bound to appCtx.DB.
func NewAccessService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:   appCtx,
		profiles: repository.NewProfileRepository(appCtx.DB),
		matches:  repository.NewMatchRepository(appCtx.DB),
		unlocks:  repository.NewUnlockRepository(appCtx.DB),
	}
}

// Decision is the outcome of the rule table.
type Decision struct {
	Reason    Reason
	ExpiresAt *time.Time
}

type pair struct {
	viewer, target uint64
	now            time.Time
}

// rule matches when ok is true; expiresAt is only set for timed unlocks.
type rule struct {
	reason Reason
	match  func(ctx context.Context, p pair) (ok bool, expiresAt *time.Time, err error)
}

// rules are evaluated in order; the first match wins.
func (s *Service) rules() []rule {
	return []rule{
		{ReasonSelf, func(_ context.Context, p pair) (bool, *time.Time, error) {
			return p.viewer == p.target, nil, nil
		}},
		{ReasonMatch, func(ctx context.Context, p pair) (bool, *time.Time, error) {
			ok, err := s.matches.HasMatch(ctx, p.viewer, p.target)
			return ok, nil, err
		}},
		{ReasonPurchase, func(ctx context.Context, p pair) (bool, *time.Time, error) {
			u, err := s.unlocks.FindPermanent(ctx, p.viewer, p.target)
			return u != nil, nil, err
		}},
		{ReasonPurchase, func(ctx context.Context, p pair) (bool, *time.Time, error) {
			u, err := s.unlocks.FindLatestActive(ctx, p.viewer, p.target, p.now)
			if err != nil || u == nil {
				return false, nil, err
			}
			return true, u.ExpiresAt, nil
		}},
	}
}

// Decide runs the rule table for (viewer, target) without loading the profile.
func (s *Service) Decide(ctx context.Context, viewerID, targetID uint64) (Decision, error) {
	p := pair{viewer: viewerID, target: targetID, now: s.appCtx.Clock()}
	for _, r := range s.rules() {
		ok, exp, err := r.match(ctx, p)
		if err != nil {
			return Decision{}, err
		}
		if ok {
			return Decision{Reason: r.reason, ExpiresAt: exp}, nil
		}
	}
	return Decision{Reason: ReasonNone}, nil
}

// Resolve returns what viewerID may see of targetID.
//
// Behavior:
//   - Missing target → NotFound() payload and repository.ErrProfileNotFound.
//   - limitedProfile is always set for an existing target.
//   - profile is only set when the decision grants a full view.
//
// Example:
//
//	svc.Resolve(ctx, 1, 2)
func (s *Service) Resolve(ctx context.Context, viewerID, targetID uint64) (*Access, error) {
	s.appCtx.Logger.Debug("Resolve called", "viewer", viewerID, "target", targetID)

	profile, err := s.profiles.GetProfile(ctx, targetID)
	if errors.Is(err, repository.ErrProfileNotFound) {
		metrics.AccessResolutions.WithLabelValues("not_found").Inc()
		return NotFound(), err
	}
	if err != nil {
		return nil, err
	}

	d, err := s.Decide(ctx, viewerID, targetID)
	if err != nil {
		s.appCtx.Logger.Error("access decision failed", "viewer", viewerID, "target", targetID, "err", err)
		return nil, err
	}
	metrics.AccessResolutions.WithLabelValues(d.Reason.String()).Inc()

	out := &Access{
		LimitedProfile:  limitedView(profile, s.appCtx.Config.Access.BioLimit),
		CanViewFull:     d.Reason.GrantsFullView(),
		UnlockReason:    d.Reason,
		AccessExpiresAt: d.ExpiresAt,
	}
	if out.CanViewFull {
		out.Profile = fullView(profile)
	}
	return out, nil
}
