package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"memberconsole/internal/audit"
	"memberconsole/internal/membership"
	"memberconsole/internal/model"
	"memberconsole/internal/monitoring"
	"memberconsole/internal/permission"

	"github.com/patrickmn/go-cache"
)

// MembershipAPI is the backend surface used by MembershipService.
type MembershipAPI interface {
	Approve(ctx context.Context, chapterID, requestID, notes string) (model.MembershipRequest, error)
	Reject(ctx context.Context, chapterID, requestID, reason string, canReapply bool) (model.MembershipRequest, error)
	SetMembershipStatus(ctx context.Context, userID string, status model.RequestStatus, reason string) (model.Member, error)
	ListRequests(ctx context.Context, chapterID string, status model.RequestStatus) ([]model.MembershipRequest, error)
	ListMembers(ctx context.Context, chapterID string) ([]model.Member, error)
}

// Actor supplies the signed-in principal; *session.Store implements it.
type Actor interface {
	Principal() *model.Principal
}

type MembershipConfig struct {
	DelayedThreshold time.Duration
	MemberCacheTTL   time.Duration
}

// MembershipService runs the request lifecycle: validate the input, check
// the actor, check the transition, call the backend and only then drop the
// chapter's cached member list.
type MembershipService struct {
	api     MembershipAPI
	actor   Actor
	members *cache.Cache
	cfg     MembershipConfig
	now     func() time.Time

	auditor *audit.Auditor
	tel     monitoring.Telemetry
	logger  *slog.Logger
}

func NewMembershipService(api MembershipAPI, actor Actor, cfg MembershipConfig, auditor *audit.Auditor, tel monitoring.Telemetry, logger *slog.Logger) *MembershipService {
	if cfg.MemberCacheTTL <= 0 {
		cfg.MemberCacheTTL = 5 * time.Minute
	}
	if tel == nil {
		tel = monitoring.Noop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MembershipService{
		api:     api,
		actor:   actor,
		members: cache.New(cfg.MemberCacheTTL, 2*cfg.MemberCacheTTL),
		cfg:     cfg,
		now:     time.Now,
		auditor: auditor,
		tel:     tel,
		logger:  logger.With("component", "membership"),
	}
}

// check runs every client-side guard for t. It never touches the network.
func (s *MembershipService) check(t membership.Transition, from model.RequestStatus, chapterID string, target model.Role, in membership.Input) (*model.Principal, error) {
	if err := in.Validate(t); err != nil {
		return nil, err
	}
	actor := s.actor.Principal()
	if err := membership.Authorize(actor, t, chapterID, target); err != nil {
		return nil, err
	}
	if _, err := membership.Next(from, t); err != nil {
		return nil, err
	}
	return actor, nil
}

func (s *MembershipService) Approve(ctx context.Context, req model.MembershipRequest, notes string) (model.MembershipRequest, error) {
	in := membership.Input{Notes: notes}
	actor, err := s.check(membership.Approve, req.Status, req.ChapterID, req.Applicant.Role, in)
	if err != nil {
		return model.MembershipRequest{}, err
	}

	updated, err := s.api.Approve(ctx, req.ChapterID, req.ID, notes)
	s.tel.RecordTransition(ctx, membership.Approve.String(), err == nil)
	if err != nil {
		return model.MembershipRequest{}, err
	}

	s.invalidate(req.ChapterID)
	s.auditor.Record(ctx, audit.Event{
		Type:      audit.EventRequestApproved,
		ActorID:   actor.ID,
		ChapterID: req.ChapterID,
		TargetID:  req.ID,
	})
	return s.normalize(updated, req, membership.Approve, actor.ID, in), nil
}

func (s *MembershipService) Reject(ctx context.Context, req model.MembershipRequest, reason string, canReapply bool) (model.MembershipRequest, error) {
	in := membership.Input{Reason: reason, CanReapply: canReapply}
	actor, err := s.check(membership.Reject, req.Status, req.ChapterID, req.Applicant.Role, in)
	if err != nil {
		return model.MembershipRequest{}, err
	}

	updated, err := s.api.Reject(ctx, req.ChapterID, req.ID, reason, canReapply)
	s.tel.RecordTransition(ctx, membership.Reject.String(), err == nil)
	if err != nil {
		return model.MembershipRequest{}, err
	}

	// A rejection does not change the member list.
	s.auditor.Record(ctx, audit.Event{
		Type:      audit.EventRequestRejected,
		ActorID:   actor.ID,
		ChapterID: req.ChapterID,
		TargetID:  req.ID,
		Reason:    reason,
		Data:      map[string]any{"can_reapply": canReapply},
	})
	return s.normalize(updated, req, membership.Reject, actor.ID, in), nil
}

func (s *MembershipService) Suspend(ctx context.Context, m model.Member, reason string) (model.Member, error) {
	return s.setStatus(ctx, m, membership.Suspend, membership.Input{Reason: reason})
}

func (s *MembershipService) Reinstate(ctx context.Context, m model.Member) (model.Member, error) {
	return s.setStatus(ctx, m, membership.Reinstate, membership.Input{})
}

func (s *MembershipService) setStatus(ctx context.Context, m model.Member, t membership.Transition, in membership.Input) (model.Member, error) {
	actor, err := s.check(t, m.Status, m.ChapterID, m.Role, in)
	if err != nil {
		return model.Member{}, err
	}

	next := m
	if err := membership.ApplyMember(&next, t); err != nil {
		return model.Member{}, err
	}

	updated, err := s.api.SetMembershipStatus(ctx, m.UserID, next.Status, in.Reason)
	s.tel.RecordTransition(ctx, t.String(), err == nil)
	if err != nil {
		return model.Member{}, err
	}

	s.invalidate(m.ChapterID)
	event := audit.EventMemberSuspended
	if t == membership.Reinstate {
		event = audit.EventMemberReinstated
	}
	s.auditor.Record(ctx, audit.Event{
		Type:      event,
		ActorID:   actor.ID,
		ChapterID: m.ChapterID,
		TargetID:  m.UserID,
		Reason:    in.Reason,
	})

	if updated.UserID == "" {
		return next, nil
	}
	return updated, nil
}

// normalize fills a thin backend acknowledgement with the locally applied
// transition.
func (s *MembershipService) normalize(updated, req model.MembershipRequest, t membership.Transition, reviewer string, in membership.Input) model.MembershipRequest {
	if updated.ID != "" {
		updated.IsDelayed = membership.IsDelayed(updated, s.now(), s.cfg.DelayedThreshold)
		return updated
	}
	if err := membership.Apply(&req, t, reviewer, in, s.now()); err != nil {
		s.logger.Warn("Backend accepted a transition the local machine rejects", "request_id", req.ID, "transition", t.String(), "error", err)
	}
	return req
}

// Requests lists a chapter's requests in triage order with IsDelayed set.
// An empty status lists every request.
func (s *MembershipService) Requests(ctx context.Context, chapterID string, status model.RequestStatus) ([]model.MembershipRequest, error) {
	if err := s.canView(model.PermViewRequests, chapterID); err != nil {
		return nil, err
	}
	reqs, err := s.api.ListRequests(ctx, chapterID, status)
	if err != nil {
		return nil, err
	}
	return membership.Triage(reqs, s.now(), s.cfg.DelayedThreshold), nil
}

// Members returns the chapter's member list, served from cache when fresh.
func (s *MembershipService) Members(ctx context.Context, chapterID string) ([]model.Member, error) {
	if err := s.canView(model.PermViewUsers, chapterID); err != nil {
		return nil, err
	}
	key := memberCacheKey(chapterID)
	if cached, ok := s.members.Get(key); ok {
		return slices.Clone(cached.([]model.Member)), nil
	}

	members, err := s.api.ListMembers(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	s.members.SetDefault(key, slices.Clone(members))
	return members, nil
}

func (s *MembershipService) canView(perm model.Permission, chapterID string) error {
	actor := s.actor.Principal()
	if actor == nil || !permission.CanActOnChapter(*actor, perm, chapterID) {
		return fmt.Errorf("%s in chapter %q: %w", perm, chapterID, permission.ErrForbidden)
	}
	return nil
}

func (s *MembershipService) invalidate(chapterID string) {
	s.members.Delete(memberCacheKey(chapterID))
}

func memberCacheKey(chapterID string) string {
	return "members:" + chapterID
}
