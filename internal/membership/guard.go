package membership

import (
	"fmt"
	"time"

	"memberconsole/internal/model"
	"memberconsole/internal/permission"
	"memberconsole/internal/validator"
)

var validate = validator.New()

// Input carries the operator-supplied fields of a transition.
type Input struct {
	Notes      string
	Reason     string
	CanReapply bool
}

type reasonForm struct {
	Reason string `validate:"notblank,max=1000"`
}

type notesForm struct {
	Notes string `validate:"max=2000"`
}

// Validate checks the input for t. It never touches the network.
func (in Input) Validate(t Transition) error {
	if t.NeedsReason() {
		if err := validate.Validate(reasonForm{Reason: in.Reason}); err != nil {
			return fmt.Errorf("%s: %w: %w", t, ErrReasonRequired, err)
		}
		return nil
	}
	if err := validate.Validate(notesForm{Notes: in.Notes}); err != nil {
		return fmt.Errorf("%s: %w", t, err)
	}
	return nil
}

// Authorize decides whether actor may perform t on a request or member in
// chapterID. targetRole is the role of the affected user; only suspend
// inspects it.
func Authorize(actor *model.Principal, t Transition, chapterID string, targetRole model.Role) error {
	if t == Suspend && targetRole == model.RoleSuperAdmin {
		return ErrProtectedTarget
	}
	if actor == nil || !actor.Active {
		return fmt.Errorf("%s: %w", t, ErrNotAuthorized)
	}
	if !permission.CanActOnChapter(*actor, model.PermApproveRejectRequest, chapterID) {
		return fmt.Errorf("%s in chapter %q as %s: %w: %w", t, chapterID, actor.Role, ErrNotAuthorized, permission.ErrForbidden)
	}
	return nil
}

// Apply moves req through t, recording the review metadata.
func Apply(req *model.MembershipRequest, t Transition, reviewerID string, in Input, now time.Time) error {
	to, err := Next(req.Status, t)
	if err != nil {
		return err
	}
	if err := in.Validate(t); err != nil {
		return err
	}

	reviewed := now.UTC()
	req.Status = to
	req.ReviewerID = &reviewerID
	req.ReviewedAt = &reviewed
	req.IsDelayed = false

	switch t {
	case Approve:
		req.ReviewNotes = in.Notes
	case Reject:
		reason := in.Reason
		req.RejectionReason = &reason
		req.CanReapply = in.CanReapply
	case Suspend:
		reason := in.Reason
		req.SuspensionReason = &reason
	case Reinstate:
		req.SuspensionReason = nil
	}
	return nil
}

// ApplyMember moves a member's status through suspend or reinstate.
func ApplyMember(m *model.Member, t Transition) error {
	if t != Suspend && t != Reinstate {
		return fmt.Errorf("%s on a member: %w", t, ErrInvalidTransition)
	}
	to, err := Next(m.Status, t)
	if err != nil {
		return err
	}
	m.Status = to
	return nil
}
