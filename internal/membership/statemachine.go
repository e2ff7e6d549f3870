package membership

import (
	"errors"
	"fmt"

	"memberconsole/internal/model"
)

var (
	ErrInvalidTransition = errors.New("invalid membership transition")
	ErrReasonRequired    = errors.New("a reason is required")
	ErrProtectedTarget   = errors.New("super admins cannot be suspended")
	ErrNotAuthorized     = errors.New("not authorized for this chapter")
)

// Transition names one edge of the request state machine.
type Transition uint8

const (
	Approve Transition = iota + 1
	Reject
	Suspend
	Reinstate
)

func (t Transition) String() string {
	switch t {
	case Approve:
		return "approve"
	case Reject:
		return "reject"
	case Suspend:
		return "suspend"
	case Reinstate:
		return "reinstate"
	default:
		return "unknown"
	}
}

// NeedsReason reports whether the transition requires a reason.
func (t Transition) NeedsReason() bool {
	return t == Reject || t == Suspend
}

type edge struct {
	from model.RequestStatus
	via  Transition
}

var edges = map[edge]model.RequestStatus{
	{model.RequestStatusPending, Approve}:     model.RequestStatusApproved,
	{model.RequestStatusPending, Reject}:      model.RequestStatusRejected,
	{model.RequestStatusApproved, Suspend}:    model.RequestStatusSuspended,
	{model.RequestStatusSuspended, Reinstate}: model.RequestStatusApproved,
}

var order = []Transition{Approve, Reject, Suspend, Reinstate}

// Next returns the status reached from `from` via t.
func Next(from model.RequestStatus, t Transition) (model.RequestStatus, error) {
	to, ok := edges[edge{from, t}]
	if !ok {
		return "", fmt.Errorf("%s from %s: %w", t, from, ErrInvalidTransition)
	}
	return to, nil
}

// Allowed lists the transitions leaving `from`.
func Allowed(from model.RequestStatus) []Transition {
	var out []Transition
	for _, t := range order {
		if _, ok := edges[edge{from, t}]; ok {
			out = append(out, t)
		}
	}
	return out
}

// Reachable lists the statuses one step away from `from`.
func Reachable(from model.RequestStatus) []model.RequestStatus {
	var out []model.RequestStatus
	for _, t := range Allowed(from) {
		out = append(out, edges[edge{from, t}])
	}
	return out
}
