package membership

import (
	"slices"
	"time"

	"memberconsole/internal/model"
)

// IsDelayed reports whether a still-pending request has waited longer than
// threshold. A non-positive threshold disables the flag.
func IsDelayed(req model.MembershipRequest, now time.Time, threshold time.Duration) bool {
	if req.Status != model.RequestStatusPending || threshold <= 0 {
		return false
	}
	return now.Sub(req.SubmittedAt) > threshold
}

func triageRank(req model.MembershipRequest) int {
	switch {
	case req.Status == model.RequestStatusPending && req.IsDelayed:
		return 0
	case req.Status == model.RequestStatusPending:
		return 1
	default:
		return 2
	}
}

// Triage returns a copy of reqs with IsDelayed recomputed, ordered for
// operator review: delayed pending first, then other pending, then the
// rest, oldest submission first within each group.
func Triage(reqs []model.MembershipRequest, now time.Time, threshold time.Duration) []model.MembershipRequest {
	out := slices.Clone(reqs)
	for i := range out {
		out[i].IsDelayed = IsDelayed(out[i], now, threshold)
	}
	slices.SortStableFunc(out, func(a, b model.MembershipRequest) int {
		if ra, rb := triageRank(a), triageRank(b); ra != rb {
			return ra - rb
		}
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	return out
}
