// Package membership implements the lifecycle of a chapter membership
// request:
//
//	PENDING ──approve──▶ APPROVED ──suspend──▶ SUSPENDED
//	   │                    ▲                      │
//	   └──reject──▶ REJECTED └──────reinstate──────┘
//
// REJECTED has no outgoing transition. Reject and suspend need a
// non-blank reason, and suspending a SUPER_ADMIN is refused whatever the
// actor's permissions. The package is pure: callers decide when to talk
// to the backend.
package membership
