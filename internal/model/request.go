package model

import (
	"strings"
	"time"
)

// RequestStatus is the lifecycle state of a membership request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusSuspended RequestStatus = "SUSPENDED"
)

func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch st := RequestStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case RequestStatusPending, RequestStatusApproved, RequestStatusRejected, RequestStatusSuspended:
		return st, true
	}
	return "", false
}

func (s RequestStatus) String() string {
	return string(s)
}

// Applicant is the user a membership request was filed for.
type Applicant struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// MembershipRequest is an application to join or remain in a chapter.
type MembershipRequest struct {
	ID               string        `json:"id"`
	Applicant        Applicant     `json:"applicant"`
	ChapterID        string        `json:"chapterId"`
	Status           RequestStatus `json:"status"`
	SubmittedAt      time.Time     `json:"submittedAt"`
	ReviewerID       *string       `json:"reviewerId,omitempty"`
	ReviewedAt       *time.Time    `json:"reviewedAt,omitempty"`
	ReviewNotes      string        `json:"reviewNotes,omitempty"`
	RejectionReason  *string       `json:"rejectionReason,omitempty"`
	SuspensionReason *string       `json:"suspensionReason,omitempty"`
	CanReapply       bool          `json:"canReapply"`
	IsDelayed        bool          `json:"isDelayed"`
}

// Member is a chapter member as seen by suspend/reinstate.
type Member struct {
	UserID    string        `json:"userId"`
	Email     string        `json:"email"`
	Name      string        `json:"name"`
	Role      Role          `json:"role"`
	ChapterID string        `json:"chapterId"`
	Status    RequestStatus `json:"membershipStatus"`
}
