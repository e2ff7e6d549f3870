package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"memberconsole/internal/gateway"
	"memberconsole/internal/model"
)

type requestEnvelope struct {
	Request model.MembershipRequest `json:"request"`
}

type requestsEnvelope struct {
	Requests []model.MembershipRequest `json:"requests"`
}

type memberEnvelope struct {
	Member model.Member `json:"member"`
}

type membersEnvelope struct {
	Members []model.Member `json:"members"`
}

type approveBody struct {
	Notes string `json:"notes,omitempty"`
}

type rejectBody struct {
	Reason     string `json:"reason"`
	CanReapply bool   `json:"canReapply"`
}

type statusBody struct {
	Status model.RequestStatus `json:"status"`
	Reason string              `json:"reason,omitempty"`
}

type MembershipClient struct {
	gw Doer
}

func NewMembershipClient(gw Doer) *MembershipClient {
	return &MembershipClient{gw: gw}
}

func requestPath(chapterID, requestID, action string) string {
	return fmt.Sprintf("/chapters/%s/membership-requests/%s/%s",
		url.PathEscape(chapterID), url.PathEscape(requestID), action)
}

func (c *MembershipClient) Approve(ctx context.Context, chapterID, requestID, notes string) (model.MembershipRequest, error) {
	var env requestEnvelope
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   requestPath(chapterID, requestID, "approve"),
		Body:   approveBody{Notes: notes},
	}, &env)
	if err != nil {
		return model.MembershipRequest{}, fmt.Errorf("approve request %s: %w", requestID, err)
	}
	return env.Request, nil
}

func (c *MembershipClient) Reject(ctx context.Context, chapterID, requestID, reason string, canReapply bool) (model.MembershipRequest, error) {
	var env requestEnvelope
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPost,
		Path:   requestPath(chapterID, requestID, "reject"),
		Body:   rejectBody{Reason: reason, CanReapply: canReapply},
	}, &env)
	if err != nil {
		return model.MembershipRequest{}, fmt.Errorf("reject request %s: %w", requestID, err)
	}
	return env.Request, nil
}

// SetMembershipStatus suspends (SUSPENDED) or reinstates (APPROVED) a user.
func (c *MembershipClient) SetMembershipStatus(ctx context.Context, userID string, status model.RequestStatus, reason string) (model.Member, error) {
	var env memberEnvelope
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodPatch,
		Path:   "/admin/" + url.PathEscape(userID) + "/membership-status",
		Body:   statusBody{Status: status, Reason: reason},
	}, &env)
	if err != nil {
		return model.Member{}, fmt.Errorf("set membership status of %s: %w", userID, err)
	}
	return env.Member, nil
}

// ListRequests returns a chapter's membership requests, optionally filtered
// by status.
func (c *MembershipClient) ListRequests(ctx context.Context, chapterID string, status model.RequestStatus) ([]model.MembershipRequest, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status.String()}}
	}
	var env requestsEnvelope
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/chapters/" + url.PathEscape(chapterID) + "/membership-requests",
		Query:  q,
	}, &env)
	if err != nil {
		return nil, fmt.Errorf("list requests of %s: %w", chapterID, err)
	}
	return env.Requests, nil
}

func (c *MembershipClient) ListMembers(ctx context.Context, chapterID string) ([]model.Member, error) {
	var env membersEnvelope
	err := c.gw.Do(ctx, gateway.Request{
		Method: http.MethodGet,
		Path:   "/chapters/" + url.PathEscape(chapterID) + "/members",
	}, &env)
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", chapterID, err)
	}
	return env.Members, nil
}
