package devserver

import (
	"errors"
	"strings"

	"memberconsole/internal/membership"
	"memberconsole/internal/middleware"
	"memberconsole/internal/model"
	"memberconsole/internal/validator"

	"github.com/gofiber/fiber/v2"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type googleRequest struct {
	Credential string `json:"credential" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type approveRequest struct {
	Notes string `json:"notes"`
}

type rejectRequest struct {
	Reason     string `json:"reason"`
	CanReapply bool   `json:"canReapply"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,membership_status"`
	Reason string `json:"reason"`
}

// parse decodes and validates the body, writing a 400 on failure. It
// returns true when the handler may proceed.
func (s *Server) parse(c *fiber.Ctx, dst any) (bool, error) {
	if err := c.BodyParser(dst); err != nil {
		return false, middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", "Request body is not valid JSON")
	}
	if err := s.validate.Validate(dst); err != nil {
		return false, middleware.ErrorResponse(c, fiber.StatusBadRequest, "VALIDATION_FAILED",
			"Invalid fields: "+strings.Join(validator.Fields(err), ", "))
	}
	return true, nil
}

func (s *Server) issue(c *fiber.Ctx, p model.Principal) error {
	pair, err := s.store.IssueTokens(p.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"user": p, "tokens": pair})
}

func (s *Server) login(c *fiber.Ctx) error {
	var req loginRequest
	if ok, err := s.parse(c, &req); !ok {
		return err
	}

	allowed, err := s.throttle.Allow(c.UserContext(), req.Email)
	if err != nil {
		return err
	}
	if !allowed {
		return middleware.ErrorResponse(c, fiber.StatusTooManyRequests, "RATE_LIMITED", "Too many login attempts for this account")
	}

	p, err := s.store.Authenticate(req.Email, req.Password)
	if err != nil {
		s.logger.InfoContext(c.UserContext(), "Login failed", "email", req.Email)
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	}
	if err := s.throttle.Reset(c.UserContext(), req.Email); err != nil {
		s.logger.WarnContext(c.UserContext(), "Failed to reset login throttle", "error", err)
	}
	return s.issue(c, p)
}

func (s *Server) loginWithGoogle(c *fiber.Ctx) error {
	var req googleRequest
	if ok, err := s.parse(c, &req); !ok {
		return err
	}

	userID, err := s.google.Verify(c.UserContext(), req.Credential)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "Google credential was rejected")
	}
	p, err := s.store.User(userID)
	if err != nil {
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "INVALID_CREDENTIALS", "No account for this Google identity")
	}
	return s.issue(c, p)
}

func (s *Server) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if ok, err := s.parse(c, &req); !ok {
		return err
	}

	pair, err := s.store.Rotate(req.RefreshToken)
	switch {
	case errors.Is(err, ErrTokenReused):
		s.logger.WarnContext(c.UserContext(), "Refresh token reuse detected, token family revoked")
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "TOKEN_REUSED", "Refresh token was already used")
	case errors.Is(err, ErrTokenExpired):
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "TOKEN_EXPIRED", "Refresh token has expired")
	case err != nil:
		return middleware.ErrorResponse(c, fiber.StatusUnauthorized, "INVALID_REFRESH_TOKEN", "Refresh token is invalid")
	}
	return c.JSON(pair)
}

// logout revokes whatever it is given and always succeeds.
func (s *Server) logout(c *fiber.Ctx) error {
	var req logoutRequest
	_ = c.BodyParser(&req)
	access, _ := strings.CutPrefix(c.Get(fiber.HeaderAuthorization), "Bearer ")
	s.store.Revoke(req.RefreshToken, access)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) me(c *fiber.Ctx) error {
	p, _ := middleware.Principal(c)
	return c.JSON(fiber.Map{"user": p})
}

// authorize checks perm on the chapter and writes a 403 when it fails.
func (s *Server) authorize(c *fiber.Ctx, perm model.Permission, chapterID string) (bool, error) {
	p, ok := middleware.Principal(c)
	if !ok {
		return false, middleware.ErrorResponse(c, fiber.StatusUnauthorized, "UNAUTHENTICATED", "Not signed in")
	}
	allowed, err := s.authz.CanActOnChapter(c.UserContext(), p, perm, chapterID)
	if err != nil {
		return false, err
	}
	if !allowed {
		return false, middleware.ErrorResponse(c, fiber.StatusForbidden, "FORBIDDEN", "Missing "+string(perm)+" for chapter "+chapterID)
	}
	return true, nil
}

// fail maps domain errors onto the error envelope.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return middleware.ErrorResponse(c, fiber.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, membership.ErrInvalidTransition):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, membership.ErrReasonRequired):
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "VALIDATION_FAILED", "A reason is required")
	case errors.Is(err, ErrReapplyBlocked):
		return middleware.ErrorResponse(c, fiber.StatusForbidden, "REAPPLY_BLOCKED", err.Error())
	case errors.Is(err, ErrConflict):
		return middleware.ErrorResponse(c, fiber.StatusConflict, "CONFLICT", err.Error())
	}
	return err
}

func (s *Server) listRequests(c *fiber.Ctx) error {
	chapterID := c.Params("chapterId")
	if ok, err := s.authorize(c, model.PermViewRequests, chapterID); !ok {
		return err
	}

	var status model.RequestStatus
	if raw := c.Query("status"); raw != "" {
		parsed, ok := model.ParseRequestStatus(raw)
		if !ok {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", "Unknown status "+raw)
		}
		status = parsed
	}
	return c.JSON(fiber.Map{"requests": s.store.Requests(chapterID, status)})
}

// submitRequest files an application for the signed-in user.
func (s *Server) submitRequest(c *fiber.Ctx) error {
	p, _ := middleware.Principal(c)
	req, err := s.store.Submit(c.Params("chapterId"), p.ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"request": req})
}

func (s *Server) approve(c *fiber.Ctx) error {
	chapterID := c.Params("chapterId")
	if ok, err := s.authorize(c, model.PermApproveRejectRequest, chapterID); !ok {
		return err
	}

	var body approveRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", "Request body is not valid JSON")
		}
	}
	p, _ := middleware.Principal(c)
	req, err := s.store.Review(chapterID, c.Params("requestId"), membership.Approve, p.ID, membership.Input{Notes: body.Notes})
	if err != nil {
		return s.fail(c, err)
	}
	s.logger.InfoContext(c.UserContext(), "Request approved", "request_id", req.ID, "chapter_id", chapterID, "reviewer_id", p.ID)
	return c.JSON(fiber.Map{"request": req})
}

func (s *Server) reject(c *fiber.Ctx) error {
	chapterID := c.Params("chapterId")
	if ok, err := s.authorize(c, model.PermApproveRejectRequest, chapterID); !ok {
		return err
	}

	var body rejectRequest
	if err := c.BodyParser(&body); err != nil {
		return middleware.ErrorResponse(c, fiber.StatusBadRequest, "INVALID_ARGUMENT", "Request body is not valid JSON")
	}
	p, _ := middleware.Principal(c)
	in := membership.Input{Reason: body.Reason, CanReapply: body.CanReapply}
	req, err := s.store.Review(chapterID, c.Params("requestId"), membership.Reject, p.ID, in)
	if err != nil {
		return s.fail(c, err)
	}
	s.logger.InfoContext(c.UserContext(), "Request rejected", "request_id", req.ID, "chapter_id", chapterID, "can_reapply", req.CanReapply)
	return c.JSON(fiber.Map{"request": req})
}

func (s *Server) setMembershipStatus(c *fiber.Ctx) error {
	var body statusRequest
	if ok, err := s.parse(c, &body); !ok {
		return err
	}

	member, err := s.store.Member(c.Params("userId"))
	if err != nil {
		return s.fail(c, err)
	}

	t := membership.Reinstate
	if status, _ := model.ParseRequestStatus(body.Status); status == model.RequestStatusSuspended {
		t = membership.Suspend
	}
	if t == membership.Suspend && member.Role == model.RoleSuperAdmin {
		return middleware.ErrorResponse(c, fiber.StatusForbidden, "PROTECTED_TARGET", "Super admins cannot be suspended")
	}
	if ok, err := s.authorize(c, model.PermApproveRejectRequest, member.ChapterID); !ok {
		return err
	}

	in := membership.Input{Reason: body.Reason}
	if err := in.Validate(t); err != nil {
		return s.fail(c, err)
	}
	p, _ := middleware.Principal(c)
	updated, err := s.store.SetMemberStatus(member.UserID, t, p.ID, in)
	if err != nil {
		return s.fail(c, err)
	}
	s.logger.InfoContext(c.UserContext(), "Membership status changed",
		"user_id", updated.UserID, "chapter_id", updated.ChapterID, "status", updated.Status)
	return c.JSON(fiber.Map{"member": updated})
}

func (s *Server) listMembers(c *fiber.Ctx) error {
	chapterID := c.Params("chapterId")
	if ok, err := s.authorize(c, model.PermViewUsers, chapterID); !ok {
		return err
	}
	return c.JSON(fiber.Map{"members": s.store.Members(chapterID)})
}
