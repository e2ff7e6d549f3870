package model

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of roles a principal can hold. The zero value is
// RoleUnknown, which every lookup treats as holding no permissions.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleSuperAdmin
	RoleChapterAdmin
	RoleHQStaff
	RoleChapterStaff
	RoleMember
	RoleMentor

	// RoleCount is one past the last valid role. Tables indexed by Role are
	// sized against it.
	RoleCount
)

var roleNames = [RoleCount]string{
	RoleUnknown:      "UNKNOWN",
	RoleSuperAdmin:   "SUPER_ADMIN",
	RoleChapterAdmin: "CHAPTER_ADMIN",
	RoleHQStaff:      "HQ_STAFF",
	RoleChapterStaff: "CHAPTER_STAFF",
	RoleMember:       "MEMBER",
	RoleMentor:       "MENTOR",
}

// Roles returns every valid role, excluding RoleUnknown.
func Roles() []Role {
	roles := make([]Role, 0, RoleCount-1)
	for r := RoleUnknown + 1; r < RoleCount; r++ {
		roles = append(roles, r)
	}
	return roles
}

// ParseRole maps a wire string to a Role. Unrecognized strings yield
// RoleUnknown rather than an error.
func ParseRole(s string) Role {
	s = strings.ToUpper(strings.TrimSpace(s))
	for r := RoleUnknown + 1; r < RoleCount; r++ {
		if roleNames[r] == s {
			return r
		}
	}
	return RoleUnknown
}

func (r Role) String() string {
	if r >= RoleCount {
		return roleNames[RoleUnknown]
	}
	return roleNames[r]
}

func (r Role) Valid() bool {
	return r > RoleUnknown && r < RoleCount
}

// ChapterScoped reports whether the role only applies within one chapter.
func (r Role) ChapterScoped() bool {
	return r == RoleChapterAdmin || r == RoleChapterStaff
}

// PlatformWide reports whether the role applies across all chapters.
func (r Role) PlatformWide() bool {
	return r == RoleSuperAdmin || r == RoleHQStaff
}

// Admin reports whether the role may use the console at all.
func (r Role) Admin() bool {
	return r.ChapterScoped() || r.PlatformWide()
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(text []byte) error {
	*r = ParseRole(string(text))
	return nil
}

// Scan implements sql.Scanner so roles can be read straight from a column.
func (r *Role) Scan(value any) error {
	switch v := value.(type) {
	case string:
		*r = ParseRole(v)
		return nil
	case []byte:
		*r = ParseRole(string(v))
		return nil
	}
	return fmt.Errorf("cannot scan %T into Role", value)
}

var ErrChapterRequired = errors.New("chapter-scoped role requires a chapter id")

// Principal is the authenticated actor operating the console.
type Principal struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      Role   `json:"role"`
	ChapterID string `json:"chapterId,omitempty"`
	Active    bool   `json:"isActive"`
}

// Validate checks the chapter scoping invariant.
func (p Principal) Validate() error {
	if p.ID == "" {
		return errors.New("principal id is empty")
	}
	if p.Role.ChapterScoped() && p.ChapterID == "" {
		return fmt.Errorf("%s: %w", p.Role, ErrChapterRequired)
	}
	return nil
}

// TokenPair holds the opaque bearer credentials issued at login.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

func (t TokenPair) Empty() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

func (t TokenPair) Complete() bool {
	return t.AccessToken != "" && t.RefreshToken != ""
}
