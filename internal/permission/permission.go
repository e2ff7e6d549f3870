package permission

import (
	"errors"
	"slices"

	"memberconsole/internal/model"
)

// ErrForbidden is returned by Guard.Check when the principal lacks the
// permissions the guard demands.
var ErrForbidden = errors.New("insufficient permissions")

// Set is an immutable-by-convention set of permissions.
type Set map[model.Permission]struct{}

func newSet(perms ...model.Permission) Set {
	s := make(Set, len(perms))
	for _, p := range perms {
		s[p] = struct{}{}
	}
	return s
}

func (s Set) Has(p model.Permission) bool {
	_, ok := s[p]
	return ok
}

func (s Set) Len() int {
	return len(s)
}

// Slice returns the members sorted by name.
func (s Set) Slice() []model.Permission {
	out := make([]model.Permission, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

func lookup(role model.Role) Set {
	if !role.Valid() {
		return nil
	}
	return roleTable[role]
}

// HasPermission reports whether role grants p. Unknown roles grant nothing.
func HasPermission(role model.Role, p model.Permission) bool {
	return lookup(role).Has(p)
}

// HasAnyPermission reports whether role grants at least one of perms.
func HasAnyPermission(role model.Role, perms ...model.Permission) bool {
	set := lookup(role)
	for _, p := range perms {
		if set.Has(p) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether role grants every one of perms. An
// empty list is trivially satisfied.
func HasAllPermissions(role model.Role, perms ...model.Permission) bool {
	set := lookup(role)
	for _, p := range perms {
		if !set.Has(p) {
			return false
		}
	}
	return true
}

// PermissionsFor returns a copy of the role's permission set; the empty
// set for unknown and member roles.
func PermissionsFor(role model.Role) Set {
	src := lookup(role)
	out := make(Set, len(src))
	for p := range src {
		out[p] = struct{}{}
	}
	return out
}

// InChapter reports whether the principal's scope covers chapterID.
// Platform-wide roles cover every chapter, chapter-scoped roles only their
// own, everyone else none.
func InChapter(p model.Principal, chapterID string) bool {
	switch {
	case p.Role.PlatformWide():
		return true
	case p.Role.ChapterScoped():
		return p.ChapterID != "" && p.ChapterID == chapterID
	default:
		return false
	}
}

// CanActOnChapter combines the permission check with chapter scope.
func CanActOnChapter(p model.Principal, perm model.Permission, chapterID string) bool {
	return HasPermission(p.Role, perm) && InChapter(p, chapterID)
}
