package permission

import (
	"fmt"

	"memberconsole/internal/model"
)

// Guard declares what a control needs before it is rendered or invoked.
// Empty fields are ignored; a zero Guard admits any active admin.
type Guard struct {
	Any     []model.Permission
	All     []model.Permission
	Chapter string
}

// Allows reports whether the principal satisfies the guard.
func (g Guard) Allows(p *model.Principal) bool {
	if p == nil || !p.Active || !p.Role.Admin() {
		return false
	}
	if len(g.Any) > 0 && !HasAnyPermission(p.Role, g.Any...) {
		return false
	}
	if !HasAllPermissions(p.Role, g.All...) {
		return false
	}
	if g.Chapter != "" && !InChapter(*p, g.Chapter) {
		return false
	}
	return true
}

// Check is Allows with an error suitable for returning to callers.
func (g Guard) Check(p *model.Principal) error {
	if g.Allows(p) {
		return nil
	}
	role := model.RoleUnknown
	if p != nil {
		role = p.Role
	}
	return fmt.Errorf("role %s: %w", role, ErrForbidden)
}

// Render returns content when the guard admits p and fallback otherwise.
func Render[T any](g Guard, p *model.Principal, content, fallback T) T {
	if g.Allows(p) {
		return content
	}
	return fallback
}
