package permission

import (
	"errors"
	"testing"

	"memberconsole/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleTableCoversEveryRole(t *testing.T) {
	require.Len(t, roleTable, int(model.RoleCount))
	for _, role := range model.Roles() {
		if role.Admin() {
			assert.NotEmpty(t, roleTable[role], "admin role %s has no permissions", role)
		} else {
			assert.Empty(t, roleTable[role], "member role %s must not hold permissions", role)
		}
	}
}

func TestHasPermissionMatchesStaticSet(t *testing.T) {
	for _, role := range model.Roles() {
		set := roleTable[role]
		for _, p := range model.Permissions() {
			assert.Equal(t, set.Has(p), HasPermission(role, p), "role=%s perm=%s", role, p)
		}
	}
}

func TestUnknownRoleHasNothing(t *testing.T) {
	role := model.ParseRole("GRAND_WIZARD")
	require.Equal(t, model.RoleUnknown, role)

	for _, p := range model.Permissions() {
		assert.False(t, HasPermission(role, p))
	}
	assert.False(t, HasAnyPermission(role, model.Permissions()...))
	assert.False(t, HasAllPermissions(role, model.PermViewUsers))
	assert.Equal(t, 0, PermissionsFor(role).Len())
	assert.Equal(t, 0, PermissionsFor(model.Role(200)).Len())
}

func TestChapterAdminScenario(t *testing.T) {
	admin := model.Principal{ID: "u1", Role: model.RoleChapterAdmin, ChapterID: "ch-1", Active: true}

	assert.True(t, HasPermission(admin.Role, model.PermApproveRejectRequest))
	assert.False(t, HasPermission(admin.Role, model.PermCreateChapter))

	assert.True(t, CanActOnChapter(admin, model.PermApproveRejectRequest, "ch-1"))
	assert.False(t, CanActOnChapter(admin, model.PermApproveRejectRequest, "ch-2"))
}

func TestSuperAdminIsGlobal(t *testing.T) {
	root := model.Principal{ID: "u0", Role: model.RoleSuperAdmin, Active: true}
	assert.True(t, CanActOnChapter(root, model.PermApproveRejectRequest, "ch-9"))
	assert.Equal(t, len(model.Permissions()), PermissionsFor(root.Role).Len())
}

func TestHQStaffCannotApprove(t *testing.T) {
	staff := model.Principal{ID: "u2", Role: model.RoleHQStaff, Active: true}
	assert.True(t, InChapter(staff, "ch-1"))
	assert.False(t, CanActOnChapter(staff, model.PermApproveRejectRequest, "ch-1"))
}

func TestAnyAndAll(t *testing.T) {
	role := model.RoleChapterStaff

	assert.True(t, HasAnyPermission(role, model.PermCreateChapter, model.PermManageEvents))
	assert.False(t, HasAnyPermission(role))
	assert.True(t, HasAllPermissions(role))
	assert.True(t, HasAllPermissions(role, model.PermManageEvents, model.PermManagePosts))
	assert.False(t, HasAllPermissions(role, model.PermManageEvents, model.PermManageFunding))
}

func TestPermissionsForReturnsCopy(t *testing.T) {
	set := PermissionsFor(model.RoleChapterStaff)
	set[model.PermDeleteChapter] = struct{}{}
	assert.False(t, HasPermission(model.RoleChapterStaff, model.PermDeleteChapter))
}

func TestGuard(t *testing.T) {
	admin := &model.Principal{ID: "u1", Role: model.RoleChapterAdmin, ChapterID: "ch-1", Active: true}
	inactive := &model.Principal{ID: "u3", Role: model.RoleSuperAdmin, Active: false}
	member := &model.Principal{ID: "u4", Role: model.RoleMember, Active: true}

	approve := Guard{All: []model.Permission{model.PermApproveRejectRequest}, Chapter: "ch-1"}

	assert.True(t, approve.Allows(admin))
	assert.NoError(t, approve.Check(admin))
	assert.False(t, approve.Allows(nil))
	assert.False(t, approve.Allows(inactive))
	assert.False(t, Guard{}.Allows(member))

	other := Guard{All: []model.Permission{model.PermApproveRejectRequest}, Chapter: "ch-2"}
	err := other.Check(admin)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForbidden))

	assert.Equal(t, "approve", Render(approve, admin, "approve", ""))
	assert.Equal(t, "", Render(other, admin, "approve", ""))
}
