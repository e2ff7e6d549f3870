package openfga

import (
	"context"
	"testing"

	"memberconsole/internal/config"
	"memberconsole/internal/logger"
	"memberconsole/internal/model"
	"memberconsole/internal/permission"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleRelation(t *testing.T) {
	typ, rel, ok := RoleRelation(model.RoleSuperAdmin)
	require.True(t, ok)
	assert.Equal(t, TypePlatform, typ)
	assert.Equal(t, "super_admin", rel)

	typ, rel, ok = RoleRelation(model.RoleChapterStaff)
	require.True(t, ok)
	assert.Equal(t, TypeChapter, typ)
	assert.Equal(t, "chapter_staff", rel)

	_, _, ok = RoleRelation(model.RoleMember)
	assert.False(t, ok)
}

func TestAuthorizationModel(t *testing.T) {
	defs := AuthorizationModel()
	require.Len(t, defs, 3)
	assert.Equal(t, TypeUser, defs[0].Type)

	platform := *defs[1].Relations
	assert.Contains(t, platform, "super_admin")
	assert.Contains(t, platform, "hq_staff")

	chapter := *defs[2].Relations
	assert.Contains(t, chapter, relParentPlatform)
	assert.Contains(t, chapter, "chapter_admin")

	approve, ok := chapter[PermissionRelation(model.PermApproveRejectRequest)]
	require.True(t, ok)
	require.NotNil(t, approve.Union)

	holders := 0
	for _, r := range model.Roles() {
		if _, _, ok := RoleRelation(r); ok && permission.HasPermission(r, model.PermApproveRejectRequest) {
			holders++
		}
	}
	assert.Len(t, approve.Union.Child, holders)

	for _, p := range model.Permissions() {
		_, present := chapter[PermissionRelation(p)]
		anyHolder := false
		for _, r := range model.Roles() {
			if _, _, ok := RoleRelation(r); ok && permission.HasPermission(r, p) {
				anyHolder = true
			}
		}
		assert.Equal(t, anyHolder, present, "permission %s", p)
	}
}

func TestPrincipalTuples(t *testing.T) {
	super := model.Principal{ID: "u-1", Role: model.RoleSuperAdmin, Active: true}
	assert.Equal(t, []Tuple{{User: "user:u-1", Relation: "super_admin", Object: PlatformObject}}, PrincipalTuples(super))

	admin := model.Principal{ID: "u-2", Role: model.RoleChapterAdmin, ChapterID: "ch-1", Active: true}
	assert.Equal(t, []Tuple{{User: "user:u-2", Relation: "chapter_admin", Object: "chapter:ch-1"}}, PrincipalTuples(admin))

	admin.Active = false
	assert.Empty(t, PrincipalTuples(admin))
	assert.Empty(t, PrincipalTuples(model.Principal{ID: "u-3", Role: model.RoleMember, Active: true}))

	assert.Equal(t, []Tuple{
		{User: PlatformObject, Relation: "platform", Object: "chapter:ch-1"},
		{User: PlatformObject, Relation: "platform", Object: "chapter:ch-2"},
	}, ChapterTuples("ch-1", "ch-2"))
}

func TestDisabledAuthorizerUsesRoleTable(t *testing.T) {
	c, err := NewClient(config.OpenFGAConfig{Enabled: false}, logger.Discard())
	require.NoError(t, err)
	assert.False(t, c.IsEnabled())
	require.NoError(t, c.Verify(context.Background()))
	require.NoError(t, c.WriteTuples(context.Background(), []Tuple{{User: "user:u-1"}}))

	_, err = c.Check(context.Background(), Tuple{})
	assert.ErrorIs(t, err, ErrDisabled)

	a := NewAuthorizer(c)
	admin := model.Principal{ID: "u-2", Role: model.RoleChapterAdmin, ChapterID: "ch-1", Active: true}

	ok, err := a.CanActOnChapter(context.Background(), admin, model.PermApproveRejectRequest, "ch-1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.CanActOnChapter(context.Background(), admin, model.PermApproveRejectRequest, "ch-2")
	require.NoError(t, err)
	assert.False(t, ok)
}
