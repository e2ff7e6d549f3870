package openfga

import (
	"context"
	"errors"
	"strings"

	"memberconsole/internal/model"
	"memberconsole/internal/permission"

	openfga "github.com/openfga/go-sdk"
)

const (
	SchemaVersion = "1.1"

	TypeUser     = "user"
	TypePlatform = "platform"
	TypeChapter  = "chapter"

	// PlatformObject is the single platform every chapter hangs off.
	PlatformObject = TypePlatform + ":root"

	relParentPlatform = "platform"
)

var ErrDisabled = errors.New("openfga is disabled")

// RoleRelation returns the object type and relation a role is granted on.
// Roles without console access return false.
func RoleRelation(r model.Role) (string, string, bool) {
	switch {
	case r.PlatformWide():
		return TypePlatform, strings.ToLower(r.String()), true
	case r.ChapterScoped():
		return TypeChapter, strings.ToLower(r.String()), true
	}
	return "", "", false
}

// PermissionRelation is the computed chapter relation for a permission.
func PermissionRelation(p model.Permission) string {
	return "can_" + strings.ToLower(string(p))
}

// AuthorizationModel builds the type definitions for the role table: roles
// are direct relations, permissions are unions of the roles that hold them.
// Platform-wide roles reach every chapter through its platform parent.
func AuthorizationModel() []openfga.TypeDefinition {
	user := openfga.TypeDefinition{Type: TypeUser}

	platformRels := map[string]openfga.Userset{}
	platformMeta := map[string]openfga.RelationMetadata{}
	chapterRels := map[string]openfga.Userset{
		relParentPlatform: direct(),
	}
	chapterMeta := map[string]openfga.RelationMetadata{
		relParentPlatform: directlyRelated(TypePlatform),
	}

	for _, r := range model.Roles() {
		typ, rel, ok := RoleRelation(r)
		if !ok {
			continue
		}
		if typ == TypePlatform {
			platformRels[rel] = direct()
			platformMeta[rel] = directlyRelated(TypeUser)
		} else {
			chapterRels[rel] = direct()
			chapterMeta[rel] = directlyRelated(TypeUser)
		}
	}

	for _, p := range model.Permissions() {
		var children []openfga.Userset
		for _, r := range model.Roles() {
			if !permission.HasPermission(r, p) {
				continue
			}
			typ, rel, ok := RoleRelation(r)
			if !ok {
				continue
			}
			if typ == TypePlatform {
				children = append(children, fromParent(rel))
			} else {
				children = append(children, computed(rel))
			}
		}
		if len(children) == 0 {
			continue
		}
		chapterRels[PermissionRelation(p)] = openfga.Userset{Union: &openfga.Usersets{Child: children}}
	}

	return []openfga.TypeDefinition{
		user,
		{
			Type:      TypePlatform,
			Relations: &platformRels,
			Metadata:  &openfga.Metadata{Relations: &platformMeta},
		},
		{
			Type:      TypeChapter,
			Relations: &chapterRels,
			Metadata:  &openfga.Metadata{Relations: &chapterMeta},
		},
	}
}

func direct() openfga.Userset {
	return openfga.Userset{This: &map[string]interface{}{}}
}

func computed(rel string) openfga.Userset {
	return openfga.Userset{ComputedUserset: &openfga.ObjectRelation{Relation: openfga.PtrString(rel)}}
}

func fromParent(rel string) openfga.Userset {
	return openfga.Userset{TupleToUserset: &openfga.TupleToUserset{
		Tupleset:        openfga.ObjectRelation{Relation: openfga.PtrString(relParentPlatform)},
		ComputedUserset: openfga.ObjectRelation{Relation: openfga.PtrString(rel)},
	}}
}

func directlyRelated(typ string) openfga.RelationMetadata {
	return openfga.RelationMetadata{DirectlyRelatedUserTypes: &[]openfga.RelationReference{{Type: typ}}}
}

func UserObject(id string) string    { return TypeUser + ":" + id }
func ChapterObject(id string) string { return TypeChapter + ":" + id }

// ChapterTuples links each chapter to the platform.
func ChapterTuples(chapterIDs ...string) []Tuple {
	out := make([]Tuple, 0, len(chapterIDs))
	for _, id := range chapterIDs {
		out = append(out, Tuple{User: PlatformObject, Relation: relParentPlatform, Object: ChapterObject(id)})
	}
	return out
}

// PrincipalTuples grants p its role relation. Members, mentors and inactive
// accounts get none.
func PrincipalTuples(p model.Principal) []Tuple {
	typ, rel, ok := RoleRelation(p.Role)
	if !ok || !p.Active {
		return nil
	}
	if typ == TypePlatform {
		return []Tuple{{User: UserObject(p.ID), Relation: rel, Object: PlatformObject}}
	}
	if p.ChapterID == "" {
		return nil
	}
	return []Tuple{{User: UserObject(p.ID), Relation: rel, Object: ChapterObject(p.ChapterID)}}
}

// Authorizer answers chapter permission checks from OpenFGA. When the client
// is disabled it falls back to the static role table.
type Authorizer struct {
	client *Client
}

func NewAuthorizer(c *Client) *Authorizer {
	return &Authorizer{client: c}
}

func (a *Authorizer) CanActOnChapter(ctx context.Context, p model.Principal, perm model.Permission, chapterID string) (bool, error) {
	if !a.client.IsEnabled() {
		return permission.CanActOnChapter(p, perm, chapterID), nil
	}
	if !p.Active || chapterID == "" {
		return false, nil
	}
	return a.client.Check(ctx, Tuple{
		User:     UserObject(p.ID),
		Relation: PermissionRelation(perm),
		Object:   ChapterObject(chapterID),
	})
}
