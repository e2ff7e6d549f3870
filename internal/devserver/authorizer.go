package devserver

import (
	"context"

	"memberconsole/internal/model"
	"memberconsole/internal/permission"
)

// Authorizer decides chapter-scoped permissions on the server side.
// *openfga.Authorizer satisfies it.
type Authorizer interface {
	CanActOnChapter(ctx context.Context, p model.Principal, perm model.Permission, chapterID string) (bool, error)
}

// RoleAuthorizer answers from the static role table.
type RoleAuthorizer struct{}

func (RoleAuthorizer) CanActOnChapter(_ context.Context, p model.Principal, perm model.Permission, chapterID string) (bool, error) {
	return p.Active && permission.CanActOnChapter(p, perm, chapterID), nil
}
