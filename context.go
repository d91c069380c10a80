package annex

import (
	"context"

	"github.com/xraph/annex/extension"
)

type contextKey int

const ctxKeyOwner contextKey = iota

// Owner is the caller on whose behalf an operation runs.
type Owner struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id,omitempty"`
}

// WithOwner returns a context carrying the calling user and organization.
// Use this in standalone mode (without Forge).
func WithOwner(ctx context.Context, userID, organizationID string) context.Context {
	return context.WithValue(ctx, ctxKeyOwner, Owner{UserID: userID, OrganizationID: organizationID})
}

func ownerFromValue(ctx context.Context) (Owner, bool) {
	o, ok := ctx.Value(ctxKeyOwner).(Owner)
	return o, ok
}

// CanAccess reports whether o may operate on e: the caller is the owning
// user, or belongs to the owning organization.
func CanAccess(o Owner, e *extension.Extension) bool {
	if e == nil {
		return false
	}
	return e.OwnedBy(o.UserID, o.OrganizationID)
}
