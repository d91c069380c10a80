package annex

import (
	"context"

	"github.com/xraph/forge"
)

// OwnerFromContext resolves the caller. An explicit WithOwner value wins;
// otherwise the Forge user and scope are used.
func OwnerFromContext(ctx context.Context) Owner {
	if o, ok := ownerFromValue(ctx); ok {
		return o
	}

	o := Owner{UserID: forge.UserIDFromContext(ctx)}
	if s, ok := forge.ScopeFrom(ctx); ok {
		o.OrganizationID = s.OrgID()
	}
	return o
}
