// Package middleware provides HTTP access control for annex extensions.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/annex"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
)

// ParamExtensionID is the route parameter holding the extension ID.
const ParamExtensionID = "extensionId"

var (
	// ErrInvalidExtensionID is returned when the route parameter is not an
	// extension ID.
	ErrInvalidExtensionID = errors.New("annex: invalid extension ID")

	// ErrAccessDenied is returned when the caller may not operate on the
	// extension. Unknown extensions are reported the same way so callers
	// cannot discover IDs they do not own.
	ErrAccessDenied = errors.New("annex: access denied")
)

// Rule decides whether owner may operate on ext.
type Rule func(owner annex.Owner, ext *extension.Extension) bool

// Owner admits the owning user and members of the owning organization.
func Owner(owner annex.Owner, ext *extension.Extension) bool {
	return annex.CanAccess(owner, ext)
}

// Active is Owner restricted to enabled extensions.
func Active(owner annex.Owner, ext *extension.Extension) bool {
	return ext.IsActive && annex.CanAccess(owner, ext)
}

// Authorize loads the extension identified by rawID and applies rule to
// the caller carried by ctx.
func Authorize(ctx context.Context, eng *annex.Engine, rawID string, rule Rule) (*extension.Extension, error) {
	extID, err := id.ParseExtensionID(rawID)
	if err != nil {
		return nil, ErrInvalidExtensionID
	}

	ext, err := eng.GetExtension(ctx, extID)
	if err != nil {
		if annex.KindOf(err) == annex.KindNotFound {
			return nil, ErrAccessDenied
		}
		return nil, err
	}
	if !rule(annex.OwnerFromContext(ctx), ext) {
		return nil, ErrAccessDenied
	}
	return ext, nil
}

// RequireUser rejects requests that carry no authenticated user.
func RequireUser() forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			if annex.OwnerFromContext(ctx.Context()).UserID == "" {
				return denyResponse(ctx, http.StatusUnauthorized, "authentication required")
			}
			return next(ctx)
		}
	}
}

// RequireOwner allows the request only when the caller owns the addressed
// extension, directly or through its organization.
func RequireOwner(eng *annex.Engine) forge.Middleware {
	return Require(eng, Owner)
}

// RequireActive allows the request only when the caller owns the addressed
// extension and it is enabled. Hosts put it in front of routes that run
// extension code.
func RequireActive(eng *annex.Engine) forge.Middleware {
	return Require(eng, Active)
}

// Require enforces rule for the extension addressed by the request.
func Require(eng *annex.Engine, rule Rule) forge.Middleware {
	return func(next forge.Handler) forge.Handler {
		return func(ctx forge.Context) error {
			_, err := Authorize(ctx.Context(), eng, ctx.Param(ParamExtensionID), rule)
			switch {
			case errors.Is(err, ErrInvalidExtensionID):
				return denyResponse(ctx, http.StatusBadRequest, "invalid extension ID")
			case errors.Is(err, ErrAccessDenied):
				return denyResponse(ctx, http.StatusForbidden, "access denied")
			case err != nil:
				return err
			}
			return next(ctx)
		}
	}
}

func denyResponse(ctx forge.Context, status int, msg string) error {
	ctx.SetHeader("Content-Type", "application/json")
	ctx.Response().WriteHeader(status)
	return json.NewEncoder(ctx.Response()).Encode(map[string]string{"error": msg})
}
