package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/xraph/forge"

	"github.com/xraph/annex"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
	"github.com/xraph/annex/middleware"
)

// mapError maps engine errors to Forge HTTP errors. Validation errors are
// written by writeError so their issues reach the client.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	switch annex.KindOf(err) {
	case annex.KindNotFound:
		return forge.NotFound(err.Error())
	case annex.KindSystemProtected:
		return forge.Forbidden(err.Error())
	case annex.KindValidation, annex.KindNotConfigurable:
		return forge.BadRequest(err.Error())
	case annex.KindConflict:
		return forge.NewHTTPError(http.StatusConflict, err.Error())
	}
	return err
}

// writeError renders validation failures as a 400 body carrying every
// issue, and maps anything else through mapError.
func writeError(ctx forge.Context, err error) error {
	if annex.KindOf(err) == annex.KindValidation {
		resp := &ErrorResponse{
			Error:  err.Error(),
			Kind:   string(annex.KindValidation),
			Issues: annex.IssuesOf(err),
		}
		var ae *annex.Error
		if errors.As(err, &ae) {
			resp.Op = ae.Op
		}
		return ctx.JSON(http.StatusBadRequest, resp)
	}
	return mapError(err)
}

func extensionID(ctx forge.Context) (id.ExtensionID, error) {
	extID, err := id.ParseExtensionID(ctx.Param("extensionId"))
	if err != nil {
		return id.Nil, forge.BadRequest(fmt.Sprintf("invalid extension ID: %v", err))
	}
	return extID, nil
}

// authorize loads the addressed extension and, with the owner check on,
// rejects callers that may not operate on it.
func (a *API) authorize(ctx forge.Context) (*extension.Extension, error) {
	if !a.requireOwner {
		extID, err := extensionID(ctx)
		if err != nil {
			return nil, err
		}
		ext, err := a.eng.GetExtension(ctx.Context(), extID)
		if err != nil {
			return nil, mapError(err)
		}
		return ext, nil
	}

	ext, err := middleware.Authorize(ctx.Context(), a.eng, ctx.Param(middleware.ParamExtensionID), middleware.Owner)
	switch {
	case errors.Is(err, middleware.ErrInvalidExtensionID):
		return nil, forge.BadRequest(err.Error())
	case errors.Is(err, middleware.ErrAccessDenied):
		return nil, forge.Forbidden("access denied")
	case err != nil:
		return nil, mapError(err)
	}
	return ext, nil
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
