package api

import (
	"net/http"
	"strconv"

	"github.com/xraph/forge"

	"github.com/xraph/annex"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/manifest"
)

func (a *API) registerExtensionRoutes(router forge.Router) error {
	g := router.Group(a.basePath+"/v1", forge.WithGroupTags("extensions"))

	if err := g.POST("/extensions/validate", a.validateManifest,
		forge.WithSummary("Validate manifest"),
		forge.WithDescription("Checks a manifest and reports every violation without installing it."),
		forge.WithOperationID("validateManifest"),
		forge.WithRequestSchema(ValidateManifestRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Validation result", &ValidateManifestResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/extensions", a.installExtension,
		forge.WithSummary("Install extension"),
		forge.WithDescription("Validates a manifest and installs it as a new, active extension."),
		forge.WithOperationID("installExtension"),
		forge.WithRequestSchema(InstallExtensionRequest{}),
		forge.WithCreatedResponse(&extension.Extension{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/extensions", a.listExtensions,
		forge.WithSummary("List extensions"),
		forge.WithDescription("Returns installed extensions with optional filters and pagination."),
		forge.WithOperationID("listExtensions"),
		forge.WithRequestSchema(ListExtensionsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Extension list", &ListResponse[*extension.Extension]{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.GET("/extensions/:extensionId", a.getExtension,
		forge.WithSummary("Get extension"),
		forge.WithDescription("Returns an installed extension."),
		forge.WithOperationID("getExtension"),
		forge.WithResponseSchema(http.StatusOK, "Extension details", &extension.Extension{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) registerLifecycleRoutes(router forge.Router) error {
	g := router.Group(a.basePath+"/v1", forge.WithGroupTags("lifecycle"))

	if err := g.POST("/extensions/:extensionId/enable", a.enableExtension,
		forge.WithSummary("Enable extension"),
		forge.WithDescription("Activates an extension. Enabling an active extension is a no-op."),
		forge.WithOperationID("enableExtension"),
		forge.WithResponseSchema(http.StatusOK, "Extension", &extension.Extension{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/extensions/:extensionId/disable", a.disableExtension,
		forge.WithSummary("Disable extension"),
		forge.WithDescription("Deactivates an extension. Disabling an inactive extension is a no-op."),
		forge.WithOperationID("disableExtension"),
		forge.WithResponseSchema(http.StatusOK, "Extension", &extension.Extension{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/extensions/:extensionId/settings", a.updateSettings,
		forge.WithSummary("Update settings"),
		forge.WithDescription("Replaces the settings values of a configurable extension."),
		forge.WithOperationID("updateExtensionSettings"),
		forge.WithRequestSchema(UpdateSettingsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Extension", &extension.Extension{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.POST("/extensions/:extensionId/upgrade", a.upgradeExtension,
		forge.WithSummary("Upgrade extension"),
		forge.WithDescription("Replaces the manifest with a newer version of the same extension."),
		forge.WithOperationID("upgradeExtension"),
		forge.WithRequestSchema(UpgradeExtensionRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Extension", &extension.Extension{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/extensions/:extensionId", a.uninstallExtension,
		forge.WithSummary("Uninstall extension"),
		forge.WithDescription("Removes an extension and all of its storage. System extensions cannot be uninstalled."),
		forge.WithOperationID("uninstallExtension"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) validateManifest(ctx forge.Context, req *ValidateManifestRequest) (*ValidateManifestResponse, error) {
	res := a.eng.ValidateManifest(req.Manifest)
	resp := &ValidateManifestResponse{Valid: res.OK, Manifest: res.Manifest, Errors: res.Errors}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) installExtension(ctx forge.Context, req *InstallExtensionRequest) (*extension.Extension, error) {
	if req.Manifest == nil {
		return nil, forge.BadRequest("manifest is required")
	}
	owner := annex.OwnerFromContext(ctx.Context())
	if a.requireOwner && req.UserID != "" && req.UserID != owner.UserID {
		return nil, forge.Forbidden("cannot install on behalf of another user")
	}

	ext, err := a.eng.InstallExtension(ctx.Context(), req.Manifest, annex.InstallParams{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Source:         extension.Source(req.InstallationSource),
	})
	if err != nil {
		return nil, writeError(ctx, err)
	}

	return ext, ctx.JSON(http.StatusCreated, ext)
}

func (a *API) getExtension(ctx forge.Context, _ *GetExtensionRequest) (*extension.Extension, error) {
	ext, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	return ext, ctx.JSON(http.StatusOK, ext)
}

func (a *API) listExtensions(ctx forge.Context, req *ListExtensionsRequest) (*ListResponse[*extension.Extension], error) {
	filter := &extension.ListFilter{
		UserID:         req.UserID,
		OrganizationID: req.OrganizationID,
		Type:           manifest.Type(req.Type),
		Source:         extension.Source(req.InstallationSource),
		Limit:          defaultLimit(req.Limit),
		Offset:         req.Offset,
	}
	if req.Active != "" {
		active, err := strconv.ParseBool(req.Active)
		if err != nil {
			return nil, forge.BadRequest("invalid active flag")
		}
		filter.IsActive = &active
	}

	if a.requireOwner {
		owner := annex.OwnerFromContext(ctx.Context())
		switch {
		case filter.UserID == "" && filter.OrganizationID == "":
			filter.UserID = owner.UserID
		case filter.UserID != "" && filter.UserID != owner.UserID:
			return nil, forge.Forbidden("access denied")
		case filter.OrganizationID != "" && filter.OrganizationID != owner.OrganizationID:
			return nil, forge.Forbidden("access denied")
		}
	}

	items, err := a.eng.ListExtensions(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}
	total, err := a.eng.CountExtensions(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}

	resp := &ListResponse[*extension.Extension]{
		Items:  items,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) enableExtension(ctx forge.Context, _ *GetExtensionRequest) (*extension.Extension, error) {
	cur, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	ext, err := a.eng.EnableExtension(ctx.Context(), cur.ID)
	if err != nil {
		return nil, mapError(err)
	}
	return ext, ctx.JSON(http.StatusOK, ext)
}

func (a *API) disableExtension(ctx forge.Context, _ *GetExtensionRequest) (*extension.Extension, error) {
	cur, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	ext, err := a.eng.DisableExtension(ctx.Context(), cur.ID)
	if err != nil {
		return nil, mapError(err)
	}
	return ext, ctx.JSON(http.StatusOK, ext)
}

func (a *API) updateSettings(ctx forge.Context, req *UpdateSettingsRequest) (*extension.Extension, error) {
	cur, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	ext, err := a.eng.UpdateExtensionSettingsMap(ctx.Context(), cur.ID, req.Values)
	if err != nil {
		return nil, writeError(ctx, err)
	}
	return ext, ctx.JSON(http.StatusOK, ext)
}

func (a *API) upgradeExtension(ctx forge.Context, req *UpgradeExtensionRequest) (*extension.Extension, error) {
	if req.Manifest == nil {
		return nil, forge.BadRequest("manifest is required")
	}
	cur, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	ext, err := a.eng.UpgradeExtension(ctx.Context(), cur.ID, req.Manifest)
	if err != nil {
		return nil, writeError(ctx, err)
	}
	return ext, ctx.JSON(http.StatusOK, ext)
}

func (a *API) uninstallExtension(ctx forge.Context, _ *GetExtensionRequest) (*struct{}, error) {
	cur, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.eng.UninstallExtension(ctx.Context(), cur.ID); err != nil {
		return nil, mapError(err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}
