package api

import (
	"net/http"

	"github.com/xraph/forge"
)

func (a *API) registerStorageRoutes(router forge.Router) error {
	g := router.Group(a.basePath+"/v1", forge.WithGroupTags("storage"))

	if err := g.GET("/extensions/:extensionId/storage", a.listStorageKeys,
		forge.WithSummary("List storage keys"),
		forge.WithDescription("Returns every key stored by an extension."),
		forge.WithOperationID("listStorageKeys"),
		forge.WithResponseSchema(http.StatusOK, "Keys", &StorageKeysResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.GET("/extensions/:extensionId/storage/:key", a.getStorageValue,
		forge.WithSummary("Get storage value"),
		forge.WithDescription("Returns the value stored under a key."),
		forge.WithOperationID("getStorageValue"),
		forge.WithResponseSchema(http.StatusOK, "Value", &StorageValueResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	if err := g.PUT("/extensions/:extensionId/storage/:key", a.setStorageValue,
		forge.WithSummary("Set storage value"),
		forge.WithDescription("Creates or overwrites the value stored under a key."),
		forge.WithOperationID("setStorageValue"),
		forge.WithRequestSchema(SetStorageValueRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Value", &StorageValueResponse{}),
		forge.WithErrorResponses(),
	); err != nil {
		return err
	}

	return g.DELETE("/extensions/:extensionId/storage/:key", a.deleteStorageValue,
		forge.WithSummary("Delete storage value"),
		forge.WithDescription("Removes a key. Deleting an absent key succeeds."),
		forge.WithOperationID("deleteStorageValue"),
		forge.WithNoContentResponse(),
		forge.WithErrorResponses(),
	)
}

func (a *API) listStorageKeys(ctx forge.Context, _ *GetExtensionRequest) (*StorageKeysResponse, error) {
	ext, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	keys, err := a.eng.ListStorageKeys(ctx.Context(), ext.ID)
	if err != nil {
		return nil, mapError(err)
	}
	resp := &StorageKeysResponse{Keys: keys}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) getStorageValue(ctx forge.Context, _ *StorageKeyRequest) (*StorageValueResponse, error) {
	ext, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	key := ctx.Param("key")
	value, ok, err := a.eng.GetStorageValue(ctx.Context(), ext.ID, key)
	if err != nil {
		return nil, writeError(ctx, err)
	}
	if !ok {
		return nil, forge.NotFound("storage key not found")
	}
	resp := &StorageValueResponse{Key: key, Value: value}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) setStorageValue(ctx forge.Context, req *SetStorageValueRequest) (*StorageValueResponse, error) {
	ext, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if len(req.Value) == 0 {
		return nil, forge.BadRequest("value is required")
	}
	key := ctx.Param("key")
	if err := a.eng.SetStorageValue(ctx.Context(), ext.ID, key, req.Value); err != nil {
		return nil, writeError(ctx, err)
	}
	resp := &StorageValueResponse{Key: key, Value: req.Value}
	return resp, ctx.JSON(http.StatusOK, resp)
}

func (a *API) deleteStorageValue(ctx forge.Context, _ *StorageKeyRequest) (*struct{}, error) {
	ext, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.eng.DeleteStorageValue(ctx.Context(), ext.ID, ctx.Param("key")); err != nil {
		return nil, writeError(ctx, err)
	}
	return nil, ctx.NoContent(http.StatusNoContent)
}
