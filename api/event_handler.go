package api

import (
	"net/http"
	"time"

	"github.com/xraph/forge"

	"github.com/xraph/annex/eventlog"
)

func (a *API) registerEventRoutes(router forge.Router) error {
	g := router.Group(a.basePath+"/v1", forge.WithGroupTags("events"))

	return g.GET("/extensions/:extensionId/events", a.listEvents,
		forge.WithSummary("List lifecycle events"),
		forge.WithDescription("Returns the lifecycle history of an extension, newest first."),
		forge.WithOperationID("listExtensionEvents"),
		forge.WithRequestSchema(ListEventsRequest{}),
		forge.WithResponseSchema(http.StatusOK, "Event list", []*eventlog.Entry{}),
		forge.WithErrorResponses(),
	)
}

func (a *API) listEvents(ctx forge.Context, req *ListEventsRequest) ([]*eventlog.Entry, error) {
	ext, err := a.authorize(ctx)
	if err != nil {
		return nil, err
	}

	filter := &eventlog.QueryFilter{
		ExtensionID: ext.ID,
		Event:       eventlog.Event(req.Event),
		Limit:       defaultLimit(req.Limit),
		Offset:      req.Offset,
	}

	if req.After != "" {
		t, err := time.Parse(time.RFC3339, req.After)
		if err != nil {
			return nil, forge.BadRequest("invalid after timestamp")
		}
		filter.After = &t
	}
	if req.Before != "" {
		t, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			return nil, forge.BadRequest("invalid before timestamp")
		}
		filter.Before = &t
	}

	events, err := a.eng.ListEvents(ctx.Context(), filter)
	if err != nil {
		return nil, mapError(err)
	}
	return events, ctx.JSON(http.StatusOK, events)
}
