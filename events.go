package annex

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/annex/eventlog"
	"github.com/xraph/annex/extension"
	"github.com/xraph/annex/id"
)

// ListEvents returns lifecycle events matching filter, newest first.
func (e *Engine) ListEvents(ctx context.Context, filter *eventlog.QueryFilter) ([]*eventlog.Entry, error) {
	sctx, cancel := e.opContext(ctx)
	defer cancel()

	entries, err := e.store.ListEvents(sctx, filter)
	if err != nil {
		return nil, storageError("list_events", id.Nil, err)
	}
	return entries, nil
}

// PurgeEvents removes lifecycle events created before the given time.
func (e *Engine) PurgeEvents(ctx context.Context, before time.Time) (int64, error) {
	sctx, cancel := e.opContext(ctx)
	defer cancel()

	n, err := e.store.PurgeEvents(sctx, before)
	if err != nil {
		return 0, storageError("purge_events", id.Nil, err)
	}
	return n, nil
}

// record appends a lifecycle event. A failed write is logged and never
// fails the operation that triggered it.
func (e *Engine) record(ctx context.Context, ext *extension.Extension, ev eventlog.Event, metadata map[string]any) {
	if e.config.DisableEventLog {
		return
	}

	entry := &eventlog.Entry{
		ID:             id.NewEventID(),
		ExtensionID:    ext.ID,
		UserID:         ext.UserID,
		OrganizationID: ext.OrganizationID,
		Event:          ev,
		Name:           ext.Name,
		Version:        ext.Version,
		Actor:          OwnerFromContext(ctx).UserID,
		Metadata:       metadata,
	}
	if err := e.store.CreateEvent(ctx, entry); err != nil {
		e.logger.Warn("failed to record lifecycle event",
			slog.String("extension_id", ext.ID.String()),
			slog.String("event", string(ev)),
			slog.String("error", err.Error()),
		)
	}
}
