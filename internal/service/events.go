package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// publish marshals evt and sends it on the bus. Failures are logged and
// swallowed so that a bus outage never rolls back a ledger write.
func publish(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, channel string, evt map[string]any) {
	payload, err := json.Marshal(evt)
	if err != nil {
		logger.WarnContext(ctx, "marshal event failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	if pubErr := bus.Publish(ctx, channel, payload); pubErr != nil {
		logger.WarnContext(ctx, "publish event failed",
			slog.String("channel", channel),
			slog.String("error", pubErr.Error()),
		)
	}
}

// auditLog writes an audit entry, logging instead of failing on error.
func auditLog(ctx context.Context, audit domain.AuditStore, logger *slog.Logger, event string, detail map[string]any) {
	if err := audit.Log(ctx, event, detail); err != nil {
		logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
