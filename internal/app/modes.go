package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stockledger/internal/server"
	"github.com/alanyoungcy/stockledger/internal/server/handler"
	"github.com/alanyoungcy/stockledger/internal/server/ws"
	"github.com/alanyoungcy/stockledger/internal/service"
)

const (
	// httpLockTTL bounds how long one HTTP mutation may hold the ledger.
	httpLockTTL = 10 * time.Second
	// httpLockWait is how long a mutation queues behind another writer.
	httpLockWait = 2 * time.Second
	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 5 * time.Second
)

// ServerMode serves the HTTP API and the WebSocket hub.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies, svc *Services) error {
	a.logger.InfoContext(ctx, "app: starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, svc)
	return g.Wait()
}

// MonitorMode runs only the plan monitor loop.
func (a *App) MonitorMode(ctx context.Context, svc *Services) error {
	a.logger.InfoContext(ctx, "app: starting monitor mode",
		slog.Duration("interval", a.cfg.MonitorInterval()),
	)
	return svc.Monitor.Run(ctx)
}

// ArchiveMode archives trades older than the retention window, optionally
// snapshots the ledger, and returns.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting archive mode")
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: s3 is not configured")
	}
	return a.runArchive(ctx, deps, time.Now().UTC())
}

// FullMode runs the HTTP server, the plan monitor and the scheduled archive
// job together.
func (a *App) FullMode(ctx context.Context, deps *Dependencies, svc *Services) error {
	a.logger.InfoContext(ctx, "app: starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svc)
	}

	if a.cfg.Monitor.Enabled {
		g.Go(func() error {
			return svc.Monitor.Run(ctx)
		})
	}

	if deps.Archiver != nil && a.cfg.Archive.Cron != "" {
		if err := a.startArchiveSchedule(ctx, g, deps); err != nil {
			return fmt.Errorf("full mode: %w", err)
		}
	} else {
		a.logger.InfoContext(ctx, "app: archive schedule disabled")
	}

	return g.Wait()
}

// startArchiveSchedule registers the archive job on a seconds-resolution
// cron and stops it when ctx ends.
func (a *App) startArchiveSchedule(ctx context.Context, g *errgroup.Group, deps *Dependencies) error {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(a.cfg.Archive.Cron, func() {
		if err := a.runArchive(ctx, deps, time.Now().UTC()); err != nil {
			a.logger.ErrorContext(ctx, "app: scheduled archive failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("schedule archive %q: %w", a.cfg.Archive.Cron, err)
	}

	c.Start()
	a.logger.InfoContext(ctx, "app: archive scheduled", slog.String("cron", a.cfg.Archive.Cron))

	g.Go(func() error {
		<-ctx.Done()
		<-c.Stop().Done()
		return nil
	})
	return nil
}

// runArchive copies trades older than the retention window and, when
// enabled, a full ledger snapshot. It takes the ledger lock so the copy is
// consistent with concurrent writers.
func (a *App) runArchive(ctx context.Context, deps *Dependencies, now time.Time) error {
	unlock, err := deps.LockManager.Acquire(ctx, service.LedgerLockKey, time.Minute)
	if err != nil {
		return fmt.Errorf("archive: acquire ledger lock: %w", err)
	}
	defer unlock()

	before := now.AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	n, err := deps.Archiver.ArchiveTrades(ctx, before)
	if err != nil {
		return fmt.Errorf("archive: trades: %w", err)
	}
	attrs := []any{slog.Int64("trades", n), slog.Time("before", before)}

	if a.cfg.Archive.Snapshot {
		path, err := deps.Archiver.SnapshotLedger(ctx, now)
		if err != nil {
			return fmt.Errorf("archive: snapshot: %w", err)
		}
		attrs = append(attrs, slog.String("snapshot", path))
	}
	a.logger.InfoContext(ctx, "app: archive complete", attrs...)
	return nil
}

// startHTTPServer adds the HTTP server, its shutdown watcher and the
// WebSocket hub to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svc *Services) {
	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger, deps.HealthChecks...),
		Status: &handler.StatusHandler{
			Mode:         a.cfg.Mode,
			StoreBackend: a.cfg.Store.Backend,
			RedisEnabled: a.cfg.Redis.Enabled,
			S3Enabled:    a.cfg.S3.Enabled,
			StartedAt:    time.Now().UTC(),
		},
		Trades:     handler.NewTradeHandler(svc.Trades, a.logger),
		Positions:  handler.NewPositionHandler(svc.Positions, a.logger),
		Plans:      handler.NewPlanHandler(svc.Plans, svc.Prices, a.logger),
		Prices:     handler.NewPriceHandler(svc.Prices, a.logger),
		Profit:     handler.NewProfitHandler(svc.Profits, a.logger),
		Calculator: handler.NewCalculatorHandler(svc.Preview, a.logger),
		Archive:    handler.NewArchiveHandler(deps.Archiver, deps.BlobReader, a.cfg.Archive.RetentionDays, a.logger),
		Audit:      handler.NewAuditHandler(deps.AuditStore, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.RateWindow(),
		LockKey:     service.LedgerLockKey,
		LockTTL:     httpLockTTL,
		LockWait:    httpLockWait,
	}, handlers, server.Deps{
		Locks:   deps.LockManager,
		Limiter: deps.RateLimiter,
	}, hub, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
