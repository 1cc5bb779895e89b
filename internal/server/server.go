// Package server exposes the ledger over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
	"github.com/alanyoungcy/stockledger/internal/server/handler"
	"github.com/alanyoungcy/stockledger/internal/server/middleware"
	"github.com/alanyoungcy/stockledger/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   int    // requests per RateWindow per client; 0 disables
	RateWindow  time.Duration
	// LockKey and LockTTL configure the ledger lock taken by mutating
	// requests. LockWait bounds how long a request queues for it.
	LockKey  string
	LockTTL  time.Duration
	LockWait time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Trades     *handler.TradeHandler
	Positions  *handler.PositionHandler
	Plans      *handler.PlanHandler
	Prices     *handler.PriceHandler
	Profit     *handler.ProfitHandler
	Calculator *handler.CalculatorHandler
	Archive    *handler.ArchiveHandler
	Audit      *handler.AuditHandler
}

// Deps are the shared infrastructure the middleware chain needs.
type Deps struct {
	Locks   domain.LockManager
	Limiter domain.RateLimiter
}

// Server is the HTTP + WebSocket API server for the ledger.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (ledger lock, auth, rate limit, logging, CORS) and
// attaches the WebSocket hub when one is given.
func NewServer(cfg Config, handlers Handlers, deps Deps, wsHub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      NewHandler(cfg, handlers, deps, wsHub, logger),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed and middleware-wrapped http.Handler.
func NewHandler(cfg Config, handlers Handlers, deps Deps, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Trades.
	mux.HandleFunc("POST /api/trades/buy", handlers.Trades.Buy)
	mux.HandleFunc("POST /api/trades/sell", handlers.Trades.Sell)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("DELETE /api/trades/{id}", handlers.Trades.DeleteTrade)

	// Positions.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("DELETE /api/positions/{id}", handlers.Positions.DeletePosition)

	// Plans.
	mux.HandleFunc("POST /api/plans", handlers.Plans.CreatePlan)
	mux.HandleFunc("GET /api/plans", handlers.Plans.ListPlans)
	mux.HandleFunc("POST /api/plans/evaluate", handlers.Plans.Evaluate)
	mux.HandleFunc("GET /api/plans/{id}", handlers.Plans.GetPlan)
	mux.HandleFunc("POST /api/plans/{id}/execute", handlers.Plans.ExecutePlan)
	mux.HandleFunc("POST /api/plans/{id}/cancel", handlers.Plans.CancelPlan)

	// Prices and reports.
	mux.HandleFunc("PUT /api/prices", handlers.Prices.UpdatePrices)
	mux.HandleFunc("GET /api/prices", handlers.Prices.ListQuotes)
	mux.HandleFunc("GET /api/profit/realized", handlers.Profit.Realized)
	mux.HandleFunc("GET /api/profit/unrealized", handlers.Profit.Unrealized)

	// Calculators never touch the ledger.
	mux.HandleFunc("POST /api/calculator/target", handlers.Calculator.Target)
	mux.HandleFunc("POST /api/calculator/risk-reward", handlers.Calculator.RiskReward)

	mux.HandleFunc("POST /api/archive", handlers.Archive.Archive)
	mux.HandleFunc("GET /api/archive", handlers.Archive.ListArchive)
	mux.HandleFunc("GET /api/archive/{path...}", handlers.Archive.Download)
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	if deps.Locks != nil {
		h = exceptCalculator(middleware.LedgerLock(deps.Locks, cfg.LockKey, cfg.LockTTL, cfg.LockWait, logger), h)
	}
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// exceptCalculator applies mw to every request outside /api/calculator/.
func exceptCalculator(mw func(http.Handler) http.Handler, next http.Handler) http.Handler {
	wrapped := mw(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/calculator/") {
			next.ServeHTTP(w, r)
			return
		}
		wrapped.ServeHTTP(w, r)
	})
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.logger.Info("server: starting", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
