package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

// lockRetryInterval is the pause between acquisition attempts while another
// writer holds the ledger.
const lockRetryInterval = 50 * time.Millisecond

// LedgerLock serialises mutating requests (POST, PUT, DELETE) behind the
// ledger lock shared with the plan monitor. A request that cannot obtain the
// lock within wait gets a 409.
func LedgerLock(locks domain.LockManager, key string, ttl, wait time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodPost, http.MethodPut, http.MethodDelete:
			default:
				next.ServeHTTP(w, r)
				return
			}

			deadline := time.Now().Add(wait)
			for {
				unlock, err := locks.Acquire(r.Context(), key, ttl)
				if err == nil {
					defer unlock()
					next.ServeHTTP(w, r)
					return
				}
				if !errors.Is(err, domain.ErrLockHeld) {
					logger.ErrorContext(r.Context(), "middleware: ledger lock failed",
						slog.String("path", r.URL.Path),
						slog.String("error", err.Error()),
					)
					writeJSONError(w, http.StatusInternalServerError, "ledger lock unavailable")
					return
				}
				if time.Now().After(deadline) {
					writeJSONError(w, http.StatusConflict, "ledger is busy, retry shortly")
					return
				}
				select {
				case <-r.Context().Done():
					return
				case <-time.After(lockRetryInterval):
				}
			}
		})
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + msg + `"}`))
}
