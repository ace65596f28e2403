// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"consult-core/internal/api/handler"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(sessionHandler *handler.SessionHandler, walletHandler *handler.WalletHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(handler.DefaultTimeout))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Session lifecycle routes
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", sessionHandler.Initiate)
		r.Get("/{sessionID}", sessionHandler.Get)
		r.Post("/{sessionID}/accept", sessionHandler.Accept)
		r.Post("/{sessionID}/reject", sessionHandler.Reject)
		r.Post("/{sessionID}/cancel", sessionHandler.Cancel)
		r.Post("/{sessionID}/join", sessionHandler.Join)
		r.Post("/{sessionID}/end", sessionHandler.End)
		r.Post("/{sessionID}/recording", sessionHandler.AttachRecording)
	})

	// Wallet routes
	r.Route("/wallets", func(r chi.Router) {
		r.Post("/{userID}", walletHandler.CreateAccount)
		r.Get("/{userID}/balance", walletHandler.GetBalance)
		r.Get("/{userID}/available", walletHandler.GetAvailableBalance)
		r.Get("/{userID}/ledger", walletHandler.GetLedgerHistory)
		r.Post("/{userID}/recharge", walletHandler.Recharge)
		r.Post("/{userID}/debit", walletHandler.Debit)
	})

	return r
}
