package router

import (
	"net/http"
	"strings"

	"github.com/gigbridge/backend/internal/auth"
	"github.com/gigbridge/backend/internal/handlers"
	"github.com/gigbridge/backend/internal/middleware"
	"github.com/gigbridge/backend/internal/models"
)

// New returns an http.Handler that serves the API under /api/v1.
func New(
	authHandler *auth.Handler,
	authService auth.Service,
	walletHandler *handlers.WalletHandler,
	settlementHandler *handlers.SettlementHandler,
	ledgerHandler *handlers.LedgerHandler,
	gatewayHandler *handlers.GatewayHandler,
) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"

	authed := middleware.JWTAuth(authService)

	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)

	mux.Handle(base+"/wallet", authed(methodGET(walletHandler.GetBalance)))
	mux.Handle(base+"/wallet/topup", authed(methodPOST(walletHandler.TopUp)))
	mux.Handle(base+"/wallet/withdraw",
		authed(middleware.WithdrawalCheck()(methodPOST(walletHandler.Withdraw))))

	mux.Handle(base+"/jobs/", authed(jobRoutes(settlementHandler)))

	mux.Handle(base+"/ledger", authed(methodGET(ledgerHandler.ListEntries)))
	mux.Handle(base+"/reconciliation", authed(methodGET(ledgerHandler.Reconciliation)))

	// Gateway callbacks authenticate with an HMAC signature, not JWT.
	mux.HandleFunc(base+"/gateway/", methodPOST(gatewayHandler.Callback))

	return mux
}

// jobRoutes dispatches /api/v1/jobs/{id}/{action}. Dispute resolution is an
// operator action; only admin tokens pass.
func jobRoutes(h *handlers.SettlementHandler) http.Handler {
	resolve := middleware.RequireRole(models.RoleAdmin)(http.HandlerFunc(h.Resolve))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) != 2 {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		action := parts[1]

		if action == "escrow" {
			if r.Method != http.MethodGet {
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.Status(w, r)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		switch action {
		case "hold":
			h.Hold(w, r)
		case "submit":
			h.Submit(w, r)
		case "dispute":
			h.Dispute(w, r)
		case "approve":
			h.Approve(w, r)
		case "resolve":
			resolve.ServeHTTP(w, r)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
	})
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
