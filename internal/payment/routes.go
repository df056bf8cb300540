package payment

import (
	"net/http"

	"github.com/kmassidik/movegh/internal/common/middleware"
)

// RegisterRoutes - rider facing API (JWT) plus the unauthenticated provider webhook
func (h *Handler) RegisterRoutes(mux *http.ServeMux, jwtSecret string) {
	protected := middleware.JWTAuth(jwtSecret)
	rider := func(next http.HandlerFunc) http.Handler {
		return protected(middleware.RequireRole(middleware.RoleRider)(next))
	}

	mux.Handle("POST /v1/payments/intents", rider(h.CreateIntent))
	mux.Handle("POST /v1/payments/intents/{id}/confirm", rider(h.ConfirmIntent))
	mux.Handle("GET /v1/wallets/me", protected(http.HandlerFunc(h.GetMyWallet)))

	// signature checked by the provider adapter
	mux.HandleFunc("POST /v1/payments/webhooks/{provider}", h.Webhook)
}
