package payout

import (
	"net/http"

	"github.com/kmassidik/movegh/internal/common/middleware"
)

// RegisterRoutes - driver facing API (JWT, driver role)
func (h *Handler) RegisterRoutes(mux *http.ServeMux, jwtSecret string) {
	driver := func(next http.HandlerFunc) http.Handler {
		return middleware.JWTAuth(jwtSecret)(middleware.RequireRole(middleware.RoleDriver)(next))
	}

	mux.Handle("POST /v1/payouts", driver(h.RequestPayout))
	mux.Handle("GET /v1/payouts/{id}", driver(h.GetPayout))
}
