/**
 * @description
 * HTTP router setup for the trading service using go-chi/chi.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers trading routes.
func NewRouter(h *Handler, jwtSecret string, internalKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", "X-Internal-API-Key"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Trading service is healthy"))
	})

	r.Route("/internal", func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalKey))
		r.Post("/settlement/run", h.handleRunSettlement)
		r.Delete("/users/{userID}", h.handleDeleteUser)
		r.Delete("/merchants/{merchantID}", h.handleDeleteMerchant)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwtSecret))

		r.Post("/users", h.handleCreateUser)
		r.Get("/users/{userID}", h.handleGetUser)
		r.Post("/users/{userID}/recharge", h.handleRecharge)

		r.Post("/merchants", h.handleCreateMerchant)
		r.Get("/merchants/{merchantID}/products", h.handleListProducts)
		r.Post("/merchants/{merchantID}/products", h.handleAddProduct)
		r.Post("/merchants/{merchantID}/products/increase-stock", h.handleIncreaseStock)
		r.Get("/merchants/{merchantID}/products/{sku}", h.handleGetProduct)
		r.Get("/merchants/{merchantID}/settlement-warns", h.handleListSettlementWarns)

		r.Post("/trading/purchase", h.handlePurchase)
	})

	return r
}
