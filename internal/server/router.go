package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"comanda/internal/middleware"
)

// OrderHandlers is the HTTP surface of the order lifecycle.
type OrderHandlers interface {
	ListMyOrders(w http.ResponseWriter, r *http.Request)
	ListArchivedOrders(w http.ResponseWriter, r *http.Request)
	ListRestaurantOrders(w http.ResponseWriter, r *http.Request)
	Checkout(w http.ResponseWriter, r *http.Request)
	Webhook(w http.ResponseWriter, r *http.Request)
	UpdateStatus(w http.ResponseWriter, r *http.Request)
	Archive(w http.ResponseWriter, r *http.Request)
	ArchiveDelivered(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
}

// NewRouter mounts the order routes. The payment webhook sits outside auth;
// the gateway signature is its credential.
func NewRouter(orders OrderHandlers, auth func(http.Handler) http.Handler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/checkout/webhook", orders.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(auth)

			r.Get("/", orders.ListMyOrders)
			r.Get("/archived", orders.ListArchivedOrders)
			r.Get("/restaurant", orders.ListRestaurantOrders)
			r.Post("/checkout", orders.Checkout)
			r.Put("/archive-delivered", orders.ArchiveDelivered)
			r.Patch("/{orderId}/status", orders.UpdateStatus)
			r.Put("/{orderId}/archive", orders.Archive)
			r.Patch("/{orderId}/archive", orders.Archive)
			r.Delete("/{orderId}", orders.Delete)
		})
	})

	return r
}
