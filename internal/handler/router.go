package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/Romigo24/star-burger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса star-burger.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/order", h.RegisterOrder)
		r.Get("/products", h.GetProducts)

		r.Route("/manager", func(r chi.Router) {
			r.Post("/login", h.ManagerLogin)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/orders", h.ManagerOrders)
				r.Post("/orders/{id}/restaurant", h.AssignRestaurant)
				r.Post("/orders/{id}/status", h.UpdateOrderStatus)

				r.Get("/products", h.ManagerProducts)
				r.Get("/restaurants", h.ManagerRestaurants)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
