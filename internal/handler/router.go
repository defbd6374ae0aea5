package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/Tobikorais/Mealy/internal/middleware"
	"github.com/Tobikorais/Mealy/internal/model"
)

func (h *Handler) rateLimited(next http.Handler) http.Handler {
	if h.limiter == nil {
		return next
	}
	return h.limiter.Middleware(next)
}

// SetupRouter настраивает HTTP-маршруты и middleware.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.With(h.rateLimited).Post("/auth", h.Login)
		r.With(h.rateLimited).Post("/signup", h.Signup)
		r.Post("/logout", h.Logout)

		r.Get("/meals", h.ListMeals)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/orders", h.CreateOrder)
			r.Get("/orders/customer/{name}", h.ListCustomerOrders)
			r.Get("/orders/events", h.OrderEvents)

			r.With(h.rateLimited).Post("/mpesa/stkpush", h.InitiatePayment)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequireRole(model.RoleAdmin))

				r.Post("/meals", h.CreateMeal)
				r.Delete("/meals/{id}", h.DeleteMeal)

				r.Get("/orders", h.ListOrders)
				r.Put("/orders/{id}/status", h.SetOrderStatus)

				r.Get("/admin/orders", h.ListOrders)
				r.Get("/admin/stats", h.Stats)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "")
	})

	return r
}
