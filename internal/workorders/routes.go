package workorders

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.show)
			r.Put("/", h.update)
			r.Delete("/", h.delete)
			r.Patch("/status", h.transition)
			r.Post("/items", h.addItem)
			r.Put("/items/{itemID}", h.updateItem)
			r.Delete("/items/{itemID}", h.removeItem)
			r.Put("/checklist", h.replaceChecklist)
		})
	})
}
