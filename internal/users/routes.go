package users

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware is an http middleware function
type Middleware func(http.Handler) http.Handler

// RegisterRoutes mounts the user-management routes. Every route sits
// behind both middlewares; callers pass the authentication gate and the
// admin permission gate so this package stays free of middleware imports.
func RegisterRoutes(r chi.Router, handler *Handler, authMiddleware, adminMiddleware Middleware) {
	r.Route("/users", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)

		r.Get("/{id}", handler.Get)
		r.Put("/{id}/role", handler.UpdateRole)
		r.Delete("/{id}", handler.Delete)
	})
}
