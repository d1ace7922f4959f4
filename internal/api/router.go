package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/example/ec-store/internal/api/middleware"
	"github.com/example/ec-store/internal/auth"
	"github.com/example/ec-store/internal/domain/category"
	"github.com/example/ec-store/internal/domain/order"
	"github.com/example/ec-store/internal/domain/product"
	"github.com/example/ec-store/internal/domain/user"
	"github.com/example/ec-store/internal/infrastructure/blob"
)

// Deps are the services the router dispatches to. Notifications is mounted
// at /ws/notifications when set.
type Deps struct {
	Products   *product.Service
	Categories *category.Service
	Orders     *order.Service
	Users      *user.Service
	JWT        *auth.JWTService
	Blobs      blob.Store

	Notifications http.Handler

	RequestTimeout time.Duration
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// NewRouter builds the HTTP route table.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("api")
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 5 << 20
	}

	products := NewProductHandlers(d.Products, d.MaxUploadBytes, logger)
	categories := NewCategoryHandlers(d.Categories, logger)
	orders := NewOrderHandlers(d.Orders, logger)
	accounts := NewAuthHandlers(d.Users, logger)
	storage := NewStorageHandlers(d.Blobs, logger)

	authenticated := middleware.AuthMiddleware(d.JWT)
	admin := middleware.RequireAdmin()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/healthz", health)

	// Long-lived; kept outside the request timeout.
	if d.Notifications != nil {
		r.Method(http.MethodGet, "/ws/notifications", d.Notifications)
	}

	r.Group(func(r chi.Router) {
		if d.RequestTimeout > 0 {
			r.Use(chimw.Timeout(d.RequestTimeout))
		}

		r.Route("/products", func(r chi.Router) {
			r.Get("/", products.List)
			r.Get("/token/{token}", products.GetByToken)
			r.Get("/{id}", products.Get)

			r.Group(func(r chi.Router) {
				r.Use(authenticated, admin)
				r.Post("/", products.Create)
				r.Patch("/{id}", products.Update)
				r.Put("/{id}", products.Update)
				r.Patch("/{id}/image", products.UpdateImage)
				r.Delete("/{id}", products.Delete)
			})
		})

		r.Get("/storage/{ref}", storage.Get)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", categories.List)
			r.Get("/{id}", categories.Get)

			r.Group(func(r chi.Router) {
				r.Use(authenticated, admin)
				r.Post("/", categories.Create)
				r.Put("/{id}", categories.Rename)
				r.Delete("/{id}", categories.Delete)
			})
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(authenticated)
			r.Post("/", orders.Place)
			r.Get("/", orders.List)
			r.Get("/{id}", orders.Get)
			r.With(admin).Delete("/{id}", orders.Delete)
		})

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", accounts.Register)
			r.Post("/signin", accounts.Login)
			r.Post("/refresh", accounts.Refresh)
			r.Post("/logout", accounts.Logout)
		})

		r.Route("/users", func(r chi.Router) {
			r.Use(authenticated)
			r.Get("/me", accounts.Me)
			r.Patch("/me", accounts.UpdateMe)
			r.Post("/me/password", accounts.ChangePassword)

			r.Group(func(r chi.Router) {
				r.Use(admin)
				r.Get("/", accounts.ListUsers)
				r.Delete("/{id}", accounts.DeactivateUser)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": CodeNotFound, "message": "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "METHOD_NOT_ALLOWED", "message": "method not allowed"})
	})

	return r
}
