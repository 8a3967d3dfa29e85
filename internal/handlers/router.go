package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ukydev/fleet-commute/internal/auth"
	"github.com/ukydev/fleet-commute/internal/db"
	"github.com/ukydev/fleet-commute/internal/middleware"
	"github.com/ukydev/fleet-commute/internal/models"
	"github.com/ukydev/fleet-commute/internal/relay"
	"github.com/ukydev/fleet-commute/internal/trips"
)

// RouterDeps are the collaborators the HTTP surface is built from.
type RouterDeps struct {
	Auth     *auth.Service
	Engine   *trips.Engine
	Users    db.UserCollection
	Vehicles db.VehicleCollection
	Routes   db.RouteCollection
	Trips    db.TripCollection
	Relay    *relay.Relay

	ClientURL          string
	RateLimitPerMinute int
}

// NewRouter wires every endpoint of the API server.
func NewRouter(deps RouterDeps) http.Handler {
	authMiddleware := middleware.NewAuthMiddleware(deps.Auth)

	authHandler := NewAuthHandler(deps.Auth, deps.Users)
	tripHandler := NewTripHandler(deps.Engine)
	vehicleHandler := NewVehicleHandler(deps.Vehicles, deps.Trips)
	routeHandler := NewRouteHandler(deps.Routes)
	userHandler := NewUserHandler(deps.Users)

	mux := chi.NewRouter()
	mux.Use(middleware.RequestLogger)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{deps.ClientURL},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "ok",
			"observers": deps.Relay.ObserverCount(),
			"time":      time.Now().UTC(),
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.Get("/ws", relay.Handler(deps.Relay, deps.ClientURL))

	mux.Route("/api", func(api chi.Router) {
		if deps.RateLimitPerMinute > 0 {
			api.Use(middleware.RateLimit(deps.RateLimitPerMinute, time.Minute))
		}
		api.Use(authMiddleware.Authenticate)

		api.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
			r.Get("/profile", authHandler.GetProfile)
			r.Put("/profile", authHandler.UpdateProfile)
			r.Post("/change-password", authHandler.ChangePassword)
		})

		api.Route("/trips", func(r chi.Router) {
			r.Get("/", tripHandler.List)
			r.Post("/", tripHandler.Create)
			r.Get("/live", tripHandler.Live)
			r.Get("/export", tripHandler.Export)
			r.Get("/driver/{driverId}", tripHandler.ByDriver)
			r.Get("/employee/{employeeId}", tripHandler.ByEmployee)

			r.Get("/{id}", tripHandler.Get)
			r.Put("/{id}", tripHandler.Update)
			r.Delete("/{id}", tripHandler.Delete)
			r.Get("/{id}/report", tripHandler.Report)
			r.Put("/{id}/cancel", tripHandler.Cancel)
			r.Put("/{id}/start", tripHandler.Start)
			r.Put("/{id}/pickup/{employeeId}", tripHandler.Pickup)
			r.Put("/{id}/drop/{employeeId}", tripHandler.Drop)
			r.Put("/{id}/location", tripHandler.Location)
			r.Put("/{id}/distance", tripHandler.Distance)
		})

		api.Route("/vehicles", func(r chi.Router) {
			r.Get("/", vehicleHandler.List)
			r.Get("/driver/{driverId}", vehicleHandler.ByDriver)
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequirePermission(models.ActionManageVehicles))
				r.Post("/", vehicleHandler.Create)
				r.Put("/{id}", vehicleHandler.Update)
				r.Delete("/{id}", vehicleHandler.Delete)
			})
		})

		api.Route("/routes", func(r chi.Router) {
			r.Get("/", routeHandler.List)
			r.Get("/driver/{driverId}", routeHandler.ByDriver)
			r.Group(func(r chi.Router) {
				r.Use(authMiddleware.RequirePermission(models.ActionManageRoutes))
				r.Post("/", routeHandler.Create)
				r.Put("/{id}", routeHandler.Update)
				r.Delete("/{id}", routeHandler.Delete)
			})
		})

		api.With(authMiddleware.RequirePermission(models.ActionViewAllTrips)).Get("/users", userHandler.List)
	})

	return mux
}
