package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/local-scope/localscope/internal/api/http/handlers"
	"github.com/local-scope/localscope/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Profiles       *handlers.ProfilesHandler
	AuthMiddleware *auth.AuthMiddleware
	Gatherer       prometheus.Gatherer
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	authGroup := app.Group("/auth/v1")
	authGroup.Post("/signup", cfg.Auth.SignUp)
	authGroup.Get("/verify", cfg.Auth.Verify)
	authGroup.Post("/token", cfg.Auth.Token)

	authenticated := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireAnyRole()}
	authGroup.Post("/logout", append(authenticated, cfg.Auth.Logout)...)
	authGroup.Get("/user", append(authenticated, cfg.Auth.GetUser)...)
	authGroup.Put("/user", append(authenticated, cfg.Auth.UpdateUser)...)

	// Row-level access: callers see their own profile, admins see any.
	ownRow := []fiber.Handler{cfg.AuthMiddleware.Handle, auth.RequireSelfOrAdmin("user_id")}
	rest := app.Group("/rest/v1")
	rest.Get("/profiles/:user_id", append(ownRow, cfg.Profiles.Get)...)
	rest.Patch("/profiles/:user_id", append(ownRow, cfg.Profiles.Update)...)
}
