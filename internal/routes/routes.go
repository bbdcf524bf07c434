package routes

import (
	"time"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Limits is the per-IP request budget for each route group.
type Limits struct {
	API  int
	Auth int
}

var DefaultLimits = Limits{API: 60, Auth: 10}

func Setup(
	app *fiber.App,
	cfg *config.Config,
	limits Limits,
	authHandler *handlers.AuthHandler,
	analyzeHandler *handlers.AnalyzeHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")
	api.Use(ipLimiter(limits.API))

	api.Get("/health", healthHandler.Check)

	// Auth: public, stricter per-IP limit shared by register and login
	authLimit := ipLimiter(limits.Auth)
	api.Post("/auth/register", authLimit, authHandler.Register)
	api.Post("/auth/login", authLimit, authHandler.Login)

	// Protected routes: the guard is attached per route so public routes never see it
	guard := middleware.JWTProtected(cfg)
	api.Delete("/auth/account", guard, authHandler.DeleteAccount)
	api.Post("/analyze", guard, analyzeHandler.Analyze)
	api.Get("/credits", guard, analyzeHandler.Credits)
	api.Get("/documents", guard, analyzeHandler.ListDocuments)
	api.Get("/documents/:id", guard, analyzeHandler.GetDocument)
}

func ipLimiter(perMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:               perMinute,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "Too many requests"})
		},
	})
}
