package middleware

import (
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// NewCORSMiddleware allows CORS_ALLOW_ORIGINS, or every origin when unset.
// Credentials are only allowed for an explicit origin list.
func NewCORSMiddleware() fiber.Handler {
	origins := os.Getenv("CORS_ALLOW_ORIGINS")
	if origins == "" {
		origins = "*"
	}

	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + RequestIDKey,
		ExposeHeaders:    RequestIDKey,
		AllowCredentials: origins != "*",
	})
}
