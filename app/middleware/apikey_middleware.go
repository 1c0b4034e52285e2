// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v3"

	"github.com/wertlabs/eventfunnel/app/dto"
	"github.com/wertlabs/eventfunnel/config"
)

// APIKeyMiddleware guards the management surface (links, stats, corrections)
// with a static key. Public tracking routes never pass through it.
type APIKeyMiddleware struct {
	cfg config.SecurityConfig
}

// NewAPIKeyMiddleware creates a new API key middleware
func NewAPIKeyMiddleware(cfg config.SecurityConfig) *APIKeyMiddleware {
	return &APIKeyMiddleware{cfg: cfg}
}

// Require rejects requests without a configured key. With RequireAPIKey off
// the middleware is a pass-through, which is how local development runs.
func (m *APIKeyMiddleware) Require() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !m.cfg.RequireAPIKey {
			return c.Next()
		}

		provided := c.Get(m.cfg.APIKeyHeader)
		if provided == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "API key is required",
				Error: dto.ErrorDetail{
					Code: "MISSING_API_KEY",
				},
			})
		}

		for _, allowed := range m.cfg.AllowedAPIKeys {
			if subtle.ConstantTimeCompare([]byte(provided), []byte(allowed)) == 1 {
				return c.Next()
			}
		}

		return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid API key",
			Error: dto.ErrorDetail{
				Code: "INVALID_API_KEY",
			},
		})
	}
}
