package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Allower decides whether key may spend one token.
type Allower interface {
	Allow(key string, capacity, refillPerSec float64) bool
}

// RateLimit applies a per-client token bucket keyed by real IP.
func RateLimit(l Allower, rps float64, burst int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if rps <= 0 || l == nil {
				return next(c)
			}
			if !l.Allow(c.RealIP(), float64(burst), rps) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
