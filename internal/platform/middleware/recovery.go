package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// PanicObserver is told the route of every recovered panic.
type PanicObserver func(route string)

// Recovery answers a panicking ops handler with a 500 carrying the request id,
// so the response can be matched to the logged stack. observe may be nil.
func Recovery(logger zerolog.Logger, observe PanicObserver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				rid, _ := c.Get("request_id").(string)
				route := c.Path()
				if route == "" {
					route = c.Request().URL.Path
				}
				logger.Error().
					Str("request_id", rid).
					Str("route", route).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("ops handler panicked")
				if observe != nil {
					observe(route)
				}
				err = echo.NewHTTPError(http.StatusInternalServerError, map[string]string{
					"error":      "internal server error",
					"request_id": rid,
				})
			}()
			return next(c)
		}
	}
}
