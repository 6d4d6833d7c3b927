package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
)

// Logger logs every request with the handler that served it.
func Logger(log logger.Logger) echo.MiddlewareFunc {
	log = log.WithPrefix("[http]")

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			handler, _ := c.Get("handler_method").(string)
			log.Infof("%s %s %d %s %s",
				c.Request().Method,
				c.Request().RequestURI,
				c.Response().Status,
				time.Since(start),
				handler,
			)
			return nil
		}
	}
}
