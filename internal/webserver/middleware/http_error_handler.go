package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/resumable/internal/webserver/weberror"
)

// NewHTTPErrorHandler is a middleware that formats rendered errors.
func NewHTTPErrorHandler(log logger.Logger) func(err error, c echo.Context) {
	log = log.WithPrefix("[http]")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var werr error
		switch err := err.(type) {
		case *echo.HTTPError:
			werr = weberror.New(err.Code, fmt.Sprint(err.Message))
		case *weberror.Error:
			werr = err
		default:
			werr = weberror.New(http.StatusInternalServerError, err.Error())
		}

		code := weberror.StatusCode(werr)
		if code >= http.StatusInternalServerError {
			log.Error(werr)
		} else {
			log.Info(werr)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, werr)
		}
		if err != nil {
			log.Errorf("HTTPErrorHandler: %s", err)
		}
	}
}
