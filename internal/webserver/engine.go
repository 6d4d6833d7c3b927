package webserver

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mdouchement/logger"
	"github.com/mdouchement/resumable/internal/upload"
	middlewarepkg "github.com/mdouchement/resumable/internal/webserver/middleware"
)

// A Controller is an Iversion Of Control pattern used to init the server package.
type Controller struct {
	Version string
	Logger  logger.Logger
	Service *upload.Service
	// StaticPath is the directory of static files served at the root, disabled when empty.
	StaticPath string
	// Debug dumps every request.
	Debug bool
}

// EchoEngine instantiates the wep server.
func EchoEngine(ctrl Controller) *echo.Echo {
	engine := echo.New()
	engine.HideBanner = true
	engine.HidePort = true

	engine.Use(middleware.Recover())
	engine.Use(middleware.CORS())
	engine.Use(middleware.Gzip())
	engine.Use(middlewarepkg.Logger(ctrl.Logger))
	if ctrl.Debug {
		engine.Use(middlewarepkg.Dumpper(ctrl.Logger))
	}
	if ctrl.StaticPath != "" {
		engine.Use(middleware.Static(ctrl.StaticPath))
	}

	engine.HTTPErrorHandler = middlewarepkg.NewHTTPErrorHandler(ctrl.Logger)

	// Front-end dev proxies forward `/api' without rewriting the path.
	engine.Pre(middleware.Rewrite(map[string]string{
		"/api/*": "/$1",
	}))

	//
	//
	//

	router := engine.Group("")

	// Generic handlers
	//
	router.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"version": ctrl.Version,
		})
	})
	router.GET("/success", func(c echo.Context) error {
		return c.String(http.StatusOK, "Success!")
	})

	// Uploads
	//
	uploads := uploads{
		logger:  ctrl.Logger,
		service: ctrl.Service,
	}
	router.POST("/checkUploaded", uploads.CheckUploaded)
	router.POST("/upload", uploads.Upload)
	router.POST("/merge", uploads.Merge)

	router.GET("/sessions/:hash", uploads.Show)
	router.DELETE("/sessions/:hash", uploads.Abort)

	return engine
}

// PrintRoutes prints the Echo engin exposed routes.
func PrintRoutes(e *echo.Echo) {
	ignored := map[string]bool{
		"":   true,
		".":  true,
		"/*": true,
	}

	routes := e.Routes()
	sort.Slice(routes, func(i int, j int) bool {
		return routes[i].Path < routes[j].Path
	})

	fmt.Println("Routes:")
	for _, route := range routes {
		if ignored[route.Path] {
			continue
		}
		fmt.Printf("%6s %s\n", route.Method, route.Path)
	}
}
