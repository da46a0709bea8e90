package server

import (
	"github.com/OFFIS-RIT/graphrag/internal/server/middleware"
	"github.com/OFFIS-RIT/graphrag/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	api := e.Group("/api", middleware.AuthMiddleware)

	api.POST("/graphs/:id/index", routes.IndexGraphHandler, middleware.RequirePermission(middleware.PermissionGraphIndex))
	api.GET("/graphs/:id/entities/search", routes.SearchEntitiesHandler, middleware.RequirePermission(middleware.PermissionGraphView))
	api.GET("/graphs/:id/reports", routes.GetReportsHandler, middleware.RequirePermission(middleware.PermissionGraphView))
	api.DELETE("/graphs/:id", routes.DeleteGraphHandler, middleware.RequirePermission(middleware.PermissionGraphDelete))
}
