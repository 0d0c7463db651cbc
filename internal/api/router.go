package api

import (
	"net/http"

	"technician-tracking/internal/api/middleware"
	"technician-tracking/internal/models"
	"technician-tracking/internal/modules/tracking"

	"github.com/labstack/echo/v4"
)

// SetupRoutes sets up all the API endpoints for the application.
func SetupRoutes(e *echo.Echo, jwtSecret string, trackingHandler *tracking.Handler) {
	// Initialize the JWT authentication middleware
	authMiddleware := middleware.JWTAuth(jwtSecret)
	dispatcherRequired := middleware.RoleRequired(models.RoleDispatcher)
	reporterRequired := middleware.RoleRequired(models.RoleTechnician, models.RoleDispatcher)

	// --- Public Routes ---
	e.GET("/", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"message": "Technician Tracking Service"})
	})

	// The customer tracking page is scoped by its public token alone; an
	// unknown token soft-fails inside the handler instead of 401/404ing.
	e.GET("/tracking/public/:token", trackingHandler.GetPublicTracking)

	// --- Dispatch & Technician Routes ---
	trackingGroup := e.Group("/tracking", authMiddleware)
	{
		trackingGroup.POST("/sessions", trackingHandler.CreateSession, dispatcherRequired)
		trackingGroup.GET("/work-order/:id", trackingHandler.GetWorkOrderTracking, dispatcherRequired)
		trackingGroup.GET("/dispatch/active", trackingHandler.GetActiveFleet, dispatcherRequired)
		trackingGroup.POST("/technicians/:id/location", trackingHandler.ReportLocation, reporterRequired)
	}

	// --- WebSocket Feeds ---
	e.GET("/ws/tracking/feed", trackingHandler.HandleTechnicianFeed, authMiddleware, middleware.RoleRequired(models.RoleTechnician))
	e.GET("/ws/tracking/dispatch", trackingHandler.HandleDispatchFeed, authMiddleware, dispatcherRequired)
}
