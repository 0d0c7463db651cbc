package tracking

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"technician-tracking/internal/models"
)

// upgrader is used to upgrade HTTP connections to WebSocket connections.
var upgrader = websocket.Upgrader{}

// Handler exposes the tracking engine over HTTP and websocket.
type Handler struct {
	svc      ServiceInterface
	registry *Registry
}

// NewHandler constructs a new tracking handler.
func NewHandler(svc ServiceInterface, registry *Registry) *Handler {
	return &Handler{svc: svc, registry: registry}
}

// CreateSession handles POST /tracking/sessions (dispatcher only).
func (h *Handler) CreateSession(c echo.Context) error {
	var req models.CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	session, err := h.svc.CreateSession(c.Request().Context(), req)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return c.JSON(http.StatusConflict, models.ErrorResponse{Message: models.ErrConflict.Error()})
		}
		c.Logger().Errorf("create session: %v", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "failed to create tracking session"})
	}
	return c.JSON(http.StatusCreated, session)
}

// GetPublicTracking handles GET /tracking/public/:token. An unknown or
// expired token yields a 200 "unavailable" bundle so customer pages never
// see an error for a session that simply is not there yet.
func (h *Handler) GetPublicTracking(c echo.Context) error {
	bundle := h.svc.ResolvePublic(c.Request().Context(), c.Param("token"))
	return c.JSON(http.StatusOK, bundle)
}

// GetWorkOrderTracking handles GET /tracking/work-order/:id (dispatcher only).
func (h *Handler) GetWorkOrderTracking(c echo.Context) error {
	bundle := h.svc.ResolveWorkOrder(c.Request().Context(), c.Param("id"))
	return c.JSON(http.StatusOK, bundle)
}

// GetActiveFleet handles GET /tracking/dispatch/active (dispatcher only).
func (h *Handler) GetActiveFleet(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ActiveFleet(c.Request().Context()))
}

// ReportLocation handles POST /tracking/technicians/:id/location, the REST
// fallback path for technician apps that cannot hold a websocket open.
func (h *Handler) ReportLocation(c echo.Context) error {
	technicianID := c.Param("id")
	if role, _ := c.Get("role").(string); role == models.RoleTechnician {
		if subjectID, _ := c.Get("subjectID").(string); subjectID != technicianID {
			return c.JSON(http.StatusForbidden, models.ErrorResponse{Message: "cannot report a location for another technician"})
		}
	}

	var req models.LocationReportRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{Message: "invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return err
	}

	if err := h.svc.ReportLocation(c.Request().Context(), technicianID, req); err != nil {
		c.Logger().Errorf("report location: %v", err)
		return c.JSON(http.StatusInternalServerError, models.ErrorResponse{Message: "failed to record location"})
	}
	return c.NoContent(http.StatusCreated)
}

// HandleTechnicianFeed handles GET /ws/tracking/feed: the push transport.
// The technician app streams technician_location frames; each one is
// validated and routed into the registry. While the socket is down the
// entity runs on the polling fallback, flagged as connectivity-degraded.
func (h *Handler) HandleTechnicianFeed(c echo.Context) error {
	technicianID, _ := c.Get("subjectID").(string)
	if technicianID == "" {
		return c.JSON(http.StatusUnauthorized, models.ErrorResponse{Message: "missing technician identity"})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	h.registry.SetDegraded(technicianID, false)
	defer h.registry.SetDegraded(technicianID, true)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Connection gone; reconnection is the client's job and polling
			// carries the entity in the meantime.
			return nil
		}

		var message models.PushMessage
		if err := json.Unmarshal(raw, &message); err != nil {
			c.Logger().Warnf("push feed %s: malformed frame: %v", technicianID, err)
			continue
		}
		if message.Payload.TechnicianID != technicianID {
			c.Logger().Warnf("push feed %s: frame for foreign technician %s dropped", technicianID, message.Payload.TechnicianID)
			continue
		}
		if err := h.svc.HandlePush(message); err != nil {
			// Malformed payloads are fatal to the update, not the connection.
			c.Logger().Warnf("push feed %s: %v", technicianID, err)
		}
	}
}

// HandleDispatchFeed handles GET /ws/tracking/dispatch (dispatcher only): a
// websocket stream of fleet change events for the dispatch board, primed
// with a full fleet snapshot.
func (h *Handler) HandleDispatchFeed(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(h.svc.ActiveFleet(c.Request().Context())); err != nil {
		return nil
	}

	subscriberID, events := h.registry.Subscribe()
	defer h.registry.Unsubscribe(subscriberID)

	for event := range events {
		if err := conn.WriteJSON(event); err != nil {
			return nil
		}
	}
	return nil
}
