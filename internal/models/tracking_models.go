// Package models defines the data structures shared across the technician
// tracking service: location updates, ETA estimates, session snapshots and
// the request/response shapes of the tracking API.
package models

import "time"

// TechnicianStatus is the arrival state of a technician relative to the
// destination of their active work order.
type TechnicianStatus string

const (
	StatusEnRoute  TechnicianStatus = "en_route"
	StatusArriving TechnicianStatus = "arriving"
	StatusOnSite   TechnicianStatus = "on_site"
)

// Traffic is a coarse traffic classification displayed alongside an ETA.
type Traffic string

const (
	TrafficUnknown  Traffic = "unknown"
	TrafficLight    Traffic = "light"
	TrafficModerate Traffic = "moderate"
	TrafficHeavy    Traffic = "heavy"
)

// Coordinate is a WGS84 position in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" validate:"min=-90,max=90"`
	Longitude float64 `json:"longitude" validate:"min=-180,max=180"`
}

// LocationUpdate is a single position report for one technician, produced by
// either the push or the polling transport. It is immutable once constructed
// and identified for dedup purposes by (TechnicianID, Timestamp).
type LocationUpdate struct {
	TechnicianID   string           `json:"technician_id" validate:"required"`
	Timestamp      time.Time        `json:"timestamp" validate:"required"`
	Coordinate     Coordinate       `json:"coordinate"`
	HeadingDegrees *float64         `json:"heading_degrees,omitempty" validate:"omitempty,min=0,max=360"`
	SpeedKmh       *float64         `json:"speed_kmh,omitempty" validate:"omitempty,min=0"`
	Status         TechnicianStatus `json:"status,omitempty" validate:"omitempty,oneof=en_route arriving on_site"`
}

// ETAEstimate is the arrival estimate derived from the most recent accepted
// location update. It is recomputed synchronously on every accepted update
// or destination change and never outlives the session that produced it.
type ETAEstimate struct {
	EstimatedArrival     time.Time `json:"estimated_arrival"`
	DistanceRemainingKm  float64   `json:"distance_remaining_km"`
	DurationRemainingMin float64   `json:"duration_remaining_min"`
	TrafficCondition     Traffic   `json:"traffic_condition"`
	ComputedAt           time.Time `json:"computed_at"`
}

// TrackingSnapshot is an immutable point-in-time copy of one session's state.
// Consumers receive snapshots, never live session references, so they cannot
// mutate session-internal state.
type TrackingSnapshot struct {
	TechnicianID string           `json:"technician_id"`
	Current      *LocationUpdate  `json:"current,omitempty"`
	ETA          *ETAEstimate     `json:"eta,omitempty"`
	History      []LocationUpdate `json:"history,omitempty"`
	LastStatus   TechnicianStatus `json:"last_status,omitempty"`
	Destination  Coordinate       `json:"destination"`
}

// TrackingSession is a persisted tracking session binding a technician to a
// work order, a destination and a customer-facing public token.
type TrackingSession struct {
	ID             string     `json:"id"`
	WorkOrderID    string     `json:"work_order_id"`
	TechnicianID   string     `json:"technician_id"`
	TechnicianName string     `json:"technician_name"`
	PublicToken    string     `json:"public_token"`
	Destination    Coordinate `json:"destination"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

// TrackingBundle is the customer- and dispatcher-facing view of one session.
// Available is false when the token or work order resolves to nothing, which
// is a normal outcome, not an error.
type TrackingBundle struct {
	Available            bool              `json:"available"`
	WorkOrderID          string            `json:"work_order_id,omitempty"`
	TechnicianID         string            `json:"technician_id,omitempty"`
	TechnicianName       string            `json:"technician_name,omitempty"`
	Snapshot             *TrackingSnapshot `json:"snapshot,omitempty"`
	ArrivingSoon         bool              `json:"arriving_soon"`
	ConnectivityDegraded bool              `json:"connectivity_degraded"`
}

// FleetEntry is one technician's row on the dispatch board.
type FleetEntry struct {
	TechnicianID   string           `json:"technician_id"`
	TechnicianName string           `json:"technician_name"`
	WorkOrderID    string           `json:"work_order_id,omitempty"`
	Snapshot       TrackingSnapshot `json:"snapshot"`
}

// CreateSessionRequest is the dispatcher input for opening a tracking session.
type CreateSessionRequest struct {
	WorkOrderID    string     `json:"work_order_id" validate:"required"`
	TechnicianID   string     `json:"technician_id" validate:"required"`
	TechnicianName string     `json:"technician_name"`
	Destination    Coordinate `json:"destination"`
	TTLHours       int        `json:"ttl_hours" validate:"omitempty,min=1,max=168"`
}

// LocationReportRequest is the REST fallback body technician apps post when
// they cannot hold a websocket open. Timestamp defaults to the server clock.
type LocationReportRequest struct {
	Latitude       float64    `json:"latitude" validate:"min=-90,max=90"`
	Longitude      float64    `json:"longitude" validate:"min=-180,max=180"`
	HeadingDegrees *float64   `json:"heading_degrees,omitempty" validate:"omitempty,min=0,max=360"`
	SpeedKmh       *float64   `json:"speed_kmh,omitempty" validate:"omitempty,min=0"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// PushTypeTechnicianLocation is the only frame type the technician push feed
// accepts; anything else is a malformed payload.
const PushTypeTechnicianLocation = "technician_location"

// PushMessage is the envelope technician apps send over the push websocket.
type PushMessage struct {
	Type    string         `json:"type" validate:"required,eq=technician_location"`
	Payload LocationUpdate `json:"payload"`
}

// Fleet event types streamed to the dispatch board.
const (
	FleetEventLocation     = "location_update"
	FleetEventETA          = "eta_update"
	FleetEventStatusChange = "status_change"
)

// FleetEvent is a change notification fanned out to dispatch board consumers.
type FleetEvent struct {
	Type         string           `json:"type"`
	TechnicianID string           `json:"technician_id"`
	Update       *LocationUpdate  `json:"update,omitempty"`
	ETA          *ETAEstimate     `json:"eta,omitempty"`
	OldStatus    TechnicianStatus `json:"old_status,omitempty"`
	NewStatus    TechnicianStatus `json:"new_status,omitempty"`
}

// ErrorResponse is the generic JSON error body returned by handlers.
type ErrorResponse struct {
	Message string `json:"message"`
}
