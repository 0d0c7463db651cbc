package tracking

import (
	"sync"
	"time"

	"technician-tracking/internal/models"
	"technician-tracking/pkg/geo"
)

// historyCapacity bounds the per-session location history; the oldest entry
// is evicted first.
const historyCapacity = 100

// SessionCallbacks are the side effects a session exposes to its collaborator
// layer. They fire synchronously as part of Apply: location and ETA at most
// once per accepted update, status at most once per distinct consecutive
// status value. Handlers are passed explicitly at construction, never
// captured implicitly.
type SessionCallbacks struct {
	OnLocationUpdate func(models.LocationUpdate)
	OnETAUpdate      func(models.ETAEstimate)
	OnStatusChange   func(oldStatus, newStatus models.TechnicianStatus)
}

// Session owns the live tracking state for one technician/work-order pair:
// current location, bounded history, ETA and the last externally observed
// status. Apply is serialized internally, and consumers only ever receive
// snapshots, so session state cannot be mutated from outside.
type Session struct {
	mu           sync.Mutex
	technicianID string
	destination  models.Coordinate
	current      *models.LocationUpdate
	history      []models.LocationUpdate
	eta          *models.ETAEstimate
	lastStatus   models.TechnicianStatus
	callbacks    SessionCallbacks
}

// NewSession creates a session for one technician headed to destination.
func NewSession(technicianID string, destination models.Coordinate, callbacks SessionCallbacks) *Session {
	return &Session{
		technicianID: technicianID,
		destination:  destination,
		callbacks:    callbacks,
	}
}

// Apply folds one location update into the session. It returns false and
// leaves the session unchanged when the update is not strictly newer than the
// current one. On acceptance it appends to the bounded history, replaces the
// current location, recomputes the ETA, and fires the callbacks. The status
// stored on the update is re-derived from the coordinate and the destination;
// the transport-claimed status is not trusted.
func (s *Session) Apply(update models.LocationUpdate) bool {
	s.mu.Lock()

	if s.current != nil && !update.Timestamp.After(s.current.Timestamp) {
		s.mu.Unlock()
		return false
	}

	update.Status = geo.DeriveStatus(update.Coordinate, s.destination)

	s.history = append(s.history, update)
	if len(s.history) > historyCapacity {
		s.history = s.history[1:]
	}
	s.current = &update

	eta := s.computeETALocked(update)
	s.eta = &eta

	oldStatus := s.lastStatus
	statusChanged := update.Status != oldStatus
	if statusChanged {
		s.lastStatus = update.Status
	}
	cb := s.callbacks
	s.mu.Unlock()

	// The update counts as applied only once the ETA has been recomputed;
	// callbacks run after the state is settled so a handler reading a
	// snapshot sees the new location and ETA together.
	if cb.OnLocationUpdate != nil {
		cb.OnLocationUpdate(update)
	}
	if cb.OnETAUpdate != nil {
		cb.OnETAUpdate(eta)
	}
	// The very first status observation is not a transition; notifications
	// fire only when one observed status gives way to another.
	if statusChanged && oldStatus != "" && cb.OnStatusChange != nil {
		cb.OnStatusChange(oldStatus, update.Status)
	}
	return true
}

// SetDestination points the session at a new destination and recomputes the
// ETA against the current location, if any. The status machine is not
// re-evaluated here; it advances with the next incoming coordinate.
func (s *Session) SetDestination(destination models.Coordinate) {
	s.mu.Lock()
	s.destination = destination

	if s.current == nil {
		s.mu.Unlock()
		return
	}
	eta := s.computeETALocked(*s.current)
	s.eta = &eta
	cb := s.callbacks
	s.mu.Unlock()

	if cb.OnETAUpdate != nil {
		cb.OnETAUpdate(eta)
	}
}

// Snapshot returns an immutable copy of the session state. The history slice
// is copied, so callers can hold or mutate the snapshot freely.
func (s *Session) Snapshot() models.TrackingSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := models.TrackingSnapshot{
		TechnicianID: s.technicianID,
		LastStatus:   s.lastStatus,
		Destination:  s.destination,
	}
	if s.current != nil {
		current := *s.current
		snap.Current = &current
	}
	if s.eta != nil {
		eta := *s.eta
		snap.ETA = &eta
	}
	if len(s.history) > 0 {
		snap.History = make([]models.LocationUpdate, len(s.history))
		copy(snap.History, s.history)
	}
	return snap
}

// computeETALocked derives a fresh estimate from one update. Callers must
// hold s.mu.
func (s *Session) computeETALocked(update models.LocationUpdate) models.ETAEstimate {
	distanceKm := geo.Distance(update.Coordinate, s.destination)
	speed := 0.0
	if update.SpeedKmh != nil {
		speed = *update.SpeedKmh
	}
	minutes := geo.EstimateETA(distanceKm, speed)

	now := time.Now()
	return models.ETAEstimate{
		EstimatedArrival:     now.Add(time.Duration(minutes * float64(time.Minute))),
		DistanceRemainingKm:  distanceKm,
		DurationRemainingMin: minutes,
		TrafficCondition:     geo.TrafficCondition(update.SpeedKmh),
		ComputedAt:           now,
	}
}
