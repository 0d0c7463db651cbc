package tracking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"technician-tracking/internal/models"
)

// PollSource builds the polling fallback for one technician. The registry
// calls it once per tracked entity so every entity polls independently and a
// slow poll for one technician never blocks the others.
type PollSource func(technicianID string) PollFunc

// fleetEventBuffer is the per-subscriber channel depth. A dispatch board that
// stops reading loses events rather than stalling the update pipeline.
const fleetEventBuffer = 32

type registryEntry struct {
	tracker        *EntityTracker
	technicianName string
	workOrderID    string
}

// Registry is the fleet aggregate behind the dispatch board. It is the sole
// owner and writer of the sessions it holds: one EntityTracker per active
// technician, keyed by technician ID. Readers receive immutable snapshots,
// never session references.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry

	reconciler   *Reconciler
	pollSource   PollSource
	pollInterval time.Duration

	subsMu      sync.RWMutex
	subscribers map[string]chan models.FleetEvent

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger
}

// NewRegistry creates an empty fleet registry. pollInterval is the fleet
// cadence, shorter than the single-entity one because dispatch views tolerate
// more load for fresher fleet-wide data.
func NewRegistry(pollSource PollSource, pollInterval time.Duration, log zerolog.Logger) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		entries:      make(map[string]*registryEntry),
		reconciler:   NewReconciler(),
		pollSource:   pollSource,
		pollInterval: pollInterval,
		subscribers:  make(map[string]chan models.FleetEvent),
		ctx:          ctx,
		cancel:       cancel,
		log:          log,
	}
}

// Upsert routes an update to the technician's tracker, creating one on first
// sight of the technician ID. It reports whether the update was applied.
func (r *Registry) Upsert(technicianID string, update models.LocationUpdate) bool {
	r.mu.Lock()
	entry, ok := r.entries[technicianID]
	if !ok {
		// First sight: no session record yet, so the destination is unknown
		// until Track is called with the persisted session.
		entry = r.createEntryLocked(technicianID, "", "", models.Coordinate{})
	}
	r.mu.Unlock()

	return entry.tracker.Offer(update)
}

// Track registers (or refreshes) a technician from a persisted tracking
// session: display metadata, work order binding and destination.
func (r *Registry) Track(session models.TrackingSession) {
	r.mu.Lock()
	entry, ok := r.entries[session.TechnicianID]
	if !ok {
		r.createEntryLocked(session.TechnicianID, session.TechnicianName, session.WorkOrderID, session.Destination)
		r.mu.Unlock()
		return
	}
	entry.technicianName = session.TechnicianName
	entry.workOrderID = session.WorkOrderID
	tracker := entry.tracker
	r.mu.Unlock()

	tracker.Session().SetDestination(session.Destination)
}

// SnapshotAll returns a snapshot per tracked technician, sorted by technician
// ID so the order is stable regardless of insertion order.
func (r *Registry) SnapshotAll() []models.FleetEntry {
	r.mu.RLock()
	entries := make([]models.FleetEntry, 0, len(r.entries))
	for id, entry := range r.entries {
		entries = append(entries, models.FleetEntry{
			TechnicianID:   id,
			TechnicianName: entry.technicianName,
			WorkOrderID:    entry.workOrderID,
			Snapshot:       entry.tracker.Session().Snapshot(),
		})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TechnicianID < entries[j].TechnicianID
	})
	return entries
}

// FilterActive returns the subset of the fleet that has reported at least one
// position, meaning the session's status machine has a value.
func (r *Registry) FilterActive() []models.FleetEntry {
	all := r.SnapshotAll()
	active := all[:0]
	for _, entry := range all {
		if entry.Snapshot.LastStatus != "" {
			active = append(active, entry)
		}
	}
	return active
}

// Get returns the fleet entry for one technician.
func (r *Registry) Get(technicianID string) (models.FleetEntry, bool) {
	r.mu.RLock()
	entry, ok := r.entries[technicianID]
	if !ok {
		r.mu.RUnlock()
		return models.FleetEntry{}, false
	}
	result := models.FleetEntry{
		TechnicianID:   technicianID,
		TechnicianName: entry.technicianName,
		WorkOrderID:    entry.workOrderID,
		Snapshot:       entry.tracker.Session().Snapshot(),
	}
	r.mu.RUnlock()
	return result, true
}

// Remove stops tracking a technician: the poll goroutine is cancelled, the
// push state forgotten. Failing to stop the tracker here would leak one
// background task per removed entity.
func (r *Registry) Remove(technicianID string) {
	r.mu.Lock()
	entry, ok := r.entries[technicianID]
	if ok {
		delete(r.entries, technicianID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	entry.tracker.Stop()
	r.reconciler.Forget(technicianID)
	r.log.Debug().Str("technician_id", technicianID).Msg("technician removed from fleet registry")
}

// SetDegraded flags one technician's push channel state.
func (r *Registry) SetDegraded(technicianID string, degraded bool) {
	r.reconciler.SetDegraded(technicianID, degraded)
}

// Degraded reports whether a technician is running poll-only.
func (r *Registry) Degraded(technicianID string) bool {
	return r.reconciler.Degraded(technicianID)
}

// Subscribe registers a dispatch board consumer for fleet change events. The
// returned ID is passed to Unsubscribe when the consumer goes away.
func (r *Registry) Subscribe() (string, <-chan models.FleetEvent) {
	id := uuid.New().String()
	ch := make(chan models.FleetEvent, fleetEventBuffer)

	r.subsMu.Lock()
	r.subscribers[id] = ch
	r.subsMu.Unlock()
	return id, ch
}

// Unsubscribe removes a dispatch board consumer and closes its channel.
func (r *Registry) Unsubscribe(id string) {
	r.subsMu.Lock()
	ch, ok := r.subscribers[id]
	if ok {
		delete(r.subscribers, id)
	}
	r.subsMu.Unlock()

	if ok {
		close(ch)
	}
}

// Stop tears down the registry: every tracker's poll loop is cancelled and
// all subscriber channels are closed.
func (r *Registry) Stop() {
	r.cancel()

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*registryEntry)
	r.mu.Unlock()

	for id, entry := range entries {
		entry.tracker.Stop()
		r.reconciler.Forget(id)
	}

	r.subsMu.Lock()
	for id, ch := range r.subscribers {
		delete(r.subscribers, id)
		close(ch)
	}
	r.subsMu.Unlock()
}

// createEntryLocked builds a session plus tracker for a technician and starts
// its poll loop. Callers must hold r.mu.
func (r *Registry) createEntryLocked(technicianID, technicianName, workOrderID string, destination models.Coordinate) *registryEntry {
	session := NewSession(technicianID, destination, SessionCallbacks{
		OnLocationUpdate: func(u models.LocationUpdate) {
			r.publish(models.FleetEvent{
				Type:         models.FleetEventLocation,
				TechnicianID: technicianID,
				Update:       &u,
			})
		},
		OnETAUpdate: func(eta models.ETAEstimate) {
			r.publish(models.FleetEvent{
				Type:         models.FleetEventETA,
				TechnicianID: technicianID,
				ETA:          &eta,
			})
		},
		OnStatusChange: func(oldStatus, newStatus models.TechnicianStatus) {
			r.publish(models.FleetEvent{
				Type:         models.FleetEventStatusChange,
				TechnicianID: technicianID,
				OldStatus:    oldStatus,
				NewStatus:    newStatus,
			})
		},
	})

	tracker := NewEntityTracker(
		technicianID,
		session,
		r.reconciler,
		r.pollSource(technicianID),
		r.pollInterval,
		nil, // fallback: "no data yet"
		r.log,
	)
	tracker.Start(r.ctx)

	entry := &registryEntry{
		tracker:        tracker,
		technicianName: technicianName,
		workOrderID:    workOrderID,
	}
	r.entries[technicianID] = entry
	return entry
}

// publish fans an event out to all subscribers without blocking; a consumer
// that has fallen fleetEventBuffer events behind misses this one.
func (r *Registry) publish(event models.FleetEvent) {
	r.subsMu.RLock()
	defer r.subsMu.RUnlock()
	for _, ch := range r.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
