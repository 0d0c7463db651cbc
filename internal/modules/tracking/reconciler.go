package tracking

import (
	"sync"
	"time"

	"technician-tracking/internal/models"
)

// Reconciler merges the push and polling transports into one canonical,
// deduplicated update sequence per technician. An update is accepted iff its
// timestamp is strictly newer than the last accepted timestamp for that
// technician; a replayed (technician, timestamp) pair can never be strictly
// newer than itself, so the dedup rule collapses into the same check. This
// makes Accept idempotent under replay and immune to the two transports
// racing to deliver the same logical update.
//
// The reconciler is transport-agnostic: reconnects and backoff belong to the
// transports, and a degraded push channel only flips an advisory flag here.
type Reconciler struct {
	mu          sync.Mutex
	lastApplied map[string]time.Time
	degraded    map[string]bool
}

// NewReconciler creates an empty reconciler.
func NewReconciler() *Reconciler {
	return &Reconciler{
		lastApplied: make(map[string]time.Time),
		degraded:    make(map[string]bool),
	}
}

// Accept reports whether the update should be applied. Stale, duplicate and
// out-of-order updates return false; that is a normal filtering outcome, not
// an error.
func (r *Reconciler) Accept(u models.LocationUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	last, seen := r.lastApplied[u.TechnicianID]
	if seen && !u.Timestamp.After(last) {
		return false
	}
	r.lastApplied[u.TechnicianID] = u.Timestamp
	return true
}

// SetDegraded records that the push channel for a technician is down and the
// entity is running purely off the polling cadence. No error is surfaced to
// downstream consumers.
func (r *Reconciler) SetDegraded(technicianID string, degraded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if degraded {
		r.degraded[technicianID] = true
	} else {
		delete(r.degraded, technicianID)
	}
}

// Degraded reports whether a technician's push channel is currently down.
func (r *Reconciler) Degraded(technicianID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded[technicianID]
}

// Forget drops all reconciliation state for a technician. Called when the
// entity is removed from tracking so a future session starts clean.
func (r *Reconciler) Forget(technicianID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lastApplied, technicianID)
	delete(r.degraded, technicianID)
}
