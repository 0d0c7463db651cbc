package tracking

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"technician-tracking/internal/models"
)

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func newTestTracker(poll PollFunc, fallback *models.LocationUpdate) *EntityTracker {
	session := NewSession("tech-1", testDestination, SessionCallbacks{})
	return NewEntityTracker("tech-1", session, NewReconciler(), poll, 5*time.Millisecond, fallback, zerolog.Nop())
}

func TestTrackerAppliesPolledUpdates(t *testing.T) {
	var calls atomic.Int64
	poll := func(ctx context.Context) (*models.LocationUpdate, error) {
		n := calls.Add(1)
		u := updateAtKm(5, int(n))
		return &u, nil
	}

	tr := newTestTracker(poll, nil)
	tr.Start(context.Background())
	defer tr.Stop()

	waitFor(t, func() bool { return tr.Session().Snapshot().Current != nil })
}

func TestTrackerPollFailureSubstitutesFallback(t *testing.T) {
	fallback := updateAtKm(5, 0)
	poll := func(ctx context.Context) (*models.LocationUpdate, error) {
		return nil, errors.New("backend returned 500")
	}

	tr := newTestTracker(poll, &fallback)
	tr.Start(context.Background())
	defer tr.Stop()

	// The consumer observes the supplied fallback value, not an error.
	waitFor(t, func() bool {
		snap := tr.Session().Snapshot()
		return snap.Current != nil && snap.Current.Timestamp.Equal(fallback.Timestamp)
	})

	// And the fallback is deduplicated, not re-applied every tick.
	time.Sleep(25 * time.Millisecond)
	if got := len(tr.Session().Snapshot().History); got != 1 {
		t.Errorf("expected fallback applied once, history has %d entries", got)
	}
}

func TestTrackerPollFailureWithoutFallbackIsSilent(t *testing.T) {
	poll := func(ctx context.Context) (*models.LocationUpdate, error) {
		return nil, errors.New("tracking endpoint not implemented yet")
	}

	tr := newTestTracker(poll, nil)
	tr.Start(context.Background())
	defer tr.Stop()

	time.Sleep(25 * time.Millisecond)
	if snap := tr.Session().Snapshot(); snap.Current != nil {
		t.Error("expected no location when the poll source keeps failing with no fallback")
	}
}

func TestTrackerStopCancelsPolling(t *testing.T) {
	var calls atomic.Int64
	poll := func(ctx context.Context) (*models.LocationUpdate, error) {
		calls.Add(1)
		return nil, nil
	}

	tr := newTestTracker(poll, nil)
	tr.Start(context.Background())

	waitFor(t, func() bool { return calls.Load() > 0 })
	tr.Stop()

	after := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != after {
		t.Error("expected polling to stop after Stop")
	}

	// Stop is idempotent.
	tr.Stop()
}

func TestTrackerStopBeforeStart(t *testing.T) {
	var calls atomic.Int64
	poll := func(ctx context.Context) (*models.LocationUpdate, error) {
		calls.Add(1)
		return nil, nil
	}

	tr := newTestTracker(poll, nil)
	tr.Stop()

	// A Start landing after Stop must not launch the loop.
	tr.Start(context.Background())
	time.Sleep(25 * time.Millisecond)
	if calls.Load() != 0 {
		t.Error("expected Start after Stop to be a no-op")
	}
	tr.Stop()
}

func TestTrackerOfferSerializesReconcileAndApply(t *testing.T) {
	tr := newTestTracker(func(ctx context.Context) (*models.LocationUpdate, error) { return nil, nil }, nil)

	u := updateAtKm(0.3, 0)
	if !tr.Offer(u) {
		t.Fatal("expected first offer to apply")
	}
	if tr.Offer(u) {
		t.Error("expected duplicate offer to be dropped")
	}
	if tr.Offer(updateAtKm(0.6, -1)) {
		t.Error("expected older offer to be dropped")
	}
	if !tr.Offer(updateAtKm(0.02, 1)) {
		t.Error("expected newer offer to apply")
	}

	snap := tr.Session().Snapshot()
	if snap.LastStatus != models.StatusOnSite {
		t.Errorf("expected on_site after the newest offer, got %s", snap.LastStatus)
	}
	if len(snap.History) != 2 {
		t.Errorf("expected 2 applied updates, got %d", len(snap.History))
	}
}

func TestTrackerDegradedFlag(t *testing.T) {
	tr := newTestTracker(func(ctx context.Context) (*models.LocationUpdate, error) { return nil, nil }, nil)

	if tr.Degraded() {
		t.Error("expected tracker to start non-degraded")
	}
	tr.SetDegraded(true)
	if !tr.Degraded() {
		t.Error("expected degraded after push disconnect")
	}
	tr.SetDegraded(false)
	if tr.Degraded() {
		t.Error("expected degraded cleared after push reconnect")
	}
}
