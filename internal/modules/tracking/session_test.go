package tracking

import (
	"math"
	"testing"
	"time"

	"technician-tracking/internal/models"
)

// testDestination mirrors the canonical tracking scenario: a work order at
// (30.000, -97.000).
var testDestination = models.Coordinate{Latitude: 30.0, Longitude: -97.0}

// coordAtKm returns a coordinate km kilometers due north of the destination.
func coordAtKm(km float64) models.Coordinate {
	return models.Coordinate{
		Latitude:  testDestination.Latitude + km/111.195,
		Longitude: testDestination.Longitude,
	}
}

// updateAtKm builds an update for tech-1 at the given distance and offset in
// seconds from a fixed base time.
func updateAtKm(km float64, seconds int) models.LocationUpdate {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return models.LocationUpdate{
		TechnicianID: "tech-1",
		Timestamp:    base.Add(time.Duration(seconds) * time.Second),
		Coordinate:   coordAtKm(km),
	}
}

func TestSessionStatusTransitions(t *testing.T) {
	type transition struct {
		from, to models.TechnicianStatus
	}
	var transitions []transition

	s := NewSession("tech-1", testDestination, SessionCallbacks{
		OnStatusChange: func(oldStatus, newStatus models.TechnicianStatus) {
			transitions = append(transitions, transition{from: oldStatus, to: newStatus})
		},
	})

	// en_route, en_route, arriving, arriving, on_site
	for i, km := range []float64{0.6, 0.58, 0.3, 0.28, 0.02} {
		if !s.Apply(updateAtKm(km, i)) {
			t.Fatalf("update %d unexpectedly rejected", i)
		}
	}

	if len(transitions) != 2 {
		t.Fatalf("expected exactly 2 status-change notifications, got %d: %v", len(transitions), transitions)
	}
	if transitions[0] != (transition{from: models.StatusEnRoute, to: models.StatusArriving}) {
		t.Errorf("unexpected first transition: %+v", transitions[0])
	}
	if transitions[1] != (transition{from: models.StatusArriving, to: models.StatusOnSite}) {
		t.Errorf("unexpected second transition: %+v", transitions[1])
	}
	if got := s.Snapshot().LastStatus; got != models.StatusOnSite {
		t.Errorf("expected final status on_site, got %s", got)
	}
}

func TestSessionStatusCanMoveBackward(t *testing.T) {
	var count int
	s := NewSession("tech-1", testDestination, SessionCallbacks{
		OnStatusChange: func(oldStatus, newStatus models.TechnicianStatus) { count++ },
	})

	// Technician gets close, then is redirected away. Moving backward
	// through the states is intentional.
	s.Apply(updateAtKm(0.3, 0))
	s.Apply(updateAtKm(0.8, 1))

	snap := s.Snapshot()
	if snap.LastStatus != models.StatusEnRoute {
		t.Errorf("expected en_route after moving away, got %s", snap.LastStatus)
	}
	if count != 1 {
		t.Errorf("expected one transition (arriving -> en_route), got %d", count)
	}
}

func TestSessionIdempotence(t *testing.T) {
	s := NewSession("tech-1", testDestination, SessionCallbacks{})
	u := updateAtKm(0.6, 0)

	if !s.Apply(u) {
		t.Fatal("expected first apply to succeed")
	}
	if s.Apply(u) {
		t.Error("expected duplicate apply to be rejected")
	}
	if got := len(s.Snapshot().History); got != 1 {
		t.Errorf("expected history of 1 after duplicate apply, got %d", got)
	}
}

func TestSessionOrdering(t *testing.T) {
	// Deliver distinct-timestamp updates in assorted arrival orders; the
	// final location must be the maximum timestamp, and the history must be
	// sorted by timestamp.
	tests := []struct {
		name    string
		seconds []int
	}{
		{name: "in order", seconds: []int{0, 1, 2, 3}},
		{name: "reversed", seconds: []int{3, 2, 1, 0}},
		{name: "interleaved", seconds: []int{1, 3, 0, 2}},
		{name: "newest first", seconds: []int{3, 0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSession("tech-1", testDestination, SessionCallbacks{})
			for _, sec := range tt.seconds {
				s.Apply(updateAtKm(5, sec))
			}

			snap := s.Snapshot()
			if snap.Current == nil {
				t.Fatal("expected a current location")
			}
			wantMax := updateAtKm(5, 3).Timestamp
			if !snap.Current.Timestamp.Equal(wantMax) {
				t.Errorf("expected current at max timestamp %v, got %v", wantMax, snap.Current.Timestamp)
			}
			for i := 1; i < len(snap.History); i++ {
				if !snap.History[i].Timestamp.After(snap.History[i-1].Timestamp) {
					t.Errorf("history not strictly increasing at %d", i)
				}
			}
		})
	}
}

func TestSessionBoundedHistory(t *testing.T) {
	s := NewSession("tech-1", testDestination, SessionCallbacks{})

	for i := 0; i < 150; i++ {
		if !s.Apply(updateAtKm(5, i)) {
			t.Fatalf("update %d unexpectedly rejected", i)
		}
	}

	snap := s.Snapshot()
	if len(snap.History) != 100 {
		t.Fatalf("expected history capped at 100, got %d", len(snap.History))
	}
	// The 100 most recent survive: updates 50..149.
	if want := updateAtKm(5, 50).Timestamp; !snap.History[0].Timestamp.Equal(want) {
		t.Errorf("expected oldest retained update at %v, got %v", want, snap.History[0].Timestamp)
	}
	if want := updateAtKm(5, 149).Timestamp; !snap.History[99].Timestamp.Equal(want) {
		t.Errorf("expected newest update at %v, got %v", want, snap.History[99].Timestamp)
	}
}

func TestSessionETARecompute(t *testing.T) {
	var etaUpdates int
	s := NewSession("tech-1", testDestination, SessionCallbacks{
		OnETAUpdate: func(models.ETAEstimate) { etaUpdates++ },
	})

	// No speed reported: 5 km at the 40 km/h default is 7.5 minutes.
	s.Apply(updateAtKm(5, 0))

	snap := s.Snapshot()
	if snap.ETA == nil {
		t.Fatal("expected an ETA after the first accepted update")
	}
	if math.Abs(snap.ETA.DurationRemainingMin-7.5) > 0.1 {
		t.Errorf("expected ~7.5 minutes remaining, got %f", snap.ETA.DurationRemainingMin)
	}
	if math.Abs(snap.ETA.DistanceRemainingKm-5) > 0.05 {
		t.Errorf("expected ~5 km remaining, got %f", snap.ETA.DistanceRemainingKm)
	}
	if snap.ETA.TrafficCondition != models.TrafficUnknown {
		t.Errorf("expected unknown traffic without a speed, got %s", snap.ETA.TrafficCondition)
	}
	if etaUpdates != 1 {
		t.Errorf("expected one ETA notification, got %d", etaUpdates)
	}

	// A rejected update must not touch the ETA.
	s.Apply(updateAtKm(1, 0))
	if etaUpdates != 1 {
		t.Errorf("expected no ETA notification for a rejected update, got %d", etaUpdates)
	}
}

func TestSessionSetDestination(t *testing.T) {
	var etaUpdates int
	s := NewSession("tech-1", testDestination, SessionCallbacks{
		OnETAUpdate: func(models.ETAEstimate) { etaUpdates++ },
	})

	s.Apply(updateAtKm(5, 0))
	before := s.Snapshot().ETA.DistanceRemainingKm

	// Move the destination 10 km further north; the ETA must be recomputed
	// against the current location synchronously.
	s.SetDestination(coordAtKm(15))

	after := s.Snapshot().ETA.DistanceRemainingKm
	if math.Abs(after-10) > 0.1 {
		t.Errorf("expected ~10 km remaining after destination change, got %f (was %f)", after, before)
	}
	if etaUpdates != 2 {
		t.Errorf("expected a second ETA notification on destination change, got %d", etaUpdates)
	}
}

func TestSessionSnapshotIsACopy(t *testing.T) {
	s := NewSession("tech-1", testDestination, SessionCallbacks{})
	s.Apply(updateAtKm(0.6, 0))
	s.Apply(updateAtKm(0.3, 1))

	snap := s.Snapshot()
	snap.History[0].TechnicianID = "mutated"
	snap.Current.TechnicianID = "mutated"
	snap.ETA.DistanceRemainingKm = -1

	fresh := s.Snapshot()
	if fresh.History[0].TechnicianID != "tech-1" {
		t.Error("mutating a snapshot's history leaked into the session")
	}
	if fresh.Current.TechnicianID != "tech-1" {
		t.Error("mutating a snapshot's current location leaked into the session")
	}
	if fresh.ETA.DistanceRemainingKm < 0 {
		t.Error("mutating a snapshot's ETA leaked into the session")
	}
}
