package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"technician-tracking/internal/models"
)

// PollFunc fetches the latest known position for one technician from the
// fallback source. Returning (nil, nil) means no data yet; an error means the
// source itself failed and the tracker substitutes its fallback value instead
// of propagating the failure.
type PollFunc func(ctx context.Context) (*models.LocationUpdate, error)

// EntityTracker binds one session to the transport reconciler and the polling
// fallback. All updates for the entity, whether pushed or polled, funnel
// through Offer, which applies the reconcile-then-apply pair as one unit, so
// the externally observable location/status sequence is exactly the applied
// updates in increasing timestamp order.
//
// Each tracker polls on its own goroutine so a blocking poll for one
// technician never stalls push updates for another. Stop cancels that
// goroutine; leaking it is the classic bug this type exists to prevent.
type EntityTracker struct {
	mu           sync.Mutex
	technicianID string
	session      *Session
	reconciler   *Reconciler
	poll         PollFunc
	pollInterval time.Duration
	fallback     *models.LocationUpdate
	log          zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewEntityTracker wires a session to its update sources. fallback is the
// caller-supplied value substituted when the poll source fails; nil means
// "no data yet" and is simply skipped.
func NewEntityTracker(
	technicianID string,
	session *Session,
	reconciler *Reconciler,
	poll PollFunc,
	pollInterval time.Duration,
	fallback *models.LocationUpdate,
	log zerolog.Logger,
) *EntityTracker {
	return &EntityTracker{
		technicianID: technicianID,
		session:      session,
		reconciler:   reconciler,
		poll:         poll,
		pollInterval: pollInterval,
		fallback:     fallback,
		log:          log.With().Str("technician_id", technicianID).Logger(),
		done:         make(chan struct{}),
	}
}

// Offer routes one update through the reconciler into the session and reports
// whether it was applied. Safe for concurrent use; the reconcile check and
// the session apply run under one lock so two racing transports cannot
// interleave between them.
func (t *EntityTracker) Offer(update models.LocationUpdate) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.reconciler.Accept(update) {
		return false
	}
	return t.session.Apply(update)
}

// Start launches the polling loop. Calling Start more than once is a no-op.
func (t *EntityTracker) Start(ctx context.Context) {
	t.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		t.cancel = cancel
		go t.run(ctx)
	})
}

// Stop cancels the polling loop and waits for it to exit. Idempotent, and
// consumes startOnce so a Start arriving after Stop cannot launch the loop
// against an already-closed done channel.
func (t *EntityTracker) Stop() {
	t.stopOnce.Do(func() {
		t.startOnce.Do(func() { close(t.done) })
		if t.cancel != nil {
			t.cancel()
			<-t.done
		}
	})
}

// Session returns the tracker's session for snapshot reads.
func (t *EntityTracker) Session() *Session {
	return t.session
}

// SetDegraded flags the push channel state for this entity.
func (t *EntityTracker) SetDegraded(degraded bool) {
	t.reconciler.SetDegraded(t.technicianID, degraded)
}

// Degraded reports whether the entity is running on the poll fallback alone.
func (t *EntityTracker) Degraded() bool {
	return t.reconciler.Degraded(t.technicianID)
}

func (t *EntityTracker) run(ctx context.Context) {
	defer close(t.done)

	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.pollOnce(ctx)
		}
	}
}

// pollOnce pulls the latest known state from the fallback source. Poll
// failures are absorbed here: the tracker substitutes the fallback value and
// keeps going, so a missing or broken backend never surfaces an error to
// downstream consumers.
func (t *EntityTracker) pollOnce(ctx context.Context) {
	update, err := t.poll(ctx)
	if err != nil {
		t.log.Debug().Err(err).Msg("poll failed, substituting fallback value")
		update = t.fallback
	}
	if update == nil {
		return
	}
	t.Offer(*update)
}
