package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"technician-tracking/internal/models"
	"technician-tracking/pkg/utils"
)

// ServiceInterface defines the tracking operations exposed to the HTTP layer.
//
// The resolve methods are fail-soft by contract: an unknown token, an expired
// session or a backend failure all produce an "unavailable" bundle, never an
// error, so a consumer page can always render something.
type ServiceInterface interface {
	CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.TrackingSession, error)
	ResolvePublic(ctx context.Context, token string) *models.TrackingBundle
	ResolveWorkOrder(ctx context.Context, workOrderID string) *models.TrackingBundle
	ActiveFleet(ctx context.Context) []models.FleetEntry
	ReportLocation(ctx context.Context, technicianID string, req models.LocationReportRequest) error
	HandlePush(message models.PushMessage) error
}

// ServiceConfig carries the tracking cadence knobs.
type ServiceConfig struct {
	// RefreshInterval is the single-entity consumer refresh cadence. Resolved
	// bundles are cached for half of it, so a consumer polling on this
	// cadence always gets fresh-enough data without hitting the store twice.
	RefreshInterval time.Duration
	// ArrivingSoonMinutes is the display threshold for the arriving-soon flag.
	ArrivingSoonMinutes float64
	// SessionTTL is the default lifetime of a tracking session.
	SessionTTL time.Duration
}

type cachedBundle struct {
	bundle    *models.TrackingBundle
	fetchedAt time.Time
}

// Service implements the tracking business logic on top of the repository
// and the fleet registry.
type Service struct {
	repo     RepositoryInterface
	registry *Registry
	validate *validator.Validate
	cfg      ServiceConfig
	log      zerolog.Logger

	cacheMu sync.RWMutex
	cache   map[string]cachedBundle
}

// NewService creates a tracking service. Zero config fields get defaults:
// 30 s refresh, 10 min arriving-soon, 24 h session TTL.
func NewService(repo RepositoryInterface, registry *Registry, cfg ServiceConfig, log zerolog.Logger) *Service {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.ArrivingSoonMinutes <= 0 {
		cfg.ArrivingSoonMinutes = 10
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &Service{
		repo:     repo,
		registry: registry,
		validate: validator.New(),
		cfg:      cfg,
		log:      log,
		cache:    make(map[string]cachedBundle),
	}
}

// CreateSession opens a tracking session for a work order: one row, one
// public token, one registry entry. A work order with an unexpired session
// gets models.ErrConflict.
func (s *Service) CreateSession(ctx context.Context, req models.CreateSessionRequest) (*models.TrackingSession, error) {
	existing, err := s.repo.FindActiveSessionByWorkOrder(ctx, req.WorkOrderID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("service.CreateSession: %w", err)
	}
	if existing != nil {
		return nil, models.ErrConflict
	}

	token, err := utils.GeneratePublicToken(16)
	if err != nil {
		return nil, fmt.Errorf("service.CreateSession: %w", err)
	}

	ttl := s.cfg.SessionTTL
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
	}
	session := &models.TrackingSession{
		ID:             uuid.New().String(),
		WorkOrderID:    req.WorkOrderID,
		TechnicianID:   req.TechnicianID,
		TechnicianName: req.TechnicianName,
		PublicToken:    token,
		Destination:    req.Destination,
		ExpiresAt:      time.Now().Add(ttl),
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("service.CreateSession: %w", err)
	}

	s.registry.Track(*session)
	s.log.Info().
		Str("work_order_id", session.WorkOrderID).
		Str("technician_id", session.TechnicianID).
		Msg("tracking session created")
	return session, nil
}

// ResolvePublic returns the customer-facing bundle for a public token.
func (s *Service) ResolvePublic(ctx context.Context, token string) *models.TrackingBundle {
	key := "token:" + token
	if bundle, ok := s.cachedBundle(key); ok {
		return bundle
	}
	session, err := s.repo.FindSessionByToken(ctx, token)
	bundle := s.buildBundle(ctx, session, err)
	s.storeBundle(key, bundle)
	return bundle
}

// ResolveWorkOrder returns the dispatch detail bundle for a work order.
func (s *Service) ResolveWorkOrder(ctx context.Context, workOrderID string) *models.TrackingBundle {
	key := "wo:" + workOrderID
	if bundle, ok := s.cachedBundle(key); ok {
		return bundle
	}
	session, err := s.repo.FindActiveSessionByWorkOrder(ctx, workOrderID)
	bundle := s.buildBundle(ctx, session, err)
	s.storeBundle(key, bundle)
	return bundle
}

// ActiveFleet returns the dispatch board view. Sessions persisted by another
// instance are hydrated into the registry first, and registry entries whose
// session has expired (or never existed) are torn down so their poll loops
// stop and they fall off the board. A store failure skips the sweep and
// degrades to whatever the registry already tracks.
func (s *Service) ActiveFleet(ctx context.Context) []models.FleetEntry {
	sessions, err := s.repo.ListActiveSessions(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("listing active sessions failed, serving registry state")
		return s.registry.FilterActive()
	}

	live := make(map[string]struct{}, len(sessions))
	for _, session := range sessions {
		live[session.TechnicianID] = struct{}{}
		if _, ok := s.registry.Get(session.TechnicianID); !ok {
			s.registry.Track(*session)
		}
	}
	for _, entry := range s.registry.SnapshotAll() {
		if _, ok := live[entry.TechnicianID]; !ok {
			s.registry.Remove(entry.TechnicianID)
		}
	}
	return s.registry.FilterActive()
}

// ReportLocation ingests a REST fallback position report: validated,
// persisted to the latest-location table where the per-entity pollers pick
// it up. A payload-shape violation is the only error treated as fatal to
// the update.
func (s *Service) ReportLocation(ctx context.Context, technicianID string, req models.LocationReportRequest) error {
	timestamp := time.Now().UTC()
	if req.Timestamp != nil {
		timestamp = req.Timestamp.UTC()
	}
	update := &models.LocationUpdate{
		TechnicianID:   technicianID,
		Timestamp:      timestamp,
		Coordinate:     models.Coordinate{Latitude: req.Latitude, Longitude: req.Longitude},
		HeadingDegrees: req.HeadingDegrees,
		SpeedKmh:       req.SpeedKmh,
	}
	if err := s.repo.SaveLocation(ctx, update); err != nil {
		return fmt.Errorf("service.ReportLocation: %w", err)
	}
	return nil
}

// HandlePush routes one push frame into the fleet registry. Malformed frames
// are rejected with models.ErrMalformedUpdate; stale or duplicate payloads
// are dropped silently by the reconciler and are not an error.
func (s *Service) HandlePush(message models.PushMessage) error {
	if err := s.validate.Struct(message); err != nil {
		return fmt.Errorf("%w: %v", models.ErrMalformedUpdate, err)
	}
	s.registry.Upsert(message.Payload.TechnicianID, message.Payload)
	return nil
}

// buildBundle assembles a consumer bundle from a session lookup result. Every
// failure path collapses into the "unavailable" bundle.
func (s *Service) buildBundle(ctx context.Context, session *models.TrackingSession, err error) *models.TrackingBundle {
	unavailable := &models.TrackingBundle{Available: false}
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			s.log.Warn().Err(err).Msg("session lookup failed, serving unavailable bundle")
		}
		return unavailable
	}
	if time.Now().After(session.ExpiresAt) {
		return unavailable
	}

	if _, ok := s.registry.Get(session.TechnicianID); !ok {
		s.registry.Track(*session)
	}
	entry, _ := s.registry.Get(session.TechnicianID)

	// A freshly tracked technician has no position until the next poll tick;
	// warm it from the latest persisted report so the first page load is not
	// empty. Failures here fall back to whatever the session holds.
	if entry.Snapshot.Current == nil {
		if latest, lookupErr := s.repo.LatestLocation(ctx, session.TechnicianID); lookupErr == nil && latest != nil {
			s.registry.Upsert(session.TechnicianID, *latest)
			entry, _ = s.registry.Get(session.TechnicianID)
		}
	}

	snapshot := entry.Snapshot
	arrivingSoon := snapshot.ETA != nil && snapshot.Current != nil &&
		snapshot.ETA.DurationRemainingMin <= s.cfg.ArrivingSoonMinutes

	return &models.TrackingBundle{
		Available:            true,
		WorkOrderID:          session.WorkOrderID,
		TechnicianID:         session.TechnicianID,
		TechnicianName:       session.TechnicianName,
		Snapshot:             &snapshot,
		ArrivingSoon:         arrivingSoon,
		ConnectivityDegraded: s.registry.Degraded(session.TechnicianID),
	}
}

// cachedBundle returns a bundle cached within the staleness threshold, which
// is half the consumer refresh interval.
func (s *Service) cachedBundle(key string) (*models.TrackingBundle, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	entry, ok := s.cache[key]
	if !ok || time.Since(entry.fetchedAt) > s.cfg.RefreshInterval/2 {
		return nil, false
	}
	return entry.bundle, true
}

func (s *Service) storeBundle(key string, bundle *models.TrackingBundle) {
	s.cacheMu.Lock()
	s.cache[key] = cachedBundle{bundle: bundle, fetchedAt: time.Now()}
	s.cacheMu.Unlock()
}
