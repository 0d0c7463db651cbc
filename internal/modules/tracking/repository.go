// Package tracking implements the technician live-tracking engine: transport
// reconciliation, per-technician sessions with ETA, the fleet registry and
// the HTTP/websocket surface that exposes them.
package tracking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"technician-tracking/internal/models"
)

// RepositoryInterface declares the persistence operations the tracking
// service needs: session records and the latest-known-position table that
// serves as the polling fallback source.
type RepositoryInterface interface {
	// CreateSession stores a new tracking session record.
	CreateSession(ctx context.Context, session *models.TrackingSession) error
	// FindSessionByToken returns the session for a public tracking token.
	FindSessionByToken(ctx context.Context, token string) (*models.TrackingSession, error)
	// FindActiveSessionByWorkOrder returns the unexpired session for a work order.
	FindActiveSessionByWorkOrder(ctx context.Context, workOrderID string) (*models.TrackingSession, error)
	// ListActiveSessions returns all unexpired sessions.
	ListActiveSessions(ctx context.Context) ([]*models.TrackingSession, error)
	// SaveLocation upserts the latest known position for a technician.
	SaveLocation(ctx context.Context, update *models.LocationUpdate) error
	// LatestLocation returns the latest known position for a technician, or
	// (nil, nil) when none has been reported yet.
	LatestLocation(ctx context.Context, technicianID string) (*models.LocationUpdate, error)
}

// Repository is a PostgreSQL implementation of RepositoryInterface.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository instance.
func NewRepository(db *pgxpool.Pool) RepositoryInterface {
	return &Repository{db: db}
}

// CreateSession inserts a new tracking session.
func (r *Repository) CreateSession(ctx context.Context, s *models.TrackingSession) error {
	query := `
        INSERT INTO tracking_sessions
            (id, work_order_id, technician_id, technician_name, public_token, destination, expires_at)
        VALUES ($1, $2, $3, $4, $5, ST_SetSRID(ST_MakePoint($6, $7), 4326), $8)
        RETURNING created_at`
	err := r.db.QueryRow(ctx, query,
		s.ID, s.WorkOrderID, s.TechnicianID, s.TechnicianName, s.PublicToken,
		s.Destination.Longitude, s.Destination.Latitude, s.ExpiresAt,
	).Scan(&s.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.CreateSession: %w", err)
	}
	return nil
}

const sessionColumns = `
        id, work_order_id, technician_id, technician_name, public_token,
        COALESCE(ST_Y(destination::geometry), 0) AS lat,
        COALESCE(ST_X(destination::geometry), 0) AS lon,
        created_at, expires_at`

// FindSessionByToken fetches a session by its public token. Returns
// models.ErrNotFound when the token is unknown.
func (r *Repository) FindSessionByToken(ctx context.Context, token string) (*models.TrackingSession, error) {
	query := `SELECT` + sessionColumns + `
        FROM tracking_sessions WHERE public_token = $1`
	return r.scanSession(r.db.QueryRow(ctx, query, token), "repository.FindSessionByToken")
}

// FindActiveSessionByWorkOrder fetches the unexpired session for a work order.
func (r *Repository) FindActiveSessionByWorkOrder(ctx context.Context, workOrderID string) (*models.TrackingSession, error) {
	query := `SELECT` + sessionColumns + `
        FROM tracking_sessions
        WHERE work_order_id = $1 AND expires_at > now()
        ORDER BY created_at DESC
        LIMIT 1`
	return r.scanSession(r.db.QueryRow(ctx, query, workOrderID), "repository.FindActiveSessionByWorkOrder")
}

// ListActiveSessions returns every unexpired session, newest first.
func (r *Repository) ListActiveSessions(ctx context.Context) ([]*models.TrackingSession, error) {
	query := `SELECT` + sessionColumns + `
        FROM tracking_sessions
        WHERE expires_at > now()
        ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository.ListActiveSessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.TrackingSession
	for rows.Next() {
		s := &models.TrackingSession{}
		if err := rows.Scan(
			&s.ID, &s.WorkOrderID, &s.TechnicianID, &s.TechnicianName, &s.PublicToken,
			&s.Destination.Latitude, &s.Destination.Longitude, &s.CreatedAt, &s.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("repository.ListActiveSessions scan: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ListActiveSessions rows: %w", err)
	}
	return sessions, nil
}

// SaveLocation upserts the technician's latest reported position. Only the
// newest row is kept; history lives in the in-memory session, not here.
func (r *Repository) SaveLocation(ctx context.Context, u *models.LocationUpdate) error {
	query := `
        INSERT INTO technician_locations
            (technician_id, location, heading_degrees, speed_kmh, recorded_at)
        VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326), $4, $5, $6)
        ON CONFLICT (technician_id) DO UPDATE
        SET location = EXCLUDED.location,
            heading_degrees = EXCLUDED.heading_degrees,
            speed_kmh = EXCLUDED.speed_kmh,
            recorded_at = EXCLUDED.recorded_at
        WHERE technician_locations.recorded_at < EXCLUDED.recorded_at`
	_, err := r.db.Exec(ctx, query,
		u.TechnicianID, u.Coordinate.Longitude, u.Coordinate.Latitude,
		u.HeadingDegrees, u.SpeedKmh, u.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("repository.SaveLocation: %w", err)
	}
	return nil
}

// LatestLocation reads the technician's last persisted position. A technician
// that has never reported yields (nil, nil), the poll "no data yet" value.
func (r *Repository) LatestLocation(ctx context.Context, technicianID string) (*models.LocationUpdate, error) {
	query := `
        SELECT technician_id,
               COALESCE(ST_Y(location::geometry), 0) AS lat,
               COALESCE(ST_X(location::geometry), 0) AS lon,
               heading_degrees, speed_kmh, recorded_at
        FROM technician_locations
        WHERE technician_id = $1`
	u := &models.LocationUpdate{}
	err := r.db.QueryRow(ctx, query, technicianID).Scan(
		&u.TechnicianID, &u.Coordinate.Latitude, &u.Coordinate.Longitude,
		&u.HeadingDegrees, &u.SpeedKmh, &u.Timestamp,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository.LatestLocation: %w", err)
	}
	return u, nil
}

// scanSession maps one session row, translating pgx.ErrNoRows to
// models.ErrNotFound.
func (r *Repository) scanSession(row pgx.Row, op string) (*models.TrackingSession, error) {
	s := &models.TrackingSession{}
	err := row.Scan(
		&s.ID, &s.WorkOrderID, &s.TechnicianID, &s.TechnicianName, &s.PublicToken,
		&s.Destination.Latitude, &s.Destination.Longitude, &s.CreatedAt, &s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}
