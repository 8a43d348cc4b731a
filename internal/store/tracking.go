package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/transcaribe/tracking_core/internal/models"
)

// StartSession creates an active tracking session for the rider, or updates
// the selected route of the one already active. Returns the session and
// whether it was newly created.
func (s *Store) StartSession(ctx context.Context, userID int64, selectedRouteID *int64) (models.TrackingSession, bool, error) {
	// Session-mutating endpoints linearize per-rider transitions with a
	// single-row lock.
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.TrackingSession{}, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	session, err := activeSessionForUpdate(ctx, tx, userID)
	created := false
	switch {
	case err == nil:
		_, err = tx.Exec(ctx, `
			UPDATE tracking_session SET selected_route_id = $1 WHERE id = $2
		`, selectedRouteID, session.ID)
		if err != nil {
			return models.TrackingSession{}, false, fmt.Errorf("failed to update session: %w", err)
		}
		session.SelectedRouteID = selectedRouteID
	case errors.Is(err, ErrNotFound):
		created = true
		err = tx.QueryRow(ctx, `
			INSERT INTO tracking_session (user_id, selected_route_id, is_on_bus, status)
			VALUES ($1, $2, false, 'active')
			RETURNING id, start_time
		`, userID, selectedRouteID).Scan(&session.ID, &session.StartTime)
		if err != nil {
			return models.TrackingSession{}, false, fmt.Errorf("failed to insert session: %w", err)
		}
		session.UserID = userID
		session.SelectedRouteID = selectedRouteID
		session.Status = models.SessionActive
	default:
		return models.TrackingSession{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return models.TrackingSession{}, false, fmt.Errorf("failed to commit session: %w", err)
	}
	return session, created, nil
}

// SetOnBus marks the rider's active session as aboard the reported route.
// Returns ErrPrecondition when no active session exists and ErrNotFound when
// the route id is unknown.
func (s *Store) SetOnBus(ctx context.Context, userID, reportedRouteID int64, isOnBus bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	session, err := activeSessionForUpdate(ctx, tx, userID)
	if errors.Is(err, ErrNotFound) {
		return ErrPrecondition
	}
	if err != nil {
		return err
	}

	var routeExists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM route WHERE id = $1)`, reportedRouteID).Scan(&routeExists); err != nil {
		return fmt.Errorf("failed to check route: %w", err)
	}
	if !routeExists {
		return ErrNotFound
	}

	if isOnBus {
		_, err = tx.Exec(ctx, `
			UPDATE tracking_session SET is_on_bus = true, reported_route_id = $1 WHERE id = $2
		`, reportedRouteID, session.ID)
	} else {
		// Alighting also releases the virtual-bus assignment
		_, err = tx.Exec(ctx, `
			UPDATE tracking_session
			SET is_on_bus = false, reported_route_id = $1, assigned_bus_id = NULL
			WHERE id = $2
		`, reportedRouteID, session.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to set on-bus: %w", err)
	}
	return tx.Commit(ctx)
}

// StopSession ends the rider's active session, clearing the on-bus flag and
// bus assignment. Returns ErrNotFound when there is no active session.
func (s *Store) StopSession(ctx context.Context, userID int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tracking_session
		SET status = 'ended', end_time = NOW(), is_on_bus = false, assigned_bus_id = NULL
		WHERE user_id = $1 AND status = 'active'
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to stop session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func activeSessionForUpdate(ctx context.Context, tx pgx.Tx, userID int64) (models.TrackingSession, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, user_id, selected_route_id, reported_route_id, is_on_bus,
		       assigned_bus_id, status, start_time, end_time
		FROM tracking_session
		WHERE user_id = $1 AND status = 'active'
		FOR UPDATE
	`, userID)
	return scanSession(row)
}

// ActiveSessionFor returns the rider's active session, or ErrNotFound
func (s *Store) ActiveSessionFor(ctx context.Context, userID int64) (models.TrackingSession, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, selected_route_id, reported_route_id, is_on_bus,
		       assigned_bus_id, status, start_time, end_time
		FROM tracking_session
		WHERE user_id = $1 AND status = 'active'
	`, userID)
	return scanSession(row)
}

func scanSession(row pgx.Row) (models.TrackingSession, error) {
	var ts models.TrackingSession
	err := row.Scan(&ts.ID, &ts.UserID, &ts.SelectedRouteID, &ts.ReportedRouteID,
		&ts.IsOnBus, &ts.AssignedBusID, &ts.Status, &ts.StartTime, &ts.EndTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.TrackingSession{}, ErrNotFound
	}
	if err != nil {
		return models.TrackingSession{}, fmt.Errorf("failed to scan session: %w", err)
	}
	return ts, nil
}

// AppendLocation appends one sample to the rider's location history
func (s *Store) AppendLocation(ctx context.Context, sample models.LocationSample) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO location_history (user_id, location, speed, heading, recorded_at)
		VALUES ($1, ST_SetSRID(ST_MakePoint($2, $3), 4326)::geography, $4, $5, $6)
	`, sample.UserID, sample.Location.Lon, sample.Location.Lat, sample.Speed, sample.Heading, sample.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append location: %w", err)
	}
	return nil
}

// ActiveVirtualBuses returns every active virtual bus, optionally filtered
// by route
func (s *Store) ActiveVirtualBuses(ctx context.Context, routeID *int64) ([]models.VirtualBus, error) {
	return activeBuses(ctx, s.pool, routeID)
}

// VirtualBus returns one virtual bus by id, or ErrNotFound
func (s *Store) VirtualBus(ctx context.Context, id uuid.UUID) (models.VirtualBus, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, route_id, ST_Y(location::geometry), ST_X(location::geometry),
		       current_speed, current_heading, assigned_user_ids, last_update, status
		FROM virtual_bus
		WHERE id = $1
	`, id)
	bus, err := scanBus(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.VirtualBus{}, ErrNotFound
	}
	return bus, err
}

func activeBuses(ctx context.Context, q querier, routeID *int64) ([]models.VirtualBus, error) {
	query := `
		SELECT id, route_id, ST_Y(location::geometry), ST_X(location::geometry),
		       current_speed, current_heading, assigned_user_ids, last_update, status
		FROM virtual_bus
		WHERE status = 'active'
	`
	args := []any{}
	if routeID != nil {
		query += " AND route_id = $1"
		args = append(args, *routeID)
	}
	query += " ORDER BY id"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load virtual buses: %w", err)
	}
	defer rows.Close()

	var buses []models.VirtualBus
	for rows.Next() {
		bus, err := scanBus(rows)
		if err != nil {
			return nil, err
		}
		buses = append(buses, bus)
	}
	return buses, rows.Err()
}

func scanBus(row pgx.Row) (models.VirtualBus, error) {
	var b models.VirtualBus
	err := row.Scan(&b.ID, &b.RouteID, &b.Location.Lat, &b.Location.Lon,
		&b.CurrentSpeed, &b.CurrentHeading, &b.AssignedUserIDs, &b.LastUpdate, &b.Status)
	if err != nil {
		return models.VirtualBus{}, err
	}
	if b.AssignedUserIDs == nil {
		b.AssignedUserIDs = []int64{}
	}
	return b, nil
}
