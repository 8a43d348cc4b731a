package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/transcaribe/tracking_core/internal/models"
)

// Tick is the clustering engine's per-tick unit of work: one transaction
// acquired at the start of a tick and released on every exit path. The
// engine is the sole writer of virtual buses and session assignments while
// it holds one.
type Tick struct {
	tx pgx.Tx
}

// Begin opens a fresh unit of work for one engine tick
func (s *Store) Begin(ctx context.Context) (*Tick, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tick transaction: %w", err)
	}
	return &Tick{tx: tx}, nil
}

// Commit commits the tick's changes
func (t *Tick) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

// Rollback discards the tick's changes. Safe after Commit.
func (t *Tick) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == pgx.ErrTxClosed {
		return nil
	}
	return err
}

// ActiveSessionsFor returns the active session for each given rider that
// has one, keyed by rider id
func (t *Tick) ActiveSessionsFor(ctx context.Context, userIDs []int64) (map[int64]models.TrackingSession, error) {
	if len(userIDs) == 0 {
		return map[int64]models.TrackingSession{}, nil
	}

	rows, err := t.tx.Query(ctx, `
		SELECT id, user_id, selected_route_id, reported_route_id, is_on_bus,
		       assigned_bus_id, status, start_time, end_time
		FROM tracking_session
		WHERE user_id = ANY($1) AND status = 'active'
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}
	defer rows.Close()

	sessions := make(map[int64]models.TrackingSession)
	for rows.Next() {
		ts, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions[ts.UserID] = ts
	}
	return sessions, rows.Err()
}

// RoutesWithStops loads the given routes with their ordered stop lists,
// keyed by route id. Unknown ids are simply absent.
func (t *Tick) RoutesWithStops(ctx context.Context, routeIDs []int64) (map[int64]models.Route, error) {
	result := make(map[int64]models.Route, len(routeIDs))
	if len(routeIDs) == 0 {
		return result, nil
	}

	rows, err := t.tx.Query(ctx, `
		SELECT r.id, r.name, s.id, s.name, ST_Y(s.location::geometry), ST_X(s.location::geometry), rs.ordinal
		FROM route r
		JOIN route_stop rs ON rs.route_id = r.id
		JOIN stop s ON s.id = rs.stop_id
		WHERE r.id = ANY($1)
		ORDER BY r.id, rs.ordinal
	`, routeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			route models.Route
			rs    models.RouteStop
		)
		if err := rows.Scan(&route.ID, &route.Name, &rs.Stop.ID, &rs.Stop.Name,
			&rs.Stop.Location.Lat, &rs.Stop.Location.Lon, &rs.Ordinal); err != nil {
			return nil, fmt.Errorf("failed to scan route stop: %w", err)
		}

		existing, ok := result[route.ID]
		if !ok {
			existing = route
		}
		existing.Stops = append(existing.Stops, rs)
		result[route.ID] = existing
	}
	return result, rows.Err()
}

// ActiveBusesOnRoute returns the active virtual buses of one route
func (t *Tick) ActiveBusesOnRoute(ctx context.Context, routeID int64) ([]models.VirtualBus, error) {
	return activeBuses(ctx, t.tx, &routeID)
}

// UpsertVirtualBus inserts or replaces one virtual bus row
func (t *Tick) UpsertVirtualBus(ctx context.Context, bus models.VirtualBus) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO virtual_bus (id, route_id, location, current_speed, current_heading,
		                         assigned_user_ids, last_update, status)
		VALUES ($1, $2, ST_SetSRID(ST_MakePoint($3, $4), 4326)::geography, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			location = EXCLUDED.location,
			current_speed = EXCLUDED.current_speed,
			current_heading = EXCLUDED.current_heading,
			assigned_user_ids = EXCLUDED.assigned_user_ids,
			last_update = EXCLUDED.last_update,
			status = EXCLUDED.status
	`, bus.ID, bus.RouteID, bus.Location.Lon, bus.Location.Lat, bus.CurrentSpeed,
		bus.CurrentHeading, bus.AssignedUserIDs, bus.LastUpdate, bus.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert virtual bus: %w", err)
	}
	return nil
}

// AssignBus points the session at the virtual bus the rider clusters into
func (t *Tick) AssignBus(ctx context.Context, sessionID int64, busID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE tracking_session SET assigned_bus_id = $1 WHERE id = $2
	`, busID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to assign bus: %w", err)
	}
	return nil
}

// IdleBuses returns the active buses whose last update precedes cutoff
func (t *Tick) IdleBuses(ctx context.Context, cutoff time.Time) ([]models.VirtualBus, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, route_id, ST_Y(location::geometry), ST_X(location::geometry),
		       current_speed, current_heading, assigned_user_ids, last_update, status
		FROM virtual_bus
		WHERE status = 'active' AND last_update < $1
		ORDER BY id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to load idle buses: %w", err)
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

// HasActiveClaim reports whether any active on-bus session still points at
// the bus
func (t *Tick) HasActiveClaim(ctx context.Context, busID uuid.UUID) (bool, error) {
	var claimed bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM tracking_session
			WHERE assigned_bus_id = $1 AND status = 'active' AND is_on_bus
		)
	`, busID).Scan(&claimed)
	if err != nil {
		return false, fmt.Errorf("failed to check bus claim: %w", err)
	}
	return claimed, nil
}

// DeactivateVirtualBus transitions the bus to inactive and drops its riders
func (t *Tick) DeactivateVirtualBus(ctx context.Context, busID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE virtual_bus
		SET status = 'inactive', assigned_user_ids = '{}'
		WHERE id = $1
	`, busID)
	if err != nil {
		return fmt.Errorf("failed to deactivate virtual bus: %w", err)
	}
	return nil
}

// UnassignRider removes the rider from the assigned set of every bus except
// the given one. Called when a rider moves between buses so that no two
// buses claim the same rider.
func (t *Tick) UnassignRider(ctx context.Context, userID int64, exceptBusID uuid.UUID) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE virtual_bus
		SET assigned_user_ids = array_remove(assigned_user_ids, $1)
		WHERE $1 = ANY(assigned_user_ids) AND id <> $2
	`, userID, exceptBusID)
	if err != nil {
		return fmt.Errorf("failed to unassign rider: %w", err)
	}
	return nil
}

// ClearStaleAssignments unhooks active sessions still pointing at an
// inactive bus. Returns the number of sessions cleared.
func (t *Tick) ClearStaleAssignments(ctx context.Context) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE tracking_session ts
		SET assigned_bus_id = NULL, is_on_bus = false
		FROM virtual_bus vb
		WHERE ts.assigned_bus_id = vb.id
		  AND ts.status = 'active'
		  AND vb.status = 'inactive'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear stale assignments: %w", err)
	}
	return tag.RowsAffected(), nil
}
