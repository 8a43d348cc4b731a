// Package cluster implements the virtual-bus engine: a periodic loop that
// drains buffered rider samples, associates each rider with a virtual bus
// on its reported route, and reaps buses nobody has fed for too long.
package cluster

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/transcaribe/tracking_core/internal/geo"
	"github.com/transcaribe/tracking_core/internal/models"
)

// Config holds the engine's tunables
type Config struct {
	TickInterval      time.Duration // pause between clustering passes
	MaxRouteDistanceM float64       // rider farther than this from the route polyline is ignored
	ClusterRadiusM    float64       // join radius for an existing bus
	IdleTimeout       time.Duration // unfed bus lifetime before reaping
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		TickInterval:      5 * time.Second,
		MaxRouteDistanceM: 50,
		ClusterRadiusM:    35,
		IdleTimeout:       5 * time.Minute,
	}
}

// TickStore is the unit of work one tick runs against. Implemented by
// store.Tick; either Commit or Rollback must be called on every tick.
type TickStore interface {
	ActiveSessionsFor(ctx context.Context, userIDs []int64) (map[int64]models.TrackingSession, error)
	RoutesWithStops(ctx context.Context, routeIDs []int64) (map[int64]models.Route, error)
	ActiveBusesOnRoute(ctx context.Context, routeID int64) ([]models.VirtualBus, error)
	UpsertVirtualBus(ctx context.Context, bus models.VirtualBus) error
	AssignBus(ctx context.Context, sessionID int64, busID uuid.UUID) error
	UnassignRider(ctx context.Context, userID int64, exceptBusID uuid.UUID) error
	IdleBuses(ctx context.Context, cutoff time.Time) ([]models.VirtualBus, error)
	HasActiveClaim(ctx context.Context, busID uuid.UUID) (bool, error)
	DeactivateVirtualBus(ctx context.Context, busID uuid.UUID) error
	ClearStaleAssignments(ctx context.Context) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Provider opens a fresh unit of work for one tick. Injecting it keeps the
// engine decoupled from request-scoped database state.
type Provider func(ctx context.Context) (TickStore, error)

// Engine is the process-wide clustering singleton with an explicit
// start/stop lifecycle. A single goroutine runs ticks; no two ticks
// overlap.
type Engine struct {
	queue    *Queue
	provider Provider
	cfg      Config

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewEngine creates an engine over the given queue and store provider
func NewEngine(queue *Queue, provider Provider, cfg Config) *Engine {
	return &Engine{queue: queue, provider: provider, cfg: cfg}
}

// Start launches the background loop. Calling Start on a running engine is
// a no-op.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.loop(ctx)
	log.Printf("cluster: engine started (tick=%s, route=%.0fm, cluster=%.0fm, idle=%s)",
		e.cfg.TickInterval, e.cfg.MaxRouteDistanceM, e.cfg.ClusterRadiusM, e.cfg.IdleTimeout)
}

// Stop cancels the loop and waits for the in-flight tick to finish
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.done
	e.cancel = nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	log.Printf("cluster: engine stopped")
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A stop request between ticks never interrupts a tick
			// mid-flight; the tick runs on its own deadline.
			tickCtx, cancel := context.WithTimeout(context.Background(), 4*e.cfg.TickInterval)
			if err := e.Tick(tickCtx); err != nil {
				log.Printf("cluster: tick failed: %v", err)
			}
			cancel()
		}
	}
}

// Tick runs one full clustering pass: drain, associate, flush, reap.
// Errors roll the whole tick back; the samples are lost but the next tick
// starts clean.
func (e *Engine) Tick(ctx context.Context) (err error) {
	samples := e.queue.DrainLatest()

	ts, err := e.provider(ctx)
	if err != nil {
		return fmt.Errorf("failed to open tick store: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := ts.Rollback(context.Background()); rbErr != nil {
				log.Printf("cluster: rollback failed: %v", rbErr)
			}
		}
	}()

	if err := e.associate(ctx, ts, samples); err != nil {
		return err
	}
	if err := e.reap(ctx, ts); err != nil {
		return err
	}

	if err := ts.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tick: %w", err)
	}
	committed = true
	return nil
}

// tickState is the in-memory view of buses touched during one tick
type tickState struct {
	byRoute    map[int64][]*models.VirtualBus
	byID       map[uuid.UUID]*models.VirtualBus
	tickPoints map[uuid.UUID][]models.Point // rider points absorbed this tick, for the running centroid
	dirty      map[uuid.UUID]bool
}

func (st *tickState) track(bus *models.VirtualBus) {
	st.byRoute[bus.RouteID] = append(st.byRoute[bus.RouteID], bus)
	st.byID[bus.ID] = bus
}

// release drops the rider from every cached bus copy except the one they
// now belong to, mirroring the store-side UnassignRider so a later flush
// of a dirty bus cannot write the rider's old membership back.
func (st *tickState) release(userID int64, exceptBusID uuid.UUID) {
	for id, bus := range st.byID {
		if id == exceptBusID {
			continue
		}
		for i, uid := range bus.AssignedUserIDs {
			if uid == userID {
				bus.AssignedUserIDs = append(bus.AssignedUserIDs[:i], bus.AssignedUserIDs[i+1:]...)
				break
			}
		}
	}
}

// busesOnRoute lazily loads and caches the active buses of a route
func (st *tickState) busesOnRoute(ctx context.Context, ts TickStore, routeID int64) ([]*models.VirtualBus, error) {
	if buses, ok := st.byRoute[routeID]; ok {
		return buses, nil
	}
	loaded, err := ts.ActiveBusesOnRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}
	st.byRoute[routeID] = []*models.VirtualBus{}
	for i := range loaded {
		st.track(&loaded[i])
	}
	return st.byRoute[routeID], nil
}

// associate runs the per-rider pipeline in ascending rider-id order
func (e *Engine) associate(ctx context.Context, ts TickStore, samples []models.LocationSample) error {
	if len(samples) == 0 {
		return nil
	}
	now := time.Now().UTC()

	userIDs := make([]int64, 0, len(samples))
	for _, s := range samples {
		userIDs = append(userIDs, s.UserID)
	}
	sessions, err := ts.ActiveSessionsFor(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("failed to load sessions: %w", err)
	}

	// Riders that survive the session/route gate, with their route id
	type work struct {
		sample  models.LocationSample
		session models.TrackingSession
		routeID int64
	}
	var pending []work
	routeIDs := make(map[int64]bool)
	for _, s := range samples {
		session, ok := sessions[s.UserID]
		if !ok || !session.IsOnBus {
			continue
		}
		if session.ReportedRouteID == nil {
			log.Printf("cluster: user %d on-bus without reported route, skipping", s.UserID)
			continue
		}
		pending = append(pending, work{sample: s, session: session, routeID: *session.ReportedRouteID})
		routeIDs[*session.ReportedRouteID] = true
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(routeIDs))
	for id := range routeIDs {
		ids = append(ids, id)
	}
	routes, err := ts.RoutesWithStops(ctx, ids)
	if err != nil {
		return fmt.Errorf("failed to load routes: %w", err)
	}
	polylines := make(map[int64][]models.Point, len(routes))
	for id, route := range routes {
		if len(route.Stops) < 2 {
			log.Printf("cluster: route %d has %d stops, cannot build polyline", id, len(route.Stops))
			continue
		}
		polylines[id] = route.Polyline()
	}

	st := &tickState{
		byRoute:    make(map[int64][]*models.VirtualBus),
		byID:       make(map[uuid.UUID]*models.VirtualBus),
		tickPoints: make(map[uuid.UUID][]models.Point),
		dirty:      make(map[uuid.UUID]bool),
	}

	for _, w := range pending {
		polyline, ok := polylines[w.routeID]
		if !ok {
			continue
		}
		if geo.DistanceToPolyline(w.sample.Location, polyline) > e.cfg.MaxRouteDistanceM {
			continue // off-route this tick, leave unassigned
		}
		if err := e.placeRider(ctx, ts, st, w.sample, w.session, w.routeID, now); err != nil {
			return err
		}
	}

	for id, bus := range st.byID {
		if !st.dirty[id] {
			continue
		}
		if err := ts.UpsertVirtualBus(ctx, *bus); err != nil {
			return fmt.Errorf("failed to flush bus %s: %w", id, err)
		}
	}
	return nil
}

// placeRider applies stickiness, then nearest-join, then creation
func (e *Engine) placeRider(ctx context.Context, ts TickStore, st *tickState, sample models.LocationSample, session models.TrackingSession, routeID int64, now time.Time) error {
	buses, err := st.busesOnRoute(ctx, ts, routeID)
	if err != nil {
		return fmt.Errorf("failed to load buses for route %d: %w", routeID, err)
	}

	// Stickiness: keep the current bus while the rider stays within the
	// relaxed retention radius
	if session.AssignedBusID != nil {
		if bus, ok := st.byID[*session.AssignedBusID]; ok && bus.RouteID == routeID {
			if geo.Haversine(sample.Location, bus.Location) <= 2*e.cfg.ClusterRadiusM {
				e.absorb(st, bus, sample, now)
				return nil
			}
		}
	}

	var nearest *models.VirtualBus
	best := math.Inf(1)
	for _, bus := range buses {
		d := geo.Haversine(sample.Location, bus.Location)
		if d > e.cfg.ClusterRadiusM {
			continue
		}
		if d < best || (d == best && nearest != nil && bytes.Compare(bus.ID[:], nearest.ID[:]) < 0) {
			best = d
			nearest = bus
		}
	}

	if nearest == nil {
		nearest = &models.VirtualBus{
			ID:              uuid.New(),
			RouteID:         routeID,
			Location:        sample.Location,
			AssignedUserIDs: []int64{},
			Status:          models.BusActive,
		}
		st.track(nearest)
	}

	e.absorb(st, nearest, sample, now)
	if session.AssignedBusID == nil || *session.AssignedBusID != nearest.ID {
		if err := ts.AssignBus(ctx, session.ID, nearest.ID); err != nil {
			return fmt.Errorf("failed to assign bus to session %d: %w", session.ID, err)
		}
		if err := ts.UnassignRider(ctx, session.UserID, nearest.ID); err != nil {
			return fmt.Errorf("failed to release previous bus of user %d: %w", session.UserID, err)
		}
		st.release(session.UserID, nearest.ID)
	}
	return nil
}

// absorb folds a rider sample into a bus: membership, running centroid over
// this tick's riders, speed/heading, freshness stamp
func (e *Engine) absorb(st *tickState, bus *models.VirtualBus, sample models.LocationSample, now time.Time) {
	assigned := false
	for _, id := range bus.AssignedUserIDs {
		if id == sample.UserID {
			assigned = true
			break
		}
	}
	if !assigned {
		bus.AssignedUserIDs = append(bus.AssignedUserIDs, sample.UserID)
	}

	st.tickPoints[bus.ID] = append(st.tickPoints[bus.ID], sample.Location)
	bus.Location = geo.Centroid(st.tickPoints[bus.ID])
	bus.CurrentSpeed = sample.Speed
	bus.CurrentHeading = sample.Heading
	bus.LastUpdate = now
	st.dirty[bus.ID] = true
}

// reap deactivates buses idle past the timeout with no surviving claim,
// then unhooks any sessions still pointing at an inactive bus
func (e *Engine) reap(ctx context.Context, ts TickStore) error {
	cutoff := time.Now().UTC().Add(-e.cfg.IdleTimeout)
	idle, err := ts.IdleBuses(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list idle buses: %w", err)
	}

	for _, bus := range idle {
		claimed, err := ts.HasActiveClaim(ctx, bus.ID)
		if err != nil {
			return fmt.Errorf("failed to check claim on bus %s: %w", bus.ID, err)
		}
		if claimed {
			continue
		}
		if err := ts.DeactivateVirtualBus(ctx, bus.ID); err != nil {
			return fmt.Errorf("failed to deactivate bus %s: %w", bus.ID, err)
		}
		log.Printf("cluster: reaped idle bus %s on route %d", bus.ID, bus.RouteID)
	}

	cleared, err := ts.ClearStaleAssignments(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear stale assignments: %w", err)
	}
	if cleared > 0 {
		log.Printf("cluster: cleared %d stale bus assignments", cleared)
	}
	return nil
}
