// Package planner computes shortest-time multimodal trips (walk, bus,
// transfer, walk) over the in-memory stop graph.
package planner

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/transcaribe/tracking_core/internal/graph"
	"github.com/transcaribe/tracking_core/internal/models"
)

var (
	// ErrNoNearbyStop means the origin or destination has no stop within
	// the walking radius
	ErrNoNearbyStop = errors.New("no nearby stop")
	// ErrUnreachable means both endpoints resolved to stops but the graph
	// offers no path between them
	ErrUnreachable = errors.New("unreachable")
)

// Config holds the planner's tunables
type Config struct {
	BusSpeedKph        float64
	WalkSpeedKph       float64
	TransferPenaltySec float64
	MaxWalkRadiusM     float64
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		BusSpeedKph:        20,
		WalkSpeedKph:       5,
		TransferPenaltySec: 900,
		MaxWalkRadiusM:     300,
	}
}

// StopResolver finds the closest stop to a free coordinate within a radius.
// A nil stop means nothing is in range.
type StopResolver interface {
	NearestStop(ctx context.Context, p models.Point, radiusM float64) (*models.Stop, float64, error)
}

// Planner runs trip searches. It is stateless and reentrant; concurrent
// requests share the graph snapshot.
type Planner struct {
	graph *graph.Graph
	stops StopResolver
	cfg   Config
}

// New creates a planner over the given graph and stop resolver
func New(g *graph.Graph, stops StopResolver, cfg Config) *Planner {
	return &Planner{graph: g, stops: stops, cfg: cfg}
}

// Plan computes the shortest-time trip between two free coordinates.
// Returns ErrNoNearbyStop when either endpoint has no stop within the
// walking radius, ErrUnreachable when no path connects the endpoints.
func (p *Planner) Plan(ctx context.Context, origin, destination models.Point) (models.TripPlan, error) {
	originStop, originDist, err := p.stops.NearestStop(ctx, origin, p.cfg.MaxWalkRadiusM)
	if err != nil {
		return models.TripPlan{}, fmt.Errorf("failed to resolve origin stop: %w", err)
	}
	if originStop == nil {
		return models.TripPlan{}, ErrNoNearbyStop
	}

	destStop, destDist, err := p.stops.NearestStop(ctx, destination, p.cfg.MaxWalkRadiusM)
	if err != nil {
		return models.TripPlan{}, fmt.Errorf("failed to resolve destination stop: %w", err)
	}
	if destStop == nil {
		return models.TripPlan{}, ErrNoNearbyStop
	}

	if !p.graph.HasNode(originStop.ID) || !p.graph.HasNode(destStop.ID) {
		return models.TripPlan{}, ErrUnreachable
	}

	busSeconds, segments, err := p.search(originStop.ID, destStop.ID)
	if err != nil {
		return models.TripPlan{}, err
	}

	walkSpeedMps := p.cfg.WalkSpeedKph * 1000 / 3600
	walkSeconds := (originDist + destDist) / walkSpeedMps
	totalMinutes := (busSeconds + walkSeconds) / 60

	return models.TripPlan{
		TotalMinutes:     round2(totalMinutes),
		OriginWalkMeters: round2(originDist),
		DestWalkMeters:   round2(destDist),
		Stops:            p.buildStops(segments),
	}, nil
}

// segment is one ridden edge of the reconstructed path
type segment struct {
	from, to  int64
	routeID   int64
	routeName string
}

// search runs Dijkstra from origin to destination over the stop graph.
// Each queue entry carries the route the rider arrived on; relaxing an edge
// of a different route adds the transfer penalty. The first boarding is
// free. Distances are keyed by stop id alone.
func (p *Planner) search(originID, destID int64) (float64, []segment, error) {
	dist := map[int64]float64{originID: 0}
	type pred struct {
		prev    int64
		routeID int64
	}
	preds := make(map[int64]pred)

	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, &queueEntry{stopID: originID, routeID: 0, seconds: 0})

	for pq.Len() > 0 {
		current := heap.Pop(pq).(*queueEntry)

		if current.seconds > dist[current.stopID] {
			continue // stale entry
		}
		if current.stopID == destID {
			break
		}

		for _, edge := range p.graph.Edges(current.stopID) {
			tentative := current.seconds + edge.Seconds
			if current.routeID != 0 && current.routeID != edge.RouteID {
				tentative += p.cfg.TransferPenaltySec
			}

			if best, seen := dist[edge.To]; !seen || tentative < best {
				dist[edge.To] = tentative
				preds[edge.To] = pred{prev: current.stopID, routeID: edge.RouteID}
				heap.Push(pq, &queueEntry{stopID: edge.To, routeID: edge.RouteID, seconds: tentative})
			}
		}
	}

	total, reached := dist[destID]
	if !reached {
		return 0, nil, ErrUnreachable
	}

	// Reconstruct in reverse, then flip
	var segments []segment
	for current := destID; current != originID; {
		pr, ok := preds[current]
		if !ok {
			break
		}
		routeName := ""
		for _, edge := range p.graph.Edges(pr.prev) {
			if edge.To == current && edge.RouteID == pr.routeID {
				routeName = edge.RouteName
				break
			}
		}
		segments = append(segments, segment{from: pr.prev, to: current, routeID: pr.routeID, routeName: routeName})
		current = pr.prev
	}
	for i, j := 0, len(segments)-1; i < j; i, j = i+1, j-1 {
		segments[i], segments[j] = segments[j], segments[i]
	}

	return total, segments, nil
}

// buildStops flattens segments into the in-order stop list, tagging each
// stop with the route it is ridden on and dropping consecutive entries at
// identical coordinates
func (p *Planner) buildStops(segments []segment) []models.TripStop {
	stops := []models.TripStop{}
	if len(segments) == 0 {
		return stops
	}

	appendStop := func(stopID int64, routeName string) {
		node, ok := p.graph.Node(stopID)
		if !ok {
			return
		}
		if n := len(stops); n > 0 &&
			stops[n-1].Lat == node.Location.Lat && stops[n-1].Lon == node.Location.Lon {
			return
		}
		stops = append(stops, models.TripStop{
			Name:      node.Name,
			RouteName: routeName,
			Lat:       node.Location.Lat,
			Lon:       node.Location.Lon,
		})
	}

	appendStop(segments[0].from, segments[0].routeName)
	for _, seg := range segments {
		appendStop(seg.to, seg.routeName)
	}
	return stops
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// queueEntry is one open state of the search
type queueEntry struct {
	stopID  int64
	routeID int64 // route the rider arrived on; 0 before the first boarding
	seconds float64
	index   int // for heap
}

// priorityQueue implements heap.Interface ordered by cumulative seconds
type priorityQueue []*queueEntry

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].seconds < pq[j].seconds
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	n := len(*pq)
	entry := x.(*queueEntry)
	entry.index = n
	*pq = append(*pq, entry)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	entry := old[n-1]
	old[n-1] = nil
	entry.index = -1
	*pq = old[0 : n-1]
	return entry
}
