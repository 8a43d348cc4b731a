package planner

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcaribe/tracking_core/internal/geo"
	"github.com/transcaribe/tracking_core/internal/graph"
	"github.com/transcaribe/tracking_core/internal/models"
)

type fakeRouteSource struct {
	routes []models.Route
}

func (f *fakeRouteSource) AllRoutesWithStops(ctx context.Context) ([]models.Route, error) {
	return f.routes, nil
}

// fakeResolver finds the nearest stop by in-process geodesic distance
type fakeResolver struct {
	stops []models.Stop
}

func (f *fakeResolver) NearestStop(ctx context.Context, p models.Point, radiusM float64) (*models.Stop, float64, error) {
	var best *models.Stop
	bestDist := math.Inf(1)
	for i := range f.stops {
		d := geo.Haversine(p, f.stops[i].Location)
		if d < bestDist {
			best = &f.stops[i]
			bestDist = d
		}
	}
	if best == nil || bestDist > radiusM {
		return nil, 0, nil
	}
	return best, bestDist, nil
}

func testRoute(id int64, name string, stops ...models.Stop) models.Route {
	r := models.Route{ID: id, Name: name}
	for i, s := range stops {
		r.Stops = append(r.Stops, models.RouteStop{Stop: s, Ordinal: i})
	}
	return r
}

func buildPlanner(t *testing.T, routes ...models.Route) *Planner {
	t.Helper()

	seen := make(map[int64]bool)
	var stops []models.Stop
	for _, r := range routes {
		for _, rs := range r.Stops {
			if !seen[rs.Stop.ID] {
				seen[rs.Stop.ID] = true
				stops = append(stops, rs.Stop)
			}
		}
	}

	g := graph.New()
	require.NoError(t, g.Build(context.Background(), &fakeRouteSource{routes: routes}, DefaultConfig().BusSpeedKph))
	return New(g, &fakeResolver{stops: stops}, DefaultConfig())
}

var (
	stopA = models.Stop{ID: 1, Name: "A", Location: models.Point{Lat: 10.400, Lon: -75.500}}
	stopB = models.Stop{ID: 2, Name: "B", Location: models.Point{Lat: 10.410, Lon: -75.510}}
	stopC = models.Stop{ID: 3, Name: "C", Location: models.Point{Lat: 10.418, Lon: -75.510}}
	stopD = models.Stop{ID: 4, Name: "D", Location: models.Point{Lat: 10.427, Lon: -75.510}}
)

func TestPlanNoNearbyStop(t *testing.T) {
	p := buildPlanner(t, testRoute(1, "R1", stopA, stopB))

	_, err := p.Plan(context.Background(), models.Point{Lat: 0, Lon: 0}, models.Point{Lat: 0, Lon: 0})
	assert.ErrorIs(t, err, ErrNoNearbyStop)
}

func TestPlanDirectRide(t *testing.T) {
	p := buildPlanner(t, testRoute(1, "R1", stopA, stopB))

	// A few metres off each stop
	origin := models.Point{Lat: stopA.Location.Lat + 0.00004, Lon: stopA.Location.Lon}
	destination := models.Point{Lat: stopB.Location.Lat + 0.00004, Lon: stopB.Location.Lon}

	plan, err := p.Plan(context.Background(), origin, destination)
	require.NoError(t, err)

	busSeconds := geo.Haversine(stopA.Location, stopB.Location) / (20.0 * 1000 / 3600)
	walkSeconds := (geo.Haversine(origin, stopA.Location) + geo.Haversine(destination, stopB.Location)) / (5.0 * 1000 / 3600)
	assert.InDelta(t, (busSeconds+walkSeconds)/60, plan.TotalMinutes, 0.05)

	assert.InDelta(t, geo.Haversine(origin, stopA.Location), plan.OriginWalkMeters, 0.1)
	assert.InDelta(t, geo.Haversine(destination, stopB.Location), plan.DestWalkMeters, 0.1)

	require.Len(t, plan.Stops, 2)
	assert.Equal(t, "A", plan.Stops[0].Name)
	assert.Equal(t, "B", plan.Stops[1].Name)
	assert.Equal(t, "R1", plan.Stops[0].RouteName)
	assert.Equal(t, "R1", plan.Stops[1].RouteName)
}

func TestPlanTransferPenalty(t *testing.T) {
	r1 := testRoute(1, "R1", stopA, stopB, stopC)
	r2 := testRoute(2, "R2", stopC, stopD)
	p := buildPlanner(t, r1, r2)

	plan, err := p.Plan(context.Background(), stopA.Location, stopD.Location)
	require.NoError(t, err)

	busSpeed := 20.0 * 1000 / 3600
	inVehicle := (geo.Haversine(stopA.Location, stopB.Location) +
		geo.Haversine(stopB.Location, stopC.Location) +
		geo.Haversine(stopC.Location, stopD.Location)) / busSpeed
	expected := (inVehicle + 900) / 60 // one transfer at C

	assert.InDelta(t, expected, plan.TotalMinutes, 0.05)
	assert.Equal(t, 0.0, plan.OriginWalkMeters)
	assert.Equal(t, 0.0, plan.DestWalkMeters)

	require.Len(t, plan.Stops, 4)
	assert.Equal(t, "R1", plan.Stops[0].RouteName)
	assert.Equal(t, "R1", plan.Stops[2].RouteName) // C reached on R1
	assert.Equal(t, "R2", plan.Stops[3].RouteName) // D reached on R2
}

func TestPlanUnreachable(t *testing.T) {
	far := models.Stop{ID: 9, Name: "far", Location: models.Point{Lat: 11.0, Lon: -74.0}}
	farther := models.Stop{ID: 10, Name: "farther", Location: models.Point{Lat: 11.01, Lon: -74.0}}

	p := buildPlanner(t,
		testRoute(1, "R1", stopA, stopB),
		testRoute(2, "R2", far, farther),
	)

	_, err := p.Plan(context.Background(), stopA.Location, far.Location)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestPlanOneWayRouteNotRidableBackwards(t *testing.T) {
	p := buildPlanner(t, testRoute(1, "R1", stopA, stopB))

	// The only route runs A -> B; riding it against the stop order is not
	// a trip.
	_, err := p.Plan(context.Background(), stopB.Location, stopA.Location)
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestPlanDeduplicatesStops(t *testing.T) {
	twinB := models.Stop{ID: 20, Name: "B bis", Location: stopB.Location}
	p := buildPlanner(t, testRoute(1, "R1", stopA, stopB, twinB, stopC))

	plan, err := p.Plan(context.Background(), stopA.Location, stopC.Location)
	require.NoError(t, err)

	for i := 1; i < len(plan.Stops); i++ {
		same := plan.Stops[i].Lat == plan.Stops[i-1].Lat && plan.Stops[i].Lon == plan.Stops[i-1].Lon
		assert.False(t, same, "consecutive duplicate at %d", i)
	}
	require.Len(t, plan.Stops, 3)
	assert.Equal(t, "A", plan.Stops[0].Name)
	assert.Equal(t, "C", plan.Stops[len(plan.Stops)-1].Name)
}

func TestPlanAddingRouteNeverHurts(t *testing.T) {
	r1 := testRoute(1, "R1", stopA, stopB, stopC)
	r2 := testRoute(2, "R2", stopC, stopD)

	before, err := buildPlanner(t, r1, r2).Plan(context.Background(), stopA.Location, stopD.Location)
	require.NoError(t, err)

	// An express line removes the transfer
	express := testRoute(3, "EX", stopA, stopD)
	after, err := buildPlanner(t, r1, r2, express).Plan(context.Background(), stopA.Location, stopD.Location)
	require.NoError(t, err)

	assert.LessOrEqual(t, after.TotalMinutes, before.TotalMinutes)
}

func TestPlanSameStopBothEnds(t *testing.T) {
	p := buildPlanner(t, testRoute(1, "R1", stopA, stopB))

	// Both endpoints resolve to stop A: no ride, walking only
	near := models.Point{Lat: stopA.Location.Lat + 0.00002, Lon: stopA.Location.Lon}
	plan, err := p.Plan(context.Background(), near, stopA.Location)
	require.NoError(t, err)

	assert.Empty(t, plan.Stops)
	walkSeconds := geo.Haversine(near, stopA.Location) / (5.0 * 1000 / 3600)
	assert.InDelta(t, walkSeconds/60, plan.TotalMinutes, 0.05)
}
