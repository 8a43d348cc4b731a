package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transcaribe/tracking_core/internal/geo"
	"github.com/transcaribe/tracking_core/internal/models"
)

type fakeRouteSource struct {
	routes []models.Route
	err    error
}

func (f *fakeRouteSource) AllRoutesWithStops(ctx context.Context) ([]models.Route, error) {
	return f.routes, f.err
}

func testRoute(id int64, name string, stops ...models.Stop) models.Route {
	r := models.Route{ID: id, Name: name}
	for i, s := range stops {
		r.Stops = append(r.Stops, models.RouteStop{Stop: s, Ordinal: i})
	}
	return r
}

func TestBuild(t *testing.T) {
	stopA := models.Stop{ID: 1, Name: "A", Location: models.Point{Lat: 10.40, Lon: -75.50}}
	stopB := models.Stop{ID: 2, Name: "B", Location: models.Point{Lat: 10.41, Lon: -75.51}}
	stopC := models.Stop{ID: 3, Name: "C", Location: models.Point{Lat: 10.42, Lon: -75.52}}

	src := &fakeRouteSource{routes: []models.Route{
		testRoute(1, "R1", stopA, stopB, stopC),
	}}

	g := New()
	require.NoError(t, g.Build(context.Background(), src, 20))
	assert.True(t, g.IsLoaded())

	nodes, edges := g.Size()
	assert.Equal(t, 3, nodes)
	assert.Equal(t, 2, edges) // one directed edge per segment

	// Travel time is segment length over bus speed
	expected := geo.Haversine(stopA.Location, stopB.Location) / (20.0 * 1000 / 3600)
	edgesFromA := g.Edges(stopA.ID)
	require.Len(t, edgesFromA, 1)
	assert.Equal(t, stopB.ID, edgesFromA[0].To)
	assert.Equal(t, int64(1), edgesFromA[0].RouteID)
	assert.Equal(t, "R1", edgesFromA[0].RouteName)
	assert.InDelta(t, expected, edgesFromA[0].Seconds, 0.01)

	// Travel follows the stop order: B reaches C, the last stop goes nowhere
	require.Len(t, g.Edges(stopB.ID), 1)
	assert.Equal(t, stopC.ID, g.Edges(stopB.ID)[0].To)
	assert.Empty(t, g.Edges(stopC.ID))
}

func TestBuildSkipsShortRoutes(t *testing.T) {
	stopA := models.Stop{ID: 1, Name: "A", Location: models.Point{Lat: 10.40, Lon: -75.50}}
	stopB := models.Stop{ID: 2, Name: "B", Location: models.Point{Lat: 10.41, Lon: -75.51}}

	src := &fakeRouteSource{routes: []models.Route{
		testRoute(1, "solo", stopA),
		testRoute(2, "pair", stopA, stopB),
	}}

	g := New()
	require.NoError(t, g.Build(context.Background(), src, 20))

	nodes, edges := g.Size()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 1, edges)
}

func TestBuildClampsTinySegments(t *testing.T) {
	stopA := models.Stop{ID: 1, Name: "A", Location: models.Point{Lat: 10.400000, Lon: -75.500000}}
	stopB := models.Stop{ID: 2, Name: "B", Location: models.Point{Lat: 10.400001, Lon: -75.500000}}

	src := &fakeRouteSource{routes: []models.Route{
		testRoute(1, "tiny", stopA, stopB),
	}}

	g := New()
	require.NoError(t, g.Build(context.Background(), src, 20))

	edges := g.Edges(stopA.ID)
	require.Len(t, edges, 1)
	assert.GreaterOrEqual(t, edges[0].Seconds, 1.0)
}

func TestBuildRejectsNonPositiveSpeed(t *testing.T) {
	g := New()
	assert.Error(t, g.Build(context.Background(), &fakeRouteSource{}, 0))
}

func TestBuildReplacesPreviousGraph(t *testing.T) {
	stopA := models.Stop{ID: 1, Name: "A", Location: models.Point{Lat: 10.40, Lon: -75.50}}
	stopB := models.Stop{ID: 2, Name: "B", Location: models.Point{Lat: 10.41, Lon: -75.51}}
	stopC := models.Stop{ID: 3, Name: "C", Location: models.Point{Lat: 10.42, Lon: -75.52}}

	g := New()
	require.NoError(t, g.Build(context.Background(), &fakeRouteSource{routes: []models.Route{
		testRoute(1, "R1", stopA, stopB, stopC),
	}}, 20))

	require.NoError(t, g.Build(context.Background(), &fakeRouteSource{routes: []models.Route{
		testRoute(1, "R1", stopA, stopB),
	}}, 20))

	nodes, _ := g.Size()
	assert.Equal(t, 2, nodes)
	assert.False(t, g.HasNode(stopC.ID))
}
