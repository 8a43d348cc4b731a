package graph

import (
	"sync"

	"github.com/transcaribe/tracking_core/internal/models"
)

// Edge is one directed segment of the route graph: ride from one stop to
// the next on a specific route, weighted in seconds
type Edge struct {
	To        int64
	RouteID   int64
	RouteName string
	Seconds   float64
}

// Graph holds the stop graph in memory for fast planner lookups. It is
// derived from the geostore and rebuilt on demand; concurrent readers share
// it under an RWMutex.
type Graph struct {
	mu     sync.RWMutex
	nodes  map[int64]models.Stop
	edges  map[int64][]Edge
	loaded bool
}

// New returns an empty graph
func New() *Graph {
	return &Graph{
		nodes: make(map[int64]models.Stop),
		edges: make(map[int64][]Edge),
	}
}

// IsLoaded returns true if the graph has been built at least once
func (g *Graph) IsLoaded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loaded
}

// Node returns a stop by id (in-memory lookup)
func (g *Graph) Node(stopID int64) (models.Stop, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	stop, ok := g.nodes[stopID]
	return stop, ok
}

// Edges returns outgoing edges for a stop (in-memory lookup)
func (g *Graph) Edges(stopID int64) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[stopID]
}

// HasNode reports whether the stop is part of the graph
func (g *Graph) HasNode(stopID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[stopID]
	return ok
}

// Size returns the node and edge counts
func (g *Graph) Size() (nodes, edges int) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, es := range g.edges {
		edges += len(es)
	}
	return len(g.nodes), edges
}

// swap installs the freshly built node and edge maps
func (g *Graph) swap(nodes map[int64]models.Stop, edges map[int64][]Edge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = nodes
	g.edges = edges
	g.loaded = true
}
