package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus represents the lifecycle state of a tracking session
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// BusStatus represents the lifecycle state of a virtual bus
type BusStatus string

const (
	BusActive   BusStatus = "active"
	BusInactive BusStatus = "inactive"
)

// Point is a WGS84 coordinate in decimal degrees
type Point struct {
	Lat float64 `json:"latitude"`
	Lon float64 `json:"longitude"`
}

// Stop represents a physical transit stop location
type Stop struct {
	ID       int64
	Name     string
	Location Point
}

// RouteStop is one entry of a route's ordered stop list
type RouteStop struct {
	Stop    Stop
	Ordinal int
}

// Route represents a transit line with its stops in ordinal order
type Route struct {
	ID    int64
	Name  string
	Stops []RouteStop
}

// Polyline returns the route's piecewise-linear path through its stops.
// The stop list must already be ordered by ordinal.
func (r Route) Polyline() []Point {
	pts := make([]Point, len(r.Stops))
	for i, rs := range r.Stops {
		pts[i] = rs.Stop.Location
	}
	return pts
}

// User represents a registered rider
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	FirstName    string
	LastName     string
	Email        string
	CreatedAt    time.Time
}

// TrackingSession is one rider's tracking lifecycle instance.
// At most one active session exists per rider.
type TrackingSession struct {
	ID              int64
	UserID          int64
	SelectedRouteID *int64 // route the rider plans to take, set at session start
	ReportedRouteID *int64 // route the rider declares to be aboard; authoritative once on-bus
	IsOnBus         bool
	AssignedBusID   *uuid.UUID
	Status          SessionStatus
	StartTime       time.Time
	EndTime         *time.Time
}

// LocationSample is one GPS report from a rider. History is append-only.
type LocationSample struct {
	UserID    int64
	Location  Point
	Speed     float64
	Heading   float64
	Timestamp time.Time
}

// VirtualBus is a synthetic vehicle produced by clustering co-located riders
// on the same reported route
type VirtualBus struct {
	ID              uuid.UUID
	RouteID         int64
	Location        Point
	CurrentSpeed    float64
	CurrentHeading  float64
	AssignedUserIDs []int64
	LastUpdate      time.Time
	Status          BusStatus
}

// Irregularity is a community-reported road irregularity with a vote tally
type Irregularity struct {
	ID          int64
	Title       string
	Description string
	Location    Point
	Active      bool
	Likes       int
	Dislikes    int
	CreatedAt   time.Time
	LastLikeAt  *time.Time
}

// IrregularityVote records a rider's single like/dislike on an irregularity
type IrregularityVote struct {
	ID             int64
	UserID         int64
	IrregularityID int64
	IsLike         bool
	CreatedAt      time.Time
}

// TripStop is one stop of a computed trip, with the route it is ridden on
type TripStop struct {
	Name      string  `json:"nombre"`
	RouteName string  `json:"ruta_nombre"`
	Lat       float64 `json:"latitude"`
	Lon       float64 `json:"longitude"`
}

// TripPlan is the user-facing result of a trip computation
type TripPlan struct {
	TotalMinutes     float64    `json:"tiempo_estimado_minutos"`
	OriginWalkMeters float64    `json:"distancia_origen_primera_parada_metros"`
	DestWalkMeters   float64    `json:"distancia_ultima_parada_destino_metros"`
	Stops            []TripStop `json:"paradas_trayecto"`
}
