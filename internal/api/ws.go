package api

import (
	"context"
	"encoding/json"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/transcaribe/tracking_core/internal/models"
)

// sessionRecheckInterval caps how often a live stream re-verifies the
// on-bus precondition; between checks the clustering engine already
// ignores samples from riders who stopped or alighted.
const sessionRecheckInterval = 30 * time.Second

// recheckDue reports whether the precondition check has gone stale
func recheckDue(lastCheck, now time.Time) bool {
	return now.Sub(lastCheck) >= sessionRecheckInterval
}

// locationFrame is one inbound WebSocket message
type locationFrame struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Speed     *float64 `json:"speed"`
	Heading   *float64 `json:"heading"`
}

// LocationStream handles /ws/location/:user_id. Each connection is one
// rider's persistent sample stream: every frame is appended to the location
// history and enqueued for the clustering engine. Reads on one connection
// are serialized by the read loop.
func (s *Server) LocationStream(conn *websocket.Conn) {
	defer conn.Close()

	userID, err := strconv.ParseInt(conn.Params("user_id"), 10, 64)
	if err != nil {
		closePolicy(conn, "invalid user id")
		return
	}

	ctx := context.Background()
	session, err := s.store.ActiveSessionFor(ctx, userID)
	if err != nil || !session.IsOnBus {
		closePolicy(conn, "active on-bus session required")
		return
	}

	log.Printf("ws: user %d connected", userID)
	defer log.Printf("ws: user %d disconnected", userID)

	lastCheck := time.Now()
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame locationFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			writeError(conn, "invalid JSON payload")
			continue
		}
		if !validCoordinates(frame.Latitude, frame.Longitude) {
			writeError(conn, "coordinates out of range")
			continue
		}

		// Preconditions can lapse mid-stream (stop-session, alighting);
		// recheck on a cadence rather than per frame.
		if recheckDue(lastCheck, time.Now()) {
			session, err := s.store.ActiveSessionFor(ctx, userID)
			if err != nil || !session.IsOnBus {
				closePolicy(conn, "active on-bus session required")
				return
			}
			lastCheck = time.Now()
		}

		sample := models.LocationSample{
			UserID:    userID,
			Location:  models.Point{Lat: frame.Latitude, Lon: frame.Longitude},
			Timestamp: time.Now().UTC(),
		}
		if frame.Speed != nil {
			sample.Speed = *frame.Speed
		}
		if frame.Heading != nil {
			sample.Heading = *frame.Heading
		}

		if err := s.store.AppendLocation(ctx, sample); err != nil {
			log.Printf("ws: failed to persist sample for user %d: %v", userID, err)
			writeError(conn, "failed to record location")
			continue
		}
		s.queue.Push(sample)
	}
}

func writeError(conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(map[string]string{"error": msg})
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		log.Printf("ws: failed to write error frame: %v", err)
	}
}

func closePolicy(conn *websocket.Conn, reason string) {
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
}
