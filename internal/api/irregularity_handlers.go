package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/transcaribe/tracking_core/internal/middleware"
	"github.com/transcaribe/tracking_core/internal/models"
)

// IrregularityResponse is the client-facing irregularity representation
type IrregularityResponse struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Active      bool       `json:"active"`
	Likes       int        `json:"likes"`
	Dislikes    int        `json:"dislikes"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLikeAt  *time.Time `json:"last_like_at"`
}

func toIrregularityResponse(irr models.Irregularity) IrregularityResponse {
	return IrregularityResponse{
		ID:          irr.ID,
		Title:       irr.Title,
		Description: irr.Description,
		Latitude:    irr.Location.Lat,
		Longitude:   irr.Location.Lon,
		Active:      irr.Active,
		Likes:       irr.Likes,
		Dislikes:    irr.Dislikes,
		CreatedAt:   irr.CreatedAt,
		LastLikeAt:  irr.LastLikeAt,
	}
}

// ReportIrregularity handles POST /irregularities/report
func (s *Server) ReportIrregularity(c *fiber.Ctx) error {
	var req struct {
		Title       string  `json:"title"`
		Description string  `json:"description"`
		Latitude    float64 `json:"latitude"`
		Longitude   float64 `json:"longitude"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.Status(422).JSON(fiber.Map{"error": "title is required"})
	}
	if !validCoordinates(req.Latitude, req.Longitude) {
		return c.Status(422).JSON(fiber.Map{"error": "coordinates out of range"})
	}

	irr, err := s.store.CreateIrregularity(c.Context(), models.Irregularity{
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Location:    models.Point{Lat: req.Latitude, Lon: req.Longitude},
		Active:      true,
	})
	if err != nil {
		return storageError(c, err, "irregularity not found")
	}
	return c.Status(201).JSON(toIrregularityResponse(irr))
}

// IrregularityByID handles GET /irregularities/search/:id
func (s *Server) IrregularityByID(c *fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid irregularity id"})
	}

	irr, err := s.store.IrregularityByID(c.Context(), id)
	if err != nil {
		return storageError(c, err, "irregularity not found")
	}
	return c.JSON(toIrregularityResponse(irr))
}

// ActiveIrregularities handles GET /irregularities/active
func (s *Server) ActiveIrregularities(c *fiber.Ctx) error {
	list, err := s.store.ActiveIrregularities(c.Context())
	if err != nil {
		return storageError(c, err, "not found")
	}

	out := make([]IrregularityResponse, len(list))
	for i, irr := range list {
		out[i] = toIrregularityResponse(irr)
	}
	return c.JSON(out)
}

// VoteLike handles POST /irregularities/vote/:id/like
func (s *Server) VoteLike(c *fiber.Ctx) error {
	return s.vote(c, true)
}

// VoteDislike handles POST /irregularities/vote/:id/dislike
func (s *Server) VoteDislike(c *fiber.Ctx) error {
	return s.vote(c, false)
}

// vote records or toggles the rider's vote and returns the fresh tally
func (s *Server) vote(c *fiber.Ctx, isLike bool) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.Status(401).JSON(fiber.Map{"error": "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid irregularity id"})
	}

	if _, err := s.store.Vote(c.Context(), user.ID, id, isLike); err != nil {
		return storageError(c, err, "irregularity not found")
	}

	irr, err := s.store.IrregularityByID(c.Context(), id)
	if err != nil {
		return storageError(c, err, "irregularity not found")
	}
	return c.JSON(toIrregularityResponse(irr))
}
