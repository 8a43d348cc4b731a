package api

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/transcaribe/tracking_core/internal/middleware"
	"github.com/transcaribe/tracking_core/internal/models"
)

// UserResponse is the client-facing rider representation
type UserResponse struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// RegisterUser handles POST /auth/register
func (s *Server) RegisterUser(c *fiber.Ctx) error {
	var req struct {
		Username  string `json:"username"`
		Password  string `json:"password"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" {
		return c.Status(422).JSON(fiber.Map{"error": "username and email are required"})
	}
	if len(req.Password) < 6 {
		return c.Status(422).JSON(fiber.Map{"error": "password must have at least 6 characters"})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
	}

	user, err := s.store.CreateUser(c.Context(), models.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        req.Email,
	})
	if err != nil {
		return storageError(c, err, "user not found")
	}

	return c.Status(201).JSON(toUserResponse(user))
}

// Login handles POST /auth/login
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	user, err := s.store.UserByUsername(c.Context(), req.Username)
	if err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "invalid credentials"})
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		return c.Status(401).JSON(fiber.Map{"error": "invalid credentials"})
	}

	token, err := middleware.IssueToken(s.tokens, user)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(fiber.Map{
		"access_token": token,
		"token_type":   "bearer",
		"user":         toUserResponse(user),
	})
}

// Me handles GET /auth/me
func (s *Server) Me(c *fiber.Ctx) error {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		return c.Status(401).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.JSON(toUserResponse(user))
}

// UpdateUser handles PUT /auth/users/:id. Riders can only edit themselves.
func (s *Server) UpdateUser(c *fiber.Ctx) error {
	current, ok := middleware.CurrentUser(c)
	if !ok {
		return c.Status(401).JSON(fiber.Map{"error": "unauthorized"})
	}

	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid user id"})
	}
	if id != current.ID {
		return c.Status(403).JSON(fiber.Map{"error": "cannot modify another user"})
	}

	var req struct {
		Username  *string `json:"username"`
		Password  *string `json:"password"`
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Email     *string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	updated := current
	if req.Username != nil && strings.TrimSpace(*req.Username) != "" {
		updated.Username = strings.TrimSpace(*req.Username)
	}
	if req.FirstName != nil {
		updated.FirstName = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updated.LastName = strings.TrimSpace(*req.LastName)
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) != "" {
		updated.Email = strings.TrimSpace(*req.Email)
	}
	if req.Password != nil {
		if len(*req.Password) < 6 {
			return c.Status(422).JSON(fiber.Map{"error": "password must have at least 6 characters"})
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "internal server error"})
		}
		updated.PasswordHash = string(hash)
	}

	saved, err := s.store.UpdateUser(c.Context(), updated)
	if err != nil {
		return storageError(c, err, "user not found")
	}
	return c.JSON(toUserResponse(saved))
}
