package middleware

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/transcaribe/tracking_core/internal/models"
)

// TokenConfig holds JWT signing configuration
type TokenConfig struct {
	Secret []byte
	TTL    time.Duration
}

// LoadTokenConfigFromEnv loads JWT configuration from environment variables
func LoadTokenConfigFromEnv() TokenConfig {
	ttl, err := time.ParseDuration(getEnv("JWT_TTL", "24h"))
	if err != nil {
		ttl = 24 * time.Hour
	}
	return TokenConfig{
		Secret: []byte(getEnv("JWT_SECRET", "dev-secret-change-me")),
		TTL:    ttl,
	}
}

// IssueToken signs an HS256 access token for the user. The subject is the
// username; the numeric id travels in the uid claim.
func IssueToken(cfg TokenConfig, user models.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.Username,
		"uid": user.ID,
		"iat": now.Unix(),
		"exp": now.Add(cfg.TTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a signed token and returns its subject username
func ParseToken(cfg TokenConfig, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return cfg.Secret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

// UserLoader resolves a token subject to a rider. Implemented by the store.
type UserLoader interface {
	UserByUsername(ctx context.Context, username string) (models.User, error)
}

// RequireAuth validates the bearer token and loads the rider into locals
func RequireAuth(cfg TokenConfig, users UserLoader) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(401).JSON(fiber.Map{
				"error":   "missing_token",
				"message": "Authentication required. Use Authorization: Bearer YOUR_TOKEN",
			})
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_auth_format",
				"message": "Authorization header must be in format: Bearer YOUR_TOKEN",
			})
		}

		username, err := ParseToken(cfg, strings.TrimSpace(parts[1]))
		if err != nil {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_token",
				"message": "The provided token is invalid or expired",
			})
		}

		user, err := users.UserByUsername(c.Context(), username)
		if err != nil {
			return c.Status(401).JSON(fiber.Map{
				"error":   "invalid_token",
				"message": "The provided token is invalid or expired",
			})
		}

		c.Locals("user", user)
		return c.Next()
	}
}

// CurrentUser returns the authenticated rider stored by RequireAuth
func CurrentUser(c *fiber.Ctx) (models.User, bool) {
	user, ok := c.Locals("user").(models.User)
	return user, ok
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
