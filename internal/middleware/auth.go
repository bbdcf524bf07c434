package middleware

import (
	"errors"
	"strings"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/dto"
	jwtware "github.com/gofiber/contrib/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const userIDKey = "user_id"

// JWTProtected is the credential guard for /api routes. It rejects requests
// without a bearer token, verifies the token, and stores the caller's id in
// c.Locals("user_id").
func JWTProtected(cfg *config.Config) fiber.Handler {
	verify := jwtware.New(jwtware.Config{
		SigningKey: jwtware.SigningKey{JWTAlg: jwtware.HS256, Key: []byte(cfg.JWTSecret)},
		SuccessHandler: func(c *fiber.Ctx) error {
			id, err := userIDFromToken(c)
			if err != nil {
				return unauthorized(c, "Invalid Token")
			}
			c.Locals(userIDKey, id)
			return c.Next()
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return unauthorized(c, "Invalid Token")
		},
	})

	return func(c *fiber.Ctx) error {
		if strings.TrimSpace(c.Get(fiber.HeaderAuthorization)) == "" {
			return unauthorized(c, "Missing Authorization header")
		}
		return verify(c)
	}
}

// GetUserID returns the id stored by JWTProtected.
func GetUserID(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := c.Locals(userIDKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, errors.New("no authenticated user in context")
	}
	return id, nil
}

func userIDFromToken(c *fiber.Ctx) (uuid.UUID, error) {
	token, ok := c.Locals("user").(*jwt.Token)
	if !ok {
		return uuid.Nil, errors.New("invalid token in context")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, errors.New("invalid claims")
	}

	sub, ok := claims["sub"].(string)
	if !ok {
		return uuid.Nil, errors.New("missing sub claim")
	}

	return uuid.Parse(sub)
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: msg})
}
