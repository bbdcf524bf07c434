package handlers

import (
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.authService.Register(c.UserContext(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrEmailTaken):
			return errorJSON(c, fiber.StatusConflict, "Email already registered")
		case errors.Is(err, services.ErrInvalidEmail), errors.Is(err, services.ErrWeakPassword):
			return errorJSON(c, fiber.StatusBadRequest, err.Error())
		}
		slog.Error("registration failed", "request_id", requestID(c), "action", "register", "error", err.Error())
		captureError(c, err)
		return errorJSON(c, fiber.StatusInternalServerError, "Internal Server Error")
	}

	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	resp, err := h.authService.Login(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			return errorJSON(c, fiber.StatusBadRequest, "Invalid email or password")
		}
		slog.Error("login failed", "request_id", requestID(c), "action", "login", "error", err.Error())
		captureError(c, err)
		return errorJSON(c, fiber.StatusInternalServerError, "Internal Server Error")
	}

	return c.JSON(resp)
}

func (h *AuthHandler) DeleteAccount(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid Token")
	}

	var req dto.DeleteAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	if err := h.authService.DeleteAccount(c.UserContext(), userID, req.Password); err != nil {
		switch {
		case errors.Is(err, services.ErrPasswordRequired):
			return errorJSON(c, fiber.StatusBadRequest, "Password is required")
		case errors.Is(err, services.ErrInvalidCredentials):
			return errorJSON(c, fiber.StatusUnauthorized, "Incorrect password. Please try again.")
		case errors.Is(err, services.ErrUserNotFound):
			return errorJSON(c, fiber.StatusNotFound, "User not found")
		}
		slog.Error("account deletion failed",
			"request_id", requestID(c),
			"user_id", userID.String(),
			"action", "delete_account",
			"error", err.Error(),
		)
		captureError(c, err)
		return errorJSON(c, fiber.StatusInternalServerError, "Failed to delete account")
	}

	slog.Info("account deleted", "user_id", userID.String())
	return c.JSON(fiber.Map{"message": "Account deleted successfully"})
}
