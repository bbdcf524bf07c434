package handlers

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const limitReachedCode = "LIMIT_REACHED"

type AnalyzeHandler struct {
	analysis *services.AnalysisService
	quota    *services.QuotaService
}

func NewAnalyzeHandler(analysis *services.AnalysisService, quota *services.QuotaService) *AnalyzeHandler {
	return &AnalyzeHandler{analysis: analysis, quota: quota}
}

// Analyze handles POST /api/analyze.
func (h *AnalyzeHandler) Analyze(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid Token")
	}

	var req dto.AnalyzeRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid request body")
	}

	res, err := h.analysis.Analyze(c.UserContext(), userID, services.AnalyzeInput{
		Text:        req.Text,
		FileContent: req.FileContent,
		FileType:    req.FileType,
		FileName:    req.FileName,
		Style:       req.Style,
	})
	if err != nil {
		return h.analyzeError(c, userID, err)
	}

	return c.JSON(dto.AnalyzeResponse{Document: res.Document, Credits: res.Credits})
}

func (h *AnalyzeHandler) analyzeError(c *fiber.Ctx, userID uuid.UUID, err error) error {
	var providerErr *services.ProviderError

	switch {
	case errors.Is(err, services.ErrNoContent):
		return errorJSON(c, fiber.StatusBadRequest, "No content provided")
	case errors.Is(err, services.ErrInvalidUpload):
		return errorJSON(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrUserNotFound):
		return errorJSON(c, fiber.StatusUnauthorized, "User not found")
	case errors.Is(err, services.ErrQuotaExhausted):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{
			Error: "Daily limit reached.",
			Code:  limitReachedCode,
		})
	case errors.Is(err, services.ErrProviderConfig):
		slog.Error("ai provider is not configured", "request_id", requestID(c), "action", "analyze")
		captureError(c, err)
		return errorJSON(c, fiber.StatusInternalServerError, "Server configuration error")
	case errors.As(err, &providerErr):
		details := providerErr.Details
		if details == "" {
			details = providerErr.Error()
		}
		captureError(c, err)
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{
			Error:   "AI Service Error",
			Details: details,
		})
	case errors.Is(err, services.ErrPersistence):
		slog.Error("analysis was generated but not recorded",
			"request_id", requestID(c),
			"user_id", userID.String(),
			"action", "record_analysis",
			"error", err.Error(),
		)
		captureError(c, err)
		return errorJSON(c, fiber.StatusInternalServerError, "Internal Server Error")
	}

	slog.Error("analysis failed",
		"request_id", requestID(c),
		"user_id", userID.String(),
		"action", "analyze",
		"error", err.Error(),
	)
	captureError(c, err)
	return errorJSON(c, fiber.StatusInternalServerError, "Internal Server Error")
}

// Credits handles GET /api/credits.
func (h *AnalyzeHandler) Credits(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid Token")
	}

	bal, err := h.quota.Balance(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return errorJSON(c, fiber.StatusUnauthorized, "User not found")
		}
		return err
	}

	return c.JSON(dto.CreditsResponse{Credits: bal.Credits, DailyAllowance: h.quota.DailyAllowance()})
}

// ListDocuments handles GET /api/documents.
func (h *AnalyzeHandler) ListDocuments(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid Token")
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	pageSize, _ := strconv.Atoi(c.Query("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	docs, total, err := h.analysis.ListDocuments(c.UserContext(), userID, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(dto.DocumentListResponse{
		Documents: docs,
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
	})
}

// GetDocument handles GET /api/documents/:id.
func (h *AnalyzeHandler) GetDocument(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return errorJSON(c, fiber.StatusUnauthorized, "Invalid Token")
	}

	docID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "Invalid document ID")
	}

	doc, err := h.analysis.GetDocument(c.UserContext(), userID, docID)
	if err != nil {
		if errors.Is(err, services.ErrDocumentMissing) {
			return errorJSON(c, fiber.StatusNotFound, "Document not found")
		}
		return err
	}

	return c.JSON(doc)
}
