package services

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/metrics"
	"github.com/ahmetcoskunkizilkaya/plainnow-backend/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultFilename = "Uploaded Document"

var allowedFileTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/webp":      true,
	"image/heic":      true,
	"image/heif":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// AnalyzeInput is a raw submission as received from the client.
type AnalyzeInput struct {
	Text        string
	FileContent string // base64
	FileType    string
	FileName    string
	Style       string
}

// DocumentMeta describes the Document that will be recorded for a submission.
type DocumentMeta struct {
	Filename string
	Type     string
	Size     int
	Content  string
}

// AnalyzeResult is the persisted Document (with its Analysis) and the
// caller's balance after deduction.
type AnalyzeResult struct {
	Document *models.Document
	Credits  int
}

type preparedInput struct {
	gen  GenerateRequest
	meta DocumentMeta
}

// AnalysisService runs the credit-gated analysis pipeline.
type AnalysisService struct {
	db        *gorm.DB
	quota     *QuotaService
	ai        Generator
	recorder  *Recorder
	maxUpload int
}

func NewAnalysisService(db *gorm.DB, cfg *config.Config, quota *QuotaService, ai Generator) *AnalysisService {
	return &AnalysisService{
		db:        db,
		quota:     quota,
		ai:        ai,
		recorder:  NewRecorder(db, quota),
		maxUpload: cfg.MaxUploadBytes,
	}
}

// Analyze validates the submission, checks the caller's quota, calls the AI
// provider once, normalizes its output and records the result. A credit is
// only deducted after the Document is committed.
func (s *AnalysisService) Analyze(ctx context.Context, userID uuid.UUID, in AnalyzeInput) (*AnalyzeResult, error) {
	prepared, err := s.prepare(in)
	if err != nil {
		return nil, err
	}

	balance, err := s.quota.Check(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := s.ai.Generate(ctx, prepared.gen)
	if err != nil {
		slog.Error("ai generation failed",
			"user_id", userID.String(),
			"action", "analyze",
			"error", err.Error(),
			"latency_ms", float64(time.Since(start).Milliseconds()),
		)
		return nil, err
	}

	normalized := Normalize(raw)
	outcome := "parsed"
	if normalized.Recovered {
		outcome = "recovered"
		slog.Warn("ai output was not structured, stored as plain meaning", "user_id", userID.String(), "raw_length", len(raw))
	}

	result, err := s.recorder.Record(ctx, userID, prepared.meta, normalized.Result, balance.Credits)
	if err != nil {
		return nil, err
	}

	metrics.AnalysesTotal.WithLabelValues(outcome).Inc()
	return result, nil
}

func (s *AnalysisService) prepare(in AnalyzeInput) (*preparedInput, error) {
	text := strings.TrimSpace(in.Text)
	encoded := strings.TrimSpace(in.FileContent)

	if text == "" && encoded == "" {
		return nil, ErrNoContent
	}

	filename := strings.TrimSpace(in.FileName)
	if filename == "" {
		filename = defaultFilename
	}

	if encoded == "" {
		return &preparedInput{
			gen: GenerateRequest{Text: text, Style: in.Style},
			meta: DocumentMeta{
				Filename: filename,
				Type:     "text/plain",
				Size:     len(text),
				Content:  text,
			},
		}, nil
	}

	fileType := strings.ToLower(strings.TrimSpace(in.FileType))
	if fileType == "" {
		return nil, &UploadError{Reason: "fileType is required with fileContent"}
	}
	if !allowedFileTypes[fileType] {
		return nil, &UploadError{Reason: "Unsupported file type: " + fileType}
	}

	// Tolerate data URLs from browser FileReader output.
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	if s.maxUpload > 0 && base64.StdEncoding.DecodedLen(len(encoded)) > s.maxUpload+2 {
		return nil, &UploadError{Reason: "File too large"}
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &UploadError{Reason: "Invalid file content"}
	}
	if len(data) == 0 {
		return nil, &UploadError{Reason: "Invalid file content"}
	}
	if s.maxUpload > 0 && len(data) > s.maxUpload {
		return nil, &UploadError{Reason: "File too large"}
	}

	sum := sha256.Sum256(data)
	content := "sha256:" + hex.EncodeToString(sum[:])
	if text != "" {
		content = text
	}

	return &preparedInput{
		gen: GenerateRequest{Text: text, File: data, MimeType: fileType, Style: in.Style},
		meta: DocumentMeta{
			Filename: filename,
			Type:     fileType,
			Size:     len(data),
			Content:  content,
		},
	}, nil
}

// ListDocuments returns the caller's documents, newest first.
func (s *AnalysisService) ListDocuments(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]models.Document, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.Document{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var docs []models.Document
	err := s.db.WithContext(ctx).Preload("Analysis").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(pageSize).Offset((page - 1) * pageSize).
		Find(&docs).Error
	if err != nil {
		return nil, 0, err
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, total, nil
}

func (s *AnalysisService) GetDocument(ctx context.Context, userID, documentID uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Preload("Analysis").
		Where("user_id = ? AND id = ?", userID, documentID).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDocumentMissing
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// Recorder persists a Document and its Analysis as one unit, then deducts a
// credit from the owner.
type Recorder struct {
	db    *gorm.DB
	quota *QuotaService
}

func NewRecorder(db *gorm.DB, quota *QuotaService) *Recorder {
	return &Recorder{db: db, quota: quota}
}

// Record commits the Document and Analysis together. If the deduction fails
// afterwards the Document stays recorded, the credit is not taken, and
// balance is reported back unchanged.
func (r *Recorder) Record(ctx context.Context, userID uuid.UUID, meta DocumentMeta, analysis AnalysisResult, balance int) (*AnalyzeResult, error) {
	doc := models.Document{
		UserID:   userID,
		Filename: meta.Filename,
		Type:     meta.Type,
		Size:     meta.Size,
		Content:  meta.Content,
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Analysis").Create(&doc).Error; err != nil {
			return err
		}
		doc.Analysis = models.Analysis{
			DocumentID: doc.ID,
			Meaning:    analysis.Meaning,
			Actions:    analysis.Actions,
			RiskLevel:  analysis.RiskLevel,
			RiskReason: analysis.RiskReason,
		}
		return tx.Create(&doc.Analysis).Error
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	remaining, applied, err := r.quota.Deduct(ctx, userID)
	if err != nil {
		slog.Error("credit deduction failed after analysis was recorded",
			"user_id", userID.String(),
			"action", "quota_deduct",
			"document_id", doc.ID.String(),
			"error", err.Error(),
		)
		metrics.DeductionFailuresTotal.Inc()
		return &AnalyzeResult{Document: &doc, Credits: balance}, nil
	}
	if !applied {
		slog.Warn("no stored credit to deduct", "user_id", userID.String(), "document_id", doc.ID.String())
		metrics.DeductionFailuresTotal.Inc()
	}

	return &AnalyzeResult{Document: &doc, Credits: remaining}, nil
}
