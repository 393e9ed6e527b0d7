// Package ingest validates and persists uploaded images and schedules their processing.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/storage"
)

// ValidationError describes a rejected upload. It is returned before any
// persistence happens, so a rejected upload never leaves a partial document.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid upload: " + e.Reason
}

// Scheduler dispatches background processing for a document id. Submission is
// fire-and-forget: it must not block and gives no handle on the outcome.
type Scheduler interface {
	Submit(docID int64)
}

// Upload is the input to Ingest.
type Upload struct {
	// OriginalName is the client-supplied filename, kept as an opaque string.
	OriginalName string
	// Content holds the raw image bytes.
	Content []byte
}

// Service validates uploads, persists them as pending documents, and hands
// them to the scheduler.
type Service struct {
	storage   storage.Storage
	scheduler Scheduler
	maxBytes  int64
	logger    *zap.Logger
}

// NewService creates an ingestion service. maxBytes caps accepted upload size.
func NewService(store storage.Storage, scheduler Scheduler, maxBytes int64, logger *zap.Logger) *Service {
	return &Service{
		storage:   store,
		scheduler: scheduler,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Ingest validates the upload, persists it with status pending, and schedules
// exactly one processing task for it. The returned document carries the
// assigned id and initial status; OCR fields are always unset at this point.
//
// The content type is determined by sniffing the bytes rather than trusting
// any client-declared header.
func (s *Service) Ingest(ctx context.Context, up Upload) (*models.Document, error) {
	if len(up.Content) == 0 {
		return nil, &ValidationError{Reason: "empty file"}
	}
	if int64(len(up.Content)) > s.maxBytes {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("file size %d exceeds limit of %d bytes", len(up.Content), s.maxBytes),
		}
	}
	mtype := mimetype.Detect(up.Content)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return nil, &ValidationError{
			Reason: fmt.Sprintf("unsupported content type %s; only images are accepted", mtype.String()),
		}
	}

	doc := &models.Document{
		OriginalName: up.OriginalName,
		Content:      up.Content,
		Size:         int64(len(up.Content)),
		MimeType:     mtype.String(),
	}
	if err := s.storage.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}

	s.logger.Info("document ingested",
		zap.Int64("id", doc.ID),
		zap.String("name", doc.OriginalName),
		zap.String("mime_type", doc.MimeType),
		zap.Int64("size", doc.Size))

	s.scheduler.Submit(doc.ID)
	return doc, nil
}

// IngestFile reads the file at path and ingests it, using the base name as
// the original name. Used by the directory watcher.
func (s *Service) IngestFile(ctx context.Context, path string) (*models.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return s.Ingest(ctx, Upload{
		OriginalName: filepath.Base(path),
		Content:      content,
	})
}
