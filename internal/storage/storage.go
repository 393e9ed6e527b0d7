// Package storage defines the persistence interface for documents.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/yomitori/internal/models"
)

// ErrNotFound is returned when no document matches the requested id.
var ErrNotFound = errors.New("document not found")

// ErrInvalidTransition is returned when a status update targets a document
// whose current status does not permit the transition.
var ErrInvalidTransition = errors.New("invalid status transition")

// Storage defines document persistence operations.
//
// The three status mutations are field-scoped, conditional updates: each one
// only applies when the document is in the expected prior state, so a worker
// and a concurrent reader can never observe a partially applied result.
type Storage interface {
	// CreateDocument inserts doc with status pending and assigns its id
	// and upload timestamp. The id is monotonic and never reused.
	CreateDocument(ctx context.Context, doc *models.Document) error
	// GetDocument returns the full document including raw content.
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	// ListDocuments returns all documents ordered by upload time descending.
	// Raw content is not loaded.
	ListDocuments(ctx context.Context) ([]*models.Document, error)
	// SearchDocuments returns documents whose extracted text contains query
	// (case-insensitive substring), newest first. Documents without extracted
	// text are excluded. Raw content is not loaded.
	SearchDocuments(ctx context.Context, query string) ([]*models.Document, error)
	// DeleteDocument removes a document. Deleting an unknown id is not an
	// error; the bool reports whether a row was actually removed.
	DeleteDocument(ctx context.Context, id int64) (bool, error)

	// MarkProcessing transitions pending -> processing.
	MarkProcessing(ctx context.Context, id int64) error
	// MarkCompleted transitions processing -> completed, persisting text and
	// confidence together with the status in a single update.
	MarkCompleted(ctx context.Context, id int64, text string, confidence float64) error
	// MarkFailed transitions processing -> failed. Result fields stay unset.
	MarkFailed(ctx context.Context, id int64) error

	// CountDocuments returns the total number of documents.
	CountDocuments(ctx context.Context) (int64, error)
	// CountByStatus returns the number of documents per status.
	CountByStatus(ctx context.Context) (map[models.Status]int64, error)

	Close() error
}
