// Package keyword provides ranked keyword (BM25) search over extracted text.
package keyword

import (
	"context"

	"github.com/hyperjump/yomitori/internal/models"
)

// Result is a single ranked search hit.
type Result struct {
	ID    int64   `json:"id"`
	Score float64 `json:"score"`
}

// Index defines ranked search operations over completed documents.
// Only documents with extracted text are ever indexed; the index is a
// secondary structure that can be rebuilt from storage at any time.
type Index interface {
	// Add indexes the document's extracted text and original name under its id.
	Add(ctx context.Context, doc *models.Document) error
	// Search runs a match query and returns up to limit hits, best first.
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	// Delete removes a document from the index. Unknown ids are not an error.
	Delete(ctx context.Context, id int64) error
	// DocCount returns the number of indexed documents.
	DocCount() (uint64, error)
	Close() error
}
