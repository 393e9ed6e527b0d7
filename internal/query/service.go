// Package query provides listing, retrieval, search, and deletion of documents.
package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/storage"
)

const (
	// DefaultRankedLimit is the ranked-search result count when unspecified.
	DefaultRankedLimit = 10
	// MaxRankedLimit caps ranked-search result counts.
	MaxRankedLimit = 100
)

// RankedHit pairs a document with its keyword relevance score.
type RankedHit struct {
	Document *models.Document `json:"document"`
	Score    float64          `json:"score"`
}

// Stats summarizes the document store for the status endpoint.
type Stats struct {
	Documents int64                   `json:"documents"`
	ByStatus  map[models.Status]int64 `json:"by_status"`
	Indexed   uint64                  `json:"indexed"`
}

// Service reads the document store and the ranked index. All reads are
// point-in-time snapshots; a document being processed concurrently shows
// whichever status its worker last persisted.
type Service struct {
	storage storage.Storage
	index   keyword.Index // optional; nil disables ranked search
	logger  *zap.Logger
}

// NewService creates a query service. idx may be nil, which disables ranked
// search and index maintenance on delete.
func NewService(store storage.Storage, idx keyword.Index, logger *zap.Logger) *Service {
	return &Service{storage: store, index: idx, logger: logger}
}

// List returns all documents, newest first.
func (s *Service) List(ctx context.Context) ([]*models.Document, error) {
	docs, err := s.storage.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Get returns the full document, including raw content, or storage.ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*models.Document, error) {
	return s.storage.GetDocument(ctx, id)
}

// Search returns documents whose extracted text contains query as a
// case-insensitive substring, newest first. A blank query is equivalent to
// List. Documents without extracted text never match.
func (s *Service) Search(ctx context.Context, query string) ([]*models.Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.List(ctx)
	}
	docs, err := s.storage.SearchDocuments(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	return docs, nil
}

// RankedSearch runs a relevance-ranked keyword query over completed
// documents. Hits whose document was deleted since indexing are skipped.
func (s *Service) RankedSearch(ctx context.Context, query string, limit int) ([]*RankedHit, error) {
	if s.index == nil {
		return nil, fmt.Errorf("ranked search not enabled")
	}
	if limit <= 0 {
		limit = DefaultRankedLimit
	}
	if limit > MaxRankedLimit {
		limit = MaxRankedLimit
	}
	results, err := s.index.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ranked search: %w", err)
	}

	hits := make([]*RankedHit, 0, len(results))
	for _, r := range results {
		doc, err := s.storage.GetDocument(ctx, r.ID)
		if err == storage.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		doc.Content = nil // search responses carry metadata only
		hits = append(hits, &RankedHit{Document: doc, Score: r.Score})
	}
	return hits, nil
}

// Delete removes a document regardless of its status. Deleting an unknown id
// is not an error. The ranked index entry, if any, is removed as well.
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.storage.DeleteDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if !deleted {
		s.logger.Debug("delete of unknown document", zap.Int64("id", id))
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Warn("keyword index delete failed", zap.Int64("id", id), zap.Error(err))
		}
	}
	return nil
}

// Stats returns document counts for the status endpoint.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.storage.CountDocuments(ctx)
	if err != nil {
		return nil, err
	}
	byStatus, err := s.storage.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats := &Stats{Documents: total, ByStatus: byStatus}
	if s.index != nil {
		if n, err := s.index.DocCount(); err == nil {
			stats.Indexed = n
		}
	}
	return stats, nil
}
