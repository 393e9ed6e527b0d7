// Package worker provides background OCR processing of ingested documents.
package worker

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/ocr"
	"github.com/hyperjump/yomitori/internal/storage"
	"github.com/hyperjump/yomitori/pkg/utils"
)

// Processor drives a single document through the OCR state machine:
// load, pending -> processing, recognize, processing -> {completed, failed}.
//
// Every failure inside Process is terminal for that document and observable
// only through logs and the persisted status; nothing propagates to the
// caller that scheduled the work. A document is never retried; recovery is
// re-uploading the image as a new document.
type Processor struct {
	storage   storage.Storage
	engine    ocr.Engine
	index     keyword.Index // optional; nil disables ranked indexing
	languages []string
	timeout   time.Duration // bound on one recognition run; 0 = unbounded
	logger    *zap.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithKeywordIndex makes completed documents searchable in the ranked index.
func WithKeywordIndex(idx keyword.Index) ProcessorOption {
	return func(p *Processor) { p.index = idx }
}

// WithTimeout bounds a single recognition run. On expiry the document is
// marked failed instead of sitting in processing forever.
func WithTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) { p.timeout = d }
}

// NewProcessor creates a processor with the given dependencies. languages are
// the trained-data hints passed to the engine on every run.
func NewProcessor(store storage.Storage, engine ocr.Engine, languages []string, logger *zap.Logger, opts ...ProcessorOption) *Processor {
	p := &Processor{
		storage:   store,
		engine:    engine,
		languages: languages,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs the state machine for one document.
func (p *Processor) Process(ctx context.Context, docID int64) {
	log := p.logger.With(zap.Int64("id", docID))

	doc, err := p.storage.GetDocument(ctx, docID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			// Deleted between scheduling and pickup; nothing to do.
			log.Warn("document vanished before processing")
		} else {
			log.Error("load document failed", zap.Error(err))
		}
		return
	}

	// Claim the document before the (potentially long) OCR call so that
	// concurrent readers observe processing. The conditional update also
	// rejects a second claim of the same document.
	if err := p.storage.MarkProcessing(ctx, docID); err != nil {
		if errors.Is(err, storage.ErrInvalidTransition) {
			log.Warn("document not pending, skipping", zap.Error(err))
		} else {
			log.Error("mark processing failed", zap.Error(err))
		}
		return
	}

	result, err := p.recognize(ctx, doc)
	if err != nil {
		log.Warn("recognition failed", zap.String("engine", p.engine.Name()), zap.Error(err))
		if err := p.storage.MarkFailed(ctx, docID); err != nil {
			log.Error("mark failed failed", zap.Error(err))
		}
		return
	}

	if err := p.storage.MarkCompleted(ctx, docID, result.Text, result.Confidence); err != nil {
		log.Error("mark completed failed", zap.Error(err))
		return
	}
	log.Info("document processed",
		zap.Float64("confidence", result.Confidence),
		zap.String("text_preview", utils.Preview(result.Text, 80)))

	if p.index != nil {
		doc.Status = models.StatusCompleted
		doc.ExtractedText = &result.Text
		doc.Confidence = &result.Confidence
		if err := p.index.Add(ctx, doc); err != nil {
			// The ranked index is secondary; the document stays completed.
			log.Warn("keyword indexing failed", zap.Error(err))
		}
	}
}

func (p *Processor) recognize(ctx context.Context, doc *models.Document) (ocr.Result, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	return p.engine.Recognize(ctx, ocr.Input{
		Image:     doc.Content,
		MimeType:  doc.MimeType,
		Languages: p.languages,
	})
}
