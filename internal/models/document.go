// Package models defines core data structures for documents and their OCR lifecycle.
package models

import "time"

// Status is the OCR lifecycle state of a document.
type Status string

const (
	// StatusPending is set at creation, before any processing has started.
	StatusPending Status = "pending"
	// StatusProcessing is set by the worker immediately before invoking OCR.
	StatusProcessing Status = "processing"
	// StatusCompleted is terminal; extracted text and confidence are present.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal; OCR failed and no text was extracted.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known status values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether the step s -> next is legal.
// The only legal paths are pending -> processing -> {completed, failed}.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	}
	return false
}

// Document represents a stored image plus its OCR state and result.
// Content holds the raw image bytes; it is set once at creation, never
// mutated, excluded from JSON responses, and served via a dedicated endpoint.
type Document struct {
	ID            int64     `json:"id" db:"id"`
	OriginalName  string    `json:"original_name" db:"original_name"`
	Content       []byte    `json:"-" db:"content"`
	Size          int64     `json:"size" db:"size"`
	MimeType      string    `json:"mime_type" db:"mime_type"`
	UploadedAt    time.Time `json:"uploaded_at" db:"uploaded_at"`
	Status        Status    `json:"status" db:"status"`
	ExtractedText *string   `json:"extracted_text" db:"extracted_text"`
	Confidence    *float64  `json:"confidence" db:"confidence"`
}

// DocumentSummary is the subset of Document returned by the upload endpoint.
// OCR fields are omitted because a freshly created document never has them.
type DocumentSummary struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"original_name"`
	Size         int64     `json:"size"`
	MimeType     string    `json:"mime_type"`
	UploadedAt   time.Time `json:"uploaded_at"`
	Status       Status    `json:"status"`
}

// Summary returns the upload-response view of d.
func (d *Document) Summary() DocumentSummary {
	return DocumentSummary{
		ID:           d.ID,
		OriginalName: d.OriginalName,
		Size:         d.Size,
		MimeType:     d.MimeType,
		UploadedAt:   d.UploadedAt,
		Status:       d.Status,
	}
}
