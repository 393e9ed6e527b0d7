// Package storage provides the SQLite implementation of the Storage interface.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/yomitori/internal/models"
)

// SQLiteStorage implements Storage using SQLite. Raw image bytes are stored
// as a blob column in the same row as the metadata.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	// AUTOINCREMENT keeps ids monotonic and prevents reuse after deletion.
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		original_name TEXT NOT NULL,
		content BLOB NOT NULL,
		size INTEGER NOT NULL,
		mime_type TEXT NOT NULL,
		uploaded_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		extracted_text TEXT,
		confidence REAL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at ON documents(uploaded_at);
	CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document with status pending and assigns its id.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	doc.UploadedAt = time.Now().UTC()
	doc.Status = models.StatusPending

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (original_name, content, size, mime_type, uploaded_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		doc.OriginalName, doc.Content, doc.Size, doc.MimeType, doc.UploadedAt, doc.Status,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("fetch assigned id: %w", err)
	}
	doc.ID = id
	return nil
}

// GetDocument returns a document by id, including raw content.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, original_name, content, size, mime_type, uploaded_at, status, extracted_text, confidence
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.OriginalName, &doc.Content, &doc.Size, &doc.MimeType,
		&doc.UploadedAt, &doc.Status, &doc.ExtractedText, &doc.Confidence)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// metadataColumns is the select list shared by List and Search; raw content
// is deliberately left out of multi-row reads.
const metadataColumns = `id, original_name, size, mime_type, uploaded_at, status, extracted_text, confidence`

func (s *SQLiteStorage) queryDocuments(ctx context.Context, where string, args ...interface{}) ([]*models.Document, error) {
	q := `SELECT ` + metadataColumns + ` FROM documents`
	if where != "" {
		q += ` WHERE ` + where
	}
	q += ` ORDER BY uploaded_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.OriginalName, &doc.Size, &doc.MimeType,
			&doc.UploadedAt, &doc.Status, &doc.ExtractedText, &doc.Confidence); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// ListDocuments returns all documents, newest first.
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	return s.queryDocuments(ctx, "")
}

// SearchDocuments returns documents whose extracted text contains query,
// case-insensitive, newest first. SQLite's lower() folds ASCII only, which
// matches the case handling used elsewhere in the service.
func (s *SQLiteStorage) SearchDocuments(ctx context.Context, query string) ([]*models.Document, error) {
	return s.queryDocuments(ctx,
		`extracted_text IS NOT NULL AND instr(lower(extracted_text), lower(?)) > 0`, query)
}

// DeleteDocument removes a document by id. The id is never reassigned.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// transition applies a conditional status update. The WHERE clause on the
// prior status makes the state machine enforcement atomic in the database:
// zero rows affected means either the document is gone or it is not in the
// expected state.
func (s *SQLiteStorage) transition(ctx context.Context, id int64, from, to models.Status, set string, args ...interface{}) error {
	q := `UPDATE documents SET status = ?`
	if set != "" {
		q += `, ` + set
	}
	q += ` WHERE id = ? AND status = ?`

	execArgs := append([]interface{}{to}, args...)
	execArgs = append(execArgs, id, from)

	res, err := s.db.ExecContext(ctx, q, execArgs...)
	if err != nil {
		return fmt.Errorf("update status to %s: %w", to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var current models.Status
		err := s.db.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = ?`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s -> %s (document %d)", ErrInvalidTransition, current, to, id)
	}
	return nil
}

// MarkProcessing transitions pending -> processing.
func (s *SQLiteStorage) MarkProcessing(ctx context.Context, id int64) error {
	return s.transition(ctx, id, models.StatusPending, models.StatusProcessing, "")
}

// MarkCompleted transitions processing -> completed, writing text and
// confidence in the same statement as the status change.
func (s *SQLiteStorage) MarkCompleted(ctx context.Context, id int64, text string, confidence float64) error {
	return s.transition(ctx, id, models.StatusProcessing, models.StatusCompleted,
		`extracted_text = ?, confidence = ?`, text, confidence)
}

// MarkFailed transitions processing -> failed, leaving result fields unset.
func (s *SQLiteStorage) MarkFailed(ctx context.Context, id int64) error {
	return s.transition(ctx, id, models.StatusProcessing, models.StatusFailed, "")
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// CountByStatus returns the number of documents per status.
func (s *SQLiteStorage) CountByStatus(ctx context.Context) (map[models.Status]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM documents GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[models.Status]int64)
	for rows.Next() {
		var status models.Status
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
