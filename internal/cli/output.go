// Package cli provides output helpers for the Yomitori command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/query"
	"github.com/hyperjump/yomitori/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteDocuments writes a document list to w in the given format.
func WriteDocuments(w io.Writer, docs []*models.Document, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(docs)
	}
	fmt.Fprintf(w, "%d document(s)\n", len(docs))
	for _, doc := range docs {
		writeOneDocument(w, doc)
	}
	return nil
}

// WriteDocument writes a single document to w in the given format.
func WriteDocument(w io.Writer, doc *models.Document, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
	writeOneDocument(w, doc)
	return nil
}

// WriteRankedHits writes ranked search hits to w in the given format.
func WriteRankedHits(w io.Writer, hits []*query.RankedHit, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(hits)
	}
	fmt.Fprintf(w, "%d hit(s)\n", len(hits))
	for _, hit := range hits {
		writeOneDocument(w, hit.Document)
		fmt.Fprintf(w, "Score: %.4f\n", hit.Score)
	}
	return nil
}

func writeOneDocument(w io.Writer, doc *models.Document) {
	fmt.Fprintf(w, "─────────────────────────────────────────────\n")
	fmt.Fprintf(w, "ID: %d | %s | %s\n", doc.ID, doc.Status, doc.UploadedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Name: %s (%s, %d bytes)\n", doc.OriginalName, doc.MimeType, doc.Size)
	if doc.ExtractedText != nil {
		conf := 0.0
		if doc.Confidence != nil {
			conf = *doc.Confidence
		}
		fmt.Fprintf(w, "Confidence: %.1f\n", conf)
		fmt.Fprintf(w, "Text: %s\n", utils.Preview(*doc.ExtractedText, 200))
	}
}
