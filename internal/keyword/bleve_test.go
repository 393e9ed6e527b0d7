package keyword

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/yomitori/internal/models"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func docWithText(id int64, name, text string) *models.Document {
	return &models.Document{ID: id, OriginalName: name, ExtractedText: &text}
}

func TestBleveIndex_AddAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Add(ctx, docWithText(1, "invoice.png", "Invoice #42 due March")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Add(ctx, docWithText(2, "receipt.png", "Grocery receipt total 12.50")); err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search(ctx, "invoice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 1 {
		t.Errorf("search 'invoice': got %+v", hits)
	}
	if hits[0].Score <= 0 {
		t.Errorf("score should be positive, got %f", hits[0].Score)
	}

	n, err := idx.DocCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("doc count: got %d, want 2", n)
	}
}

func TestBleveIndex_SearchByOriginalName(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Add(ctx, docWithText(7, "contract-final.png", "terms and conditions")); err != nil {
		t.Fatal(err)
	}
	hits, err := idx.Search(ctx, "contract", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].ID != 7 {
		t.Errorf("got %+v", hits)
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Add(ctx, docWithText(3, "memo.png", "quarterly planning memo")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Delete(ctx, 3); err != nil {
		t.Fatal(err)
	}
	hits, _ := idx.Search(ctx, "memo", 10)
	if len(hits) != 0 {
		t.Errorf("expected no hits after delete, got %d", len(hits))
	}

	// Deleting an unknown id is not an error.
	if err := idx.Delete(ctx, 999); err != nil {
		t.Errorf("delete unknown id: %v", err)
	}
}

func TestBleveIndex_ReopenExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bleve")
	idx, err := NewBleveIndex(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := idx.Add(ctx, docWithText(1, "a.png", "persistent text")); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBleveIndex(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	hits, err := reopened.Search(ctx, "persistent", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("expected indexed doc to survive reopen, got %d hits", len(hits))
	}
}
