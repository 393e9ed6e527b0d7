package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/yomitori/internal/config"
	"github.com/hyperjump/yomitori/internal/ingest"
	"github.com/hyperjump/yomitori/internal/keyword"
	"github.com/hyperjump/yomitori/internal/models"
	"github.com/hyperjump/yomitori/internal/ocr"
	"github.com/hyperjump/yomitori/internal/query"
	"github.com/hyperjump/yomitori/internal/storage"
	"github.com/hyperjump/yomitori/internal/worker"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1A, '\n'}

type testServer struct {
	handler http.Handler
	store   *storage.SQLiteStorage
}

func newTestServer(t *testing.T, engine ocr.Engine) *testServer {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	idx, err := keyword.NewBleveIndex(filepath.Join(dir, "bleve"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })

	logger := zap.NewNop()
	processor := worker.NewProcessor(store, engine, []string{"eng"}, logger,
		worker.WithKeywordIndex(idx), worker.WithTimeout(5*time.Second))
	pool := worker.NewPool(processor, 2, 8, logger)
	t.Cleanup(func() { pool.Stop(context.Background()) })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "test.db")
	cfg.Storage.BleveIndexPath = filepath.Join(dir, "bleve")

	ing := ingest.NewService(store, pool, cfg.Ingest.MaxUploadBytes, logger)
	qry := query.NewService(store, idx, logger)
	srv := NewServer(ing, qry, cfg, logger)
	return &testServer{handler: srv.Router(), store: store}
}

func multipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (ts *testServer) upload(t *testing.T, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartUpload(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/documents", body)
	req.Header.Set("Content-Type", contentType)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func (ts *testServer) waitForStatus(t *testing.T, id int64, want models.Status) *models.Document {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		doc, err := ts.store.GetDocument(context.Background(), id)
		if err == nil && doc.Status == want {
			return doc
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("document %d never reached status %s", id, want)
	return nil
}

func decodeUpload(t *testing.T, w *httptest.ResponseRecorder) uploadResponse {
	t.Helper()
	var resp uploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestHandleUpload_PendingThenCompleted(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("Invoice #42", 93))

	w := ts.upload(t, "invoice.png", pngHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	resp := decodeUpload(t, w)
	if !resp.Success {
		t.Error("success should be true")
	}
	if resp.Document.Status != models.StatusPending {
		t.Errorf("initial status: got %s, want pending", resp.Document.Status)
	}
	if resp.Document.OriginalName != "invoice.png" {
		t.Errorf("original name: got %s", resp.Document.OriginalName)
	}

	ts.waitForStatus(t, resp.Document.ID, models.StatusCompleted)

	req := httptest.NewRequest(http.MethodGet, "/documents/"+itoa(resp.Document.ID), nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: got %d", rec.Code)
	}
	var doc models.Document
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatal(err)
	}
	if doc.Status != models.StatusCompleted {
		t.Errorf("status: got %s, want completed", doc.Status)
	}
	if doc.ExtractedText == nil || *doc.ExtractedText != "Invoice #42" {
		t.Errorf("extracted text: got %v", doc.ExtractedText)
	}
	if doc.Confidence == nil || *doc.Confidence < 0 || *doc.Confidence > 100 {
		t.Errorf("confidence out of range: %v", doc.Confidence)
	}
}

func TestHandleUpload_RejectsNonImage(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("never", 1))

	w := ts.upload(t, "notes.txt", []byte("plain text content"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}

	// No document was created.
	count, _ := ts.store.CountDocuments(context.Background())
	if count != 0 {
		t.Errorf("document count: got %d, want 0", count)
	}
}

func TestHandleUpload_RejectsOversize(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("never", 1))

	big := append(append([]byte{}, pngHeader...), make([]byte, 11<<20)...)
	w := ts.upload(t, "huge.png", big)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
	count, _ := ts.store.CountDocuments(context.Background())
	if count != 0 {
		t.Errorf("document count: got %d, want 0", count)
	}
}

func TestHandleUpload_MissingField(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("never", 1))
	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(nil))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleList_NewestFirst(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("text", 50))

	first := decodeUpload(t, ts.upload(t, "a.png", pngHeader))
	second := decodeUpload(t, ts.upload(t, "b.png", pngHeader))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var docs []*models.Document
	if err := json.NewDecoder(w.Body).Decode(&docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	if docs[0].ID != second.Document.ID || docs[1].ID != first.Document.ID {
		t.Errorf("order: got %d, %d", docs[0].ID, docs[1].ID)
	}
}

func TestHandleGet_NotFound(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("text", 50))

	for _, path := range []string{"/documents/999", "/documents/abc"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s: got %d, want 404", path, w.Code)
		}
	}
}

func TestHandleContent(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("text", 50))
	resp := decodeUpload(t, ts.upload(t, "scan.png", pngHeader))

	req := httptest.NewRequest(http.MethodGet, "/documents/"+itoa(resp.Document.ID)+"/content", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type: got %s", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), pngHeader) {
		t.Error("body differs from uploaded content")
	}
}

func TestHandleSearch_CaseInsensitiveSubstring(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("Invoice #42", 90))
	resp := decodeUpload(t, ts.upload(t, "invoice.png", pngHeader))
	ts.waitForStatus(t, resp.Document.ID, models.StatusCompleted)

	req := httptest.NewRequest(http.MethodGet, "/documents/search/invoice", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var docs []*models.Document
	if err := json.NewDecoder(w.Body).Decode(&docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].ID != resp.Document.ID {
		t.Errorf("got %d docs", len(docs))
	}
}

func TestHandleDelete_Idempotent(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("text", 50))
	resp := decodeUpload(t, ts.upload(t, "temp.png", pngHeader))

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodDelete, "/documents/"+itoa(resp.Document.ID), nil)
		w := httptest.NewRecorder()
		ts.handler.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("delete #%d: got %d, want 200", i+1, w.Code)
		}
	}
	count, _ := ts.store.CountDocuments(context.Background())
	if count != 0 {
		t.Errorf("document count: got %d, want 0", count)
	}
}

func TestHandleRankedSearch(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("annual revenue breakdown", 85))
	resp := decodeUpload(t, ts.upload(t, "report.png", pngHeader))
	ts.waitForStatus(t, resp.Document.ID, models.StatusCompleted)

	body, _ := json.Marshal(map[string]interface{}{"query": "revenue"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out struct {
		Hits  []*query.RankedHit `json:"hits"`
		Total int                `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Total != 1 || len(out.Hits) != 1 {
		t.Fatalf("got %d hits", out.Total)
	}
	if out.Hits[0].Document.ID != resp.Document.ID {
		t.Errorf("hit id: got %d", out.Hits[0].Document.ID)
	}
}

func TestHandleRankedSearch_EmptyQuery(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("text", 50))
	body, _ := json.Marshal(map[string]interface{}{"query": "  "})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader(body))
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("text", 50))
	resp := decodeUpload(t, ts.upload(t, "a.png", pngHeader))
	ts.waitForStatus(t, resp.Document.ID, models.StatusCompleted)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Documents int64                   `json:"documents"`
		ByStatus  map[models.Status]int64 `json:"by_status"`
		Indexed   uint64                  `json:"indexed"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Documents != 1 || out.ByStatus[models.StatusCompleted] != 1 || out.Indexed != 1 {
		t.Errorf("got %+v", out)
	}
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, ocr.NewMockEngine("text", 50))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

// TestEngineFailureEndsFailed simulates the OCR engine erroring: the document
// must end failed with no extracted text, and the failure must not surface to
// any HTTP caller.
func TestEngineFailureEndsFailed(t *testing.T) {
	ts := newTestServer(t, &ocr.MockEngine{Err: errors.New("engine exploded")})

	w := ts.upload(t, "broken.png", pngHeader)
	if w.Code != http.StatusOK {
		t.Fatalf("upload should still succeed, got %d", w.Code)
	}
	resp := decodeUpload(t, w)
	doc := ts.waitForStatus(t, resp.Document.ID, models.StatusFailed)
	if doc.ExtractedText != nil || doc.Confidence != nil {
		t.Error("failed document must have no OCR result")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
