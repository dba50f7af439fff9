package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bookwise/catalog-import/internal/catalog"
	"github.com/bookwise/catalog-import/internal/config"
	"github.com/bookwise/catalog-import/internal/store"
)

// fakeCatalogStore treats every code as new.
type fakeCatalogStore struct {
	calls int
}

func (f *fakeCatalogStore) UpsertAll(ctx context.Context, rows []catalog.CanonicalRow) ([]catalog.UpsertOutcome, error) {
	f.calls++
	outcomes := make([]catalog.UpsertOutcome, len(rows))
	for i, row := range rows {
		outcomes[i] = catalog.UpsertOutcome{Code: row.Code, Created: true}
	}
	return outcomes, nil
}

type fakeRunStore struct {
	inserts int
	runs    []catalog.ImportRun
}

func (f *fakeRunStore) InsertRun(ctx context.Context, run *catalog.ImportRun) error {
	f.inserts++
	f.runs = append(f.runs, *run)
	return nil
}

func (f *fakeRunStore) ListRuns(ctx context.Context, limit int) ([]catalog.ImportRun, error) {
	return f.runs, nil
}

func (f *fakeRunStore) GetRun(ctx context.Context, id uuid.UUID) (*catalog.ImportRun, error) {
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, store.ErrRunNotFound
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:           "127.0.0.1",
			Port:           0,
			RequestTimeout: 30 * time.Second,
		},
		Import: config.ImportConfig{MaxFileSize: 1 << 20},
		Rate:   config.RateLimitConfig{Enabled: true, MaxConcurrentImports: 2},
	}
}

func newTestServer(t *testing.T) (*Server, *fakeCatalogStore, *fakeRunStore) {
	t.Helper()
	cat := &fakeCatalogStore{}
	runs := &fakeRunStore{}
	service := catalog.NewService(cat, runs, catalog.Options{MaxFileSize: 1 << 20})
	return NewServer(service, testConfig()), cat, runs
}

// multipartUpload builds a multipart body with the file under the given
// field name.
func multipartUpload(t *testing.T, field, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func doRequest(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

// ============================================================================
// POST /api/catalog/import Tests
// ============================================================================

func TestHandleImportCommit(t *testing.T) {
	s, cat, runs := newTestServer(t)

	body, contentType := multipartUpload(t, "file", "books.csv",
		"Code,Name,Rate\nB001,Go in Action,29.99\nB002,The Go Way,34.50\n")
	req := httptest.NewRequest(http.MethodPost, "/api/catalog/import", body)
	req.Header.Set("Content-Type", contentType)

	rr := doRequest(t, s, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var res catalog.ImportResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.Inserted != 2 || res.ErrorsCount != 0 {
		t.Errorf("result = %+v, want 2 inserted", res)
	}
	if res.ImportID == uuid.Nil {
		t.Error("ImportID not set")
	}
	if cat.calls != 1 || runs.inserts != 1 {
		t.Errorf("store calls = %d, ledger writes = %d, want 1 and 1", cat.calls, runs.inserts)
	}
}

func TestHandleImportDryRun(t *testing.T) {
	s, cat, runs := newTestServer(t)

	body, contentType := multipartUpload(t, "file", "books.csv",
		"Code,Name\nB001,Go in Action\n,missing code\n")
	req := httptest.NewRequest(http.MethodPost, "/api/catalog/import?dryRun=true", body)
	req.Header.Set("Content-Type", contentType)

	rr := doRequest(t, s, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var res catalog.PreviewResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.TotalRows != 1 || res.ErrorsCount != 1 {
		t.Errorf("result = %+v", res)
	}

	if cat.calls != 0 || runs.inserts != 0 {
		t.Errorf("dry run touched stores: catalog %d, ledger %d", cat.calls, runs.inserts)
	}
}

func TestHandleImportMissingFileField(t *testing.T) {
	s, _, _ := newTestServer(t)

	body, contentType := multipartUpload(t, "attachment", "books.csv", "Code,Name\nB001,X\n")
	req := httptest.NewRequest(http.MethodPost, "/api/catalog/import", body)
	req.Header.Set("Content-Type", contentType)

	rr := doRequest(t, s, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleImportErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		filename   string
		content    string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "missing required columns",
			filename:   "books.csv",
			content:    "Publisher,Pages\nAcme,120\n",
			wantStatus: http.StatusBadRequest,
			wantCode:   "SCH001",
		},
		{
			name:       "no data rows",
			filename:   "books.csv",
			content:    "Code,Name\n",
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE001",
		},
		{
			name:       "unreadable document",
			filename:   "books.xlsx",
			content:    "this is not a workbook",
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE003",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := newTestServer(t)

			body, contentType := multipartUpload(t, "file", tt.filename, tt.content)
			req := httptest.NewRequest(http.MethodPost, "/api/catalog/import", body)
			req.Header.Set("Content-Type", contentType)

			rr := doRequest(t, s, req)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rr.Code, tt.wantStatus, rr.Body.String())
			}

			var errRes ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &errRes); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if errRes.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", errRes.Code, tt.wantCode)
			}
		})
	}
}

func TestHandleImportFileTooLarge(t *testing.T) {
	cat := &fakeCatalogStore{}
	runs := &fakeRunStore{}
	service := catalog.NewService(cat, runs, catalog.Options{MaxFileSize: 32})
	cfg := testConfig()
	cfg.Import.MaxFileSize = 32
	s := NewServer(service, cfg)

	body, contentType := multipartUpload(t, "file", "books.csv",
		"Code,Name\nB001,A name long enough to exceed the limit\n")
	req := httptest.NewRequest(http.MethodPost, "/api/catalog/import", body)
	req.Header.Set("Content-Type", contentType)

	rr := doRequest(t, s, req)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413, body = %s", rr.Code, rr.Body.String())
	}
	if runs.inserts != 0 {
		t.Error("oversized upload wrote a ledger entry")
	}
}

// ============================================================================
// GET /api/import-runs Tests
// ============================================================================

func TestHandleListRuns(t *testing.T) {
	s, _, runs := newTestServer(t)
	runs.runs = []catalog.ImportRun{
		{ID: uuid.New(), Filename: "books.csv", Status: catalog.RunCompleted},
	}

	rr := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/import-runs", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var got []catalog.ImportRun
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].Filename != "books.csv" {
		t.Errorf("runs = %+v", got)
	}
}

func TestHandleListRunsEmptyIsArray(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/import-runs", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if got := rr.Body.String(); got != "[]\n" {
		t.Errorf("body = %q, want empty JSON array", got)
	}
}

func TestHandleListRunsBadLimit(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/import-runs?limit=ten", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

// ============================================================================
// GET /api/import-runs/{runID} Tests
// ============================================================================

func TestHandleGetRun(t *testing.T) {
	s, _, runs := newTestServer(t)
	id := uuid.New()
	runs.runs = []catalog.ImportRun{{ID: id, Filename: "books.csv", Status: catalog.RunCompleted}}

	rr := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/import-runs/"+id.String(), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var got catalog.ImportRun
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.ID != id {
		t.Errorf("ID = %v, want %v", got.ID, id)
	}
}

func TestHandleGetRunNotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/import-runs/"+uuid.NewString(), nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestHandleGetRunInvalidID(t *testing.T) {
	s, _, _ := newTestServer(t)

	rr := doRequest(t, s, httptest.NewRequest(http.MethodGet, "/api/import-runs/not-a-uuid", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}
