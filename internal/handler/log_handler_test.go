package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/levonm80/socapp/internal/config"
	"github.com/levonm80/socapp/internal/detector"
	"github.com/levonm80/socapp/internal/model"
	"github.com/levonm80/socapp/internal/repository/memory"
	"github.com/levonm80/socapp/internal/service"
)

const sampleLine = `"Mon Jun 20 12:00:00 2022","HQ","HTTPS","https://www.example.com/","Allowed",` +
	`"General Browsing","Web Browsing","0","0","512","2048","Business Use","Business",` +
	`"Corporate Marketing","None","None","0","None","None","HQ","Engineering","10.0.0.5",` +
	`"93.184.216.34","GET","200","Mozilla/5.0","None","None","None","URL Filtering",` +
	`"Allowed","0","0","0"`

func newTestHandler(t *testing.T) (*LogHandler, *service.IngestService) {
	t.Helper()
	cfg := &config.Config{
		Ingest: config.IngestConfig{
			BatchSize:         1000,
			HistoryDepth:      20,
			MaxConcurrentJobs: 2,
			MaxUploadSize:     1 << 20,
		},
	}
	svc := service.NewIngestService(
		memory.NewLogRepository(), nil,
		detector.New(detector.DefaultConfig()), nil,
		cfg, zap.NewNop(),
	)
	return NewLogHandler(svc, cfg.Ingest.MaxUploadSize, zap.NewNop()), svc
}

func multipartUpload(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func uploadFile(t *testing.T, router http.Handler, svc *service.IngestService, filename, content string) model.IngestJob {
	t.Helper()
	body, contentType := multipartUpload(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-User-ID", "analyst")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("upload status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("upload not successful: %s", resp.Error)
	}

	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	var job model.IngestJob
	if err := json.Unmarshal(raw, &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	svc.Wait()
	return job
}

func TestUploadAndGetFile(t *testing.T) {
	h, svc := newTestHandler(t)
	router := NewRouter(h)

	job := uploadFile(t, router, svc, "proxy.log", sampleLine+"\n"+sampleLine)
	if job.UploadedBy != "analyst" {
		t.Fatalf("uploaded_by = %q, want analyst", job.UploadedBy)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs/files/"+job.ID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	raw, _ := json.Marshal(resp.Data)
	var got model.IngestJob
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got.Status != model.JobStatusCompleted {
		t.Fatalf("status = %q, want completed", got.Status)
	}
	if got.TotalEntries != 2 {
		t.Fatalf("total entries = %d, want 2", got.TotalEntries)
	}
}

func TestListFiles(t *testing.T) {
	h, svc := newTestHandler(t)
	router := NewRouter(h)

	uploadFile(t, router, svc, "a.log", sampleLine)
	uploadFile(t, router, svc, "b.log", sampleLine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs/files?limit=1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	raw, _ := json.Marshal(resp.Data)
	var page struct {
		Files []model.IngestJob `json:"files"`
		Total int               `json:"total"`
	}
	if err := json.Unmarshal(raw, &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want 2", page.Total)
	}
	if len(page.Files) != 1 {
		t.Fatalf("page size = %d, want 1", len(page.Files))
	}
}

func TestGetRiskScores(t *testing.T) {
	h, svc := newTestHandler(t)
	router := NewRouter(h)

	job := uploadFile(t, router, svc, "proxy.log", sampleLine)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs/files/"+job.ID.String()+"/risk-scores", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("risk-scores status = %d, want 200", rec.Code)
	}
	resp := decodeResponse(t, rec)
	raw, _ := json.Marshal(resp.Data)
	var payload struct {
		RiskScores []model.UserRiskScore `json:"risk_scores"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.RiskScores) != 1 {
		t.Fatalf("score count = %d, want 1", len(payload.RiskScores))
	}
	if payload.RiskScores[0].UserIdentifier != "Engineering" {
		t.Fatalf("identifier = %q, want Engineering", payload.RiskScores[0].UserIdentifier)
	}
}

func TestGetFileInvalidID(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs/files/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetFileNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/logs/files/7b4417ab-93cf-4b66-9c2a-7d83db351f11", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestUploadMissingFileField(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("other", "value")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestUploadEmptyFile(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	body, contentType := multipartUpload(t, "empty.log", "")
	req := httptest.NewRequest(http.MethodPost, "/api/v1/logs/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeResponse(t, rec)
	if resp.Success || !strings.Contains(resp.Error, "empty") {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	router := NewRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
