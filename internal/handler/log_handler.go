package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/levonm80/socapp/internal/model"
	"github.com/levonm80/socapp/internal/service"
	"github.com/levonm80/socapp/internal/util"
)

// Response is the common API envelope.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// LogHandler serves the log ingestion API.
type LogHandler struct {
	service       *service.IngestService
	maxUploadSize int64
	logger        *zap.Logger
}

// NewLogHandler creates the handler around the ingestion service.
func NewLogHandler(svc *service.IngestService, maxUploadSize int64, logger *zap.Logger) *LogHandler {
	return &LogHandler{
		service:       svc,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// UploadLogs accepts a multipart upload under the "file" field and starts an
// ingestion job for it. Responds 202 with the job in processing state.
func (h *LogHandler) UploadLogs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		errorResponse(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "missing 'file' form field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}
	if len(data) == 0 {
		errorResponse(w, http.StatusBadRequest, "uploaded file is empty")
		return
	}

	uploadedBy := r.Header.Get("X-User-ID")
	if uploadedBy == "" {
		uploadedBy = "anonymous"
	}

	job, err := h.service.ProcessUpload(r.Context(), header.Filename, uploadedBy, data)
	if err != nil {
		h.logger.Error("failed to start ingestion job",
			util.String("filename", header.Filename),
			util.ErrorField(err),
		)
		errorResponse(w, http.StatusInternalServerError, "failed to start ingestion")
		return
	}

	successResponse(w, http.StatusAccepted, job)
}

// ListFiles returns a page of ingestion jobs, newest first.
func (h *LogHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	jobs, total, err := h.service.ListJobs(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list jobs", util.ErrorField(err))
		errorResponse(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*model.IngestJob{}
	}

	successResponse(w, http.StatusOK, map[string]interface{}{
		"files":  jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetFile returns one job's metadata and processing status.
func (h *LogHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDParam(w, r)
	if !ok {
		return
	}

	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			errorResponse(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("failed to get job",
			util.String("job_id", jobID.String()),
			util.ErrorField(err),
		)
		errorResponse(w, http.StatusInternalServerError, "failed to get file")
		return
	}

	successResponse(w, http.StatusOK, job)
}

// GetRiskScores returns the per-user risk scores for one job.
func (h *LogHandler) GetRiskScores(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobIDParam(w, r)
	if !ok {
		return
	}

	scores, err := h.service.GetRiskScores(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, model.ErrJobNotFound) {
			errorResponse(w, http.StatusNotFound, "file not found")
			return
		}
		h.logger.Error("failed to get risk scores",
			util.String("job_id", jobID.String()),
			util.ErrorField(err),
		)
		errorResponse(w, http.StatusInternalServerError, "failed to get risk scores")
		return
	}
	if scores == nil {
		scores = []*model.UserRiskScore{}
	}

	successResponse(w, http.StatusOK, map[string]interface{}{
		"file_id":     jobID,
		"risk_scores": scores,
	})
}

func (h *LogHandler) jobIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "fileID")
	jobID, err := uuid.Parse(raw)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "invalid file id")
		return uuid.Nil, false
	}
	return jobID, true
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func successResponse(w http.ResponseWriter, status int, data interface{}) {
	respondWithJSON(w, status, Response{Success: true, Data: data})
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	respondWithJSON(w, status, Response{Success: false, Error: message})
}

func respondWithJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		util.Error("failed to encode response", util.ErrorField(err))
	}
}
