package model

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrJobNotFound is returned by repositories and caches when the
// requested job does not exist.
var ErrJobNotFound = errors.New("job not found")

// -------------------- JOB MODEL --------------------

// JobStatus is the lifecycle state of an ingestion job.
type JobStatus string

const (
	JobStatusUploading  JobStatus = "uploading"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IngestJob is one ingestion run over one uploaded file or archive.
// A job reaches a terminal status (completed/failed) exactly once and is
// never reprocessed; re-uploading the same file creates a new job.
type IngestJob struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	Filename       string     `json:"filename" db:"filename"`
	UploadedBy     string     `json:"uploaded_by" db:"uploaded_by"`
	Status         JobStatus  `json:"status" db:"status"`
	TotalEntries   int64      `json:"total_entries" db:"total_entries"`
	DateRangeStart *time.Time `json:"date_range_start,omitempty" db:"date_range_start"`
	DateRangeEnd   *time.Time `json:"date_range_end,omitempty" db:"date_range_end"`
	UploadedAt     time.Time  `json:"uploaded_at" db:"uploaded_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// -------------------- LOG ENTRY MODEL --------------------

// Anomaly kinds produced by the detector.
const (
	AnomalyMaliciousDomain = "malicious_domain"
	AnomalyRiskyCategory   = "risky_category"
	AnomalyUnusualUA       = "unusual_ua"
	AnomalyLargeDownload   = "large_download"
	AnomalyBurstBlocked    = "burst_blocked"
)

// LogEntry is one parsed proxy log line plus its detection verdict,
// owned by exactly one job. Entries are append-only: once persisted they
// are never updated.
type LogEntry struct {
	ID    uuid.UUID `json:"id" db:"id"`
	JobID uuid.UUID `json:"job_id" db:"job_id"`

	Timestamp        time.Time `json:"timestamp" db:"timestamp"`
	Location         string    `json:"location" db:"location"`
	Protocol         string    `json:"protocol" db:"protocol"`
	URL              string    `json:"url" db:"url"`
	Domain           string    `json:"domain" db:"domain"`
	Action           string    `json:"action" db:"action"`
	AppName          string    `json:"app_name" db:"app_name"`
	AppClass         string    `json:"app_class" db:"app_class"`
	ThrottleReqSize  int64     `json:"throttle_req_size" db:"throttle_req_size"`
	ThrottleRespSize int64     `json:"throttle_resp_size" db:"throttle_resp_size"`
	ReqSize          int64     `json:"req_size" db:"req_size"`
	RespSize         int64     `json:"resp_size" db:"resp_size"`
	URLClass         string    `json:"url_class" db:"url_class"`
	URLSupercat      string    `json:"url_supercat" db:"url_supercat"`
	URLCat           string    `json:"url_cat" db:"url_cat"`
	DLPDict          string    `json:"dlp_dict" db:"dlp_dict"`
	DLPEngine        string    `json:"dlp_eng" db:"dlp_eng"`
	DLPHits          int64     `json:"dlp_hits" db:"dlp_hits"`
	FileClass        string    `json:"file_class" db:"file_class"`
	FileType         string    `json:"file_type" db:"file_type"`
	Location2        string    `json:"location2" db:"location2"`
	Department       string    `json:"department" db:"department"`
	ClientIP         string    `json:"client_ip" db:"client_ip"`
	ServerIP         string    `json:"server_ip" db:"server_ip"`
	HTTPMethod       string    `json:"http_method" db:"http_method"`
	HTTPStatus       int64     `json:"http_status" db:"http_status"`
	UserAgent        string    `json:"user_agent" db:"user_agent"`
	ThreatCategory   string    `json:"threat_category" db:"threat_category"`
	FWFilter         string    `json:"fw_filter" db:"fw_filter"`
	FWRule           string    `json:"fw_rule" db:"fw_rule"`
	PolicyType       string    `json:"policy_type" db:"policy_type"`
	Reason           string    `json:"reason" db:"reason"`

	IsAnomalous       bool    `json:"is_anomalous" db:"is_anomalous"`
	AnomalyKind       string  `json:"anomaly_type,omitempty" db:"anomaly_type"`
	AnomalyReason     string  `json:"anomaly_reason,omitempty" db:"anomaly_reason"`
	AnomalyConfidence float64 `json:"anomaly_confidence,omitempty" db:"anomaly_confidence"`
}

// UserIdentifier returns the identity risk scores are keyed by:
// department when present, otherwise the client IP.
func (e *LogEntry) UserIdentifier() string {
	if e.Department != "" {
		return e.Department
	}
	return e.ClientIP
}

// -------------------- RISK SCORE MODEL --------------------

// UserRiskScore is the per-user 0-100 danger indicator computed once per
// job after all entries are persisted.
type UserRiskScore struct {
	JobID                uuid.UUID      `json:"job_id" db:"job_id"`
	UserIdentifier       string         `json:"user_identifier" db:"user_identifier"`
	RiskScore            int            `json:"risk_score" db:"risk_score"`
	AnomalyCount         int            `json:"anomaly_count" db:"anomaly_count"`
	BlockedCount         int            `json:"blocked_count" db:"blocked_count"`
	MaliciousDomainCount int            `json:"malicious_domain_count" db:"malicious_domain_count"`
	Breakdown            map[string]int `json:"breakdown" db:"breakdown"`
}

// -------------------- REPOSITORY INTERFACES --------------------

// LogRepository is the durable sink the ingestion pipeline writes to and
// reads back from. InsertEntries must be effectively atomic per batch.
type LogRepository interface {
	CreateJob(ctx context.Context, job *IngestJob) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*IngestJob, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*IngestJob, int, error)
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus) error
	UpdateJobProgress(ctx context.Context, jobID uuid.UUID, totalEntries int64) error
	UpdateJobDateRange(ctx context.Context, jobID uuid.UUID, start, end time.Time) error

	InsertEntries(ctx context.Context, entries []*LogEntry) error
	GetEntriesByJob(ctx context.Context, jobID uuid.UUID) ([]*LogEntry, error)

	InsertRiskScores(ctx context.Context, scores []*UserRiskScore) error
	GetRiskScores(ctx context.Context, jobID uuid.UUID) ([]*UserRiskScore, error)
}

// -------------------- CACHE INTERFACES --------------------

// JobStatusCache caches job status/progress so status polling does not hit
// the analytical store on every request.
type JobStatusCache interface {
	SetJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus, totalEntries int64) error
	GetJobStatus(ctx context.Context, jobID uuid.UUID) (JobStatus, int64, error)
	InvalidateJob(ctx context.Context, jobID uuid.UUID) error
}
