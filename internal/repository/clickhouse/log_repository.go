// Package clickhouse implements the durable log sink on top of ClickHouse.
//
// Entries and risk scores are append-only MergeTree tables. Jobs live in a
// ReplacingMergeTree keyed by id: status changes re-insert the full row with
// a fresh updated_at and reads use FINAL to collapse versions.
package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/levonm80/socapp/internal/client"
	"github.com/levonm80/socapp/internal/model"
	"github.com/levonm80/socapp/internal/util"
)

// LogRepository implements model.LogRepository backed by ClickHouse.
type LogRepository struct {
	client *client.ClickHouseClient
	logger *zap.Logger
}

// NewLogRepository wraps the shared ClickHouse client.
func NewLogRepository(chClient *client.ClickHouseClient, logger *zap.Logger) *LogRepository {
	return &LogRepository{
		client: chClient,
		logger: logger,
	}
}

// Migrate creates the schema if it does not exist yet.
func (r *LogRepository) Migrate(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS ingest_jobs (
			id UUID,
			filename String,
			uploaded_by String,
			status LowCardinality(String),
			total_entries Int64,
			date_range_start Nullable(DateTime64(3, 'UTC')),
			date_range_end Nullable(DateTime64(3, 'UTC')),
			uploaded_at DateTime64(3, 'UTC'),
			updated_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY id`,

		`CREATE TABLE IF NOT EXISTS log_entries (
			id UUID,
			job_id UUID,
			timestamp DateTime64(3, 'UTC'),
			location String,
			protocol LowCardinality(String),
			url String,
			domain String,
			action LowCardinality(String),
			app_name String,
			app_class String,
			throttle_req_size Int64,
			throttle_resp_size Int64,
			req_size Int64,
			resp_size Int64,
			url_class String,
			url_supercat String,
			url_cat String,
			dlp_dict String,
			dlp_eng String,
			dlp_hits Int64,
			file_class String,
			file_type String,
			location2 String,
			department String,
			client_ip String,
			server_ip String,
			http_method LowCardinality(String),
			http_status Int64,
			user_agent String,
			threat_category String,
			fw_filter String,
			fw_rule String,
			policy_type String,
			reason String,
			is_anomalous Bool,
			anomaly_type LowCardinality(String),
			anomaly_reason String,
			anomaly_confidence Float64
		) ENGINE = MergeTree
		ORDER BY (job_id, timestamp)`,

		`CREATE TABLE IF NOT EXISTS user_risk_scores (
			job_id UUID,
			user_identifier String,
			risk_score Int32,
			anomaly_count Int32,
			blocked_count Int32,
			malicious_domain_count Int32,
			breakdown Map(String, UInt32)
		) ENGINE = MergeTree
		ORDER BY (job_id, user_identifier)`,
	}

	for _, stmt := range ddl {
		if err := r.client.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}

	util.Info("ClickHouse schema ready")
	return nil
}

// -------------------- JOBS --------------------

const jobColumns = `id, filename, uploaded_by, status, total_entries,
	date_range_start, date_range_end, uploaded_at, updated_at`

func (r *LogRepository) CreateJob(ctx context.Context, job *model.IngestJob) error {
	if err := r.insertJobRow(ctx, job); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// insertJobRow writes one job version. ReplacingMergeTree keeps the row
// with the greatest updated_at per id.
func (r *LogRepository) insertJobRow(ctx context.Context, job *model.IngestJob) error {
	query := fmt.Sprintf("INSERT INTO ingest_jobs (%s)", jobColumns)
	return r.client.BatchInsert(ctx, query, [][]interface{}{{
		job.ID,
		job.Filename,
		job.UploadedBy,
		string(job.Status),
		job.TotalEntries,
		job.DateRangeStart,
		job.DateRangeEnd,
		job.UploadedAt,
		job.UpdatedAt,
	}})
}

func (r *LogRepository) GetJob(ctx context.Context, jobID uuid.UUID) (*model.IngestJob, error) {
	query := fmt.Sprintf("SELECT %s FROM ingest_jobs FINAL WHERE id = ?", jobColumns)
	row := r.client.QueryRow(ctx, query, jobID)

	job, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, model.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *LogRepository) ListJobs(ctx context.Context, limit, offset int) ([]*model.IngestJob, int, error) {
	var total uint64
	countRow := r.client.QueryRow(ctx, "SELECT count() FROM ingest_jobs FINAL")
	if err := countRow.Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count jobs: %w", err)
	}

	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(
		"SELECT %s FROM ingest_jobs FINAL ORDER BY uploaded_at DESC LIMIT ? OFFSET ?",
		jobColumns,
	)
	rows, err := r.client.QueryRows(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.IngestJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, int(total), nil
}

func (r *LogRepository) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status model.JobStatus) error {
	return r.updateJob(ctx, jobID, func(job *model.IngestJob) {
		job.Status = status
	})
}

func (r *LogRepository) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, totalEntries int64) error {
	return r.updateJob(ctx, jobID, func(job *model.IngestJob) {
		job.TotalEntries = totalEntries
	})
}

func (r *LogRepository) UpdateJobDateRange(ctx context.Context, jobID uuid.UUID, start, end time.Time) error {
	return r.updateJob(ctx, jobID, func(job *model.IngestJob) {
		s, e := start, end
		job.DateRangeStart = &s
		job.DateRangeEnd = &e
	})
}

func (r *LogRepository) updateJob(ctx context.Context, jobID uuid.UUID, mutate func(*model.IngestJob)) error {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	mutate(job)
	job.UpdatedAt = time.Now().UTC()
	if err := r.insertJobRow(ctx, job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// scanner covers both driver.Row and driver.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(s scanner) (*model.IngestJob, error) {
	var (
		job    model.IngestJob
		status string
	)
	if err := s.Scan(
		&job.ID, &job.Filename, &job.UploadedBy, &status, &job.TotalEntries,
		&job.DateRangeStart, &job.DateRangeEnd, &job.UploadedAt, &job.UpdatedAt,
	); err != nil {
		return nil, err
	}
	job.Status = model.JobStatus(status)
	return &job, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// -------------------- ENTRIES --------------------

const entryColumns = `id, job_id, timestamp, location, protocol, url, domain,
	action, app_name, app_class, throttle_req_size, throttle_resp_size,
	req_size, resp_size, url_class, url_supercat, url_cat, dlp_dict, dlp_eng,
	dlp_hits, file_class, file_type, location2, department, client_ip,
	server_ip, http_method, http_status, user_agent, threat_category,
	fw_filter, fw_rule, policy_type, reason, is_anomalous, anomaly_type,
	anomaly_reason, anomaly_confidence`

func (r *LogRepository) InsertEntries(ctx context.Context, entries []*model.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []interface{}{
			e.ID, e.JobID, e.Timestamp, e.Location, e.Protocol, e.URL,
			e.Domain, e.Action, e.AppName, e.AppClass, e.ThrottleReqSize,
			e.ThrottleRespSize, e.ReqSize, e.RespSize, e.URLClass,
			e.URLSupercat, e.URLCat, e.DLPDict, e.DLPEngine, e.DLPHits,
			e.FileClass, e.FileType, e.Location2, e.Department, e.ClientIP,
			e.ServerIP, e.HTTPMethod, e.HTTPStatus, e.UserAgent,
			e.ThreatCategory, e.FWFilter, e.FWRule, e.PolicyType, e.Reason,
			e.IsAnomalous, e.AnomalyKind, e.AnomalyReason, e.AnomalyConfidence,
		})
	}

	query := fmt.Sprintf("INSERT INTO log_entries (%s)", entryColumns)
	if err := r.client.BatchInsert(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to insert log entries: %w", err)
	}
	return nil
}

func (r *LogRepository) GetEntriesByJob(ctx context.Context, jobID uuid.UUID) ([]*model.LogEntry, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM log_entries WHERE job_id = ? ORDER BY timestamp",
		entryColumns,
	)
	rows, err := r.client.QueryRows(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		if err := rows.Scan(
			&e.ID, &e.JobID, &e.Timestamp, &e.Location, &e.Protocol, &e.URL,
			&e.Domain, &e.Action, &e.AppName, &e.AppClass, &e.ThrottleReqSize,
			&e.ThrottleRespSize, &e.ReqSize, &e.RespSize, &e.URLClass,
			&e.URLSupercat, &e.URLCat, &e.DLPDict, &e.DLPEngine, &e.DLPHits,
			&e.FileClass, &e.FileType, &e.Location2, &e.Department, &e.ClientIP,
			&e.ServerIP, &e.HTTPMethod, &e.HTTPStatus, &e.UserAgent,
			&e.ThreatCategory, &e.FWFilter, &e.FWRule, &e.PolicyType, &e.Reason,
			&e.IsAnomalous, &e.AnomalyKind, &e.AnomalyReason, &e.AnomalyConfidence,
		); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate log entries: %w", err)
	}
	return entries, nil
}

// -------------------- RISK SCORES --------------------

func (r *LogRepository) InsertRiskScores(ctx context.Context, scores []*model.UserRiskScore) error {
	if len(scores) == 0 {
		return nil
	}

	rows := make([][]interface{}, 0, len(scores))
	for _, s := range scores {
		breakdown := make(map[string]uint32, len(s.Breakdown))
		for kind, count := range s.Breakdown {
			breakdown[kind] = uint32(count)
		}
		rows = append(rows, []interface{}{
			s.JobID,
			s.UserIdentifier,
			int32(s.RiskScore),
			int32(s.AnomalyCount),
			int32(s.BlockedCount),
			int32(s.MaliciousDomainCount),
			breakdown,
		})
	}

	query := `INSERT INTO user_risk_scores (job_id, user_identifier, risk_score,
		anomaly_count, blocked_count, malicious_domain_count, breakdown)`
	if err := r.client.BatchInsert(ctx, query, rows); err != nil {
		return fmt.Errorf("failed to insert risk scores: %w", err)
	}
	return nil
}

func (r *LogRepository) GetRiskScores(ctx context.Context, jobID uuid.UUID) ([]*model.UserRiskScore, error) {
	query := `SELECT job_id, user_identifier, risk_score, anomaly_count,
		blocked_count, malicious_domain_count, breakdown
		FROM user_risk_scores
		WHERE job_id = ?
		ORDER BY risk_score DESC, user_identifier`
	rows, err := r.client.QueryRows(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk scores: %w", err)
	}
	defer rows.Close()

	var scores []*model.UserRiskScore
	for rows.Next() {
		var (
			s         model.UserRiskScore
			riskScore int32
			anomalies int32
			blocked   int32
			malicious int32
			breakdown map[string]uint32
		)
		if err := rows.Scan(
			&s.JobID, &s.UserIdentifier, &riskScore,
			&anomalies, &blocked, &malicious, &breakdown,
		); err != nil {
			return nil, fmt.Errorf("failed to scan risk score: %w", err)
		}
		s.RiskScore = int(riskScore)
		s.AnomalyCount = int(anomalies)
		s.BlockedCount = int(blocked)
		s.MaliciousDomainCount = int(malicious)
		s.Breakdown = make(map[string]int, len(breakdown))
		for kind, count := range breakdown {
			s.Breakdown[kind] = int(count)
		}
		scores = append(scores, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk scores: %w", err)
	}
	return scores, nil
}
