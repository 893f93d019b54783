// Package service orchestrates ingestion jobs: it unpacks uploads, parses
// and scores the lines, and persists everything through the log repository.
package service

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/levonm80/socapp/internal/alert"
	"github.com/levonm80/socapp/internal/config"
	"github.com/levonm80/socapp/internal/detector"
	"github.com/levonm80/socapp/internal/metrics"
	"github.com/levonm80/socapp/internal/model"
	"github.com/levonm80/socapp/internal/parser"
	"github.com/levonm80/socapp/internal/risk"
	"github.com/levonm80/socapp/internal/util"
)

// maxLineBytes bounds a single log line. NSS lines are well under 4KB; the
// margin covers pathological user agents and URLs.
const maxLineBytes = 1 << 20

// IngestService runs the upload-to-risk-score pipeline. Each upload becomes
// one job processed asynchronously; the semaphore bounds how many jobs run
// at once.
type IngestService struct {
	repo         model.LogRepository
	cache        model.JobStatusCache
	detector     *detector.Detector
	alerts       *alert.Publisher
	logger       *zap.Logger
	batchSize    int
	historyDepth int
	sem          *semaphore.Weighted
	wg           sync.WaitGroup
}

// NewIngestService wires the pipeline. cache and alerts may be nil.
func NewIngestService(
	repo model.LogRepository,
	cache model.JobStatusCache,
	det *detector.Detector,
	alerts *alert.Publisher,
	cfg *config.Config,
	logger *zap.Logger,
) *IngestService {
	return &IngestService{
		repo:         repo,
		cache:        cache,
		detector:     det,
		alerts:       alerts,
		logger:       logger,
		batchSize:    cfg.Ingest.BatchSize,
		historyDepth: cfg.Ingest.HistoryDepth,
		sem:          semaphore.NewWeighted(cfg.Ingest.MaxConcurrentJobs),
	}
}

// ProcessUpload registers a new job for the uploaded payload and kicks off
// processing in the background. The returned job is already in the
// processing state; callers poll GetJob for completion.
func (s *IngestService) ProcessUpload(ctx context.Context, filename, uploadedBy string, data []byte) (*model.IngestJob, error) {
	now := time.Now().UTC()
	job := &model.IngestJob{
		ID:         uuid.New(),
		Filename:   util.SanitizeFilename(filename),
		UploadedBy: uploadedBy,
		Status:     model.JobStatusUploading,
		UploadedAt: now,
		UpdatedAt:  now,
	}

	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create ingestion job: %w", err)
	}
	if err := s.repo.UpdateJobStatus(ctx, job.ID, model.JobStatusProcessing); err != nil {
		return nil, fmt.Errorf("failed to mark job processing: %w", err)
	}
	job.Status = model.JobStatusProcessing
	s.cacheStatus(ctx, job.ID, model.JobStatusProcessing, 0)
	metrics.JobsStarted.Inc()

	s.logger.Info("ingestion job started",
		util.String("job_id", job.ID.String()),
		util.String("filename", job.Filename),
		util.String("uploaded_by", job.UploadedBy),
		util.Int("payload_bytes", len(data)),
	)

	s.wg.Add(1)
	go s.runJob(job, data)

	return job, nil
}

// Wait blocks until all in-flight jobs finish. Used by shutdown and tests.
func (s *IngestService) Wait() {
	s.wg.Wait()
}

// runJob drives one job to a terminal status. The job outlives the upload
// request, so it runs under a fresh context.
func (s *IngestService) runJob(job *model.IngestJob, data []byte) {
	defer s.wg.Done()
	ctx := context.Background()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		s.failJob(ctx, job.ID, err)
		return
	}
	defer s.sem.Release(1)

	total, err := s.processFile(ctx, job, data)
	if err != nil {
		s.failJob(ctx, job.ID, err)
		return
	}

	metrics.JobsCompleted.Inc()
	s.logger.Info("ingestion job completed",
		util.String("job_id", job.ID.String()),
		util.Int64("total_entries", total),
	)
}

func (s *IngestService) failJob(ctx context.Context, jobID uuid.UUID, cause error) {
	metrics.JobsFailed.Inc()
	s.logger.Error("ingestion job failed",
		util.String("job_id", jobID.String()),
		util.ErrorField(cause),
	)
	if err := s.repo.UpdateJobStatus(ctx, jobID, model.JobStatusFailed); err != nil {
		s.logger.Error("failed to record job failure",
			util.String("job_id", jobID.String()),
			util.ErrorField(err),
		)
	}
	s.cacheStatus(ctx, jobID, model.JobStatusFailed, 0)
}

// processFile is the core pipeline: unpack, parse, detect, batch, persist,
// then score. Already-persisted batches stay in place when a later step
// fails; the job status alone records the failure.
func (s *IngestService) processFile(ctx context.Context, job *model.IngestJob, data []byte) (int64, error) {
	sources, err := s.extractSources(job.Filename, data)
	if err != nil {
		return 0, err
	}

	var (
		history      = newClientHistory(s.historyDepth)
		batch        = make([]*model.LogEntry, 0, s.batchSize)
		total        int64
		minTS, maxTS time.Time
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.repo.InsertEntries(ctx, batch); err != nil {
			return fmt.Errorf("failed to persist batch: %w", err)
		}
		total += int64(len(batch))
		metrics.EntriesPersisted.Add(float64(len(batch)))
		if err := s.repo.UpdateJobProgress(ctx, job.ID, total); err != nil {
			return fmt.Errorf("failed to update job progress: %w", err)
		}
		s.cacheStatus(ctx, job.ID, model.JobStatusProcessing, total)
		s.alerts.PublishBatch(ctx, batch)
		batch = batch[:0]
		return nil
	}

	for _, src := range sources {
		scanner := bufio.NewScanner(bytes.NewReader(src.data))
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

		for scanner.Scan() {
			raw := bytes.TrimSpace(scanner.Bytes())
			if len(raw) == 0 {
				continue
			}
			metrics.LinesRead.Inc()

			entry, err := parser.ParseLine(decodeLine(raw))
			if err != nil {
				metrics.ParseFailures.Inc()
				s.logger.Debug("skipping malformed line",
					util.String("job_id", job.ID.String()),
					util.String("source", src.name),
					util.ErrorField(err),
				)
				continue
			}

			if minTS.IsZero() || entry.Timestamp.Before(minTS) {
				minTS = entry.Timestamp
			}
			if entry.Timestamp.After(maxTS) {
				maxTS = entry.Timestamp
			}

			verdict := s.detector.Detect(entry, history.get(entry.ClientIP))
			history.add(entry.ClientIP, entry)
			if verdict.IsAnomalous {
				metrics.Anomalies.WithLabelValues(verdict.Kind).Inc()
			}

			batch = append(batch, buildEntry(job.ID, entry, verdict))
			if len(batch) >= s.batchSize {
				if err := flush(); err != nil {
					return total, err
				}
			}
		}
		if err := scanner.Err(); err != nil {
			return total, fmt.Errorf("failed to read %s: %w", src.name, err)
		}
	}

	if err := flush(); err != nil {
		return total, err
	}

	if !minTS.IsZero() {
		if err := s.repo.UpdateJobDateRange(ctx, job.ID, minTS, maxTS); err != nil {
			return total, fmt.Errorf("failed to record date range: %w", err)
		}
	}

	if err := s.scoreJob(ctx, job.ID); err != nil {
		return total, err
	}

	if err := s.repo.UpdateJobStatus(ctx, job.ID, model.JobStatusCompleted); err != nil {
		return total, fmt.Errorf("failed to mark job completed: %w", err)
	}
	s.cacheStatus(ctx, job.ID, model.JobStatusCompleted, total)
	return total, nil
}

// scoreJob computes and persists per-user risk scores from everything the
// job wrote to the sink.
func (s *IngestService) scoreJob(ctx context.Context, jobID uuid.UUID) error {
	entries, err := s.repo.GetEntriesByJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load entries for scoring: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	byUser := risk.Calculate(jobID, entries)
	scores := make([]*model.UserRiskScore, 0, len(byUser))
	for _, score := range byUser {
		scores = append(scores, score)
	}
	sort.Slice(scores, func(i, j int) bool {
		return scores[i].UserIdentifier < scores[j].UserIdentifier
	})

	if err := s.repo.InsertRiskScores(ctx, scores); err != nil {
		return fmt.Errorf("failed to persist risk scores: %w", err)
	}
	return nil
}

// buildEntry combines a parsed event with its verdict into the persisted row.
func buildEntry(jobID uuid.UUID, e *parser.Entry, v detector.Verdict) *model.LogEntry {
	return &model.LogEntry{
		ID:    uuid.New(),
		JobID: jobID,

		Timestamp:        e.Timestamp,
		Location:         e.Location,
		Protocol:         e.Protocol,
		URL:              e.URL,
		Domain:           e.Domain,
		Action:           e.Action,
		AppName:          e.AppName,
		AppClass:         e.AppClass,
		ThrottleReqSize:  e.ThrottleReqSize,
		ThrottleRespSize: e.ThrottleRespSize,
		ReqSize:          e.ReqSize,
		RespSize:         e.RespSize,
		URLClass:         e.URLClass,
		URLSupercat:      e.URLSupercat,
		URLCat:           e.URLCat,
		DLPDict:          e.DLPDict,
		DLPEngine:        e.DLPEngine,
		DLPHits:          e.DLPHits,
		FileClass:        e.FileClass,
		FileType:         e.FileType,
		Location2:        e.Location2,
		Department:       e.Department,
		ClientIP:         e.ClientIP,
		ServerIP:         e.ServerIP,
		HTTPMethod:       e.HTTPMethod,
		HTTPStatus:       e.HTTPStatus,
		UserAgent:        e.UserAgent,
		ThreatCategory:   e.ThreatCategory,
		FWFilter:         e.FWFilter,
		FWRule:           e.FWRule,
		PolicyType:       e.PolicyType,
		Reason:           e.Reason,

		IsAnomalous:       v.IsAnomalous,
		AnomalyKind:       v.Kind,
		AnomalyReason:     v.Reason,
		AnomalyConfidence: v.Confidence,
	}
}

// cacheStatus mirrors the job state into the status cache. Cache failures
// are logged and swallowed; the repository stays authoritative.
func (s *IngestService) cacheStatus(ctx context.Context, jobID uuid.UUID, status model.JobStatus, total int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetJobStatus(ctx, jobID, status, total); err != nil {
		s.logger.Warn("failed to cache job status",
			util.String("job_id", jobID.String()),
			util.ErrorField(err),
		)
	}
}

// GetJob returns a job, overlaying cached status/progress when available so
// pollers see batch-level progress without a sink round trip lagging behind.
func (s *IngestService) GetJob(ctx context.Context, jobID uuid.UUID) (*model.IngestJob, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if status, total, err := s.cache.GetJobStatus(ctx, jobID); err == nil {
			job.Status = status
			if total > job.TotalEntries {
				job.TotalEntries = total
			}
		}
	}
	return job, nil
}

// ListJobs returns a page of jobs plus the overall count.
func (s *IngestService) ListJobs(ctx context.Context, limit, offset int) ([]*model.IngestJob, int, error) {
	return s.repo.ListJobs(ctx, limit, offset)
}

// GetRiskScores returns the risk scores computed for a completed job.
func (s *IngestService) GetRiskScores(ctx context.Context, jobID uuid.UUID) ([]*model.UserRiskScore, error) {
	if _, err := s.repo.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.repo.GetRiskScores(ctx, jobID)
}
