// Package memory holds an in-process LogRepository used for local
// development and tests. Data lives for the lifetime of the process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/levonm80/socapp/internal/model"
)

// LogRepository stores jobs, entries and risk scores behind one mutex.
type LogRepository struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]*model.IngestJob
	entries map[uuid.UUID][]*model.LogEntry
	scores  map[uuid.UUID][]*model.UserRiskScore
}

// NewLogRepository creates an empty in-memory repository.
func NewLogRepository() *LogRepository {
	return &LogRepository{
		jobs:    make(map[uuid.UUID]*model.IngestJob),
		entries: make(map[uuid.UUID][]*model.LogEntry),
		scores:  make(map[uuid.UUID][]*model.UserRiskScore),
	}
}

func (r *LogRepository) CreateJob(ctx context.Context, job *model.IngestJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *job
	r.jobs[job.ID] = &stored
	return nil
}

func (r *LogRepository) GetJob(ctx context.Context, jobID uuid.UUID) (*model.IngestJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

// ListJobs returns jobs newest-first along with the total job count.
func (r *LogRepository) ListJobs(ctx context.Context, limit, offset int) ([]*model.IngestJob, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*model.IngestJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		copied := *job
		all = append(all, &copied)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].UploadedAt.After(all[j].UploadedAt)
	})

	total := len(all)
	if offset >= total {
		return []*model.IngestJob{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *LogRepository) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status model.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return model.ErrJobNotFound
	}
	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *LogRepository) UpdateJobProgress(ctx context.Context, jobID uuid.UUID, totalEntries int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return model.ErrJobNotFound
	}
	job.TotalEntries = totalEntries
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *LogRepository) UpdateJobDateRange(ctx context.Context, jobID uuid.UUID, start, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return model.ErrJobNotFound
	}
	s, e := start, end
	job.DateRangeStart = &s
	job.DateRangeEnd = &e
	job.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *LogRepository) InsertEntries(ctx context.Context, entries []*model.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range entries {
		copied := *entry
		r.entries[entry.JobID] = append(r.entries[entry.JobID], &copied)
	}
	return nil
}

// GetEntriesByJob returns a job's entries in insertion order.
func (r *LogRepository) GetEntriesByJob(ctx context.Context, jobID uuid.UUID) ([]*model.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.entries[jobID]
	out := make([]*model.LogEntry, 0, len(stored))
	for _, entry := range stored {
		copied := *entry
		out = append(out, &copied)
	}
	return out, nil
}

func (r *LogRepository) InsertRiskScores(ctx context.Context, scores []*model.UserRiskScore) error {
	if len(scores) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, score := range scores {
		copied := *score
		copied.Breakdown = make(map[string]int, len(score.Breakdown))
		for k, v := range score.Breakdown {
			copied.Breakdown[k] = v
		}
		r.scores[score.JobID] = append(r.scores[score.JobID], &copied)
	}
	return nil
}

// GetRiskScores returns a job's risk scores highest first.
func (r *LogRepository) GetRiskScores(ctx context.Context, jobID uuid.UUID) ([]*model.UserRiskScore, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stored := r.scores[jobID]
	out := make([]*model.UserRiskScore, 0, len(stored))
	for _, score := range stored {
		copied := *score
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RiskScore != out[j].RiskScore {
			return out[i].RiskScore > out[j].RiskScore
		}
		return out[i].UserIdentifier < out[j].UserIdentifier
	})
	return out, nil
}
