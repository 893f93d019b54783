// Package redis caches job status and progress so status polling does not
// hit the analytical store on every request.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/levonm80/socapp/internal/client"
	"github.com/levonm80/socapp/internal/model"
)

const (
	jobKeyPrefix = "socapp:job:"
	jobTTL       = time.Hour
)

// JobCache implements model.JobStatusCache on Redis hashes.
type JobCache struct {
	client *client.RedisClient
	logger *zap.Logger
}

// NewJobCache wraps the shared Redis client.
func NewJobCache(redisClient *client.RedisClient, logger *zap.Logger) *JobCache {
	return &JobCache{
		client: redisClient,
		logger: logger,
	}
}

func jobKey(jobID uuid.UUID) string {
	return jobKeyPrefix + jobID.String()
}

// SetJobStatus stores the current status and entry count under a 1h TTL.
func (c *JobCache) SetJobStatus(ctx context.Context, jobID uuid.UUID, status model.JobStatus, totalEntries int64) error {
	key := jobKey(jobID)
	if err := c.client.HSet(ctx, key,
		"status", string(status),
		"total_entries", strconv.FormatInt(totalEntries, 10),
	); err != nil {
		return fmt.Errorf("failed to cache job status: %w", err)
	}
	if err := c.client.Expire(ctx, key, jobTTL); err != nil {
		return fmt.Errorf("failed to set job cache TTL: %w", err)
	}
	return nil
}

// GetJobStatus returns the cached status; model.ErrJobNotFound on a miss.
func (c *JobCache) GetJobStatus(ctx context.Context, jobID uuid.UUID) (model.JobStatus, int64, error) {
	fields, err := c.client.HGetAll(ctx, jobKey(jobID))
	if err != nil {
		return "", 0, fmt.Errorf("failed to read job cache: %w", err)
	}
	status, ok := fields["status"]
	if !ok {
		return "", 0, model.ErrJobNotFound
	}

	var totalEntries int64
	if raw, ok := fields["total_entries"]; ok {
		totalEntries, _ = strconv.ParseInt(raw, 10, 64)
	}
	return model.JobStatus(status), totalEntries, nil
}

// InvalidateJob drops the cached status.
func (c *JobCache) InvalidateJob(ctx context.Context, jobID uuid.UUID) error {
	return c.client.Del(ctx, jobKey(jobID))
}
