// Package factory wires configuration, clients, repositories and services
// into a runnable application.
package factory

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/levonm80/socapp/internal/alert"
	"github.com/levonm80/socapp/internal/client"
	"github.com/levonm80/socapp/internal/config"
	"github.com/levonm80/socapp/internal/detector"
	"github.com/levonm80/socapp/internal/handler"
	"github.com/levonm80/socapp/internal/metrics"
	"github.com/levonm80/socapp/internal/model"
	"github.com/levonm80/socapp/internal/repository/clickhouse"
	"github.com/levonm80/socapp/internal/repository/memory"
	redisrepo "github.com/levonm80/socapp/internal/repository/redis"
	"github.com/levonm80/socapp/internal/service"
	"github.com/levonm80/socapp/internal/util"
)

// Factory owns every long-lived component and closes them in order.
type Factory struct {
	Config *config.Config
	Logger *zap.Logger

	clickhouseClient *client.ClickHouseClient
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer

	Repository model.LogRepository
	Cache      model.JobStatusCache
	Ingest     *service.IngestService
	Handler    *handler.LogHandler
}

// New builds the full application graph. Redis and Kafka are optional:
// when unconfigured or unreachable the service runs without them.
func New(cfg *config.Config) (*Factory, error) {
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	logger := util.Get()

	f := &Factory{
		Config: cfg,
		Logger: logger,
	}

	repo, err := f.buildRepository(cfg, logger)
	if err != nil {
		return nil, err
	}
	f.Repository = repo

	if cfg.Redis.URL != "" {
		redisClient, err := client.NewRedisClient(cfg, logger)
		if err != nil {
			logger.Warn("continuing without job status cache", util.ErrorField(err))
		} else {
			f.redisClient = redisClient
			f.Cache = redisrepo.NewJobCache(redisClient, logger)
		}
	}

	var alerts *alert.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := client.NewKafkaProducer(cfg, logger)
		if err != nil {
			logger.Warn("continuing without anomaly alerts", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			alerts = alert.NewPublisher(producer, cfg.Kafka.AlertTopic, logger)
		}
	}

	detectorCfg, err := detector.LoadConfig(cfg.Detector.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load detection rules: %w", err)
	}

	f.Ingest = service.NewIngestService(repo, f.Cache, detector.New(detectorCfg), alerts, cfg, logger)
	f.Handler = handler.NewLogHandler(f.Ingest, cfg.Ingest.MaxUploadSize, logger)

	metrics.MustRegister()

	return f, nil
}

func (f *Factory) buildRepository(cfg *config.Config, logger *zap.Logger) (model.LogRepository, error) {
	switch cfg.Storage.Backend {
	case "memory":
		logger.Warn("using in-memory storage, data will not survive restarts")
		return memory.NewLogRepository(), nil
	case "clickhouse":
		chClient, err := client.NewClickHouseClient(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		f.clickhouseClient = chClient

		repo := clickhouse.NewLogRepository(chClient, logger)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// Close drains in-flight jobs and releases every client.
func (f *Factory) Close() {
	if f.Ingest != nil {
		f.Ingest.Wait()
	}
	if f.kafkaProducer != nil {
		f.kafkaProducer.Close()
	}
	if f.redisClient != nil {
		f.redisClient.Close()
	}
	if f.clickhouseClient != nil {
		f.clickhouseClient.Close()
	}
	util.Sync()
}
