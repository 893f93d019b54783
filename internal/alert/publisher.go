// Package alert pushes anomalous log entries to a Kafka topic so SOC
// tooling can react without polling the sink. Publishing is best-effort:
// a broker outage never fails an ingestion job.
package alert

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/levonm80/socapp/internal/client"
	"github.com/levonm80/socapp/internal/model"
	"github.com/levonm80/socapp/internal/util"
)

// Publisher emits one message per anomalous entry, keyed by client IP so
// partitioning groups a client's alerts together.
type Publisher struct {
	producer *client.KafkaProducer
	topic    string
	logger   *zap.Logger
}

// Message is the wire payload for one anomaly alert.
type Message struct {
	JobID      string    `json:"job_id"`
	EntryID    string    `json:"entry_id"`
	Timestamp  time.Time `json:"timestamp"`
	ClientIP   string    `json:"client_ip"`
	Department string    `json:"department,omitempty"`
	Domain     string    `json:"domain,omitempty"`
	Action     string    `json:"action"`
	Kind       string    `json:"anomaly_type"`
	Reason     string    `json:"reason"`
	Confidence float64   `json:"confidence"`
}

// NewPublisher wraps a producer. A nil producer yields a nil publisher,
// which is safe to call.
func NewPublisher(producer *client.KafkaProducer, topic string, logger *zap.Logger) *Publisher {
	if producer == nil {
		return nil
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger,
	}
}

// PublishBatch sends alerts for the anomalous entries of one flushed
// batch. Errors are logged, never returned.
func (p *Publisher) PublishBatch(ctx context.Context, entries []*model.LogEntry) {
	if p == nil {
		return
	}

	var msgs []kafka.Message
	for _, entry := range entries {
		if !entry.IsAnomalous {
			continue
		}
		payload, err := json.Marshal(Message{
			JobID:      entry.JobID.String(),
			EntryID:    entry.ID.String(),
			Timestamp:  entry.Timestamp,
			ClientIP:   entry.ClientIP,
			Department: entry.Department,
			Domain:     entry.Domain,
			Action:     entry.Action,
			Kind:       entry.AnomalyKind,
			Reason:     entry.AnomalyReason,
			Confidence: entry.AnomalyConfidence,
		})
		if err != nil {
			p.logger.Error("failed to encode anomaly alert", util.ErrorField(err))
			continue
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(entry.ClientIP),
			Value: payload,
		})
	}

	if len(msgs) == 0 {
		return
	}
	if err := p.producer.ProduceBatch(ctx, p.topic, msgs); err != nil {
		p.logger.Error("failed to publish anomaly alerts",
			util.Int("message_count", len(msgs)),
			util.ErrorField(err),
		)
	}
}
