// Package sink publishes pipeline output to downstream consumers.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"entity-cluster-lab/internal/domain"
)

// Envelope types.
const (
	TypeEntityRecord       = "entity_record"
	TypeEntityRelationship = "entity_relationship"
)

// Envelope wraps every published payload.
type Envelope struct {
	Type string          `json:"type"`
	TS   int64           `json:"ts"` // Unix ms
	Data json.RawMessage `json:"data"`
}

// KafkaSink publishes records and relationships to one topic through a SyncProducer.
type KafkaSink struct {
	topic string
	p     sarama.SyncProducer
	now   func() time.Time
}

// NewKafkaSink connects a SyncProducer to brokers.
func NewKafkaSink(brokers []string, topic string, cfg *sarama.Config) (*KafkaSink, error) {
	if topic == "" {
		return nil, fmt.Errorf("kafka sink: empty topic")
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka sink: no brokers")
	}
	if cfg == nil {
		cfg = sarama.NewConfig()
		cfg.Producer.RequiredAcks = sarama.WaitForAll
		cfg.Producer.Retry.Max = 5
		cfg.Producer.Retry.Backoff = 200 * time.Millisecond
	}
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	p, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("kafka sink: %w", err)
	}
	return NewKafkaSinkWithProducer(p, topic), nil
}

// NewKafkaSinkWithProducer wraps an existing producer.
func NewKafkaSinkWithProducer(p sarama.SyncProducer, topic string) *KafkaSink {
	return &KafkaSink{topic: topic, p: p, now: time.Now}
}

// Close closes the underlying producer.
func (s *KafkaSink) Close() error {
	if s.p != nil {
		return s.p.Close()
	}
	return nil
}

// PublishRecords sends one message per record, keyed by entity id.
func (s *KafkaSink) PublishRecords(ctx context.Context, records []*domain.EntityRecord) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(records))
	for _, r := range records {
		msg, err := s.message(TypeEntityRecord, strconv.FormatInt(r.EntityID, 10), toRecordMessage(r))
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return s.send(ctx, msgs)
}

// PublishRelationships sends one message per edge, keyed by "source:target".
func (s *KafkaSink) PublishRelationships(ctx context.Context, rels []*domain.EntityRelationship) error {
	msgs := make([]*sarama.ProducerMessage, 0, len(rels))
	for _, r := range rels {
		key := strconv.FormatInt(r.SourceEntity, 10) + ":" + strconv.FormatInt(r.TargetEntity, 10)
		msg, err := s.message(TypeEntityRelationship, key, relationshipMessage{
			SourceEntity:     r.SourceEntity,
			TargetEntity:     r.TargetEntity,
			InteractionCount: r.InteractionCount,
			TotalFlow:        r.TotalFlow,
			AvgFlow:          r.AvgFlow,
		})
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	return s.send(ctx, msgs)
}

func (s *KafkaSink) message(typ, key string, v any) (*sarama.ProducerMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", typ, err)
	}
	b, err := json.Marshal(Envelope{Type: typ, TS: s.now().UnixMilli(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(b),
	}, nil
}

func (s *KafkaSink) send(ctx context.Context, msgs []*sarama.ProducerMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	// SyncProducer does not take a context; check before the blocking call.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.p.SendMessages(msgs); err != nil {
		return fmt.Errorf("kafka publish failed: %w", err)
	}
	return nil
}
