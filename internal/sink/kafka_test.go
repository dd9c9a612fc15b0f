package sink

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entity-cluster-lab/internal/domain"
)

func newTestSink(t *testing.T) (*KafkaSink, *mocks.SyncProducer) {
	t.Helper()
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)

	s := NewKafkaSinkWithProducer(producer, "entity-records")
	s.now = func() time.Time { return time.UnixMilli(1700000000000) }
	return s, producer
}

func TestKafkaSink_PublishRecords(t *testing.T) {
	s, producer := newTestSink(t)

	ratio := 0.5
	addr := uuid.MustParse("00000000-0000-0000-0000-000000000009")
	records := []*domain.EntityRecord{
		{EntityID: 42, Addresses: []uuid.UUID{addr}, EntityType: domain.EntityTypeExchange, FeatureStats: domain.FeatureStats{IORatio: &ratio}},
	}

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.Type != TypeEntityRecord || env.TS != 1700000000000 {
			return errors.New("unexpected envelope header")
		}

		var msg map[string]any
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		if msg["entity_id"] != float64(42) || msg["entity_type"] != "Exchange" {
			return errors.New("unexpected record payload")
		}
		if msg["io_ratio"] != 0.5 || msg["spent_ratio"] != nil {
			return errors.New("unexpected optional values")
		}
		return nil
	})

	require.NoError(t, s.PublishRecords(context.Background(), records))
	require.NoError(t, s.Close())
}

func TestKafkaSink_PublishRelationships(t *testing.T) {
	s, producer := newTestSink(t)

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		var msg relationshipMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		if env.Type != TypeEntityRelationship || msg.SourceEntity != 1 || msg.TargetEntity != 2 || msg.InteractionCount != 3 {
			return errors.New("unexpected relationship payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	rels := []*domain.EntityRelationship{
		{SourceEntity: 1, TargetEntity: 2, InteractionCount: 3, TotalFlow: 6, AvgFlow: 2},
		{SourceEntity: 2, TargetEntity: 2, InteractionCount: 1, TotalFlow: 1, AvgFlow: 1},
	}
	require.NoError(t, s.PublishRelationships(context.Background(), rels))
	require.NoError(t, s.Close())
}

func TestKafkaSink_SendFailure(t *testing.T) {
	s, producer := newTestSink(t)

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := s.PublishRecords(context.Background(), []*domain.EntityRecord{{EntityID: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka publish failed")
	require.NoError(t, s.Close())
}

func TestKafkaSink_EmptyAndCancelled(t *testing.T) {
	s, _ := newTestSink(t)

	require.NoError(t, s.PublishRecords(context.Background(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.PublishRecords(ctx, []*domain.EntityRecord{{EntityID: 1}})
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, s.Close())
}

func TestNewKafkaSink_Validation(t *testing.T) {
	_, err := NewKafkaSink(nil, "topic", nil)
	assert.Error(t, err)

	_, err = NewKafkaSink([]string{"localhost:9092"}, "", nil)
	assert.Error(t, err)
}
