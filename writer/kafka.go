package writer

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	appconfig "taxiflow/config"
	"taxiflow/logger"
	"taxiflow/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one JSON message per canonical trip. Messages are
// keyed by kind and pickup date so a partition sees a day in order.
type KafkaSink struct {
	writer messageWriter
	topic  string
	log    *logger.Log
}

func NewKafkaSink(cfg *appconfig.Config) (*KafkaSink, error) {
	kc := cfg.Storage.Kafka
	if len(kc.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	batchSize := kc.BatchSize
	if batchSize < 1 {
		batchSize = 100
	}
	ks := &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(kc.Brokers...),
			Topic:        kc.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    batchSize,
			RequiredAcks: kafka.RequireAll,
		},
		topic: kc.Topic,
		log:   logger.GetLogger(),
	}
	ks.log.WithComponent("kafka_sink").WithFields(logger.Fields{
		"brokers": kc.Brokers,
		"topic":   kc.Topic,
	}).Debug("kafka sink initialized")
	return ks, nil
}

func (ks *KafkaSink) Name() string { return "kafka" }

// MessageKey is <kind>|<pickup_date>.
func MessageKey(rec *models.CanonicalTripRecord) []byte {
	return []byte(string(rec.TaxiKind) + "|" + rec.PartitionDate())
}

func buildMessages(kind models.TaxiKind, records []models.CanonicalTripRecord) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, 0, len(records))
	for i := range records {
		rec := records[i]
		rec.TaxiKind = kind
		data, err := json.Marshal(&rec)
		if err != nil {
			return nil, fmt.Errorf("marshal trip: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   MessageKey(&rec),
			Value: data,
			Headers: []kafka.Header{
				{Key: "taxi_kind", Value: []byte(kind)},
			},
		})
	}
	return msgs, nil
}

func (ks *KafkaSink) Append(ctx context.Context, kind models.TaxiKind, records []models.CanonicalTripRecord) error {
	msgs, err := buildMessages(kind, records)
	if err != nil {
		return err
	}
	if err := ks.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d messages to %s: %w", len(msgs), ks.topic, err)
	}
	ks.log.WithComponent("kafka_sink").WithFields(logger.Fields{
		"kind":     kind,
		"messages": len(msgs),
	}).Debug("batch written to kafka")
	return nil
}

func (ks *KafkaSink) Close() error {
	return ks.writer.Close()
}
