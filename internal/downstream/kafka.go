package downstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/pkg/lifecycle"
)

const kafkaProbeTimeout = 5 * time.Second

type kafkaDriver struct {
	producer *kafka.Producer
	topic    string
	servers  string
	now      func() time.Time
	logger   *slog.Logger
}

func newKafka(cfg *KafkaConfig, logger *slog.Logger) (*kafkaDriver, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  cfg.BootstrapServers,
		"acks":               cfg.Acks,
		"compression.type":   cfg.CompressionType,
		"enable.idempotence": true,
		"request.timeout.ms": 30000,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return &kafkaDriver{
		producer: p,
		topic:    cfg.Topic,
		servers:  cfg.BootstrapServers,
		now:      time.Now,
		logger:   logger,
	}, nil
}

func (d *kafkaDriver) Driver() string { return DriverKafka }

func (d *kafkaDriver) Start(lc *lifecycle.Coordinator) error {
	d.logger.Info("starting downstream", "servers", d.servers, "topic", d.topic)

	lc.OnShutdown(func() {
		for {
			select {
			case <-lc.Context().Done():
				if remaining := d.producer.Flush(5000); remaining > 0 {
					d.logger.Warn("kafka messages left unflushed", "count", remaining)
				}
				d.producer.Close()
				d.logger.Info("downstream closed")
				return
			case ev := <-d.producer.Events():
				if kerr, ok := ev.(kafka.Error); ok {
					d.logger.Warn("kafka producer error", "error", kerr, "code", kerr.Code())
				}
			}
		}
	})
	return nil
}

// Deliver produces the GeoJSON feature keyed by feature ID and waits for
// its delivery report.
func (d *kafkaDriver) Deliver(ctx context.Context, f features.Feature) error {
	payload, err := json.Marshal(f.GeoJSON(d.now()))
	if err != nil {
		return fmt.Errorf("encode feature %s: %w", f.FeatureID, err)
	}

	report := make(chan kafka.Event, 1)
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &d.topic, Partition: kafka.PartitionAny},
		Key:            []byte(f.FeatureID),
		Value:          payload,
		Headers: []kafka.Header{
			{Key: "object_class", Value: []byte(f.Provenance.ObjectClass)},
			{Key: "trust_flag", Value: []byte(f.Provenance.TrustFlag)},
		},
	}

	if err := d.producer.Produce(msg, report); err != nil {
		return fmt.Errorf("%w: produce %s: %w", ErrUnreachable, f.FeatureID, err)
	}

	select {
	case ev := <-report:
		m, ok := ev.(*kafka.Message)
		if !ok {
			return fmt.Errorf("%w: unexpected delivery event %v", ErrUnreachable, ev)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("%w: deliver %s: %w", ErrUnreachable, f.FeatureID, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: deliver %s: %w", ErrUnreachable, f.FeatureID, ctx.Err())
	}
}

// Probe fetches topic metadata, bounded by ctx's deadline.
func (d *kafkaDriver) Probe(ctx context.Context) error {
	timeout := kafkaProbeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout <= 0 {
		return fmt.Errorf("%w: %w", ErrUnreachable, context.DeadlineExceeded)
	}

	if _, err := d.producer.GetMetadata(&d.topic, false, int(timeout.Milliseconds())); err != nil {
		return fmt.Errorf("%w: metadata: %w", ErrUnreachable, err)
	}
	return nil
}
