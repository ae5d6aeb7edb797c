package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"github.com/shortontech/featurefp/internal/event"
	"github.com/shortontech/featurefp/pkg/logger"
)

const reportSchema = "featurefp.v1"

// KafkaConfig holds configuration for Kafka producer
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	Acks        string
	Compression string

	// SASL config
	SASLMechanism string
	SASLUser      string
	SASLPassword  string

	// TLS config
	TLSCAPath     string
	TLSSkipVerify bool
}

// KafkaSink produces report events keyed by event id.
type KafkaSink struct {
	config   KafkaConfig
	producer *kafka.Producer
	log      logger.Logger
}

// NewKafkaSinkFromEnv reads KAFKA_* variables.
func NewKafkaSinkFromEnv(log logger.Logger) *KafkaSink {
	brokers := strings.Split(getEnvOr("KAFKA_BROKERS", "localhost:9092"), ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	s := NewKafkaSink(brokers, getEnvOr("KAFKA_TOPIC", "featurefp.reports"), log)
	s.config.Acks = getEnvOr("KAFKA_ACKS", "all")
	s.config.Compression = os.Getenv("KAFKA_COMPRESSION")
	s.config.SASLMechanism = os.Getenv("KAFKA_SASL_MECHANISM")
	s.config.SASLUser = os.Getenv("KAFKA_SASL_USER")
	s.config.SASLPassword = os.Getenv("KAFKA_SASL_PASSWORD")
	s.config.TLSCAPath = os.Getenv("KAFKA_TLS_CA")
	s.config.TLSSkipVerify = getBoolEnv("KAFKA_TLS_SKIP_VERIFY", false)
	return s
}

// NewKafkaSink creates a KafkaSink with explicit configuration
func NewKafkaSink(brokers []string, topic string, log logger.Logger) *KafkaSink {
	if log == nil {
		log = logger.Default()
	}
	return &KafkaSink{
		config: KafkaConfig{
			Brokers: brokers,
			Topic:   topic,
			Acks:    "all",
		},
		log: log,
	}
}

// ConfigMap translates the sink configuration for the producer.
func (s *KafkaSink) ConfigMap() kafka.ConfigMap {
	cm := kafka.ConfigMap{
		"bootstrap.servers": strings.Join(s.config.Brokers, ","),
		"acks":              s.config.Acks,
		"retries":           10,
		"retry.backoff.ms":  100,
		"linger.ms":         10,
	}
	if s.config.Compression != "" {
		cm["compression.type"] = s.config.Compression
	}
	if s.config.SASLMechanism != "" {
		cm["security.protocol"] = "SASL_SSL"
		cm["sasl.mechanism"] = s.config.SASLMechanism
		if s.config.SASLUser != "" {
			cm["sasl.username"] = s.config.SASLUser
		}
		if s.config.SASLPassword != "" {
			cm["sasl.password"] = s.config.SASLPassword
		}
	}
	if s.config.TLSCAPath != "" {
		if s.config.SASLMechanism == "" {
			cm["security.protocol"] = "SSL"
		}
		cm["ssl.ca.location"] = s.config.TLSCAPath
	}
	if s.config.TLSSkipVerify {
		cm["ssl.endpoint.identification.algorithm"] = "none"
	}
	return cm
}

func (s *KafkaSink) Start(ctx context.Context) error {
	cm := s.ConfigMap()
	producer, err := kafka.NewProducer(&cm)
	if err != nil {
		return fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	s.producer = producer
	go s.handleDeliveryReports(ctx)
	return nil
}

// Message builds the record for e without sending it.
func (s *KafkaSink) Message(e event.Event) (*kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize event: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{
			Topic:     &s.config.Topic,
			Partition: kafka.PartitionAny,
		},
		Key:   []byte(e.EventID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "report_method", Value: []byte(e.Method)},
			{Key: "catalog_version", Value: []byte(e.CatalogVersion)},
			{Key: "schema", Value: []byte(reportSchema)},
		},
	}, nil
}

func (s *KafkaSink) Enqueue(e event.Event) error {
	if s.producer == nil {
		return fmt.Errorf("kafka producer not initialized")
	}
	msg, err := s.Message(e)
	if err != nil {
		return err
	}
	if err := s.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	if s.producer == nil {
		return nil
	}
	remaining := s.producer.Flush(10 * 1000)
	s.producer.Close()
	s.producer = nil
	if remaining > 0 {
		return fmt.Errorf("failed to flush %d remaining messages", remaining)
	}
	return nil
}

func (s *KafkaSink) Name() string { return "kafka" }

func (s *KafkaSink) handleDeliveryReports(ctx context.Context) {
	events := s.producer.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch e := ev.(type) {
			case *kafka.Message:
				if e.TopicPartition.Error != nil {
					s.log.Error("kafka: delivery failed",
						logger.F("key", string(e.Key)), logger.Err(e.TopicPartition.Error))
				}
			case kafka.Error:
				s.log.Error("kafka: client error", logger.Err(e))
			}
		}
	}
}

func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return defaultValue
}
