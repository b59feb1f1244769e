package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event is one client analytics event. Properties are opaque.
type Event struct {
	Name       string         `json:"event"`
	UserID     string         `json:"userId,omitempty"`
	ClientID   string         `json:"clientId,omitempty"`
	Platform   string         `json:"platform,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	ReceivedAt time.Time      `json:"receivedAt"`
}

// Sink accepts events fire-and-forget. Implementations log their own
// failures; nothing is returned to the client.
type Sink interface {
	Track(ctx context.Context, evt Event)
	Close() error
}

// LogSink writes events to the process log.
type LogSink struct{}

func (LogSink) Track(_ context.Context, evt Event) {
	raw, err := json.Marshal(evt)
	if err != nil {
		log.Printf("analytics: encode %s failed: %v", evt.Name, err)
		return
	}
	log.Printf("analytics: %s", raw)
}

func (LogSink) Close() error { return nil }

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaSink publishes events keyed by user id, or client id when anonymous.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			Async:                  true,
			AllowAutoTopicCreation: true,
			Completion: func(_ []kafka.Message, err error) {
				if err != nil {
					log.Printf("analytics: kafka write failed: %v", err)
				}
			},
		},
	}, nil
}

func (s *KafkaSink) Track(ctx context.Context, evt Event) {
	raw, err := json.Marshal(evt)
	if err != nil {
		log.Printf("analytics: encode %s failed: %v", evt.Name, err)
		return
	}
	key := evt.UserID
	if key == "" {
		key = evt.ClientID
	}
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: raw}); err != nil {
		log.Printf("analytics: enqueue %s failed: %v", evt.Name, err)
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
