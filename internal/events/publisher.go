package events

import (
	"context"
	"encoding/json"
	"fmt"

	"eatflow-gateway/internal/models"
	"eatflow-gateway/internal/util"
)

// Publisher delivers verification events somewhere durable
type Publisher interface {
	Publish(ctx context.Context, event *models.VerificationEvent) error
}

// producer is the part of client.KafkaProducer the publisher needs
type producer interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type KafkaPublisher struct {
	producer producer
	topic    string
}

func NewKafkaPublisher(p producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *models.VerificationEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	headers := map[string]string{
		"event_type": event.EventType,
		"event_id":   event.EventID,
	}
	return p.producer.ProduceMessage(ctx, p.topic, []byte(event.Key()), value, headers)
}

// LogPublisher writes events to the log when kafka is disabled
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event *models.VerificationEvent) error {
	util.Debug("Verification event",
		util.String("event_type", event.EventType),
		util.String("session_id", event.SessionID),
		util.String("flow", event.Flow),
		util.String("from", event.FromStatus),
		util.String("to", event.ToStatus),
		util.String("last_error", event.LastError))
	return nil
}
