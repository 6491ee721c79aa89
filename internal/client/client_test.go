package client

import (
	"context"
	"testing"

	"eatflow-gateway/internal/config"
)

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	cfg := config.Default()
	cfg.Kafka.Brokers = nil
	if _, err := NewKafkaProducer(cfg); err == nil {
		t.Fatalf("expected error without brokers")
	}
}

func TestKafkaProducerProduceFailsWithoutBroker(t *testing.T) {
	cfg := config.Default()
	cfg.Kafka.Brokers = []string{"127.0.0.1:1"}
	p, err := NewKafkaProducer(cfg)
	if err != nil {
		t.Fatalf("new producer failed: %v", err)
	}
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.ProduceMessage(ctx, "events", []byte("k"), []byte("v"), map[string]string{"h": "1"}); err == nil {
		t.Fatalf("expected error with a cancelled context")
	}
}

func TestNewRedisClientBadURL(t *testing.T) {
	cfg := config.Default()
	cfg.Redis.URL = "://not-a-url"
	if _, err := NewRedisClient(cfg); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestRedisKey(t *testing.T) {
	tests := []struct {
		prefix string
		parts  []string
		want   string
	}{
		{"eatflow", []string{"auth", "abc"}, "eatflow:auth:abc"},
		{"", []string{"auth", "abc"}, "auth:abc"},
	}
	for _, tt := range tests {
		r := &RedisClient{prefix: tt.prefix}
		if got := r.Key(tt.parts...); got != tt.want {
			t.Fatalf("want %q got %q", tt.want, got)
		}
	}
}
