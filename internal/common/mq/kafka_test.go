package mq

import (
	"testing"
	"time"
)

func TestToKafkaMessage(t *testing.T) {
	msg := NewMessage([]byte(`{"ok":true}`))
	msg.ID = "sub-1"
	msg.SetHeader("event", "submission.judged")

	km := toKafkaMessage("codelab.submissions", msg)
	if km.Topic != "codelab.submissions" || string(km.Key) != "sub-1" {
		t.Fatalf("unexpected topic/key %s %s", km.Topic, km.Key)
	}
	headers := map[string]string{}
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event"] != "submission.judged" || headers[headerID] != "sub-1" {
		t.Fatalf("unexpected headers %v", headers)
	}
	if _, err := time.Parse(time.RFC3339Nano, headers[headerTimestamp]); err != nil {
		t.Fatalf("timestamp header not RFC3339: %v", err)
	}
}

func TestNewKafkaProducerRequiresBrokers(t *testing.T) {
	if _, err := NewKafkaProducer(KafkaConfig{}); err == nil {
		t.Fatalf("expected error without brokers")
	}
	p, err := NewKafkaProducer(KafkaConfig{Brokers: []string{"127.0.0.1:9092"}})
	if err != nil {
		t.Fatalf("create producer failed: %v", err)
	}
	if p.config.BatchSize != 100 || p.config.DialTimeout != 10*time.Second {
		t.Fatalf("defaults not applied: %+v", p.config)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}
