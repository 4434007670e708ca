package logger

import (
	"context"
	"sync"
	"testing"
	"time"
)

type stubPublisher struct {
	mu      sync.Mutex
	topics  []string
	batches [][]AggregatedLogEntry
}

func (p *stubPublisher) PublishMessage(_ context.Context, topic string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	if logs, ok := payload.([]AggregatedLogEntry); ok {
		p.batches = append(p.batches, logs)
	}
	return nil
}

func (p *stubPublisher) batchCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

func TestCollectorAggregatesDuplicates(t *testing.T) {
	pub := &stubPublisher{}
	c := NewLogCollector(&CollectionConfig{
		TimeInterval:   time.Hour, // flush via threshold only
		CountThreshold: 2,
		Topic:          "logs",
		Publisher:      pub,
	})
	defer c.Close()

	for i := 0; i < 5; i++ {
		c.AddLog("error", "archive write failed", map[string]interface{}{"backend": "kafka"}, "a.go:1")
	}
	// still one unique entry, below threshold: nothing flushed yet
	if pub.batchCount() != 0 {
		t.Fatalf("flushed %d batches before threshold", pub.batchCount())
	}

	c.AddLog("error", "another failure", nil, "b.go:2")

	deadline := time.Now().Add(time.Second)
	for pub.batchCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("no flush after reaching threshold")
		}
		time.Sleep(5 * time.Millisecond)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.topics[0] != "logs" {
		t.Fatalf("topic = %q", pub.topics[0])
	}
	if len(pub.batches[0]) != 2 {
		t.Fatalf("batch size = %d, want 2", len(pub.batches[0]))
	}
	for _, entry := range pub.batches[0] {
		if entry.Message == "archive write failed" && entry.Count != 5 {
			t.Fatalf("duplicate count = %d, want 5", entry.Count)
		}
	}
}
