package propagation

import (
	"context"

	"github.com/example/clipswift/internal/infrastructure/kafka"
)

const syncKey = "snippets"

// KafkaTarget publishes broadcasts to the sync topic. All messages share one
// key so observers see them in order.
type KafkaTarget struct {
	publisher kafka.Publisher
}

func NewKafkaTarget(p kafka.Publisher) *KafkaTarget {
	return &KafkaTarget{publisher: p}
}

func (t *KafkaTarget) Name() string { return "kafka" }

func (t *KafkaTarget) Deliver(ctx context.Context, msg Message) error {
	return t.publisher.Publish(ctx, syncKey, msg)
}
