package checkpoints

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BearBump/CrewTrack/internal/broker/messages"
	"github.com/pkg/errors"
)

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// KafkaNotifier publishes checkpoint events; the notify worker turns them
// into push and SMS messages.
type KafkaNotifier struct {
	producer Producer
	topic    string
	attempts int
	backoff  time.Duration
}

func NewKafkaNotifier(p Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: p, topic: topic, attempts: 3, backoff: 200 * time.Millisecond}
}

func (n *KafkaNotifier) WithRetry(attempts int, backoff time.Duration) *KafkaNotifier {
	if attempts > 0 {
		n.attempts = attempts
	}
	if backoff >= 0 {
		n.backoff = backoff
	}
	return n
}

func (n *KafkaNotifier) NotifyCheckpoint(ctx context.Context, msg messages.CheckpointRecorded) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal checkpoint event")
	}

	var lastErr error
	for i := 0; i < n.attempts; i++ {
		// ключ = сессия, чтобы события одной сессии шли по порядку
		if lastErr = n.producer.Publish(ctx, n.topic, []byte(msg.SessionID), b); lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "publish checkpoint event")
		case <-time.After(n.backoff * time.Duration(i+1)):
		}
	}
	return errors.Wrap(lastErr, "publish checkpoint event")
}
