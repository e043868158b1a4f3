package checkpoints

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/BearBump/CrewTrack/internal/broker/messages"
	"github.com/stretchr/testify/require"
)

type flakyProducer struct {
	failures int
	calls    int
	key      []byte
	value    []byte
}

func (p *flakyProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("leader not available")
	}
	p.key, p.value = key, value
	return nil
}

func TestKafkaNotifier_RetriesThenPublishes(t *testing.T) {
	p := &flakyProducer{failures: 2}
	n := NewKafkaNotifier(p, "checkpoint.recorded").WithRetry(3, time.Millisecond)

	err := n.NotifyCheckpoint(context.Background(), messages.CheckpointRecorded{SessionID: "s1", Status: "arrived"})
	require.NoError(t, err)
	require.Equal(t, 3, p.calls)
	require.Equal(t, "s1", string(p.key))

	var got messages.CheckpointRecorded
	require.NoError(t, json.Unmarshal(p.value, &got))
	require.Equal(t, "arrived", got.Status)
}

func TestKafkaNotifier_GivesUp(t *testing.T) {
	p := &flakyProducer{failures: 10}
	n := NewKafkaNotifier(p, "t").WithRetry(2, time.Millisecond)

	err := n.NotifyCheckpoint(context.Background(), messages.CheckpointRecorded{SessionID: "s1"})
	require.Error(t, err)
	require.Equal(t, 2, p.calls)
}

func TestKafkaNotifier_StopsOnCancel(t *testing.T) {
	p := &flakyProducer{failures: 10}
	n := NewKafkaNotifier(p, "t").WithRetry(5, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := n.NotifyCheckpoint(ctx, messages.CheckpointRecorded{SessionID: "s1"})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, p.calls)
}
