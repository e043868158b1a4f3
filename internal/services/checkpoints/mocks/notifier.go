package mocks

import (
	"context"

	"github.com/BearBump/CrewTrack/internal/broker/messages"
	"github.com/stretchr/testify/mock"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) NotifyCheckpoint(ctx context.Context, msg messages.CheckpointRecorded) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
