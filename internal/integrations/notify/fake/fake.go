// Package fake is a log-only notification sender for local runs.
package fake

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BearBump/CrewTrack/internal/integrations/notify"
)

type Sender struct {
	mu   sync.Mutex
	sent []notify.Message
}

func New() *Sender { return &Sender{} }

func (s *Sender) Send(ctx context.Context, m notify.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, m)
	s.mu.Unlock()
	slog.Info("notification (fake)", "channel", m.Channel, "to", m.To, "body", m.Body)
	return nil
}

func (s *Sender) Sent() []notify.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Message(nil), s.sent...)
}
