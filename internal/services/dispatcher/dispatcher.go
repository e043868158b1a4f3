package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CrewTrack/internal/broker/kafka"
	"github.com/BearBump/CrewTrack/internal/broker/messages"
	"github.com/BearBump/CrewTrack/internal/integrations/notify"
	"github.com/pkg/errors"
)

type Consumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

// Dispatcher reads checkpoint events and fans them out to push and SMS.
// Delivery is best-effort: a message that keeps failing is logged and
// dropped so one bad phone number cannot stall the partition.
type Dispatcher struct {
	consumer Consumer
	sender   notify.Sender
	rl       RateLimiter
	links    LinkBuilder

	backoff      *Backoff
	smsPerHour   int64
	restartDelay time.Duration
	sleep        func(ctx context.Context, d time.Duration) error

	startedAtUnixNano   int64
	lastMessageUnixNano atomic.Int64
	totalConsumed       atomic.Int64
	totalSent           atomic.Int64
	totalThrottled      atomic.Int64
	totalSkipped        atomic.Int64
	totalErrors         atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(consumer Consumer, sender notify.Sender, rl RateLimiter, links LinkBuilder) *Dispatcher {
	return &Dispatcher{
		consumer:          consumer,
		sender:            sender,
		rl:                rl,
		links:             links,
		backoff:           NewBackoff(DefaultBackoffConfig(), nil),
		smsPerHour:        6,
		restartDelay:      time.Second,
		sleep:             sleepCtx,
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (d *Dispatcher) WithSettings(smsPerHour int64, backoff BackoffConfig) *Dispatcher {
	if smsPerHour > 0 {
		d.smsPerHour = smsPerHour
	}
	d.backoff = NewBackoff(backoff, nil)
	return d
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
	TotalConsumed  int64      `json:"totalConsumed"`
	TotalSent      int64      `json:"totalSent"`
	TotalThrottled int64      `json:"totalThrottled"`
	TotalSkipped   int64      `json:"totalSkipped"`
	TotalErrors    int64      `json:"totalErrors"`
	LastError      string     `json:"lastError,omitempty"`
}

func (d *Dispatcher) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, d.startedAtUnixNano).UTC(),
		TotalConsumed:  d.totalConsumed.Load(),
		TotalSent:      d.totalSent.Load(),
		TotalThrottled: d.totalThrottled.Load(),
		TotalSkipped:   d.totalSkipped.Load(),
		TotalErrors:    d.totalErrors.Load(),
	}
	if n := d.lastMessageUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastMessageAt = &t
	}
	d.lastErrorMu.Lock()
	st.LastError = d.lastError
	d.lastErrorMu.Unlock()
	return st
}

// Run consumes until ctx is done, restarting the consumer after errors.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		err := d.consumer.Consume(ctx, func(key, value []byte) error {
			return d.handle(ctx, value)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			d.recordError(err)
			slog.Error("notify consumer", "error", err.Error())
		}
		if err := d.sleep(ctx, d.restartDelay); err != nil {
			return err
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, value []byte) error {
	d.totalConsumed.Add(1)
	d.lastMessageUnixNano.Store(time.Now().UTC().UnixNano())

	var evt messages.CheckpointRecorded
	if err := json.Unmarshal(value, &evt); err != nil || evt.SessionID == "" {
		d.totalSkipped.Add(1)
		return errors.Wrap(kafka.ErrSkip, "decode checkpoint event")
	}

	for _, m := range Compose(evt, d.links) {
		if m.Channel == notify.ChannelSMS && !d.allowSMS(ctx, m.To) {
			continue
		}
		if err := d.deliver(ctx, m); err != nil {
			if ctx.Err() != nil {
				// без коммита: сообщение перечитается после рестарта
				return ctx.Err()
			}
			d.recordError(err)
			slog.Error("notification dropped", "session_id", evt.SessionID, "channel", m.Channel, "status", evt.Status, "error", err.Error())
			continue
		}
		d.totalSent.Add(1)
	}
	return nil
}

func (d *Dispatcher) allowSMS(ctx context.Context, phone string) bool {
	if d.rl == nil {
		return true
	}
	allowed, n, err := d.rl.Allow(ctx, "rl:sms:"+phone, d.smsPerHour, time.Hour)
	if err != nil {
		slog.Warn("sms rate limiter", "error", err.Error())
		return true
	}
	if !allowed {
		d.totalThrottled.Add(1)
		slog.Warn("sms rate limit exceeded", "count", n)
	}
	return allowed
}

func (d *Dispatcher) deliver(ctx context.Context, m notify.Message) error {
	var err error
	for attempt := 1; attempt <= d.backoff.Attempts(); attempt++ {
		if err = d.sender.Send(ctx, m); err == nil {
			return nil
		}
		if errors.Is(err, notify.ErrPermanent) || attempt == d.backoff.Attempts() {
			break
		}
		if serr := d.sleep(ctx, d.backoff.Delay(attempt)); serr != nil {
			return serr
		}
	}
	return err
}

func (d *Dispatcher) recordError(err error) {
	d.totalErrors.Add(1)
	d.lastErrorMu.Lock()
	d.lastError = err.Error()
	d.lastErrorMu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
