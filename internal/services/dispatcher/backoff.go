package dispatcher

import (
	"math/rand"
	"time"
)

type Rand interface {
	Intn(n int) int
}

type BackoffConfig struct {
	Attempts int           // default: 4
	Base     time.Duration // default: 500ms
	Max      time.Duration // default: 10s
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Attempts: 4,
		Base:     500 * time.Millisecond,
		Max:      10 * time.Second,
	}
}

// Backoff gives exponential delays with up to 20% jitter between gateway
// retries.
type Backoff struct {
	cfg BackoffConfig
	r   Rand
}

func NewBackoff(cfg BackoffConfig, r Rand) *Backoff {
	def := DefaultBackoffConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.Base <= 0 {
		cfg.Base = def.Base
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.Max < cfg.Base {
		cfg.Max = cfg.Base
	}
	if r == nil {
		r = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Backoff{cfg: cfg, r: r}
}

func (b *Backoff) Attempts() int {
	return b.cfg.Attempts
}

// Delay returns the wait after the given failed attempt (1-based).
func (b *Backoff) Delay(failed int) time.Duration {
	if failed < 1 {
		failed = 1
	}
	d := b.cfg.Base
	for i := 1; i < failed && d < b.cfg.Max; i++ {
		d *= 2
	}
	if d > b.cfg.Max {
		d = b.cfg.Max
	}
	if jitter := int(d / 5 / time.Millisecond); jitter > 0 {
		d += time.Duration(b.r.Intn(jitter+1)) * time.Millisecond
	}
	return d
}
