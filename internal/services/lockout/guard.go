package lockout

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/BearBump/CrewTrack/internal/models"
)

const (
	DefaultThreshold = 5
	DefaultCooldown  = 15 * time.Minute
)

// Repository must be shared persistent storage: an in-process counter would
// let an attacker reset the budget by landing on another instance.
type Repository interface {
	GetLockout(ctx context.Context, phone string) (*models.LockoutRecord, error)
	DeleteLockout(ctx context.Context, phone string) error
	// IncrementLockout atomically bumps failed_attempts and sets locked_until
	// to lockUntil once the count reaches threshold. An existing locked_until
	// is never overwritten.
	IncrementLockout(ctx context.Context, phone string, now time.Time, threshold int, lockUntil time.Time) (*models.LockoutRecord, error)
}

type Status struct {
	Locked            bool
	RetryAfterMinutes int
}

type Guard struct {
	repo      Repository
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func New(repo Repository) *Guard {
	return &Guard{
		repo:      repo,
		threshold: DefaultThreshold,
		cooldown:  DefaultCooldown,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (g *Guard) WithSettings(threshold int, cooldown time.Duration) *Guard {
	if threshold > 0 {
		g.threshold = threshold
	}
	if cooldown > 0 {
		g.cooldown = cooldown
	}
	return g
}

func (g *Guard) WithClock(now func() time.Time) *Guard {
	g.now = now
	return g
}

// Check reports whether phone is currently locked. Store errors fail closed.
func (g *Guard) Check(ctx context.Context, phone string) Status {
	rec, err := g.repo.GetLockout(ctx, phone)
	if err != nil {
		slog.Error("lockout check", "error", err.Error())
		return Status{Locked: true, RetryAfterMinutes: 1}
	}
	if rec == nil || rec.LockedUntil == nil {
		return Status{}
	}

	now := g.now()
	if rec.LockedUntil.After(now) {
		return Status{Locked: true, RetryAfterMinutes: minutesUntil(now, *rec.LockedUntil)}
	}

	// Кулдаун истёк: начинаем счёт заново.
	if err := g.repo.DeleteLockout(ctx, phone); err != nil {
		slog.Error("lockout expire", "error", err.Error())
	}
	return Status{}
}

// RecordFailure counts a failed PIN attempt and returns the resulting status.
func (g *Guard) RecordFailure(ctx context.Context, phone string) Status {
	now := g.now()
	rec, err := g.repo.IncrementLockout(ctx, phone, now, g.threshold, now.Add(g.cooldown))
	if err != nil {
		slog.Error("lockout record failure", "error", err.Error())
		return Status{}
	}
	if rec.LockedUntil != nil && rec.LockedUntil.After(now) {
		slog.Warn("crew phone locked out", "attempts", rec.FailedAttempts, "locked_until", rec.LockedUntil.Format(time.RFC3339))
		return Status{Locked: true, RetryAfterMinutes: minutesUntil(now, *rec.LockedUntil)}
	}
	return Status{}
}

// Clear drops the record; used after a successful login and on PIN reset.
func (g *Guard) Clear(ctx context.Context, phone string) {
	if phone == "" {
		return
	}
	if err := g.repo.DeleteLockout(ctx, phone); err != nil {
		slog.Error("lockout clear", "error", err.Error())
	}
}

func minutesUntil(now, until time.Time) int {
	m := int(math.Ceil(until.Sub(now).Minutes()))
	if m < 1 {
		m = 1
	}
	return m
}
