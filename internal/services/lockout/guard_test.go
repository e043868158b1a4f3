package lockout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/stretchr/testify/require"
)

// memRepo повторяет семантику upsert'а из pgcrew.
type memRepo struct {
	mu   sync.Mutex
	m    map[string]*models.LockoutRecord
	err  error
	dels int
}

func newMemRepo() *memRepo {
	return &memRepo{m: map[string]*models.LockoutRecord{}}
}

func (r *memRepo) GetLockout(ctx context.Context, phone string) (*models.LockoutRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	rec, ok := r.m[phone]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *memRepo) DeleteLockout(ctx context.Context, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dels++
	delete(r.m, phone)
	return r.err
}

func (r *memRepo) IncrementLockout(ctx context.Context, phone string, now time.Time, threshold int, lockUntil time.Time) (*models.LockoutRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	rec, ok := r.m[phone]
	if !ok {
		rec = &models.LockoutRecord{Phone: phone}
		r.m[phone] = rec
	}
	rec.FailedAttempts++
	rec.UpdatedAt = now
	if rec.LockedUntil == nil && rec.FailedAttempts >= threshold {
		lu := lockUntil
		rec.LockedUntil = &lu
	}
	cp := *rec
	return &cp, nil
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestGuard_LocksAfterThreshold(t *testing.T) {
	repo := newMemRepo()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := New(repo).WithClock(clk.now)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		st := g.RecordFailure(ctx, "4165551234")
		require.False(t, st.Locked, "attempt %d", i+1)
		require.False(t, g.Check(ctx, "4165551234").Locked)
	}

	st := g.RecordFailure(ctx, "4165551234")
	require.True(t, st.Locked)
	require.Equal(t, 15, st.RetryAfterMinutes)

	chk := g.Check(ctx, "4165551234")
	require.True(t, chk.Locked)
	require.Equal(t, 15, chk.RetryAfterMinutes)

	// другой номер не затронут
	require.False(t, g.Check(ctx, "4165550000").Locked)
}

func TestGuard_FurtherFailuresDoNotExtendLock(t *testing.T) {
	repo := newMemRepo()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := New(repo).WithClock(clk.now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, "p")
	}
	first := *repo.m["p"].LockedUntil

	clk.t = clk.t.Add(5 * time.Minute)
	g.RecordFailure(ctx, "p")
	require.Equal(t, first, *repo.m["p"].LockedUntil)
	require.Equal(t, 10, g.Check(ctx, "p").RetryAfterMinutes)
}

func TestGuard_RetryMinutesRoundUp(t *testing.T) {
	repo := newMemRepo()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := New(repo).WithClock(clk.now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, "p")
	}
	clk.t = clk.t.Add(14*time.Minute + 30*time.Second)
	require.Equal(t, 1, g.Check(ctx, "p").RetryAfterMinutes)

	clk.t = clk.t.Add(-10 * time.Minute)
	require.Equal(t, 11, g.Check(ctx, "p").RetryAfterMinutes)
}

func TestGuard_ExpiredLockIsDeleted(t *testing.T) {
	repo := newMemRepo()
	clk := &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	g := New(repo).WithClock(clk.now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		g.RecordFailure(ctx, "p")
	}
	clk.t = clk.t.Add(15*time.Minute + time.Second)

	require.False(t, g.Check(ctx, "p").Locked)
	_, ok := repo.m["p"]
	require.False(t, ok)

	// счёт начинается заново
	require.False(t, g.RecordFailure(ctx, "p").Locked)
	require.Equal(t, 1, repo.m["p"].FailedAttempts)
}

func TestGuard_ClearResetsCounter(t *testing.T) {
	repo := newMemRepo()
	g := New(repo)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		g.RecordFailure(ctx, "p")
	}
	g.Clear(ctx, "p")
	_, ok := repo.m["p"]
	require.False(t, ok)

	for i := 0; i < 4; i++ {
		require.False(t, g.RecordFailure(ctx, "p").Locked)
	}
}

func TestGuard_ConcurrentFailuresNotLost(t *testing.T) {
	repo := newMemRepo()
	g := New(repo).WithSettings(100, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.RecordFailure(ctx, "p")
		}()
	}
	wg.Wait()
	require.Equal(t, 20, repo.m["p"].FailedAttempts)
}

func TestGuard_StoreErrorFailsClosed(t *testing.T) {
	repo := newMemRepo()
	repo.err = errors.New("db down")
	g := New(repo)
	ctx := context.Background()

	st := g.Check(ctx, "p")
	require.True(t, st.Locked)
	require.Equal(t, 1, st.RetryAfterMinutes)

	require.NotPanics(t, func() {
		g.RecordFailure(ctx, "p")
		g.Clear(ctx, "p")
	})
}
