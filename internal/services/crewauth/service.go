package crewauth

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/CrewTrack/internal/auth/codec"
	"github.com/BearBump/CrewTrack/internal/auth/pinhash"
	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/BearBump/CrewTrack/internal/services/lockout"
	"github.com/pkg/errors"
)

const (
	DefaultSessionTTL  = 12 * time.Hour
	DefaultLoginLimit  = 5
	DefaultLoginWindow = 60 * time.Second
)

// CredentialStore looks up active crew members only.
type CredentialStore interface {
	FindCrewByPhone(ctx context.Context, digits string) (*models.CrewIdentity, error)
	FindCrewByID(ctx context.Context, id string) (*models.CrewIdentity, error)
	DeviceTeam(ctx context.Context, deviceID string) (string, error)
	UpdateCrewPIN(ctx context.Context, id, pinHash string, pinLength int) error
}

type LockoutGuard interface {
	Check(ctx context.Context, phone string) lockout.Status
	RecordFailure(ctx context.Context, phone string) lockout.Status
	Clear(ctx context.Context, phone string)
}

// RateLimiter is the soft per-key throttle, separate from the lockout.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type Service struct {
	creds CredentialStore
	guard LockoutGuard
	rl    RateLimiter
	codec *codec.Codec
	pins  *pinhash.Hasher

	ttl         time.Duration
	loginLimit  int64
	loginWindow time.Duration
	now         func() time.Time
}

func New(creds CredentialStore, guard LockoutGuard, rl RateLimiter, c *codec.Codec) *Service {
	return &Service{
		creds:       creds,
		guard:       guard,
		rl:          rl,
		codec:       c,
		pins:        pinhash.New(c),
		ttl:         DefaultSessionTTL,
		loginLimit:  DefaultLoginLimit,
		loginWindow: DefaultLoginWindow,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithSettings(ttl time.Duration, loginLimit int64, loginWindow time.Duration) *Service {
	if ttl > 0 {
		s.ttl = ttl
	}
	if loginLimit > 0 {
		s.loginLimit = loginLimit
	}
	if loginWindow > 0 {
		s.loginWindow = loginWindow
	}
	return s
}

// WithPINHasher keys PIN hashes separately from session tokens.
func (s *Service) WithPINHasher(h *pinhash.Hasher) *Service {
	s.pins = h
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// LoginWithPhone runs the phone+PIN flow, gated by the lockout guard.
func (s *Service) LoginWithPhone(ctx context.Context, phone, pin string) (string, *models.CrewClaims, error) {
	digits := models.NormalizePhone(phone)
	if len(digits) < 7 {
		return "", nil, &models.ValidationError{Field: "phone", Reason: "invalid phone number"}
	}
	if err := pinhash.Validate(pin); err != nil {
		return "", nil, err
	}
	if st := s.guard.Check(ctx, digits); st.Locked {
		return "", nil, &models.LockedError{RetryAfterMinutes: st.RetryAfterMinutes}
	}
	if err := s.throttle(ctx, "rl:login:phone:"+digits); err != nil {
		return "", nil, err
	}

	crew, err := s.creds.FindCrewByPhone(ctx, digits)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", nil, err
	}
	if crew == nil || !s.pins.Matches(pin, crew.PINHash) {
		s.guard.RecordFailure(ctx, digits)
		return "", nil, models.ErrInvalidCredentials
	}

	s.guard.Clear(ctx, digits)
	return s.issue(crew)
}

// LoginWithDevice runs the device+member flow. The tablet's registration is
// the first factor, so the phone lockout is skipped; the per-member throttle
// still applies.
func (s *Service) LoginWithDevice(ctx context.Context, deviceID, memberID, pin string) (string, *models.CrewClaims, error) {
	if deviceID == "" || memberID == "" {
		return "", nil, &models.ValidationError{Reason: "deviceId and crewMemberId are required"}
	}
	if err := pinhash.Validate(pin); err != nil {
		return "", nil, err
	}
	if err := s.throttle(ctx, "rl:login:member:"+memberID); err != nil {
		return "", nil, err
	}

	teamID, err := s.creds.DeviceTeam(ctx, deviceID)
	if errors.Is(err, models.ErrNotFound) {
		return "", nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	crew, err := s.creds.FindCrewByID(ctx, memberID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", nil, err
	}
	if crew == nil || crew.TeamID != teamID || !s.pins.Matches(pin, crew.PINHash) {
		return "", nil, models.ErrInvalidCredentials
	}
	return s.issue(crew)
}

// ResetPIN stores a new PIN hash and lifts any lockout on the member's phone.
func (s *Service) ResetPIN(ctx context.Context, memberID, pin string) error {
	if err := pinhash.Validate(pin); err != nil {
		return err
	}
	crew, err := s.creds.FindCrewByID(ctx, memberID)
	if err != nil {
		return err
	}
	if err := s.creds.UpdateCrewPIN(ctx, crew.ID, s.pins.Hash(pin), len(pin)); err != nil {
		return err
	}
	s.guard.Clear(ctx, models.NormalizePhone(crew.PhoneDigits))
	slog.Info("crew pin reset", "crew_member_id", crew.ID)
	return nil
}

// ResetTeamPIN lets a team lead reset a member of their own team.
func (s *Service) ResetTeamPIN(ctx context.Context, lead *models.CrewClaims, memberID, pin string) error {
	if lead == nil || lead.Role != models.CrewRoleLead {
		return models.ErrForbidden
	}
	crew, err := s.creds.FindCrewByID(ctx, memberID)
	if err != nil {
		return err
	}
	if crew.TeamID != lead.TeamID {
		return models.ErrForbidden
	}
	return s.ResetPIN(ctx, memberID, pin)
}

func (s *Service) HashPIN(pin string) string {
	return s.pins.Hash(pin)
}

// Issue signs a fresh session token for crew.
func (s *Service) Issue(crew *models.CrewIdentity) (string, *models.CrewClaims, error) {
	return s.issue(crew)
}

func (s *Service) issue(crew *models.CrewIdentity) (string, *models.CrewClaims, error) {
	claims := models.CrewClaims{
		CrewMemberID: crew.ID,
		TeamID:       crew.TeamID,
		Role:         crew.Role,
		Name:         crew.Name,
		ExpiresAt:    s.now().Add(s.ttl).Truncate(time.Millisecond),
	}
	token, err := s.encode(claims)
	if err != nil {
		return "", nil, errors.Wrap(err, "encode session token")
	}
	slog.Info("crew login", "crew_member_id", crew.ID, "team_id", crew.TeamID)
	return token, &claims, nil
}

func (s *Service) throttle(ctx context.Context, key string) error {
	if s.rl == nil {
		return nil
	}
	allowed, n, err := s.rl.Allow(ctx, key, s.loginLimit, s.loginWindow)
	if err != nil {
		// мягкий лимитер: при недоступности пропускаем
		slog.Warn("login rate limiter", "error", err.Error())
		return nil
	}
	if !allowed {
		slog.Warn("login rate limit exceeded", "key", key, "count", n)
		return models.ErrRateLimited
	}
	return nil
}
