// Package crewapi is the HTTP surface of crew-api: crew portal endpoints
// behind the crew_session cookie and client tracking endpoints behind a
// tracking link token.
package crewapi

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/BearBump/CrewTrack/internal/services/checkpoints"
	"github.com/BearBump/CrewTrack/internal/services/locations"
	"github.com/didip/tollbooth/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
)

type CrewAuth interface {
	LoginWithPhone(ctx context.Context, phone, pin string) (string, *models.CrewClaims, error)
	LoginWithDevice(ctx context.Context, deviceID, memberID, pin string) (string, *models.CrewClaims, error)
	Verify(token string) (*models.CrewClaims, error)
	ResetTeamPIN(ctx context.Context, lead *models.CrewClaims, memberID, pin string) error
	SessionTTL() time.Duration
}

type Checkpoints interface {
	StartSession(ctx context.Context, in checkpoints.StartInput) (*checkpoints.StartResult, error)
	Advance(ctx context.Context, in checkpoints.AdvanceInput) (*models.Checkpoint, *models.TrackingSession, error)
	EndSession(ctx context.Context, sessionID, teamID string) (*models.TrackingSession, error)
}

type Locations interface {
	Ingest(ctx context.Context, p models.LocationPing) (*locations.Result, error)
}

type Portal interface {
	View(ctx context.Context, kind, code, token string) (*models.TrackingView, error)
	PostMessage(ctx context.Context, kind, code, token, body string) (*models.ClientMessage, error)
	RequestChange(ctx context.Context, kind, code, token, requestType, details string) (*models.ChangeRequest, error)
}

type Options struct {
	// Production marks the session cookie Secure.
	Production bool
	// TrackRequestsPerSecond is the per-IP limit on /track; 0 disables it.
	TrackRequestsPerSecond float64
	// TrackIPLookups is the order the /track limiter reads the client IP
	// from. Defaults to RemoteAddr only; list a proxy header first only when
	// a trusted proxy sets it.
	TrackIPLookups []string
	Registry       prometheus.Registerer
}

var defaultTrackIPLookups = []string{"RemoteAddr"}

type API struct {
	auth     CrewAuth
	engine   Checkpoints
	ingestor Locations
	portal   Portal
	team     TeamData
	jobs     JobResolver

	opts     Options
	validate *validator.Validate
	metrics  *httpMetrics
}

func New(auth CrewAuth, engine Checkpoints, ingestor Locations, portal Portal, opts Options) *API {
	return &API{
		auth:     auth,
		engine:   engine,
		ingestor: ingestor,
		portal:   portal,
		opts:     opts,
		validate: newValidator(),
		metrics:  newHTTPMetrics(opts.Registry),
	}
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Routes mounts every endpoint on r.
func (a *API) Routes(r chi.Router) {
	r.Use(a.metrics.middleware)

	r.Route("/crew", func(r chi.Router) {
		r.Post("/login", a.login)
		r.Post("/logout", a.logout)

		r.Group(func(r chi.Router) {
			r.Use(a.requireCrew)
			r.Get("/me", a.me)
			r.Post("/sessions", a.startSession)
			r.Post("/sessions/{id}/end", a.endSession)
			r.Post("/checkpoints", a.advance)
			r.Post("/location", a.location)
			r.Post("/members/{id}/pin", a.resetPIN)

			if a.team != nil && a.jobs != nil {
				r.Get("/team/position", a.teamPosition)
				r.Get("/team/history", a.teamHistory)
				r.Get("/jobs/{kind}/{ref}/messages", a.jobMessages)
			}
		})
	})

	r.Route("/track/{kind}/{code}", func(r chi.Router) {
		if a.opts.TrackRequestsPerSecond > 0 {
			lmt := tollbooth.NewLimiter(a.opts.TrackRequestsPerSecond, nil)
			lookups := a.opts.TrackIPLookups
			if len(lookups) == 0 {
				lookups = defaultTrackIPLookups
			}
			lmt.SetIPLookups(lookups)
			lmt.SetMessageContentType("application/json")
			lmt.SetMessage(`{"error":"too many requests"}`)
			r.Use(func(next http.Handler) http.Handler {
				return tollbooth.LimitHandler(lmt, next)
			})
		}
		r.Get("/", a.trackView)
		r.Post("/messages", a.trackMessage)
		r.Post("/change-requests", a.trackChangeRequest)
	})
}

// Handler returns a standalone router with the API mounted.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	a.Routes(r)
	return r
}
