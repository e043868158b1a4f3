package crewapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/go-chi/chi/v5"
)

const SessionCookie = "crew_session"

type ctxKey struct{}

// ClaimsFrom returns the crew claims put into ctx by requireCrew.
func ClaimsFrom(ctx context.Context) (*models.CrewClaims, bool) {
	c, ok := ctx.Value(ctxKey{}).(*models.CrewClaims)
	return c, ok
}

// loginRequest covers both flows: phone+PIN, or a registered tablet
// (deviceId) plus the crew member picked on it. DeviceID goes first so a
// bare {crewMemberId, pin} is reported against deviceId.
type loginRequest struct {
	DeviceID     string `json:"deviceId" validate:"required_with=CrewMemberID,required_without=Phone"`
	Phone        string `json:"phone" validate:"required_without=DeviceID,max=32"`
	PIN          string `json:"pin" validate:"required"`
	CrewMemberID string `json:"crewMemberId" validate:"required_with=DeviceID"`
}

type pinResetRequest struct {
	PIN string `json:"pin" validate:"required,numeric,min=4,max=6"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var (
		token  string
		claims *models.CrewClaims
		err    error
	)
	if req.DeviceID != "" {
		token, claims, err = a.auth.LoginWithDevice(r.Context(), req.DeviceID, req.CrewMemberID, req.PIN)
	} else {
		token, claims, err = a.auth.LoginWithPhone(r.Context(), req.Phone, req.PIN)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	http.SetCookie(w, a.sessionCookie(token, int(a.auth.SessionTTL().Seconds())))
	writeJSON(w, http.StatusOK, claims)
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, a.sessionCookie("", -1))
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFrom(r.Context())
	writeJSON(w, http.StatusOK, claims)
}

func (a *API) resetPIN(w http.ResponseWriter, r *http.Request) {
	var req pinResetRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	claims, _ := ClaimsFrom(r.Context())
	if err := a.auth.ResetTeamPIN(r.Context(), claims, chi.URLParam(r, "id"), req.PIN); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *API) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.opts.Production,
		SameSite: http.SameSiteLaxMode,
	}
}

// requireCrew accepts the session cookie, or a bearer token for clients
// that cannot keep cookies.
func (a *API) requireCrew(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := ""
		if c, err := r.Cookie(SessionCookie); err == nil {
			token = c.Value
		} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
		if token == "" {
			writeError(w, r, models.ErrInvalidToken)
			return
		}
		claims, err := a.auth.Verify(token)
		if err != nil {
			writeError(w, r, models.ErrInvalidToken)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, claims)))
	})
}
