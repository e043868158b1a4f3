package crewapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/BearBump/CrewTrack/internal/models"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

type errorResponse struct {
	Error             string `json:"error"`
	Field             string `json:"field,omitempty"`
	RetryAfterMinutes int    `json:"retryAfterMinutes,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto status codes. Anything unknown is a 500
// and its text stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		locked *models.LockedError
		verr   *models.ValidationError
		vErrs  validator.ValidationErrors
	)
	switch {
	case errors.As(err, &locked):
		writeJSON(w, http.StatusLocked, errorResponse{Error: "account temporarily locked", RetryAfterMinutes: locked.RetryAfterMinutes})
	case errors.Is(err, models.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid credentials"})
	case errors.Is(err, models.ErrInvalidToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "not authenticated"})
	case errors.Is(err, models.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "too many attempts, slow down"})
	case errors.Is(err, models.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Reason, Field: verr.Field})
	case errors.As(err, &vErrs):
		fe := vErrs[0]
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "failed on " + fe.Tag(), Field: fe.Field()})
	case errors.Is(err, models.ErrSessionInactive):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "session is not active"})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err.Error())
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// decode reads a JSON body into dst and runs the struct validators.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	if err := dec.Decode(dst); err != nil {
		return &models.ValidationError{Reason: "malformed JSON body"}
	}
	return a.validate.Struct(dst)
}
