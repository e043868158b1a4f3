package crewapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type trackParams struct {
	kind, code, token string
}

func trackParamsFrom(r *http.Request) trackParams {
	return trackParams{
		kind:  chi.URLParam(r, "kind"),
		code:  chi.URLParam(r, "code"),
		token: r.URL.Query().Get("token"),
	}
}

func (a *API) trackView(w http.ResponseWriter, r *http.Request) {
	p := trackParamsFrom(r)
	view, err := a.portal.View(r.Context(), p.kind, p.code, p.token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, view)
}

type clientMessageRequest struct {
	Body string `json:"body" validate:"required"`
}

type clientMessageResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

func (a *API) trackMessage(w http.ResponseWriter, r *http.Request) {
	var req clientMessageRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := trackParamsFrom(r)
	m, err := a.portal.PostMessage(r.Context(), p.kind, p.code, p.token, req.Body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, clientMessageResponse{ID: m.ID, CreatedAt: m.CreatedAt})
}

type changeRequestRequest struct {
	Type    string `json:"type" validate:"required"`
	Details string `json:"details" validate:"max=2000"`
}

func (a *API) trackChangeRequest(w http.ResponseWriter, r *http.Request) {
	var req changeRequestRequest
	if err := a.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p := trackParamsFrom(r)
	cr, err := a.portal.RequestChange(r.Context(), p.kind, p.code, p.token, req.Type, req.Details)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, clientMessageResponse{ID: cr.ID, CreatedAt: cr.CreatedAt})
}
