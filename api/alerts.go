package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"log/slog"

	"github.com/gorilla/mux"

	"github.com/garnizeh/campuscare/internal/alerts"
	"github.com/garnizeh/campuscare/internal/geo"
	"github.com/garnizeh/campuscare/internal/models"
)

type AlertsHandler struct {
	store     *alerts.Store
	submitter *alerts.Submitter
	planner   *geo.Planner
	limit     int
	maxLimit  int
}

func NewAlertsHandler(store *alerts.Store, submitter *alerts.Submitter, planner *geo.Planner, limit int) *AlertsHandler {
	if limit <= 0 {
		limit = 25
	}
	return &AlertsHandler{store: store, submitter: submitter, planner: planner, limit: limit, maxLimit: 500}
}

// Submit handles the SOS press. 201 means the alert is stored and carries the
// call instruction; every other status means nothing was stored.
func (h *AlertsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req alerts.SubmitRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	res, err := h.submitter.Submit(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, res, http.StatusCreated)
	case errors.Is(err, alerts.ErrNotAuthenticated):
		http.Error(w, "not authenticated", http.StatusUnauthorized)
	case errors.Is(err, alerts.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, alerts.ErrStoreUnavailable):
		http.Error(w, "alert could not be saved, call emergency services directly", http.StatusServiceUnavailable)
	default:
		logger.Error("submit alert", slog.Any("err", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := h.limit
	if l := q.Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > h.maxLimit {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = v
	}
	activeOnly := true
	if a := q.Get("active"); a != "" {
		v, err := strconv.ParseBool(a)
		if err != nil {
			http.Error(w, "invalid active flag", http.StatusBadRequest)
			return
		}
		activeOnly = v
	}

	list, err := h.store.Recent(r.Context(), limit, activeOnly)
	if err != nil {
		logger.Error("list alerts", slog.Any("err", err))
		http.Error(w, "alert store unavailable", http.StatusServiceUnavailable)
		return
	}
	if list == nil {
		list = []models.Alert{}
	}
	writeJSON(w, map[string]any{"items": list, "limit": limit}, http.StatusOK)
}

func (h *AlertsHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		logger.Error("get alert", slog.Any("err", err))
		http.Error(w, "alert store unavailable", http.StatusServiceUnavailable)
		return
	}
	if a == nil {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	writeJSON(w, a, http.StatusOK)
}

type resolveResponse struct {
	Resolved bool          `json:"resolved"`
	Alert    *models.Alert `json:"alert,omitempty"`
}

// Resolve is idempotent: an alert that is already resolved or gone answers 200
// with resolved=false.
func (h *AlertsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	updated, err := h.store.Resolve(r.Context(), mux.Vars(r)["id"], actor(r))
	if err != nil {
		logger.Error("resolve alert", slog.Any("err", err))
		http.Error(w, "alert store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, resolveResponse{Resolved: updated != nil, Alert: updated}, http.StatusOK)
}

// Dismiss deletes the alert. Deleting an absent alert still answers 204.
func (h *AlertsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		logger.Error("dismiss alert", slog.Any("err", err))
		http.Error(w, "alert store unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Map plans the dashboard map for the recent alerts.
func (h *AlertsHandler) Map(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	vp, err := parseViewport(q.Get("width"), q.Get("height"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := h.store.Recent(r.Context(), h.limit, true)
	if err != nil {
		logger.Error("map alerts", slog.Any("err", err))
		http.Error(w, "alert store unavailable", http.StatusServiceUnavailable)
		return
	}
	var focus *geo.Focus
	if id := q.Get("focus"); id != "" {
		focus = &geo.Focus{AlertID: id}
	}
	writeJSON(w, h.planner.Plan(list, focus, vp), http.StatusOK)
}

func parseViewport(ws, hs string) (geo.Viewport, error) {
	var vp geo.Viewport
	if ws == "" && hs == "" {
		return vp, nil
	}
	wv, err := strconv.Atoi(ws)
	if err != nil || wv < 0 {
		return vp, errors.New("invalid width")
	}
	hv, err := strconv.Atoi(hs)
	if err != nil || hv < 0 {
		return vp, errors.New("invalid height")
	}
	return geo.Viewport{Width: wv, Height: hv}, nil
}

// actor names the admin performing an action for the audit trail.
func actor(r *http.Request) string {
	if id, ok := alerts.IdentityFrom(r.Context()); ok {
		return id.UserID
	}
	return "admin"
}
