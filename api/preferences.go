package api

import (
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/garnizeh/campuscare/internal/alerts"
	pubmodels "github.com/garnizeh/campuscare/pkg/models"
	"github.com/garnizeh/campuscare/pkg/repository"
)

// PreferencesHandler stores small per-user UI settings such as the position of
// the floating SOS button.
type PreferencesHandler struct {
	repo     repository.PreferenceRepo
	validate *validator.Validate
}

func NewPreferencesHandler(repo repository.PreferenceRepo) *PreferencesHandler {
	return &PreferencesHandler{repo: repo, validate: validator.New()}
}

type putPreferenceRequest struct {
	Value string `json:"value"`
}

func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := alerts.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	p, err := h.repo.GetPreference(r.Context(), id.UserID, mux.Vars(r)["key"])
	if err != nil {
		logger.Error("get preference", slog.Any("err", err))
		http.Error(w, "failed to load preference", http.StatusInternalServerError)
		return
	}
	if p == nil {
		http.Error(w, "preference not found", http.StatusNotFound)
		return
	}
	writeJSON(w, p, http.StatusOK)
}

func (h *PreferencesHandler) Put(w http.ResponseWriter, r *http.Request) {
	id, ok := alerts.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	var req putPreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	p := &pubmodels.Preference{UserID: id.UserID, Key: mux.Vars(r)["key"], Value: req.Value, Updated: time.Now().UTC().Unix()}
	if err := h.validate.Struct(p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.repo.PutPreference(r.Context(), p); err != nil {
		logger.Error("put preference", slog.Any("err", err))
		http.Error(w, "failed to save preference", http.StatusInternalServerError)
		return
	}
	writeJSON(w, p, http.StatusOK)
}
