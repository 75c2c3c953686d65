package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"campaign-engine/internal/campaign"
	"campaign-engine/internal/event"
	"campaign-engine/internal/instance"
	"campaign-engine/internal/sink"
	"campaign-engine/internal/storage"
)

// CampaignStore is the authoring persistence surface the handlers need.
type CampaignStore interface {
	Save(ctx context.Context, c campaign.Campaign) error
	Get(ctx context.Context, id string) (campaign.Campaign, error)
	List(ctx context.Context) ([]campaign.Campaign, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
	LoadEnabled(ctx context.Context) ([]campaign.Campaign, error)
}

// Ingestor is the running engine as the API sees it.
type Ingestor interface {
	Ingest(ev event.Event)
	Refresh()
}

type Handler struct {
	Store     CampaignStore
	Registry  *campaign.Registry
	Engine    Ingestor
	Instances *instance.Store
	Alerts    *sink.LogAlertLog
}

func NewHandler(store CampaignStore, reg *campaign.Registry, eng Ingestor, instances *instance.Store, alerts *sink.LogAlertLog) *Handler {
	return &Handler{Store: store, Registry: reg, Engine: eng, Instances: instances, Alerts: alerts}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (h *Handler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var c campaign.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := h.Store.Save(r.Context(), c); err != nil {
		h.saveError(w, err)
		return
	}
	h.reload(r)
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var c campaign.Campaign
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c.ID = chi.URLParam(r, "id")
	if err := h.Store.Save(r.Context(), c); err != nil {
		h.saveError(w, err)
		return
	}
	h.reload(r)
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := h.Store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.saveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *Handler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.saveError(w, err)
		return
	}
	h.reload(r)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) SetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.Store.SetEnabled(r.Context(), chi.URLParam(r, "id"), enabled); err != nil {
			h.saveError(w, err)
			return
		}
		h.reload(r)
		w.WriteHeader(http.StatusNoContent)
	}
}

// IngestEvent is the push interface for the normalized event feed.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var ev event.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if ev.Kind == "" {
		writeError(w, http.StatusBadRequest, errors.New("event type required"))
		return
	}
	h.Engine.Ingest(ev)
	w.WriteHeader(http.StatusAccepted)
}

// ListInstances serves the read-only instance query API.
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Instances.ListByCampaign(chi.URLParam(r, "id")))
}

// ListAlerts serves the recent alert tail.
func (h *Handler) ListAlerts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Alerts.Recent())
}

// reload refreshes the in-process enabled view immediately; remote
// engines converge through LISTEN/NOTIFY.
func (h *Handler) reload(r *http.Request) {
	campaigns, err := h.Store.LoadEnabled(r.Context())
	if err != nil {
		return
	}
	h.Registry.Rebuild(campaigns)
	if h.Engine != nil {
		h.Engine.Refresh()
	}
}

func (h *Handler) saveError(w http.ResponseWriter, err error) {
	var verr *campaign.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, err)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}
