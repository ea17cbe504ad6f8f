package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	domainErr "github.com/thanhvo2104/admitq/internal/errors"
	"github.com/thanhvo2104/admitq/internal/models"
	"github.com/thanhvo2104/admitq/internal/service"
	"github.com/thanhvo2104/admitq/pkg/logger"
)

// Handler is the thin request surface over the admission engine: decode,
// delegate, map errors. No business rules live here.
type Handler struct {
	engine service.AdmissionEngine
	tokens service.TokenService
	l      logger.Logger
}

func NewHandler(engine service.AdmissionEngine, tokens service.TokenService, l logger.Logger) *Handler {
	return &Handler{
		engine: engine,
		tokens: tokens,
		l:      l,
	}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/resources", h.RegisterResource).Methods(http.MethodPost)
	api.HandleFunc("/resources/{resourceId}/open", h.OpenAdmission).Methods(http.MethodPost)
	api.HandleFunc("/resources/{resourceId}/close", h.CloseAdmission).Methods(http.MethodPost)
	api.HandleFunc("/resources/{resourceId}/join", h.Join).Methods(http.MethodPost)
	api.HandleFunc("/resources/{resourceId}/entries", h.ListWaiting).Methods(http.MethodGet)
	api.HandleFunc("/resources/{resourceId}/entries/{entryId}/call", h.CallNext).Methods(http.MethodPost)
	api.HandleFunc("/resources/{resourceId}/entries/{entryId}/enter", h.ResolveEntered).Methods(http.MethodPost)
	api.HandleFunc("/resources/{resourceId}/watch", h.WatchResource).Methods(http.MethodGet)
	api.HandleFunc("/entries/{entryId}/rank", h.RankOf).Methods(http.MethodGet)
	api.HandleFunc("/entries/{entryId}/confirm", h.Confirm).Methods(http.MethodPost)
	api.HandleFunc("/entries/{entryId}/cancel", h.Cancel).Methods(http.MethodPost)
	api.HandleFunc("/entries/{entryId}/stream", h.StreamEntry).Methods(http.MethodGet)
	api.HandleFunc("/resources/{resourceId}/tokens", h.IssueToken).Methods(http.MethodPost)
	api.HandleFunc("/tokens/consume", h.ConsumeToken).Methods(http.MethodPost)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type registerResourceRequest struct {
	ResourceID      string `json:"resource_id"`
	IsAdmissionOpen bool   `json:"is_admission_open"`
	CapacityUnit    int    `json:"capacity_unit"`
	TurnoverMinutes int    `json:"turnover_minutes"`
	MinPartySize    int    `json:"min_party_size"`
	MaxPartySize    int    `json:"max_party_size"`
}

func (h *Handler) RegisterResource(w http.ResponseWriter, r *http.Request) {
	var req registerResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ResourceID == "" {
		h.respondError(w, r, http.StatusBadRequest, "resource_id is required")
		return
	}

	state := &models.ResourceQueueState{
		ResourceID:       req.ResourceID,
		IsAdmissionOpen:  req.IsAdmissionOpen,
		CapacityUnit:     req.CapacityUnit,
		TurnoverDuration: time.Duration(req.TurnoverMinutes) * time.Minute,
		MinPartySize:     req.MinPartySize,
		MaxPartySize:     req.MaxPartySize,
	}

	if err := h.engine.RegisterResource(r.Context(), state); err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, state)
}

func (h *Handler) OpenAdmission(w http.ResponseWriter, r *http.Request) {
	h.setAdmission(w, r, true)
}

func (h *Handler) CloseAdmission(w http.ResponseWriter, r *http.Request) {
	h.setAdmission(w, r, false)
}

func (h *Handler) setAdmission(w http.ResponseWriter, r *http.Request, open bool) {
	resourceID := mux.Vars(r)["resourceId"]

	if err := h.engine.SetAdmissionOpen(r.Context(), resourceID, open); err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"resource_id": resourceID, "is_admission_open": open})
}

type joinRequest struct {
	PartySize int             `json:"party_size"`
	Identity  models.Identity `json:"identity"`
}

func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["resourceId"]

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.engine.Join(r.Context(), service.JoinInput{
		ResourceID: resourceID,
		PartySize:  req.PartySize,
		Identity:   req.Identity,
	})
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, out)
}

func (h *Handler) RankOf(w http.ResponseWriter, r *http.Request) {
	entryID := mux.Vars(r)["entryId"]

	out, err := h.engine.RankOf(r.Context(), entryID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handler) CallNext(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.engine.CallNext(r.Context(), vars["resourceId"], vars["entryId"]); err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "called"})
}

type identityRequest struct {
	Identity models.Identity `json:"identity"`
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	entryID := mux.Vars(r)["entryId"]

	var req identityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.engine.Confirm(r.Context(), entryID, req.Identity); err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

func (h *Handler) ResolveEntered(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	if err := h.engine.ResolveEntered(r.Context(), vars["resourceId"], vars["entryId"]); err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "entered"})
}

type cancelRequest struct {
	Actor    service.Actor   `json:"actor"`
	Identity models.Identity `json:"identity"`
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	entryID := mux.Vars(r)["entryId"]

	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Actor != service.ActorOwner && req.Actor != service.ActorParticipant {
		h.respondError(w, r, http.StatusBadRequest, "actor must be owner or participant")
		return
	}

	if err := h.engine.Cancel(r.Context(), entryID, req.Actor, req.Identity); err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) ListWaiting(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["resourceId"]

	list, err := h.engine.ListWaiting(r.Context(), resourceID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, list)
}

type issueTokenRequest struct {
	OwnerID string `json:"owner_id"`
}

func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	resourceID := mux.Vars(r)["resourceId"]

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OwnerID == "" {
		h.respondError(w, r, http.StatusBadRequest, "owner_id is required")
		return
	}

	out, err := h.tokens.Issue(r.Context(), req.OwnerID, resourceID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, out)
}

type consumeTokenRequest struct {
	Token string `json:"token"`
}

func (h *Handler) ConsumeToken(w http.ResponseWriter, r *http.Request) {
	var req consumeTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		h.respondError(w, r, http.StatusBadRequest, "token is required")
		return
	}

	t, err := h.tokens.Consume(r.Context(), req.Token)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	h.respondJSON(w, http.StatusOK, t)
}

func (h *Handler) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case err == domainErr.ErrEntryNotFound, err == domainErr.ErrResourceNotFound, err == domainErr.ErrTokenNotFound:
		h.respondError(w, r, http.StatusNotFound, err.Error())
	case err == domainErr.ErrPermissionDenied:
		h.respondError(w, r, http.StatusForbidden, err.Error())
	case err == domainErr.ErrAdmissionClosed:
		h.respondError(w, r, http.StatusForbidden, err.Error())
	case err == domainErr.ErrPartySizeOutOfRange, err == models.ErrMalformedIdentity:
		h.respondError(w, r, http.StatusBadRequest, err.Error())
	case err == domainErr.ErrAdmissionAlreadyOpen, err == domainErr.ErrAdmissionAlreadyClosed,
		err == domainErr.ErrTokenActive, domainErr.IsInvalidTransition(err):
		h.respondError(w, r, http.StatusConflict, err.Error())
	case err == domainErr.ErrLockBusy, err == domainErr.ErrVersionConflict:
		// Retryable: nothing was mutated.
		h.respondError(w, r, http.StatusServiceUnavailable, err.Error())
	case err == domainErr.ErrTokenInvalid, err == domainErr.ErrTokenExpired:
		h.respondError(w, r, http.StatusUnauthorized, err.Error())
	default:
		h.l.Errorf(r.Context(), "http.Handler: %v", err)
		h.respondError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.respondJSON(w, status, map[string]any{
		"error":  msg,
		"status": status,
	})
}
