package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/storebot/internal/guard"
	"github.com/capitalize-ai/storebot/internal/messaging"
	"github.com/capitalize-ai/storebot/internal/middleware"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/internal/store"
	"github.com/capitalize-ai/storebot/pkg/logger"
	"github.com/capitalize-ai/storebot/pkg/metrics"
)

// Ceilings for the admin capabilities, applied per caller inside one
// window.
type AdminLimits struct {
	Window       time.Duration
	BindCeiling  int
	BroadcastMax int
	ProvisionMax int
}

// AdminHandler serves the partner API: tenant provisioning, owner
// binding, broadcasts and knowledge management.
type AdminHandler struct {
	tenants   store.TenantStore
	messenger messaging.Client
	limiter   *guard.RateLimiter
	limits    AdminLimits
	logger    *logger.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(tenants store.TenantStore, messenger messaging.Client, limiter *guard.RateLimiter, limits AdminLimits, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		tenants:   tenants,
		messenger: messenger,
		limiter:   limiter,
		limits:    limits,
		logger:    log,
	}
}

// admit applies the fixed-window limiter for one capability and writes
// the 429 with a retry hint when rejected.
func (h *AdminHandler) admit(w http.ResponseWriter, r *http.Request, capability string, ceiling int) bool {
	caller := middleware.GetUserID(r.Context())
	if caller == "" {
		caller = r.RemoteAddr
	}

	d := h.limiter.Admit(caller+":"+capability, ceiling, h.limits.Window)
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	if !d.Allowed {
		metrics.RateLimitDropsTotal.WithLabelValues(capability).Inc()
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(d.ResetAt).Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":    "rate limit exceeded",
			"reset_at": d.ResetAt.Format(time.RFC3339),
		})
		return false
	}
	return true
}

type provisionRequest struct {
	Name    string     `json:"name"`
	Persona string     `json:"persona"`
	Plan    model.Plan `json:"plan"`
}

// Provision handles POST /api/v1/tenants
func (h *AdminHandler) Provision(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, guard.CapProvision, h.limits.ProvisionMax) {
		return
	}

	var req provisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := middleware.ValidateStoreName(req.Name); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Plan == "" {
		req.Plan = model.PlanFree
	}

	now := time.Now()
	tenant := &model.Tenant{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Name:      req.Name,
		Persona:   req.Persona,
		Status:    model.TenantActive,
		Plan:      req.Plan,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.tenants.PutTenant(r.Context(), tenant); err != nil {
		h.logger.Error("tenant provisioning failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create tenant")
		return
	}

	writeJSON(w, http.StatusCreated, tenant)
}

// Get handles GET /api/v1/tenants/{id}
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

type bindRequest struct {
	OwnerID string `json:"owner_id"`
}

// Bind handles POST /api/v1/tenants/{id}/bind. An existing owner
// binding is silently overwritten: partners re-bind when owners switch
// devices.
func (h *AdminHandler) Bind(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r, guard.CapBind, h.limits.BindCeiling) {
		return
	}

	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	var req bindRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := middleware.ValidateOwnerID(req.OwnerID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if tenant.OwnerID != "" && tenant.OwnerID != req.OwnerID {
		h.logger.Info("owner binding overwritten",
			zap.String("tenant_id", tenant.ID),
			zap.String("previous_owner", tenant.OwnerID))
	}

	tenant.OwnerID = req.OwnerID
	tenant.UpdatedAt = time.Now()
	if err := h.tenants.PutTenant(r.Context(), tenant); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to bind owner")
		return
	}

	writeJSON(w, http.StatusOK, tenant)
}

type broadcastRequest struct {
	Recipients []string `json:"recipients"`
	Text       string   `json:"text"`
}

// Broadcast handles POST /api/v1/tenants/{id}/broadcast. Rate limited
// per tenant owner, not per API caller.
func (h *AdminHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	d := h.limiter.Admit(tenant.OwnerID+":"+guard.CapBroadcast, h.limits.BroadcastMax, h.limits.Window)
	if !d.Allowed {
		metrics.RateLimitDropsTotal.WithLabelValues(guard.CapBroadcast).Inc()
		w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(d.ResetAt).Seconds())+1))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":    "rate limit exceeded",
			"reset_at": d.ResetAt.Format(time.RFC3339),
		})
		return
	}

	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" || len(req.Recipients) == 0 {
		writeError(w, http.StatusBadRequest, "recipients and text are required")
		return
	}

	sent := 0
	for _, to := range req.Recipients {
		if err := h.messenger.Push(r.Context(), to, req.Text); err != nil {
			h.logger.Warn("broadcast delivery failed",
				zap.String("tenant_id", tenant.ID), zap.String("to", to), zap.Error(err))
			continue
		}
		sent++
	}

	writeJSON(w, http.StatusOK, map[string]int{"sent": sent, "requested": len(req.Recipients)})
}

type knowledgeRequest struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// PutKnowledge handles POST /api/v1/tenants/{id}/knowledge
func (h *AdminHandler) PutKnowledge(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	var req knowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "question and answer are required")
		return
	}

	entry := &model.KnowledgeEntry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenant.ID,
		Question:  req.Question,
		Answer:    req.Answer,
		CreatedAt: time.Now(),
	}
	if err := h.tenants.PutKnowledge(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store knowledge entry")
		return
	}

	writeJSON(w, http.StatusCreated, entry)
}

// ListKnowledge handles GET /api/v1/tenants/{id}/knowledge
func (h *AdminHandler) ListKnowledge(w http.ResponseWriter, r *http.Request) {
	tenant, ok := h.loadTenant(w, r)
	if !ok {
		return
	}

	entries, err := h.tenants.Knowledge(r.Context(), tenant.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load knowledge entries")
		return
	}
	if entries == nil {
		entries = []model.KnowledgeEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *AdminHandler) loadTenant(w http.ResponseWriter, r *http.Request) (*model.Tenant, bool) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateTenantID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	tenant, err := h.tenants.GetTenant(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load tenant")
		}
		return nil, false
	}
	return tenant, true
}
