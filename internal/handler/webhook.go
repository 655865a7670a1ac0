package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/storebot/internal/guard"
	"github.com/capitalize-ai/storebot/internal/messaging"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/internal/orchestrator"
	"github.com/capitalize-ai/storebot/internal/prompt"
	"github.com/capitalize-ai/storebot/internal/store"
	"github.com/capitalize-ai/storebot/pkg/logger"
	"github.com/capitalize-ai/storebot/pkg/metrics"
)

// maxWebhookBody caps the inbound envelope size.
const maxWebhookBody = 1 << 20

// WebhookHandler receives push-style events from the messaging platform
// and runs the pipeline for each admitted one. The envelope is always
// acknowledged with 200 so the platform stops retrying; duplicates and
// per-event failures never surface upstream.
type WebhookHandler struct {
	orch          *orchestrator.Orchestrator
	deduper       *guard.Deduper
	tenants       store.TenantStore
	messenger     messaging.Client
	channelSecret string
	masterTenant  *model.Tenant
	logger        *logger.Logger
}

// NewWebhookHandler creates a webhook handler. masterTenant is the
// synthetic persona that sells the platform itself.
func NewWebhookHandler(
	orch *orchestrator.Orchestrator,
	deduper *guard.Deduper,
	tenants store.TenantStore,
	messenger messaging.Client,
	channelSecret string,
	masterTenant *model.Tenant,
	log *logger.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		orch:          orch,
		deduper:       deduper,
		tenants:       tenants,
		messenger:     messenger,
		channelSecret: channelSecret,
		masterTenant:  masterTenant,
		logger:        log,
	}
}

// Receive handles POST /webhook/{tenantID}
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	envelope, ok := h.readEnvelope(w, r)
	if !ok {
		return
	}

	tenant, err := h.tenants.GetTenant(r.Context(), tenantID)
	if err != nil {
		h.logger.Warn("webhook for unknown tenant", zap.String("tenant_id", tenantID), zap.Error(err))
		// Still 200: the platform must not retry a permanently bad destination.
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}
	if !tenant.Active() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	h.processEvents(envelope, tenant, prompt.OverlayNone(), false)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReceiveMaster handles POST /webhook/master
func (h *WebhookHandler) ReceiveMaster(w http.ResponseWriter, r *http.Request) {
	envelope, ok := h.readEnvelope(w, r)
	if !ok {
		return
	}

	h.processEvents(envelope, h.masterTenant, prompt.OverlayDemo(), true)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readEnvelope verifies the signature and decodes the body.
func (h *WebhookHandler) readEnvelope(w http.ResponseWriter, r *http.Request) (*model.WebhookEnvelope, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}

	if h.channelSecret != "" {
		signature := r.Header.Get("X-Line-Signature")
		if !messaging.ValidateSignature(h.channelSecret, body, signature) {
			writeError(w, http.StatusForbidden, "invalid signature")
			return nil, false
		}
	}

	var envelope model.WebhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return nil, false
	}
	return &envelope, true
}

// processEvents admits each message event through the deduper and runs
// the pipeline in the background, so the sender is acknowledged without
// waiting for model calls.
func (h *WebhookHandler) processEvents(envelope *model.WebhookEnvelope, tenant *model.Tenant, overlay prompt.Overlay, master bool) {
	for _, event := range envelope.Events {
		if event.Type != model.EventMessage || event.Message == nil || event.Message.Type != "text" {
			continue
		}

		if !h.deduper.Admit(event.IdempotencyKey()) {
			metrics.DedupeHitsTotal.Inc()
			h.logger.Info("duplicate delivery dropped",
				zap.String("tenant_id", tenant.ID),
				zap.String("message_id", event.Message.ID))
			continue
		}

		event := event
		go h.handleEvent(event, tenant, overlay, master)
	}
}

// eventTimeout bounds one detached pipeline run, tool loop and reply
// delivery included.
const eventTimeout = 90 * time.Second

func (h *WebhookHandler) handleEvent(event model.WebhookEvent, tenant *model.Tenant, overlay prompt.Overlay, master bool) {
	// Detached from the HTTP request: the envelope was already acked.
	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	reply := h.orch.Turn(ctx, orchestrator.Input{
		Tenant:  tenant,
		UserID:  event.Source.UserID,
		Text:    event.Message.Text,
		Overlay: overlay,
		Master:  master,
	})

	if err := h.messenger.Reply(ctx, event.ReplyToken, reply.Text); err != nil {
		h.logger.Error("reply delivery failed",
			zap.String("tenant_id", tenant.ID),
			zap.String("user_id", event.Source.UserID),
			zap.Error(err))
	}
}
