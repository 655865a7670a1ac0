package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/storebot/internal/llm"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/internal/orchestrator"
	"github.com/capitalize-ai/storebot/internal/prompt"
	"github.com/capitalize-ai/storebot/internal/store"
	"github.com/capitalize-ai/storebot/pkg/logger"
)

// ChatHandler serves the stateless multi-purpose endpoint: conversation
// history is scoped to the request, nothing is persisted.
type ChatHandler struct {
	orch    *orchestrator.Orchestrator
	tenants store.TenantStore
	logger  *logger.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(orch *orchestrator.Orchestrator, tenants store.TenantStore, log *logger.Logger) *ChatHandler {
	return &ChatHandler{orch: orch, tenants: tenants, logger: log}
}

type chatRequest struct {
	TenantID string `json:"tenant_id,omitempty"`

	// Persona configures an ad-hoc tenant when tenant_id is absent.
	Persona   string `json:"persona,omitempty"`
	StoreName string `json:"store_name,omitempty"`

	Text    string            `json:"text"`
	History []llm.ChatMessage `json:"history,omitempty"`

	FunnelStep string `json:"funnel_step,omitempty"`
	FocusField string `json:"focus_field,omitempty"`

	// Overlay selects at most one mode: "", "demo", "partner",
	// "provisioning" or "page".
	Overlay     string `json:"overlay,omitempty"`
	OverlayStep int    `json:"overlay_step,omitempty"`
	OverlayPage string `json:"overlay_page,omitempty"`
}

type chatResponse struct {
	Reply *model.Reply `json:"reply"`
}

// Complete handles POST /api/v1/chat
func (h *ChatHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	tenant, err := h.resolveTenant(r, &req)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "tenant not found")
		} else {
			writeError(w, http.StatusInternalServerError, "failed to load tenant")
		}
		return
	}

	overlay, err := parseOverlay(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history := req.History
	if history == nil {
		history = []llm.ChatMessage{}
	}

	reply := h.orch.Turn(r.Context(), orchestrator.Input{
		Tenant:     tenant,
		Text:       req.Text,
		FunnelStep: req.FunnelStep,
		FocusField: req.FocusField,
		Overlay:    overlay,
		History:    history,
	})

	writeJSON(w, http.StatusOK, chatResponse{Reply: reply})
}

func (h *ChatHandler) resolveTenant(r *http.Request, req *chatRequest) (*model.Tenant, error) {
	if req.TenantID != "" {
		return h.tenants.GetTenant(r.Context(), req.TenantID)
	}

	name := req.StoreName
	if name == "" {
		name = "預覽商店"
	}
	return &model.Tenant{
		ID:      "adhoc",
		Name:    name,
		Persona: req.Persona,
		Status:  model.TenantActive,
		Plan:    model.PlanPro,
	}, nil
}

func parseOverlay(req *chatRequest) (prompt.Overlay, error) {
	switch req.Overlay {
	case "":
		return prompt.OverlayNone(), nil
	case "demo":
		return prompt.OverlayDemo(), nil
	case "partner":
		return prompt.OverlayPartner(), nil
	case "provisioning":
		return prompt.OverlayProvisioning(req.OverlayStep), nil
	case "page":
		return prompt.OverlayPageContext(req.OverlayPage), nil
	default:
		return prompt.Overlay{}, errors.New("unknown overlay")
	}
}
