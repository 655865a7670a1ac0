package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/storebot/internal/intent"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/internal/orchestrator"
	"github.com/capitalize-ai/storebot/internal/prompt"
	"github.com/capitalize-ai/storebot/internal/tool"
	"github.com/capitalize-ai/storebot/pkg/logger"
)

func newChatFixture(t *testing.T, tenants ...*model.Tenant) (*chi.Mux, *memStore) {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)

	st := newMemStore(tenants...)
	builtins := tool.Builtins{Market: stubProvider{}, Weather: stubProvider{}, Forex: stubProvider{}}
	classifier := intent.NewClassifier(builtins.Market, builtins.Weather, builtins.Forex, log)
	assembler := prompt.NewAssembler(st, log)
	orch := orchestrator.New(classifier, assembler, builtins, tool.NewRemoteDelegate(time.Second), &stubLLM{reply: "好的，為您處理。"}, st, 30*time.Second, log)

	h := NewChatHandler(orch, st, log)
	r := chi.NewRouter()
	r.Post("/chat", h.Complete)
	return r, st
}

func TestChat_AdHocPersona(t *testing.T) {
	r, st := newChatFixture(t)

	w := postJSON(t, r, "/chat", map[string]any{
		"persona":    "你是花店店員。",
		"store_name": "小花坊",
		"text":       "有玫瑰嗎",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "好的，為您處理。", resp.Reply.Text)
	assert.Equal(t, "chat", resp.Reply.Meta.NextPanel)

	// Stateless: the ad-hoc turn must not be persisted.
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Empty(t, st.turns)
}

func TestChat_ExistingTenant(t *testing.T) {
	r, _ := newChatFixture(t, activeTenant())

	w := postJSON(t, r, "/chat", map[string]any{"tenant_id": "t-1", "text": "營業時間？"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = postJSON(t, r, "/chat", map[string]any{"tenant_id": "no-such", "text": "哈囉"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChat_RequiresText(t *testing.T) {
	r, _ := newChatFixture(t)
	w := postJSON(t, r, "/chat", map[string]any{"persona": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_RejectsUnknownOverlay(t *testing.T) {
	r, _ := newChatFixture(t)
	w := postJSON(t, r, "/chat", map[string]any{"text": "哈囉", "overlay": "banana"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChat_OverlayModes(t *testing.T) {
	r, _ := newChatFixture(t)
	for _, overlay := range []string{"demo", "partner", "provisioning", "page"} {
		w := postJSON(t, r, "/chat", map[string]any{
			"text": "哈囉", "overlay": overlay, "overlay_step": 2, "overlay_page": "pricing",
		})
		assert.Equal(t, http.StatusOK, w.Code, overlay)
	}
}
