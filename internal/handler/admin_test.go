package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/storebot/internal/guard"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/pkg/logger"
)

func newAdminFixture(t *testing.T, limits AdminLimits, tenants ...*model.Tenant) (*chi.Mux, *recordingMessenger, *memStore) {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)

	st := newMemStore(tenants...)
	messenger := newRecordingMessenger()
	h := NewAdminHandler(st, messenger, guard.NewRateLimiter(), limits, log)

	r := chi.NewRouter()
	r.Post("/tenants", h.Provision)
	r.Route("/tenants/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/bind", h.Bind)
		r.Post("/broadcast", h.Broadcast)
		r.Post("/knowledge", h.PutKnowledge)
		r.Get("/knowledge", h.ListKnowledge)
	})
	return r, messenger, st
}

func defaultLimits() AdminLimits {
	return AdminLimits{Window: time.Minute, BindCeiling: 30, BroadcastMax: 10, ProvisionMax: 5}
}

func postJSON(t *testing.T, r http.Handler, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.1:1234"
	r.ServeHTTP(w, req)
	return w
}

func TestProvision_CreatesTenantWithDefaults(t *testing.T) {
	r, _, st := newAdminFixture(t, defaultLimits())

	w := postJSON(t, r, "/tenants", map[string]string{
		"name":    "小明咖啡",
		"persona": "你是小明咖啡的店長。",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created model.Tenant
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.PlanFree, created.Plan)
	assert.Equal(t, model.TenantActive, created.Status)

	stored, err := st.GetTenant(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, "小明咖啡", stored.Name)
}

func TestProvision_RejectsMissingName(t *testing.T) {
	r, _, _ := newAdminFixture(t, defaultLimits())
	w := postJSON(t, r, "/tenants", map[string]string{"persona": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProvision_RateLimited(t *testing.T) {
	limits := defaultLimits()
	limits.ProvisionMax = 2
	r, _, _ := newAdminFixture(t, limits)

	for i := 0; i < 2; i++ {
		w := postJSON(t, r, "/tenants", map[string]string{"name": "店"})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := postJSON(t, r, "/tenants", map[string]string{"name": "店"})
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "reset_at")
}

func TestBind_SetsAndOverwritesOwner(t *testing.T) {
	r, _, st := newAdminFixture(t, defaultLimits(), activeTenant())

	w := postJSON(t, r, "/tenants/t-1/bind", map[string]string{"owner_id": "owner-a"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))

	// Re-binding to a new owner is allowed, not an error.
	w = postJSON(t, r, "/tenants/t-1/bind", map[string]string{"owner_id": "owner-b"})
	require.Equal(t, http.StatusOK, w.Code)

	stored, err := st.GetTenant(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "owner-b", stored.OwnerID)
}

func TestBind_UnknownTenant(t *testing.T) {
	r, _, _ := newAdminFixture(t, defaultLimits())
	w := postJSON(t, r, "/tenants/no-such/bind", map[string]string{"owner_id": "owner-a"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBroadcast_PushesToAllRecipients(t *testing.T) {
	tenant := activeTenant()
	tenant.OwnerID = "owner-a"
	r, messenger, _ := newAdminFixture(t, defaultLimits(), tenant)

	w := postJSON(t, r, "/tenants/t-1/broadcast", map[string]any{
		"recipients": []string{"u-1", "u-2"},
		"text":       "本週全品項九折",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sent":2`)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		d := messenger.waitOne(t)
		assert.Equal(t, "本週全品項九折", d.text)
		seen[d.to] = true
	}
	assert.Len(t, seen, 2)
}

func TestBroadcast_LimitedPerOwner(t *testing.T) {
	limits := defaultLimits()
	limits.BroadcastMax = 1
	tenant := activeTenant()
	tenant.OwnerID = "owner-a"
	r, messenger, _ := newAdminFixture(t, limits, tenant)

	payload := map[string]any{"recipients": []string{"u-1"}, "text": "hi"}
	w := postJSON(t, r, "/tenants/t-1/broadcast", payload)
	require.Equal(t, http.StatusOK, w.Code)
	messenger.waitOne(t)

	w = postJSON(t, r, "/tenants/t-1/broadcast", payload)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	messenger.assertNone(t)
}

func TestPutKnowledge_StoresEntry(t *testing.T) {
	r, _, st := newAdminFixture(t, defaultLimits(), activeTenant())

	w := postJSON(t, r, "/tenants/t-1/knowledge", map[string]string{
		"question": "營業時間？",
		"answer":   "每日 10:00 到 21:00。",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	entries, err := st.Knowledge(context.Background(), "t-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "營業時間？", entries[0].Question)
	assert.NotEmpty(t, entries[0].ID)
}

func TestListKnowledge_ReturnsEntries(t *testing.T) {
	r, _, _ := newAdminFixture(t, defaultLimits(), activeTenant())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/t-1/knowledge", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"entries":[]}`, w.Body.String())

	postJSON(t, r, "/tenants/t-1/knowledge", map[string]string{
		"question": "有外送嗎？",
		"answer":   "滿三百元可外送。",
	})

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/t-1/knowledge", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "有外送嗎？")
}

func TestPutKnowledge_RejectsIncomplete(t *testing.T) {
	r, _, _ := newAdminFixture(t, defaultLimits(), activeTenant())
	w := postJSON(t, r, "/tenants/t-1/knowledge", map[string]string{"question": "只有問題"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGet_ReturnsTenant(t *testing.T) {
	r, _, _ := newAdminFixture(t, defaultLimits(), activeTenant())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/t-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "小明咖啡")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/tenants/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
