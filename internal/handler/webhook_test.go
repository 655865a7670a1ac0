package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/storebot/internal/facts"
	"github.com/capitalize-ai/storebot/internal/guard"
	"github.com/capitalize-ai/storebot/internal/intent"
	"github.com/capitalize-ai/storebot/internal/llm"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/internal/orchestrator"
	"github.com/capitalize-ai/storebot/internal/prompt"
	"github.com/capitalize-ai/storebot/internal/store"
	"github.com/capitalize-ai/storebot/internal/tool"
	"github.com/capitalize-ai/storebot/pkg/logger"
)

type stubLLM struct {
	reply string
}

func (s *stubLLM) Complete(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{Content: s.reply}, nil
}
func (s *stubLLM) Name() string     { return "stub" }
func (s *stubLLM) Models() []string { return nil }

type stubProvider struct{}

func (stubProvider) Fetch(context.Context, map[string]string) (*facts.Fact, error) {
	return nil, nil
}

type memStore struct {
	mu        sync.Mutex
	tenants   map[string]*model.Tenant
	knowledge map[string][]model.KnowledgeEntry
	turns     []*model.Turn
}

func newMemStore(tenants ...*model.Tenant) *memStore {
	s := &memStore{
		tenants:   make(map[string]*model.Tenant),
		knowledge: make(map[string][]model.KnowledgeEntry),
	}
	for _, t := range tenants {
		s.tenants[t.ID] = t
	}
	return s
}

func (s *memStore) GetTenant(_ context.Context, id string) (*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *memStore) PutTenant(_ context.Context, t *model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *t
	s.tenants[t.ID] = &copied
	return nil
}

func (s *memStore) Knowledge(_ context.Context, tenantID string) ([]model.KnowledgeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.knowledge[tenantID], nil
}

func (s *memStore) PutKnowledge(_ context.Context, e *model.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.knowledge[e.TenantID] = append(s.knowledge[e.TenantID], *e)
	return nil
}

func (s *memStore) AppendTurn(_ context.Context, turn *model.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, turn)
	return nil
}

func (s *memStore) RecentTurns(context.Context, string, string, int) ([]model.Turn, error) {
	return nil, nil
}

type sentMessage struct {
	token string
	to    string
	text  string
}

// recordingMessenger pushes every delivery onto a channel so tests can
// wait for the detached event goroutines.
type recordingMessenger struct {
	deliveries chan sentMessage
}

func newRecordingMessenger() *recordingMessenger {
	return &recordingMessenger{deliveries: make(chan sentMessage, 16)}
}

func (m *recordingMessenger) Reply(_ context.Context, replyToken, text string) error {
	m.deliveries <- sentMessage{token: replyToken, text: text}
	return nil
}

func (m *recordingMessenger) Push(_ context.Context, to, text string) error {
	m.deliveries <- sentMessage{to: to, text: text}
	return nil
}

func (m *recordingMessenger) waitOne(t *testing.T) sentMessage {
	t.Helper()
	select {
	case d := <-m.deliveries:
		return d
	case <-time.After(3 * time.Second):
		t.Fatal("no delivery within timeout")
		return sentMessage{}
	}
}

func (m *recordingMessenger) assertNone(t *testing.T) {
	t.Helper()
	select {
	case d := <-m.deliveries:
		t.Fatalf("unexpected delivery: %+v", d)
	case <-time.After(100 * time.Millisecond):
	}
}

func activeTenant() *model.Tenant {
	return &model.Tenant{
		ID:      "t-1",
		Name:    "小明咖啡",
		Persona: "你是小明咖啡的店長。",
		Status:  model.TenantActive,
		Plan:    model.PlanFree,
	}
}

func newWebhookFixture(t *testing.T, secret string, tenants ...*model.Tenant) (*chi.Mux, *recordingMessenger, *memStore) {
	t.Helper()
	log, err := logger.New("error")
	require.NoError(t, err)

	st := newMemStore(tenants...)
	builtins := tool.Builtins{Market: stubProvider{}, Weather: stubProvider{}, Forex: stubProvider{}}
	classifier := intent.NewClassifier(builtins.Market, builtins.Weather, builtins.Forex, log)
	assembler := prompt.NewAssembler(st, log)
	orch := orchestrator.New(classifier, assembler, builtins, tool.NewRemoteDelegate(time.Second), &stubLLM{reply: "歡迎光臨"}, st, 30*time.Second, log)

	deduper := guard.NewDeduper(guard.NewMemoryCache(), 5*time.Minute)
	messenger := newRecordingMessenger()
	master := &model.Tenant{ID: "master", Name: "開店小幫手", Status: model.TenantActive, Plan: model.PlanPro}
	h := NewWebhookHandler(orch, deduper, st, messenger, secret, master, log)

	r := chi.NewRouter()
	r.Post("/webhook/master", h.ReceiveMaster)
	r.Post("/webhook/{tenantID}", h.Receive)
	return r, messenger, st
}

func envelope(messageID, text string) []byte {
	env := model.WebhookEnvelope{
		Destination: "bot-1",
		Events: []model.WebhookEvent{{
			Type:       model.EventMessage,
			Timestamp:  time.Now().UnixMilli(),
			ReplyToken: "rt-" + messageID,
			Source:     model.EventSource{Type: "user", UserID: "u-1"},
			Message:    &model.InboundMessage{ID: messageID, Type: "text", Text: text},
		}},
	}
	body, _ := json.Marshal(env)
	return body
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestWebhook_DeliversReply(t *testing.T) {
	r, messenger, _ := newWebhookFixture(t, "", activeTenant())

	body := envelope("m-1", "你們有賣拿鐵嗎")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/t-1", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	d := messenger.waitOne(t)
	assert.Equal(t, "rt-m-1", d.token)
	assert.Equal(t, "歡迎光臨", d.text)
}

func TestWebhook_SignatureRequired(t *testing.T) {
	r, messenger, _ := newWebhookFixture(t, "channel-secret", activeTenant())
	body := envelope("m-1", "哈囉")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhook/t-1", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", "bogus")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
	messenger.assertNone(t)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhook/t-1", bytes.NewReader(body))
	req.Header.Set("X-Line-Signature", sign("channel-secret", body))
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	messenger.waitOne(t)
}

func TestWebhook_DuplicateDeliveryDropped(t *testing.T) {
	r, messenger, _ := newWebhookFixture(t, "", activeTenant())
	body := envelope("m-dup", "第一次")

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/t-1", bytes.NewReader(body)))
		require.Equal(t, http.StatusOK, w.Code)
	}

	messenger.waitOne(t)
	messenger.assertNone(t)
}

func TestWebhook_UnknownTenantAcknowledgedAndIgnored(t *testing.T) {
	r, messenger, _ := newWebhookFixture(t, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/no-such", bytes.NewReader(envelope("m-1", "哈囉"))))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	messenger.assertNone(t)
}

func TestWebhook_SuspendedTenantIgnored(t *testing.T) {
	suspended := activeTenant()
	suspended.Status = model.TenantSuspended
	r, messenger, _ := newWebhookFixture(t, "", suspended)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/t-1", bytes.NewReader(envelope("m-1", "哈囉"))))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ignored")
	messenger.assertNone(t)
}

func TestWebhook_NonTextEventsSkipped(t *testing.T) {
	r, messenger, _ := newWebhookFixture(t, "", activeTenant())

	env := model.WebhookEnvelope{
		Destination: "bot-1",
		Events: []model.WebhookEvent{
			{Type: model.EventFollow, Source: model.EventSource{UserID: "u-1"}},
			{Type: model.EventMessage, Source: model.EventSource{UserID: "u-1"},
				Message: &model.InboundMessage{ID: "m-s", Type: "sticker"}},
		},
	}
	body, _ := json.Marshal(env)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/t-1", bytes.NewReader(body)))

	require.Equal(t, http.StatusOK, w.Code)
	messenger.assertNone(t)
}

func TestWebhook_MasterEndpointNeedsNoTenantRecord(t *testing.T) {
	r, messenger, _ := newWebhookFixture(t, "")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/master", bytes.NewReader(envelope("m-1", "怎麼開店"))))

	require.Equal(t, http.StatusOK, w.Code)
	d := messenger.waitOne(t)
	assert.Equal(t, "歡迎光臨", d.text)
}

func TestWebhook_MalformedPayloadRejected(t *testing.T) {
	r, messenger, _ := newWebhookFixture(t, "", activeTenant())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/t-1", bytes.NewReader([]byte("not json"))))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	messenger.assertNone(t)
}

func TestWebhook_EachEventInEnvelopeHandled(t *testing.T) {
	r, messenger, _ := newWebhookFixture(t, "", activeTenant())

	env := model.WebhookEnvelope{Destination: "bot-1"}
	for i := 0; i < 3; i++ {
		env.Events = append(env.Events, model.WebhookEvent{
			Type:       model.EventMessage,
			ReplyToken: fmt.Sprintf("rt-%d", i),
			Source:     model.EventSource{UserID: "u-1"},
			Message:    &model.InboundMessage{ID: fmt.Sprintf("m-%d", i), Type: "text", Text: "哈囉"},
		})
	}
	body, _ := json.Marshal(env)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhook/t-1", bytes.NewReader(body)))
	require.Equal(t, http.StatusOK, w.Code)

	tokens := map[string]bool{}
	for i := 0; i < 3; i++ {
		tokens[messenger.waitOne(t).token] = true
	}
	assert.Len(t, tokens, 3)
}
