package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReply_SendsTokenAndText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody replyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "token-1")
	require.NoError(t, c.Reply(context.Background(), "rt-1", "您好"))

	assert.Equal(t, "/v2/bot/message/reply", gotPath)
	assert.Equal(t, "Bearer token-1", gotAuth)
	assert.Equal(t, "rt-1", gotBody.ReplyToken)
	require.Len(t, gotBody.Messages, 1)
	assert.Equal(t, "text", gotBody.Messages[0].Type)
	assert.Equal(t, "您好", gotBody.Messages[0].Text)
}

func TestPush_SendsRecipient(t *testing.T) {
	var gotBody pushRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/bot/message/push", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "token-1")
	require.NoError(t, c.Push(context.Background(), "u-1", "週年慶開跑"))
	assert.Equal(t, "u-1", gotBody.To)
}

func TestPost_NonSuccessStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(srv.URL, "token-1")
	err := c.Reply(context.Background(), "rt-1", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"events":[]}`)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	good := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.True(t, ValidateSignature("secret", body, good))
	assert.False(t, ValidateSignature("secret", body, "tampered"))
	assert.False(t, ValidateSignature("other", body, good))
	assert.False(t, ValidateSignature("secret", []byte("different"), good))
}
