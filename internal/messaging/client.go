// Package messaging delivers replies through the messaging platform.
// Delivery failures are logged, not retried: the platform retries the
// inbound webhook instead, which is exactly why processing must be
// idempotent.
package messaging

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client submits replies keyed by reply token or recipient identifier.
type Client interface {
	// Reply answers an inbound event using its one-shot reply token.
	Reply(ctx context.Context, replyToken, text string) error

	// Push sends a message to a recipient outside a reply window.
	Push(ctx context.Context, to, text string) error
}

// HTTPClient talks to the platform's messaging API with channel-token
// auth.
type HTTPClient struct {
	BaseURL      string
	ChannelToken string
	Client       *http.Client
}

// New creates a messaging client.
func New(baseURL, channelToken string) *HTTPClient {
	return &HTTPClient{
		BaseURL:      baseURL,
		ChannelToken: channelToken,
		Client:       &http.Client{Timeout: 10 * time.Second},
	}
}

type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type replyRequest struct {
	ReplyToken string        `json:"replyToken"`
	Messages   []textMessage `json:"messages"`
}

type pushRequest struct {
	To       string        `json:"to"`
	Messages []textMessage `json:"messages"`
}

// Reply implements Client.
func (c *HTTPClient) Reply(ctx context.Context, replyToken, text string) error {
	return c.post(ctx, "/v2/bot/message/reply", replyRequest{
		ReplyToken: replyToken,
		Messages:   []textMessage{{Type: "text", Text: text}},
	})
}

// Push implements Client.
func (c *HTTPClient) Push(ctx context.Context, to, text string) error {
	return c.post(ctx, "/v2/bot/message/push", pushRequest{
		To:       to,
		Messages: []textMessage{{Type: "text", Text: text}},
	})
}

func (c *HTTPClient) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.ChannelToken)

	resp, err := c.Client.Do(req)
	if err != nil {
		return fmt.Errorf("delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery failed: status %d", resp.StatusCode)
	}
	return nil
}

// ValidateSignature verifies a webhook body against the platform's
// HMAC-SHA256 signature header.
func ValidateSignature(channelSecret string, body []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
