package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default currency pair when the message mentions exchange rates without
// naming one.
const (
	DefaultBase  = "USD"
	DefaultQuote = "TWD"
)

// ForexProvider looks up an exchange rate for a currency pair.
type ForexProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewForexProvider creates an exchange-rate provider.
func NewForexProvider(baseURL string) *ForexProvider {
	return &ForexProvider{BaseURL: baseURL, Client: httpClient}
}

type rateResponse struct {
	Result string             `json:"result"`
	Rates  map[string]float64 `json:"rates"`
}

// Fetch retrieves the rate for args["base"]/args["quote"] and converts
// args["amount"] when present. Returns (nil, nil) when the pair is
// unknown.
func (p *ForexProvider) Fetch(ctx context.Context, args map[string]string) (*Fact, error) {
	base := args["base"]
	if base == "" {
		base = DefaultBase
	}
	quote := args["quote"]
	if quote == "" {
		quote = DefaultQuote
	}

	u := fmt.Sprintf("%s/v6/latest/%s", p.BaseURL, url.PathEscape(base))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate fetch: status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("rate decode: %w", err)
	}

	rate, ok := body.Rates[quote]
	if !ok || rate == 0 {
		return nil, nil
	}

	summary := fmt.Sprintf("1 %s = %.4f %s", base, rate, quote)
	if amt, err := strconv.ParseFloat(args["amount"], 64); err == nil && amt > 0 {
		summary += fmt.Sprintf("，%.2f %s 約為 %.2f %s", amt, base, amt*rate, quote)
	}

	return &Fact{Kind: "forex", Summary: summary, AsOf: time.Now()}, nil
}
