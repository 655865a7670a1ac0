package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// MarketProvider looks up a stock quote by its numeric symbol.
type MarketProvider struct {
	BaseURL string
	Client  *http.Client
}

// NewMarketProvider creates a market quote provider.
func NewMarketProvider(baseURL string) *MarketProvider {
	return &MarketProvider{BaseURL: baseURL, Client: httpClient}
}

type quoteResponse struct {
	MsgArray []struct {
		Code   string `json:"c"`
		Name   string `json:"n"`
		Latest string `json:"z"`
		Open   string `json:"o"`
		High   string `json:"h"`
		Low    string `json:"l"`
		Prev   string `json:"y"`
	} `json:"msgArray"`
}

// Fetch retrieves the latest quote for args["symbol"]. Returns (nil, nil)
// when the symbol is unknown or the exchange returned no price.
func (p *MarketProvider) Fetch(ctx context.Context, args map[string]string) (*Fact, error) {
	symbol := args["symbol"]
	if symbol == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/stock/api/getStockInfo.jsp?ex_ch=tse_%s.tw&json=1", p.BaseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market quote fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market quote fetch: status %d", resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("market quote decode: %w", err)
	}

	if len(body.MsgArray) == 0 || body.MsgArray[0].Latest == "" || body.MsgArray[0].Latest == "-" {
		return nil, nil
	}

	q := body.MsgArray[0]
	return &Fact{
		Kind: "market",
		Summary: fmt.Sprintf("%s(%s) 最新成交價 %s，開盤 %s，最高 %s，最低 %s，昨收 %s",
			q.Name, q.Code, q.Latest, q.Open, q.High, q.Low, q.Prev),
		AsOf: time.Now(),
	}, nil
}
