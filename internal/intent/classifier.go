// Package intent classifies inbound messages to decide whether a
// real-time fact lookup must run before the model replies. Running the
// lookup up front means slow provider calls happen at most once per turn
// and their results can be injected as an authoritative fact block,
// instead of letting the model hallucinate values or refuse.
package intent

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/storebot/internal/facts"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/pkg/logger"
)

// Built-in tool names matched to intents, used for tool-choice forcing
// when the pre-fetch fails.
const (
	ToolMarketQuote  = "market_quote"
	ToolWeather      = "weather_forecast"
	ToolExchangeRate = "exchange_rate"
)

var stockSymbol = regexp.MustCompile(`^\d{4}$`)

var weatherKeywords = []string{"天氣", "氣溫", "下雨", "降雨", "weather", "forecast", "颱風"}

var forexKeywords = []string{"匯率", "美金", "美元", "換匯", "exchange rate", "currency"}

// regions recognized in free text. A weather keyword without a region
// falls back to the provider's default region.
var regions = []string{
	"臺北", "台北", "新北", "桃園", "臺中", "台中", "臺南", "台南",
	"高雄", "基隆", "新竹", "嘉義", "苗栗", "彰化", "南投", "雲林",
	"屏東", "宜蘭", "花蓮", "臺東", "台東", "澎湖", "金門", "連江",
}

// Classifier inspects raw user text and runs the matching fact provider.
type Classifier struct {
	market  facts.Provider
	weather facts.Provider
	forex   facts.Provider
	logger  *logger.Logger
}

// NewClassifier creates a classifier over the three built-in providers.
func NewClassifier(market, weather, forex facts.Provider, log *logger.Logger) *Classifier {
	return &Classifier{market: market, weather: weather, forex: forex, logger: log}
}

// Classify applies the ordered rules, first match wins. A recognized
// intent whose lookup failed is returned with Pending set: the model
// must then be forced to invoke the matching tool with its own
// extracted arguments rather than told information is unavailable.
func (c *Classifier) Classify(ctx context.Context, text string) model.Intent {
	trimmed := strings.TrimSpace(text)

	if stockSymbol.MatchString(trimmed) {
		return c.lookup(ctx, model.IntentMarket, ToolMarketQuote, c.market,
			map[string]string{"symbol": trimmed})
	}

	if region, hasRegion := matchRegion(trimmed); hasRegion || containsAny(trimmed, weatherKeywords) {
		args := map[string]string{}
		if hasRegion {
			args["region"] = normalizeRegion(region)
		}
		return c.lookup(ctx, model.IntentWeather, ToolWeather, c.weather, args)
	}

	if containsAny(trimmed, forexKeywords) {
		return c.lookup(ctx, model.IntentForex, ToolExchangeRate, c.forex, nil)
	}

	return model.Intent{Kind: model.IntentChat}
}

// lookup runs a best-effort provider fetch and maps failure or "not
// found" to a pending intent.
func (c *Classifier) lookup(ctx context.Context, kind model.IntentKind, tool string, p facts.Provider, args map[string]string) model.Intent {
	fact, err := p.Fetch(ctx, args)
	if err != nil {
		c.logger.Warn("fact lookup failed",
			zap.String("intent", string(kind)), zap.Error(err))
		return model.Intent{Kind: kind, ToolName: tool, Pending: true}
	}
	if fact == nil {
		return model.Intent{Kind: kind, ToolName: tool, Pending: true}
	}
	return model.Intent{Kind: kind, ToolName: tool, Fact: fact.Summary}
}

func containsAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func matchRegion(s string) (string, bool) {
	for _, r := range regions {
		if strings.Contains(s, r) {
			return r, true
		}
	}
	return "", false
}

// normalizeRegion maps a matched prefix to the official county name the
// forecast API expects.
func normalizeRegion(r string) string {
	switch r {
	case "台北":
		r = "臺北"
	case "台中":
		r = "臺中"
	case "台南":
		r = "臺南"
	case "台東":
		r = "臺東"
	}
	switch r {
	case "基隆", "新竹", "嘉義":
		return r + "市"
	case "臺北", "新北", "桃園", "臺中", "臺南", "高雄":
		return r + "市"
	default:
		return r + "縣"
	}
}
