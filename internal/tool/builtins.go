package tool

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/capitalize-ai/storebot/internal/facts"
	"github.com/capitalize-ai/storebot/internal/intent"
	"github.com/capitalize-ai/storebot/internal/llm"
	"github.com/capitalize-ai/storebot/internal/model"
	"github.com/capitalize-ai/storebot/pkg/logger"
)

// Builtins holds the fact providers backing the built-in tools.
type Builtins struct {
	Market  facts.Provider
	Weather facts.Provider
	Forex   facts.Provider
}

// ErrNotFound is returned by a built-in executor when the provider
// found no data for the supplied arguments.
var ErrNotFound = errors.New("no data found")

// BuildRegistry constructs a fresh per-request registry: the static
// built-in table gated by the tenant's plan, plus the tenant's own
// registered tools dispatched through the remote delegate.
func BuildRegistry(tenant *model.Tenant, b Builtins, delegate *RemoteDelegate, log *logger.Logger) *Registry {
	r := NewRegistry(log)

	r.RegisterBuiltin(llm.ToolSpec{
		Name:        intent.ToolMarketQuote,
		Description: "查詢台股即時股價。輸入四位數股票代號。",
		Parameters: json.RawMessage(`{"type":"object","properties":{
			"symbol":{"type":"string","description":"四位數股票代號，例如 2330"}
		},"required":["symbol"]}`),
	}, providerExecutor(b.Market))

	if tenant.Plan != model.PlanFree {
		r.RegisterBuiltin(llm.ToolSpec{
			Name:        intent.ToolWeather,
			Description: "查詢台灣各縣市天氣預報。",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"region":{"type":"string","description":"縣市名稱，例如 臺北市"}
			},"required":["region"]}`),
		}, providerExecutor(b.Weather))
	}

	if tenant.Plan == model.PlanPro {
		r.RegisterBuiltin(llm.ToolSpec{
			Name:        intent.ToolExchangeRate,
			Description: "查詢匯率並換算金額。",
			Parameters: json.RawMessage(`{"type":"object","properties":{
				"base":{"type":"string","description":"基準幣別，例如 USD"},
				"quote":{"type":"string","description":"目標幣別，例如 TWD"},
				"amount":{"type":"string","description":"要換算的金額，可省略"}
			},"required":["base","quote"]}`),
		}, providerExecutor(b.Forex))

		for _, binding := range tenant.Tools {
			r.RegisterTenant(binding, delegate)
		}
	}

	return r
}

// providerExecutor adapts a fact provider to the Executor contract. The
// model's JSON arguments are decoded into the provider's string args.
func providerExecutor(p facts.Provider) Executor {
	return func(ctx context.Context, raw json.RawMessage) (string, error) {
		args := map[string]string{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", err
			}
		}
		fact, err := p.Fetch(ctx, args)
		if err != nil {
			return "", err
		}
		if fact == nil {
			return "", ErrNotFound
		}
		return fact.Summary, nil
	}
}
