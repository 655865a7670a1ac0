package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultRegion is used when the message mentions weather without a
// recognizable region name.
const DefaultRegion = "臺北市"

// WeatherProvider looks up a short-term forecast by region name.
type WeatherProvider struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewWeatherProvider creates a forecast provider.
func NewWeatherProvider(baseURL, apiKey string) *WeatherProvider {
	return &WeatherProvider{BaseURL: baseURL, APIKey: apiKey, Client: httpClient}
}

type forecastResponse struct {
	Records struct {
		Location []struct {
			LocationName   string `json:"locationName"`
			WeatherElement []struct {
				ElementName string `json:"elementName"`
				Time        []struct {
					Parameter struct {
						ParameterName string `json:"parameterName"`
					} `json:"parameter"`
				} `json:"time"`
			} `json:"weatherElement"`
		} `json:"location"`
	} `json:"records"`
}

// Fetch retrieves the forecast for args["region"], falling back to
// DefaultRegion. Returns (nil, nil) when the region is unknown.
func (p *WeatherProvider) Fetch(ctx context.Context, args map[string]string) (*Fact, error) {
	region := args["region"]
	if region == "" {
		region = DefaultRegion
	}

	u := fmt.Sprintf("%s/api/v1/rest/datastore/F-C0032-001?Authorization=%s&locationName=%s",
		p.BaseURL, url.QueryEscape(p.APIKey), url.QueryEscape(region))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("forecast fetch: status %d", resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("forecast decode: %w", err)
	}

	if len(body.Records.Location) == 0 {
		return nil, nil
	}

	loc := body.Records.Location[0]
	parts := map[string]string{}
	for _, el := range loc.WeatherElement {
		if len(el.Time) > 0 {
			parts[el.ElementName] = el.Time[0].Parameter.ParameterName
		}
	}

	wx := parts["Wx"]
	if wx == "" {
		return nil, nil
	}

	summary := fmt.Sprintf("%s 未來天氣：%s", loc.LocationName, wx)
	if minT, maxT := parts["MinT"], parts["MaxT"]; minT != "" && maxT != "" {
		summary += fmt.Sprintf("，氣溫 %s~%s°C", minT, maxT)
	}
	if pop := parts["PoP"]; pop != "" {
		summary += fmt.Sprintf("，降雨機率 %s%%", pop)
	}

	return &Fact{Kind: "weather", Summary: summary, AsOf: time.Now()}, nil
}
