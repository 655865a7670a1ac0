// Package facts provides best-effort accessors for real-time external
// data: market quotes, weather forecasts and exchange rates. Each
// provider returns a typed payload or nil when the datum does not exist;
// network failures surface as errors and are treated the same as "not
// found" by callers.
package facts

import (
	"context"
	"net/http"
	"time"
)

// Fact is a fetched real-world data snapshot, formatted for prompt
// injection.
type Fact struct {
	Kind    string    `json:"kind"`
	Summary string    `json:"summary"`
	AsOf    time.Time `json:"as_of"`
}

// Provider is a uniform external-data accessor. Fetch returns (nil, nil)
// when the lookup succeeded but found nothing.
type Provider interface {
	Fetch(ctx context.Context, args map[string]string) (*Fact, error)
}

const fetchTimeout = 5 * time.Second

// httpClient is shared across providers. Fact lookups are best-effort
// and must never stall a turn.
var httpClient = &http.Client{Timeout: fetchTimeout}
