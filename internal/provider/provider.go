// Package provider defines the uniform capability interface every external
// data source integration implements. Adapters own provider-specific
// authentication, request shaping and raw-response parsing; they never
// normalize data. The raw payload keeps the provider's own field names and
// textual values so the schema normalizer stays the single place where
// renaming, unit conversion and timezone handling happen.
package provider

import (
	"context"
	"time"

	"github.com/wyhe/prism/internal/core"
)

// Row is one raw record keyed by provider-native field names. Values stay
// textual; numeric parsing is the normalizer's job.
type Row map[string]string

// RawPayload is an adapter's untouched response for one request.
type RawPayload struct {
	Provider string
	Kind     core.DataKind
	Rows     []Row
}

// Empty reports whether the payload carries no rows.
func (p *RawPayload) Empty() bool {
	return p == nil || len(p.Rows) == 0
}

// Descriptor is the static configuration describing one adapter's place in
// the routing tables. It is built once at process start and never mutated.
type Descriptor struct {
	ID           string
	Markets      []core.Market
	Capabilities []core.DataKind
	// Priority is the rank within a market's fallback chain; lower wins.
	Priority int
}

// Supports reports whether the descriptor covers the market/capability pair.
func (d Descriptor) Supports(m core.Market, kind core.DataKind) bool {
	var market, capa bool
	for _, dm := range d.Markets {
		if dm == m {
			market = true
			break
		}
	}
	for _, c := range d.Capabilities {
		if c == kind {
			capa = true
			break
		}
	}
	return market && capa
}

// Adapter wraps exactly one external data provider. Every method either
// returns a payload or one of the two provider error kinds:
// core.ErrProviderUnavailable (network, auth, throttling — the caller falls
// through to the next adapter) or core.ErrProviderEmpty (valid call,
// authoritative "no data for this request").
//
// Adapters enforce their own outbound rate limit; one that detects it is
// throttled returns unavailable instead of blocking.
type Adapter interface {
	ID() string
	Markets() []core.Market
	Capabilities() []core.DataKind

	DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*RawPayload, error)
	MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*RawPayload, error)
	RealtimeQuote(ctx context.Context, symbol string) (*RawPayload, error)
	Financials(ctx context.Context, symbol string, reportType core.ReportType) (*RawPayload, error)
	News(ctx context.Context, symbol string, since time.Time) (*RawPayload, error)
}

// Describe builds the routing descriptor for an adapter at a given priority.
func Describe(a Adapter, priority int) Descriptor {
	return Descriptor{
		ID:           a.ID(),
		Markets:      a.Markets(),
		Capabilities: a.Capabilities(),
		Priority:     priority,
	}
}
