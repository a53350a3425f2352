// Package router resolves a raw ticker code into its market and canonical
// symbol, and owns the static priority-ordered fallback chains that decide
// which adapters may serve a market/capability pair. Chains are built once
// at process start and never re-derived per call.
package router

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
	"github.com/wyhe/prism/internal/symbol"
)

var kinds = []core.DataKind{
	core.KindDaily, core.KindMinute, core.KindRealtime, core.KindFinancials, core.KindNews,
}

var markets = []core.Market{core.MarketA, core.MarketHK, core.MarketUS}

// Router holds the per-market, per-capability adapter ordering.
type Router struct {
	chains map[core.Market]map[core.DataKind][]provider.Descriptor
	logger *zap.Logger
}

// New builds the routing tables from the configured descriptors.
func New(descriptors []provider.Descriptor, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	chains := make(map[core.Market]map[core.DataKind][]provider.Descriptor, len(markets))
	for _, m := range markets {
		chains[m] = make(map[core.DataKind][]provider.Descriptor, len(kinds))
		for _, k := range kinds {
			var chain []provider.Descriptor
			for _, d := range descriptors {
				if d.Supports(m, k) {
					chain = append(chain, d)
				}
			}
			sort.SliceStable(chain, func(i, j int) bool { return chain[i].Priority < chain[j].Priority })
			chains[m][k] = chain
		}
	}

	r := &Router{chains: chains, logger: logger}
	for _, m := range markets {
		for _, k := range kinds {
			if ids := r.ChainIDs(m, k); len(ids) > 0 {
				logger.Debug("provider chain",
					zap.String("market", string(m)),
					zap.String("kind", string(k)),
					zap.Strings("chain", ids))
			}
		}
	}
	return r
}

// Resolve determines the market and canonical symbol for a raw code. A
// non-empty hint bypasses market inference. Failure is fatal for the
// request: no fallback applies to unresolvable input.
func (r *Router) Resolve(raw string, hint core.Market) (core.Market, string, error) {
	market := hint
	if market == core.MarketUnknown {
		m, err := symbol.InferMarket(raw)
		if err != nil {
			return core.MarketUnknown, "", err
		}
		market = m
	}

	canonical, err := symbol.Normalize(raw, market)
	if err != nil {
		return core.MarketUnknown, "", err
	}
	return market, canonical, nil
}

// Chain returns the ordered adapter descriptors eligible for the
// market/capability pair. The slice is shared; callers must not mutate it.
func (r *Router) Chain(m core.Market, kind core.DataKind) []provider.Descriptor {
	byKind, ok := r.chains[m]
	if !ok {
		return nil
	}
	return byKind[kind]
}

// ChainIDs returns the provider ids of a chain, for logs and diagnostics.
func (r *Router) ChainIDs(m core.Market, kind core.DataKind) []string {
	chain := r.Chain(m, kind)
	ids := make([]string, len(chain))
	for i, d := range chain {
		ids[i] = d.ID
	}
	return ids
}

// Validate checks that every market has at least one daily-quote provider.
func (r *Router) Validate() error {
	for _, m := range markets {
		if len(r.Chain(m, core.KindDaily)) == 0 {
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("no daily-quote provider configured for market %s", m))
		}
	}
	return nil
}
