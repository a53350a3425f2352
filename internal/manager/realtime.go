package manager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wyhe/prism/internal/cache"
	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

// Realtime returns the latest quote snapshot for the symbol. A snapshot
// fetched within the realtime window is served from cache; past it, the
// provider chain runs again.
func (m *Manager) Realtime(ctx context.Context, rawSymbol string, hint core.Market) (*QuoteResult, error) {
	market, symbol, err := m.router.Resolve(rawSymbol, hint)
	if err != nil {
		return nil, err
	}

	cached, ok, err := m.store.Realtime(ctx, symbol)
	if err != nil {
		m.logger.Warn("cache read failed", zap.String("symbol", symbol), zap.Error(err))
	} else if ok && cache.Fresh(cache.ClassRealtime, cached.FetchedAt, m.now()) {
		m.countCache(core.KindRealtime, true)
		return &QuoteResult{Symbol: symbol, Market: market, Records: []core.QuoteRecord{*cached}}, nil
	}
	m.countCache(core.KindRealtime, false)

	key := fmt.Sprintf("%s|%s", symbol, core.KindRealtime)
	ch := m.flight.DoChan(key, func() (any, error) {
		return m.fetchRealtime(context.WithoutCancel(ctx), market, symbol)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			m.countDedup()
		}
		return res.Val.(*QuoteResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) fetchRealtime(ctx context.Context, market core.Market, symbol string) (*QuoteResult, error) {
	result := &QuoteResult{Symbol: symbol, Market: market}
	log := m.flightLogger()

	for _, desc := range m.router.Chain(market, core.KindRealtime) {
		adapter, ok := m.registry.Get(desc.ID)
		if !ok {
			continue
		}

		payload, err := m.callAdapter(ctx, adapter, core.KindRealtime, func(actx context.Context) (*provider.RawPayload, error) {
			return adapter.RealtimeQuote(actx, symbol)
		})
		if err != nil {
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, core.KindRealtime, err))
			continue
		}

		records, err := m.norm.Quotes(payload, market, symbol, "realtime", m.now())
		if err != nil || len(records) == 0 {
			if err == nil {
				err = core.WrapError(core.ErrNormalizeFailed,
					fmt.Errorf("%s: snapshot produced no record", desc.ID))
			}
			log.Error("normalization failed",
				zap.String("provider", desc.ID),
				zap.String("symbol", symbol),
				zap.Error(err))
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, core.KindRealtime, err))
			continue
		}

		rec := records[len(records)-1]
		if err := m.store.UpsertRealtime(ctx, symbol, rec); err != nil {
			m.logger.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
		result.Records = []core.QuoteRecord{rec}
		return result, nil
	}

	return m.concludeChain(result, symbol, core.KindRealtime, nil)
}
