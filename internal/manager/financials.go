package manager

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wyhe/prism/internal/cache"
	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

// Financials returns financial statements of the requested cadence. Filings
// move slowly, so cached statements stay usable for weeks.
func (m *Manager) Financials(ctx context.Context, rawSymbol string, hint core.Market, reportType core.ReportType) (*FinancialResult, error) {
	market, symbol, err := m.router.Resolve(rawSymbol, hint)
	if err != nil {
		return nil, err
	}

	entry, ok, err := m.store.Financials(ctx, symbol, reportType)
	if err != nil {
		m.logger.Warn("cache read failed", zap.String("symbol", symbol), zap.Error(err))
	} else if ok && m.now().Sub(entry.FetchedAt) < cache.TTLFinancials {
		m.countCache(core.KindFinancials, true)
		return &FinancialResult{
			Symbol: symbol, Market: market,
			Records: entry.Records, Empty: len(entry.Records) == 0,
		}, nil
	}
	m.countCache(core.KindFinancials, false)

	key := fmt.Sprintf("%s|%s|%s", symbol, core.KindFinancials, reportType)
	ch := m.flight.DoChan(key, func() (any, error) {
		return m.fetchFinancials(context.WithoutCancel(ctx), market, symbol, reportType)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			m.countDedup()
		}
		return res.Val.(*FinancialResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) fetchFinancials(ctx context.Context, market core.Market, symbol string, reportType core.ReportType) (*FinancialResult, error) {
	result := &FinancialResult{Symbol: symbol, Market: market}
	log := m.flightLogger()

	for _, desc := range m.router.Chain(market, core.KindFinancials) {
		adapter, ok := m.registry.Get(desc.ID)
		if !ok {
			continue
		}

		payload, err := m.callAdapter(ctx, adapter, core.KindFinancials, func(actx context.Context) (*provider.RawPayload, error) {
			return adapter.Financials(actx, symbol, reportType)
		})
		if err != nil {
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, core.KindFinancials, err))
			continue
		}

		records, err := m.norm.Financials(payload, market, symbol, m.now())
		if err != nil {
			log.Error("normalization failed",
				zap.String("provider", desc.ID),
				zap.String("symbol", symbol),
				zap.Error(err))
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, core.KindFinancials, err))
			continue
		}

		// Providers that only serve mixed-cadence statements still answer
		// the narrower question.
		records = filterReports(records, reportType)
		if len(records) == 0 {
			err := core.WrapError(core.ErrProviderEmpty,
				fmt.Errorf("%s: no %s statements for %s", desc.ID, reportType, symbol))
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, core.KindFinancials, err))
			continue
		}

		m.storeFinancials(ctx, symbol, reportType, records)
		result.Records = records
		return result, nil
	}

	out, err := m.concludeFinancialChain(result, symbol)
	if err == nil && out.Empty {
		m.storeFinancials(ctx, symbol, reportType, nil)
	}
	return out, err
}

func (m *Manager) concludeFinancialChain(result *FinancialResult, symbol string) (*FinancialResult, error) {
	if len(result.Attempts) == 0 {
		return nil, core.WrapError(core.ErrFetchExhausted,
			fmt.Errorf("no providers configured for %s/%s", symbol, core.KindFinancials))
	}
	for _, a := range result.Attempts {
		if a.Code != core.ErrProviderEmpty.Code {
			return nil, &core.FetchFailure{Symbol: symbol, Kind: core.KindFinancials, Attempts: result.Attempts}
		}
	}
	result.Empty = true
	return result, nil
}

func (m *Manager) storeFinancials(ctx context.Context, symbol string, reportType core.ReportType, records []core.FinancialRecord) {
	entry := cache.FinancialEntry{Records: records, FetchedAt: m.now()}
	if err := m.store.UpsertFinancials(ctx, symbol, reportType, entry); err != nil {
		m.logger.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

func filterReports(records []core.FinancialRecord, reportType core.ReportType) []core.FinancialRecord {
	out := records[:0:0]
	for _, rec := range records {
		if rec.ReportType == reportType {
			out = append(out, rec)
		}
	}
	return out
}

// News returns news items for the symbol published at or after since.
func (m *Manager) News(ctx context.Context, rawSymbol string, hint core.Market, since time.Time) (*NewsResult, error) {
	market, symbol, err := m.router.Resolve(rawSymbol, hint)
	if err != nil {
		return nil, err
	}

	entry, ok, err := m.store.News(ctx, symbol)
	if err != nil {
		m.logger.Warn("cache read failed", zap.String("symbol", symbol), zap.Error(err))
	} else if ok && !entry.Since.After(since) && m.now().Sub(entry.FetchedAt) < cache.TTLNews {
		m.countCache(core.KindNews, true)
		records := sinceFilter(entry.Records, since)
		return &NewsResult{Symbol: symbol, Market: market, Records: records, Empty: len(records) == 0}, nil
	}
	m.countCache(core.KindNews, false)

	key := fmt.Sprintf("%s|%s|%d", symbol, core.KindNews, since.Unix())
	ch := m.flight.DoChan(key, func() (any, error) {
		return m.fetchNews(context.WithoutCancel(ctx), market, symbol, since)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			m.countDedup()
		}
		return res.Val.(*NewsResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) fetchNews(ctx context.Context, market core.Market, symbol string, since time.Time) (*NewsResult, error) {
	result := &NewsResult{Symbol: symbol, Market: market}
	log := m.flightLogger()

	for _, desc := range m.router.Chain(market, core.KindNews) {
		adapter, ok := m.registry.Get(desc.ID)
		if !ok {
			continue
		}

		payload, err := m.callAdapter(ctx, adapter, core.KindNews, func(actx context.Context) (*provider.RawPayload, error) {
			return adapter.News(actx, symbol, since)
		})
		if err != nil {
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, core.KindNews, err))
			continue
		}

		records, err := m.norm.News(payload, market, symbol, m.now())
		if err != nil {
			log.Error("normalization failed",
				zap.String("provider", desc.ID),
				zap.String("symbol", symbol),
				zap.Error(err))
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, core.KindNews, err))
			continue
		}

		records = sinceFilter(records, since)
		if len(records) == 0 {
			err := core.WrapError(core.ErrProviderEmpty,
				fmt.Errorf("%s: no news for %s in window", desc.ID, symbol))
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, core.KindNews, err))
			continue
		}

		entry := cache.NewsEntry{Since: since, Records: records, FetchedAt: m.now()}
		if err := m.store.UpsertNews(ctx, symbol, entry); err != nil {
			m.logger.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
		}
		result.Records = records
		return result, nil
	}

	if len(result.Attempts) == 0 {
		return nil, core.WrapError(core.ErrFetchExhausted,
			fmt.Errorf("no providers configured for %s/%s", symbol, core.KindNews))
	}
	for _, a := range result.Attempts {
		if a.Code != core.ErrProviderEmpty.Code {
			return nil, &core.FetchFailure{Symbol: symbol, Kind: core.KindNews, Attempts: result.Attempts}
		}
	}
	result.Empty = true
	entry := cache.NewsEntry{Since: since, FetchedAt: m.now()}
	if err := m.store.UpsertNews(ctx, symbol, entry); err != nil {
		m.logger.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
	return result, nil
}

func sinceFilter(records []core.NewsRecord, since time.Time) []core.NewsRecord {
	out := records[:0:0]
	for _, rec := range records {
		if !rec.PublishedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out
}
