// Package manager orchestrates the fetch pipeline: resolve the market,
// consult the cache, walk the provider fallback chain for whatever is
// missing, normalize, store and answer. Concurrent requests for the same
// symbol and range are coalesced onto one in-flight fetch.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wyhe/prism/internal/cache"
	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/metrics"
	"github.com/wyhe/prism/internal/normalize"
	"github.com/wyhe/prism/internal/provider"
	"github.com/wyhe/prism/internal/router"
)

const (
	defaultAttemptTimeout = 15 * time.Second
	defaultMaxConcurrent  = 4
)

// Archiver receives immutable daily history for cold storage. Archiving is
// best-effort and never blocks a request.
type Archiver interface {
	ArchiveQuotes(ctx context.Context, symbol, period string, recs []core.QuoteRecord) error
}

// Config wires a Manager.
type Config struct {
	Router     *router.Router
	Registry   *provider.Registry
	Normalizer *normalize.Normalizer
	Store      cache.Store

	// Optional.
	Archiver Archiver
	Metrics  *metrics.Registry
	Logger   *zap.Logger

	// AttemptTimeout bounds one adapter call; zero keeps the default.
	AttemptTimeout time.Duration
	// MaxConcurrent caps in-flight calls per provider ID; zero keeps the
	// default for providers not listed.
	MaxConcurrent map[string]int
}

// Manager is the single entry point consumers fetch market data through.
type Manager struct {
	router   *router.Router
	registry *provider.Registry
	norm     *normalize.Normalizer
	store    cache.Store
	archiver Archiver
	metrics  *metrics.Registry
	logger   *zap.Logger

	attemptTimeout time.Duration
	sems           map[string]chan struct{}
	flight         singleflight.Group

	now func() time.Time
}

// New creates a Manager from its wiring.
func New(cfg Config) (*Manager, error) {
	if cfg.Router == nil || cfg.Registry == nil || cfg.Normalizer == nil || cfg.Store == nil {
		return nil, core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("manager requires router, registry, normalizer and store"))
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}

	sems := make(map[string]chan struct{})
	for _, a := range cfg.Registry.GetAll() {
		limit := cfg.MaxConcurrent[a.ID()]
		if limit <= 0 {
			limit = defaultMaxConcurrent
		}
		sems[a.ID()] = make(chan struct{}, limit)
	}

	return &Manager{
		router:         cfg.Router,
		registry:       cfg.Registry,
		norm:           cfg.Normalizer,
		store:          cfg.Store,
		archiver:       cfg.Archiver,
		metrics:        cfg.Metrics,
		logger:         logger,
		attemptTimeout: timeout,
		sems:           sems,
		now:            time.Now,
	}, nil
}

// QuoteQuery describes one history request. Market is an optional hint that
// bypasses inference for ambiguous symbols.
type QuoteQuery struct {
	Symbol   string
	Market   core.Market
	Start    time.Time
	End      time.Time
	Interval string // minute bars only: "1m", "5m", ...
}

// QuoteResult is the answer to a quote request. Empty set with Empty=true
// means every reachable provider authoritatively reported no data, which is
// an answer, not a failure.
type QuoteResult struct {
	Symbol   string
	Market   core.Market
	Records  []core.QuoteRecord
	Empty    bool
	Attempts []core.Attempt
}

// FinancialResult is the answer to a financials request.
type FinancialResult struct {
	Symbol   string
	Market   core.Market
	Records  []core.FinancialRecord
	Empty    bool
	Attempts []core.Attempt
}

// NewsResult is the answer to a news request.
type NewsResult struct {
	Symbol   string
	Market   core.Market
	Records  []core.NewsRecord
	Empty    bool
	Attempts []core.Attempt
}

// DailyQuotes returns daily bars for the query range, cache-first with
// providers filling only the uncovered gaps.
func (m *Manager) DailyQuotes(ctx context.Context, q QuoteQuery) (*QuoteResult, error) {
	return m.rangeQuotes(ctx, q, core.KindDaily, "daily")
}

// MinuteQuotes returns intraday bars for the query range and interval.
func (m *Manager) MinuteQuotes(ctx context.Context, q QuoteQuery) (*QuoteResult, error) {
	period := q.Interval
	if period == "" {
		period = "1m"
	}
	return m.rangeQuotes(ctx, q, core.KindMinute, period)
}

func (m *Manager) rangeQuotes(ctx context.Context, q QuoteQuery, kind core.DataKind, period string) (*QuoteResult, error) {
	market, symbol, err := m.router.Resolve(q.Symbol, q.Market)
	if err != nil {
		return nil, err
	}

	span := cache.Span{Start: cache.DayStart(q.Start), End: cache.DayStart(q.End).Add(24 * time.Hour)}

	cached, gaps, err := m.store.QuoteRange(ctx, symbol, kind, period, span, m.now())
	if err != nil {
		// A broken cache degrades to a full provider fetch.
		m.logger.Warn("cache read failed", zap.String("symbol", symbol), zap.Error(err))
		cached, gaps = nil, []cache.Span{span}
	}
	// A gap can hold leftover bars whose coverage lapsed, typically today's
	// bar past its end-of-day window. The refetch replaces them.
	cached = dropInSpans(cached, gaps)

	if len(gaps) == 0 {
		m.countCache(kind, true)
		return &QuoteResult{Symbol: symbol, Market: market, Records: cached, Empty: len(cached) == 0}, nil
	}
	m.countCache(kind, false)

	result := &QuoteResult{Symbol: symbol, Market: market, Records: cached}
	allEmpty := true
	for _, gap := range gaps {
		fetched, err := m.fetchGap(ctx, market, symbol, kind, period, gap, q.Interval)
		if err != nil {
			return nil, err
		}
		result.Attempts = append(result.Attempts, fetched.Attempts...)
		if !fetched.Empty {
			allEmpty = false
		}
		result.Records = append(result.Records, fetched.Records...)
	}
	result.Empty = len(result.Records) == 0 && allEmpty

	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].Time.Before(result.Records[j].Time)
	})
	result.Records = dedupeByTime(result.Records)
	return result, nil
}

// fetchGap runs the provider chain for one uncovered sub-range, coalescing
// concurrent identical requests onto a single flight. A waiter whose
// context ends is released; the flight itself continues so its result still
// lands in the cache.
func (m *Manager) fetchGap(ctx context.Context, market core.Market, symbol string, kind core.DataKind, period string, gap cache.Span, interval string) (*QuoteResult, error) {
	key := fmt.Sprintf("%s|%s|%s|%d|%d", symbol, kind, period, gap.Start.Unix(), gap.End.Unix())

	ch := m.flight.DoChan(key, func() (any, error) {
		return m.fetchQuoteChain(context.WithoutCancel(ctx), market, symbol, kind, period, gap, interval)
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

func (m *Manager) fetchQuoteChain(ctx context.Context, market core.Market, symbol string, kind core.DataKind, period string, gap cache.Span, interval string) (*QuoteResult, error) {
	result := &QuoteResult{Symbol: symbol, Market: market}
	log := m.flightLogger()

	chain := m.router.Chain(market, kind)
	for _, desc := range chain {
		adapter, ok := m.registry.Get(desc.ID)
		if !ok {
			continue
		}

		payload, err := m.callAdapter(ctx, adapter, kind, func(actx context.Context) (*provider.RawPayload, error) {
			if kind == core.KindMinute {
				return adapter.MinuteQuotes(actx, symbol, gap.Start, gap.End.Add(-time.Nanosecond), interval)
			}
			return adapter.DailyQuotes(actx, symbol, gap.Start, gap.End.Add(-time.Nanosecond))
		})
		if err != nil {
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, kind, err))
			continue
		}

		records, err := m.norm.Quotes(payload, market, symbol, period, m.now())
		if err != nil {
			// A mangled response falls through like an outage, but gets
			// its own code so log-based alerting can tell them apart.
			log.Error("normalization failed",
				zap.String("provider", desc.ID),
				zap.String("symbol", symbol),
				zap.Error(err))
			result.Attempts = append(result.Attempts, m.attemptFor(log, desc.ID, symbol, kind, err))
			continue
		}

		m.storeQuotes(ctx, symbol, kind, period, gap, records)
		result.Records = records
		return result, nil
	}

	return m.concludeChain(result, symbol, kind, func() {
		// Authoritative absence is cacheable: covering the span with no
		// records keeps non-trading days from being re-fetched.
		m.storeQuotes(ctx, symbol, kind, period, gap, nil)
	})
}

// concludeChain decides between authoritative emptiness and hard failure
// after a chain walk produced no records.
func (m *Manager) concludeChain(result *QuoteResult, symbol string, kind core.DataKind, onEmpty func()) (*QuoteResult, error) {
	if len(result.Attempts) == 0 {
		return nil, core.WrapError(core.ErrFetchExhausted,
			fmt.Errorf("no providers configured for %s/%s", symbol, kind))
	}
	for _, a := range result.Attempts {
		if a.Code != core.ErrProviderEmpty.Code {
			return nil, &core.FetchFailure{Symbol: symbol, Kind: kind, Attempts: result.Attempts}
		}
	}
	// Every provider answered and none had data.
	result.Empty = true
	if onEmpty != nil {
		onEmpty()
	}
	return result, nil
}

// callAdapter wraps one adapter call with the per-provider concurrency cap,
// the attempt timeout and fetch metrics.
func (m *Manager) callAdapter(ctx context.Context, adapter provider.Adapter, kind core.DataKind, fn func(context.Context) (*provider.RawPayload, error)) (*provider.RawPayload, error) {
	sem := m.sems[adapter.ID()]
	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-ctx.Done():
			return nil, core.WrapError(core.ErrProviderUnavailable, ctx.Err())
		}
	}

	actx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	defer cancel()

	if m.metrics != nil {
		m.metrics.FetchInFlightInc()
		defer m.metrics.FetchInFlightDec()
	}

	start := m.now()
	payload, err := fn(actx)
	if m.metrics != nil {
		m.metrics.RecordFetch(adapter.ID(), string(kind), fetchStatus(err), time.Since(start).Seconds())
	}
	return payload, err
}

func fetchStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrProviderEmpty):
		return "empty"
	default:
		return "unavailable"
	}
}

// flightLogger tags one chain walk with a generated fetch ID so its log
// lines can be correlated across providers.
func (m *Manager) flightLogger() *zap.Logger {
	return m.logger.With(zap.String("fetch_id", uuid.NewString()))
}

// attemptFor turns an adapter or normalizer error into a chain attempt.
func (m *Manager) attemptFor(log *zap.Logger, providerID, symbol string, kind core.DataKind, err error) core.Attempt {
	code := core.ErrProviderUnavailable.Code
	var cerr *core.Error
	if errors.As(err, &cerr) {
		code = cerr.Code
	}
	if code != core.ErrProviderEmpty.Code {
		log.Warn("provider attempt failed",
			zap.String("provider", providerID),
			zap.String("symbol", symbol),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
	return core.Attempt{Provider: providerID, Code: code, Reason: err.Error()}
}

func (m *Manager) storeQuotes(ctx context.Context, symbol string, kind core.DataKind, period string, span cache.Span, records []core.QuoteRecord) {
	if err := m.store.UpsertQuotes(ctx, symbol, kind, period, span, m.now(), records); err != nil {
		m.logger.Warn("cache write failed", zap.String("symbol", symbol), zap.Error(err))
		return
	}
	if m.archiver != nil && kind == core.KindDaily && len(records) > 0 &&
		cache.ClassifySpan(span, m.now()) == cache.ClassImmutable {
		go m.archive(symbol, period, records)
	}
}

func (m *Manager) archive(symbol, period string, records []core.QuoteRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := m.archiver.ArchiveQuotes(ctx, symbol, period, records)
	if m.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		m.metrics.RecordArchiveWrite(status)
	}
	if err != nil {
		m.logger.Warn("archive write failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

func (m *Manager) countCache(kind core.DataKind, hit bool) {
	if m.metrics == nil {
		return
	}
	if hit {
		m.metrics.RecordCacheHit(string(kind))
	} else {
		m.metrics.RecordCacheMiss(string(kind))
	}
}

func (m *Manager) countDedup() {
	if m.metrics != nil {
		m.metrics.RecordDedup()
	}
}

func dropInSpans(records []core.QuoteRecord, spans []cache.Span) []core.QuoteRecord {
	out := records[:0:0]
	for _, rec := range records {
		inside := false
		for _, s := range spans {
			if s.Contains(rec.Time) {
				inside = true
				break
			}
		}
		if !inside {
			out = append(out, rec)
		}
	}
	return out
}

func dedupeByTime(records []core.QuoteRecord) []core.QuoteRecord {
	if len(records) < 2 {
		return records
	}
	out := records[:1]
	for _, rec := range records[1:] {
		if rec.Time.Equal(out[len(out)-1].Time) {
			continue
		}
		out = append(out, rec)
	}
	return out
}
