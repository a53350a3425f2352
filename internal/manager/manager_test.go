package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wyhe/prism/internal/cache"
	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/normalize"
	"github.com/wyhe/prism/internal/provider"
	"github.com/wyhe/prism/internal/router"
)

// fakeAdapter answers every capability with one configured payload or
// error. IDs reuse real provider names so the normalizer finds mappings.
type fakeAdapter struct {
	id      string
	markets []core.Market
	caps    []core.DataKind

	mu      sync.Mutex
	calls   int
	delay   time.Duration
	payload *provider.RawPayload
	err     error
}

func (f *fakeAdapter) ID() string                    { return f.id }
func (f *fakeAdapter) Markets() []core.Market        { return f.markets }
func (f *fakeAdapter) Capabilities() []core.DataKind { return f.caps }

func (f *fakeAdapter) respond(ctx context.Context) (*provider.RawPayload, error) {
	f.mu.Lock()
	f.calls++
	delay := f.delay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, core.WrapError(core.ErrProviderUnavailable, ctx.Err())
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAdapter) DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*provider.RawPayload, error) {
	return f.respond(ctx)
}
func (f *fakeAdapter) MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*provider.RawPayload, error) {
	return f.respond(ctx)
}
func (f *fakeAdapter) RealtimeQuote(ctx context.Context, symbol string) (*provider.RawPayload, error) {
	return f.respond(ctx)
}
func (f *fakeAdapter) Financials(ctx context.Context, symbol string, rt core.ReportType) (*provider.RawPayload, error) {
	return f.respond(ctx)
}
func (f *fakeAdapter) News(ctx context.Context, symbol string, since time.Time) (*provider.RawPayload, error) {
	return f.respond(ctx)
}

func unavailable(id string) error {
	return core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("%s: connection refused", id))
}

func empty(id string) error {
	return core.WrapError(core.ErrProviderEmpty, fmt.Errorf("%s: no data", id))
}

func newTestManager(t *testing.T, adapters ...provider.Adapter) (*Manager, *cache.Memory) {
	return newTestManagerWithTimeout(t, 0, adapters...)
}

func newTestManagerWithTimeout(t *testing.T, attemptTimeout time.Duration, adapters ...provider.Adapter) (*Manager, *cache.Memory) {
	t.Helper()

	registry := provider.NewRegistry()
	descriptors := make([]provider.Descriptor, 0, len(adapters))
	for i, a := range adapters {
		require.NoError(t, registry.Register(a))
		descriptors = append(descriptors, provider.Describe(a, i))
	}

	store := cache.NewMemory()
	m, err := New(Config{
		Router:         router.New(descriptors, zap.NewNop()),
		Registry:       registry,
		Normalizer:     normalize.New(zap.NewNop()),
		Store:          store,
		AttemptTimeout: attemptTimeout,
	})
	require.NoError(t, err)
	return m, store
}

func tushareDaily() *provider.RawPayload {
	return &provider.RawPayload{
		Provider: "tushare", Kind: core.KindDaily,
		Rows: []provider.Row{
			{"trade_date": "20240102", "open": "1700.01", "high": "1715.00", "low": "1695.30",
				"close": "1710.50", "pre_close": "1698.00", "vol": "35000", "amount": "5936000"},
			{"trade_date": "20240103", "open": "1711.00", "high": "1712.88", "low": "1690.00",
				"close": "1695.22", "pre_close": "1710.50", "vol": "28000", "amount": "4771000"},
		},
	}
}

func eastmoneyDaily() *provider.RawPayload {
	return &provider.RawPayload{
		Provider: "eastmoney", Kind: core.KindDaily,
		Rows: []provider.Row{
			{"date": "2024-01-02", "open": "1700.01", "close": "1710.50", "high": "1715.00",
				"low": "1695.30", "volume": "35000", "amount": "5936000000"},
		},
	}
}

func query(symbol string) QuoteQuery {
	return QuoteQuery{
		Symbol: symbol,
		Start:  time.Date(2024, 1, 2, 0, 0, 0, 0, core.CST),
		End:    time.Date(2024, 1, 3, 0, 0, 0, 0, core.CST),
	}
}

func TestManager_DailyQuotes(t *testing.T) {
	primary := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, payload: tushareDaily(),
	}
	m, _ := newTestManager(t, primary)

	result, err := m.DailyQuotes(context.Background(), query("600519"))
	require.NoError(t, err)
	require.Len(t, result.Records, 2)

	assert.Equal(t, "600519.SH", result.Symbol)
	assert.Equal(t, core.MarketA, result.Market)
	assert.Equal(t, "1710.5", result.Records[0].Close.String())
	assert.Equal(t, int64(3_500_000), result.Records[0].Volume) // lots -> shares
	assert.Equal(t, "tushare", result.Records[0].Provider)
	assert.False(t, result.Empty)
}

func TestManager_DailyQuotes_Fallback(t *testing.T) {
	primary := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, err: unavailable("tushare"),
	}
	secondary := &fakeAdapter{
		id: "eastmoney", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, payload: eastmoneyDaily(),
	}
	m, _ := newTestManager(t, primary, secondary)

	result, err := m.DailyQuotes(context.Background(), query("600519.SH"))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	assert.Equal(t, "eastmoney", result.Records[0].Provider)
	assert.Equal(t, 1, primary.callCount())
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, "tushare", result.Attempts[0].Provider)
	assert.Equal(t, core.ErrProviderUnavailable.Code, result.Attempts[0].Code)
}

func TestManager_DailyQuotes_SlowProviderFallsThrough(t *testing.T) {
	slow := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps:  []core.DataKind{core.KindDaily},
		delay: 500 * time.Millisecond, payload: tushareDaily(),
	}
	fast := &fakeAdapter{
		id: "eastmoney", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, payload: eastmoneyDaily(),
	}
	m, _ := newTestManagerWithTimeout(t, 50*time.Millisecond, slow, fast)

	result, err := m.DailyQuotes(context.Background(), query("600519.SH"))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	// The hung call is cut off at the attempt timeout and the chain moves on.
	assert.Equal(t, "eastmoney", result.Records[0].Provider)
	assert.Equal(t, 1, slow.callCount())
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, "tushare", result.Attempts[0].Provider)
	assert.Equal(t, core.ErrProviderUnavailable.Code, result.Attempts[0].Code)
}

func TestManager_DailyQuotes_BadPayloadFallsThrough(t *testing.T) {
	mangled := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily},
		payload: &provider.RawPayload{
			Provider: "tushare", Kind: core.KindDaily,
			Rows: []provider.Row{{"trade_date": "20240102", "open": "1700.01"}}, // no close
		},
	}
	good := &fakeAdapter{
		id: "eastmoney", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, payload: eastmoneyDaily(),
	}
	m, _ := newTestManager(t, mangled, good)

	result, err := m.DailyQuotes(context.Background(), query("600519.SH"))
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	assert.Equal(t, "eastmoney", result.Records[0].Provider)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, "tushare", result.Attempts[0].Provider)
	assert.Equal(t, core.ErrNormalizeFailed.Code, result.Attempts[0].Code)
}

func TestManager_DailyQuotes_CachedRangeSkipsProviders(t *testing.T) {
	adapter := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, payload: tushareDaily(),
	}
	m, _ := newTestManager(t, adapter)

	_, err := m.DailyQuotes(context.Background(), query("600519.SH"))
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.callCount())

	// Closed historical range: second read must not touch any provider.
	result, err := m.DailyQuotes(context.Background(), query("600519.SH"))
	require.NoError(t, err)
	assert.Len(t, result.Records, 2)
	assert.Equal(t, 1, adapter.callCount())
}

func TestManager_DailyQuotes_ConcurrentRequestsCoalesce(t *testing.T) {
	adapter := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps:  []core.DataKind{core.KindDaily},
		delay: 100 * time.Millisecond, payload: tushareDaily(),
	}
	m, _ := newTestManager(t, adapter)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = m.DailyQuotes(context.Background(), query("600519.SH"))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, adapter.callCount(), "identical concurrent requests should share one fetch")
}

func TestManager_DailyQuotes_AllProvidersFail(t *testing.T) {
	a := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, err: unavailable("tushare"),
	}
	b := &fakeAdapter{
		id: "eastmoney", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, err: unavailable("eastmoney"),
	}
	m, _ := newTestManager(t, a, b)

	_, err := m.DailyQuotes(context.Background(), query("600519.SH"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrFetchExhausted))

	var failure *core.FetchFailure
	require.True(t, errors.As(err, &failure))
	require.Len(t, failure.Attempts, 2)
	assert.Equal(t, "tushare", failure.Attempts[0].Provider)
	assert.Equal(t, "eastmoney", failure.Attempts[1].Provider)
}

func TestManager_DailyQuotes_AllProvidersEmpty(t *testing.T) {
	a := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, err: empty("tushare"),
	}
	m, _ := newTestManager(t, a)

	result, err := m.DailyQuotes(context.Background(), query("600519.SH"))
	require.NoError(t, err)
	assert.True(t, result.Empty, "unanimous provider emptiness is an answer")
	assert.Empty(t, result.Records)

	// The covered-but-empty span must not trigger a re-fetch.
	_, err = m.DailyQuotes(context.Background(), query("600519.SH"))
	require.NoError(t, err)
	assert.Equal(t, 1, a.callCount())
}

func TestManager_DailyQuotes_EmptyCurrentDayExpires(t *testing.T) {
	adapter := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindDaily}, err: empty("tushare"),
	}
	m, _ := newTestManager(t, adapter)

	morning := time.Date(2024, 1, 3, 10, 0, 0, 0, core.CST)
	m.now = func() time.Time { return morning }

	ctx := context.Background()
	q := QuoteQuery{
		Symbol: "600519.SH",
		Start:  time.Date(2024, 1, 2, 0, 0, 0, 0, core.CST),
		End:    time.Date(2024, 1, 3, 0, 0, 0, 0, core.CST),
	}

	result, err := m.DailyQuotes(ctx, q)
	require.NoError(t, err)
	assert.True(t, result.Empty)
	assert.Equal(t, 1, adapter.callCount())

	// Inside the end-of-day window the empty answer is still served from
	// cache.
	result, err = m.DailyQuotes(ctx, q)
	require.NoError(t, err)
	assert.True(t, result.Empty)
	assert.Equal(t, 1, adapter.callCount())

	// The provider catches up with the day's bar. Once the window lapses
	// the empty coverage of Jan 3 must not stick.
	adapter.err = nil
	adapter.payload = &provider.RawPayload{
		Provider: "tushare", Kind: core.KindDaily,
		Rows: []provider.Row{
			{"trade_date": "20240103", "open": "1711.00", "high": "1712.88", "low": "1690.00",
				"close": "1695.22", "pre_close": "1710.50", "vol": "28000", "amount": "4771000"},
		},
	}
	evening := morning.Add(7 * time.Hour)
	m.now = func() time.Time { return evening }

	result, err = m.DailyQuotes(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.callCount(), "lapsed current-day coverage must re-fetch")
	assert.False(t, result.Empty)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "1695.22", result.Records[0].Close.String())

	// After the rollover one more fetch closes the day permanently.
	nextDay := time.Date(2024, 1, 4, 9, 0, 0, 0, core.CST)
	m.now = func() time.Time { return nextDay }

	result, err = m.DailyQuotes(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, adapter.callCount())
	require.Len(t, result.Records, 1)

	result, err = m.DailyQuotes(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, 3, adapter.callCount(), "closed history never re-fetches")
	require.Len(t, result.Records, 1)
}

func TestManager_DailyQuotes_UnresolvedMarket(t *testing.T) {
	m, _ := newTestManager(t)

	_, err := m.DailyQuotes(context.Background(), query("12345678"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMarketUnresolved))
}

func TestManager_Realtime_FreshCacheHit(t *testing.T) {
	now := time.Now().In(core.CST)
	adapter := &fakeAdapter{
		id: "sina", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindRealtime},
		payload: &provider.RawPayload{
			Provider: "sina", Kind: core.KindRealtime,
			Rows: []provider.Row{{
				"open": "1700.01", "high": "1715.00", "low": "1695.30", "price": "1710.50",
				"pre_close": "1698.00", "volume": "3500000", "amount": "5936000000",
				"date": now.Format("2006-01-02"), "time": now.Format("15:04:05"),
			}},
		},
	}
	m, _ := newTestManager(t, adapter)

	first, err := m.Realtime(context.Background(), "600519.SH", core.MarketUnknown)
	require.NoError(t, err)
	require.Len(t, first.Records, 1)
	assert.Equal(t, "1710.5", first.Records[0].Close.String())

	second, err := m.Realtime(context.Background(), "600519.SH", core.MarketUnknown)
	require.NoError(t, err)
	require.Len(t, second.Records, 1)
	assert.Equal(t, 1, adapter.callCount(), "snapshot inside the freshness window must come from cache")
}

func TestManager_Financials_FiltersReportType(t *testing.T) {
	adapter := &fakeAdapter{
		id: "tushare", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindFinancials},
		payload: &provider.RawPayload{
			Provider: "tushare", Kind: core.KindFinancials,
			Rows: []provider.Row{
				{"end_date": "20231231", "total_revenue": "150560000000", "roe": "34.19"},
				{"end_date": "20230930", "total_revenue": "102428000000", "roe": "25.10"},
			},
		},
	}
	m, _ := newTestManager(t, adapter)

	result, err := m.Financials(context.Background(), "600519.SH", core.MarketUnknown, core.ReportAnnual)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	assert.Equal(t, "20231231", result.Records[0].ReportPeriod)
	assert.Equal(t, core.ReportAnnual, result.Records[0].ReportType)
	assert.Equal(t, "150560000000", result.Records[0].Metrics["total_revenue"].String())
}

func TestManager_News_SinceWindow(t *testing.T) {
	adapter := &fakeAdapter{
		id: "eastmoney", markets: []core.Market{core.MarketA},
		caps: []core.DataKind{core.KindNews},
		payload: &provider.RawPayload{
			Provider: "eastmoney", Kind: core.KindNews,
			Rows: []provider.Row{
				{"title": "三季报点评", "digest": "盈利符合预期", "source": "eastmoney",
					"url": "https://example.com/1", "showtime": "2024-01-03 09:30:00"},
				{"title": "旧闻", "digest": "过期", "source": "eastmoney",
					"url": "https://example.com/2", "showtime": "2023-12-01 08:00:00"},
			},
		},
	}
	m, _ := newTestManager(t, adapter)

	since := time.Date(2024, 1, 1, 0, 0, 0, 0, core.CST)
	result, err := m.News(context.Background(), "600519.SH", core.MarketUnknown, since)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "三季报点评", result.Records[0].Title)
}
