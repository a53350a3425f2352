// Package yahoo wraps the Yahoo Finance chart API for US and Hong Kong
// symbols. History and realtime both come from the v8 chart endpoint; the
// realtime snapshot is read off the chart meta block.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

const baseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// Yahoo implements the Yahoo Finance adapter for US and HK.
type Yahoo struct {
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a Yahoo adapter. No API key is required.
func New(cfg provider.Config) *Yahoo {
	return &Yahoo{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: provider.NewLimiter(cfg, 5, 5),
	}
}

func (y *Yahoo) ID() string {
	return "yahoo"
}

func (y *Yahoo) Markets() []core.Market {
	return []core.Market{core.MarketUS, core.MarketHK}
}

func (y *Yahoo) Capabilities() []core.DataKind {
	return []core.DataKind{core.KindDaily, core.KindMinute, core.KindRealtime}
}

// toYahooSymbol converts a canonical symbol to Yahoo's scheme. HK symbols
// carry a four-digit code there: 00700.HK -> 0700.HK. US symbols pass
// through unchanged.
func toYahooSymbol(symbol string) string {
	if code, ok := strings.CutSuffix(symbol, ".HK"); ok {
		for len(code) > 4 && code[0] == '0' {
			code = code[1:]
		}
		return code + ".HK"
	}
	return symbol
}

// toYahooInterval maps a bar interval to the chart API parameter.
func toYahooInterval(interval string) string {
	switch interval {
	case "1m", "5m", "15m", "30m":
		return interval
	case "1h":
		return "60m"
	default:
		return "1d"
	}
}

// DailyQuotes fetches daily bars from the chart endpoint.
func (y *Yahoo) DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*provider.RawPayload, error) {
	rows, err := y.fetchChart(ctx, symbol, "1d", start, end)
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: y.ID(), Kind: core.KindDaily, Rows: rows}, nil
}

// MinuteQuotes fetches intraday bars for the given interval.
func (y *Yahoo) MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*provider.RawPayload, error) {
	rows, err := y.fetchChart(ctx, symbol, toYahooInterval(interval), start, end)
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: y.ID(), Kind: core.KindMinute, Rows: rows}, nil
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol, interval string, start, end time.Time) ([]provider.Row, error) {
	result, err := y.getChart(ctx, fmt.Sprintf("%s/%s?interval=%s&period1=%d&period2=%d",
		baseURL, toYahooSymbol(symbol), interval, start.Unix(), end.Unix()))
	if err != nil {
		return nil, err
	}

	rows := chartRows(result)
	if len(rows) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("yahoo: no bars for %s", symbol))
	}
	return rows, nil
}

// chartRows zips the parallel timestamp/quote arrays into raw rows. Bars
// with a null close (halts, pre-listing padding) are skipped.
func chartRows(r *chartResult) []provider.Row {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	rows := make([]provider.Row, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(q.Close) || q.Close[i] == nil {
			continue
		}
		row := provider.Row{
			"timestamp": strconv.FormatInt(ts, 10),
			"close":     formatFloat(*q.Close[i]),
		}
		if i < len(q.Open) && q.Open[i] != nil {
			row["open"] = formatFloat(*q.Open[i])
		}
		if i < len(q.High) && q.High[i] != nil {
			row["high"] = formatFloat(*q.High[i])
		}
		if i < len(q.Low) && q.Low[i] != nil {
			row["low"] = formatFloat(*q.Low[i])
		}
		if i < len(q.Volume) && q.Volume[i] != nil {
			row["volume"] = strconv.FormatInt(*q.Volume[i], 10)
		}
		rows = append(rows, row)
	}
	return rows
}

// RealtimeQuote reads the last traded price off the chart meta block.
func (y *Yahoo) RealtimeQuote(ctx context.Context, symbol string) (*provider.RawPayload, error) {
	result, err := y.getChart(ctx, fmt.Sprintf("%s/%s?interval=1d&range=1d",
		baseURL, toYahooSymbol(symbol)))
	if err != nil {
		return nil, err
	}

	meta := result.Meta
	if meta.RegularMarketPrice == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("yahoo: no market price for %s", symbol))
	}

	row := provider.Row{
		"price":          formatFloat(meta.RegularMarketPrice),
		"previous_close": formatFloat(meta.ChartPreviousClose),
		"volume":         strconv.FormatInt(meta.RegularMarketVolume, 10),
		"timestamp":      strconv.FormatInt(meta.RegularMarketTime, 10),
	}
	return &provider.RawPayload{Provider: y.ID(), Kind: core.KindRealtime, Rows: []provider.Row{row}}, nil
}

func (y *Yahoo) getChart(ctx context.Context, u string) (*chartResult, error) {
	if err := provider.WaitLimiter(ctx, y.limiter); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("yahoo: %w", err))
	}
	defer resp.Body.Close()

	// The chart endpoint answers unknown symbols with 404 and an error
	// block, which is an authoritative miss rather than an outage.
	if resp.StatusCode == http.StatusNotFound {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("yahoo: symbol not found"))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, provider.HTTPError(y.ID(), resp.StatusCode)
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("yahoo: decoding response: %w", err))
	}

	if result.Chart.Error != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("yahoo: %s", result.Chart.Error.Description))
	}
	if len(result.Chart.Result) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("yahoo: empty chart result"))
	}
	return &result.Chart.Result[0], nil
}

func (y *Yahoo) Financials(ctx context.Context, symbol string, reportType core.ReportType) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(y.ID(), core.KindFinancials)
}

func (y *Yahoo) News(ctx context.Context, symbol string, since time.Time) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(y.ID(), core.KindNews)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartMeta struct {
	Currency            string  `json:"currency"`
	Symbol              string  `json:"symbol"`
	RegularMarketPrice  float64 `json:"regularMarketPrice"`
	ChartPreviousClose  float64 `json:"chartPreviousClose"`
	RegularMarketVolume int64   `json:"regularMarketVolume"`
	RegularMarketTime   int64   `json:"regularMarketTime"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}
