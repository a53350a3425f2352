// Package finnhub wraps the finnhub.io REST API for US symbols: realtime
// quotes, daily candles and company news. Every call carries the account
// token as a query parameter.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

const baseURL = "https://finnhub.io/api/v1"

// Finnhub implements the finnhub.io adapter for US symbols.
type Finnhub struct {
	client  *http.Client
	limiter *rate.Limiter
	token   string
}

// New creates a finnhub adapter. The free tier allows 60 calls per minute.
func New(cfg provider.Config) *Finnhub {
	return &Finnhub{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: provider.NewLimiter(cfg, 1, 2),
		token:   cfg.APIKey,
	}
}

func (f *Finnhub) ID() string {
	return "finnhub"
}

func (f *Finnhub) Markets() []core.Market {
	return []core.Market{core.MarketUS}
}

func (f *Finnhub) Capabilities() []core.DataKind {
	return []core.DataKind{core.KindDaily, core.KindRealtime, core.KindFinancials, core.KindNews}
}

// RealtimeQuote fetches the /quote snapshot. A zero current price with a
// zero timestamp is finnhub's answer for unknown symbols.
func (f *Finnhub) RealtimeQuote(ctx context.Context, symbol string) (*provider.RawPayload, error) {
	var q quoteResponse
	if err := f.getJSON(ctx, "/quote", url.Values{"symbol": {symbol}}, &q); err != nil {
		return nil, err
	}
	if q.Current == 0 && q.Time == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("finnhub: no quote for %s", symbol))
	}

	row := provider.Row{
		"c":  formatFloat(q.Current),
		"o":  formatFloat(q.Open),
		"h":  formatFloat(q.High),
		"l":  formatFloat(q.Low),
		"pc": formatFloat(q.PrevClose),
		"d":  formatFloat(q.Change),
		"dp": formatFloat(q.ChangePct),
		"t":  strconv.FormatInt(q.Time, 10),
	}
	return &provider.RawPayload{Provider: f.ID(), Kind: core.KindRealtime, Rows: []provider.Row{row}}, nil
}

// DailyQuotes fetches /stock/candle with daily resolution.
func (f *Finnhub) DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*provider.RawPayload, error) {
	params := url.Values{
		"symbol":     {symbol},
		"resolution": {"D"},
		"from":       {strconv.FormatInt(start.Unix(), 10)},
		"to":         {strconv.FormatInt(end.Unix(), 10)},
	}
	var c candleResponse
	if err := f.getJSON(ctx, "/stock/candle", params, &c); err != nil {
		return nil, err
	}

	rows, err := candleRows(&c, symbol)
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: f.ID(), Kind: core.KindDaily, Rows: rows}, nil
}

// candleRows zips the parallel candle arrays. The s field distinguishes a
// successful answer from "no_data", which is an authoritative miss.
func candleRows(c *candleResponse, symbol string) ([]provider.Row, error) {
	switch c.Status {
	case "ok":
	case "no_data":
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("finnhub: no candles for %s", symbol))
	default:
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("finnhub: candle status %q", c.Status))
	}

	rows := make([]provider.Row, 0, len(c.Time))
	for i, ts := range c.Time {
		if i >= len(c.Close) {
			break
		}
		row := provider.Row{
			"t": strconv.FormatInt(ts, 10),
			"c": formatFloat(c.Close[i]),
		}
		if i < len(c.Open) {
			row["o"] = formatFloat(c.Open[i])
		}
		if i < len(c.High) {
			row["h"] = formatFloat(c.High[i])
		}
		if i < len(c.Low) {
			row["l"] = formatFloat(c.Low[i])
		}
		if i < len(c.Volume) {
			row["v"] = strconv.FormatInt(c.Volume[i], 10)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// News fetches /company-news between since and now.
func (f *Finnhub) News(ctx context.Context, symbol string, since time.Time) (*provider.RawPayload, error) {
	params := url.Values{
		"symbol": {symbol},
		"from":   {since.UTC().Format("2006-01-02")},
		"to":     {time.Now().UTC().Format("2006-01-02")},
	}
	var items []newsItem
	if err := f.getJSON(ctx, "/company-news", params, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("finnhub: no news for %s", symbol))
	}

	rows := make([]provider.Row, 0, len(items))
	for _, item := range items {
		if item.Headline == "" {
			continue
		}
		rows = append(rows, provider.Row{
			"headline": item.Headline,
			"summary":  item.Summary,
			"url":      item.URL,
			"source":   item.Source,
			"datetime": strconv.FormatInt(item.Datetime, 10),
		})
	}
	return &provider.RawPayload{Provider: f.ID(), Kind: core.KindNews, Rows: rows}, nil
}

func (f *Finnhub) getJSON(ctx context.Context, path string, params url.Values, out any) error {
	if err := provider.WaitLimiter(ctx, f.limiter); err != nil {
		return err
	}

	params.Set("token", f.token)
	u := baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return core.WrapError(core.ErrProviderUnavailable, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("finnhub: %w", err))
	}
	defer resp.Body.Close()

	// 429 means the minute budget is spent; surface as unavailable so the
	// chain moves on instead of waiting out the window.
	if resp.StatusCode != http.StatusOK {
		return provider.HTTPError(f.ID(), resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("finnhub: decoding response: %w", err))
	}
	return nil
}

func (f *Finnhub) MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(f.ID(), core.KindMinute)
}

// Financials fetches /stock/financials-reported as-filed statements and
// flattens each filing's income statement into one row keyed by XBRL
// concept name.
func (f *Finnhub) Financials(ctx context.Context, symbol string, reportType core.ReportType) (*provider.RawPayload, error) {
	freq := "annual"
	if reportType == core.ReportQuarterly {
		freq = "quarterly"
	}
	var r financialsResponse
	if err := f.getJSON(ctx, "/stock/financials-reported", url.Values{"symbol": {symbol}, "freq": {freq}}, &r); err != nil {
		return nil, err
	}

	rows := financialRows(&r)
	if len(rows) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("finnhub: no %s filings for %s", freq, symbol))
	}
	return &provider.RawPayload{Provider: f.ID(), Kind: core.KindFinancials, Rows: rows}, nil
}

// financialRows builds one row per filing. Filing end dates come back as
// "2006-01-02 15:04:05"; only the date part identifies the period.
func financialRows(r *financialsResponse) []provider.Row {
	rows := make([]provider.Row, 0, len(r.Data))
	for _, filing := range r.Data {
		endDate := filing.EndDate
		if len(endDate) > 10 {
			endDate = endDate[:10]
		}
		if endDate == "" {
			continue
		}
		row := provider.Row{"end_date": endDate}
		for _, item := range filing.Report.IncomeStatement {
			if item.Concept == "" {
				continue
			}
			row[item.Concept] = formatFloat(item.Value)
		}
		if len(row) > 1 {
			rows = append(rows, row)
		}
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Response types
type quoteResponse struct {
	Current   float64 `json:"c"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	PrevClose float64 `json:"pc"`
	Change    float64 `json:"d"`
	ChangePct float64 `json:"dp"`
	Time      int64   `json:"t"`
}

type candleResponse struct {
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Close  []float64 `json:"c"`
	Volume []int64   `json:"v"`
	Time   []int64   `json:"t"`
	Status string    `json:"s"`
}

type financialsResponse struct {
	Data []filing `json:"data"`
}

type filing struct {
	Year    int        `json:"year"`
	Quarter int        `json:"quarter"`
	EndDate string     `json:"endDate"`
	Report  reportBody `json:"report"`
}

type reportBody struct {
	IncomeStatement []reportItem `json:"ic"`
}

type reportItem struct {
	Concept string  `json:"concept"`
	Unit    string  `json:"unit"`
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
}

type newsItem struct {
	Headline string `json:"headline"`
	Summary  string `json:"summary"`
	URL      string `json:"url"`
	Source   string `json:"source"`
	Datetime int64  `json:"datetime"`
}
