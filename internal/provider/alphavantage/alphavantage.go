// Package alphavantage wraps the Alpha Vantage REST API for US symbols:
// daily history and income statements. The free tier throttles hard, and a
// throttled call still answers 200 with a "Note" or "Information" body, so
// the envelope is checked before any data parsing.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

const baseURL = "https://www.alphavantage.co/query"

// AlphaVantage implements the Alpha Vantage adapter for US symbols.
type AlphaVantage struct {
	client  *http.Client
	limiter *rate.Limiter
	apiKey  string
}

// New creates an Alpha Vantage adapter. The free tier allows 25 calls per
// day, so the default budget is deliberately tiny.
func New(cfg provider.Config) *AlphaVantage {
	return &AlphaVantage{
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: provider.NewLimiter(cfg, 0.2, 1),
		apiKey:  cfg.APIKey,
	}
}

func (a *AlphaVantage) ID() string {
	return "alphavantage"
}

func (a *AlphaVantage) Markets() []core.Market {
	return []core.Market{core.MarketUS}
}

func (a *AlphaVantage) Capabilities() []core.DataKind {
	return []core.DataKind{core.KindDaily, core.KindFinancials}
}

// DailyQuotes fetches the TIME_SERIES_DAILY map and keeps the requested
// date window.
func (a *AlphaVantage) DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*provider.RawPayload, error) {
	body, err := a.get(ctx, url.Values{
		"function":   {"TIME_SERIES_DAILY"},
		"symbol":     {symbol},
		"outputsize": {"full"},
	})
	if err != nil {
		return nil, err
	}

	rows, err := parseDaily(body, start, end)
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: a.ID(), Kind: core.KindDaily, Rows: rows}, nil
}

// parseDaily reads the "Time Series (Daily)" map keyed by date. The per-day
// objects keep Alpha Vantage's numbered field names ("1. open", ...).
func parseDaily(body []byte, start, end time.Time) ([]provider.Row, error) {
	if err := checkEnvelope(body); err != nil {
		return nil, err
	}

	var result struct {
		Series map[string]map[string]string `json:"Time Series (Daily)"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("alphavantage: decoding series: %w", err))
	}
	if len(result.Series) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("alphavantage: empty daily series"))
	}

	dates := make([]string, 0, len(result.Series))
	for date := range result.Series {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	rows := make([]provider.Row, 0, len(dates))
	for _, date := range dates {
		day, err := time.ParseInLocation("2006-01-02", date, core.CST)
		if err != nil || day.Before(start) || day.After(end) {
			continue
		}
		row := provider.Row{"date": date}
		for field, value := range result.Series[date] {
			row[field] = value
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("alphavantage: no bars in range"))
	}
	return rows, nil
}

// Financials fetches INCOME_STATEMENT reports of the requested cadence.
func (a *AlphaVantage) Financials(ctx context.Context, symbol string, reportType core.ReportType) (*provider.RawPayload, error) {
	body, err := a.get(ctx, url.Values{
		"function": {"INCOME_STATEMENT"},
		"symbol":   {symbol},
	})
	if err != nil {
		return nil, err
	}

	rows, err := parseIncome(body, reportType)
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: a.ID(), Kind: core.KindFinancials, Rows: rows}, nil
}

func parseIncome(body []byte, reportType core.ReportType) ([]provider.Row, error) {
	if err := checkEnvelope(body); err != nil {
		return nil, err
	}

	var result struct {
		Annual    []map[string]string `json:"annualReports"`
		Quarterly []map[string]string `json:"quarterlyReports"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("alphavantage: decoding statements: %w", err))
	}

	reports := result.Annual
	if reportType == core.ReportQuarterly {
		reports = result.Quarterly
	}
	if len(reports) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("alphavantage: no %s reports", reportType))
	}

	rows := make([]provider.Row, 0, len(reports))
	for _, report := range reports {
		row := make(provider.Row, len(report))
		for field, value := range report {
			if value == "" || value == "None" {
				continue
			}
			row[field] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// checkEnvelope rejects the throttle and error bodies the API returns with
// status 200.
func checkEnvelope(body []byte) error {
	var envelope struct {
		Note        string `json:"Note"`
		Information string `json:"Information"`
		Error       string `json:"Error Message"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("alphavantage: decoding envelope: %w", err))
	}
	switch {
	case envelope.Note != "":
		return core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("alphavantage: throttled: %s", envelope.Note))
	case envelope.Information != "":
		return core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("alphavantage: %s", envelope.Information))
	case envelope.Error != "":
		return core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("alphavantage: %s", envelope.Error))
	}
	return nil
}

func (a *AlphaVantage) get(ctx context.Context, params url.Values) ([]byte, error) {
	if err := provider.WaitLimiter(ctx, a.limiter); err != nil {
		return nil, err
	}

	params.Set("apikey", a.apiKey)
	u := baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("alphavantage: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.HTTPError(a.ID(), resp.StatusCode)
	}

	var buf []byte
	buf, err = readAll(resp)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("alphavantage: %w", err))
	}
	return buf, nil
}

func readAll(resp *http.Response) ([]byte, error) {
	const maxBody = 16 << 20
	return io.ReadAll(io.LimitReader(resp.Body, maxBody))
}

func (a *AlphaVantage) MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(a.ID(), core.KindMinute)
}

func (a *AlphaVantage) RealtimeQuote(ctx context.Context, symbol string) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(a.ID(), core.KindRealtime)
}

func (a *AlphaVantage) News(ctx context.Context, symbol string, since time.Time) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(a.ID(), core.KindNews)
}
