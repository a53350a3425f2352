// Package tushare wraps the tushare.pro HTTP API for A-share daily quotes
// and financial statements. Every call is a POST with the api name, token
// and params; responses come back as a column-name list plus row tuples
// which get zipped into raw rows.
package tushare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

const apiURL = "https://api.tushare.pro"

// Tushare implements the tushare.pro adapter for A-shares.
type Tushare struct {
	client  *http.Client
	limiter *rate.Limiter
	token   string
}

// New creates a tushare adapter from per-provider config. The free tier
// allows roughly 120 calls per minute, so the default budget stays under 2/s.
func New(cfg provider.Config) *Tushare {
	return &Tushare{
		client:  &http.Client{Timeout: 15 * time.Second},
		limiter: provider.NewLimiter(cfg, 2, 2),
		token:   cfg.APIKey,
	}
}

func (t *Tushare) ID() string {
	return "tushare"
}

func (t *Tushare) Markets() []core.Market {
	return []core.Market{core.MarketA}
}

func (t *Tushare) Capabilities() []core.DataKind {
	return []core.DataKind{core.KindDaily, core.KindFinancials}
}

// DailyQuotes fetches daily bars via the "daily" api.
func (t *Tushare) DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*provider.RawPayload, error) {
	rows, err := t.call(ctx, "daily", map[string]string{
		"ts_code":    symbol,
		"start_date": start.In(core.CST).Format("20060102"),
		"end_date":   end.In(core.CST).Format("20060102"),
	})
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: t.ID(), Kind: core.KindDaily, Rows: rows}, nil
}

func (t *Tushare) MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(t.ID(), core.KindMinute)
}

func (t *Tushare) RealtimeQuote(ctx context.Context, symbol string) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(t.ID(), core.KindRealtime)
}

// Financials fetches income statement rows and financial indicator rows and
// merges them by reporting period, so one raw row carries both the absolute
// figures and the ratios.
func (t *Tushare) Financials(ctx context.Context, symbol string, reportType core.ReportType) (*provider.RawPayload, error) {
	params := map[string]string{"ts_code": symbol}

	income, err := t.call(ctx, "income", params)
	if err != nil {
		return nil, err
	}
	indicators, err := t.call(ctx, "fina_indicator", params)
	if err != nil {
		return nil, err
	}

	rows := mergeByPeriod(income, indicators)
	if len(rows) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("tushare: no financials for %s", symbol))
	}
	return &provider.RawPayload{Provider: t.ID(), Kind: core.KindFinancials, Rows: rows}, nil
}

func (t *Tushare) News(ctx context.Context, symbol string, since time.Time) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(t.ID(), core.KindNews)
}

// call runs one tushare api and zips the columnar response into rows.
func (t *Tushare) call(ctx context.Context, apiName string, params map[string]string) ([]provider.Row, error) {
	if err := provider.WaitLimiter(ctx, t.limiter); err != nil {
		return nil, err
	}

	body, err := json.Marshal(apiRequest{
		APIName: apiName,
		Token:   t.token,
		Params:  params,
	})
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("tushare %s: %w", apiName, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.HTTPError(t.ID(), resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var result apiResponse
	if err := dec.Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("tushare %s: decoding response: %w", apiName, err))
	}

	return parseResponse(apiName, &result)
}

// parseResponse validates the envelope and zips fields with item tuples.
func parseResponse(apiName string, result *apiResponse) ([]provider.Row, error) {
	if result.Code != 0 {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("tushare %s: code %d: %s", apiName, result.Code, result.Msg))
	}
	if result.Data == nil || len(result.Data.Items) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("tushare %s: empty result", apiName))
	}

	rows := make([]provider.Row, 0, len(result.Data.Items))
	for _, item := range result.Data.Items {
		row := make(provider.Row, len(result.Data.Fields))
		for i, field := range result.Data.Fields {
			if i >= len(item) {
				break
			}
			if s := stringify(item[i]); s != "" {
				row[field] = s
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// mergeByPeriod joins two row sets on end_date, the indicator columns
// layered over the income columns.
func mergeByPeriod(income, indicators []provider.Row) []provider.Row {
	byPeriod := make(map[string]provider.Row, len(income))
	order := make([]string, 0, len(income))
	for _, row := range income {
		period := row["end_date"]
		if period == "" {
			continue
		}
		if _, seen := byPeriod[period]; !seen {
			order = append(order, period)
			byPeriod[period] = row
		}
	}
	for _, row := range indicators {
		period := row["end_date"]
		base, ok := byPeriod[period]
		if !ok {
			continue
		}
		for k, v := range row {
			if _, exists := base[k]; !exists {
				base[k] = v
			}
		}
	}

	merged := make([]provider.Row, 0, len(order))
	for _, period := range order {
		merged = append(merged, byPeriod[period])
	}
	return merged
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}

// Request and response types
type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params"`
	Fields  string            `json:"fields"`
}

type apiResponse struct {
	Code int      `json:"code"`
	Msg  string   `json:"msg"`
	Data *apiData `json:"data"`
}

type apiData struct {
	Fields []string `json:"fields"`
	Items  [][]any  `json:"items"`
}
