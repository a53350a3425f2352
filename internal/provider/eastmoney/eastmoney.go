// Package eastmoney wraps the Eastmoney push2 and datacenter APIs. It
// serves A-shares and Hong Kong: kline history, realtime snapshots,
// financial report summaries and stock news.
package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

const (
	quoteURL   = "https://push2.eastmoney.com/api/qt/stock/get"
	historyURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	reportURL  = "https://datacenter-web.eastmoney.com/api/data/v1/get"
	newsURL    = "https://np-listapi.eastmoney.com/comm/web/getListInfo"
)

// quoteFields are the push2 snapshot fields the realtime mapping consumes.
const quoteFields = "f43,f44,f45,f46,f47,f48,f60,f86,f169,f170"

// Eastmoney implements the Eastmoney adapter for A-shares and HK.
type Eastmoney struct {
	client  *http.Client
	limiter *rate.Limiter
}

// New creates an Eastmoney adapter. No API key is required.
func New(cfg provider.Config) *Eastmoney {
	return &Eastmoney{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: provider.NewLimiter(cfg, 10, 10),
	}
}

func (e *Eastmoney) ID() string {
	return "eastmoney"
}

func (e *Eastmoney) Markets() []core.Market {
	return []core.Market{core.MarketA, core.MarketHK}
}

func (e *Eastmoney) Capabilities() []core.DataKind {
	return []core.DataKind{
		core.KindDaily, core.KindMinute, core.KindRealtime,
		core.KindFinancials, core.KindNews,
	}
}

// toSecid converts a canonical symbol to the push2 secid scheme.
// Shanghai = 1, Shenzhen/Beijing = 0, Hong Kong = 116.
func toSecid(symbol string) (string, error) {
	parts := strings.Split(symbol, ".")
	if len(parts) != 2 {
		return "", core.WrapError(core.ErrInvalidSymbol,
			fmt.Errorf("eastmoney: unexpected symbol %q", symbol))
	}
	code, exch := parts[0], parts[1]
	switch exch {
	case "SH":
		return "1." + code, nil
	case "SZ", "BJ":
		return "0." + code, nil
	case "HK":
		return "116." + code, nil
	}
	return "", core.WrapError(core.ErrInvalidSymbol,
		fmt.Errorf("eastmoney: unexpected exchange %q", exch))
}

// toKlineType maps a bar interval to the push2 klt parameter.
func toKlineType(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	default:
		return "101" // daily
	}
}

// DailyQuotes fetches daily kline bars.
func (e *Eastmoney) DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*provider.RawPayload, error) {
	rows, err := e.fetchKlines(ctx, symbol, "101", start, end)
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: e.ID(), Kind: core.KindDaily, Rows: rows}, nil
}

// MinuteQuotes fetches intraday kline bars for the given interval.
func (e *Eastmoney) MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*provider.RawPayload, error) {
	rows, err := e.fetchKlines(ctx, symbol, toKlineType(interval), start, end)
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: e.ID(), Kind: core.KindMinute, Rows: rows}, nil
}

func (e *Eastmoney) fetchKlines(ctx context.Context, symbol, klt string, start, end time.Time) ([]provider.Row, error) {
	secid, err := toSecid(symbol)
	if err != nil {
		return nil, err
	}
	if err := provider.WaitLimiter(ctx, e.limiter); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s?secid=%s&klt=%s&fqt=1&beg=%s&end=%s&fields1=f1,f2,f3&fields2=f51,f52,f53,f54,f55,f56,f57",
		historyURL, secid, klt,
		start.In(core.CST).Format("20060102"),
		end.In(core.CST).Format("20060102"))

	var result historyResponse
	if err := e.getJSON(ctx, u, &result); err != nil {
		return nil, err
	}
	if result.Data == nil || len(result.Data.Klines) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("eastmoney: no klines for %s", symbol))
	}
	return parseKlines(result.Data.Klines), nil
}

// parseKlines splits the comma-joined kline strings returned under fields2
// f51..f57: date,open,close,high,low,volume,amount.
func parseKlines(klines []string) []provider.Row {
	rows := make([]provider.Row, 0, len(klines))
	for _, line := range klines {
		parts := strings.Split(line, ",")
		if len(parts) < 6 {
			continue
		}
		row := provider.Row{
			"date":   parts[0],
			"open":   parts[1],
			"close":  parts[2],
			"high":   parts[3],
			"low":    parts[4],
			"volume": parts[5],
		}
		if len(parts) > 6 {
			row["amount"] = parts[6]
		}
		rows = append(rows, row)
	}
	return rows
}

// RealtimeQuote fetches the push2 snapshot. Field values stay keyed by the
// raw fXX codes; prices come back as fixed-point hundredths.
func (e *Eastmoney) RealtimeQuote(ctx context.Context, symbol string) (*provider.RawPayload, error) {
	secid, err := toSecid(symbol)
	if err != nil {
		return nil, err
	}
	if err := provider.WaitLimiter(ctx, e.limiter); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s?secid=%s&fields=%s", quoteURL, secid, quoteFields)

	var result quoteResponse
	if err := e.getJSON(ctx, u, &result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("eastmoney: no quote for %s", symbol))
	}

	row := make(provider.Row, len(result.Data))
	for field, value := range result.Data {
		if s := stringify(value); s != "" && s != "-" {
			row[field] = s
		}
	}
	return &provider.RawPayload{Provider: e.ID(), Kind: core.KindRealtime, Rows: []provider.Row{row}}, nil
}

// Financials fetches report summaries from the datacenter RPT_LICO_FN_CPD
// dataset. Field names stay in the dataset's uppercase form.
func (e *Eastmoney) Financials(ctx context.Context, symbol string, reportType core.ReportType) (*provider.RawPayload, error) {
	if err := provider.WaitLimiter(ctx, e.limiter); err != nil {
		return nil, err
	}

	code := strings.SplitN(symbol, ".", 2)[0]
	filter := fmt.Sprintf(`(SECURITY_CODE="%s")`, code)
	u := fmt.Sprintf("%s?reportName=RPT_LICO_FN_CPD&columns=ALL&pageSize=50&sortColumns=REPORT_DATE&sortTypes=-1&filter=%s",
		reportURL, url.QueryEscape(filter))

	var result reportResponse
	if err := e.getJSON(ctx, u, &result); err != nil {
		return nil, err
	}
	if result.Result == nil || len(result.Result.Data) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("eastmoney: no reports for %s", symbol))
	}

	rows := make([]provider.Row, 0, len(result.Result.Data))
	for _, item := range result.Result.Data {
		row := make(provider.Row, len(item))
		for field, value := range item {
			if s := stringify(value); s != "" {
				row[field] = s
			}
		}
		rows = append(rows, row)
	}
	return &provider.RawPayload{Provider: e.ID(), Kind: core.KindFinancials, Rows: rows}, nil
}

// News fetches the stock news list. Items published before since are
// filtered out here because the API has no time window parameter.
func (e *Eastmoney) News(ctx context.Context, symbol string, since time.Time) (*provider.RawPayload, error) {
	if err := provider.WaitLimiter(ctx, e.limiter); err != nil {
		return nil, err
	}

	code := strings.SplitN(symbol, ".", 2)[0]
	u := fmt.Sprintf("%s?client=web&biz=web_news&mTypeAndCode=%s&pageSize=50&req_trace=%d",
		newsURL, code, time.Now().UnixMilli())

	var result newsResponse
	if err := e.getJSON(ctx, u, &result); err != nil {
		return nil, err
	}
	if result.Data == nil || len(result.Data.List) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("eastmoney: no news for %s", symbol))
	}

	rows := make([]provider.Row, 0, len(result.Data.List))
	for _, item := range result.Data.List {
		published, err := time.ParseInLocation("2006-01-02 15:04:05", item.ShowTime, core.CST)
		if err != nil || published.Before(since) {
			continue
		}
		rows = append(rows, provider.Row{
			"title":    item.Title,
			"digest":   item.Digest,
			"url":      item.URL,
			"source":   item.Source,
			"showtime": item.ShowTime,
		})
	}
	if len(rows) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("eastmoney: no news for %s since %s", symbol, since.Format("2006-01-02")))
	}
	return &provider.RawPayload{Provider: e.ID(), Kind: core.KindNews, Rows: rows}, nil
}

func (e *Eastmoney) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return core.WrapError(core.ErrProviderUnavailable, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("eastmoney: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return provider.HTTPError(e.ID(), resp.StatusCode)
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("eastmoney: decoding response: %w", err))
	}
	return nil
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

// Response types
type quoteResponse struct {
	Data map[string]any `json:"data"`
}

type historyResponse struct {
	Data *historyData `json:"data"`
}

type historyData struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}

type reportResponse struct {
	Result *reportResult `json:"result"`
}

type reportResult struct {
	Data []map[string]any `json:"data"`
}

type newsResponse struct {
	Data *newsData `json:"data"`
}

type newsData struct {
	List []newsItem `json:"list"`
}

type newsItem struct {
	Title    string `json:"title"`
	Digest   string `json:"digest"`
	URL      string `json:"url"`
	Source   string `json:"source"`
	ShowTime string `json:"showTime"`
}
