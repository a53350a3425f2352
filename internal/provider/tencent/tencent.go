// Package tencent wraps the Tencent (gtimg) quote feeds for A-shares and
// Hong Kong. Realtime quotes come from the qt.gtimg.cn tilde-joined line;
// daily bars from the ifzq fqkline endpoint.
package tencent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

const (
	quoteURL = "https://qt.gtimg.cn/q="
	klineURL = "https://web.ifzq.gtimg.cn/appstock/app/fqkline/get"
)

// Tencent implements the Tencent quote adapter for A-shares and HK.
type Tencent struct {
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a Tencent adapter. No API key is required.
func New(cfg provider.Config) *Tencent {
	return &Tencent{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: provider.NewLimiter(cfg, 10, 10),
	}
}

func (t *Tencent) ID() string {
	return "tencent"
}

func (t *Tencent) Markets() []core.Market {
	return []core.Market{core.MarketA, core.MarketHK}
}

func (t *Tencent) Capabilities() []core.DataKind {
	return []core.DataKind{core.KindDaily, core.KindRealtime}
}

// toTencentSymbol converts 600519.SH to sh600519 and 00700.HK to hk00700.
func toTencentSymbol(symbol string) (string, error) {
	parts := strings.Split(symbol, ".")
	if len(parts) != 2 {
		return "", core.WrapError(core.ErrInvalidSymbol,
			fmt.Errorf("tencent: unexpected symbol %q", symbol))
	}
	switch parts[1] {
	case "SH", "SZ", "BJ", "HK":
		return strings.ToLower(parts[1]) + parts[0], nil
	}
	return "", core.WrapError(core.ErrInvalidSymbol,
		fmt.Errorf("tencent: unexpected exchange %q", parts[1]))
}

// RealtimeQuote fetches the qt feed line for one symbol.
func (t *Tencent) RealtimeQuote(ctx context.Context, symbol string) (*provider.RawPayload, error) {
	tSymbol, err := toTencentSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := provider.WaitLimiter(ctx, t.limiter); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, quoteURL+tSymbol, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("tencent: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.HTTPError(t.ID(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("tencent: %w", err))
	}

	row, err := parseQuoteLine(string(body))
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: t.ID(), Kind: core.KindRealtime, Rows: []provider.Row{row}}, nil
}

// parseQuoteLine extracts the tilde-joined payload from a feed line like
//
//	v_sh600519="1~贵州茅台~600519~1710.50~1698.00~1700.01~35000~...";
//
// Positions: 3 price, 4 pre_close, 5 open, 6 volume, 30 datetime,
// 31 change, 32 pct_chg, 33 high, 34 low, 37 amount (in wan).
func parseQuoteLine(line string) (provider.Row, error) {
	open := strings.Index(line, `"`)
	close_ := strings.LastIndex(line, `"`)
	if open < 0 || close_ <= open {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("tencent: malformed feed line"))
	}

	fields := strings.Split(line[open+1:close_], "~")
	if len(fields) < 38 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("tencent: feed line carries no quote"))
	}

	return provider.Row{
		"price":     fields[3],
		"pre_close": fields[4],
		"open":      fields[5],
		"volume":    fields[6],
		"datetime":  fields[30],
		"change":    fields[31],
		"pct_chg":   fields[32],
		"high":      fields[33],
		"low":       fields[34],
		"amount":    fields[37],
	}, nil
}

// DailyQuotes fetches forward-adjusted daily bars.
func (t *Tencent) DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*provider.RawPayload, error) {
	tSymbol, err := toTencentSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := provider.WaitLimiter(ctx, t.limiter); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s?param=%s,day,%s,%s,640,qfq", klineURL, tSymbol,
		start.In(core.CST).Format("2006-01-02"),
		end.In(core.CST).Format("2006-01-02"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("tencent: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.HTTPError(t.ID(), resp.StatusCode)
	}

	var result klineResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("tencent: decoding klines: %w", err))
	}

	rows := parseKlines(result.Data[tSymbol])
	if len(rows) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("tencent: no bars for %s in range", symbol))
	}
	return &provider.RawPayload{Provider: t.ID(), Kind: core.KindDaily, Rows: rows}, nil
}

// parseKlines reads the bar arrays from the per-symbol payload. Adjusted
// bars live under "qfqday" and fall back to "day"; each bar is
// [date, open, close, high, low, volume, ...].
func parseKlines(series map[string][][]any) []provider.Row {
	bars := series["qfqday"]
	if len(bars) == 0 {
		bars = series["day"]
	}

	rows := make([]provider.Row, 0, len(bars))
	for _, bar := range bars {
		if len(bar) < 6 {
			continue
		}
		rows = append(rows, provider.Row{
			"date":   stringify(bar[0]),
			"open":   stringify(bar[1]),
			"close":  stringify(bar[2]),
			"high":   stringify(bar[3]),
			"low":    stringify(bar[4]),
			"volume": stringify(bar[5]),
		})
	}
	return rows
}

func (t *Tencent) MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(t.ID(), core.KindMinute)
}

func (t *Tencent) Financials(ctx context.Context, symbol string, reportType core.ReportType) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(t.ID(), core.KindFinancials)
}

func (t *Tencent) News(ctx context.Context, symbol string, since time.Time) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(t.ID(), core.KindNews)
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

type klineResponse struct {
	Data map[string]map[string][][]any `json:"data"`
}
