// Package sina wraps the Sina Finance quote feeds for A-shares. The
// realtime feed is the classic hq.sinajs.cn comma-joined line; daily bars
// come from the CN_MarketDataService kline endpoint.
package sina

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
	quoteURL = "https://hq.sinajs.cn/list="
	klineURL = "https://quotes.sina.cn/cn/api/json_v2.php/CN_MarketDataService.getKLineData"
)

// The quote feed rejects requests without a Sina referer.
const referer = "https://finance.sina.com.cn"

// Sina implements the Sina Finance adapter for A-shares.
type Sina struct {
	client  *http.Client
	limiter *rate.Limiter
}

// New creates a Sina adapter. No API key is required.
func New(cfg provider.Config) *Sina {
	return &Sina{
		client:  &http.Client{Timeout: 10 * time.Second},
		limiter: provider.NewLimiter(cfg, 10, 10),
	}
}

func (s *Sina) ID() string {
	return "sina"
}

func (s *Sina) Markets() []core.Market {
	return []core.Market{core.MarketA}
}

func (s *Sina) Capabilities() []core.DataKind {
	return []core.DataKind{core.KindDaily, core.KindRealtime}
}

// toSinaSymbol converts 600519.SH to sh600519.
func toSinaSymbol(symbol string) (string, error) {
	parts := strings.Split(symbol, ".")
	if len(parts) != 2 {
		return "", core.WrapError(core.ErrInvalidSymbol,
			fmt.Errorf("sina: unexpected symbol %q", symbol))
	}
	switch parts[1] {
	case "SH", "SZ", "BJ":
		return strings.ToLower(parts[1]) + parts[0], nil
	}
	return "", core.WrapError(core.ErrInvalidSymbol,
		fmt.Errorf("sina: unexpected exchange %q", parts[1]))
}

// RealtimeQuote fetches the hq feed line for one symbol.
func (s *Sina) RealtimeQuote(ctx context.Context, symbol string) (*provider.RawPayload, error) {
	sinaSymbol, err := toSinaSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := provider.WaitLimiter(ctx, s.limiter); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, quoteURL+sinaSymbol, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, err)
	}
	req.Header.Set("Referer", referer)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("sina: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.HTTPError(s.ID(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("sina: %w", err))
	}

	row, err := parseQuoteLine(string(body))
	if err != nil {
		return nil, err
	}
	return &provider.RawPayload{Provider: s.ID(), Kind: core.KindRealtime, Rows: []provider.Row{row}}, nil
}

// parseQuoteLine extracts the quoted payload from a feed line like
//
//	var hq_str_sh600519="贵州茅台,1700.01,1698.00,1710.50,...";
//
// and picks the documented positions. A payload with no commas means the
// symbol is unknown to the feed.
func parseQuoteLine(line string) (provider.Row, error) {
	open := strings.Index(line, `"`)
	close_ := strings.LastIndex(line, `"`)
	if open < 0 || close_ <= open {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("sina: malformed feed line"))
	}

	fields := strings.Split(line[open+1:close_], ",")
	if len(fields) < 32 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("sina: feed line carries no quote"))
	}

	return provider.Row{
		"open":      fields[1],
		"pre_close": fields[2],
		"price":     fields[3],
		"high":      fields[4],
		"low":       fields[5],
		"volume":    fields[8],
		"amount":    fields[9],
		"date":      fields[30],
		"time":      fields[31],
	}, nil
}

// DailyQuotes fetches daily bars. The endpoint has no date window, so the
// requested range is applied here after parsing.
func (s *Sina) DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*provider.RawPayload, error) {
	sinaSymbol, err := toSinaSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if err := provider.WaitLimiter(ctx, s.limiter); err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s?symbol=%s&scale=240&ma=no&datalen=1023", klineURL, sinaSymbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, err)
	}
	req.Header.Set("Referer", referer)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable, fmt.Errorf("sina: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, provider.HTTPError(s.ID(), resp.StatusCode)
	}

	var bars []klineBar
	if err := json.NewDecoder(resp.Body).Decode(&bars); err != nil {
		return nil, core.WrapError(core.ErrProviderUnavailable,
			fmt.Errorf("sina: decoding klines: %w", err))
	}

	rows := filterBars(bars, start, end)
	if len(rows) == 0 {
		return nil, core.WrapError(core.ErrProviderEmpty,
			fmt.Errorf("sina: no bars for %s in range", symbol))
	}
	return &provider.RawPayload{Provider: s.ID(), Kind: core.KindDaily, Rows: rows}, nil
}

func filterBars(bars []klineBar, start, end time.Time) []provider.Row {
	rows := make([]provider.Row, 0, len(bars))
	for _, bar := range bars {
		day, err := time.ParseInLocation("2006-01-02", bar.Day, core.CST)
		if err != nil {
			continue
		}
		if day.Before(start) || day.After(end) {
			continue
		}
		rows = append(rows, provider.Row{
			"day":    bar.Day,
			"open":   bar.Open,
			"high":   bar.High,
			"low":    bar.Low,
			"close":  bar.Close,
			"volume": bar.Volume,
		})
	}
	return rows
}

func (s *Sina) MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(s.ID(), core.KindMinute)
}

func (s *Sina) Financials(ctx context.Context, symbol string, reportType core.ReportType) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(s.ID(), core.KindFinancials)
}

func (s *Sina) News(ctx context.Context, symbol string, since time.Time) (*provider.RawPayload, error) {
	return nil, provider.Unsupported(s.ID(), core.KindNews)
}

type klineBar struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}
