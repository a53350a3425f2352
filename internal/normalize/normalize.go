// Package normalize transforms raw provider payloads into canonical records.
// The pipeline is fixed: field renaming per the provider mapping table, unit
// conversion, timestamp parsing into the reference timezone, then derived
// fields that the provider omitted but supplied inputs for. Derived values
// are only computed, never guessed from absent inputs.
package normalize

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

var (
	hundred     = decimal.NewFromInt(100)
	thousand    = decimal.NewFromInt(1000)
	tenThousand = decimal.NewFromInt(10000)
)

// Normalizer maps raw payloads to canonical records using the builtin
// per-provider mapping tables.
type Normalizer struct {
	idx    map[mappingKey]Mapping
	logger *zap.Logger
}

// New creates a Normalizer with the builtin mapping tables.
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{idx: buildIndex(builtin), logger: logger}
}

func (n *Normalizer) lookup(providerID string, kind core.DataKind, market core.Market) (Mapping, error) {
	if m, ok := n.idx[mappingKey{providerID, kind, market}]; ok {
		return m, nil
	}
	if m, ok := n.idx[mappingKey{providerID, kind, core.MarketUnknown}]; ok {
		return m, nil
	}
	return Mapping{}, core.WrapError(core.ErrNormalizeFailed,
		fmt.Errorf("no mapping for provider %q kind %q market %q", providerID, kind, market))
}

// Quotes normalizes a quote payload (daily, minute or realtime) into
// canonical records sorted by time.
func (n *Normalizer) Quotes(p *provider.RawPayload, market core.Market, symbol, period string, fetchedAt time.Time) ([]core.QuoteRecord, error) {
	m, err := n.lookup(p.Provider, p.Kind, market)
	if err != nil {
		return nil, err
	}

	records := make([]core.QuoteRecord, 0, len(p.Rows))
	for _, row := range p.Rows {
		ts, err := parseRowTime(m, row)
		if err != nil {
			return nil, core.WrapError(core.ErrNormalizeFailed,
				fmt.Errorf("%s/%s: %w", p.Provider, p.Kind, err))
		}

		rec := core.QuoteRecord{
			Symbol:    symbol,
			Market:    market,
			Period:    period,
			Time:      ts,
			Provider:  p.Provider,
			FetchedAt: fetchedAt,
		}

		for rawField, canon := range m.Fields {
			v, ok := row[rawField]
			if !ok || !usable(v) {
				continue
			}
			d, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				return nil, core.WrapError(core.ErrNormalizeFailed,
					fmt.Errorf("%s/%s: field %q value %q: %w", p.Provider, p.Kind, rawField, v, err))
			}
			switch canon {
			case "open":
				rec.Open = scale(d, m.Price)
			case "high":
				rec.High = scale(d, m.Price)
			case "low":
				rec.Low = scale(d, m.Price)
			case "close":
				rec.Close = scale(d, m.Price)
			case "pre_close":
				rec.PreClose = scale(d, m.Price)
			case "change":
				rec.Change = scale(d, m.Price)
			case "pct_chg":
				rec.ChangePct = scale(d, m.Pct)
			case "volume":
				rec.Volume = scale(d, m.Volume).IntPart()
			case "amount":
				rec.Amount = scale(d, m.Amount)
			}
		}

		if rec.Close.IsZero() {
			return nil, core.WrapError(core.ErrNormalizeFailed,
				fmt.Errorf("%s/%s: row missing close price", p.Provider, p.Kind))
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })
	deriveChange(records)
	return records, nil
}

// deriveChange fills pre_close from the prior bar and computes change and
// pct_chg where the provider omitted them. The first bar of a series with no
// pre_close input stays as-is.
func deriveChange(records []core.QuoteRecord) {
	for i := range records {
		rec := &records[i]
		if rec.PreClose.IsZero() && i > 0 {
			rec.PreClose = records[i-1].Close
		}
		if rec.PreClose.IsZero() {
			continue
		}
		if rec.Change.IsZero() {
			rec.Change = rec.Close.Sub(rec.PreClose)
		}
		if rec.ChangePct.IsZero() && !rec.PreClose.IsZero() {
			rec.ChangePct = rec.Change.Div(rec.PreClose).Mul(hundred).Round(4)
		}
	}
}

// Financials normalizes a financial-statement payload. The report period is
// always emitted as YYYYMMDD and the statement type is classified once from
// the period, never re-derived per field.
func (n *Normalizer) Financials(p *provider.RawPayload, market core.Market, symbol string, fetchedAt time.Time) ([]core.FinancialRecord, error) {
	m, err := n.lookup(p.Provider, p.Kind, market)
	if err != nil {
		return nil, err
	}

	records := make([]core.FinancialRecord, 0, len(p.Rows))
	for _, row := range p.Rows {
		raw, ok := row[m.PeriodField]
		if !ok || !usable(raw) {
			return nil, core.WrapError(core.ErrNormalizeFailed,
				fmt.Errorf("%s: row missing report period %q", p.Provider, m.PeriodField))
		}
		trimmed := strings.TrimSpace(raw)
		if len(trimmed) > len(m.PeriodLayout) {
			// Providers pad report dates with a zero time component.
			trimmed = trimmed[:len(m.PeriodLayout)]
		}
		period, err := time.ParseInLocation(m.PeriodLayout, trimmed, core.CST)
		if err != nil {
			return nil, core.WrapError(core.ErrNormalizeFailed,
				fmt.Errorf("%s: report period %q: %w", p.Provider, raw, err))
		}

		rec := core.FinancialRecord{
			Symbol:       symbol,
			Market:       market,
			ReportPeriod: period.Format("20060102"),
			ReportType:   classifyReport(period),
			Metrics:      make(map[string]decimal.Decimal, len(m.Fields)),
			Provider:     p.Provider,
			FetchedAt:    fetchedAt,
		}

		for rawField, canon := range m.Fields {
			v, ok := row[rawField]
			if !ok || !usable(v) {
				continue
			}
			d, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				n.logger.Debug("skipping non-numeric financial field",
					zap.String("provider", p.Provider),
					zap.String("field", rawField),
					zap.String("value", v))
				continue
			}
			rec.Metrics[canon] = d
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ReportPeriod > records[j].ReportPeriod })
	return records, nil
}

// classifyReport derives the statement type from the period end date.
func classifyReport(period time.Time) core.ReportType {
	if period.Month() == time.December && period.Day() == 31 {
		return core.ReportAnnual
	}
	return core.ReportQuarterly
}

// News normalizes a news payload into canonical items, newest first.
func (n *Normalizer) News(p *provider.RawPayload, market core.Market, symbol string, fetchedAt time.Time) ([]core.NewsRecord, error) {
	m, err := n.lookup(p.Provider, p.Kind, market)
	if err != nil {
		return nil, err
	}

	records := make([]core.NewsRecord, 0, len(p.Rows))
	for _, row := range p.Rows {
		ts, err := parseRowTime(m, row)
		if err != nil {
			return nil, core.WrapError(core.ErrNormalizeFailed,
				fmt.Errorf("%s/news: %w", p.Provider, err))
		}

		rec := core.NewsRecord{
			Symbol:      symbol,
			PublishedAt: ts,
			Provider:    p.Provider,
			FetchedAt:   fetchedAt,
		}
		for rawField, canon := range m.Fields {
			v, ok := row[rawField]
			if !ok || !usable(v) {
				continue
			}
			switch canon {
			case "title":
				rec.Title = v
			case "summary":
				rec.Summary = v
			case "source":
				rec.Source = v
			case "url":
				rec.URL = v
			}
		}
		if rec.Title == "" {
			return nil, core.WrapError(core.ErrNormalizeFailed,
				fmt.Errorf("%s/news: row missing title", p.Provider))
		}
		records = append(records, rec)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].PublishedAt.After(records[j].PublishedAt) })
	return records, nil
}

func scale(d decimal.Decimal, u Unit) decimal.Decimal {
	switch u {
	case UnitLots:
		return d.Mul(hundred)
	case UnitThousand:
		return d.Mul(thousand)
	case UnitTenThousand:
		return d.Mul(tenThousand)
	case UnitCenti:
		return d.Div(hundred)
	default:
		return d
	}
}

func parseRowTime(m Mapping, row provider.Row) (time.Time, error) {
	parts := make([]string, 0, len(m.TimeFields))
	for _, f := range m.TimeFields {
		v, ok := row[f]
		if !ok || !usable(v) {
			return time.Time{}, fmt.Errorf("missing time field %q", f)
		}
		parts = append(parts, strings.TrimSpace(v))
	}
	s := strings.Join(parts, " ")

	if m.TimeLayout == "unix" {
		sec, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("epoch time %q: %w", s, err)
		}
		return time.Unix(sec, 0).In(core.CST), nil
	}

	ts, err := time.ParseInLocation(m.TimeLayout, s, core.CST)
	if err != nil {
		return time.Time{}, fmt.Errorf("time %q with layout %q: %w", s, m.TimeLayout, err)
	}
	return ts, nil
}

func usable(v string) bool {
	switch strings.TrimSpace(v) {
	case "", "-", "--", "None", "null", "N/A":
		return false
	}
	return true
}
