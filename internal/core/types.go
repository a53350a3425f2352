package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Market represents a trading market.
type Market string

const (
	MarketA  Market = "A"
	MarketHK Market = "HK"
	MarketUS Market = "US"

	// MarketUnknown is returned when no market could be inferred.
	MarketUnknown Market = ""
)

// DataKind identifies one class of market data. Provider capabilities and
// cache keys share this vocabulary.
type DataKind string

const (
	KindDaily      DataKind = "daily"
	KindMinute     DataKind = "minute"
	KindRealtime   DataKind = "realtime"
	KindFinancials DataKind = "financials"
	KindNews       DataKind = "news"
)

// ReportType classifies a financial statement period.
type ReportType string

const (
	ReportQuarterly ReportType = "quarterly"
	ReportAnnual    ReportType = "annual"
)

// CST is the fixed reference timezone (UTC+8). Every canonical timestamp is
// expressed in this zone regardless of provider locale.
var CST = time.FixedZone("CST", 8*3600)

// QuoteRecord is the canonical quote shape for daily, minute and realtime
// data. Volume is always shares (never lots) and Amount is always base
// currency units (never thousands).
type QuoteRecord struct {
	Symbol    string          `json:"symbol"`
	Market    Market          `json:"market"`
	Period    string          `json:"period"` // "daily", "1m", "5m", "realtime"
	Time      time.Time       `json:"time"`   // in CST
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	PreClose  decimal.Decimal `json:"pre_close"`
	Volume    int64           `json:"volume"`
	Amount    decimal.Decimal `json:"amount"`
	Change    decimal.Decimal `json:"change"`
	ChangePct decimal.Decimal `json:"pct_chg"`
	Provider  string          `json:"data_source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// IsValid checks the record has the fields every consumer relies on.
func (q QuoteRecord) IsValid() bool {
	return q.Symbol != "" && !q.Time.IsZero() && q.Close.IsPositive()
}

// FinancialRecord is one reporting period of canonical financial data.
// Metric names follow the canonical vocabulary (total_revenue, net_income,
// roe, ...); the set is open because providers differ in coverage.
type FinancialRecord struct {
	Symbol       string                     `json:"symbol"`
	Market       Market                     `json:"market"`
	ReportPeriod string                     `json:"report_period"` // YYYYMMDD
	ReportType   ReportType                 `json:"report_type"`
	Metrics      map[string]decimal.Decimal `json:"metrics"`
	Provider     string                     `json:"data_source"`
	FetchedAt    time.Time                  `json:"fetched_at"`
}

// NewsRecord is one canonical news item.
type NewsRecord struct {
	Symbol      string    `json:"symbol"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	Source      string    `json:"source"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at"` // in CST
	Provider    string    `json:"data_source"`
	FetchedAt   time.Time `json:"fetched_at"`
}
