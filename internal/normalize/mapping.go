package normalize

import (
	"github.com/wyhe/prism/internal/core"
)

// Unit describes how a provider-native numeric value relates to the
// canonical unit for its field.
type Unit int

const (
	UnitBase        Unit = iota // already canonical
	UnitLots                    // lots of 100 shares -> shares
	UnitThousand                // thousands -> base currency units
	UnitTenThousand             // wan (10^4) -> base currency units
	UnitCenti                   // hundredths -> base units (price in cents, pct*100)
)

// Mapping is the typed field-mapping table for one provider and data kind.
// Adding a provider means adding mapping rows here and one adapter package;
// orchestration code never changes.
type Mapping struct {
	Provider string
	Kind     core.DataKind
	// Market restricts the mapping to one market. Empty matches any market;
	// an exact market match wins over the wildcard.
	Market core.Market

	// Fields maps provider-native field names to canonical field names
	// (time, open, high, low, close, pre_close, volume, amount, change,
	// pct_chg — or canonical metric names for financials, title/summary/
	// source/url for news).
	Fields map[string]string

	Price  Unit // open/high/low/close/pre_close/change scale
	Volume Unit
	Amount Unit
	Pct    Unit

	// TimeFields are joined with a space and parsed with TimeLayout.
	// The layout "unix" means epoch seconds. String layouts are parsed in
	// the reference timezone; epoch values are converted into it.
	TimeFields []string
	TimeLayout string

	// Financial statements only: the reporting period field and layout.
	PeriodField  string
	PeriodLayout string
}

// builtin holds the mapping tables for every wired provider.
var builtin = []Mapping{
	// --- tushare (A-shares): volume in lots, amount in thousand CNY ---
	{
		Provider: "tushare", Kind: core.KindDaily,
		Fields: map[string]string{
			"open": "open", "high": "high", "low": "low", "close": "close",
			"pre_close": "pre_close", "change": "change", "pct_chg": "pct_chg",
			"vol": "volume", "amount": "amount",
		},
		Volume: UnitLots, Amount: UnitThousand,
		TimeFields: []string{"trade_date"}, TimeLayout: "20060102",
	},
	{
		Provider: "tushare", Kind: core.KindFinancials,
		Fields: map[string]string{
			"total_revenue": "total_revenue", "revenue": "revenue",
			"n_income": "net_income", "n_income_attr_p": "net_income_attr_p",
			"oper_cost": "oper_cost", "total_profit": "total_profit",
			"basic_eps": "basic_eps", "roe": "roe", "roa": "roa",
			"grossprofit_margin": "gross_margin", "netprofit_margin": "net_margin",
			"debt_to_assets": "debt_to_assets", "bps": "bvps",
		},
		PeriodField: "end_date", PeriodLayout: "20060102",
	},

	// --- eastmoney: klines carry lots for A-shares, shares for HK ---
	{
		Provider: "eastmoney", Kind: core.KindDaily, Market: core.MarketA,
		Fields: map[string]string{
			"open": "open", "close": "close", "high": "high", "low": "low",
			"volume": "volume", "amount": "amount",
		},
		Volume: UnitLots,
		TimeFields: []string{"date"}, TimeLayout: "2006-01-02",
	},
	{
		Provider: "eastmoney", Kind: core.KindDaily,
		Fields: map[string]string{
			"open": "open", "close": "close", "high": "high", "low": "low",
			"volume": "volume", "amount": "amount",
		},
		TimeFields: []string{"date"}, TimeLayout: "2006-01-02",
	},
	{
		Provider: "eastmoney", Kind: core.KindMinute, Market: core.MarketA,
		Fields: map[string]string{
			"open": "open", "close": "close", "high": "high", "low": "low",
			"volume": "volume", "amount": "amount",
		},
		Volume: UnitLots,
		TimeFields: []string{"date"}, TimeLayout: "2006-01-02 15:04",
	},
	{
		Provider: "eastmoney", Kind: core.KindMinute,
		Fields: map[string]string{
			"open": "open", "close": "close", "high": "high", "low": "low",
			"volume": "volume", "amount": "amount",
		},
		TimeFields: []string{"date"}, TimeLayout: "2006-01-02 15:04",
	},
	// Realtime snapshot fields come back as push2 fXX codes; prices and
	// percentages are fixed-point hundredths.
	{
		Provider: "eastmoney", Kind: core.KindRealtime, Market: core.MarketA,
		Fields: map[string]string{
			"f43": "close", "f44": "high", "f45": "low", "f46": "open",
			"f60": "pre_close", "f47": "volume", "f48": "amount",
			"f169": "change", "f170": "pct_chg",
		},
		Price: UnitCenti, Volume: UnitLots, Pct: UnitCenti,
		TimeFields: []string{"f86"}, TimeLayout: "unix",
	},
	{
		Provider: "eastmoney", Kind: core.KindRealtime,
		Fields: map[string]string{
			"f43": "close", "f44": "high", "f45": "low", "f46": "open",
			"f60": "pre_close", "f47": "volume", "f48": "amount",
			"f169": "change", "f170": "pct_chg",
		},
		Price: UnitCenti, Pct: UnitCenti,
		TimeFields: []string{"f86"}, TimeLayout: "unix",
	},
	{
		Provider: "eastmoney", Kind: core.KindFinancials,
		Fields: map[string]string{
			"TOTAL_OPERATE_INCOME": "total_revenue",
			"PARENT_NETPROFIT":     "net_income_attr_p",
			"NETPROFIT":            "net_income",
			"BASIC_EPS":            "basic_eps",
			"WEIGHTAVG_ROE":        "roe",
			"XSMLL":                "gross_margin",
			"BPS":                  "bvps",
		},
		PeriodField: "REPORT_DATE", PeriodLayout: "2006-01-02",
	},
	{
		Provider: "eastmoney", Kind: core.KindNews,
		Fields: map[string]string{
			"title": "title", "digest": "summary", "url": "url", "source": "source",
		},
		TimeFields: []string{"showtime"}, TimeLayout: "2006-01-02 15:04:05",
	},

	// --- sina: realtime volume already in shares ---
	{
		Provider: "sina", Kind: core.KindRealtime,
		Fields: map[string]string{
			"open": "open", "high": "high", "low": "low", "price": "close",
			"pre_close": "pre_close", "volume": "volume", "amount": "amount",
		},
		TimeFields: []string{"date", "time"}, TimeLayout: "2006-01-02 15:04:05",
	},
	{
		Provider: "sina", Kind: core.KindDaily,
		Fields: map[string]string{
			"open": "open", "high": "high", "low": "low", "close": "close",
			"volume": "volume",
		},
		TimeFields: []string{"day"}, TimeLayout: "2006-01-02",
	},

	// --- tencent: A-share volume in lots, HK in shares; amount in wan ---
	{
		Provider: "tencent", Kind: core.KindRealtime, Market: core.MarketA,
		Fields: map[string]string{
			"price": "close", "pre_close": "pre_close", "open": "open",
			"high": "high", "low": "low", "volume": "volume", "amount": "amount",
			"change": "change", "pct_chg": "pct_chg",
		},
		Volume: UnitLots, Amount: UnitTenThousand,
		TimeFields: []string{"datetime"}, TimeLayout: "20060102150405",
	},
	{
		Provider: "tencent", Kind: core.KindRealtime,
		Fields: map[string]string{
			"price": "close", "pre_close": "pre_close", "open": "open",
			"high": "high", "low": "low", "volume": "volume", "amount": "amount",
			"change": "change", "pct_chg": "pct_chg",
		},
		Amount: UnitTenThousand,
		TimeFields: []string{"datetime"}, TimeLayout: "20060102150405",
	},
	{
		Provider: "tencent", Kind: core.KindDaily, Market: core.MarketA,
		Fields: map[string]string{
			"open": "open", "close": "close", "high": "high", "low": "low",
			"volume": "volume",
		},
		Volume: UnitLots,
		TimeFields: []string{"date"}, TimeLayout: "2006-01-02",
	},
	{
		Provider: "tencent", Kind: core.KindDaily,
		Fields: map[string]string{
			"open": "open", "close": "close", "high": "high", "low": "low",
			"volume": "volume",
		},
		TimeFields: []string{"date"}, TimeLayout: "2006-01-02",
	},

	// --- yahoo: everything canonical units, epoch timestamps ---
	{
		Provider: "yahoo", Kind: core.KindDaily,
		Fields: map[string]string{
			"open": "open", "high": "high", "low": "low", "close": "close",
			"volume": "volume",
		},
		TimeFields: []string{"timestamp"}, TimeLayout: "unix",
	},
	{
		Provider: "yahoo", Kind: core.KindMinute,
		Fields: map[string]string{
			"open": "open", "high": "high", "low": "low", "close": "close",
			"volume": "volume",
		},
		TimeFields: []string{"timestamp"}, TimeLayout: "unix",
	},
	{
		Provider: "yahoo", Kind: core.KindRealtime,
		Fields: map[string]string{
			"price": "close", "previous_close": "pre_close", "volume": "volume",
		},
		TimeFields: []string{"timestamp"}, TimeLayout: "unix",
	},

	// --- finnhub ---
	{
		Provider: "finnhub", Kind: core.KindRealtime,
		Fields: map[string]string{
			"c": "close", "o": "open", "h": "high", "l": "low",
			"pc": "pre_close", "d": "change", "dp": "pct_chg",
		},
		TimeFields: []string{"t"}, TimeLayout: "unix",
	},
	{
		Provider: "finnhub", Kind: core.KindDaily,
		Fields: map[string]string{
			"o": "open", "h": "high", "l": "low", "c": "close", "v": "volume",
		},
		TimeFields: []string{"t"}, TimeLayout: "unix",
	},
	// As-filed statements keyed by XBRL concept; only the widely-filed
	// income statement concepts map to canonical metrics.
	{
		Provider: "finnhub", Kind: core.KindFinancials,
		Fields: map[string]string{
			"us-gaap_Revenues": "total_revenue",
			"us-gaap_RevenueFromContractWithCustomerExcludingAssessedTax": "revenue",
			"us-gaap_CostOfRevenue":       "oper_cost",
			"us-gaap_GrossProfit":         "gross_profit",
			"us-gaap_OperatingIncomeLoss": "oper_profit",
			"us-gaap_NetIncomeLoss":       "net_income",
			"us-gaap_EarningsPerShareBasic": "basic_eps",
		},
		PeriodField: "end_date", PeriodLayout: "2006-01-02",
	},
	{
		Provider: "finnhub", Kind: core.KindNews,
		Fields: map[string]string{
			"headline": "title", "summary": "summary", "url": "url", "source": "source",
		},
		TimeFields: []string{"datetime"}, TimeLayout: "unix",
	},

	// --- alphavantage ---
	{
		Provider: "alphavantage", Kind: core.KindDaily,
		Fields: map[string]string{
			"1. open": "open", "2. high": "high", "3. low": "low",
			"4. close": "close", "5. volume": "volume",
		},
		TimeFields: []string{"date"}, TimeLayout: "2006-01-02",
	},
	{
		Provider: "alphavantage", Kind: core.KindFinancials,
		Fields: map[string]string{
			"totalRevenue": "total_revenue", "grossProfit": "gross_profit",
			"operatingIncome": "oper_profit", "netIncome": "net_income",
			"costOfRevenue": "oper_cost", "incomeBeforeTax": "total_profit",
		},
		PeriodField: "fiscalDateEnding", PeriodLayout: "2006-01-02",
	},
}

type mappingKey struct {
	provider string
	kind     core.DataKind
	market   core.Market
}

func buildIndex(mappings []Mapping) map[mappingKey]Mapping {
	idx := make(map[mappingKey]Mapping, len(mappings))
	for _, m := range mappings {
		idx[mappingKey{m.Provider, m.Kind, m.Market}] = m
	}
	return idx
}
