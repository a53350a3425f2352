package yahoo

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/wyhe/prism/internal/provider"
)

func TestYahoo_ImplementsAdapter(t *testing.T) {
	var _ provider.Adapter = (*Yahoo)(nil)
}

func TestToYahooSymbol(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"AAPL", "AAPL"},
		{"BRK.B", "BRK.B"},
		{"00700.HK", "0700.HK"}, // Yahoo uses four-digit HK codes
		{"09988.HK", "9988.HK"},
		{"0700.HK", "0700.HK"},
	}

	for _, tc := range tests {
		got := toYahooSymbol(tc.symbol)
		if got != tc.want {
			t.Errorf("toYahooSymbol(%s) = %s, want %s", tc.symbol, got, tc.want)
		}
	}
}

func TestToYahooInterval(t *testing.T) {
	tests := []struct {
		interval string
		expected string
	}{
		{"1m", "1m"},
		{"5m", "5m"},
		{"1h", "60m"},
		{"1d", "1d"},
		{"", "1d"},
	}

	for _, tc := range tests {
		got := toYahooInterval(tc.interval)
		if got != tc.expected {
			t.Errorf("toYahooInterval(%s) = %s, want %s", tc.interval, got, tc.expected)
		}
	}
}

func TestChartRows(t *testing.T) {
	raw := `{
		"meta": {"symbol": "AAPL"},
		"timestamp": [1704207600, 1704294000, 1704380400],
		"indicators": {"quote": [{
			"open":   [187.15, 184.22, null],
			"high":   [188.44, 185.88, null],
			"low":    [183.89, 183.43, null],
			"close":  [185.64, 184.25, null],
			"volume": [82488700, 58414500, null]
		}]}
	}`
	var result chartResult
	if err := json.NewDecoder(strings.NewReader(raw)).Decode(&result); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}

	rows := chartRows(&result)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (null bar skipped), got %d", len(rows))
	}
	if rows[0]["timestamp"] != "1704207600" {
		t.Errorf("expected timestamp '1704207600', got '%s'", rows[0]["timestamp"])
	}
	if rows[0]["close"] != "185.64" {
		t.Errorf("expected close '185.64', got '%s'", rows[0]["close"])
	}
	if rows[1]["volume"] != "58414500" {
		t.Errorf("expected volume '58414500', got '%s'", rows[1]["volume"])
	}
}

func TestChartRows_NoQuoteBlock(t *testing.T) {
	rows := chartRows(&chartResult{Timestamp: []int64{1704207600}})
	if rows != nil {
		t.Errorf("expected nil rows, got %v", rows)
	}
}
