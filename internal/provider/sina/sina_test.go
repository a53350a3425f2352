package sina

import (
	"errors"
	"testing"
	"time"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

func TestSina_ImplementsAdapter(t *testing.T) {
	var _ provider.Adapter = (*Sina)(nil)
}

func TestToSinaSymbol(t *testing.T) {
	tests := []struct {
		symbol  string
		want    string
		wantErr bool
	}{
		{"600519.SH", "sh600519", false},
		{"000001.SZ", "sz000001", false},
		{"430047.BJ", "bj430047", false},
		{"00700.HK", "", true},
		{"AAPL", "", true},
	}

	for _, tc := range tests {
		got, err := toSinaSymbol(tc.symbol)
		if tc.wantErr != (err != nil) {
			t.Errorf("toSinaSymbol(%s): err = %v, wantErr %v", tc.symbol, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("toSinaSymbol(%s) = %s, want %s", tc.symbol, got, tc.want)
		}
	}
}

func TestParseQuoteLine(t *testing.T) {
	line := `var hq_str_sh600519="贵州茅台,1700.010,1698.000,1710.500,1715.000,1695.300,1710.400,1710.500,3500000,5936000000.000,100,1710.400,200,1710.300,300,1710.200,400,1710.100,500,1710.000,100,1710.500,200,1710.600,300,1710.700,400,1710.800,500,1710.900,2024-01-02,15:00:03,00,";`

	row, err := parseQuoteLine(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"open":      "1700.010",
		"pre_close": "1698.000",
		"price":     "1710.500",
		"high":      "1715.000",
		"low":       "1695.300",
		"volume":    "3500000",
		"amount":    "5936000000.000",
		"date":      "2024-01-02",
		"time":      "15:00:03",
	}
	for field, expected := range want {
		if row[field] != expected {
			t.Errorf("field %s = %q, want %q", field, row[field], expected)
		}
	}
}

func TestParseQuoteLine_UnknownSymbol(t *testing.T) {
	// The feed answers unknown symbols with an empty payload.
	_, err := parseQuoteLine(`var hq_str_sh999999="";`)
	if !errors.Is(err, core.ErrProviderEmpty) {
		t.Errorf("expected provider-empty, got %v", err)
	}
}

func TestParseQuoteLine_Malformed(t *testing.T) {
	_, err := parseQuoteLine(`not a feed line`)
	if !errors.Is(err, core.ErrProviderUnavailable) {
		t.Errorf("expected provider-unavailable, got %v", err)
	}
}

func TestFilterBars(t *testing.T) {
	bars := []klineBar{
		{Day: "2023-12-29", Open: "1695.0", High: "1700.0", Low: "1690.0", Close: "1698.0", Volume: "2500000"},
		{Day: "2024-01-02", Open: "1700.0", High: "1715.0", Low: "1695.3", Close: "1710.5", Volume: "3500000"},
		{Day: "2024-01-03", Open: "1711.0", High: "1712.9", Low: "1690.0", Close: "1695.2", Volume: "2800000"},
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, core.CST)
	end := time.Date(2024, 1, 2, 0, 0, 0, 0, core.CST)

	rows := filterBars(bars, start, end)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row in range, got %d", len(rows))
	}
	if rows[0]["day"] != "2024-01-02" || rows[0]["close"] != "1710.5" {
		t.Errorf("unexpected row: %v", rows[0])
	}
}
