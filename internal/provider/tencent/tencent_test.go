package tencent

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/wyhe/prism/internal/core"
	"github.com/wyhe/prism/internal/provider"
)

func TestTencent_ImplementsAdapter(t *testing.T) {
	var _ provider.Adapter = (*Tencent)(nil)
}

func TestToTencentSymbol(t *testing.T) {
	tests := []struct {
		symbol  string
		want    string
		wantErr bool
	}{
		{"600519.SH", "sh600519", false},
		{"000001.SZ", "sz000001", false},
		{"00700.HK", "hk00700", false},
		{"AAPL", "", true},
		{"600519.US", "", true},
	}

	for _, tc := range tests {
		got, err := toTencentSymbol(tc.symbol)
		if tc.wantErr != (err != nil) {
			t.Errorf("toTencentSymbol(%s): err = %v, wantErr %v", tc.symbol, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("toTencentSymbol(%s) = %s, want %s", tc.symbol, got, tc.want)
		}
	}
}

func TestParseQuoteLine(t *testing.T) {
	// 38+ tilde-separated fields with the documented positions filled in.
	fields := make([]string, 50)
	fields[3] = "1710.50"
	fields[4] = "1698.00"
	fields[5] = "1700.01"
	fields[6] = "35000"
	fields[30] = "20240102150003"
	fields[31] = "12.50"
	fields[32] = "0.74"
	fields[33] = "1715.00"
	fields[34] = "1695.30"
	fields[37] = "593600"
	line := `v_sh600519="` + strings.Join(fields, "~") + `";`

	row, err := parseQuoteLine(line)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"price":     "1710.50",
		"pre_close": "1698.00",
		"open":      "1700.01",
		"volume":    "35000",
		"datetime":  "20240102150003",
		"change":    "12.50",
		"pct_chg":   "0.74",
		"high":      "1715.00",
		"low":       "1695.30",
		"amount":    "593600",
	}
	for field, expected := range want {
		if row[field] != expected {
			t.Errorf("field %s = %q, want %q", field, row[field], expected)
		}
	}
}

func TestParseQuoteLine_UnknownSymbol(t *testing.T) {
	_, err := parseQuoteLine(`v_pv_none_match="1";`)
	if !errors.Is(err, core.ErrProviderEmpty) {
		t.Errorf("expected provider-empty, got %v", err)
	}
}

func TestParseKlines(t *testing.T) {
	raw := `{
		"qfqday": [
			["2024-01-02", "1700.01", "1710.50", "1715.00", "1695.30", "35000.00"],
			["2024-01-03", "1711.00", "1695.22", "1712.88", "1690.00", "28000.00"]
		]
	}`
	var series map[string][][]any
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&series); err != nil {
		t.Fatalf("decoding fixture: %v", err)
	}

	rows := parseKlines(series)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["date"] != "2024-01-02" || rows[0]["close"] != "1710.50" {
		t.Errorf("unexpected first row: %v", rows[0])
	}
	if rows[1]["volume"] != "28000.00" {
		t.Errorf("expected volume '28000.00', got '%s'", rows[1]["volume"])
	}
}

func TestParseKlines_FallsBackToUnadjusted(t *testing.T) {
	series := map[string][][]any{
		"day": {{"2024-01-02", "10.0", "10.5", "10.6", "9.9", "120000"}},
	}
	rows := parseKlines(series)
	if len(rows) != 1 || rows[0]["close"] != "10.5" {
		t.Errorf("expected fallback to 'day' series, got %v", rows)
	}
}
