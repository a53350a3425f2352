// Package symbol canonicalizes user- and provider-supplied ticker codes into
// the one internal representation per market:
//
//	A-shares: 6-digit code + exchange suffix, e.g. "600519.SH", "000001.SZ"
//	HK:       5-digit zero-padded code + ".HK", e.g. "00700.HK"
//	US:       uppercased ticker, e.g. "AAPL"
//
// Normalization is pure and idempotent: feeding a canonical symbol back in
// returns it unchanged.
package symbol

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wyhe/prism/internal/core"
)

var (
	allDigits   = regexp.MustCompile(`^\d+$`)
	usTicker    = regexp.MustCompile(`^[A-Z][A-Z0-9.\-]{0,9}$`)
	cnExchanges = map[string]bool{"SH": true, "SZ": true, "BJ": true}
)

// Normalize converts a raw code into the canonical symbol for the given
// market. It fails with core.ErrInvalidSymbol when the raw code cannot be
// parsed into a market-valid shape.
func Normalize(raw string, market core.Market) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", core.WrapError(core.ErrInvalidSymbol, fmt.Errorf("empty code"))
	}

	switch market {
	case core.MarketA:
		return normalizeA(code)
	case core.MarketHK:
		return normalizeHK(code)
	case core.MarketUS:
		return normalizeUS(code)
	default:
		return "", core.WrapError(core.ErrInvalidSymbol,
			fmt.Errorf("unknown market %q for code %q", market, raw))
	}
}

// InferMarket determines the market from the raw code alone.
// Inference order, first match wins: explicit market suffix/prefix,
// all-digit code length, default US. All-digit codes longer than six
// digits are ambiguous and rejected.
func InferMarket(raw string) (core.Market, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return core.MarketUnknown, core.WrapError(core.ErrMarketUnresolved, fmt.Errorf("empty code"))
	}

	if _, tag, ok := splitTag(code); ok {
		switch {
		case tag == "HK":
			return core.MarketHK, nil
		case cnExchanges[tag]:
			return core.MarketA, nil
		}
	}

	if allDigits.MatchString(code) {
		switch {
		case len(code) == 6:
			return core.MarketA, nil
		case len(code) <= 5:
			// HK codes are quoted with 1-5 digits ("700", "0700", "00700").
			return core.MarketHK, nil
		default:
			return core.MarketUnknown, core.WrapError(core.ErrMarketUnresolved,
				fmt.Errorf("ambiguous all-digit code %q", raw))
		}
	}

	return core.MarketUS, nil
}

// splitTag extracts an exchange tag attached as suffix ("600519.SH") or
// prefix ("SZ.000001"). Returns the bare code, the uppercased tag and
// whether a known tag was found.
func splitTag(code string) (bare, tag string, ok bool) {
	if i := strings.LastIndex(code, "."); i > 0 && i < len(code)-1 {
		t := strings.ToUpper(code[i+1:])
		if t == "HK" || cnExchanges[t] {
			return code[:i], t, true
		}
	}
	if i := strings.Index(code, "."); i > 0 && i < len(code)-1 {
		t := strings.ToUpper(code[:i])
		if t == "HK" || cnExchanges[t] {
			return code[i+1:], t, true
		}
	}
	return code, "", false
}

func normalizeA(code string) (string, error) {
	bare, tag, hasTag := splitTag(code)

	if !allDigits.MatchString(bare) || len(bare) != 6 {
		return "", core.WrapError(core.ErrInvalidSymbol,
			fmt.Errorf("A-share code must be 6 digits, got %q", code))
	}

	if hasTag {
		if !cnExchanges[tag] {
			return "", core.WrapError(core.ErrInvalidSymbol,
				fmt.Errorf("unknown A-share exchange %q in %q", tag, code))
		}
		return bare + "." + tag, nil
	}

	// No suffix: infer exchange by first digit.
	if bare[0] == '6' {
		return bare + ".SH", nil
	}
	return bare + ".SZ", nil
}

func normalizeHK(code string) (string, error) {
	bare, tag, hasTag := splitTag(code)
	if hasTag && tag != "HK" {
		return "", core.WrapError(core.ErrInvalidSymbol,
			fmt.Errorf("non-HK exchange %q in %q", tag, code))
	}

	if !allDigits.MatchString(bare) {
		return "", core.WrapError(core.ErrInvalidSymbol,
			fmt.Errorf("HK code must be numeric, got %q", code))
	}
	bare = strings.TrimLeft(bare, "0")
	if bare == "" || len(bare) > 5 {
		return "", core.WrapError(core.ErrInvalidSymbol,
			fmt.Errorf("HK code must be 1-5 digits, got %q", code))
	}

	return strings.Repeat("0", 5-len(bare)) + bare + ".HK", nil
}

func normalizeUS(code string) (string, error) {
	up := strings.ToUpper(code)
	if !usTicker.MatchString(up) {
		return "", core.WrapError(core.ErrInvalidSymbol,
			fmt.Errorf("invalid US ticker %q", code))
	}
	return up, nil
}
