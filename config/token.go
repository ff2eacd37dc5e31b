package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cast"
)

// MaxTokenDecimals bounds token decimals so 10^decimals fits in 256 bits.
const MaxTokenDecimals = 77

// ParseToken parses SYMBOL:ADDRESS:DECIMALS:RATE.
func ParseToken(s string) (TokenConfig, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 4 {
		return TokenConfig{}, fmt.Errorf("token %q: want SYMBOL:ADDRESS:DECIMALS:RATE", s)
	}
	return buildToken(parts[0], parts[1], parts[2], parts[3])
}

func buildToken(symbol, addr, decimals, rate string) (TokenConfig, error) {
	symbol = strings.TrimSpace(symbol)
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return TokenConfig{}, fmt.Errorf("token %s: invalid address %q", symbol, addr)
	}
	dec, err := strconv.ParseUint(strings.TrimSpace(decimals), 10, 8)
	if err != nil {
		return TokenConfig{}, fmt.Errorf("token %s: invalid decimals %q", symbol, decimals)
	}
	r, err := ParseAmount(rate)
	if err != nil {
		return TokenConfig{}, fmt.Errorf("token %s: rate: %w", symbol, err)
	}
	return TokenConfig{
		Symbol:         symbol,
		Address:        common.HexToAddress(addr),
		Decimals:       uint8(dec),
		ConversionRate: r,
	}, nil
}

// parseTokens accepts the shapes viper yields for the tokens key: a
// comma-separated string (environment), a list of strings (flags, YAML)
// or a list of maps (YAML).
func parseTokens(raw interface{}) ([]TokenConfig, error) {
	var items []interface{}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		for _, s := range strings.Split(v, ",") {
			if strings.TrimSpace(s) != "" {
				items = append(items, s)
			}
		}
	case []string:
		for _, s := range v {
			items = append(items, s)
		}
	case []interface{}:
		items = v
	default:
		return nil, fmt.Errorf("unsupported tokens value of type %T", raw)
	}

	out := make([]TokenConfig, 0, len(items))
	for i, item := range items {
		var (
			t   TokenConfig
			err error
		)
		switch it := item.(type) {
		case string:
			t, err = ParseToken(it)
		case map[string]interface{}:
			t, err = buildToken(
				cast.ToString(it["symbol"]),
				cast.ToString(it["address"]),
				cast.ToString(it["decimals"]),
				cast.ToString(it["rate"]),
			)
		default:
			err = fmt.Errorf("unsupported entry of type %T", item)
		}
		if err != nil {
			return nil, fmt.Errorf("tokens[%d]: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}
