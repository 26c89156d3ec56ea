package registry

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MaxTickerLen matches the 32-byte ticker slot used by on-chain listings.
const MaxTickerLen = 32

// Token is a listed asset tradable against the quote asset.
type Token struct {
	Ticker   string         `json:"ticker"`
	Address  common.Address `json:"address"`  // token contract handle
	Decimals uint8          `json:"decimals"` // display precision of the smallest unit
}

// Validate checks token metadata sanity
func (t Token) Validate() error {
	if t.Ticker == "" {
		return fmt.Errorf("ticker cannot be empty")
	}
	if len(t.Ticker) > MaxTickerLen {
		return fmt.Errorf("ticker %q longer than %d bytes", t.Ticker, MaxTickerLen)
	}
	if strings.ContainsAny(t.Ticker, ": \t\n") {
		return fmt.Errorf("ticker %q contains a separator or whitespace", t.Ticker)
	}
	return nil
}

// FormatAmount renders an amount of smallest units as a decimal string.
// Example: 1500 with Decimals=3 -> "1.5"
func (t Token) FormatAmount(amount int64) string {
	return FormatUnits(amount, t.Decimals)
}

// FormatUnits renders amount scaled down by decimals.
func FormatUnits(amount int64, decimals uint8) string {
	return decimal.New(amount, -int32(decimals)).String()
}
