package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	owner    = common.HexToAddress("0x0000000000000000000000000000000000000001")
	stranger = common.HexToAddress("0x0000000000000000000000000000000000000002")
	linkAddr = common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA")
)

func newTestRegistry(t *testing.T) *Registry {
	r, err := New("ETH", OwnerPolicy{Owner: owner}, nil)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}
	return r
}

// TestOnlyOwnerAddsTokens mirrors the wallet rule: the owner may list, anyone else is rejected.
func TestOnlyOwnerAddsTokens(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.AddToken(owner, "LINK", linkAddr); err != nil {
		t.Fatalf("owner add failed: %v", err)
	}
	err := r.AddToken(stranger, "LINK", linkAddr)
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if err := r.AddToken(stranger, "BAT", linkAddr); !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if r.IsRegistered("BAT") {
		t.Error("rejected listing must not register the token")
	}
}

func TestReRegisterUpdatesHandle(t *testing.T) {
	r := newTestRegistry(t)
	other := common.HexToAddress("0x00000000000000000000000000000000000000FF")

	_ = r.AddToken(owner, "LINK", linkAddr)
	if err := r.AddToken(owner, "LINK", other); err != nil {
		t.Fatalf("re-register failed: %v", err)
	}

	tok, err := r.GetToken("LINK")
	if err != nil {
		t.Fatal(err)
	}
	if tok.Address != other {
		t.Errorf("address = %s, want %s", tok.Address.Hex(), other.Hex())
	}
	if r.Count() != 1 {
		t.Errorf("count = %d, want 1", r.Count())
	}
}

func TestRegisterValidation(t *testing.T) {
	r := newTestRegistry(t)

	tests := []struct {
		name   string
		ticker string
	}{
		{"empty ticker", ""},
		{"too long", strings.Repeat("X", MaxTickerLen+1)},
		{"quote asset", "ETH"},
		{"separator", "LINK:X"},
		{"whitespace", "LI NK"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := r.AddToken(owner, tt.ticker, linkAddr); err == nil {
				t.Errorf("expected error for ticker %q", tt.ticker)
			}
		})
	}
}

func TestGetUnknownToken(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.GetToken("DOGE"); !errors.Is(err, ErrUnknownAsset) {
		t.Errorf("expected ErrUnknownAsset, got %v", err)
	}
}

func TestListTokensSorted(t *testing.T) {
	r := newTestRegistry(t)
	for _, tk := range []string{"UNI", "AAVE", "LINK"} {
		_ = r.AddToken(owner, tk, linkAddr)
	}
	list := r.ListTokens()
	if len(list) != 3 || list[0].Ticker != "AAVE" || list[2].Ticker != "UNI" {
		t.Errorf("tokens not sorted: %+v", list)
	}
}

func TestFormatAmount(t *testing.T) {
	tok := Token{Ticker: "LINK", Decimals: 3}
	if got := tok.FormatAmount(1500); got != "1.5" {
		t.Errorf("FormatAmount(1500) = %q, want 1.5", got)
	}
	if got := FormatUnits(42, 0); got != "42" {
		t.Errorf("FormatUnits(42, 0) = %q, want 42", got)
	}
}

func TestNewRequiresPolicy(t *testing.T) {
	if _, err := New("ETH", nil, nil); err == nil {
		t.Error("expected error without policy")
	}
}
