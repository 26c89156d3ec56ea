// Command dexsign prints a signed request body for the exchange API.
//
//	dexsign -key 0x... -action limit -side buy -ticker LINK -amount 10 -price 300 -nonce 1
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/ledgerdex/pkg/api"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/crypto"
)

func main() {
	var (
		keyHex   = flag.String("key", "", "private key hex (a new key is generated if empty)")
		action   = flag.String("action", "limit", "limit | market | deposit | withdraw | add-token")
		side     = flag.String("side", "buy", "buy | sell")
		ticker   = flag.String("ticker", "", "token ticker, or the asset for deposit/withdraw")
		amount   = flag.Int64("amount", 0, "amount in smallest units")
		price    = flag.Int64("price", 0, "limit price in quote units per token")
		token    = flag.String("token", "", "token contract address (add-token)")
		decimals = flag.Uint("decimals", 18, "token decimals (add-token)")
		nonce    = flag.Uint64("nonce", 1, "request nonce, strictly increasing per address")
		chainID  = flag.Int64("chain-id", 1337, "EIP-712 chain id")
		apiURL   = flag.String("api", "http://localhost:8080", "API base URL, used in the printed hint")
	)
	flag.Parse()

	signer, err := loadSigner(*keyHex)
	if err != nil {
		fail("key", err)
	}
	addr := signer.Address()

	domain := crypto.DefaultDomain()
	domain.ChainID = big.NewInt(*chainID)

	var (
		act  crypto.Action
		body any
		path string
	)
	switch *action {
	case "limit", "market":
		s, err := orderbook.ParseSide(*side)
		if err != nil {
			fail("side", err)
		}
		if *action == "limit" {
			act = crypto.LimitOrder{Trader: addr, Side: uint8(s), Ticker: *ticker, Amount: *amount, Price: *price, Nonce: *nonce}
			body = &api.LimitOrderRequest{Trader: addr.Hex(), Side: s.String(), Ticker: *ticker, Amount: *amount, Price: *price}
			path = "/api/v1/orders/limit"
		} else {
			act = crypto.MarketOrder{Trader: addr, Side: uint8(s), Ticker: *ticker, Amount: *amount, Nonce: *nonce}
			body = &api.MarketOrderRequest{Trader: addr.Hex(), Side: s.String(), Ticker: *ticker, Amount: *amount}
			path = "/api/v1/orders/market"
		}
	case "deposit", "withdraw":
		withdraw := *action == "withdraw"
		act = crypto.Transfer{Account: addr, Withdraw: withdraw, Asset: *ticker, Amount: *amount, Nonce: *nonce}
		body = &api.TransferRequest{Asset: *ticker, Amount: *amount}
		path = fmt.Sprintf("/api/v1/accounts/%s/%s", addr.Hex(), *action)
	case "add-token":
		handle := common.Address{}
		if *token != "" {
			if !common.IsHexAddress(*token) {
				fail("token", fmt.Errorf("invalid address %q", *token))
			}
			handle = common.HexToAddress(*token)
		}
		act = crypto.AddToken{Caller: addr, Ticker: *ticker, Token: handle, Decimals: uint8(*decimals), Nonce: *nonce}
		body = &api.AddTokenRequest{Caller: addr.Hex(), Ticker: *ticker, Address: *token, Decimals: uint8(*decimals)}
		path = "/api/v1/tokens"
	default:
		fail("action", fmt.Errorf("unknown action %q", *action))
	}

	sig, err := domain.Sign(signer, act)
	if err != nil {
		fail("sign", err)
	}
	// Check the signature round-trips before printing it
	if err := domain.Verify(act, sig); err != nil {
		fail("verify", err)
	}
	setSigned(body, api.Signed{Nonce: *nonce, Signature: fmt.Sprintf("0x%x", sig)})

	out, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		fail("encode", err)
	}

	fmt.Fprintf(os.Stderr, "Address: %s\n", addr.Hex())
	if *keyHex == "" {
		fmt.Fprintf(os.Stderr, "Private Key: %s (KEEP SECRET!)\n", signer.PrivateKeyHex())
	}
	fmt.Fprintf(os.Stderr, "POST %s%s\n", *apiURL, path)
	fmt.Println(string(out))
}

func loadSigner(keyHex string) (*crypto.Signer, error) {
	if keyHex == "" {
		return crypto.GenerateKey()
	}
	return crypto.FromPrivateKeyHex(keyHex)
}

func setSigned(body any, s api.Signed) {
	switch b := body.(type) {
	case *api.LimitOrderRequest:
		b.Signed = s
	case *api.MarketOrderRequest:
		b.Signed = s
	case *api.TransferRequest:
		b.Signed = s
	case *api.AddTokenRequest:
		b.Signed = s
	}
}

func fail(what string, err error) {
	fmt.Fprintf(os.Stderr, "Error (%s): %v\n", what, err)
	os.Exit(1)
}
