package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/params"
	"github.com/uhyunpark/ledgerdex/pkg/app/core"
	"github.com/uhyunpark/ledgerdex/pkg/crypto"
	"github.com/uhyunpark/ledgerdex/pkg/storage"
)

var (
	owner = common.HexToAddress("0x1000000000000000000000000000000000000000")
	alice = common.HexToAddress("0xa11ce00000000000000000000000000000000000")
	bob   = common.HexToAddress("0xb0b0000000000000000000000000000000000000")
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *core.Core) {
	t.Helper()
	c, err := core.New(params.Exchange{Owner: owner, QuoteAsset: "ETH", QuoteDecimals: 9},
		storage.NewInMemoryStore(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(c, zap.NewNop(), opts...)
	c.Exchange.OnTrade = s.PublishTrade
	return s, c
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d; body %s", rec.Code, want, rec.Body.String())
	}
}

// seed lists LINK and funds alice with quote and bob with tokens.
func seed(t *testing.T, s *Server) {
	t.Helper()
	expectStatus(t, do(t, s, "POST", "/api/v1/tokens", AddTokenRequest{
		Caller: owner.Hex(), Ticker: "LINK", Address: "0x514910771af9ca656af840dff83e8264ecf986ca", Decimals: 18,
	}), http.StatusCreated)
	expectStatus(t, do(t, s, "POST", "/api/v1/accounts/"+alice.Hex()+"/deposit",
		TransferRequest{Asset: "ETH", Amount: 50_000}), http.StatusOK)
	expectStatus(t, do(t, s, "POST", "/api/v1/accounts/"+bob.Hex()+"/deposit",
		TransferRequest{Asset: "LINK", Amount: 50}), http.StatusOK)
}

func TestHealthAndStatus(t *testing.T) {
	s, _ := newTestServer(t)
	expectStatus(t, do(t, s, "GET", "/health", nil), http.StatusOK)

	rec := do(t, s, "GET", "/api/v1/status", nil)
	expectStatus(t, rec, http.StatusOK)
	st := decode[core.Status](t, rec)
	if st.QuoteAsset != "ETH" || st.NextOrderID != 1 || !strings.HasPrefix(st.StateHash, "0x") {
		t.Errorf("status = %+v", st)
	}
}

func TestAddTokenOwnerOnly(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, "POST", "/api/v1/tokens", AddTokenRequest{Caller: alice.Hex(), Ticker: "LINK"})
	expectStatus(t, rec, http.StatusForbidden)

	seed(t, s)
	rec = do(t, s, "GET", "/api/v1/tokens", nil)
	expectStatus(t, rec, http.StatusOK)
	tokens := decode[[]TokenInfo](t, rec)
	if len(tokens) != 1 || tokens[0].Ticker != "LINK" || tokens[0].Decimals != 18 {
		t.Errorf("tokens = %+v", tokens)
	}
}

func TestDepositUnknownAsset(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, "POST", "/api/v1/accounts/"+alice.Hex()+"/deposit", TransferRequest{Asset: "DOGE", Amount: 1})
	expectStatus(t, rec, http.StatusNotFound)

	rec = do(t, s, "POST", "/api/v1/accounts/nope/deposit", TransferRequest{Asset: "ETH", Amount: 1})
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestWithdrawTooMuch(t *testing.T) {
	s, _ := newTestServer(t)
	seed(t, s)
	rec := do(t, s, "POST", "/api/v1/accounts/"+alice.Hex()+"/withdraw", TransferRequest{Asset: "ETH", Amount: 50_001})
	expectStatus(t, rec, http.StatusUnprocessableEntity)

	rec = do(t, s, "POST", "/api/v1/accounts/"+alice.Hex()+"/withdraw", TransferRequest{Asset: "ETH", Amount: 1})
	expectStatus(t, rec, http.StatusOK)
	if got := decode[map[string]any](t, rec)["balance"]; got != float64(49_999) {
		t.Errorf("balance = %v, want 49999", got)
	}
}

func TestLimitOrderAndBook(t *testing.T) {
	s, _ := newTestServer(t)
	seed(t, s)

	for i, p := range []int64{500, 300, 400} {
		rec := do(t, s, "POST", "/api/v1/orders/limit", LimitOrderRequest{
			Trader: bob.Hex(), Side: "sell", Ticker: "LINK", Amount: 5, Price: p,
		})
		expectStatus(t, rec, http.StatusCreated)
		if id := decode[LimitOrderResponse](t, rec).OrderID; id != uint64(i+1) {
			t.Errorf("order id = %d, want %d", id, i+1)
		}
	}

	rec := do(t, s, "GET", "/api/v1/orderbook/LINK/sell", nil)
	expectStatus(t, rec, http.StatusOK)
	book := decode[OrderbookResponse](t, rec)
	if len(book.Orders) != 3 || book.Orders[0].Price != 500 || book.Orders[2].Price != 300 {
		t.Errorf("sell book = %+v", book.Orders)
	}
	if len(book.Levels) != 3 || book.Levels[0].Price != 300 {
		t.Errorf("levels = %+v, want best (300) first", book.Levels)
	}

	// numeric side is accepted too
	expectStatus(t, do(t, s, "GET", "/api/v1/orderbook/LINK/0", nil), http.StatusOK)
	expectStatus(t, do(t, s, "GET", "/api/v1/orderbook/LINK/up", nil), http.StatusBadRequest)
	expectStatus(t, do(t, s, "GET", "/api/v1/orderbook/UNI/buy", nil), http.StatusNotFound)
}

func TestLimitOrderRejections(t *testing.T) {
	s, _ := newTestServer(t)
	seed(t, s)

	tests := []struct {
		name string
		req  LimitOrderRequest
		want int
	}{
		{"insufficient quote", LimitOrderRequest{Trader: alice.Hex(), Side: "buy", Ticker: "LINK", Amount: 1000, Price: 1000}, http.StatusUnprocessableEntity},
		{"no tokens to sell", LimitOrderRequest{Trader: alice.Hex(), Side: "sell", Ticker: "LINK", Amount: 1, Price: 1}, http.StatusUnprocessableEntity},
		{"unknown ticker", LimitOrderRequest{Trader: alice.Hex(), Side: "buy", Ticker: "UNI", Amount: 1, Price: 1}, http.StatusNotFound},
		{"zero price", LimitOrderRequest{Trader: alice.Hex(), Side: "buy", Ticker: "LINK", Amount: 1, Price: 0}, http.StatusBadRequest},
		{"bad side", LimitOrderRequest{Trader: alice.Hex(), Side: "hold", Ticker: "LINK", Amount: 1, Price: 1}, http.StatusBadRequest},
		{"bad trader", LimitOrderRequest{Trader: "alice", Side: "buy", Ticker: "LINK", Amount: 1, Price: 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectStatus(t, do(t, s, "POST", "/api/v1/orders/limit", tt.req), tt.want)
		})
	}
}

func TestMarketOrderFlow(t *testing.T) {
	s, _ := newTestServer(t)
	seed(t, s)
	for _, p := range []int64{300, 400, 500} {
		expectStatus(t, do(t, s, "POST", "/api/v1/orders/limit", LimitOrderRequest{
			Trader: bob.Hex(), Side: "sell", Ticker: "LINK", Amount: 5, Price: p,
		}), http.StatusCreated)
	}

	rec := do(t, s, "POST", "/api/v1/orders/market", MarketOrderRequest{
		Trader: alice.Hex(), Side: "buy", Ticker: "LINK", Amount: 10,
	})
	expectStatus(t, rec, http.StatusOK)
	res := decode[MarketOrderResponse](t, rec)
	if res.Filled != 10 || len(res.Trades) != 2 || res.Halted {
		t.Fatalf("result = %+v", res)
	}

	rec = do(t, s, "GET", "/api/v1/accounts/"+alice.Hex()+"/balances", nil)
	expectStatus(t, rec, http.StatusOK)
	bal := decode[BalancesResponse](t, rec)
	if bal.Balances["LINK"].Amount != 10 || bal.Balances["ETH"].Amount != 50_000-3_500 {
		t.Errorf("balances = %+v", bal.Balances)
	}
	if bal.Balances["ETH"].Display != "0.0000465" {
		t.Errorf("ETH display = %s", bal.Balances["ETH"].Display)
	}

	rec = do(t, s, "GET", "/api/v1/tokens/LINK/trades?limit=1", nil)
	expectStatus(t, rec, http.StatusOK)
	trades := decode[[]core.Trade](t, rec)
	if len(trades) != 1 || trades[0].Price != 400 {
		t.Errorf("recent trades = %+v, want the 400 fill", trades)
	}
	expectStatus(t, do(t, s, "GET", "/api/v1/tokens/LINK/trades?limit=x", nil), http.StatusBadRequest)
}

func TestMarketOrderHaltedAndRejected(t *testing.T) {
	s, _ := newTestServer(t)
	seed(t, s)
	expectStatus(t, do(t, s, "POST", "/api/v1/orders/limit", LimitOrderRequest{
		Trader: bob.Hex(), Side: "sell", Ticker: "LINK", Amount: 5, Price: 300,
	}), http.StatusCreated)

	// carol has no quote: halts before the first fill
	carol := common.HexToAddress("0xca40100000000000000000000000000000000000")
	rec := do(t, s, "POST", "/api/v1/orders/market", MarketOrderRequest{
		Trader: carol.Hex(), Side: "buy", Ticker: "LINK", Amount: 5,
	})
	expectStatus(t, rec, http.StatusOK)
	res := decode[MarketOrderResponse](t, rec)
	if !res.Halted || res.Filled != 0 || res.Message == "" {
		t.Errorf("result = %+v", res)
	}

	// selling without tokens is rejected outright
	rec = do(t, s, "POST", "/api/v1/orders/market", MarketOrderRequest{
		Trader: carol.Hex(), Side: "sell", Ticker: "LINK", Amount: 1,
	})
	expectStatus(t, rec, http.StatusUnprocessableEntity)
}

func TestSignaturesRequired(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	v := crypto.NewVerifier(crypto.DefaultDomain())
	s, _ := newTestServer(t, WithVerifier(v))
	trader := key.Address()

	req := TransferRequest{Asset: "ETH", Amount: 100}
	expectStatus(t, do(t, s, "POST", "/api/v1/accounts/"+trader.Hex()+"/deposit", req), http.StatusUnauthorized)

	sig, err := v.Domain().Sign(key, crypto.Transfer{Account: trader, Asset: "ETH", Amount: 100, Nonce: 1})
	if err != nil {
		t.Fatal(err)
	}
	req.Nonce, req.Signature = 1, fmt.Sprintf("0x%x", sig)
	expectStatus(t, do(t, s, "POST", "/api/v1/accounts/"+trader.Hex()+"/deposit", req), http.StatusOK)

	// replaying the same signed request fails
	expectStatus(t, do(t, s, "POST", "/api/v1/accounts/"+trader.Hex()+"/deposit", req), http.StatusUnauthorized)

	// a deposit signature does not authorize a withdrawal
	expectStatus(t, do(t, s, "POST", "/api/v1/accounts/"+trader.Hex()+"/withdraw", req), http.StatusUnauthorized)
}

func TestWebSocketTradesAndBook(t *testing.T) {
	s, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	seed(t, s)
	expectStatus(t, do(t, s, "POST", "/api/v1/orders/limit", LimitOrderRequest{
		Trader: bob.Hex(), Side: "sell", Ticker: "LINK", Amount: 5, Price: 300,
	}), http.StatusCreated)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(WSSubscribeRequest{Op: "subscribe", Channels: []string{"trades:LINK", "orderbook:LINK"}}); err != nil {
		t.Fatal(err)
	}

	read := func() map[string]any {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}
	if msg := read(); msg["type"] != "subscribed" {
		t.Fatalf("first message = %v, want subscribed ack", msg)
	}

	expectStatus(t, do(t, s, "POST", "/api/v1/orders/market", MarketOrderRequest{
		Trader: alice.Hex(), Side: "buy", Ticker: "LINK", Amount: 2,
	}), http.StatusOK)

	seen := map[string]map[string]any{}
	for len(seen) < 2 {
		msg := read()
		seen[msg["type"].(string)] = msg
	}
	if tr := seen["trade"]; tr["price"] != float64(300) || tr["amount"] != float64(2) {
		t.Errorf("trade message = %v", tr)
	}
	asks, _ := seen["orderbook"]["asks"].([]any)
	if len(asks) != 1 || asks[0].(map[string]any)["amount"] != float64(3) {
		t.Errorf("orderbook message = %v", seen["orderbook"])
	}
}
