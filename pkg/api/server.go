package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/pkg/app/core"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/registry"
	"github.com/uhyunpark/ledgerdex/pkg/crypto"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 1000
)

// Server handles REST API and WebSocket connections
type Server struct {
	core    *core.Core
	router  *mux.Router
	hub     *Hub
	auth    *crypto.Verifier // nil disables signature checks
	origins []string
	logger  *zap.Logger
}

type Option func(*Server)

// WithVerifier requires every state-changing request to carry a valid
// EIP-712 signature from the acting address.
func WithVerifier(v *crypto.Verifier) Option { return func(s *Server) { s.auth = v } }

// WithAllowedOrigins sets the CORS origins
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// NewServer creates a new API server
func NewServer(c *core.Core, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		core:   c,
		router: mux.NewRouter(),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(logger.Named("ws"))

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	// Token endpoints
	api.HandleFunc("/tokens", s.handleListTokens).Methods("GET")
	api.HandleFunc("/tokens", s.handleAddToken).Methods("POST")
	api.HandleFunc("/tokens/{ticker}/trades", s.handleGetTrades).Methods("GET")

	// Book endpoints
	api.HandleFunc("/orderbook/{ticker}/{side}", s.handleGetOrderbook).Methods("GET")

	// Order submission
	api.HandleFunc("/orders/limit", s.handleLimitOrder).Methods("POST")
	api.HandleFunc("/orders/market", s.handleMarketOrder).Methods("POST")

	// Account endpoints
	api.HandleFunc("/accounts/{address}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{address}/deposit", s.handleTransfer(false)).Methods("POST")
	api.HandleFunc("/accounts/{address}/withdraw", s.handleTransfer(true)).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped in CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the WebSocket hub and serves HTTP on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api_server_starting", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.core.Status())
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	tokens := s.core.Registry.ListTokens()
	response := make([]TokenInfo, len(tokens))
	for i, t := range tokens {
		response[i] = TokenInfo{Ticker: t.Ticker, Address: t.Address.Hex(), Decimals: t.Decimals}
	}
	respondJSON(w, response)
}

func (s *Server) handleAddToken(w http.ResponseWriter, r *http.Request) {
	var req AddTokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	caller, ok := parseAddress(w, req.Caller)
	if !ok {
		return
	}
	handle := common.Address{}
	if req.Address != "" {
		if handle, ok = parseAddress(w, req.Address); !ok {
			return
		}
	}

	if !s.authorize(w, crypto.AddToken{
		Caller: caller, Ticker: req.Ticker, Token: handle, Decimals: req.Decimals, Nonce: req.Nonce,
	}, req.Signature) {
		return
	}

	tok := registry.Token{Ticker: req.Ticker, Address: handle, Decimals: req.Decimals}
	if err := s.core.Exchange.ListToken(caller, tok); err != nil {
		respondErr(w, err)
		return
	}

	respondJSONStatus(w, http.StatusCreated, TokenInfo{Ticker: req.Ticker, Address: handle.Hex(), Decimals: req.Decimals})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ticker := vars["ticker"]

	side, err := orderbook.ParseSide(vars["side"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	if !s.core.Registry.IsRegistered(ticker) {
		respondError(w, http.StatusNotFound, "unknown token", ticker)
		return
	}

	respondJSON(w, OrderbookResponse{
		Ticker:    ticker,
		Side:      side,
		Orders:    s.core.Exchange.GetOrderBook(ticker, side),
		Levels:    emptyIfNil(s.core.Exchange.Depth(ticker, side)),
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	if !s.core.Registry.IsRegistered(ticker) {
		respondError(w, http.StatusNotFound, "unknown token", ticker)
		return
	}

	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := s.core.Exchange.RecentTrades(ticker, limit)
	if err != nil {
		s.logger.Error("load_trades_failed", zap.String("ticker", ticker), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load trades", err.Error())
		return
	}
	respondJSON(w, trades)
}

func (s *Server) handleLimitOrder(w http.ResponseWriter, r *http.Request) {
	var req LimitOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	trader, ok := parseAddress(w, req.Trader)
	if !ok {
		return
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}

	if !s.authorize(w, crypto.LimitOrder{
		Trader: trader, Side: uint8(side), Ticker: req.Ticker, Amount: req.Amount, Price: req.Price, Nonce: req.Nonce,
	}, req.Signature) {
		return
	}

	id, err := s.core.Exchange.CreateLimitOrder(trader, side, req.Ticker, req.Amount, req.Price)
	if err != nil {
		respondErr(w, err)
		return
	}
	s.BroadcastOrderbook(req.Ticker)

	respondJSONStatus(w, http.StatusCreated, LimitOrderResponse{OrderID: id})
}

func (s *Server) handleMarketOrder(w http.ResponseWriter, r *http.Request) {
	var req MarketOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	trader, ok := parseAddress(w, req.Trader)
	if !ok {
		return
	}
	side, err := orderbook.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}

	if !s.authorize(w, crypto.MarketOrder{
		Trader: trader, Side: uint8(side), Ticker: req.Ticker, Amount: req.Amount, Nonce: req.Nonce,
	}, req.Signature) {
		return
	}

	res, err := s.core.Exchange.CreateMarketOrder(trader, side, req.Ticker, req.Amount)
	if res == nil {
		respondErr(w, err)
		return
	}
	if len(res.Trades) > 0 {
		s.BroadcastOrderbook(req.Ticker)
	}

	resp := MarketOrderResponse{MarketResult: *res}
	if err != nil {
		resp.Message = err.Error()
	}
	respondJSON(w, resp)
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddress(w, mux.Vars(r)["address"])
	if !ok {
		return
	}

	balances := s.core.Ledger.Balances(addr)
	response := BalancesResponse{
		Address:  addr.Hex(),
		Balances: make(map[string]BalanceInfo, len(balances)),
	}
	for asset, amount := range balances {
		response.Balances[asset] = BalanceInfo{
			Amount:  amount,
			Display: s.core.FormatAmount(asset, amount),
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleTransfer(withdraw bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		addr, ok := parseAddress(w, mux.Vars(r)["address"])
		if !ok {
			return
		}
		var req TransferRequest
		if !decodeBody(w, r, &req) {
			return
		}

		if !s.authorize(w, crypto.Transfer{
			Account: addr, Withdraw: withdraw, Asset: req.Asset, Amount: req.Amount, Nonce: req.Nonce,
		}, req.Signature) {
			return
		}

		var err error
		if withdraw {
			err = s.core.Exchange.Withdraw(addr, req.Asset, req.Amount)
		} else {
			err = s.core.Exchange.Deposit(addr, req.Asset, req.Amount)
		}
		if err != nil {
			respondErr(w, err)
			return
		}

		respondJSON(w, map[string]any{
			"address": addr.Hex(),
			"asset":   req.Asset,
			"balance": s.core.Exchange.BalanceOf(addr, req.Asset),
		})
	}
}

// ==============================
// Broadcast Methods
// ==============================

// PublishTrade pushes t to "trades:<ticker>" subscribers. It never calls
// back into the exchange, so it is safe to use as the exchange's trade hook.
func (s *Server) PublishTrade(t core.Trade) {
	s.hub.BroadcastToChannel("trades:"+t.Ticker, TradeUpdate{Type: "trade", Trade: t})
}

// BroadcastOrderbook pushes aggregated depth to "orderbook:<ticker>" subscribers
func (s *Server) BroadcastOrderbook(ticker string) {
	channel := "orderbook:" + ticker
	if !s.hub.HasSubscribers(channel) {
		return
	}
	s.hub.BroadcastToChannel(channel, OrderbookUpdate{
		Type:      "orderbook",
		Ticker:    ticker,
		Bids:      emptyIfNil(s.core.Exchange.Depth(ticker, core.Buy)),
		Asks:      emptyIfNil(s.core.Exchange.Depth(ticker, core.Sell)),
		Timestamp: time.Now().UnixMilli(),
	})
}

// ==============================
// Helper Functions
// ==============================

// authorize checks the request signature when signature checks are on.
func (s *Server) authorize(w http.ResponseWriter, a crypto.Action, sig string) bool {
	if s.auth == nil {
		return true
	}
	if err := s.auth.Verify(a, sig); err != nil {
		s.logger.Info("request_unauthorized", zap.String("signer", a.Signer().Hex()), zap.Error(err))
		respondError(w, http.StatusUnauthorized, "unauthorized", err.Error())
		return false
	}
	return true
}

// statusFor maps exchange sentinels to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownAsset):
		return http.StatusNotFound
	case errors.Is(err, core.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, core.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	respondError(w, status, http.StatusText(status), err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func parseAddress(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func emptyIfNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}

func respondJSON(w http.ResponseWriter, data any) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
