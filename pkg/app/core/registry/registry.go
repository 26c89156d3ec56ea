package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var ErrUnknownAsset = errors.New("unknown asset")

// Store persists token listings. A nil Store keeps the registry in memory only.
type Store interface {
	SaveToken(t Token) error
	LoadTokens() ([]Token, error)
}

// Registry maps tickers to listed tokens in a thread-safe manner.
// Listing is restricted by the injected Policy.
type Registry struct {
	mu     sync.RWMutex
	tokens map[string]Token // ticker -> token
	quote  string
	policy Policy
	store  Store
}

// New creates a registry for the given quote asset and loads any tokens
// already in store. The quote asset itself can never be listed.
func New(quote string, policy Policy, store Store) (*Registry, error) {
	if policy == nil {
		return nil, fmt.Errorf("registry requires an access policy")
	}
	r := &Registry{
		tokens: make(map[string]Token),
		quote:  quote,
		policy: policy,
		store:  store,
	}
	if store == nil {
		return r, nil
	}

	tokens, err := store.LoadTokens()
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	for _, t := range tokens {
		r.tokens[t.Ticker] = t
	}
	return r, nil
}

// AddToken lists ticker with the given contract handle on behalf of caller.
func (r *Registry) AddToken(caller common.Address, ticker string, handle common.Address) error {
	return r.Register(caller, Token{Ticker: ticker, Address: handle})
}

// Register lists t on behalf of caller. Re-listing an existing ticker
// replaces its metadata.
func (r *Registry) Register(caller common.Address, t Token) error {
	if err := r.policy.Authorize(caller, "add token "+t.Ticker); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if t.Ticker == r.quote {
		return fmt.Errorf("invalid token: %s is the quote asset", t.Ticker)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveToken(t); err != nil {
			return fmt.Errorf("failed to save token %s: %w", t.Ticker, err)
		}
	}
	r.tokens[t.Ticker] = t
	return nil
}

// IsRegistered reports whether ticker is a listed token
func (r *Registry) IsRegistered(ticker string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[ticker]
	return ok
}

// GetToken retrieves a token by ticker
func (r *Registry) GetToken(ticker string) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[ticker]
	if !ok {
		return Token{}, fmt.Errorf("%w: %s", ErrUnknownAsset, ticker)
	}
	return t, nil
}

// ListTokens returns all listed tokens sorted by ticker
func (r *Registry) ListTokens() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Quote returns the quote asset ticker
func (r *Registry) Quote() string { return r.quote }

// Count returns the number of listed tokens
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
