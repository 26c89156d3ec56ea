package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/exchange"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
)

// FileWAL appends every changeset to a file as one JSON line. It is an audit
// trail; it wraps the journal that actually restores state.
type FileWAL struct {
	mu    sync.Mutex
	f     *os.File
	inner exchange.Journal
}

func NewFileWAL(path string, inner exchange.Journal) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f, inner: inner}, nil
}

// Apply records cs and forwards it to the wrapped journal. The inner journal
// runs even if the line could not be written.
func (w *FileWAL) Apply(cs *exchange.Changeset) error {
	w.mu.Lock()
	line, err := json.Marshal(cs)
	if err == nil {
		_, err = fmt.Fprintln(w.f, string(line))
	}
	w.mu.Unlock()

	if w.inner != nil {
		if ierr := w.inner.Apply(cs); ierr != nil {
			return ierr
		}
	}
	if err != nil {
		return fmt.Errorf("wal append: %w", err)
	}
	return nil
}

func (w *FileWAL) LoadOpenOrders() ([]orderbook.Order, uint64, error) {
	if w.inner == nil {
		return nil, 0, nil
	}
	return w.inner.LoadOpenOrders()
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

var _ exchange.Journal = (*FileWAL)(nil)

// LoadRecentTrades forwards to the wrapped journal when it keeps history.
func (w *FileWAL) LoadRecentTrades(ticker string, limit int) ([]exchange.Trade, error) {
	h, ok := w.inner.(exchange.TradeHistory)
	if !ok {
		return []exchange.Trade{}, nil
	}
	return h.LoadRecentTrades(ticker, limit)
}
