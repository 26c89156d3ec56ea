package storage_test

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/uhyunpark/ledgerdex/pkg/app/core/exchange"
	"github.com/uhyunpark/ledgerdex/pkg/app/core/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/storage"
)

func TestFileWALAppendsAndForwards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchange.wal")
	inner := storage.NewInMemoryStore()
	w, err := storage.NewFileWAL(path, inner)
	if err != nil {
		t.Fatal(err)
	}

	order := orderbook.Order{ID: 1, Trader: bob, Side: orderbook.Sell, Ticker: "LINK", Amount: 5, Price: 300}
	if err := w.Apply(&exchange.Changeset{Orders: []orderbook.Order{order}, NextOrderID: 2}); err != nil {
		t.Fatal(err)
	}
	if err := w.Apply(&exchange.Changeset{Removed: []orderbook.Order{order}, NextOrderID: 2}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []exchange.Changeset
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var cs exchange.Changeset
		if err := json.Unmarshal(sc.Bytes(), &cs); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		lines = append(lines, cs)
	}
	if len(lines) != 2 {
		t.Fatalf("wal has %d lines, want 2", len(lines))
	}
	if len(lines[0].Orders) != 1 || lines[0].Orders[0].Side != orderbook.Sell {
		t.Errorf("first line = %+v", lines[0])
	}

	orders, next, err := inner.LoadOpenOrders()
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 || next != 2 {
		t.Errorf("inner journal = %d orders, next %d; want 0, 2", len(orders), next)
	}
}
