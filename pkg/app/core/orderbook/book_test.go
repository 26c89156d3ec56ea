package orderbook

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var trader = common.HexToAddress("0xAA00000000000000000000000000000000000000")

func newOrder(id uint64, side Side, price, amount int64) *Order {
	return &Order{ID: id, Trader: trader, Side: side, Ticker: "LINK", Price: price, Amount: amount}
}

func prices(orders []Order) []int64 {
	out := make([]int64, len(orders))
	for i, o := range orders {
		out[i] = o.Price
	}
	return out
}

func equalInt64s(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TestBuyBookAscending checks the example ordering: 300, 100, 200 -> [100, 200, 300]
func TestBuyBookAscending(t *testing.T) {
	s := NewStore()
	s.Insert(newOrder(1, Buy, 300, 1))
	s.Insert(newOrder(2, Buy, 100, 1))
	s.Insert(newOrder(3, Buy, 200, 1))

	got := prices(s.GetOrderBook("LINK", Buy))
	want := []int64{100, 200, 300}
	if !equalInt64s(got, want) {
		t.Fatalf("buy book = %v, want %v", got, want)
	}

	best, ok := s.BestOrder("LINK", Buy)
	if !ok || best.Price != 300 {
		t.Errorf("best bid = %+v, want price 300", best)
	}
}

func TestSellBookDescending(t *testing.T) {
	s := NewStore()
	for i, p := range []int64{400, 300, 500, 350} {
		s.Insert(newOrder(uint64(i+1), Sell, p, 1))
	}

	book := s.GetOrderBook("LINK", Sell)
	for i := 0; i+1 < len(book); i++ {
		if book[i].Price < book[i+1].Price {
			t.Fatalf("sell book not non-increasing at %d: %v", i, prices(book))
		}
	}

	best, ok := s.BestOrder("LINK", Sell)
	if !ok || best.Price != 300 {
		t.Errorf("best ask = %+v, want price 300", best)
	}
}

func TestSortInvariantManyInserts(t *testing.T) {
	s := NewStore()
	ps := []int64{7, 3, 9, 3, 1, 12, 7, 7, 2, 10, 1}
	for i, p := range ps {
		s.Insert(newOrder(uint64(i+1), Buy, p, 1))
		s.Insert(newOrder(uint64(100+i), Sell, p, 1))
	}

	buys := s.GetOrderBook("LINK", Buy)
	for i := 0; i+1 < len(buys); i++ {
		if buys[i].Price > buys[i+1].Price {
			t.Fatalf("buy book out of order: %v", prices(buys))
		}
	}
	sells := s.GetOrderBook("LINK", Sell)
	for i := 0; i+1 < len(sells); i++ {
		if sells[i].Price < sells[i+1].Price {
			t.Fatalf("sell book out of order: %v", prices(sells))
		}
	}
	if len(buys) != len(ps) || len(sells) != len(ps) {
		t.Errorf("book sizes = %d/%d, want %d", len(buys), len(sells), len(ps))
	}
}

// TestTimePriority checks that the earlier of two equal-priced orders is
// walked first on both sides.
func TestTimePriority(t *testing.T) {
	for _, side := range []Side{Buy, Sell} {
		t.Run(side.String(), func(t *testing.T) {
			s := NewStore()
			s.Insert(newOrder(1, side, 200, 1))
			s.Insert(newOrder(2, side, 200, 1))
			s.Insert(newOrder(3, side, 200, 1))

			var order []uint64
			s.Walk("LINK", side, func(o Order) bool {
				order = append(order, o.ID)
				return true
			})
			want := []uint64{1, 2, 3}
			for i := range want {
				if order[i] != want[i] {
					t.Fatalf("walk order = %v, want %v", order, want)
				}
			}
		})
	}
}

func TestWalkStopsEarly(t *testing.T) {
	s := NewStore()
	s.Insert(newOrder(1, Sell, 300, 5))
	s.Insert(newOrder(2, Sell, 400, 5))
	s.Insert(newOrder(3, Sell, 500, 5))

	var visited []int64
	s.Walk("LINK", Sell, func(o Order) bool {
		visited = append(visited, o.Price)
		return len(visited) < 2
	})
	if !equalInt64s(visited, []int64{300, 400}) {
		t.Errorf("visited = %v, want [300 400]", visited)
	}
}

func TestApplyFillAndRemove(t *testing.T) {
	s := NewStore()
	s.Insert(newOrder(1, Sell, 300, 5))
	s.Insert(newOrder(2, Sell, 400, 5))
	s.Insert(newOrder(3, Sell, 500, 5))

	if err := s.ApplyFill("LINK", Sell, 1, 5); err != nil {
		t.Fatalf("fill 1: %v", err)
	}
	if err := s.ApplyFill("LINK", Sell, 2, 2); err != nil {
		t.Fatalf("fill 2: %v", err)
	}

	removed := s.RemoveFullyFilled("LINK", Sell)
	if len(removed) != 1 || removed[0].ID != 1 {
		t.Fatalf("removed = %+v, want order 1", removed)
	}

	book := s.GetOrderBook("LINK", Sell)
	if len(book) != 2 {
		t.Fatalf("book len = %d, want 2", len(book))
	}
	best, _ := s.BestOrder("LINK", Sell)
	if best.ID != 2 || best.Filled != 2 {
		t.Errorf("best = %+v, want order 2 with filled 2", best)
	}
}

func TestApplyFillRejectsOverfill(t *testing.T) {
	s := NewStore()
	s.Insert(newOrder(1, Buy, 100, 3))

	err := s.ApplyFill("LINK", Buy, 1, 4)
	if !errors.Is(err, ErrOverfill) {
		t.Fatalf("expected ErrOverfill, got %v", err)
	}
	if got := s.GetOrderBook("LINK", Buy)[0].Filled; got != 0 {
		t.Errorf("filled = %d after rejected fill, want 0", got)
	}

	if err := s.ApplyFill("LINK", Buy, 42, 1); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
	if err := s.ApplyFill("BAT", Buy, 1, 1); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound for unknown book, got %v", err)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.Insert(newOrder(1, Buy, 100, 3))

	snap := s.GetOrderBook("LINK", Buy)
	snap[0].Filled = 3

	if got := s.GetOrderBook("LINK", Buy)[0].Filled; got != 0 {
		t.Errorf("store mutated through snapshot: filled = %d", got)
	}
}

func TestEmptyBook(t *testing.T) {
	s := NewStore()
	if book := s.GetOrderBook("LINK", Sell); len(book) != 0 {
		t.Errorf("expected empty book, got %d orders", len(book))
	}
	if _, ok := s.BestOrder("LINK", Sell); ok {
		t.Error("expected no best order on empty book")
	}
	if removed := s.RemoveFullyFilled("LINK", Sell); len(removed) != 0 {
		t.Errorf("removed %d from empty book", len(removed))
	}
}

func TestDepth(t *testing.T) {
	s := NewStore()
	s.Insert(newOrder(1, Buy, 100, 3))
	s.Insert(newOrder(2, Buy, 200, 2))
	s.Insert(newOrder(3, Buy, 200, 4))
	_ = s.ApplyFill("LINK", Buy, 2, 1)

	levels := s.Depth("LINK", Buy)
	if len(levels) != 2 {
		t.Fatalf("levels = %+v, want 2", levels)
	}
	if levels[0].Price != 200 || levels[0].Amount != 5 || levels[0].Orders != 2 {
		t.Errorf("top level = %+v, want 200 x 5 (2 orders)", levels[0])
	}
	if levels[1].Price != 100 || levels[1].Amount != 3 {
		t.Errorf("second level = %+v, want 100 x 3", levels[1])
	}
}

func TestParseSide(t *testing.T) {
	tests := []struct {
		in      string
		want    Side
		wantErr bool
	}{
		{"buy", Buy, false},
		{"SELL", Sell, false},
		{"0", Buy, false},
		{"1", Sell, false},
		{"hold", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSide(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSide(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseSide(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Error("Opposite is not symmetric")
	}
}

func TestSideJSON(t *testing.T) {
	o := Order{ID: 1, Side: Sell, Ticker: "LINK", Amount: 1, Price: 1}
	data, err := json.Marshal(o)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"side":"sell"`) {
		t.Errorf("side not encoded as text: %s", data)
	}

	var back Order
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Side != Sell {
		t.Errorf("side = %v, want sell", back.Side)
	}

	if _, err := json.Marshal(Order{Side: Side(9)}); err == nil {
		t.Error("expected error encoding invalid side")
	}
}
