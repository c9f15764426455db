package match

import (
	"math/big"
	"testing"

	"github.com/openvenue/matchd/pkg/book"
)

func order(id string, side book.Side, price, amount int64) *book.Order {
	return &book.Order{ID: id, Side: side, Price: price, Amount: big.NewInt(amount)}
}

func TestMatchCrossingPair(t *testing.T) {
	tests := []struct {
		name       string
		buys       []*book.Order
		sells      []*book.Order
		wantFills  int
		wantAmount int64
	}{
		{
			name:       "exact cross",
			buys:       []*book.Order{order("b1", book.Buy, 100, 5)},
			sells:      []*book.Order{order("s1", book.Sell, 100, 5)},
			wantFills:  1,
			wantAmount: 5,
		},
		{
			name:       "buy above sell",
			buys:       []*book.Order{order("b1", book.Buy, 105, 5)},
			sells:      []*book.Order{order("s1", book.Sell, 100, 3)},
			wantFills:  1,
			wantAmount: 3,
		},
		{
			name:       "no cross",
			buys:       []*book.Order{order("b1", book.Buy, 99, 5)},
			sells:      []*book.Order{order("s1", book.Sell, 100, 5)},
			wantFills:  0,
			wantAmount: 0,
		},
		{
			name:       "empty buys",
			buys:       nil,
			sells:      []*book.Order{order("s1", book.Sell, 100, 5)},
			wantFills:  0,
			wantAmount: 0,
		},
		{
			name:       "empty sells",
			buys:       []*book.Order{order("b1", book.Buy, 100, 5)},
			sells:      nil,
			wantFills:  0,
			wantAmount: 0,
		},
		{
			name:       "zero amount order is skipped silently",
			buys:       []*book.Order{order("b1", book.Buy, 100, 0)},
			sells:      []*book.Order{order("s1", book.Sell, 100, 5)},
			wantFills:  0,
			wantAmount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Match(tt.buys, tt.sells)
			if len(res.Fills) != tt.wantFills {
				t.Fatalf("fills = %d, want %d", len(res.Fills), tt.wantFills)
			}
			if res.TotalAmount.Int64() != tt.wantAmount {
				t.Errorf("total amount = %s, want %d", res.TotalAmount, tt.wantAmount)
			}
			for _, f := range res.Fills {
				if f.Amount.Sign() <= 0 {
					t.Errorf("fill %s/%s has non-positive amount %s", f.BuyID, f.SellID, f.Amount)
				}
			}
		})
	}
}

// Reproduces the partial-fill walkthrough: B1 crosses S1 for min(5,4)=4, the
// B1 remainder re-enters the buy heap, then B1(100) vs S2(101) does not cross
// and matching stops for the round.
func TestMatchPartialFillThenStop(t *testing.T) {
	buys := []*book.Order{
		order("B1", book.Buy, 100, 5),
		order("B2", book.Buy, 90, 3),
	}
	sells := []*book.Order{
		order("S1", book.Sell, 95, 4),
		order("S2", book.Sell, 101, 2),
	}

	res := Match(buys, sells)

	if len(res.Fills) != 1 {
		t.Fatalf("fills = %d, want 1", len(res.Fills))
	}
	f := res.Fills[0]
	if f.BuyID != "B1" || f.SellID != "S1" || f.Amount.Int64() != 4 {
		t.Errorf("fill = %+v, want B1/S1 amount 4", f)
	}
	if res.RestingSells != 1 {
		t.Errorf("resting sells = %d, want 1 (S2)", res.RestingSells)
	}
	// B2 never got a chance: the non-crossing best buy ends the round.
	if res.RestingBuys != 1 {
		t.Errorf("resting buys = %d, want 1 (B2)", res.RestingBuys)
	}
}

func TestMatchPartialRemaindersNonNegative(t *testing.T) {
	buys := []*book.Order{
		order("b1", book.Buy, 100, 10),
		order("b2", book.Buy, 100, 7),
	}
	sells := []*book.Order{
		order("s1", book.Sell, 95, 6),
		order("s2", book.Sell, 96, 6),
	}

	res := Match(buys, sells)

	var total int64
	for _, f := range res.Fills {
		total += f.Amount.Int64()
	}
	if total != 12 {
		t.Errorf("matched %d, want 12 (all sell liquidity)", total)
	}
	for _, o := range append(buys, sells...) {
		if o.Amount.Sign() < 0 {
			t.Errorf("order %s has negative remainder %s", o.ID, o.Amount)
		}
	}
}

func TestMatchEqualPriceAlwaysCrosses(t *testing.T) {
	res := Match(
		[]*book.Order{order("b1", book.Buy, 42, 1)},
		[]*book.Order{order("s1", book.Sell, 42, 1)},
	)
	if len(res.Fills) != 1 {
		t.Fatalf("equal prices must cross, got %d fills", len(res.Fills))
	}
}
