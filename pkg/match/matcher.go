package match

import (
	"container/heap"
	"math/big"

	"github.com/openvenue/matchd/pkg/book"
)

// Fill pairs one buy order against one sell order for Amount base units.
// Amount is always positive: zero-size candidates are skipped, never emitted.
type Fill struct {
	BuyID  string
	SellID string
	Amount *big.Int
}

// Result is the outcome of matching one snapshot of resting interest.
type Result struct {
	Fills       []Fill
	TotalAmount *big.Int // sum of fill amounts
	// Queue depth left over after matching, used for round diagnostics.
	RestingBuys  int
	RestingSells int
}

// Match pairs resting buys against resting sells by price priority. It is
// pure and synchronous: the inputs are owned clones and are decremented in
// place as fills are discovered.
//
// The loop pops the best buy (highest price) and best sell (lowest price).
// If they cross (buy price >= sell price) a fill occurs for the smaller
// remaining amount and whichever order still has quantity is re-enqueued.
// If they do not cross, the sell is pushed back and the loop ends: the popped
// buy is the best bid, so no remaining pair can cross either. The buy is
// forfeited for this round rather than retried against other sells.
func Match(buys, sells []*book.Order) Result {
	bq := make(buyHeap, 0, len(buys))
	sq := make(sellHeap, 0, len(sells))
	for _, o := range buys {
		bq = append(bq, o)
	}
	for _, o := range sells {
		sq = append(sq, o)
	}
	heap.Init(&bq)
	heap.Init(&sq)

	res := Result{TotalAmount: new(big.Int)}

	for bq.Len() > 0 && sq.Len() > 0 {
		buy := heap.Pop(&bq).(*book.Order)
		sell := heap.Pop(&sq).(*book.Order)

		if buy.Price < sell.Price {
			heap.Push(&sq, sell)
			break
		}

		amount := minAmount(buy.Amount, sell.Amount)
		if amount.Sign() > 0 {
			res.Fills = append(res.Fills, Fill{BuyID: buy.ID, SellID: sell.ID, Amount: amount})
			res.TotalAmount.Add(res.TotalAmount, amount)

			buy.Amount.Sub(buy.Amount, amount)
			sell.Amount.Sub(sell.Amount, amount)
		}

		if buy.Amount.Sign() > 0 {
			heap.Push(&bq, buy)
		}
		if sell.Amount.Sign() > 0 {
			heap.Push(&sq, sell)
		}
	}

	res.RestingBuys = bq.Len()
	res.RestingSells = sq.Len()
	return res
}

func minAmount(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}
