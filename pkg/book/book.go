package book

import (
	"sort"
	"sync"
)

// PriceLevel aggregates resting quantity at one price, for depth queries.
type PriceLevel struct {
	Price  int64
	Orders int
}

// Book holds resting orders grouped by price level. The matching engine only
// ever reads it through snapshots (cloned, under a read lock) and mutates it
// through Clear, performed wholesale after a round settles. Ingestion and
// cancellation come from the API surface.
type Book struct {
	mu   sync.RWMutex
	bids map[int64][]*Order // price -> FIFO slice
	asks map[int64][]*Order

	// order ID -> price, for O(1) cancellation
	index map[string]int64
}

func New() *Book {
	return &Book{
		bids:  make(map[int64][]*Order),
		asks:  make(map[int64][]*Order),
		index: make(map[string]int64),
	}
}

// Add rests an order in the book. Zero- or negative-amount orders are
// rejected here so the matcher never sees them.
func (b *Book) Add(o *Order) bool {
	if o.Amount == nil || o.Amount.Sign() <= 0 || o.Price <= 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, dup := b.index[o.ID]; dup {
		return false
	}
	if o.Side == Buy {
		b.bids[o.Price] = append(b.bids[o.Price], o)
	} else {
		b.asks[o.Price] = append(b.asks[o.Price], o)
	}
	b.index[o.ID] = o.Price
	return true
}

func (b *Book) Cancel(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	price, ok := b.index[id]
	if !ok {
		return false
	}
	for _, side := range []map[int64][]*Order{b.bids, b.asks} {
		arr, exists := side[price]
		if !exists {
			continue
		}
		for i, o := range arr {
			if o.ID == id {
				side[price] = append(arr[:i], arr[i+1:]...)
				if len(side[price]) == 0 {
					delete(side, price)
				}
				delete(b.index, id)
				return true
			}
		}
	}
	return false
}

// SnapshotBuys returns clones of every resting buy order. The read lock is
// held only for the copy; matching proceeds on the clones.
func (b *Book) SnapshotBuys() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return snapshot(b.bids)
}

func (b *Book) SnapshotSells() []*Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return snapshot(b.asks)
}

func snapshot(side map[int64][]*Order) []*Order {
	var out []*Order
	for _, orders := range side {
		for _, o := range orders {
			out = append(out, o.Clone())
		}
	}
	return out
}

// Clear removes every resting order on both sides. A round either fully
// resolves its snapshot or fails; there is no partial-apply path, so the
// engine calls this only after all batches settled.
func (b *Book) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[int64][]*Order)
	b.asks = make(map[int64][]*Order)
	b.index = make(map[string]int64)
}

func (b *Book) Depth() (buys, sells int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, orders := range b.bids {
		buys += len(orders)
	}
	for _, orders := range b.asks {
		sells += len(orders)
	}
	return
}

// BidLevels returns bid price levels sorted high to low (best bid first).
func (b *Book) BidLevels() []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := levelsOf(b.bids)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price > levels[j].Price })
	return levels
}

// AskLevels returns ask price levels sorted low to high (best ask first).
func (b *Book) AskLevels() []PriceLevel {
	b.mu.RLock()
	defer b.mu.RUnlock()
	levels := levelsOf(b.asks)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Price < levels[j].Price })
	return levels
}

func levelsOf(side map[int64][]*Order) []PriceLevel {
	var levels []PriceLevel
	for price, orders := range side {
		if len(orders) == 0 {
			continue
		}
		levels = append(levels, PriceLevel{Price: price, Orders: len(orders)})
	}
	return levels
}
