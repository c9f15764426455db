package book

import "math/big"

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	if s == Buy {
		return "buy"
	}
	return "sell"
}

// Order is a resting order as the matcher sees it. Price is an integer tick
// count; Amount is in base units and arbitrary precision because settlement
// amounts must not silently overflow. Amount is the only mutable field and is
// decremented only during matching, always on a clone of the resting order.
type Order struct {
	ID     string // 0x-prefixed 32-byte hex token, the venue order id
	Side   Side
	Price  int64
	Amount *big.Int
}

// Clone returns a deep copy so matching never mutates the shared book.
func (o *Order) Clone() *Order {
	return &Order{
		ID:     o.ID,
		Side:   o.Side,
		Price:  o.Price,
		Amount: new(big.Int).Set(o.Amount),
	}
}
