package match

import "github.com/openvenue/matchd/pkg/book"

// buyHeap implements heap.Interface over buy orders (highest price on top).
// Orders at equal price surface in heap order, which is not time order; the
// venue does not currently promise a time tie-break.
// Use container/heap to manipulate (Init, Push, Pop).
type buyHeap []*book.Order

func (h buyHeap) Len() int           { return len(h) }
func (h buyHeap) Less(i, j int) bool { return h[i].Price > h[j].Price }
func (h buyHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *buyHeap) Push(x interface{}) {
	*h = append(*h, x.(*book.Order))
}

func (h *buyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// sellHeap keeps the lowest-priced sell order on top.
type sellHeap []*book.Order

func (h sellHeap) Len() int           { return len(h) }
func (h sellHeap) Less(i, j int) bool { return h[i].Price < h[j].Price }
func (h sellHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *sellHeap) Push(x interface{}) {
	*h = append(*h, x.(*book.Order))
}

func (h *sellHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
