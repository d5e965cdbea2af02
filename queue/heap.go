package queue

import (
	"container/heap"

	"github.com/pithecene-io/quarry-radius/types"
)

// requestHeap adapts a slice of *types.Request to container/heap using a
// caller-supplied Comparator, and keeps each Request's HeapIndex in sync
// with its position so the queue can report its own depth and so a future
// "remove this specific request" operation (not needed today) would be
// O(log n) rather than O(n).
type requestHeap struct {
	items []*types.Request
	less  Comparator
}

func (h *requestHeap) Len() int { return len(h.items) }

func (h *requestHeap) Less(i, j int) bool { return h.less(h.items[i], h.items[j]) }

func (h *requestHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].HeapIndex = i
	h.items[j].HeapIndex = j
}

func (h *requestHeap) Push(x any) {
	req := x.(*types.Request)
	req.HeapIndex = len(h.items)
	h.items = append(h.items, req)
}

func (h *requestHeap) Pop() any {
	old := h.items
	n := len(old)
	req := old[n-1]
	old[n-1] = nil
	req.HeapIndex = -1
	h.items = old[:n-1]
	return req
}

var _ = heap.Interface(&requestHeap{})
