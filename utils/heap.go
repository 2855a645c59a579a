package utils

import "golang.org/x/exp/constraints"

type heapItem[P constraints.Ordered, V any] struct {
	prio P
	val  V
}

// MaxHeap pops values in descending priority order. Values of equal
// priority come out in no particular order.
type MaxHeap[P constraints.Ordered, V any] struct {
	buf []heapItem[P, V]
}

func (h *MaxHeap[P, V]) Len() int {
	return len(h.buf)
}

// Push pushes the value v with priority p onto the heap.
// The complexity is O(log n) where n = h.Len().
func (h *MaxHeap[P, V]) Push(p P, v V) {
	h.buf = append(h.buf, heapItem[P, V]{prio: p, val: v})
	h.up(h.Len() - 1)
}

// Peek returns the top priority without removing anything.
func (h *MaxHeap[P, V]) Peek() (p P, v V) {
	return h.buf[0].prio, h.buf[0].val
}

// Pop removes and returns the element with the greatest priority.
// The complexity is O(log n) where n = h.Len().
func (h *MaxHeap[P, V]) Pop() (p P, v V) {
	top := h.buf[0]
	n := h.Len() - 1
	h.swap(0, n)
	h.down(0, n)
	h.buf[n] = heapItem[P, V]{}
	h.buf = h.buf[0:n]
	return top.prio, top.val
}

func (h *MaxHeap[P, V]) swap(i, j int) {
	h.buf[i], h.buf[j] = h.buf[j], h.buf[i]
}

func (h *MaxHeap[P, V]) above(i, j int) bool {
	return h.buf[i].prio > h.buf[j].prio
}

func (h *MaxHeap[P, V]) up(j int) {
	for {
		i := (j - 1) / 2 // parent
		if i == j || !h.above(j, i) {
			break
		}
		h.swap(i, j)
		j = i
	}
}

func (h *MaxHeap[P, V]) down(i0, n int) bool {
	i := i0
	for {
		j1 := 2*i + 1
		if j1 >= n || j1 < 0 { // j1 < 0 after int overflow
			break
		}
		j := j1 // left child
		if j2 := j1 + 1; j2 < n && h.above(j2, j1) {
			j = j2 // right child
		}
		if !h.above(j, i) {
			break
		}
		h.swap(i, j)
		i = j
	}
	return i > i0
}
