package execution

import (
	"container/heap"

	"github.com/relstore/relstore/internal/record"
)

// TopN keeps only the N smallest rows (by the same multi-criterion ordering
// Sort uses) seen from its child, using a bounded max-heap of size N so a
// single row never needs the full input materialized. Grounded on
// topn_executor.cpp.
type TopN struct {
	child  Executor
	keys   []SortKey
	n      int
	schema record.Schema

	heap *topnHeap
	rows []record.Tuple
	pos  int
}

func NewTopN(child Executor, keys []SortKey, n int) *TopN {
	return &TopN{child: child, keys: keys, n: n, schema: child.OutputSchema()}
}

type topnHeap struct {
	rows []record.Tuple
	keys []SortKey
}

func (h *topnHeap) Len() int { return len(h.rows) }
func (h *topnHeap) Less(i, j int) bool {
	// Max-heap on the sort order: the "worst" row so far sits at the root so
	// it's cheap to evict when a better row arrives.
	return lessByKeys(h.rows[j], h.rows[i], h.keys)
}
func (h *topnHeap) Swap(i, j int)      { h.rows[i], h.rows[j] = h.rows[j], h.rows[i] }
func (h *topnHeap) Push(x any)         { h.rows = append(h.rows, x.(record.Tuple)) }
func (h *topnHeap) Pop() any {
	old := h.rows
	n := len(old)
	item := old[n-1]
	h.rows = old[:n-1]
	return item
}

func (t *TopN) Init() error {
	if err := t.child.Init(); err != nil {
		return err
	}
	t.heap = &topnHeap{keys: t.keys}
	for {
		tup, ok, err := t.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if t.n <= 0 {
			continue
		}
		if t.heap.Len() < t.n {
			heap.Push(t.heap, tup)
			continue
		}
		if lessByKeys(tup, t.heap.rows[0], t.keys) {
			heap.Pop(t.heap)
			heap.Push(t.heap, tup)
		}
	}

	t.rows = make([]record.Tuple, t.heap.Len())
	for i := len(t.rows) - 1; i >= 0; i-- {
		t.rows[i] = heap.Pop(t.heap).(record.Tuple)
	}
	t.pos = 0
	return nil
}

func (t *TopN) Next() (record.Tuple, bool, error) {
	if t.pos >= len(t.rows) {
		return record.Tuple{}, false, nil
	}
	tup := t.rows[t.pos]
	t.pos++
	return tup, true, nil
}

func (t *TopN) OutputSchema() record.Schema { return t.schema }
