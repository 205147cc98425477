package execution

import (
	"sort"

	"github.com/relstore/relstore/internal/record"
)

// SortOrder is the direction a SortKey is compared in.
type SortOrder int

const (
	SortAsc SortOrder = iota
	SortDesc
)

// SortKey is one column of a multi-criterion, lexicographic sort.
type SortKey struct {
	GetArg func(record.Tuple) record.Value
	Order  SortOrder
}

// Sort materializes its entire child into memory and emits it back out in
// sorted order. Grounded on sort_executor.cpp, which takes the same
// materialize-then-sort approach (no external merge sort, since the buffer
// pool's working set is assumed to fit the exercises this kernel runs).
type Sort struct {
	child  Executor
	keys   []SortKey
	schema record.Schema

	rows []record.Tuple
	pos  int
}

func NewSort(child Executor, keys []SortKey) *Sort {
	return &Sort{child: child, keys: keys, schema: child.OutputSchema()}
}

func (s *Sort) Init() error {
	if err := s.child.Init(); err != nil {
		return err
	}
	s.rows = nil
	for {
		tup, ok, err := s.child.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		s.rows = append(s.rows, tup)
	}
	sort.SliceStable(s.rows, func(i, j int) bool {
		return lessByKeys(s.rows[i], s.rows[j], s.keys)
	})
	s.pos = 0
	return nil
}

func lessByKeys(a, b record.Tuple, keys []SortKey) bool {
	for _, k := range keys {
		av, bv := k.GetArg(a), k.GetArg(b)
		c := compareValues(av, bv)
		if c == 0 {
			continue
		}
		if k.Order == SortDesc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func (s *Sort) Next() (record.Tuple, bool, error) {
	if s.pos >= len(s.rows) {
		return record.Tuple{}, false, nil
	}
	tup := s.rows[s.pos]
	s.pos++
	return tup, true, nil
}

func (s *Sort) OutputSchema() record.Schema { return s.schema }
