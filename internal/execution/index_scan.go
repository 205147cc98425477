package execution

import (
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/index/btree"
	"github.com/relstore/relstore/internal/record"
)

// IndexScan walks an index's forward iterator and fetches each matching RID
// from the owning heap table, skipping rows a concurrent delete has already
// tombstoned, grounded on index_scan_executor.cpp.
type IndexScan struct {
	index  btree.Index
	table  *heap.Table
	schema record.Schema
	it     *btree.Iterator
}

func NewIndexScan(index btree.Index, table *heap.Table, schema record.Schema) *IndexScan {
	return &IndexScan{index: index, table: table, schema: schema}
}

func (s *IndexScan) Init() error {
	it, err := s.index.Begin()
	if err != nil {
		return err
	}
	s.it = it
	return nil
}

func (s *IndexScan) Next() (record.Tuple, bool, error) {
	for {
		if s.it.IsEnd() {
			return record.Tuple{}, false, nil
		}
		rid := s.it.Value()
		if err := s.it.Next(); err != nil {
			return record.Tuple{}, false, err
		}

		tup, err := s.table.Get(rid)
		if err == heap.ErrRIDNotFound {
			continue // tombstoned since the index entry was written
		}
		if err != nil {
			return record.Tuple{}, false, err
		}
		return tup, true, nil
	}
}

func (s *IndexScan) OutputSchema() record.Schema { return s.schema }
