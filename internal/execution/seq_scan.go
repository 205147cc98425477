package execution

import (
	"github.com/relstore/relstore/internal/heap"
	"github.com/relstore/relstore/internal/record"
)

// SeqScan walks every live tuple of a heap table in page/slot order,
// grounded on seq_scan_executor.cpp. The teacher's table iterator already
// skips tombstoned slots (heap.Scanner.Next), so this operator has nothing
// extra to filter.
type SeqScan struct {
	table   *heap.Table
	schema  record.Schema
	scanner *heap.Scanner
}

func NewSeqScan(table *heap.Table, schema record.Schema) *SeqScan {
	return &SeqScan{table: table, schema: schema}
}

func (s *SeqScan) Init() error {
	s.scanner = s.table.NewScanner()
	return nil
}

func (s *SeqScan) Next() (record.Tuple, bool, error) {
	return s.scanner.Next()
}

func (s *SeqScan) OutputSchema() record.Schema { return s.schema }
